package dynamodb

import (
	"context"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dogmatiq/recorderkit/driver/aws/internal/awsx"
	"github.com/dogmatiq/recorderkit/internal/eventbatch"
	"github.com/dogmatiq/recorderkit/recorder"
	"github.com/google/uuid"
)

// RecorderStore contains recorders that persist events in a DynamoDB
// table.
//
// DynamoDB has no global, monotonically increasing sequence, so it cannot
// serve a notification log. Recorders opened from this store implement
// [recorder.AggregateRecorder] only.
type RecorderStore struct {
	// Client is the DynamoDB client to use.
	Client *dynamodb.Client

	// Table is the table name used for storage of events.
	Table string

	// DecorateQuery is an optional function that is called before each
	// DynamoDB "Query" request.
	//
	// It may modify the API input in-place. It returns options that will be
	// applied to the request.
	DecorateQuery func(*dynamodb.QueryInput) []func(*dynamodb.Options)

	// DecorateTransactWriteItems is an optional function that is called
	// before each DynamoDB "TransactWriteItems" request.
	//
	// It may modify the API input in-place. It returns options that will be
	// applied to the request.
	DecorateTransactWriteItems func(*dynamodb.TransactWriteItemsInput) []func(*dynamodb.Options)
}

const (
	streamAttr  = "Stream"
	versionAttr = "Version"
	topicAttr   = "Topic"
	stateAttr   = "State"
)

// Open returns the recorder for the application with the given name.
func (s *RecorderStore) Open(ctx context.Context, application string) (recorder.AggregateRecorder, error) {
	if application == "" {
		return nil, recorder.Errorf(
			recorder.ErrProgramming,
			"application name must not be empty",
		)
	}

	return &recorderHandle{
		store:       s,
		application: application,
	}, ctx.Err()
}

// recorderHandle is an implementation of [recorder.AggregateRecorder] that
// stores the events of a single application in a DynamoDB table.
type recorderHandle struct {
	store       *RecorderStore
	application string
}

// streamKey returns the partition key of the given aggregate's event
// stream.
func (h *recorderHandle) streamKey(originatorID uuid.UUID) *types.AttributeValueMemberS {
	return &types.AttributeValueMemberS{
		Value: h.application + "/" + originatorID.String(),
	}
}

// InsertEvents saves the events of one or more aggregates as a single
// atomic write.
//
// Every event is written conditionally on its (stream, version) item not
// existing. For a stream that is being extended rather than started, an
// additional condition verifies that the preceding version is present, so
// a batch can never leave a gap. DynamoDB limits a transactional write to
// 100 items; the batch size plus one per extended stream must fit within
// that limit.
func (h *recorderHandle) InsertEvents(ctx context.Context, events []recorder.StoredEvent) error {
	store, err := h.open()
	if err != nil {
		return err
	}

	if err := eventbatch.Validate(events); err != nil {
		return err
	}

	if len(events) == 0 {
		return ctx.Err()
	}

	var items []types.TransactWriteItem

	for id, first := range eventbatch.FirstVersions(events) {
		if first == recorder.InitialVersion {
			continue
		}

		items = append(
			items,
			types.TransactWriteItem{
				ConditionCheck: &types.ConditionCheck{
					TableName: aws.String(store.Table),
					Key: map[string]types.AttributeValue{
						streamAttr: h.streamKey(id),
						versionAttr: &types.AttributeValueMemberN{
							Value: strconv.FormatInt(first-1, 10),
						},
					},
					ConditionExpression: aws.String(`attribute_exists(#S)`),
					ExpressionAttributeNames: map[string]string{
						"#S": streamAttr,
					},
				},
			},
		)
	}

	for _, ev := range events {
		// A nil payload is a valid (empty) payload.
		state := ev.State
		if state == nil {
			state = []byte{}
		}

		items = append(
			items,
			types.TransactWriteItem{
				Put: &types.Put{
					TableName: aws.String(store.Table),
					Item: map[string]types.AttributeValue{
						streamAttr: h.streamKey(ev.OriginatorID),
						versionAttr: &types.AttributeValueMemberN{
							Value: strconv.FormatInt(ev.OriginatorVersion, 10),
						},
						topicAttr: &types.AttributeValueMemberS{
							Value: ev.Topic,
						},
						stateAttr: &types.AttributeValueMemberB{
							Value: state,
						},
					},
					ConditionExpression: aws.String(`attribute_not_exists(#S)`),
					ExpressionAttributeNames: map[string]string{
						"#S": streamAttr,
					},
				},
			},
		)
	}

	if _, err := awsx.Do(
		ctx,
		store.Client.TransactWriteItems,
		store.DecorateTransactWriteItems,
		&dynamodb.TransactWriteItemsInput{
			TransactItems: items,
		},
	); err != nil {
		return classify(err)
	}

	return nil
}

func (h *recorderHandle) SelectEvents(
	ctx context.Context,
	originatorID uuid.UUID,
	opts recorder.SelectOptions,
) ([]recorder.StoredEvent, error) {
	store, err := h.open()
	if err != nil {
		return nil, err
	}

	// Bounds that have crossed select nothing. DynamoDB rejects an inverted
	// BETWEEN as a validation error rather than matching no items, so the
	// query is never sent.
	if opts.After != 0 && opts.Until != 0 && opts.After >= opts.Until {
		return nil, ctx.Err()
	}

	in := &dynamodb.QueryInput{
		TableName:              aws.String(store.Table),
		KeyConditionExpression: aws.String(`#S = :S`),
		ProjectionExpression:   aws.String(`#V, #T, #P`),
		ExpressionAttributeNames: map[string]string{
			"#S": streamAttr,
			"#V": versionAttr,
			"#T": topicAttr,
			"#P": stateAttr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":S": h.streamKey(originatorID),
		},
	}

	version := func(v int64) *types.AttributeValueMemberN {
		return &types.AttributeValueMemberN{
			Value: strconv.FormatInt(v, 10),
		}
	}

	switch {
	case opts.After != 0 && opts.Until != 0:
		in.KeyConditionExpression = aws.String(`#S = :S AND #V BETWEEN :A AND :U`)
		in.ExpressionAttributeValues[":A"] = version(opts.After + 1)
		in.ExpressionAttributeValues[":U"] = version(opts.Until)
	case opts.After != 0:
		in.KeyConditionExpression = aws.String(`#S = :S AND #V > :A`)
		in.ExpressionAttributeValues[":A"] = version(opts.After)
	case opts.Until != 0:
		in.KeyConditionExpression = aws.String(`#S = :S AND #V <= :U`)
		in.ExpressionAttributeValues[":U"] = version(opts.Until)
	}

	if opts.Desc {
		in.ScanIndexForward = aws.Bool(false)
	}

	if opts.Limit > 0 {
		in.Limit = aws.Int32(int32(opts.Limit))
	}

	var events []recorder.StoredEvent

	for {
		out, err := awsx.Do(
			ctx,
			store.Client.Query,
			store.DecorateQuery,
			in,
		)
		if err != nil {
			return nil, classify(err)
		}

		for _, item := range out.Items {
			ev, err := eventFromItem(originatorID, item)
			if err != nil {
				return nil, err
			}

			events = append(events, ev)

			if opts.Limit > 0 && len(events) == opts.Limit {
				return events, nil
			}
		}

		if out.LastEvaluatedKey == nil {
			return events, nil
		}

		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func (h *recorderHandle) Close() error {
	h.store = nil
	return nil
}

func (h *recorderHandle) open() (*RecorderStore, error) {
	if h.store == nil {
		return nil, recorder.Errorf(
			recorder.ErrInterface,
			"recorder is closed",
		)
	}

	return h.store, nil
}

// eventFromItem converts a DynamoDB item to the event it stores.
func eventFromItem(
	originatorID uuid.UUID,
	item map[string]types.AttributeValue,
) (recorder.StoredEvent, error) {
	ev := recorder.StoredEvent{
		OriginatorID: originatorID,
	}

	version, err := getAttr[*types.AttributeValueMemberN](item, versionAttr)
	if err != nil {
		return recorder.StoredEvent{}, err
	}

	ev.OriginatorVersion, err = strconv.ParseInt(version.Value, 10, 64)
	if err != nil {
		return recorder.StoredEvent{}, recorder.NewError(recorder.ErrData, err)
	}

	topic, err := getAttr[*types.AttributeValueMemberS](item, topicAttr)
	if err != nil {
		return recorder.StoredEvent{}, err
	}
	ev.Topic = topic.Value

	state, err := getAttr[*types.AttributeValueMemberB](item, stateAttr)
	if err != nil {
		return recorder.StoredEvent{}, err
	}
	ev.State = state.Value

	return ev, nil
}
