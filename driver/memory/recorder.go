package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/dogmatiq/recorderkit/internal/eventbatch"
	"github.com/dogmatiq/recorderkit/recorder"
	"github.com/google/uuid"
	"golang.org/x/exp/slices"
)

// RecorderStore is an implementation of [recorder.Store] that keeps events
// in memory.
//
// It provides no durability. It is intended for tests and as the reference
// implementation of the recorder contract.
type RecorderStore struct {
	applications sync.Map // map[string]*applicationState
}

// Open returns the recorder for the application with the given name.
func (s *RecorderStore) Open(ctx context.Context, application string) (recorder.ProcessRecorder, error) {
	if application == "" {
		return nil, recorder.Errorf(
			recorder.ErrProgramming,
			"application name must not be empty",
		)
	}

	state, ok := s.applications.Load(application)
	if !ok {
		state, _ = s.applications.LoadOrStore(
			application,
			newApplicationState(),
		)
	}

	return &recorderHandle{
		state: state.(*applicationState),
	}, ctx.Err()
}

// NewRecorder returns a new standalone in-memory recorder.
func NewRecorder() recorder.ProcessRecorder {
	return &recorderHandle{
		state: newApplicationState(),
	}
}

// applicationState stores the events, notifications and tracking records of
// a single application.
type applicationState struct {
	sync.RWMutex

	events        map[uuid.UUID][]recorder.StoredEvent
	notifications []recorder.Notification
	lastID        int64
	tracking      map[string]map[int64]struct{}
	trackingMax   map[string]int64
}

func newApplicationState() *applicationState {
	return &applicationState{
		events:      map[uuid.UUID][]recorder.StoredEvent{},
		tracking:    map[string]map[int64]struct{}{},
		trackingMax: map[string]int64{},
	}
}

// nextVersion returns the version that the next event of the given
// aggregate must have. Streams are contiguous from
// [recorder.InitialVersion], so it is derived from the stream length.
func (s *applicationState) nextVersion(originatorID uuid.UUID) int64 {
	return int64(len(s.events[originatorID])) + recorder.InitialVersion
}

// recorderHandle is an implementation of [recorder.ProcessRecorder] that
// accesses application state.
type recorderHandle struct {
	state *applicationState
}

func (h *recorderHandle) InsertEvents(ctx context.Context, events []recorder.StoredEvent) error {
	return h.insert(ctx, events, nil)
}

func (h *recorderHandle) InsertEventsWithTracking(
	ctx context.Context,
	events []recorder.StoredEvent,
	t recorder.Tracking,
) error {
	return h.insert(ctx, events, &t)
}

func (h *recorderHandle) insert(
	ctx context.Context,
	events []recorder.StoredEvent,
	t *recorder.Tracking,
) error {
	state, err := h.open()
	if err != nil {
		return err
	}

	if err := eventbatch.Validate(events); err != nil {
		return err
	}

	state.Lock()
	defer state.Unlock()

	// Check every constraint before mutating anything, so that a rejected
	// batch leaves no trace.
	for id, first := range eventbatch.FirstVersions(events) {
		if next := state.nextVersion(id); first != next {
			return recorder.Errorf(
				recorder.ErrIntegrity,
				"version %d of aggregate %s does not follow the current stream, expected %d",
				first,
				id,
				next,
			)
		}
	}

	if t != nil {
		if _, ok := state.tracking[t.ApplicationName][t.NotificationID]; ok {
			return recorder.Errorf(
				recorder.ErrIntegrity,
				"notification %d from %s has already been tracked",
				t.NotificationID,
				t.ApplicationName,
			)
		}
	}

	for _, ev := range events {
		state.events[ev.OriginatorID] = append(state.events[ev.OriginatorID], ev)

		state.lastID++
		state.notifications = append(
			state.notifications,
			recorder.Notification{
				ID:          state.lastID,
				StoredEvent: ev,
			},
		)
	}

	if t != nil {
		ids, ok := state.tracking[t.ApplicationName]
		if !ok {
			ids = map[int64]struct{}{}
			state.tracking[t.ApplicationName] = ids
		}
		ids[t.NotificationID] = struct{}{}

		if t.NotificationID > state.trackingMax[t.ApplicationName] {
			state.trackingMax[t.ApplicationName] = t.NotificationID
		}
	}

	return ctx.Err()
}

func (h *recorderHandle) SelectEvents(
	ctx context.Context,
	originatorID uuid.UUID,
	opts recorder.SelectOptions,
) ([]recorder.StoredEvent, error) {
	state, err := h.open()
	if err != nil {
		return nil, err
	}

	state.RLock()
	defer state.RUnlock()

	var result []recorder.StoredEvent
	for _, ev := range state.events[originatorID] {
		if opts.After != 0 && ev.OriginatorVersion <= opts.After {
			continue
		}
		if opts.Until != 0 && ev.OriginatorVersion > opts.Until {
			continue
		}

		result = append(result, ev)
	}

	if opts.Desc {
		slices.Reverse(result)
	}

	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, ctx.Err()
}

func (h *recorderHandle) SelectNotifications(
	ctx context.Context,
	start int64,
	limit int,
) ([]recorder.Notification, error) {
	state, err := h.open()
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		return nil, ctx.Err()
	}

	state.RLock()
	defer state.RUnlock()

	begin := sort.Search(
		len(state.notifications),
		func(i int) bool {
			return state.notifications[i].ID >= start
		},
	)

	end := begin + limit
	if end > len(state.notifications) {
		end = len(state.notifications)
	}

	return slices.Clone(state.notifications[begin:end]), ctx.Err()
}

func (h *recorderHandle) MaxNotificationID(ctx context.Context) (int64, error) {
	state, err := h.open()
	if err != nil {
		return 0, err
	}

	state.RLock()
	defer state.RUnlock()

	return state.lastID, ctx.Err()
}

func (h *recorderHandle) MaxTrackingID(
	ctx context.Context,
	upstreamApplication string,
) (int64, error) {
	state, err := h.open()
	if err != nil {
		return 0, err
	}

	state.RLock()
	defer state.RUnlock()

	return state.trackingMax[upstreamApplication], ctx.Err()
}

func (h *recorderHandle) Close() error {
	h.state = nil
	return nil
}

func (h *recorderHandle) open() (*applicationState, error) {
	if h.state == nil {
		return nil, recorder.Errorf(
			recorder.ErrInterface,
			"recorder is closed",
		)
	}

	return h.state, nil
}
