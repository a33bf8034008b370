// The example command runs a two-application pipeline over a single SQLite
// database.
//
// A "banking" application appends events to a handful of accounts. A
// "reporting" application follows the banking notification log and records
// a summary event for each notification it consumes, along with a tracking
// record that lets it resume from where it left off after a restart.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dogmatiq/ferrite"
	"github.com/dogmatiq/recorderkit/driver/sqlite"
	"github.com/dogmatiq/recorderkit/recorder"
	"github.com/google/uuid"
	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"
)

var dsn = ferrite.
	String("RECORDERKIT_DSN", "the DSN of the SQLite database used for storage").
	WithDefault("file:recorderkit.db").
	Required()

const (
	upstreamApp   = "banking"
	downstreamApp = "reporting"
)

func main() {
	ferrite.Init()

	logger := slog.New(
		slog.NewJSONHandler(
			os.Stdout,
			&slog.HandlerOptions{
				Level: slog.LevelDebug,
			},
		),
	)

	ctx, cancel := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	if err := run(ctx, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error(
			"example pipeline failed",
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	db, err := sqlite.Open(ctx, dsn.Value())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := sqlite.CreateRecorderSchema(ctx, db.DB); err != nil {
		return err
	}

	store := recorder.WithTelemetry(db, nil, nil, logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return produce(ctx, logger, store)
	})

	g.Go(func() error {
		return consume(ctx, logger, store)
	})

	return g.Wait()
}

// produce appends events to a small set of accounts within the upstream
// application.
func produce(
	ctx context.Context,
	logger *slog.Logger,
	store recorder.Store,
) error {
	rec, err := store.Open(ctx, upstreamApp)
	if err != nil {
		return err
	}
	defer rec.Close()

	accounts := make([]uuid.UUID, 3)
	versions := make([]int64, len(accounts))

	for i := range accounts {
		accounts[i] = uuid.New()

		if err := rec.InsertEvents(
			ctx,
			[]recorder.StoredEvent{
				{
					OriginatorID:      accounts[i],
					OriginatorVersion: recorder.InitialVersion,
					Topic:             "account:opened",
					State:             []byte(`{"balance":0}`),
				},
			},
		); err != nil {
			return err
		}

		versions[i] = recorder.InitialVersion
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for i := 0; ; i = (i + 1) % len(accounts) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		versions[i]++

		if err := rec.InsertEvents(
			ctx,
			[]recorder.StoredEvent{
				{
					OriginatorID:      accounts[i],
					OriginatorVersion: versions[i],
					Topic:             "account:credited",
					State:             []byte(fmt.Sprintf(`{"amount":%d}`, versions[i])),
				},
			},
		); err != nil {
			return err
		}

		head, err := rec.MaxNotificationID(ctx)
		if err != nil {
			return err
		}

		logger.Info(
			"credited account",
			slog.String("account_id", accounts[i].String()),
			slog.Int64("version", versions[i]),
			slog.Int64("log_head", head),
		)
	}
}

// consume follows the upstream notification log and records a summary
// event, with tracking, for each notification.
func consume(
	ctx context.Context,
	logger *slog.Logger,
	store recorder.Store,
) error {
	up, err := store.Open(ctx, upstreamApp)
	if err != nil {
		return err
	}
	defer up.Close()

	down, err := store.Open(ctx, downstreamApp)
	if err != nil {
		return err
	}
	defer down.Close()

	// The ledger aggregate has a fixed identity so that a restarted
	// consumer extends the same stream.
	ledger := uuid.NewSHA1(uuid.NameSpaceOID, []byte(downstreamApp+"/ledger"))

	last, err := down.MaxTrackingID(ctx, upstreamApp)
	if err != nil {
		return err
	}

	version := recorder.InitialVersion - 1

	head, err := down.SelectEvents(
		ctx,
		ledger,
		recorder.SelectOptions{Desc: true, Limit: 1},
	)
	if err != nil {
		return err
	}
	if len(head) > 0 {
		version = head[0].OriginatorVersion
	}

	if last > 0 {
		logger.Info(
			"resuming from last consumed notification",
			slog.Int64("notification_id", last),
			slog.Int64("ledger_version", version),
		)
	}

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		notifications, err := up.SelectNotifications(ctx, last+1, 10)
		if err != nil {
			return err
		}

		for _, n := range notifications {
			version++

			err := down.InsertEventsWithTracking(
				ctx,
				[]recorder.StoredEvent{
					{
						OriginatorID:      ledger,
						OriginatorVersion: version,
						Topic:             "ledger:recorded",
						State: []byte(fmt.Sprintf(
							`{"notification_id":%d,"topic":%q}`,
							n.ID,
							n.Topic,
						)),
					},
				},
				recorder.Tracking{
					ApplicationName: upstreamApp,
					NotificationID:  n.ID,
				},
			)

			if errors.Is(err, recorder.ErrIntegrity) {
				// Another consumer instance has already recorded this
				// notification.
				logger.Debug(
					"notification already recorded",
					slog.Int64("notification_id", n.ID),
				)

				version--
				last = n.ID
				continue
			}
			if err != nil {
				return err
			}

			last = n.ID

			logger.Info(
				"recorded notification",
				slog.Int64("notification_id", n.ID),
				slog.String("topic", n.Topic),
				slog.Int64("ledger_version", version),
			)
		}
	}
}
