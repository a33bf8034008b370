// Package eventbatch validates the shape of event batches before they are
// offered to a storage backend.
package eventbatch

import (
	"github.com/dogmatiq/recorderkit/recorder"
	"github.com/google/uuid"
)

// Validate checks that a batch of events forms a consecutive ascending run
// of versions for each aggregate it touches, and that no version is below
// [recorder.InitialVersion].
//
// It does not (and cannot) check that each run begins immediately after the
// aggregate's current maximum version; that is the storage backend's
// responsibility, performed inside the insert transaction.
func Validate(events []recorder.StoredEvent) error {
	last := make(map[uuid.UUID]int64, 1)

	for _, ev := range events {
		if ev.OriginatorVersion < recorder.InitialVersion {
			return recorder.Errorf(
				recorder.ErrIntegrity,
				"version %d of aggregate %s is below the initial version",
				ev.OriginatorVersion,
				ev.OriginatorID,
			)
		}

		if v, ok := last[ev.OriginatorID]; ok && ev.OriginatorVersion != v+1 {
			return recorder.Errorf(
				recorder.ErrIntegrity,
				"versions of aggregate %s are not consecutive, %d does not follow %d",
				ev.OriginatorID,
				ev.OriginatorVersion,
				v,
			)
		}

		last[ev.OriginatorID] = ev.OriginatorVersion
	}

	return nil
}

// FirstVersions returns the version of the first event in the batch for
// each aggregate that the batch touches.
func FirstVersions(events []recorder.StoredEvent) map[uuid.UUID]int64 {
	first := make(map[uuid.UUID]int64, 1)

	for _, ev := range events {
		if _, ok := first[ev.OriginatorID]; !ok {
			first[ev.OriginatorID] = ev.OriginatorVersion
		}
	}

	return first
}
