package disk

import (
	"context"
	"fmt"
	"time"

	"drivemeta/internal/database"
)

// Service is the mutation orchestrator and read facade of the engine.
// Mutations flow through the admission queue and branch locker and run
// inside a single store transaction; reads hit committed state directly.
type Service struct {
	store  *database.Store
	queue  *AdmissionQueue
	locker *BranchLocker
	logger Logger
	clock  Clock
}

// NewService wires the engine together. The admission queue must have
// been seeded with the store's newest import date.
func NewService(store *database.Store, queue *AdmissionQueue, locker *BranchLocker, logger Logger, clock Clock) *Service {
	return &Service{
		store:  store,
		queue:  queue,
		locker: locker,
		logger: logger,
		clock:  clock,
	}
}

// NewAdmissionQueueForStore reads the newest persisted import date and
// starts an admission queue floored at it, so timestamp ordering stays
// strict across restarts.
func NewAdmissionQueueForStore(ctx context.Context, store *database.Store, logger Logger, idgen IDGenerator) (*AdmissionQueue, error) {
	floor, _, err := store.MaxImportDate(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading admission floor: %w", err)
	}
	return NewAdmissionQueue(logger, idgen, floor), nil
}

// translateWriteErr maps store-level constraint failures onto the
// engine taxonomy. Foreign-key failures mean the client referenced a
// parent that does not exist; unique collisions past the import-date
// check should be unreachable under the locking protocol.
func translateWriteErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case database.IsForeignKeyViolation(err):
		return &ParentNotFoundError{Err: err}
	case database.IsUniqueViolation(err):
		return &ConcurrencyFault{Err: err}
	default:
		return err
	}
}

// insertImportRow appends the import record, translating a date
// collision into a client error. The caller holds the admission grant,
// which is what ties assigned ids to timestamp order.
func insertImportRow(ctx context.Context, tx *database.Tx, date time.Time) (int64, error) {
	id, err := tx.InsertImport(ctx, date)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return 0, validationf("an import with date %s already exists",
				date.UTC().Format(time.RFC3339Nano))
		}
		return 0, err
	}
	return id, nil
}
