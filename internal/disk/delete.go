package disk

import (
	"context"

	"drivemeta/internal/database"
	"drivemeta/internal/model"
)

// DeleteNode removes a node and, for folders, the entire subtree under
// it. Descendants vanish together with their history; only the node's
// ancestors get history rows and size adjustments. The delete inserts
// its own import row to anchor provenance and timestamp ordering.
func (s *Service) DeleteNode(ctx context.Context, id string, date model.Date) error {
	if id == "" {
		validationRejections.Inc()
		return validationf("node id is required")
	}
	if date.IsZero() {
		validationRejections.Inc()
		return validationf("date is required")
	}

	start := s.clock.Now()
	ticket, err := s.queue.Enter(ctx, date.Time)
	if err != nil {
		if IsValidation(err) {
			validationRejections.Inc()
		}
		return err
	}
	released := false
	release := func() {
		if !released {
			released = true
			ticket.Release()
		}
	}
	defer release()

	lease := s.locker.NewLease()
	defer lease.Release()

	err = s.store.InTx(ctx, func(tx *database.Tx) error {
		if err := lease.Extend(ctx, id); err != nil {
			return err
		}

		kind, found, err := tx.NodeKind(ctx, id)
		if err != nil {
			return err
		}
		if !found {
			return &ItemNotFoundError{ID: id}
		}

		contribs, err := tx.SelectContributions(ctx, kind, []string{id})
		if err != nil {
			return err
		}

		var seeds []string
		for _, c := range contribs {
			if c.ParentID != nil {
				seeds = append(seeds, *c.ParentID)
			}
		}
		if err := lease.Extend(ctx, seeds...); err != nil {
			return err
		}
		closure, err := ancestorClosure(ctx, tx.Queries, lease, seeds)
		if err != nil {
			return err
		}

		importID, err := insertImportRow(ctx, tx, date.Time)
		if err != nil {
			return err
		}
		release()

		if err := tx.CopyFoldersToHistory(ctx, closure); err != nil {
			return translateWriteErr(err)
		}

		deltas, err := propagate(ctx, tx.Queries, contribs, signSub, nil)
		if err != nil {
			return err
		}
		if err := tx.ApplySizeDeltas(ctx, deltas, importID); err != nil {
			return err
		}

		return tx.DeleteNode(ctx, kind, id)
	})
	if err != nil {
		if IsValidation(err) {
			validationRejections.Inc()
		}
		return err
	}

	deletesApplied.Inc()
	s.logger.Info("node deleted", "id", id, "date", date.Time,
		"elapsed", s.clock.Now().Sub(start))
	return nil
}
