package disk

import (
	"context"

	"drivemeta/internal/database"
	"drivemeta/internal/model"
	"drivemeta/internal/tree"
)

// ApplyImport applies one batch of node upserts as a single atomic
// import: admission by claimed timestamp, branch locks over everything
// the batch touches, one history row per affected folder, then the
// subtract/upsert/add sequence that keeps folder sizes equal to the sum
// of their descendant files.
func (s *Service) ApplyImport(ctx context.Context, req *model.ImportRequest) error {
	if err := validateImport(req); err != nil {
		validationRejections.Inc()
		return err
	}
	start := s.clock.Now()

	ticket, err := s.queue.Enter(ctx, req.UpdateDate.Time)
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
		var folderIDs, fileIDs []string
		lockIDs := make([]string, 0, 2*len(req.Items))
		for _, it := range req.Items {
			lockIDs = append(lockIDs, it.ID)
			if it.ParentID != nil {
				lockIDs = append(lockIDs, *it.ParentID)
			}
			if it.Type == model.TypeFolder {
				folderIDs = append(folderIDs, it.ID)
			} else {
				fileIDs = append(fileIDs, it.ID)
			}
		}
		// Locks come before the first read so the transaction's
		// snapshot cannot predate them.
		if err := lease.Extend(ctx, lockIDs...); err != nil {
			return err
		}

		// Type is immutable: a batch id may not switch kinds.
		if collides, err := tx.AnyIDExists(ctx, model.TypeFile, folderIDs); err != nil {
			return err
		} else if collides {
			return validationf("a folder id in the batch already names a file")
		}
		if collides, err := tx.AnyIDExists(ctx, model.TypeFolder, fileIDs); err != nil {
			return err
		} else if collides {
			return validationf("a file id in the batch already names a folder")
		}

		oldFolderParents, err := tx.SelectIDParents(ctx, model.TypeFolder, folderIDs)
		if err != nil {
			return err
		}
		oldFileParents, err := tx.SelectIDParents(ctx, model.TypeFile, fileIDs)
		if err != nil {
			return err
		}

		seeds := folderHistorySeeds(req.Items, oldFolderParents, oldFileParents)
		if err := lease.Extend(ctx, seeds...); err != nil {
			return err
		}
		closure, err := ancestorClosure(ctx, tx.Queries, lease, seeds)
		if err != nil {
			return err
		}

		importID, err := insertImportRow(ctx, tx, req.UpdateDate.Time)
		if err != nil {
			return err
		}
		// Locks are held and the import id is assigned; ordering
		// protection is no longer needed, let the next ticket in.
		release()

		if err := tx.CopyFoldersToHistory(ctx, closure); err != nil {
			return translateWriteErr(err)
		}
		existFileIDs := existingOf(fileIDs, oldFileParents)
		if err := tx.CopyFilesToHistory(ctx, existFileIDs); err != nil {
			return translateWriteErr(err)
		}

		existFolderIDs := existingOf(folderIDs, oldFolderParents)
		subContribs, err := tx.SelectContributions(ctx, model.TypeFile, existFileIDs)
		if err != nil {
			return err
		}
		folderContribs, err := tx.SelectContributions(ctx, model.TypeFolder, existFolderIDs)
		if err != nil {
			return err
		}
		subContribs = append(subContribs, folderContribs...)

		exclude := make(map[string]bool, len(existFolderIDs))
		for _, id := range existFolderIDs {
			exclude[id] = true
		}
		subDeltas, err := propagate(ctx, tx.Queries, subContribs, signSub, exclude)
		if err != nil {
			return err
		}
		if err := tx.ApplySizeDeltas(ctx, subDeltas, importID); err != nil {
			return err
		}

		if err := s.upsertRows(ctx, tx, req.Items, oldFolderParents, oldFileParents, importID); err != nil {
			return err
		}

		addContribs, err := tx.SelectContributions(ctx, model.TypeFile, fileIDs)
		if err != nil {
			return err
		}
		folderContribs, err = tx.SelectContributions(ctx, model.TypeFolder, folderIDs)
		if err != nil {
			return err
		}
		addContribs = append(addContribs, folderContribs...)

		addDeltas, err := propagate(ctx, tx.Queries, addContribs, signAdd, nil)
		if err != nil {
			return err
		}
		return tx.ApplySizeDeltas(ctx, addDeltas, importID)
	})
	if err != nil {
		if IsValidation(err) {
			validationRejections.Inc()
		}
		return err
	}

	importsApplied.Inc()
	s.logger.Info("import applied",
		"date", req.UpdateDate.Time, "items", len(req.Items),
		"elapsed", s.clock.Now().Sub(start))
	return nil
}

// upsertRows writes the batch: new folders parent-before-child, then
// new files, then updates to existent rows. Folder sizes are never
// written here; they move only through size deltas.
func (s *Service) upsertRows(ctx context.Context, tx *database.Tx, items []model.ImportItem, oldFolderParents, oldFileParents map[string]*string, importID int64) error {
	var newFolders []model.ImportItem
	for _, it := range items {
		if it.Type != model.TypeFolder {
			continue
		}
		if _, exists := oldFolderParents[it.ID]; !exists {
			newFolders = append(newFolders, it)
		}
	}
	for _, it := range tree.FlattenParentFirst(newFolders) {
		row := database.NodeRow{ID: it.ID, ParentID: it.ParentID, ImportID: importID}
		if err := tx.InsertFolder(ctx, row); err != nil {
			return translateWriteErr(err)
		}
	}

	for _, it := range items {
		row := database.NodeRow{ID: it.ID, ParentID: it.ParentID, ImportID: importID}
		switch it.Type {
		case model.TypeFile:
			row.URL = it.URL
			row.Size = *it.Size
			var err error
			if _, exists := oldFileParents[it.ID]; exists {
				err = tx.UpdateFile(ctx, row)
			} else {
				err = tx.InsertFile(ctx, row)
			}
			if err != nil {
				return translateWriteErr(err)
			}
		case model.TypeFolder:
			if _, exists := oldFolderParents[it.ID]; exists {
				if err := tx.UpdateFolder(ctx, row); err != nil {
					return translateWriteErr(err)
				}
			}
		}
	}
	return nil
}

// existingOf filters ids to those present in the parents map, keeping
// batch order.
func existingOf(ids []string, parents map[string]*string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := parents[id]; ok {
			out = append(out, id)
		}
	}
	return out
}
