package disk

import (
	"context"
	"fmt"

	"drivemeta/internal/database"
	"drivemeta/internal/model"
)

// The history writer preserves each affected folder's pre-mutation row
// exactly once per import, tagged with the import that had been current
// for that row. The affected set is computed up front: seed folders
// (existent batch folders plus every old and new parent) expanded to
// their full ancestor closure over the rows as they stand before the
// mutation.

// folderHistorySeeds collects the seed set for an import batch:
// existent batch folder ids, every item's new parent, and every
// existent item's old parent. Newly created folders are excluded (no
// prior state to preserve), nil parents are dropped.
func folderHistorySeeds(items []model.ImportItem, oldFolderParents, oldFileParents map[string]*string) []string {
	newFolder := make(map[string]bool)
	for _, it := range items {
		if it.Type == model.TypeFolder {
			if _, exists := oldFolderParents[it.ID]; !exists {
				newFolder[it.ID] = true
			}
		}
	}

	var seeds []string
	seen := make(map[string]bool)
	add := func(id *string) {
		if id == nil || seen[*id] || newFolder[*id] {
			return
		}
		seen[*id] = true
		seeds = append(seeds, *id)
	}

	for _, it := range items {
		switch it.Type {
		case model.TypeFolder:
			if old, exists := oldFolderParents[it.ID]; exists {
				add(&it.ID)
				add(old)
			}
		case model.TypeFile:
			if old, exists := oldFileParents[it.ID]; exists {
				add(old)
			}
		}
		add(it.ParentID)
	}
	return seeds
}

// ancestorClosure expands seeds upward to the roots over the current
// rows, locking each newly discovered level through the lease before
// reading past it. Seeds must already be locked by the caller. The
// returned ids include the seeds themselves, in discovery order.
func ancestorClosure(ctx context.Context, q database.Queries, lease *Lease, seeds []string) ([]string, error) {
	var closure []string
	seen := make(map[string]bool, len(seeds))

	frontier := make([]string, 0, len(seeds))
	for _, id := range seeds {
		if !seen[id] {
			seen[id] = true
			frontier = append(frontier, id)
		}
	}

	for len(frontier) > 0 {
		closure = append(closure, frontier...)

		parents, err := q.FolderParents(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("expanding ancestor closure: %w", err)
		}

		var next []string
		for _, id := range frontier {
			parent, ok := parents[id]
			if !ok || parent == nil || seen[*parent] {
				continue
			}
			seen[*parent] = true
			next = append(next, *parent)
		}
		if err := lease.Extend(ctx, next...); err != nil {
			return nil, err
		}
		frontier = next
	}
	return closure, nil
}
