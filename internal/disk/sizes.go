package disk

import (
	"context"
	"fmt"

	"drivemeta/internal/database"
)

// Size propagation runs in two phases around the row mutations: SUB
// removes every existent batch row's contribution from its old ancestor
// chain, ADD applies every batch row's new contribution to its new
// chain. The phases are never merged; a folder sitting on both chains
// nets out on its own.

const (
	signSub int64 = -1
	signAdd int64 = 1
)

// propagate walks the direct contributions upward and returns the net
// delta per folder id.
//
// exclude holds folder ids that receive their accumulated delta but do
// not forward it to their own parent. It is set during SUB to the
// existent batch folders: such a folder's own contribution (its full
// old size, descendants included) is already attached to its old
// parent, so forwarding a departing descendant's delta through it would
// subtract that descendant twice.
func propagate(ctx context.Context, q database.Queries, contribs []database.Contribution, sign int64, exclude map[string]bool) (map[string]int64, error) {
	pending := make(map[string]int64)
	for _, c := range contribs {
		if c.ParentID == nil {
			continue
		}
		pending[*c.ParentID] += sign * c.Size
	}

	totals := make(map[string]int64)
	for len(pending) > 0 {
		frontier := make([]string, 0, len(pending))
		for id := range pending {
			frontier = append(frontier, id)
		}
		parents, err := q.FolderParents(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("walking ancestor chain: %w", err)
		}

		next := make(map[string]int64)
		for id, delta := range pending {
			totals[id] += delta
			if exclude[id] {
				continue
			}
			parent, ok := parents[id]
			if !ok || parent == nil {
				continue
			}
			next[*parent] += delta
		}
		pending = next
	}
	return totals, nil
}
