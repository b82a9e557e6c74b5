package disk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"drivemeta/internal/model"
	"drivemeta/internal/tree"
)

// GetNode returns a node with its full descendant subtree assembled in
// memory. Large subtrees are better served by StreamNode.
func (s *Service) GetNode(ctx context.Context, id string) (*model.NodeTree, error) {
	kind, found, err := s.store.NodeKind(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &ItemNotFoundError{ID: id}
	}

	if kind == model.TypeFile {
		n, err := s.store.FileNode(ctx, id)
		if err != nil {
			return nil, err
		}
		return tree.Assemble([]*model.Node{n})[0], nil
	}

	rows, err := s.store.SubtreeRows(ctx, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var all []*model.Node
	for {
		n, err := rows.Next()
		if err != nil {
			return nil, err
		}
		if n == nil {
			break
		}
		all = append(all, n)
	}

	roots := tree.Assemble(all)
	if len(roots) != 1 {
		return nil, fmt.Errorf("subtree of %s assembled into %d roots", id, len(roots))
	}
	return roots[0], nil
}

// StreamNode writes the node's subtree as JSON directly from the
// depth-first row stream, holding O(depth) state instead of the whole
// subtree. Existence is checked before the first byte is written.
func (s *Service) StreamNode(ctx context.Context, id string, w io.Writer) error {
	kind, found, err := s.store.NodeKind(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return &ItemNotFoundError{ID: id}
	}

	if kind == model.TypeFile {
		n, err := s.store.FileNode(ctx, id)
		if err != nil {
			return err
		}
		body, err := json.Marshal(tree.Assemble([]*model.Node{n})[0])
		if err != nil {
			return err
		}
		_, err = w.Write(body)
		return err
	}

	rows, err := s.store.SubtreeRows(ctx, id)
	if err != nil {
		return err
	}
	defer rows.Close()
	return tree.Stream(w, rows)
}

// GetNodeHistory returns every version of the node whose import date
// falls in the half-open window [start, end). The node must currently
// exist; history of deleted nodes is gone with them.
func (s *Service) GetNodeHistory(ctx context.Context, id string, start, end model.Date) (*model.VersionList, error) {
	if start.IsZero() || end.IsZero() {
		return nil, validationf("dateStart and dateEnd are required")
	}
	if !start.Before(end.Time) {
		return nil, validationf("dateStart must precede dateEnd")
	}

	kind, found, err := s.store.NodeKind(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &ItemNotFoundError{ID: id}
	}

	versions, err := s.store.NodeHistory(ctx, kind, id, start.Time, end.Time)
	if err != nil {
		return nil, err
	}
	return versionList(versions), nil
}

// GetUpdates returns the latest version of every file last touched in
// the closed 24h window ending at date. Folders are excluded from the
// feed.
func (s *Service) GetUpdates(ctx context.Context, date model.Date) (*model.VersionList, error) {
	if date.IsZero() {
		return nil, validationf("date is required")
	}

	versions, err := s.store.FileUpdates(ctx, date.Add(-24*time.Hour), date.Time)
	if err != nil {
		return nil, err
	}
	return versionList(versions), nil
}

func versionList(versions []model.NodeVersion) *model.VersionList {
	list := &model.VersionList{Items: make([]model.VersionItem, 0, len(versions))}
	for _, v := range versions {
		list.Items = append(list.Items, model.Version(v))
	}
	return list
}
