// Package tree converts between flat node row sets and nested trees.
//
// The same parent-bucket structure serves both directions: assembling a
// queried row set into a response tree, and ordering a client-submitted
// subtree so parents precede children on insertion.
package tree

import (
	"drivemeta/internal/model"
)

// Assemble builds nested trees from an arbitrarily ordered, connected
// row set. Rows whose parent is absent from the set (or nil) become
// roots, returned in first-seen order. Folders always get a non-nil
// children list; files keep children nil.
func Assemble(rows []*model.Node) []*model.NodeTree {
	byParent := make(map[string][]*model.NodeTree)
	var parentOrder []string
	seen := make(map[string]bool, len(rows))

	for _, row := range rows {
		node := &model.NodeTree{
			ID:       row.ID,
			ParentID: row.ParentID,
			Type:     row.Type,
			URL:      row.URL,
			Size:     row.Size,
			Date:     model.NewDate(row.Date),
		}
		seen[row.ID] = true

		parent := ""
		if row.ParentID != nil {
			parent = *row.ParentID
		}
		if _, ok := byParent[parent]; !ok {
			parentOrder = append(parentOrder, parent)
		}
		byParent[parent] = append(byParent[parent], node)
	}

	// Bind children lists. Order within the row set is irrelevant: the
	// buckets were fully accumulated before any binding happens.
	for _, bucket := range byParent {
		for _, node := range bucket {
			if node.Type == model.TypeFolder {
				children := byParent[node.ID]
				if children == nil {
					children = []*model.NodeTree{}
				}
				node.Children = children
			}
		}
	}

	// Buckets keyed by an id that is not itself a row are "outer": their
	// members are the roots of the assembled forest.
	var roots []*model.NodeTree
	for _, parent := range parentOrder {
		if parent != "" && seen[parent] {
			continue
		}
		roots = append(roots, byParent[parent]...)
	}
	return roots
}

// FlattenParentFirst orders a batch of new folder items depth-first so
// that no child precedes its parent, making the rows safe to insert
// under the self-referencing parent foreign key. Items whose parent is
// outside the batch (an already-persisted folder, or a root) anchor the
// traversal.
func FlattenParentFirst(items []model.ImportItem) []model.ImportItem {
	inBatch := make(map[string]bool, len(items))
	for _, it := range items {
		inBatch[it.ID] = true
	}

	children := make(map[string][]model.ImportItem)
	var roots []model.ImportItem
	for _, it := range items {
		if it.ParentID != nil && inBatch[*it.ParentID] {
			children[*it.ParentID] = append(children[*it.ParentID], it)
			continue
		}
		roots = append(roots, it)
	}

	ordered := make([]model.ImportItem, 0, len(items))
	var walk func(it model.ImportItem)
	walk = func(it model.ImportItem) {
		ordered = append(ordered, it)
		for _, child := range children[it.ID] {
			walk(child)
		}
	}
	for _, root := range roots {
		walk(root)
	}
	return ordered
}
