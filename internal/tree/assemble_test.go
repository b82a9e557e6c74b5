package tree

import (
	"testing"
	"time"

	"drivemeta/internal/model"
)

func strp(s string) *string { return &s }

func row(id string, parent *string, typ model.ItemType, size int64) *model.Node {
	var url *string
	if typ == model.TypeFile {
		url = strp("/store/" + id)
	}
	return &model.Node{
		ID:       id,
		ParentID: parent,
		Type:     typ,
		URL:      url,
		Size:     size,
		Date:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestAssemble(t *testing.T) {
	t.Run("nests rows regardless of input order", func(t *testing.T) {
		rows := []*model.Node{
			row("leaf", strp("sub"), model.TypeFile, 10),
			row("root", nil, model.TypeFolder, 10),
			row("sub", strp("root"), model.TypeFolder, 10),
		}

		roots := Assemble(rows)
		if len(roots) != 1 {
			t.Fatalf("expected 1 root, got %d", len(roots))
		}
		root := roots[0]
		if root.ID != "root" || len(root.Children) != 1 {
			t.Fatalf("unexpected root %q with %d children", root.ID, len(root.Children))
		}
		sub := root.Children[0]
		if sub.ID != "sub" || len(sub.Children) != 1 || sub.Children[0].ID != "leaf" {
			t.Fatalf("unexpected subtree under %q", sub.ID)
		}
	})

	t.Run("empty folder gets empty children, file gets nil", func(t *testing.T) {
		roots := Assemble([]*model.Node{
			row("dir", nil, model.TypeFolder, 0),
			row("f", nil, model.TypeFile, 7),
		})
		if len(roots) != 2 {
			t.Fatalf("expected 2 roots, got %d", len(roots))
		}
		if roots[0].Children == nil || len(roots[0].Children) != 0 {
			t.Errorf("empty folder children = %v, want []", roots[0].Children)
		}
		if roots[1].Children != nil {
			t.Errorf("file children = %v, want nil", roots[1].Children)
		}
	})

	t.Run("row with parent outside the set is a root", func(t *testing.T) {
		roots := Assemble([]*model.Node{
			row("orphan", strp("elsewhere"), model.TypeFolder, 0),
		})
		if len(roots) != 1 || roots[0].ID != "orphan" {
			t.Fatalf("expected orphan as root, got %v", roots)
		}
	})

	t.Run("no rows yields no roots", func(t *testing.T) {
		if roots := Assemble(nil); len(roots) != 0 {
			t.Fatalf("expected no roots, got %d", len(roots))
		}
	})
}

func TestFlattenParentFirst(t *testing.T) {
	items := []model.ImportItem{
		{ID: "c", ParentID: strp("b"), Type: model.TypeFolder},
		{ID: "a", ParentID: nil, Type: model.TypeFolder},
		{ID: "b", ParentID: strp("a"), Type: model.TypeFolder},
		{ID: "x", ParentID: strp("persisted"), Type: model.TypeFolder},
	}

	ordered := FlattenParentFirst(items)
	if len(ordered) != len(items) {
		t.Fatalf("expected %d items, got %d", len(items), len(ordered))
	}

	pos := make(map[string]int, len(ordered))
	for i, it := range ordered {
		pos[it.ID] = i
	}
	if !(pos["a"] < pos["b"] && pos["b"] < pos["c"]) {
		t.Errorf("parent-first order violated: %v", pos)
	}
	if _, ok := pos["x"]; !ok {
		t.Errorf("item with out-of-batch parent was dropped")
	}
}
