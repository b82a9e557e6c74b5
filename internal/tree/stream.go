package tree

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"drivemeta/internal/model"
)

// RowSource yields subtree rows in depth-first pre-order, parents
// before children, siblings grouped. Next returns (nil, nil) when the
// source is exhausted.
type RowSource interface {
	Next() (*model.Node, error)
}

// ErrEmptySource is returned by Stream when the source yields no rows.
var ErrEmptySource = errors.New("tree: empty row source")

// streamNode is NodeTree without the children field; Stream writes the
// children list by hand so the subtree never has to be held in memory.
type streamNode struct {
	ID       string         `json:"id"`
	ParentID *string        `json:"parentId"`
	Type     model.ItemType `json:"type"`
	URL      *string        `json:"url"`
	Size     int64          `json:"size"`
	Date     model.Date     `json:"date"`
}

// Stream writes the rows of src as a single nested JSON tree. The first
// row is the root; every later row must attach to a folder still open
// on the stack, which holds for any depth-first ordered subtree. Memory
// use is bounded by tree depth, not node count.
//
// Output is byte-for-byte what encoding/json would produce for the
// equivalent assembled NodeTree.
func Stream(w io.Writer, src RowSource) error {
	// Stack of open folder ids. An entry is open between writing its
	// `"children":[` and the matching `]}`.
	var stack []string
	needComma := false

	for {
		row, err := src.Next()
		if err != nil {
			return err
		}
		if row == nil {
			break
		}

		// Close folders until the row's parent is on top of the stack.
		// A nil parent (or a parent outside the subtree) drains it
		// entirely, which is only legal for the root row.
		for len(stack) > 0 && (row.ParentID == nil || stack[len(stack)-1] != *row.ParentID) {
			if _, err := io.WriteString(w, "]}"); err != nil {
				return err
			}
			stack = stack[:len(stack)-1]
			needComma = true
		}
		if len(stack) == 0 && needComma {
			return fmt.Errorf("tree: row %s does not attach to the streamed root", row.ID)
		}

		if needComma {
			if _, err := io.WriteString(w, ","); err != nil {
				return err
			}
		}

		head, err := json.Marshal(streamNode{
			ID:       row.ID,
			ParentID: row.ParentID,
			Type:     row.Type,
			URL:      row.URL,
			Size:     row.Size,
			Date:     model.NewDate(row.Date),
		})
		if err != nil {
			return err
		}
		// Drop the closing brace; the children field follows.
		if _, err := w.Write(head[:len(head)-1]); err != nil {
			return err
		}

		if row.Type == model.TypeFolder {
			if _, err := io.WriteString(w, `,"children":[`); err != nil {
				return err
			}
			stack = append(stack, row.ID)
			needComma = false
		} else {
			if _, err := io.WriteString(w, `,"children":null}`); err != nil {
				return err
			}
			needComma = true
		}
	}

	if len(stack) == 0 && !needComma {
		return ErrEmptySource
	}
	for range stack {
		if _, err := io.WriteString(w, "]}"); err != nil {
			return err
		}
	}
	return nil
}
