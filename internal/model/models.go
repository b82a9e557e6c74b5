package model

import (
	"fmt"
	"time"
)

// ItemType discriminates the two node kinds stored in the tree.
type ItemType string

const (
	TypeFile   ItemType = "FILE"
	TypeFolder ItemType = "FOLDER"
)

// Valid reports whether t is one of the two known kinds.
func (t ItemType) Valid() bool {
	return t == TypeFile || t == TypeFolder
}

// Node is a current row of the tree, either a file or a folder.
// Folder sizes are engine-maintained (sum of descendant file sizes)
// and never client-supplied.
type Node struct {
	ID       string
	ParentID *string  // nil for roots
	Type     ItemType
	URL      *string // files only
	Size     int64
	ImportID int64     // import that last wrote this row
	Date     time.Time // that import's timestamp
}

// Import is one atomically-applied batch of upserts, or one delete.
// Ids are assigned in strictly increasing timestamp order.
type Import struct {
	ID   int64
	Date time.Time
}

// NodeVersion is one historical (or current) state of a node, as
// returned by the history and updates feeds.
type NodeVersion struct {
	ID       string
	ParentID *string
	Type     ItemType
	URL      *string
	Size     int64
	Date     time.Time
}

// ImportItem is one upsert in an import batch, already type-checked by
// the transport layer but not yet validated against engine rules.
type ImportItem struct {
	ID       string   `json:"id" validate:"required"`
	ParentID *string  `json:"parentId"`
	Type     ItemType `json:"type" validate:"required,oneof=FILE FOLDER"`
	URL      *string  `json:"url" validate:"omitempty,min=1,max=255"`
	Size     *int64   `json:"size"`
}

// ImportRequest is the payload of an Apply Import operation.
type ImportRequest struct {
	Items      []ImportItem `json:"items" validate:"dive"`
	UpdateDate Date         `json:"updateDate" validate:"required"`
}

// NodeTree is a node with its subtree attached, the shape returned by
// Get Node. Folders always carry a children list (possibly empty);
// files serialize children as null.
type NodeTree struct {
	ID       string      `json:"id"`
	ParentID *string     `json:"parentId"`
	Type     ItemType    `json:"type"`
	URL      *string     `json:"url"`
	Size     int64       `json:"size"`
	Date     Date        `json:"date"`
	Children []*NodeTree `json:"children"`
}

// VersionList wraps history/updates feed items.
type VersionList struct {
	Items []VersionItem `json:"items"`
}

// VersionItem is the wire shape of a NodeVersion.
type VersionItem struct {
	ID       string   `json:"id"`
	ParentID *string  `json:"parentId"`
	Type     ItemType `json:"type"`
	URL      *string  `json:"url"`
	Size     int64    `json:"size"`
	Date     Date     `json:"date"`
}

// Date is a timestamp that must be timezone-qualified on the wire.
// It marshals as RFC 3339 in UTC.
type Date struct {
	time.Time
}

// NewDate wraps t as a wire date.
func NewDate(t time.Time) Date { return Date{Time: t} }

// ParseDate parses an RFC 3339 timestamp. Timestamps without an
// explicit offset (or Z) are rejected, which is exactly the
// timezone-qualified requirement.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{Time: t}, nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.UTC().Format(time.RFC3339Nano) + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("invalid date literal %s", b)
	}
	parsed, err := ParseDate(string(b[1 : len(b)-1]))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Version converts a NodeVersion to its wire shape.
func Version(v NodeVersion) VersionItem {
	return VersionItem{
		ID:       v.ID,
		ParentID: v.ParentID,
		Type:     v.Type,
		URL:      v.URL,
		Size:     v.Size,
		Date:     NewDate(v.Date),
	}
}
