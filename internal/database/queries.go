package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"drivemeta/internal/model"
)

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx, so
// the same queries serve both the read path and mutation transactions.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries implements the engine's SQL operations over a dbtx.
type Queries struct {
	q dbtx
}

// Contribution is one touched node's direct input to size propagation:
// its parent and its size at the moment of the query.
type Contribution struct {
	ID       string
	ParentID *string
	Size     int64
}

// NodeRow is one persisted node row destined for insert or update.
type NodeRow struct {
	ID       string
	ParentID *string
	URL      *string // files only
	Size     int64   // files: client value; folders: 0 on insert
	ImportID int64
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func idArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func nodeTable(kind model.ItemType) string {
	if kind == model.TypeFile {
		return "files"
	}
	return "folders"
}

func toUnix(t time.Time) int64 { return t.UTC().UnixNano() }

func fromUnix(n int64) time.Time { return time.Unix(0, n).UTC() }

func nullStr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// InsertImport appends a new import row and returns its assigned id.
// The unique index on date enforces the store-wide distinct-timestamp rule.
func (s Queries) InsertImport(ctx context.Context, date time.Time) (int64, error) {
	res, err := s.q.ExecContext(ctx,
		"INSERT INTO imports (date) VALUES (?)", toUnix(date))
	if err != nil {
		return 0, fmt.Errorf("inserting import: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading import id: %w", err)
	}
	return id, nil
}

// MaxImportDate returns the newest import date on record, or ok=false
// when no import exists yet.
func (s Queries) MaxImportDate(ctx context.Context) (time.Time, bool, error) {
	var date sql.NullInt64
	err := s.q.QueryRowContext(ctx, "SELECT MAX(date) FROM imports").Scan(&date)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("selecting max import date: %w", err)
	}
	if !date.Valid {
		return time.Time{}, false, nil
	}
	return fromUnix(date.Int64), true, nil
}

// NodeKind resolves which table holds id, if any.
func (s Queries) NodeKind(ctx context.Context, id string) (model.ItemType, bool, error) {
	for _, kind := range []model.ItemType{model.TypeFile, model.TypeFolder} {
		var one int
		err := s.q.QueryRowContext(ctx,
			"SELECT 1 FROM "+nodeTable(kind)+" WHERE id = ?", id).Scan(&one)
		if err == nil {
			return kind, true, nil
		}
		if err != sql.ErrNoRows {
			return "", false, fmt.Errorf("resolving node kind: %w", err)
		}
	}
	return "", false, nil
}

// SelectIDParents returns, for the subset of ids that exist in the kind's
// table, each id mapped to its current parent id.
func (s Queries) SelectIDParents(ctx context.Context, kind model.ItemType, ids []string) (map[string]*string, error) {
	out := make(map[string]*string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.q.QueryContext(ctx,
		"SELECT id, parent_id FROM "+nodeTable(kind)+" WHERE id IN ("+placeholders(len(ids))+")",
		idArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("selecting existent ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var parent sql.NullString
		if err := rows.Scan(&id, &parent); err != nil {
			return nil, fmt.Errorf("scanning existent id: %w", err)
		}
		out[id] = strPtr(parent)
	}
	return out, rows.Err()
}

// AnyIDExists reports whether any of ids is present in the kind's table.
func (s Queries) AnyIDExists(ctx context.Context, kind model.ItemType, ids []string) (bool, error) {
	if len(ids) == 0 {
		return false, nil
	}
	var one int
	err := s.q.QueryRowContext(ctx,
		"SELECT 1 FROM "+nodeTable(kind)+" WHERE id IN ("+placeholders(len(ids))+") LIMIT 1",
		idArgs(ids)...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking id existence: %w", err)
	}
	return true, nil
}

// FolderParents returns parent pointers for the given folder ids. Ids
// that do not exist are simply absent from the result.
func (s Queries) FolderParents(ctx context.Context, ids []string) (map[string]*string, error) {
	return s.SelectIDParents(ctx, model.TypeFolder, ids)
}

// SelectContributions reads (id, parent_id, size) for the given ids from
// the kind's table as it stands right now. Callers time this around the
// row mutations to capture old vs new values.
func (s Queries) SelectContributions(ctx context.Context, kind model.ItemType, ids []string) ([]Contribution, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.q.QueryContext(ctx,
		"SELECT id, parent_id, size FROM "+nodeTable(kind)+" WHERE id IN ("+placeholders(len(ids))+")",
		idArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("selecting size contributions: %w", err)
	}
	defer rows.Close()

	var out []Contribution
	for rows.Next() {
		var c Contribution
		var parent sql.NullString
		if err := rows.Scan(&c.ID, &parent, &c.Size); err != nil {
			return nil, fmt.Errorf("scanning contribution: %w", err)
		}
		c.ParentID = strPtr(parent)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ApplySizeDeltas adds each folder's accumulated delta to its persisted
// size and stamps the folder with the current import, in one statement.
func (s Queries) ApplySizeDeltas(ctx context.Context, deltas map[string]int64, importID int64) error {
	if len(deltas) == 0 {
		return nil
	}
	ids := make([]string, 0, len(deltas))
	for id := range deltas {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	b.WriteString("UPDATE folders SET size = size + CASE id")
	args := make([]any, 0, 3*len(ids)+1)
	for _, id := range ids {
		b.WriteString(" WHEN ? THEN ?")
		args = append(args, id, deltas[id])
	}
	b.WriteString(" END, import_id = ? WHERE id IN (")
	b.WriteString(placeholders(len(ids)))
	b.WriteString(")")
	args = append(args, importID)
	args = append(args, idArgs(ids)...)

	if _, err := s.q.ExecContext(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("applying size deltas: %w", err)
	}
	return nil
}

// InsertFolder inserts a new folder row with size 0; descendant sizes
// arrive via propagation.
func (s Queries) InsertFolder(ctx context.Context, row NodeRow) error {
	_, err := s.q.ExecContext(ctx,
		"INSERT INTO folders (id, parent_id, size, import_id) VALUES (?, ?, 0, ?)",
		row.ID, nullStr(row.ParentID), row.ImportID)
	if err != nil {
		return fmt.Errorf("inserting folder %s: %w", row.ID, err)
	}
	return nil
}

// InsertFile inserts a new file row.
func (s Queries) InsertFile(ctx context.Context, row NodeRow) error {
	_, err := s.q.ExecContext(ctx,
		"INSERT INTO files (id, parent_id, url, size, import_id) VALUES (?, ?, ?, ?, ?)",
		row.ID, nullStr(row.ParentID), nullStr(row.URL), row.Size, row.ImportID)
	if err != nil {
		return fmt.Errorf("inserting file %s: %w", row.ID, err)
	}
	return nil
}

// UpdateFolder rewrites an existing folder's parent and import stamp.
// Size is never client-supplied on update; it only moves via deltas.
func (s Queries) UpdateFolder(ctx context.Context, row NodeRow) error {
	_, err := s.q.ExecContext(ctx,
		"UPDATE folders SET parent_id = ?, import_id = ? WHERE id = ?",
		nullStr(row.ParentID), row.ImportID, row.ID)
	if err != nil {
		return fmt.Errorf("updating folder %s: %w", row.ID, err)
	}
	return nil
}

// UpdateFile rewrites an existing file row.
func (s Queries) UpdateFile(ctx context.Context, row NodeRow) error {
	_, err := s.q.ExecContext(ctx,
		"UPDATE files SET parent_id = ?, url = ?, size = ?, import_id = ? WHERE id = ?",
		nullStr(row.ParentID), nullStr(row.URL), row.Size, row.ImportID, row.ID)
	if err != nil {
		return fmt.Errorf("updating file %s: %w", row.ID, err)
	}
	return nil
}

// CopyFoldersToHistory preserves the current state of the given folders
// in the history log, tagged with the import that had been current for
// each row. The (import_id, folder_id) primary key guarantees at most
// one history row per folder per import.
func (s Queries) CopyFoldersToHistory(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO folder_history (import_id, folder_id, parent_id, size)
		 SELECT import_id, id, parent_id, size FROM folders
		 WHERE id IN (`+placeholders(len(ids))+`)`,
		idArgs(ids)...)
	if err != nil {
		return fmt.Errorf("writing folder history: %w", err)
	}
	return nil
}

// CopyFilesToHistory preserves the current state of the given files.
func (s Queries) CopyFilesToHistory(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO file_history (import_id, file_id, parent_id, url, size)
		 SELECT import_id, id, parent_id, url, size FROM files
		 WHERE id IN (`+placeholders(len(ids))+`)`,
		idArgs(ids)...)
	if err != nil {
		return fmt.Errorf("writing file history: %w", err)
	}
	return nil
}

// DeleteNode removes a node row. Deleting a folder cascades over its
// whole subtree and the subtree's history rows.
func (s Queries) DeleteNode(ctx context.Context, kind model.ItemType, id string) error {
	_, err := s.q.ExecContext(ctx,
		"DELETE FROM "+nodeTable(kind)+" WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting node %s: %w", id, err)
	}
	return nil
}

// FileNode reads one file row together with its import date.
func (s Queries) FileNode(ctx context.Context, id string) (*model.Node, error) {
	var n model.Node
	var parent, url sql.NullString
	var date int64
	err := s.q.QueryRowContext(ctx,
		`SELECT f.id, f.parent_id, f.url, f.size, f.import_id, i.date
		 FROM files f JOIN imports i ON i.id = f.import_id
		 WHERE f.id = ?`, id).
		Scan(&n.ID, &parent, &url, &n.Size, &n.ImportID, &date)
	if err != nil {
		return nil, fmt.Errorf("selecting file %s: %w", id, err)
	}
	n.ParentID = strPtr(parent)
	n.URL = strPtr(url)
	n.Type = model.TypeFile
	n.Date = fromUnix(date)
	return &n, nil
}

// subtreeQuery emits the folder rooted at ? and every descendant row in
// depth-first pre-order: each row's whole subtree is emitted before its
// next sibling. The path column uses the unit separator so sibling ids
// that are prefixes of one another cannot interleave subtrees.
const subtreeQuery = `
WITH RECURSIVE subtree(id, parent_id, size, import_id, path) AS (
	SELECT id, parent_id, size, import_id, id
	FROM folders WHERE id = ?
	UNION ALL
	SELECT f.id, f.parent_id, f.size, f.import_id, s.path || char(31) || f.id
	FROM folders f JOIN subtree s ON f.parent_id = s.id
)
SELECT n.id, n.parent_id, n.kind, n.url, n.size, n.date FROM (
	SELECT s.id, s.parent_id, 'FOLDER' AS kind, NULL AS url, s.size, i.date, s.path
	FROM subtree s JOIN imports i ON i.id = s.import_id
	UNION ALL
	SELECT f.id, f.parent_id, 'FILE', f.url, f.size, i.date, s.path || char(31) || f.id
	FROM files f
	JOIN subtree s ON f.parent_id = s.id
	JOIN imports i ON i.id = f.import_id
) n ORDER BY n.path`

// NodeRows streams node rows from a query one at a time.
type NodeRows struct {
	rows *sql.Rows
}

// Next returns the next row, or (nil, nil) once the source is exhausted.
func (r *NodeRows) Next() (*model.Node, error) {
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	var n model.Node
	var parent, url sql.NullString
	var kind string
	var date int64
	if err := r.rows.Scan(&n.ID, &parent, &kind, &url, &n.Size, &date); err != nil {
		return nil, fmt.Errorf("scanning subtree row: %w", err)
	}
	n.ParentID = strPtr(parent)
	n.URL = strPtr(url)
	n.Type = model.ItemType(kind)
	n.Date = fromUnix(date)
	return &n, nil
}

// Close releases the underlying cursor.
func (r *NodeRows) Close() error { return r.rows.Close() }

// SubtreeRows opens a depth-first pre-ordered stream over the folder
// rooted at id and all its descendants. The caller must Close it.
func (s Queries) SubtreeRows(ctx context.Context, id string) (*NodeRows, error) {
	rows, err := s.q.QueryContext(ctx, subtreeQuery, id)
	if err != nil {
		return nil, fmt.Errorf("selecting subtree of %s: %w", id, err)
	}
	return &NodeRows{rows: rows}, nil
}

// NodeHistory returns every version of a node (current row unioned with
// its history rows) whose import date falls in [start, end).
func (s Queries) NodeHistory(ctx context.Context, kind model.ItemType, id string, start, end time.Time) ([]model.NodeVersion, error) {
	var query string
	if kind == model.TypeFile {
		query = `
		SELECT u.id, u.parent_id, u.url, u.size, i.date FROM (
			SELECT import_id, id, parent_id, url, size FROM files WHERE id = ?
			UNION ALL
			SELECT import_id, file_id, parent_id, url, size FROM file_history WHERE file_id = ?
		) u JOIN imports i ON i.id = u.import_id
		WHERE i.date >= ? AND i.date < ?`
	} else {
		query = `
		SELECT u.id, u.parent_id, NULL, u.size, i.date FROM (
			SELECT import_id, id, parent_id, size FROM folders WHERE id = ?
			UNION ALL
			SELECT import_id, folder_id, parent_id, size FROM folder_history WHERE folder_id = ?
		) u JOIN imports i ON i.id = u.import_id
		WHERE i.date >= ? AND i.date < ?`
	}

	rows, err := s.q.QueryContext(ctx, query, id, id, toUnix(start), toUnix(end))
	if err != nil {
		return nil, fmt.Errorf("selecting history of %s: %w", id, err)
	}
	defer rows.Close()

	return scanVersions(rows, kind)
}

// FileUpdates returns the most recent version of every file whose last
// touch falls in [start, end] (closed interval), one row per file id.
// Folders are excluded from the feed by design.
func (s Queries) FileUpdates(ctx context.Context, start, end time.Time) ([]model.NodeVersion, error) {
	const query = `
	WITH d AS (
		SELECT u.id, u.parent_id, u.url, u.size, i.date FROM (
			SELECT import_id, id, parent_id, url, size FROM files
			UNION ALL
			SELECT import_id, file_id, parent_id, url, size FROM file_history
		) u JOIN imports i ON i.id = u.import_id
		WHERE i.date >= ? AND i.date <= ?
	),
	m AS (SELECT id, MAX(date) AS date FROM d GROUP BY id)
	SELECT DISTINCT d.id, d.parent_id, d.url, d.size, d.date
	FROM d JOIN m ON d.id = m.id AND d.date = m.date`

	rows, err := s.q.QueryContext(ctx, query, toUnix(start), toUnix(end))
	if err != nil {
		return nil, fmt.Errorf("selecting file updates: %w", err)
	}
	defer rows.Close()

	return scanVersions(rows, model.TypeFile)
}

func scanVersions(rows *sql.Rows, kind model.ItemType) ([]model.NodeVersion, error) {
	var out []model.NodeVersion
	for rows.Next() {
		var v model.NodeVersion
		var parent, url sql.NullString
		var date int64
		if err := rows.Scan(&v.ID, &parent, &url, &v.Size, &date); err != nil {
			return nil, fmt.Errorf("scanning version row: %w", err)
		}
		v.ParentID = strPtr(parent)
		v.URL = strPtr(url)
		v.Type = kind
		v.Date = fromUnix(date)
		out = append(out, v)
	}
	return out, rows.Err()
}
