package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lynzrand/yuunagi/internal/storage"

	_ "modernc.org/sqlite"
)

// Store persists the path index, groups, categories and volume assignments
// inside a SQLite database. Every method commits atomically per logical
// operation; the WAL journal makes committed work survive interruption.
type Store struct {
	db *sql.DB
}

// Open initializes (or reuses) a SQLite database at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("database path cannot be empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Close releases the underlying database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS paths (
        path TEXT PRIMARY KEY,
        hash BLOB,
        kind INTEGER NOT NULL,
        size INTEGER NOT NULL DEFAULT 0,
        indexed_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS ix_paths_hash ON paths(hash);

CREATE TABLE IF NOT EXISTS category (
        id TEXT PRIMARY KEY,
        description TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS path_groups (
        prefix TEXT PRIMARY KEY,
        category TEXT REFERENCES category(id),
        compressible INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS ix_path_groups_category ON path_groups(category);

CREATE TABLE IF NOT EXISTS data_distribution (
        path_group TEXT REFERENCES path_groups(prefix),
        target_volume TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS ix_data_distribution_group ON data_distribution(path_group);
CREATE INDEX IF NOT EXISTS ix_data_distribution_volume ON data_distribution(target_volume);
`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}

// UpsertPath inserts or updates the entry for a single path.
func (s *Store) UpsertPath(ctx context.Context, entry storage.PathEntry) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO paths(path, hash, kind, size, indexed_at)
VALUES(?, ?, ?, ?, ?)
ON CONFLICT(path) DO UPDATE SET
        hash=excluded.hash,
        kind=excluded.kind,
        size=excluded.size,
        indexed_at=excluded.indexed_at
`, entry.Path, entry.Hash, int(entry.Kind), entry.Size, entry.IndexedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("upsert path %s: %w", entry.Path, err)
	}
	return nil
}

// GetPath retrieves the entry for a path. The boolean reports whether an
// entry exists.
func (s *Store) GetPath(ctx context.Context, path string) (storage.PathEntry, bool, error) {
	var (
		hash      []byte
		kind      int
		size      int64
		indexedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT hash, kind, size, indexed_at FROM paths WHERE path = ?
`, path).Scan(&hash, &kind, &size, &indexedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return storage.PathEntry{}, false, nil
	}
	if err != nil {
		return storage.PathEntry{}, false, fmt.Errorf("query path %s: %w", path, err)
	}

	return storage.PathEntry{
		Path:      path,
		Hash:      hash,
		Kind:      storage.EntryKind(kind),
		Size:      size,
		IndexedAt: time.Unix(0, indexedAt),
	}, true, nil
}

// CountByKind reports how many indexed entries exist per entry kind.
func (s *Store) CountByKind(ctx context.Context) (map[storage.EntryKind]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT kind, COUNT(*) FROM paths GROUP BY kind ORDER BY kind ASC
`)
	if err != nil {
		return nil, fmt.Errorf("count paths: %w", err)
	}
	defer rows.Close()

	counts := make(map[storage.EntryKind]int64)
	for rows.Next() {
		var (
			kind  int
			count int64
		)
		if scanErr := rows.Scan(&kind, &count); scanErr != nil {
			return nil, fmt.Errorf("scan count row: %w", scanErr)
		}
		counts[storage.EntryKind(kind)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate count rows: %w", err)
	}
	return counts, nil
}

// CreateCategory registers a category label, updating the description if
// the category already exists.
func (s *Store) CreateCategory(ctx context.Context, cat storage.Category) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO category(id, description) VALUES(?, ?)
ON CONFLICT(id) DO UPDATE SET description=excluded.description
`, cat.ID, cat.Description)
	if err != nil {
		return fmt.Errorf("create category %s: %w", cat.ID, err)
	}
	return nil
}

// RemoveCategory deletes a category. Groups in the category are kept but
// become uncategorized.
func (s *Store) RemoveCategory(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin remove category: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
UPDATE path_groups SET category = NULL WHERE category = ?
`, id); err != nil {
		return fmt.Errorf("unset category %s on groups: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM category WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete category %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit remove category %s: %w", id, err)
	}
	return nil
}

// ListCategories returns all categories ordered by id.
func (s *Store) ListCategories(ctx context.Context) ([]storage.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, description FROM category ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var cats []storage.Category
	for rows.Next() {
		var cat storage.Category
		if scanErr := rows.Scan(&cat.ID, &cat.Description); scanErr != nil {
			return nil, fmt.Errorf("scan category: %w", scanErr)
		}
		cats = append(cats, cat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return cats, nil
}

// CreatePathGroup registers a group owning every path under its prefix.
func (s *Store) CreatePathGroup(ctx context.Context, group storage.PathGroup) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO path_groups(prefix, category, compressible) VALUES(?, ?, ?)
`, group.Prefix, nullable(group.Category), boolToInt(group.Compressible))
	if err != nil {
		return fmt.Errorf("create path group %s: %w", group.Prefix, err)
	}
	return nil
}

// SetGroupCategory reassigns a group to a category. An empty category
// clears the association.
func (s *Store) SetGroupCategory(ctx context.Context, prefix, category string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE path_groups SET category = ? WHERE prefix = ?
`, nullable(category), prefix)
	if err != nil {
		return fmt.Errorf("set category on group %s: %w", prefix, err)
	}
	return nil
}

// SetGroupCompressible updates the compressibility flag of a group.
func (s *Store) SetGroupCompressible(ctx context.Context, prefix string, compressible bool) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE path_groups SET compressible = ? WHERE prefix = ?
`, boolToInt(compressible), prefix)
	if err != nil {
		return fmt.Errorf("set compressible on group %s: %w", prefix, err)
	}
	return nil
}

// GetPathGroup retrieves a group by its prefix.
func (s *Store) GetPathGroup(ctx context.Context, prefix string) (storage.PathGroup, bool, error) {
	var (
		category     sql.NullString
		compressible int
	)
	err := s.db.QueryRowContext(ctx, `
SELECT category, compressible FROM path_groups WHERE prefix = ?
`, prefix).Scan(&category, &compressible)

	if errors.Is(err, sql.ErrNoRows) {
		return storage.PathGroup{}, false, nil
	}
	if err != nil {
		return storage.PathGroup{}, false, fmt.Errorf("query path group %s: %w", prefix, err)
	}

	return storage.PathGroup{
		Prefix:       prefix,
		Category:     category.String,
		Compressible: compressible != 0,
	}, true, nil
}

// ListPathGroups returns groups ordered by prefix, optionally restricted
// to one category.
func (s *Store) ListPathGroups(ctx context.Context, category string) ([]storage.PathGroup, error) {
	query := `SELECT prefix, category, compressible FROM path_groups`
	args := []any{}
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY prefix ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query path groups: %w", err)
	}
	defer rows.Close()

	var groups []storage.PathGroup
	for rows.Next() {
		var (
			group        storage.PathGroup
			cat          sql.NullString
			compressible int
		)
		if scanErr := rows.Scan(&group.Prefix, &cat, &compressible); scanErr != nil {
			return nil, fmt.Errorf("scan path group: %w", scanErr)
		}
		group.Category = cat.String
		group.Compressible = compressible != 0
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate path groups: %w", err)
	}
	return groups, nil
}

// GroupSizes aggregates the total indexed byte size owned by each group
// prefix, in prefix order. A group owns every paths row whose path starts
// with its prefix; overlapping prefixes double-count by documented
// behavior. When category is non-empty only groups in that category are
// considered, and when unassignedOnly is set groups that already have a
// distribution row are excluded.
func (s *Store) GroupSizes(ctx context.Context, category string, unassignedOnly bool) ([]storage.GroupSize, error) {
	query := `
SELECT g.prefix, COALESCE(SUM(p.size), 0)
FROM path_groups g
LEFT JOIN paths p ON p.path LIKE g.prefix || '%'
`
	var (
		conds []string
		args  []any
	)
	if category != "" {
		conds = append(conds, `g.category = ?`)
		args = append(args, category)
	}
	if unassignedOnly {
		conds = append(conds, `NOT EXISTS (
SELECT 1 FROM data_distribution d WHERE d.path_group = g.prefix)`)
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	query += `
GROUP BY g.prefix
ORDER BY g.prefix ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query group sizes: %w", err)
	}
	defer rows.Close()

	var sizes []storage.GroupSize
	for rows.Next() {
		var size storage.GroupSize
		if scanErr := rows.Scan(&size.Prefix, &size.Size); scanErr != nil {
			return nil, fmt.Errorf("scan group size: %w", scanErr)
		}
		sizes = append(sizes, size)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group sizes: %w", err)
	}
	return sizes, nil
}

// AssignGroup records that a group is distributed onto a target volume,
// replacing any prior assignment of the same group.
func (s *Store) AssignGroup(ctx context.Context, group, volume string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin assign group: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
DELETE FROM data_distribution WHERE path_group = ?
`, group); err != nil {
		return fmt.Errorf("clear prior assignment of %s: %w", group, err)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO data_distribution(path_group, target_volume) VALUES(?, ?)
`, group, volume); err != nil {
		return fmt.Errorf("assign group %s to %s: %w", group, volume, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit assignment of %s: %w", group, err)
	}
	return nil
}

// ClearAssignments bulk-deletes assignments whose volume name matches the
// given SQL LIKE pattern, e.g. "photos_vol%".
func (s *Store) ClearAssignments(ctx context.Context, volumePattern string) error {
	if _, err := s.db.ExecContext(ctx, `
DELETE FROM data_distribution WHERE target_volume LIKE ?
`, volumePattern); err != nil {
		return fmt.Errorf("clear assignments matching %s: %w", volumePattern, err)
	}
	return nil
}

// GroupsOnVolume returns the group prefixes assigned to one volume, in
// prefix order. The disc-image builder consumes this listing.
func (s *Store) GroupsOnVolume(ctx context.Context, volume string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT path_group FROM data_distribution WHERE target_volume = ? ORDER BY path_group ASC
`, volume)
	if err != nil {
		return nil, fmt.Errorf("query groups on volume %s: %w", volume, err)
	}
	defer rows.Close()

	var groups []string
	for rows.Next() {
		var group string
		if scanErr := rows.Scan(&group); scanErr != nil {
			return nil, fmt.Errorf("scan volume group: %w", scanErr)
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate volume groups: %w", err)
	}
	return groups, nil
}

// Volumes returns the distinct volume names matching a SQL LIKE pattern,
// in name order. The packer uses it to continue volume numbering after a
// partially completed run.
func (s *Store) Volumes(ctx context.Context, pattern string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT DISTINCT target_volume FROM data_distribution
WHERE target_volume LIKE ? ORDER BY target_volume ASC
`, pattern)
	if err != nil {
		return nil, fmt.Errorf("query volumes matching %s: %w", pattern, err)
	}
	defer rows.Close()

	var volumes []string
	for rows.Next() {
		var volume string
		if scanErr := rows.Scan(&volume); scanErr != nil {
			return nil, fmt.Errorf("scan volume: %w", scanErr)
		}
		volumes = append(volumes, volume)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate volumes: %w", err)
	}
	return volumes, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
