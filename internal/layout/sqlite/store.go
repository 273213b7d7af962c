// Package sqlite persists layout mappings in a sqlite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/openkbd/kbscand/internal/ime"
	"github.com/openkbd/kbscand/internal/input"
	"github.com/openkbd/kbscand/internal/layout"
	"github.com/openkbd/kbscand/internal/layout/sqlite/migrations"
)

type Store struct {
	db *sql.DB
}

func NewStore(filename string) (*Store, error) {
	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := migrations.Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const selectLayout = `
SELECT layout_descriptor, layout_label
FROM keyboard_layouts
WHERE device_descriptor = ? AND method = ? AND subtype = ?
`

func (s *Store) LayoutFor(dev input.Identity, method ime.MethodID, subtype ime.SubtypeID) (*layout.Layout, error) {
	row := s.db.QueryRowContext(context.Background(), selectLayout,
		dev.Descriptor, string(method), string(subtype))

	var l layout.Layout
	err := row.Scan(&l.Descriptor, &l.Label)
	switch {
	case err == sql.ErrNoRows:
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("sqlite select: %w", err)
	}
	return &l, nil
}

const upsertLayout = `
INSERT INTO keyboard_layouts (device_descriptor, method, subtype, layout_descriptor, layout_label)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (device_descriptor, method, subtype)
DO UPDATE SET layout_descriptor = excluded.layout_descriptor, layout_label = excluded.layout_label
`

func (s *Store) SetLayout(dev input.Identity, method ime.MethodID, subtype ime.SubtypeID, l layout.Layout) error {
	if _, err := s.db.ExecContext(context.Background(), upsertLayout,
		dev.Descriptor, string(method), string(subtype), l.Descriptor, l.Label); err != nil {
		return fmt.Errorf("sqlite upsert: %w", err)
	}
	return nil
}
