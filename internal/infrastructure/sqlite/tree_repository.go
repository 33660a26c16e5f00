package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/zjrosen/connreg/internal/connection"
	"github.com/zjrosen/connreg/internal/log"
	"github.com/zjrosen/connreg/internal/registry"
)

const entryColumns = `id, kind, parent_id, position, name, params`

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TreeRepository implements registry.Backend on the entries table.
type TreeRepository struct {
	db *sql.DB
}

func newTreeRepository(db *sql.DB) *TreeRepository {
	return &TreeRepository{db: db}
}

// Ensure TreeRepository implements registry.Backend.
var _ registry.Backend = (*TreeRepository)(nil)

// scanEntry scans a row into an EntryModel.
func scanEntry(scanner interface{ Scan(...any) error }) (*EntryModel, error) {
	var m EntryModel
	err := scanner.Scan(&m.ID, &m.Kind, &m.ParentID, &m.Position, &m.Name, &m.Params)
	return &m, err
}

// Load reads the whole tree.
func (r *TreeRepository) Load(ctx context.Context) (*connection.Tree, error) {
	return loadTree(ctx, r.db)
}

// Update runs fn inside one immediate transaction. The tree is rewritten and
// the revision bumped only when fn reports a change.
func (r *TreeRepository) Update(ctx context.Context, fn registry.UpdateFunc) (*connection.Tree, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	tree, err := loadTree(ctx, tx)
	if err != nil {
		return nil, false, err
	}
	work := tree.Clone()

	changed, err := fn(work)
	if err != nil {
		return tree, false, err
	}
	if !changed {
		return tree, false, nil
	}

	if err := writeTree(ctx, tx, work); err != nil {
		return tree, false, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE registry_meta SET value = value + 1 WHERE key = 'revision'`); err != nil {
		return tree, false, fmt.Errorf("failed to bump revision: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return tree, false, fmt.Errorf("failed to commit tree: %w", err)
	}
	return work.Clone(), true, nil
}

// Revision returns how many updates have been committed.
func (r *TreeRepository) Revision(ctx context.Context) (int64, error) {
	var rev int64
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM registry_meta WHERE key = 'revision'`).Scan(&rev)
	if err != nil {
		return 0, fmt.Errorf("failed to read revision: %w", err)
	}
	return rev, nil
}

func loadTree(ctx context.Context, q queryer) (*connection.Tree, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+entryColumns+` FROM entries`)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	byParent := make(map[string][]*EntryModel)
	for rows.Next() {
		m, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		byParent[m.ParentID] = append(byParent[m.ParentID], m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}

	tree := connection.NewTree()
	if err := attachChildren(tree, byParent, ""); err != nil {
		return nil, err
	}
	for parent, orphans := range byParent {
		log.Warn(log.CatDB, "Ignoring entries with missing parent", "parent", parent, "count", len(orphans))
	}
	return tree, nil
}

// attachChildren appends parent's rows in position order and recurses into
// categories. Visited parents are removed from byParent so leftovers are
// orphans.
func attachChildren(tree *connection.Tree, byParent map[string][]*EntryModel, parent string) error {
	children := byParent[parent]
	delete(byParent, parent)
	slices.SortStableFunc(children, func(a, b *EntryModel) int { return a.Position - b.Position })

	for _, m := range children {
		switch m.Kind {
		case connection.KindCategory.String():
			if err := tree.AppendCategory(m.toCategory(), connection.ID(parent)); err != nil {
				return fmt.Errorf("failed to load category %s: %w", m.ID, err)
			}
			if err := attachChildren(tree, byParent, m.ID); err != nil {
				return err
			}
		case connection.KindHost.String():
			h, err := m.toHost()
			if err != nil {
				return err
			}
			if err := tree.AppendHost(h, connection.ID(parent)); err != nil {
				return fmt.Errorf("failed to load host %s: %w", m.ID, err)
			}
		default:
			log.Warn(log.CatDB, "Ignoring entry of unknown kind", "id", m.ID, "kind", m.Kind)
		}
	}
	return nil
}

func writeTree(ctx context.Context, tx *sql.Tx, tree *connection.Tree) error {
	models, err := toEntryModels(tree)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entries`); err != nil {
		return fmt.Errorf("failed to clear entries: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO entries (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, m := range models {
		if _, err := stmt.ExecContext(ctx, m.ID, m.Kind, m.ParentID, m.Position, m.Name, m.Params); err != nil {
			return fmt.Errorf("failed to insert entry %s: %w", m.ID, err)
		}
	}
	return nil
}
