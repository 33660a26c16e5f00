package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/zjrosen/connreg/internal/connection"
	"github.com/zjrosen/connreg/internal/notify"
)

// EntryModel represents a row of the entries table. Rows reference their
// parent by ID and carry their position among siblings.
type EntryModel struct {
	ID       string
	Kind     string
	ParentID string
	Position int
	Name     string
	Params   *string // nullable, JSON encoded
}

// ChangeModel represents a row of the registry_changes table.
type ChangeModel struct {
	ID     int64
	Sender string
	Seq    int64
	SentAt int64 // Unix nanoseconds
}

// toEntryModels flattens tree into rows in pre-order, so every parent row
// precedes its children.
func toEntryModels(tree *connection.Tree) ([]EntryModel, error) {
	models := make([]EntryModel, 0, tree.Len())
	var walkErr error
	tree.Walk(func(e connection.Entry, _ int) bool {
		parent, _ := tree.Parent(e.EntryID())
		m := EntryModel{
			ID:       string(e.EntryID()),
			Kind:     e.Kind().String(),
			ParentID: string(parent),
			Position: tree.IndexOf(e.EntryID()),
			Name:     e.Title(),
		}
		if h, ok := e.(connection.Host); ok && len(h.Params) > 0 {
			data, err := json.Marshal(h.Params)
			if err != nil {
				walkErr = fmt.Errorf("encoding params of %s: %w", h.ID, err)
				return false
			}
			s := string(data)
			m.Params = &s
		}
		models = append(models, m)
		return true
	})
	return models, walkErr
}

// toHost converts a host row to the domain type.
func (m *EntryModel) toHost() (connection.Host, error) {
	h := connection.Host{ID: connection.ID(m.ID), Name: m.Name}
	if m.Params != nil && *m.Params != "" {
		if err := json.Unmarshal([]byte(*m.Params), &h.Params); err != nil {
			return connection.Host{}, fmt.Errorf("decoding params of %s: %w", m.ID, err)
		}
	}
	return h, nil
}

func (m *EntryModel) toCategory() connection.Category {
	return connection.Category{ID: connection.ID(m.ID), Name: m.Name}
}

func toChangeModel(n notify.Notice) ChangeModel {
	return ChangeModel{
		Sender: n.Sender,
		Seq:    int64(n.Seq), //nolint:gosec // G115: sequence numbers stay far below MaxInt64
		SentAt: n.SentAt.UnixNano(),
	}
}

func (m *ChangeModel) toRecord() notify.Record {
	return notify.Record{
		ID: m.ID,
		Notice: notify.Notice{
			Sender: m.Sender,
			Seq:    uint64(m.Seq), //nolint:gosec // G115: stored from a uint64
			SentAt: time.Unix(0, m.SentAt).UTC(),
		},
	}
}
