// Package connection holds the registry's record model: hosts, categories and
// the ordered tree that groups them.
//
// The tree uses arena storage. Entities live in maps keyed by ID and the
// hierarchy is kept as parent links plus ordered child ID lists, which keeps the
// no-cycle and unique-ID invariants mechanically checkable (see Tree.Validate).
package connection

import (
	"errors"
	"maps"

	"github.com/google/uuid"
)

// ID identifies a host or category. IDs are unique across the whole tree.
type ID string

// RootID names the root collection. It is never the ID of an entity.
const RootID ID = ""

// NewID returns a fresh random identifier.
func NewID() ID {
	return ID(uuid.NewString())
}

// Kind distinguishes the two entity types.
type Kind int

const (
	KindHost Kind = iota
	KindCategory
)

func (k Kind) String() string {
	switch k {
	case KindHost:
		return "host"
	case KindCategory:
		return "category"
	default:
		return "unknown"
	}
}

// Tree errors
var (
	ErrEmptyID         = errors.New("entity id cannot be empty")
	ErrNotFound        = errors.New("entity not found")
	ErrParentNotFound  = errors.New("parent category not found")
	ErrDuplicateID     = errors.New("id already used by an entity of another kind")
	ErrCycle           = errors.New("category cannot be moved beneath itself")
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrReadOnly        = errors.New("provider-owned entries are read-only")
)

// Params holds protocol-specific connection parameters (protocol, address,
// port, user, ...). The registry treats it as an opaque record.
type Params map[string]string

// Clone returns an independent copy.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	return maps.Clone(p)
}

// Entry is a host or a category.
type Entry interface {
	EntryID() ID
	Kind() Kind
	Title() string
}

// Host is a leaf record describing one stored connection.
type Host struct {
	ID     ID     `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Params Params `json:"params,omitempty" yaml:"params,omitempty"`
}

func (h Host) EntryID() ID { return h.ID }

func (h Host) Kind() Kind { return KindHost }

func (h Host) Title() string { return h.Name }

// Param returns a single connection parameter, or "" when unset.
func (h Host) Param(key string) string { return h.Params[key] }

// Clone returns a copy that shares no mutable state with h.
func (h Host) Clone() Host {
	h.Params = h.Params.Clone()
	return h
}

// Category is an internal node grouping hosts and sub-categories.
// Provider marks categories populated by discovery; they reject mutations.
type Category struct {
	ID       ID     `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Provider bool   `json:"provider,omitempty" yaml:"provider,omitempty"`
}

func (c Category) EntryID() ID { return c.ID }

func (c Category) Kind() Kind { return KindCategory }

func (c Category) Title() string { return c.Name }

// Ensure both entity types satisfy Entry.
var (
	_ Entry = Host{}
	_ Entry = Category{}
)
