package testutil

import (
	"strconv"

	"github.com/zjrosen/connreg/internal/connection"
)

// EntryOption configures an entry during builder setup.
type EntryOption func(*entryData)

// Name sets the display name. The default name is the ID.
func Name(name string) EntryOption {
	return func(e *entryData) { e.name = name }
}

// In places the entry under the category with the given ID.
func In(parent string) EntryOption {
	return func(e *entryData) { e.parent = connection.ID(parent) }
}

// Param sets one connection parameter. Ignored for categories.
func Param(key, value string) EntryOption {
	return func(e *entryData) {
		if e.params == nil {
			e.params = make(map[string]string)
		}
		e.params[key] = value
	}
}

// Protocol sets the "protocol" parameter.
func Protocol(p string) EntryOption {
	return Param("protocol", p)
}

// Address sets the "address" parameter.
func Address(addr string) EntryOption {
	return Param("address", addr)
}

// Port sets the "port" parameter.
func Port(port int) EntryOption {
	return Param("port", strconv.Itoa(port))
}

// User sets the "user" parameter.
func User(user string) EntryOption {
	return Param("user", user)
}
