package keys

import (
	"testing"

	"github.com/charmbracelet/bubbles/key"
	"github.com/stretchr/testify/require"
)

func TestDefaultKeyMap_KeyAssignments(t *testing.T) {
	km := DefaultKeyMap()

	tests := []struct {
		name     string
		binding  key.Binding
		expected []string
	}{
		{"Up uses k and up", km.Up, []string{"k", "up"}},
		{"Down uses j and down", km.Down, []string{"j", "down"}},
		{"Collapse uses h and left", km.Collapse, []string{"h", "left"}},
		{"Expand uses l and right", km.Expand, []string{"l", "right"}},
		{"FocusFilter uses slash", km.FocusFilter, []string{"/"}},
		{"ClearFilter uses esc", km.ClearFilter, []string{"esc"}},
		{"Quit uses q and ctrl+c", km.Quit, []string{"q", "ctrl+c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, tt.binding.Keys())
		})
	}
}

func TestDefaultKeyMap_HelpText(t *testing.T) {
	km := DefaultKeyMap()

	for _, group := range km.FullHelp() {
		for _, b := range group {
			help := b.Help()
			require.NotEmpty(t, help.Key, "every binding needs help key text")
			require.NotEmpty(t, help.Desc, "every binding needs a description")
		}
	}
}

func TestKeyMap_ShortHelp(t *testing.T) {
	km := DefaultKeyMap()

	short := km.ShortHelp()
	require.Len(t, short, 3)
	require.Equal(t, "/", short[0].Help().Key)
}
