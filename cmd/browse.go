package cmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/zjrosen/connreg/internal/presentation"
	"github.com/zjrosen/connreg/internal/registry"
	"github.com/zjrosen/connreg/internal/ui/browser"
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse the registry interactively",
	Long: `Open an outline of the registry that follows changes made by other
applications. Press / to filter hosts by name and enter on a host to print it
and exit.`,
	Args: cobra.NoArgs,
	RunE: runBrowse,
}

func runBrowse(cmd *cobra.Command, args []string) error {
	return withRegistry(cmd.Context(), func(store *registry.Store) error {
		model := browser.New(cmd.Context(), store)
		p := tea.NewProgram(
			model,
			tea.WithAltScreen(),
			tea.WithContext(cmd.Context()),
		)
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("running program: %w", err)
		}

		h, ok := model.Selected()
		if !ok {
			return nil
		}
		return formatter(cmd).FormatResult(presentation.FromHost(h), hostLine(h.Name, presentation.Target(h)))
	})
}

func hostLine(name, target string) string {
	if target == "" {
		return name
	}
	return name + "\t" + target
}

func init() {
	rootCmd.AddCommand(browseCmd)
}
