package cmd

import (
	"github.com/spf13/cobra"

	"github.com/zjrosen/connreg/internal/connection"
	"github.com/zjrosen/connreg/internal/presentation"
	"github.com/zjrosen/connreg/internal/registry"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the registry as a tree",
	Long: `Show every category and host in stored order. The read-only discovered
category is always listed last.

Examples:
  # Print the outline
  connreg list

  # Parse specific fields with jq
  connreg list -o json | jq '.[].name'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(cmd.Context(), func(store *registry.Store) error {
			tree, _ := store.Snapshot()
			return formatter(cmd).FormatEntries(presentation.FromTree(tree, connection.RootID))
		})
	},
}

var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "List every host in outline order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(cmd.Context(), func(store *registry.Store) error {
			return formatter(cmd).FormatHosts(presentation.FromHosts(store.AllHosts()))
		})
	},
}

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List every category in outline order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(cmd.Context(), func(store *registry.Store) error {
			return formatter(cmd).FormatCategories(presentation.FromCategories(store.AllCategories()))
		})
	},
}

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Print the connect menu",
	Long: `Print the nested menu other applications build from the registry: one item
per root entry with categories carrying their contents.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(cmd.Context(), func(store *registry.Store) error {
			return formatter(cmd).FormatMenu(presentation.FromMenu(store.Menu()))
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "List hosts whose name contains QUERY",
	Long: `List hosts whose name contains QUERY, ignoring case. Categories are not
matched; their hosts are searched at every depth.

Examples:
  connreg search web
  connreg search "db " -o json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(cmd.Context(), func(store *registry.Store) error {
			return formatter(cmd).FormatHosts(presentation.FromHosts(store.HostsMatching(args[0])))
		})
	},
}

func init() {
	rootCmd.AddCommand(listCmd, hostsCmd, categoriesCmd, menuCmd, searchCmd)
}
