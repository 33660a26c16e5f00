package cmd

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjrosen/connreg/internal/connection"
	"github.com/zjrosen/connreg/internal/presentation"
	"github.com/zjrosen/connreg/internal/registry"
)

// appendIndex places an entry after its last sibling; the tree clamps it.
const appendIndex = math.MaxInt32

// placement reads the shared --parent and --index flags.
func placement(cmd *cobra.Command) (connection.ID, int) {
	parent, _ := cmd.Flags().GetString("parent")
	index, _ := cmd.Flags().GetInt("index")
	if index < 0 {
		index = appendIndex
	}
	return connection.ID(parent), index
}

// entityID returns the --id flag or a fresh ID.
func entityID(cmd *cobra.Command) connection.ID {
	if id, _ := cmd.Flags().GetString("id"); id != "" {
		return connection.ID(id)
	}
	return connection.NewID()
}

func addPlacementFlags(cmd *cobra.Command) {
	cmd.Flags().String("id", "", "entry ID (default: a new random ID)")
	cmd.Flags().StringP("parent", "p", "", "parent category ID (default: the root)")
	cmd.Flags().IntP("index", "i", -1, "position among the parent's children (default: last)")
}

var addCategoryCmd = &cobra.Command{
	Use:   "add-category NAME",
	Short: "Create a category",
	Long: `Create a category, at the root unless --parent is given. Reusing the ID of an
existing category moves and renames it.

Examples:
  connreg add-category Servers
  connreg add-category Databases --parent prod --index 0`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := connection.Category{ID: entityID(cmd), Name: args[0]}
		parent, index := placement(cmd)
		return withRegistry(cmd.Context(), func(store *registry.Store) error {
			if err := store.InsertCategory(cmd.Context(), c, parent, index); err != nil {
				return err
			}
			return formatter(cmd).FormatResult(presentation.CategoryDTO{ID: string(c.ID), Name: c.Name},
				fmt.Sprintf("added category %s (%s)", c.Name, c.ID))
		})
	},
}

var addHostCmd = &cobra.Command{
	Use:   "add-host NAME",
	Short: "Create or update a host",
	Long: `Create a host. Connection parameters are opaque to the registry; the common
ones have their own flags and anything else can be passed with --param.

Reusing the ID of an existing host replaces its record and moves it to the
given position.

Examples:
  connreg add-host web-1 --parent servers --protocol sftp --address 10.0.0.1 --port 22
  connreg add-host nas --address nas.local --param share=media`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := hostParams(cmd)
		if err != nil {
			return err
		}
		h := connection.Host{ID: entityID(cmd), Name: args[0], Params: params}
		parent, index := placement(cmd)
		return withRegistry(cmd.Context(), func(store *registry.Store) error {
			if err := store.InsertHost(cmd.Context(), h, parent, index); err != nil {
				return err
			}
			return formatter(cmd).FormatResult(presentation.FromHost(h),
				fmt.Sprintf("added host %s (%s)", h.Name, h.ID))
		})
	},
}

// hostParams merges the named parameter flags with --param key=value pairs.
func hostParams(cmd *cobra.Command) (connection.Params, error) {
	params := connection.Params{}
	for _, name := range []string{"protocol", "address", "port", "user"} {
		if v, _ := cmd.Flags().GetString(name); v != "" {
			params[name] = v
		}
	}
	extra, _ := cmd.Flags().GetStringArray("param")
	for _, kv := range extra {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --param %q (want key=value)", kv)
		}
		params[k] = v
	}
	if len(params) == 0 {
		return nil, nil
	}
	return params, nil
}

var renameCmd = &cobra.Command{
	Use:   "rename ID NAME",
	Short: "Rename a host or category in place",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := connection.ID(args[0])
		return withRegistry(cmd.Context(), func(store *registry.Store) error {
			e, ok := store.Entry(id)
			if !ok {
				return fmt.Errorf("%s: %w", id, connection.ErrNotFound)
			}
			var err error
			switch v := e.(type) {
			case connection.Host:
				v.Name = args[1]
				err = store.UpdateHost(cmd.Context(), v)
			case connection.Category:
				v.Name = args[1]
				err = store.UpdateCategory(cmd.Context(), v)
			}
			if err != nil {
				return err
			}
			return formatter(cmd).FormatResult(map[string]string{"id": string(id), "name": args[1]},
				fmt.Sprintf("renamed %s to %s", id, args[1]))
		})
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm ID...",
	Short: "Remove hosts and categories",
	Long: `Remove hosts and categories. Removing a category removes everything beneath
it. All removals are applied as one edit, so other applications refresh once.
Nothing is removed when any ID is unknown or owned by discovery.

The discovered category and its hosts cannot be removed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(cmd.Context(), func(store *registry.Store) error {
			tree, _ := store.Snapshot()
			plan, err := removalPlan(tree, args)
			if err != nil {
				return err
			}
			err = store.Batch(cmd.Context(), func() error {
				for _, e := range plan {
					if err := removeEntry(cmd.Context(), store, e); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
			return formatter(cmd).FormatResult(map[string][]string{"removed": args},
				fmt.Sprintf("removed %s", strings.Join(args, ", ")))
		})
	},
}

// removalPlan checks every ID against tree before anything is removed. Entries
// beneath another listed category are left out; removing the category takes
// them along.
func removalPlan(tree *connection.Tree, args []string) ([]connection.Entry, error) {
	listed := make(map[connection.ID]bool, len(args))
	for _, arg := range args {
		listed[connection.ID(arg)] = true
	}

	plan := make([]connection.Entry, 0, len(args))
	for _, arg := range args {
		id := connection.ID(arg)
		e, ok := tree.Entry(id)
		if !ok {
			return nil, fmt.Errorf("%s: %w", arg, connection.ErrNotFound)
		}
		if c, ok := e.(connection.Category); ok && c.Provider {
			return nil, fmt.Errorf("%s: %w", arg, registry.ErrProtectedCategory)
		}

		covered := false
		for p, ok := tree.Parent(id); ok && p != connection.RootID; p, ok = tree.Parent(p) {
			if c, _ := tree.Category(p); c.Provider {
				return nil, fmt.Errorf("%s: %w", arg, connection.ErrReadOnly)
			}
			covered = covered || listed[p]
		}
		if !covered {
			plan = append(plan, e)
		}
	}
	return plan, nil
}

func removeEntry(ctx context.Context, store *registry.Store, e connection.Entry) error {
	if e.Kind() == connection.KindCategory {
		return store.RemoveCategory(ctx, e.EntryID())
	}
	return store.RemoveHost(ctx, e.EntryID())
}

var mvCmd = &cobra.Command{
	Use:   "mv ID [PARENT]",
	Short: "Move a host or category",
	Long: `Move a host or category under PARENT, or to the root when PARENT is omitted.
A category cannot be moved beneath itself.

Examples:
  connreg mv web-1 staging
  connreg mv staging --index 0`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := connection.ID(args[0])
		parent := connection.RootID
		if len(args) == 2 {
			parent = connection.ID(args[1])
		}
		index, _ := cmd.Flags().GetInt("index")
		if index < 0 {
			index = appendIndex
		}
		return withRegistry(cmd.Context(), func(store *registry.Store) error {
			if err := store.Move(cmd.Context(), id, parent, index); err != nil {
				return err
			}
			return formatter(cmd).FormatResult(map[string]string{"id": string(id), "parent": string(parent)},
				fmt.Sprintf("moved %s", id))
		})
	},
}

func init() {
	addPlacementFlags(addCategoryCmd)

	addPlacementFlags(addHostCmd)
	addHostCmd.Flags().String("protocol", "", "connection protocol (ssh, sftp, ftp, ...)")
	addHostCmd.Flags().String("address", "", "host name or IP address")
	addHostCmd.Flags().String("port", "", "port number")
	addHostCmd.Flags().StringP("user", "u", "", "user name")
	addHostCmd.Flags().StringArray("param", nil, "extra parameter as key=value (repeatable)")

	mvCmd.Flags().IntP("index", "i", -1, "position among the new parent's children (default: last)")

	rootCmd.AddCommand(addCategoryCmd, addHostCmd, renameCmd, rmCmd, mvCmd)
}
