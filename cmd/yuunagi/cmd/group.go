package cmd

import (
	"fmt"
	"strconv"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/lynzrand/yuunagi/internal/storage"
)

var (
	flagGroupCategory     string
	flagGroupCompressible bool
	flagListCategory      string
)

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Manage path groups",
	Long: `A path group owns every indexed path starting with its prefix and is the
unit the packer distributes over volumes. Group prefixes are not required
to be disjoint; overlapping groups double-count their shared paths in
size aggregation.`,
}

var groupAddCmd = &cobra.Command{
	Use:   "add PREFIX",
	Short: "Create a path group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		return store.CreatePathGroup(cmd.Context(), storage.PathGroup{
			Prefix:       args[0],
			Category:     flagGroupCategory,
			Compressible: flagGroupCompressible,
		})
	},
}

var groupSetCategoryCmd = &cobra.Command{
	Use:   "set-category PREFIX CATEGORY",
	Short: "Assign a group to a category (empty CATEGORY clears it)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		return store.SetGroupCategory(cmd.Context(), args[0], args[1])
	},
}

var groupSetCompressibleCmd = &cobra.Command{
	Use:   "set-compressible PREFIX BOOL",
	Short: "Mark whether a group's contents compress well",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		compressible, err := strconv.ParseBool(args[1])
		if err != nil {
			return fmt.Errorf("parse %q as bool: %w", args[1], err)
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		return store.SetGroupCompressible(cmd.Context(), args[0], compressible)
	},
}

var groupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List path groups with their aggregated sizes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		groups, err := store.ListPathGroups(ctx, flagListCategory)
		if err != nil {
			return err
		}
		sizes, err := store.GroupSizes(ctx, flagListCategory, false)
		if err != nil {
			return err
		}
		sizeByPrefix := make(map[string]int64, len(sizes))
		for _, size := range sizes {
			sizeByPrefix[size.Prefix] = size.Size
		}

		for _, group := range groups {
			category := group.Category
			if category == "" {
				category = "-"
			}
			compressible := " "
			if group.Compressible {
				compressible = "c"
			}
			fmt.Printf("%-40s %-12s %s %10s\n",
				group.Prefix, category, compressible,
				units.BytesSize(float64(sizeByPrefix[group.Prefix])))
		}
		return nil
	},
}

func init() {
	groupAddCmd.Flags().StringVar(&flagGroupCategory, "category", "",
		"category of the new group")
	groupAddCmd.Flags().BoolVar(&flagGroupCompressible, "compressible", false,
		"mark the group's contents as compressible")
	groupListCmd.Flags().StringVar(&flagListCategory, "category", "",
		"list only groups in this category")

	groupCmd.AddCommand(groupAddCmd, groupSetCategoryCmd, groupSetCompressibleCmd, groupListCmd)
	rootCmd.AddCommand(groupCmd)
}
