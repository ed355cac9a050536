package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lynzrand/yuunagi/internal/storage"
)

var categoryCmd = &cobra.Command{
	Use:   "category",
	Short: "Manage categories",
	Long: `A category is an administrative label applied to groups with similar
content, e.g. "photos". Packing runs can be limited to one category, and
volume names are derived from it.`,
}

var categoryAddCmd = &cobra.Command{
	Use:   "add ID [DESCRIPTION...]",
	Short: "Create or update a category",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		return store.CreateCategory(cmd.Context(), storage.Category{
			ID:          args[0],
			Description: strings.Join(args[1:], " "),
		})
	},
}

var categoryRemoveCmd = &cobra.Command{
	Use:   "remove ID",
	Short: "Delete a category, leaving its groups uncategorized",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		return store.RemoveCategory(cmd.Context(), args[0])
	},
}

var categoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List categories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		cats, err := store.ListCategories(cmd.Context())
		if err != nil {
			return err
		}
		for _, cat := range cats {
			fmt.Printf("%-20s %s\n", cat.ID, cat.Description)
		}
		return nil
	},
}

func init() {
	categoryCmd.AddCommand(categoryAddCmd, categoryRemoveCmd, categoryListCmd)
	rootCmd.AddCommand(categoryCmd)
}
