package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var flagVolumePattern string

var volumeCmd = &cobra.Command{
	Use:   "volume",
	Short: "Inspect planned volumes",
}

var volumeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List volumes with recorded assignments",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		volumes, err := store.Volumes(cmd.Context(), flagVolumePattern)
		if err != nil {
			return err
		}
		for _, volume := range volumes {
			fmt.Println(volume)
		}
		return nil
	},
}

var volumeShowCmd = &cobra.Command{
	Use:   "show VOLUME",
	Short: "List the groups assigned to one volume",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		groups, err := store.GroupsOnVolume(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, group := range groups {
			fmt.Println(group)
		}
		return nil
	},
}

func init() {
	volumeListCmd.Flags().StringVar(&flagVolumePattern, "match", "%",
		"SQL LIKE pattern filtering volume names")
	volumeCmd.AddCommand(volumeListCmd, volumeShowCmd)
	rootCmd.AddCommand(volumeCmd)
}
