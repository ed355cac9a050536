package cmd

import (
	"fmt"

	"github.com/docker/go-units"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lynzrand/yuunagi/internal/packer"
)

var (
	flagCapacity     string
	flagPackCategory string
	flagRedo         bool
)

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Pack path groups onto fixed-capacity volumes",
	Long: `Pack aggregates the indexed size of every path group, optionally limited
to one category, and assigns each group to a sequentially numbered volume
using a bounded-lookahead first-fit heuristic. Assignments are written to
the database one volume at a time; groups that already have an assignment
are left alone unless --redo is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		capacityStr := flagCapacity
		if capacityStr == "" {
			capacityStr = cfg.Capacity
		}
		capacity, err := units.RAMInBytes(capacityStr)
		if err != nil {
			return fmt.Errorf("parse capacity %q: %w", capacityStr, err)
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		planner := packer.NewPlanner(store, log)
		res, err := planner.Plan(cmd.Context(), packer.PlanOptions{
			Category: flagPackCategory,
			Capacity: capacity,
			Redo:     flagRedo,
		})
		if err != nil {
			return err
		}

		label := flagPackCategory
		if label == "" {
			label = packer.DefaultCategoryLabel
		}
		for _, vol := range res.Volumes {
			name := packer.VolumeName(label, vol.Index)
			used := units.BytesSize(float64(vol.Used))
			if vol.Used > capacity {
				// Oversized singleton on an exclusive volume.
				fmt.Printf("%s: %d group(s), %s %s\n",
					color.GreenString(name), len(vol.Items), used,
					color.YellowString("(exceeds capacity, single oversized group)"))
				continue
			}
			fmt.Printf("%s: %d group(s), %s of %s\n",
				color.GreenString(name), len(vol.Items), used,
				units.BytesSize(float64(capacity)))
		}
		if len(res.Volumes) == 0 {
			fmt.Println("Nothing to pack: no unassigned groups.")
		}
		if res.Overflows > 0 {
			color.Yellow("Reorder buffer overflowed %d time(s); some volumes were closed early.", res.Overflows)
		}
		return nil
	},
}

func init() {
	packCmd.Flags().StringVar(&flagCapacity, "capacity", "",
		"volume capacity, e.g. 4.7GB or 700M (default from config file)")
	packCmd.Flags().StringVar(&flagPackCategory, "category", "",
		"pack only groups in this category")
	packCmd.Flags().BoolVar(&flagRedo, "redo", false,
		"discard this category's previous assignments and re-plan")
	rootCmd.AddCommand(packCmd)
}
