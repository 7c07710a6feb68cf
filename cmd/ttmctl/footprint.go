package main

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/vkngwrapper/ttm/aperture"
	"github.com/vkngwrapper/ttm/host/memhost"
	"github.com/vkngwrapper/ttm/ttm"
)

var footprintCmd = &cobra.Command{
	Use:   "footprint",
	Short: "Estimate the host memory a buffer will consume.",
	RunE: func(cmd *cobra.Command, args []string) error {
		pages, _ := cmd.Flags().GetInt("pages")
		user, _ := cmd.Flags().GetBool("user")
		if pages < 0 {
			return errors.Newf("pages must not be negative, but was %d", pages)
		}

		table, err := aperture.NewTable(nil, 1)
		if err != nil {
			return err
		}

		device, err := ttm.NewDevice(newLogger(cmd), memhost.New(memhost.Options{NumCPU: 1}), aperture.NewDriver(table, aperture.DriverOptions{}), ttm.DeviceOptions{})
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), ttm.EstimateFootprint(device, pages, user))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(footprintCmd)
	footprintCmd.Flags().Int("pages", 1, "pages in the buffer")
	footprintCmd.Flags().Bool("user", false, "estimate for a buffer backed by pinned user pages")
}
