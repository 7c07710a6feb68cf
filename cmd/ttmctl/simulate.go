package main

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/spf13/cobra"
	"github.com/vkngwrapper/ttm/aperture"
	"github.com/vkngwrapper/ttm/memutils"
	"github.com/vkngwrapper/ttm/ttm"
	"golang.org/x/exp/slog"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run buffers through their lifecycle and print device statistics.",
	Long: "`simulate --buffers 4 --pages 16` creates four 16-page buffers, binds them " +
		"into the aperture, unbinds every other one, and prints the statistics JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		var params simulateParams
		params.buffers, _ = cmd.Flags().GetInt("buffers")
		params.pages, _ = cmd.Flags().GetInt("pages")
		params.cached, _ = cmd.Flags().GetBool("cached")
		params.user, _ = cmd.Flags().GetBool("user")
		params.detailed, _ = cmd.Flags().GetBool("detailed")

		output, err := simulate(newLogger(cmd), c, params)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), output)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().Int("buffers", 4, "number of buffers to create")
	simulateCmd.Flags().Int("pages", 16, "pages per buffer")
	simulateCmd.Flags().Bool("cached", false, "bind into a cached region instead of an uncached one")
	simulateCmd.Flags().Bool("user", false, "back buffers with pinned user pages instead of allocated pages")
	simulateCmd.Flags().Bool("detailed", false, "list every buffer in the statistics")
}

type simulateParams struct {
	buffers  int
	pages    int
	cached   bool
	user     bool
	detailed bool
}

func simulate(logger *slog.Logger, c config, params simulateParams) (string, error) {
	if params.buffers < 0 || params.pages < 0 {
		return "", errors.Newf("buffers (%d) and pages (%d) must not be negative", params.buffers, params.pages)
	}

	options, err := c.deviceOptions()
	if err != nil {
		return "", err
	}

	host, err := newHost(c)
	if err != nil {
		return "", err
	}

	table, err := aperture.NewTable(logger, c.Aperture.Entries)
	if err != nil {
		return "", err
	}
	driver := aperture.NewDriver(table, c.driverOptions())

	device, err := ttm.NewDevice(logger, host, driver, options)
	if err != nil {
		return "", err
	}

	region := &ttm.Region{Start: aperture.AnyStart, NumPages: params.pages}
	if params.cached {
		region.Flags = ttm.RegionCached
	}

	var ttms []*ttm.TTM
	var ranges []*userRange
	defer func() {
		for _, buffer := range ttms {
			err := buffer.Destroy()
			if err != nil {
				logger.Error("failed to destroy buffer", slog.Any("error", err))
			}
		}
		for _, r := range ranges {
			r.release()
		}
	}()

	for i := 0; i < params.buffers; i++ {
		buffer, err := ttm.Create(device, params.pages*ttm.PageSize)
		if err != nil {
			return "", errors.Wrapf(err, "failed to create buffer %d", i)
		}
		ttms = append(ttms, buffer)

		if params.user {
			r, err := newUserRange(host, params.pages)
			if err != nil {
				return "", err
			}
			ranges = append(ranges, r)

			err = buffer.PinUserPages(r.addressSpace, true, r.start, params.pages, ttm.NoPage)
			if err != nil {
				return "", errors.Wrapf(err, "failed to pin user pages for buffer %d", i)
			}
		}

		err = buffer.Bind(region)
		if err != nil {
			return "", errors.Wrapf(err, "failed to bind buffer %d", i)
		}
	}

	for i := 1; i < len(ttms); i += 2 {
		ttms[i].Unbind()
	}

	err = memutils.ValidateAll(device, table)
	if err != nil {
		return "", err
	}

	writer := jwriter.NewWriter()
	obj := writer.Object()
	obj.Name("Device").Raw([]byte(device.BuildStatsString(params.detailed)))
	table.WriteJSON(obj.Name("Aperture"))
	if report, ok := host.(hostReport); ok {
		obj.Name("HostAperturePages").Int(report.AperturePages())
	}
	obj.Name("Footprint").Int(params.buffers * ttm.EstimateFootprint(device, params.pages, params.user))
	obj.End()

	return string(writer.Bytes()), nil
}
