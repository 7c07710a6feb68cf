package main

import (
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/vkngwrapper/ttm/aperture"
	"github.com/vkngwrapper/ttm/ttm"
)

type deviceConfig struct {
	MaxResidentPages       int    `toml:"max_resident_pages"`
	FlushTimeout           string `toml:"flush_timeout"`
	ExternallySynchronized bool   `toml:"externally_synchronized"`
}

type hostConfig struct {
	// Kind is "memhost" or "linux"
	Kind     string `toml:"kind"`
	CPUs     int    `toml:"cpus"`
	MaxPages int    `toml:"max_pages"`
}

type apertureConfig struct {
	Entries          int  `toml:"entries"`
	NeedsCacheAdjust bool `toml:"needs_cache_adjust"`
}

type config struct {
	Device   deviceConfig   `toml:"device"`
	Host     hostConfig     `toml:"host"`
	Aperture apertureConfig `toml:"aperture"`
}

func defaultConfig() config {
	return config{
		Host: hostConfig{
			Kind: "memhost",
		},
		Aperture: apertureConfig{
			Entries:          4096,
			NeedsCacheAdjust: true,
		},
	}
}

// loadConfig reads the file named by --config over the defaults
func loadConfig(cmd *cobra.Command) (config, error) {
	path := ""
	if flag := cmd.Flag("config"); flag != nil {
		path = flag.Value.String()
	}

	return loadConfigFile(path)
}

func loadConfigFile(path string) (config, error) {
	c := defaultConfig()
	if path == "" {
		return c, nil
	}

	_, err := toml.DecodeFile(path, &c)
	if err != nil {
		return c, errors.Wrapf(err, "failed to load config file %s", path)
	}
	return c, nil
}

func (c config) deviceOptions() (ttm.DeviceOptions, error) {
	options := ttm.DeviceOptions{
		MaxResidentPages: c.Device.MaxResidentPages,
	}

	if c.Device.ExternallySynchronized {
		options.Flags |= ttm.DeviceCreateExternallySynchronized
	}

	if c.Device.FlushTimeout != "" {
		timeout, err := time.ParseDuration(c.Device.FlushTimeout)
		if err != nil {
			return options, errors.Wrapf(err, "invalid flush_timeout %q", c.Device.FlushTimeout)
		}
		options.FlushTimeout = timeout
	}

	return options, nil
}

func (c config) driverOptions() aperture.DriverOptions {
	return aperture.DriverOptions{
		NeedsCacheAdjustOnUnbind: c.Aperture.NeedsCacheAdjust,
	}
}
