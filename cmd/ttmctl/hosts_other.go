//go:build !linux

package main

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/ttm/ttm"
)

func newLinuxHost() (ttm.Host, error) {
	return nil, errors.New("the linux host is only available on linux")
}

func newLinuxUserRange(numPages int) (*userRange, error) {
	return nil, errors.New("user ranges on the linux host are only available on linux")
}
