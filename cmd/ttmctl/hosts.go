package main

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/ttm/host/memhost"
	"github.com/vkngwrapper/ttm/ttm"
)

// userRange is a range of task memory that user-backed buffers can pin
type userRange struct {
	addressSpace ttm.AddressSpace
	start        uintptr
	release      func()
}

type hostReport interface {
	AperturePages() int
}

func newHost(c config) (ttm.Host, error) {
	switch c.Host.Kind {
	case "", "memhost":
		return memhost.New(memhost.Options{
			NumCPU:   c.Host.CPUs,
			MaxPages: c.Host.MaxPages,
		}), nil
	case "linux":
		return newLinuxHost()
	default:
		return nil, errors.Newf("unknown host kind %q", c.Host.Kind)
	}
}

func newUserRange(host ttm.Host, numPages int) (*userRange, error) {
	switch h := host.(type) {
	case *memhost.Host:
		addressSpace := memhost.NewAddressSpace(h)
		const start = 0x10000000
		err := addressSpace.Fault(start, numPages)
		if err != nil {
			return nil, err
		}
		return &userRange{addressSpace: addressSpace, start: start, release: func() {}}, nil
	default:
		return newLinuxUserRange(numPages)
	}
}
