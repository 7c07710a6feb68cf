//go:build linux

package main

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/ttm/host/linuxhost"
	"github.com/vkngwrapper/ttm/ttm"
	"golang.org/x/sys/unix"
)

func newLinuxHost() (ttm.Host, error) {
	return linuxhost.New()
}

func newLinuxUserRange(numPages int) (*userRange, error) {
	mem, err := unix.Mmap(-1, 0, numPages*ttm.PageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_POPULATE)
	if err != nil {
		return nil, errors.Wrap(err, "failed to map user range")
	}

	return &userRange{
		addressSpace: linuxhost.NewAddressSpace(),
		start:        uintptr(unsafe.Pointer(&mem[0])),
		release: func() {
			_ = unix.Munmap(mem)
		},
	}, nil
}
