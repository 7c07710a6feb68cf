package ttm

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/ttm/memutils"
	"github.com/vkngwrapper/ttm/ttm/internal/utils"
	"golang.org/x/exp/slog"
)

// DeviceCreateFlags indicate specific device behaviors to activate or deactivate
type DeviceCreateFlags int32

var deviceCreateFlagsMapping = common.NewFlagStringMapping[DeviceCreateFlags]()

func (f DeviceCreateFlags) Register(str string) {
	deviceCreateFlagsMapping.Register(f, str)
}
func (f DeviceCreateFlags) String() string {
	return deviceCreateFlagsMapping.FlagsToString(f)
}

const (
	// DeviceCreateExternallySynchronized ensures that the device's registry of live TTMs is not
	// synchronized internally. The consumer must guarantee that TTMs are created, destroyed, and
	// inspected from only one goroutine at a time. The resident page counter remains atomic.
	DeviceCreateExternallySynchronized DeviceCreateFlags = 1 << iota
)

func init() {
	DeviceCreateExternallySynchronized.Register("DeviceCreateExternallySynchronized")
}

const (
	// defaultFlushTimeout is the time GlobalCacheFlush waits for every core to acknowledge when no
	// FlushTimeout is provided via DeviceOptions
	defaultFlushTimeout = time.Second
)

// DeviceOptions contains optional settings when creating a device
type DeviceOptions struct {
	// Flags indicates specific device behaviors to activate or deactivate
	Flags DeviceCreateFlags
	// MaxResidentPages limits the number of pages all TTMs of this device may hold resident at once.
	// Zero means no limit. Pages pinned from user address spaces do not count against the limit.
	MaxResidentPages int
	// FlushTimeout bounds how long a global cache flush waits for all cores to acknowledge
	FlushTimeout time.Duration
}

// Device is the owner of a set of TTMs: it carries the host primitives, the driver that creates
// backends, and the device-wide resident page accounting shared by every TTM.
type Device struct {
	logger *slog.Logger
	host   Host
	driver Driver

	createFlags      DeviceCreateFlags
	maxResidentPages int64
	flushTimeout     time.Duration

	residentPages int64
	leakedPages   int64
	flushCount    uint64

	ttmsMutex utils.OptionalRWMutex
	ttms      ttmList
}

// NewDevice creates a new Device
//
// logger - Receives debug traces and error reports. A nil logger discards everything
//
// host - The host primitives used to allocate, pin, map, and flush pages
//
// driver - Creates the Backend of every TTM made from this device
//
// options - Optional parameters: it is valid to leave all the fields blank
func NewDevice(logger *slog.Logger, host Host, driver Driver, options DeviceOptions) (*Device, error) {
	if host == nil {
		return nil, errors.Wrap(ErrInvalidArgument, "attempted to create a device with a nil host")
	} else if driver == nil {
		return nil, errors.Wrap(ErrInvalidArgument, "attempted to create a device with a nil driver")
	}
	if options.MaxResidentPages < 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "MaxResidentPages must not be negative, but was %d", options.MaxResidentPages)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	device := &Device{
		logger:           logger,
		host:             host,
		driver:           driver,
		createFlags:      options.Flags,
		maxResidentPages: int64(options.MaxResidentPages),
		flushTimeout:     options.FlushTimeout,
		ttmsMutex: utils.OptionalRWMutex{
			UseMutex: options.Flags&DeviceCreateExternallySynchronized == 0,
		},
	}

	if device.flushTimeout <= 0 {
		device.flushTimeout = defaultFlushTimeout
	}

	logger.Debug("Device::NewDevice",
		slog.String("Flags", options.Flags.String()),
		slog.Int("MaxResidentPages", options.MaxResidentPages),
		slog.Duration("FlushTimeout", device.flushTimeout),
	)

	return device, nil
}

func (d *Device) Logger() *slog.Logger { return d.logger }
func (d *Device) Host() Host           { return d.host }
func (d *Device) Driver() Driver       { return d.driver }

// ResidentPages returns the number of pages currently allocated by all TTMs of this device
func (d *Device) ResidentPages() int {
	return int(atomic.LoadInt64(&d.residentPages))
}

// LeakedPages returns the number of pages that were deliberately leaked because they were still
// referenced or mapped when their TTM released them
func (d *Device) LeakedPages() int {
	return int(atomic.LoadInt64(&d.leakedPages))
}

// FlushCount returns the number of global cache flushes this device has performed
func (d *Device) FlushCount() int {
	return int(atomic.LoadUint64(&d.flushCount))
}

func (d *Device) reserveResidentPage() error {
	if d.maxResidentPages == 0 {
		atomic.AddInt64(&d.residentPages, 1)
		return nil
	}

	for {
		currentVal := atomic.LoadInt64(&d.residentPages)
		targetVal := currentVal + 1

		if targetVal > d.maxResidentPages {
			return errors.Wrapf(ErrResourceExhausted, "device resident page limit of %d reached", d.maxResidentPages)
		}

		if atomic.CompareAndSwapInt64(&d.residentPages, currentVal, targetVal) {
			return nil
		}
	}
}

func (d *Device) releaseResidentPage() {
	newVal := atomic.AddInt64(&d.residentPages, -1)

	if newVal < 0 {
		panic(fmt.Sprintf("resident page count went negative (%d)", newVal))
	}
}

func (d *Device) recordLeakedPage() {
	atomic.AddInt64(&d.leakedPages, 1)
}

func (d *Device) register(ttm *TTM) {
	d.ttmsMutex.Lock()
	defer d.ttmsMutex.Unlock()

	d.ttms.push(ttm)
}

func (d *Device) unregister(ttm *TTM) {
	d.ttmsMutex.Lock()
	defer d.ttmsMutex.Unlock()

	d.ttms.remove(ttm)
}

// TTMCount returns the number of TTMs created from this device that have not been destroyed
func (d *Device) TTMCount() int {
	d.ttmsMutex.RLock()
	defer d.ttmsMutex.RUnlock()

	return d.ttms.count
}

// Validate performs internal consistency checks on the device's TTM registry and page accounting
func (d *Device) Validate() error {
	d.ttmsMutex.RLock()
	defer d.ttmsMutex.RUnlock()

	err := d.ttms.Validate()
	if err != nil {
		return err
	}

	resident := atomic.LoadInt64(&d.residentPages)
	if resident < 0 {
		return errors.Newf("resident page count is negative (%d)", resident)
	}
	if d.maxResidentPages > 0 && resident > d.maxResidentPages {
		return errors.Newf("resident page count %d exceeds the device limit of %d", resident, d.maxResidentPages)
	}

	var owned int64
	for ttm := d.ttms.head; ttm != nil; ttm = ttm.next {
		if ttm.loadFlags()&PageFlagUser == 0 {
			owned += int64(ttm.residentCount())
		}
	}
	if owned != resident {
		return errors.Newf("TTMs hold %d allocated pages, but the device counts %d resident pages", owned, resident)
	}

	return nil
}

var _ memutils.Validatable = &Device{}
