package ttm_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/ttm/host/memhost"
	"github.com/vkngwrapper/ttm/ttm"
	"go.uber.org/mock/gomock"
)

func TestCreate(t *testing.T) {
	testCases := map[string]struct {
		Size     int
		NumPages int
	}{
		"Empty":           {Size: 0, NumPages: 0},
		"OneByte":         {Size: 1, NumPages: 1},
		"ExactPage":       {Size: ttm.PageSize, NumPages: 1},
		"PageAndAByte":    {Size: ttm.PageSize + 1, NumPages: 2},
		"LargeCompact":    {Size: 512 * ttm.PageSize, NumPages: 512},
		"VirtuallyBacked": {Size: 513 * ttm.PageSize, NumPages: 513},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			host, driver, device := readyDevice(t, ctrl, DeviceSetup{})

			backend := NewMockBackend(ctrl)
			driver.EXPECT().CreateBackend(device).Return(backend, nil)
			backend.EXPECT().Destroy()

			buffer, err := ttm.Create(device, testCase.Size)
			require.NoError(t, err)
			require.Equal(t, testCase.NumPages, buffer.NumPages())
			require.Len(t, buffer.Pages(), testCase.NumPages)
			require.Equal(t, ttm.StateUnpopulated, buffer.State())
			require.Equal(t, 0, device.ResidentPages())
			require.Equal(t, 1, device.TTMCount())
			require.NoError(t, buffer.Validate())

			virtual := testCase.NumPages*8 > ttm.PageSize
			require.Equal(t, virtual, buffer.Flags()&ttm.PageFlagVirtual != 0)
			if virtual {
				require.Equal(t, 1, host.LiveArrays())
			}

			require.NoError(t, buffer.Destroy())
			require.Equal(t, ttm.StateDestroyed, buffer.State())
			require.Equal(t, 0, host.LiveArrays())
			require.Equal(t, 0, device.TTMCount())
		})
	}
}

func TestCreateInvalid(t *testing.T) {
	ctrl := gomock.NewController(t)
	_, _, device := readyDevice(t, ctrl, DeviceSetup{})

	_, err := ttm.Create(nil, ttm.PageSize)
	require.ErrorIs(t, err, ttm.ErrInvalidArgument)

	_, err = ttm.Create(device, -1)
	require.ErrorIs(t, err, ttm.ErrInvalidArgument)
	require.Equal(t, 0, device.TTMCount())
}

func TestCreateBackendFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	host, driver, device := readyDevice(t, ctrl, DeviceSetup{})

	driver.EXPECT().CreateBackend(device).Return(nil, errors.New("no backend for you"))

	_, err := ttm.Create(device, 1024*ttm.PageSize)
	require.Error(t, err)
	require.Equal(t, 0, host.LiveArrays())
	require.Equal(t, 0, device.TTMCount())
}

func TestCreateArrayExhausted(t *testing.T) {
	ctrl := gomock.NewController(t)
	host, driver, device := readyDevice(t, ctrl, DeviceSetup{
		HostOptions: memhost.Options{MaxArrays: 1},
	})

	held, err := host.AllocArray(1)
	require.NoError(t, err)

	// Large enough to need a virtual array, and the driver is never asked for a backend
	buffer, err := ttm.Create(device, 1024*ttm.PageSize)
	require.Nil(t, buffer)
	require.True(t, errors.Is(err, ttm.ErrResourceExhausted))
	require.ErrorIs(t, err, memhost.ErrOutOfArrays)
	require.Equal(t, 0, device.TTMCount())
	require.Equal(t, 1, host.LiveArrays())
	require.NoError(t, device.Validate())

	host.FreeArray(held)
	require.Equal(t, 0, host.LiveArrays())

	held, err = host.AllocArray(1)
	require.NoError(t, err)

	// Compact arrays do not come from the host
	small, _ := readyTTM(t, ctrl, driver, device, 4)
	require.Equal(t, ttm.PageFlags(0), small.Flags())
	require.Equal(t, 1, host.LiveArrays())

	host.FreeArray(held)
}

func TestPopulate(t *testing.T) {
	ctrl := gomock.NewController(t)
	host, driver, device := readyDevice(t, ctrl, DeviceSetup{})
	buffer, backend := readyTTM(t, ctrl, driver, device, 4)

	backend.EXPECT().Populate(populated{numPages: 4}).Return(nil)

	require.NoError(t, buffer.Populate())
	require.Equal(t, ttm.StateUnbound, buffer.State())
	require.Equal(t, 4, device.ResidentPages())
	require.Equal(t, 4, host.LivePages())
	require.NoError(t, device.Validate())

	for i := 0; i < 4; i++ {
		page, err := buffer.GetPage(i)
		require.NoError(t, err)
		require.NotEqual(t, ttm.NoPage, page)
	}
	require.Equal(t, 4, device.ResidentPages())

	// Already populated, the backend is not called again
	require.NoError(t, buffer.Populate())
	require.Equal(t, 4, device.ResidentPages())

	require.NoError(t, buffer.Destroy())
	require.Equal(t, 0, device.ResidentPages())
	require.Equal(t, 0, host.LivePages())
}

func TestPopulateOverBudget(t *testing.T) {
	ctrl := gomock.NewController(t)
	_, driver, device := readyDevice(t, ctrl, DeviceSetup{
		DeviceOptions: ttm.DeviceOptions{MaxResidentPages: 3},
	})
	buffer, _ := readyTTM(t, ctrl, driver, device, 4)

	err := buffer.Populate()
	require.ErrorIs(t, err, ttm.ErrResourceExhausted)
	require.Equal(t, ttm.StateUnpopulated, buffer.State())
	require.Equal(t, 3, device.ResidentPages())
	require.NoError(t, device.Validate())

	require.NoError(t, buffer.Destroy())
	require.Equal(t, 0, device.ResidentPages())
}

func TestBindUncachedThenUnbind(t *testing.T) {
	ctrl := gomock.NewController(t)
	host, driver, device := readyDevice(t, ctrl, DeviceSetup{})
	buffer, backend := readyTTM(t, ctrl, driver, device, 4)

	region := &ttm.Region{Start: 0, NumPages: 4}

	backend.EXPECT().Populate(populated{numPages: 4}).Return(nil)
	backend.EXPECT().Bind(region).Return(nil)

	require.NoError(t, buffer.Bind(region))
	require.Equal(t, ttm.StateBound, buffer.State())
	require.True(t, buffer.IsUncached())
	require.Equal(t, 4, device.ResidentPages())
	require.Equal(t, 1, device.FlushCount())
	for cpu := 0; cpu < host.NumCPU(); cpu++ {
		require.Equal(t, 1, host.CPUFlushes(cpu))
	}
	for _, page := range buffer.Pages() {
		require.True(t, host.ApertureMapped(page))
	}

	backend.EXPECT().Unbind().Return(nil)
	backend.EXPECT().NeedsCacheAdjustOnUnbind().Return(true)

	buffer.Unbind()
	require.Equal(t, ttm.StateUnbound, buffer.State())
	require.False(t, buffer.IsUncached())
	require.Equal(t, 0, host.AperturePages())
	require.Equal(t, 1, device.FlushCount())
	require.NoError(t, buffer.Validate())
	require.NoError(t, device.Validate())
}

func TestBindCachedRegion(t *testing.T) {
	ctrl := gomock.NewController(t)
	host, driver, device := readyDevice(t, ctrl, DeviceSetup{})
	buffer, backend := readyTTM(t, ctrl, driver, device, 2)

	region := &ttm.Region{Flags: ttm.RegionCached, NumPages: 2}

	backend.EXPECT().Populate(gomock.Any()).Return(nil)
	backend.EXPECT().Bind(region).Return(nil)

	require.NoError(t, buffer.Bind(region))
	require.Equal(t, ttm.StateBound, buffer.State())
	require.False(t, buffer.IsUncached())
	require.Equal(t, 0, device.FlushCount())
	require.Equal(t, 0, host.AperturePages())

	// Binding a bound TTM does nothing
	require.NoError(t, buffer.Bind(region))
}

func TestBindCachedMappedRegion(t *testing.T) {
	ctrl := gomock.NewController(t)
	flusher := NewMockCachedMappedFlusher(ctrl)

	_, driver, device := readyDevice(t, ctrl, DeviceSetup{
		Driver: func(driver *MockDriver) ttm.Driver {
			return struct {
				*MockDriver
				*MockCachedMappedFlusher
			}{driver, flusher}
		},
	})
	buffer, backend := readyTTM(t, ctrl, driver, device, 2)

	region := &ttm.Region{Flags: ttm.RegionCached | ttm.RegionCachedMapped, NumPages: 2}

	backend.EXPECT().Populate(gomock.Any()).Return(nil)
	flusher.EXPECT().FlushCachedMapped(buffer)
	backend.EXPECT().Bind(region).Return(nil)

	require.NoError(t, buffer.Bind(region))
	require.Equal(t, 0, device.FlushCount())
}

func TestBindRebindFromEvicted(t *testing.T) {
	ctrl := gomock.NewController(t)
	_, driver, device := readyDevice(t, ctrl, DeviceSetup{})
	buffer, backend := readyTTM(t, ctrl, driver, device, 2)

	region := &ttm.Region{NumPages: 2}

	backend.EXPECT().Populate(gomock.Any()).Return(nil)
	backend.EXPECT().Bind(region).Return(nil).Times(2)
	backend.EXPECT().Unbind().Return(nil)

	require.NoError(t, buffer.Bind(region))
	buffer.Evict()
	require.Equal(t, ttm.StateEvicted, buffer.State())
	require.True(t, buffer.IsUncached())

	// The pages are already uncached; no second flush
	require.NoError(t, buffer.Bind(region))
	require.Equal(t, ttm.StateBound, buffer.State())
	require.Equal(t, 1, device.FlushCount())
}

func TestBindFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	host, driver, device := readyDevice(t, ctrl, DeviceSetup{})
	buffer, backend := readyTTM(t, ctrl, driver, device, 3)

	region := &ttm.Region{NumPages: 3}

	backend.EXPECT().Populate(gomock.Any()).Return(nil)
	backend.EXPECT().Bind(region).Return(errors.New("aperture is full"))

	err := buffer.Bind(region)
	require.True(t, errors.Is(err, ttm.ErrBackendBind))
	require.Equal(t, ttm.StateEvicted, buffer.State())
	require.Equal(t, 3, device.ResidentPages())

	backend.EXPECT().NeedsCacheAdjustOnUnbind().Return(true)

	buffer.Unbind()
	require.Equal(t, ttm.StateUnbound, buffer.State())
	require.False(t, buffer.IsUncached())
	require.Equal(t, 0, host.AperturePages())
}

func TestBindNilRegion(t *testing.T) {
	ctrl := gomock.NewController(t)
	_, driver, device := readyDevice(t, ctrl, DeviceSetup{})
	buffer, _ := readyTTM(t, ctrl, driver, device, 1)

	require.ErrorIs(t, buffer.Bind(nil), ttm.ErrInvalidArgument)
	require.Equal(t, ttm.StateUnpopulated, buffer.State())
}

func TestEvictUnbindFailurePanics(t *testing.T) {
	ctrl := gomock.NewController(t)
	_, driver, device := readyDevice(t, ctrl, DeviceSetup{})
	buffer, backend := readyTTM(t, ctrl, driver, device, 1)

	region := &ttm.Region{Flags: ttm.RegionCached, NumPages: 1}
	backend.EXPECT().Populate(gomock.Any()).Return(nil)
	backend.EXPECT().Bind(region).Return(nil)
	backend.EXPECT().Unbind().Return(errors.New("stuck"))

	require.NoError(t, buffer.Bind(region))
	require.Panics(t, func() {
		buffer.Evict()
	})
}

func TestUnbindWithoutCacheAdjust(t *testing.T) {
	ctrl := gomock.NewController(t)
	host, driver, device := readyDevice(t, ctrl, DeviceSetup{})
	buffer, backend := readyTTM(t, ctrl, driver, device, 2)

	region := &ttm.Region{NumPages: 2}
	backend.EXPECT().Populate(gomock.Any()).Return(nil)
	backend.EXPECT().Bind(region).Return(nil)
	backend.EXPECT().Unbind().Return(nil)
	backend.EXPECT().NeedsCacheAdjustOnUnbind().Return(false)

	require.NoError(t, buffer.Bind(region))
	buffer.Unbind()

	require.Equal(t, ttm.StateUnbound, buffer.State())
	require.True(t, buffer.IsUncached())
	require.Equal(t, 2, host.AperturePages())

	// Destroying an uncached TTM restores the cached state before the pages are freed
	require.NoError(t, buffer.Destroy())
	require.Equal(t, 0, host.AperturePages())
	require.Equal(t, 0, host.LivePages())
}

func TestUnbindUnpopulated(t *testing.T) {
	ctrl := gomock.NewController(t)
	_, driver, device := readyDevice(t, ctrl, DeviceSetup{})
	buffer, _ := readyTTM(t, ctrl, driver, device, 2)

	buffer.Unbind()
	require.Equal(t, ttm.StateUnpopulated, buffer.State())
}

func TestEvictUnpopulated(t *testing.T) {
	ctrl := gomock.NewController(t)
	_, driver, device := readyDevice(t, ctrl, DeviceSetup{})
	buffer, backend := readyTTM(t, ctrl, driver, device, 2)

	buffer.Evict()
	require.Equal(t, ttm.StateUnpopulated, buffer.State())
	buffer.Unbind()
	require.Equal(t, ttm.StateUnpopulated, buffer.State())

	// The backend still receives the page list before it is bound
	region := &ttm.Region{Flags: ttm.RegionCached, NumPages: 2}
	gomock.InOrder(
		backend.EXPECT().Populate(populated{numPages: 2}).Return(nil),
		backend.EXPECT().Bind(region).Return(nil),
	)

	require.NoError(t, buffer.Bind(region))
	require.Equal(t, ttm.StateBound, buffer.State())
	require.Equal(t, 2, device.ResidentPages())
	require.NoError(t, buffer.Validate())
}

func TestDestroyBound(t *testing.T) {
	ctrl := gomock.NewController(t)
	host, driver, device := readyDevice(t, ctrl, DeviceSetup{})
	buffer, backend := readyTTM(t, ctrl, driver, device, 4)

	region := &ttm.Region{NumPages: 4}
	backend.EXPECT().Populate(gomock.Any()).Return(nil)
	backend.EXPECT().Bind(region).Return(nil)

	require.NoError(t, buffer.Bind(region))
	require.NoError(t, buffer.Destroy())

	require.Equal(t, ttm.StateDestroyed, buffer.State())
	require.Nil(t, buffer.Pages())
	require.Nil(t, buffer.Backend())
	require.Equal(t, 0, device.ResidentPages())
	require.Equal(t, 0, device.TTMCount())
	require.Equal(t, 0, host.LivePages())
	require.Equal(t, 0, host.AperturePages())
	require.NoError(t, device.Validate())

	// Destroying twice is a no-op
	require.NoError(t, buffer.Destroy())

	var nilTTM *ttm.TTM
	require.NoError(t, nilTTM.Destroy())

	require.Panics(t, func() {
		_ = buffer.Bind(region)
	})
}

func TestDestroyWithMappings(t *testing.T) {
	ctrl := gomock.NewController(t)
	_, driver, device := readyDevice(t, ctrl, DeviceSetup{})
	buffer, backend := readyTTM(t, ctrl, driver, device, 2)

	backend.EXPECT().Populate(gomock.Any()).Return(nil)
	require.NoError(t, buffer.Populate())

	buffer.AcquireMapping()
	buffer.AcquireMapping()
	require.Equal(t, 2, buffer.MappingCount())

	err := buffer.Destroy()
	require.ErrorIs(t, err, ttm.ErrMappingsOutstanding)
	require.Equal(t, ttm.StateUnbound, buffer.State())
	require.Equal(t, 2, device.ResidentPages())

	buffer.ReleaseMapping()
	buffer.ReleaseMapping()
	require.Panics(t, func() {
		buffer.ReleaseMapping()
	})
}

func TestDestroyLeaksPagesInUse(t *testing.T) {
	testCases := map[string]struct {
		Hold func(host *memhost.Host, page ttm.Page)
	}{
		"ExtraReference": {
			Hold: func(host *memhost.Host, page ttm.Page) { host.AddReference(page) },
		},
		"StillMapped": {
			Hold: func(host *memhost.Host, page ttm.Page) { host.SetMapped(page, true) },
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			host, driver, device := readyDevice(t, ctrl, DeviceSetup{})
			buffer, backend := readyTTM(t, ctrl, driver, device, 3)

			backend.EXPECT().Populate(gomock.Any()).Return(nil)
			require.NoError(t, buffer.Populate())

			testCase.Hold(host, buffer.Pages()[1])

			require.NoError(t, buffer.Destroy())
			require.Equal(t, 0, device.ResidentPages())
			require.Equal(t, 1, device.LeakedPages())
			require.Equal(t, 1, host.LivePages())
			require.NoError(t, device.Validate())
		})
	}
}
