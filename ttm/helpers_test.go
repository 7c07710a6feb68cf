package ttm_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/ttm/host/memhost"
	"github.com/vkngwrapper/ttm/ttm"
	"go.uber.org/mock/gomock"
	"golang.org/x/exp/slog"
)

type DeviceSetup struct {
	HostOptions   memhost.Options
	DeviceOptions ttm.DeviceOptions
	// Driver replaces the mock driver when a test needs a driver with optional capabilities
	Driver func(driver *MockDriver) ttm.Driver
}

func readyDevice(t *testing.T, ctrl *gomock.Controller, setup DeviceSetup) (*memhost.Host, *MockDriver, *ttm.Device) {
	if setup.HostOptions.NumCPU == 0 {
		setup.HostOptions.NumCPU = 4
	}
	host := memhost.New(setup.HostOptions)
	driver := NewMockDriver(ctrl)

	var deviceDriver ttm.Driver = driver
	if setup.Driver != nil {
		deviceDriver = setup.Driver(driver)
	}

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	device, err := ttm.NewDevice(logger, host, deviceDriver, setup.DeviceOptions)
	require.NoError(t, err)

	return host, driver, device
}

// readyTTM creates a TTM whose backend is a fresh mock. The backend expects to be destroyed exactly
// once, and the TTM is destroyed during test cleanup if the test did not do so itself.
func readyTTM(t *testing.T, ctrl *gomock.Controller, driver *MockDriver, device *ttm.Device, numPages int) (*ttm.TTM, *MockBackend) {
	backend := NewMockBackend(ctrl)
	driver.EXPECT().CreateBackend(device).Return(backend, nil)
	backend.EXPECT().Destroy()

	buffer, err := ttm.Create(device, numPages*ttm.PageSize)
	require.NoError(t, err)
	require.Equal(t, numPages, buffer.NumPages())

	t.Cleanup(func() {
		require.NoError(t, buffer.Destroy())
	})

	return buffer, backend
}

// populated is a gomock matcher for a page list in which every slot holds a page
type populated struct {
	numPages int
}

func (p populated) Matches(x any) bool {
	pages, ok := x.([]ttm.Page)
	if !ok || len(pages) != p.numPages {
		return false
	}
	for _, page := range pages {
		if page == ttm.NoPage {
			return false
		}
	}
	return true
}

func (p populated) String() string {
	return "is a fully populated page list"
}
