// Package aperture implements ttm.Backend for a GART-style aperture: a fixed table of entries, each of
// which points the GPU at one host page. Binding a TTM writes its page list into a run of consecutive
// entries, either at the start the region asks for or wherever a run of free entries is found first.
package aperture

import (
	"io"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/ttm/memutils"
	"github.com/vkngwrapper/ttm/ttm"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
)

var (
	// ErrNoSpace is returned when no run of free entries is large enough for a binding
	ErrNoSpace = errors.New("aperture: no space")
	// ErrRangeBusy is returned when a region asks for entries that are occupied or out of bounds
	ErrRangeBusy = errors.New("aperture: range busy")
)

// AnyStart can be used as a Region's Start to let the table place the binding
const AnyStart = -1

// Table is the aperture's translation table. It is safe for concurrent use.
type Table struct {
	logger *slog.Logger

	mutex    sync.Mutex
	entries  []ttm.Page
	free     *freeRanges
	bindings *swiss.Map[*Backend, int]
}

// NewTable creates a table of numEntries empty entries
func NewTable(logger *slog.Logger, numEntries int) (*Table, error) {
	if numEntries <= 0 {
		return nil, errors.Newf("aperture table must have at least one entry, but %d were requested", numEntries)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Table{
		logger:   logger,
		entries:  make([]ttm.Page, numEntries),
		free:     newFreeRanges(numEntries),
		bindings: swiss.NewMap[*Backend, int](32),
	}, nil
}

func (t *Table) NumEntries() int { return len(t.entries) }

// FreeEntries returns the number of entries not occupied by a binding
func (t *Table) FreeEntries() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return t.free.freeCount
}

// Entry returns the page an entry points at, or ttm.NoPage
func (t *Table) Entry(index int) ttm.Page {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return t.entries[index]
}

func (t *Table) bind(backend *Backend, start int) (int, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.bindings.Has(backend) {
		return 0, errors.New("backend is already bound into this table")
	}

	count := len(backend.pages)

	if count == 0 {
		// An empty binding occupies no entries
		if start == AnyStart {
			start = 0
		} else if start < 0 || start > len(t.entries) {
			return 0, errors.Wrapf(ErrRangeBusy, "entry %d is out of bounds", start)
		}
	} else if start == AnyStart {
		var ok bool
		start, ok = t.free.allocFirstFit(count)
		if !ok {
			return 0, errors.Wrapf(ErrNoSpace, "no run of %d free entries (largest is %d)", count, t.free.largest())
		}
	} else if start < 0 || start+count > len(t.entries) || !t.free.allocAt(start, count) {
		return 0, errors.Wrapf(ErrRangeBusy, "entries %d-%d are not free", start, start+count)
	}

	copy(t.entries[start:start+count], backend.pages)
	t.bindings.Put(backend, start)

	t.logger.Debug("Table::bind", slog.Int("Start", start), slog.Int("Count", count))
	memutils.DebugValidate(t)
	return start, nil
}

func (t *Table) unbind(backend *Backend) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	start, ok := t.bindings.Get(backend)
	if !ok {
		return errors.New("backend is not bound into this table")
	}
	t.bindings.Delete(backend)

	count := len(backend.pages)
	if count > 0 {
		for i := start; i < start+count; i++ {
			t.entries[i] = ttm.NoPage
		}
		t.free.release(start, count)
	}

	t.logger.Debug("Table::unbind", slog.Int("Start", start), slog.Int("Count", count))
	memutils.DebugValidate(t)
	return nil
}

// Bindings returns the number of backends bound into the table, including empty ones
func (t *Table) Bindings() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return t.bindings.Count()
}

// Validate checks that the free ranges and bindings exactly tile the table
func (t *Table) Validate() error {
	err := t.free.Validate(len(t.entries))
	if err != nil {
		return err
	}

	occupied := 0
	t.bindings.Iter(func(backend *Backend, start int) bool {
		if backend.bound && backend.start != start {
			err = errors.Newf("binding registered at entry %d believes it starts at %d", start, backend.start)
			return true
		}
		for i, page := range backend.pages {
			if t.entries[start+i] != page {
				err = errors.Newf("entry %d does not point at page %d of the binding at %d", start+i, i, start)
				return true
			}
		}
		occupied += len(backend.pages)
		return false
	})
	if err != nil {
		return err
	}

	if occupied+t.free.freeCount != len(t.entries) {
		return errors.Newf("bindings occupy %d entries and %d are free, but the table has %d", occupied, t.free.freeCount, len(t.entries))
	}
	return nil
}

var _ memutils.Validatable = &Table{}

// WriteJSON writes the table's occupancy into a JSON object
func (t *Table) WriteJSON(writer *jwriter.Writer) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	obj := writer.Object()
	defer obj.End()

	obj.Name("Entries").Int(len(t.entries))
	obj.Name("FreeEntries").Int(t.free.freeCount)
	obj.Name("LargestFreeRun").Int(t.free.largest())

	type binding struct {
		start    int
		numPages int
	}
	bindings := make([]binding, 0, t.bindings.Count())
	t.bindings.Iter(func(backend *Backend, start int) bool {
		bindings = append(bindings, binding{start: start, numPages: len(backend.pages)})
		return false
	})
	slices.SortFunc(bindings, func(a, b binding) int {
		if a.start != b.start {
			return a.start - b.start
		}
		return a.numPages - b.numPages
	})

	bindingsArr := obj.Name("Bindings").Array()
	defer bindingsArr.End()

	for _, b := range bindings {
		bindingObj := bindingsArr.Object()
		bindingObj.Name("Start").Int(b.start)
		bindingObj.Name("NumPages").Int(b.numPages)
		bindingObj.End()
	}
}
