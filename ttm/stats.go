package ttm

import (
	"strconv"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/ttm/memutils"
)

// CalculateStatistics adds the page backing held by every live TTM of the device into stats. Leaked
// pages are counted per device, not per TTM.
func (d *Device) CalculateStatistics(stats *memutils.Statistics) {
	d.ttmsMutex.RLock()
	defer d.ttmsMutex.RUnlock()

	for ttm := d.ttms.head; ttm != nil; ttm = ttm.next {
		ttm.addStatistics(stats)
	}

	stats.LeakedPages += d.LeakedPages()
}

// CalculateDetailedStatistics is CalculateStatistics with per-TTM size extremes and slot occupancy
func (d *Device) CalculateDetailedStatistics(stats *memutils.DetailedStatistics) {
	d.ttmsMutex.RLock()
	defer d.ttmsMutex.RUnlock()

	for ttm := d.ttms.head; ttm != nil; ttm = ttm.next {
		ttm.addDetailedStatistics(stats)
	}

	stats.LeakedPages += d.LeakedPages()
}

func (t *TTM) addStatistics(stats *memutils.Statistics) {
	stats.TTMCount++
	t.addPageStatistics(stats)
}

func (t *TTM) addPageStatistics(stats *memutils.Statistics) {
	flags := t.loadFlags()
	if flags&PageFlagUser != 0 {
		stats.PinnedPages += t.residentCount()
	} else {
		stats.ResidentPages += t.residentCount()
	}

	if flags&PageFlagUncached != 0 {
		stats.UncachedTTMs++
	}
	if t.loadState() == StateBound {
		stats.BoundTTMs++
	}
}

func (t *TTM) addDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.AddTTM(t.numPages)
	t.addPageStatistics(&stats.Statistics)

	resident, dummy := t.residentCount(), t.dummyCount()
	stats.DummySlots += dummy
	stats.EmptySlots += t.numPages - resident - dummy
}

// BuildStatsString produces a JSON document describing the device's page accounting. With detailed
// set, every live TTM is listed as well.
func (d *Device) BuildStatsString(detailed bool) string {
	writer := jwriter.NewWriter()

	obj := writer.Object()

	var stats memutils.DetailedStatistics
	stats.Clear()
	d.CalculateDetailedStatistics(&stats)

	totalObj := obj.Name("Total").Object()
	printDetailedStatistics(&totalObj, &stats)
	totalObj.End()

	deviceObj := obj.Name("Device").Object()
	deviceObj.Name("Flags").String(d.createFlags.String())
	deviceObj.Name("MaxResidentPages").Int(int(d.maxResidentPages))
	deviceObj.Name("ResidentPages").Int(d.ResidentPages())
	deviceObj.Name("FlushCount").Int(d.FlushCount())
	deviceObj.Name("FlushTimeout").String(d.flushTimeout.String())
	deviceObj.End()

	if detailed {
		d.printDetailedMap(&obj)
	}

	obj.End()

	return string(writer.Bytes())
}

func printDetailedStatistics(json *jwriter.ObjectState, stats *memutils.DetailedStatistics) {
	json.Name("TTMCount").Int(stats.TTMCount)
	json.Name("ResidentPages").Int(stats.ResidentPages)
	json.Name("PinnedPages").Int(stats.PinnedPages)
	json.Name("UncachedTTMs").Int(stats.UncachedTTMs)
	json.Name("BoundTTMs").Int(stats.BoundTTMs)
	json.Name("LeakedPages").Int(stats.LeakedPages)
	json.Name("NumPagesTotal").Int(stats.NumPagesTotal)
	json.Name("EmptySlots").Int(stats.EmptySlots)
	json.Name("DummySlots").Int(stats.DummySlots)

	if stats.TTMCount > 0 {
		json.Name("TTMPagesMin").Int(stats.TTMPagesMin)
		json.Name("TTMPagesMax").Int(stats.TTMPagesMax)
	}
}

func (d *Device) printDetailedMap(json *jwriter.ObjectState) {
	d.ttmsMutex.RLock()
	defer d.ttmsMutex.RUnlock()

	ttmsObj := json.Name("TTMs").Object()
	defer ttmsObj.End()

	index := 0
	for ttm := d.ttms.head; ttm != nil; ttm = ttm.next {
		ttmObj := ttmsObj.Name(strconv.Itoa(index)).Object()
		ttm.printParameters(&ttmObj)
		ttmObj.End()
		index++
	}
}

func (t *TTM) printParameters(json *jwriter.ObjectState) {
	json.Name("State").String(t.loadState().String())
	json.Name("Flags").String(t.loadFlags().String())
	json.Name("NumPages").Int(t.numPages)
	json.Name("ResidentPages").Int(t.residentCount())
	json.Name("MapCount").Int(t.MappingCount())
}
