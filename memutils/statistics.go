package memutils

import "math"

// Statistics is a summary of the page backing held by a set of TTMs.
type Statistics struct {
	TTMCount      int
	ResidentPages int
	PinnedPages   int
	UncachedTTMs  int
	BoundTTMs     int
	LeakedPages   int
}

func (s *Statistics) Clear() {
	s.TTMCount = 0
	s.ResidentPages = 0
	s.PinnedPages = 0
	s.UncachedTTMs = 0
	s.BoundTTMs = 0
	s.LeakedPages = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.TTMCount += other.TTMCount
	s.ResidentPages += other.ResidentPages
	s.PinnedPages += other.PinnedPages
	s.UncachedTTMs += other.UncachedTTMs
	s.BoundTTMs += other.BoundTTMs
	s.LeakedPages += other.LeakedPages
}

// DetailedStatistics extends Statistics with size extremes and the number of slots that hold no page.
type DetailedStatistics struct {
	Statistics
	EmptySlots    int
	TTMPagesMin   int
	TTMPagesMax   int
	DummySlots    int
	NumPagesTotal int
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.EmptySlots = 0
	s.TTMPagesMin = math.MaxInt
	s.TTMPagesMax = 0
	s.DummySlots = 0
	s.NumPagesTotal = 0
}

// AddTTM records one TTM of numPages slots.
func (s *DetailedStatistics) AddTTM(numPages int) {
	s.TTMCount++
	s.NumPagesTotal += numPages

	if numPages < s.TTMPagesMin {
		s.TTMPagesMin = numPages
	}

	if numPages > s.TTMPagesMax {
		s.TTMPagesMax = numPages
	}
}

func (s *DetailedStatistics) AddDetailedStatistics(other *DetailedStatistics) {
	s.Statistics.AddStatistics(&other.Statistics)
	s.EmptySlots += other.EmptySlots
	s.DummySlots += other.DummySlots
	s.NumPagesTotal += other.NumPagesTotal

	if other.TTMPagesMin < s.TTMPagesMin {
		s.TTMPagesMin = other.TTMPagesMin
	}

	if other.TTMPagesMax > s.TTMPagesMax {
		s.TTMPagesMax = other.TTMPagesMax
	}
}
