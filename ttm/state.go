package ttm

// State is a TTM's position in its binding lifecycle.
type State uint32

const (
	// StateUnpopulated indicates that the TTM's pages have not all been materialized yet
	StateUnpopulated State = iota
	// StateUnbound indicates that every page is resident and the backend holds the page list, but
	// the pages are not bound into the aperture
	StateUnbound
	// StateBound indicates that the pages are bound into the aperture
	StateBound
	// StateEvicted indicates that the pages were removed from the aperture but the caching fix-up
	// that follows an unbind has not run yet
	StateEvicted
	// StateDestroyed indicates that the TTM has released everything it owned
	StateDestroyed
)

var stateMapping = map[State]string{
	StateUnpopulated: "StateUnpopulated",
	StateUnbound:     "StateUnbound",
	StateBound:       "StateBound",
	StateEvicted:     "StateEvicted",
	StateDestroyed:   "StateDestroyed",
}

func (s State) String() string {
	return stateMapping[s]
}
