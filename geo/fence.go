package geo

// State of a Fence.
type State byte

// All fence states. Inside and Outside are terminal.
const (
	Pending State = iota
	Inside
	Outside
	Ambiguous
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Inside:
		return "inside"
	case Outside:
		return "outside"
	case Ambiguous:
		return "ambiguous"
	default:
		return "unknown"
	}
}

// Resolved reports if the state is terminal.
func (s State) Resolved() bool {
	return s == Inside || s == Outside
}

// Fence evaluates location fixes against a broadcast area.
// A Fence is not safe for concurrent use.
type Fence struct {
	polygons  []Polygon
	tolerance float64
	state     State
}

// NewFence returns a pending fence for the given broadcast area. The tolerance in metres is added
// to the accuracy radius of every fix when deciding whether a fix is too close to a boundary.
func NewFence(polygons []Polygon, tolerance float64) *Fence {
	if tolerance < 0 {
		tolerance = 0
	}
	valid := make([]Polygon, 0, len(polygons))
	for _, polygon := range polygons {
		if polygon.Valid() {
			valid = append(valid, polygon)
		}
	}
	return &Fence{
		polygons:  valid,
		tolerance: tolerance,
		state:     Pending,
	}
}

// Polygons returns the broadcast area of this fence.
func (f *Fence) Polygons() []Polygon {
	return f.polygons
}

// State returns the current state.
func (f *Fence) State() State {
	return f.state
}

// Add evaluates a location fix with the given accuracy radius in metres and returns the new state.
// Once the fence is resolved further fixes are ignored. A fence without polygons does not restrict
// anything and resolves Inside with the first fix.
func (f *Fence) Add(point LatLng, accuracy float64) State {
	if f.state.Resolved() {
		return f.state
	}
	if len(f.polygons) == 0 {
		f.state = Inside
		return f.state
	}
	if accuracy < 0 {
		accuracy = 0
	}
	margin := accuracy + f.tolerance

	nearBoundary := false
	for _, polygon := range f.polygons {
		distance := polygon.BoundaryDistance(point)
		near := margin > 0 && distance < margin
		if polygon.Contains(point) && !near {
			f.state = Inside
			return f.state
		}
		nearBoundary = nearBoundary || near
	}

	if nearBoundary {
		f.state = Ambiguous
	} else {
		f.state = Outside
	}
	return f.state
}

// Resolve forces a terminal state, e.g. when no location is available anymore.
// A fence that is already resolved keeps its state.
func (f *Fence) Resolve(inside bool) State {
	if f.state.Resolved() {
		return f.state
	}
	if inside {
		f.state = Inside
	} else {
		f.state = Outside
	}
	return f.state
}
