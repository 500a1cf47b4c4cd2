package motion

// DefaultAlpha favours responsiveness over noise rejection for the
// smoothed state feeding detection.
const DefaultAlpha = 0.3

// Smoother holds the single-pole low-pass state for one stream. Updates
// are order-dependent, so callers must apply samples sequentially.
type Smoother struct {
	alpha       float64
	state       Vector3
	initialized bool
}

func NewSmoother(alpha float64) *Smoother {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	return &Smoother{alpha: alpha}
}

// Apply folds a raw sample into the persisted state and returns the
// smoothed vector. The first sample seeds the state unfiltered.
func (s *Smoother) Apply(raw Vector3) Vector3 {
	if !s.initialized {
		s.state = raw
		s.initialized = true
		return s.state
	}
	s.state = Vector3{
		X: s.state.X + s.alpha*(raw.X-s.state.X),
		Y: s.state.Y + s.alpha*(raw.Y-s.state.Y),
		Z: s.state.Z + s.alpha*(raw.Z-s.state.Z),
	}
	return s.state
}

func (s *Smoother) State() Vector3 {
	return s.state
}

// Reset clears the filter state, used when a stream restarts after an
// accident resolves.
func (s *Smoother) Reset() {
	s.state = Vector3{}
	s.initialized = false
}
