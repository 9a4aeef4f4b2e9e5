package itinerary

import "fmt"

type phase uint8

const (
	phaseStart phase = iota
	phaseWalk
	phaseTransit
)

// RouteState is the riding state carried from one hop to the next.
// The zero value is the state before the first hop.
type RouteState struct {
	phase       phase
	current     string
	lastTransit string
}

// Riding returns the line currently ridden, or "" when not on transit.
func (s RouteState) Riding() string {
	if s.phase != phaseTransit {
		return ""
	}
	return s.current
}

// LastTransit returns the most recent transit line, kept across walks.
func (s RouteState) LastTransit() string {
	return s.lastTransit
}

// Walking reports whether the last hop was a walk.
func (s RouteState) Walking() bool {
	return s.phase == phaseWalk
}

// Selection is the outcome of choosing an option for one hop.
type Selection struct {
	Option EdgeOption
	Weight float64
	Cost   float64
	Action Action
	// Transfer is set when the selection switched lines and paid the transfer penalty.
	Transfer bool
}

// Synthesizer applies the cost model. It holds no per-request state and is safe
// for concurrent use.
type Synthesizer struct {
	cfg Config
}

// NewSynthesizer creates a synthesizer. Zero thresholds are replaced by defaults;
// penalties and the walking factor are used as given.
func NewSynthesizer(cfg Config) *Synthesizer {
	def := DefaultConfig()
	if cfg.MissingWeight == 0 {
		cfg.MissingWeight = def.MissingWeight
	}
	if cfg.ShortWalkMeters == 0 {
		cfg.ShortWalkMeters = def.ShortWalkMeters
	}
	if cfg.MinStitchMeters == 0 {
		cfg.MinStitchMeters = def.MinStitchMeters
	}
	return &Synthesizer{cfg: cfg}
}

// Config returns the effective configuration.
func (s *Synthesizer) Config() Config {
	return s.cfg
}

// Select picks one option for hop given the state after the previous hop and
// returns the selection with the state after this hop.
//
// An option on the line being ridden always wins. After a walk, an option on the
// last ridden line wins. Otherwise the cheapest option is taken, with the first
// one winning ties, and boarding or transfer penalties are applied.
func (s *Synthesizer) Select(hop Hop, state RouteState) (Selection, RouteState, error) {
	if len(hop.Options) == 0 {
		return Selection{}, state, fmt.Errorf("%w: %s -> %s", ErrDegenerateHop, hop.From.ID, hop.To.ID)
	}

	if state.phase == phaseTransit {
		if opt, ok := findTransit(hop.Options, state.current); ok {
			w := s.cfg.effectiveWeight(opt.Weight)
			sel := Selection{Option: opt, Weight: w, Cost: w, Action: ActionContinue}
			return sel, state.after(opt), nil
		}
	}

	if state.phase == phaseWalk && state.lastTransit != "" {
		if opt, ok := findTransit(hop.Options, state.lastTransit); ok {
			w := s.cfg.effectiveWeight(opt.Weight)
			sel := Selection{Option: opt, Weight: w, Cost: w, Action: ActionContinue}
			return sel, state.after(opt), nil
		}
	}

	opt := hop.Options[0]
	w := s.cfg.effectiveWeight(opt.Weight)
	for _, o := range hop.Options[1:] {
		if ow := s.cfg.effectiveWeight(o.Weight); ow < w {
			opt, w = o, ow
		}
	}

	sel := Selection{Option: opt, Weight: w}
	switch {
	case !opt.IsTransit():
		sel.Cost = w * s.cfg.WalkingFactor
		sel.Action = ActionWalk
	case state.phase == phaseStart:
		sel.Cost = w + s.cfg.BoardingPenalty
		sel.Action = ActionBoard
	case opt.Route == state.lastTransit:
		sel.Cost = w
		sel.Action = ActionContinue
	case state.lastTransit == "":
		sel.Cost = w + s.cfg.BoardingPenalty
		sel.Action = ActionBoard
	default:
		sel.Cost = w + s.cfg.TransferPenalty
		sel.Action = ActionTransfer
		sel.Transfer = true
	}

	return sel, state.after(opt), nil
}

func (s RouteState) after(opt EdgeOption) RouteState {
	if opt.IsTransit() {
		return RouteState{phase: phaseTransit, current: opt.Route, lastTransit: opt.Route}
	}
	return RouteState{phase: phaseWalk, current: "", lastTransit: s.lastTransit}
}

func findTransit(options []EdgeOption, route string) (EdgeOption, bool) {
	for _, o := range options {
		if o.IsTransit() && o.Route == route {
			return o, true
		}
	}
	return EdgeOption{}, false
}
