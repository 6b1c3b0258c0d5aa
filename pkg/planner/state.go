package planner

import "github.com/Sternrassler/star-sweep/pkg/plan"

// Phase is the outcome of applying one probe count to the probe state.
type Phase int

const (
	// Growing means the probed window is still under the cap and was widened.
	Growing Phase = iota

	// Overshot means the window passed the cap and the interval before the last
	// growth step was committed.
	Overshot

	// SkippingSingleton means a single score alone exceeds twice the cap.
	SkippingSingleton

	// Done means the score space above start is exhausted.
	Done
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	switch p {
	case Growing:
		return "growing"
	case Overshot:
		return "overshot"
	case SkippingSingleton:
		return "skipping_singleton"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// probeState is the planner's position: the next probe covers
// [start, start+offset], and multiplier is the next growth step.
type probeState struct {
	start      int
	offset     int
	multiplier int
}

func initialState(start int) probeState {
	return probeState{start: start, offset: 0, multiplier: 1}
}

func (s probeState) window() plan.Interval {
	return plan.Interval{Low: s.start, High: s.start + s.offset}
}

// advance applies the count n observed for s.window(). It returns the next
// state, the phase taken and, for Overshot, the committed interval.
func advance(s probeState, n int, cfg Config) (probeState, Phase, plan.Interval) {
	switch {
	case s.multiplier >= cfg.Ceiling && n == 0:
		return s, Done, plan.Interval{}

	case s.multiplier < cfg.Ceiling && n < cfg.Cap:
		s.offset += s.multiplier
		s.multiplier *= 2
		return s, Growing, plan.Interval{}

	case n > 2*cfg.Cap && s.offset == 0:
		return initialState(s.start + 1), SkippingSingleton, plan.Interval{}

	default:
		// Back off by half of the last growth step. Without a prior growth step
		// in this window the step clamps to the singleton [start, start].
		step := max(0, s.offset-s.multiplier/2)
		committed := plan.Interval{Low: s.start, High: s.start + step}
		next := probeState{
			start:      s.start + step + 1,
			offset:     0,
			multiplier: max(1, s.multiplier/2),
		}
		return next, Overshot, committed
	}
}
