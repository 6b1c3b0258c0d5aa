package planner

import (
	"testing"

	"github.com/Sternrassler/star-sweep/pkg/plan"
)

func TestAdvance(t *testing.T) {
	cfg := Config{Cap: 1000, Ceiling: 1 << 20}

	tests := []struct {
		name          string
		state         probeState
		count         int
		wantPhase     Phase
		wantState     probeState
		wantCommitted plan.Interval
	}{
		{
			name:      "under cap grows window",
			state:     probeState{start: 50, offset: 0, multiplier: 1},
			count:     400,
			wantPhase: Growing,
			wantState: probeState{start: 50, offset: 1, multiplier: 2},
		},
		{
			name:      "growth doubles the step",
			state:     probeState{start: 50, offset: 3, multiplier: 4},
			count:     900,
			wantPhase: Growing,
			wantState: probeState{start: 50, offset: 7, multiplier: 8},
		},
		{
			name:          "overshoot commits window before last growth",
			state:         probeState{start: 50, offset: 7, multiplier: 8},
			count:         1200,
			wantPhase:     Overshot,
			wantState:     probeState{start: 54, offset: 0, multiplier: 4},
			wantCommitted: plan.Interval{Low: 50, High: 53},
		},
		{
			name:          "overshoot on first probe commits singleton",
			state:         probeState{start: 50, offset: 0, multiplier: 1},
			count:         1500,
			wantPhase:     Overshot,
			wantState:     probeState{start: 51, offset: 0, multiplier: 1},
			wantCommitted: plan.Interval{Low: 50, High: 50},
		},
		{
			name:          "overshoot before growth clamps step",
			state:         probeState{start: 90, offset: 0, multiplier: 8},
			count:         1800,
			wantPhase:     Overshot,
			wantState:     probeState{start: 91, offset: 0, multiplier: 4},
			wantCommitted: plan.Interval{Low: 90, High: 90},
		},
		{
			name:      "singleton above twice the cap is skipped",
			state:     probeState{start: 50, offset: 0, multiplier: 4},
			count:     2500,
			wantPhase: SkippingSingleton,
			wantState: probeState{start: 51, offset: 0, multiplier: 1},
		},
		{
			name:          "wide window above twice the cap commits",
			state:         probeState{start: 50, offset: 3, multiplier: 4},
			count:         2500,
			wantPhase:     Overshot,
			wantState:     probeState{start: 52, offset: 0, multiplier: 2},
			wantCommitted: plan.Interval{Low: 50, High: 51},
		},
		{
			name:      "empty probe at ceiling is done",
			state:     probeState{start: 5000, offset: 1<<20 - 1, multiplier: 1 << 20},
			count:     0,
			wantPhase: Done,
			wantState: probeState{start: 5000, offset: 1<<20 - 1, multiplier: 1 << 20},
		},
		{
			name:          "sparse tail at ceiling commits",
			state:         probeState{start: 5000, offset: 1<<20 - 1, multiplier: 1 << 20},
			count:         12,
			wantPhase:     Overshot,
			wantState:     probeState{start: 5000 + 1<<19, offset: 0, multiplier: 1 << 19},
			wantCommitted: plan.Interval{Low: 5000, High: 5000 + 1<<19 - 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, phase, committed := advance(tt.state, tt.count, cfg)
			if phase != tt.wantPhase {
				t.Errorf("phase = %v, want %v", phase, tt.wantPhase)
			}
			if next != tt.wantState {
				t.Errorf("state = %+v, want %+v", next, tt.wantState)
			}
			if committed != tt.wantCommitted {
				t.Errorf("committed = %v, want %v", committed, tt.wantCommitted)
			}
		})
	}
}

func TestPhase_String(t *testing.T) {
	tests := map[Phase]string{
		Growing:           "growing",
		Overshot:          "overshot",
		SkippingSingleton: "skipping_singleton",
		Done:              "done",
		Phase(42):         "unknown",
	}
	for phase, want := range tests {
		if got := phase.String(); got != want {
			t.Errorf("Phase(%d).String() = %q, want %q", phase, got, want)
		}
	}
}
