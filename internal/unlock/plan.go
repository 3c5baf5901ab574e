package unlock

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/replay_capture/internal/types"
)

//go:embed default_plan.yaml
var defaultPlanYAML []byte

const (
	KindCenter  = "center"
	KindPoints  = "points"
	KindOffsets = "offsets"
	KindGrid    = "grid"

	PredicateOnPositive = "on_positive"
	PredicateOnGtOff    = "on_gt_off"
)

// Plan is a declarative unlock recipe: how to read the audio state, what to
// run before clicking, and which coordinates to try in which order.
type Plan struct {
	Probe      ProbeSpec   `yaml:"probe"`
	Prime      string      `yaml:"prime"`
	Gesture    GestureSpec `yaml:"gesture"`
	Strategies []Strategy  `yaml:"strategies"`
	Fallback   Fallback    `yaml:"fallback"`
}

type ProbeSpec struct {
	On        string `yaml:"on"`
	Off       string `yaml:"off"`
	Predicate string `yaml:"predicate"`
}

type GestureSpec struct {
	MoveSteps int `yaml:"move_steps"`
	DwellMS   int `yaml:"dwell_ms"`
	PauseMS   int `yaml:"pause_ms"`
	SettleMS  int `yaml:"settle_ms"`
}

// Point is a coordinate as fractions of the surface box.
type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Offset is a named coordinate in CSS pixels from the surface origin.
type Offset struct {
	Name string  `yaml:"name"`
	DX   float64 `yaml:"dx"`
	DY   float64 `yaml:"dy"`
}

// Grid sweeps x across each y level, all as fractions of the surface box.
type Grid struct {
	XFrom   float64   `yaml:"x_from"`
	XTo     float64   `yaml:"x_to"`
	XStep   float64   `yaml:"x_step"`
	YLevels []float64 `yaml:"y_levels"`
}

type Strategy struct {
	Name    string   `yaml:"name"`
	Kind    string   `yaml:"kind"`
	Points  []Point  `yaml:"points,omitempty"`
	Offsets []Offset `yaml:"offsets,omitempty"`
	Grid    *Grid    `yaml:"grid,omitempty"`
}

// Fallback is the single likely toggle polled in a tight loop once the
// ranked strategies are exhausted.
type Fallback struct {
	Point       *Point  `yaml:"point,omitempty"`
	Offset      *Offset `yaml:"offset,omitempty"`
	IntervalMS  int     `yaml:"interval_ms"`
	MaxAttempts int     `yaml:"max_attempts"`
}

// Candidate is one resolved gesture target.
type Candidate struct {
	Strategy string
	X, Y     float64
}

// DefaultPlan returns the built-in plan.
func DefaultPlan() (Plan, error) {
	return ParsePlan(defaultPlanYAML)
}

// LoadPlan reads a plan file, or the built-in plan when path is empty.
func LoadPlan(path string) (Plan, error) {
	if path == "" {
		return DefaultPlan()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, fmt.Errorf("unlock plan: %w", err)
	}
	return ParsePlan(data)
}

// ParsePlan decodes and validates a YAML plan.
func ParsePlan(data []byte) (Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Plan{}, fmt.Errorf("unlock plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	return p, nil
}

// Validate checks the plan and fills defaults.
func (p *Plan) Validate() error {
	if p.Probe.On == "" {
		return fmt.Errorf("unlock plan: probe.on is required")
	}
	if p.Probe.Off == "" {
		p.Probe.Off = "0"
	}
	switch p.Probe.Predicate {
	case "":
		p.Probe.Predicate = PredicateOnPositive
	case PredicateOnPositive, PredicateOnGtOff:
	default:
		return fmt.Errorf("unlock plan: unknown predicate %q", p.Probe.Predicate)
	}
	if p.Gesture.MoveSteps < 1 {
		p.Gesture.MoveSteps = 1
	}
	for i, s := range p.Strategies {
		switch s.Kind {
		case KindCenter:
		case KindPoints:
			if len(s.Points) == 0 {
				return fmt.Errorf("unlock plan: strategies[%d] %q has no points", i, s.Name)
			}
		case KindOffsets:
			if len(s.Offsets) == 0 {
				return fmt.Errorf("unlock plan: strategies[%d] %q has no offsets", i, s.Name)
			}
		case KindGrid:
			if s.Grid == nil || s.Grid.XStep <= 0 || len(s.Grid.YLevels) == 0 || s.Grid.XTo < s.Grid.XFrom {
				return fmt.Errorf("unlock plan: strategies[%d] %q has an unusable grid", i, s.Name)
			}
		default:
			return fmt.Errorf("unlock plan: strategies[%d] has unknown kind %q", i, s.Kind)
		}
	}
	if p.Fallback.Point == nil && p.Fallback.Offset == nil {
		return fmt.Errorf("unlock plan: fallback needs a point or an offset")
	}
	if p.Fallback.MaxAttempts < 0 {
		return fmt.Errorf("unlock plan: fallback.max_attempts must not be negative")
	}
	return nil
}

// Candidates expands the ranked strategies against a surface box in order.
func (p Plan) Candidates(box types.Box) []Candidate {
	var out []Candidate
	for _, s := range p.Strategies {
		switch s.Kind {
		case KindCenter:
			x, y := box.Center()
			out = append(out, Candidate{Strategy: s.Name, X: x, Y: y})
		case KindPoints:
			for _, pt := range s.Points {
				x, y := box.At(pt.X, pt.Y)
				out = append(out, Candidate{Strategy: s.Name, X: x, Y: y})
			}
		case KindOffsets:
			for _, o := range s.Offsets {
				out = append(out, Candidate{Strategy: s.Name, X: box.X + o.DX, Y: box.Y + o.DY})
			}
		case KindGrid:
			g := s.Grid
			for _, fy := range g.YLevels {
				for fx := g.XFrom; fx <= g.XTo+1e-9; fx += g.XStep {
					x, y := box.At(fx, fy)
					out = append(out, Candidate{Strategy: s.Name, X: x, Y: y})
				}
			}
		}
	}
	return out
}

// FallbackCandidate resolves the fallback toggle against a surface box.
func (p Plan) FallbackCandidate(box types.Box) Candidate {
	if p.Fallback.Offset != nil {
		return Candidate{Strategy: "fallback", X: box.X + p.Fallback.Offset.DX, Y: box.Y + p.Fallback.Offset.DY}
	}
	x, y := box.At(p.Fallback.Point.X, p.Fallback.Point.Y)
	return Candidate{Strategy: "fallback", X: x, Y: y}
}

func (g GestureSpec) dwell() time.Duration  { return time.Duration(g.DwellMS) * time.Millisecond }
func (g GestureSpec) pause() time.Duration  { return time.Duration(g.PauseMS) * time.Millisecond }
func (g GestureSpec) settle() time.Duration { return time.Duration(g.SettleMS) * time.Millisecond }
