// Package plan defines star intervals and the ordered fetch plan built from them,
// together with the plain-text format used to persist a plan between runs.
package plan

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Errors returned by plan parsing and validation.
var (
	// ErrInvalidInterval is returned for an interval with Low > High.
	ErrInvalidInterval = errors.New("invalid interval")

	// ErrOutOfOrder is returned when intervals overlap or are not increasing.
	ErrOutOfOrder = errors.New("intervals out of order")
)

// Marker is the optional line prefix accepted by Parse.
// The planner prefixes its commit log lines with it.
const Marker = 'p'

// Interval is a closed range of star counts, [Low, High].
type Interval struct {
	Low  int `json:"low"`
	High int `json:"high"`
}

// NewInterval creates an interval and checks Low <= High.
func NewInterval(low, high int) (Interval, error) {
	if low > high {
		return Interval{}, fmt.Errorf("%w: %d..%d", ErrInvalidInterval, low, high)
	}
	return Interval{Low: low, High: high}, nil
}

// String renders the interval as "low..high".
func (iv Interval) String() string {
	return fmt.Sprintf("%d..%d", iv.Low, iv.High)
}

// Width returns the number of distinct scores covered.
func (iv Interval) Width() int {
	return iv.High - iv.Low + 1
}

// Contains reports whether score lies inside the interval.
func (iv Interval) Contains(score int) bool {
	return score >= iv.Low && score <= iv.High
}

// Plan is an ordered sequence of intervals. Order defines fetch and resume order.
type Plan []Interval

// Last returns the final interval and false if the plan is empty.
func (p Plan) Last() (Interval, bool) {
	if len(p) == 0 {
		return Interval{}, false
	}
	return p[len(p)-1], true
}

// Next returns the score planning should continue from: one past the last
// committed upper bound, or start when the plan is empty.
func (p Plan) Next(start int) int {
	if last, ok := p.Last(); ok {
		return last.High + 1
	}
	return start
}

// Validate checks that every interval is well formed and that intervals are
// strictly increasing and non-overlapping. Gaps are allowed.
func (p Plan) Validate() error {
	for i, iv := range p {
		if iv.Low > iv.High {
			return fmt.Errorf("%w at %d: %s", ErrInvalidInterval, i, iv)
		}
		if i > 0 && iv.Low <= p[i-1].High {
			return fmt.Errorf("%w at %d: %s after %s", ErrOutOfOrder, i, iv, p[i-1])
		}
	}
	return nil
}

// Parse reads a plan, one "low..high" pair per line. A leading Marker and
// surrounding whitespace are ignored, as are blank lines.
func Parse(r io.Reader) (Plan, error) {
	var p Plan
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line[0] == Marker {
			line = strings.TrimSpace(line[1:])
		}

		iv, err := parseInterval(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		p = append(p, iv)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func parseInterval(s string) (Interval, error) {
	lowStr, highStr, ok := strings.Cut(s, "..")
	if !ok {
		return Interval{}, fmt.Errorf("%w: missing \"..\" in %q", ErrInvalidInterval, s)
	}
	low, err := strconv.Atoi(strings.TrimSpace(lowStr))
	if err != nil {
		return Interval{}, fmt.Errorf("parse low bound: %w", err)
	}
	high, err := strconv.Atoi(strings.TrimSpace(highStr))
	if err != nil {
		return Interval{}, fmt.Errorf("parse high bound: %w", err)
	}
	return NewInterval(low, high)
}

// Render writes the plan in the format accepted by Parse, without markers.
func Render(w io.Writer, p Plan) error {
	bw := bufio.NewWriter(w)
	for _, iv := range p {
		if _, err := fmt.Fprintf(bw, "%d..%d\n", iv.Low, iv.High); err != nil {
			return fmt.Errorf("write plan: %w", err)
		}
	}
	return bw.Flush()
}

// ReadFile parses the plan stored at path.
func ReadFile(path string) (Plan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plan: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// WriteFile stores the plan at path, replacing any existing file.
func WriteFile(path string, p Plan) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create plan: %w", err)
	}
	if err := Render(f, p); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
