package fetcher

import (
	"errors"
	"fmt"

	"github.com/Sternrassler/star-sweep/pkg/plan"
)

// ErrCoverageGap marks intervals whose population exceeds what the two
// listing windows can retrieve.
var ErrCoverageGap = errors.New("coverage gap")

// CoverageGapError identifies an interval that could only be partially fetched.
type CoverageGapError struct {
	Interval plan.Interval
	Total    int
	Cap      int
}

// Error implements the error interface.
func (e *CoverageGapError) Error() string {
	return fmt.Sprintf("coverage gap in %s: %d matches exceed two windows of %d (%d unreachable)",
		e.Interval, e.Total, e.Cap, e.Missing())
}

// Is makes errors.Is(err, ErrCoverageGap) match.
func (e *CoverageGapError) Is(target error) bool {
	return target == ErrCoverageGap
}

// Missing returns the number of items neither window can reach.
func (e *CoverageGapError) Missing() int {
	return max(0, e.Total-2*e.Cap)
}
