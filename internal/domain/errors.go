package domain

import (
	"errors"
	"fmt"
)

// ErrTooManyMembers is returned when an ensemble is larger than the int16 counts can hold.
var ErrTooManyMembers = errors.New("ensemble member count exceeds histogram count capacity")

// DegenerateGridError reports a source point set that cannot be triangulated.
type DegenerateGridError struct {
	Points int    // Number of points supplied.
	Reason string // E.g., "fewer than 3 points", "all points collinear".
}

func (e *DegenerateGridError) Error() string {
	return fmt.Sprintf("degenerate source grid (%d points): %s", e.Points, e.Reason)
}

// ShapeMismatchError reports an axis that does not hold the indices a reduction needs.
type ShapeMismatchError struct {
	Field string
	Axis  string // "step", "member", "point" or "series".
	Need  int
	Have  int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("shape mismatch for %s: %s axis needs %d entries, has %d", e.Field, e.Axis, e.Need, e.Have)
}

// UnknownFieldError reports a field missing from the descriptor or constants table.
type UnknownFieldError struct {
	Name string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown field %q", e.Name)
}

// OutOfDomainWarning reports destination points outside the source convex hull.
// The affected values are NaN; the warning never invalidates the result.
type OutOfDomainWarning struct {
	Field    string
	Excluded int
	Total    int
}

func (e *OutOfDomainWarning) Error() string {
	return fmt.Sprintf("%s: %d of %d destination points outside source domain (NaN)", e.Field, e.Excluded, e.Total)
}

// CountInvariantError reports a pixel whose histogram counts do not add up to the member count.
type CountInvariantError struct {
	ValidTime int
	Lat, Lon  int
	Counted   int
	Members   int
}

func (e *CountInvariantError) Error() string {
	return fmt.Sprintf("histogram invariant violated at valid_time=%d lat=%d lon=%d: counted %d of %d members",
		e.ValidTime, e.Lat, e.Lon, e.Counted, e.Members)
}

// ErrNotInvertible is returned when denormalizing a field whose policy has no inverse.
var ErrNotInvertible = errors.New("normalization policy has no inverse")
