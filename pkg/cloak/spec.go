// Package cloak defines the colour ranges a cloak can be detected by.
//
// Colours are expressed in OpenCV's 8-bit HSV convention: hue in 0..180,
// saturation and value in 0..255. A ColorSpec is either a single interval
// or, for hues that wrap past the end of the axis (red), a list of
// intervals whose masks are unioned.
package cloak

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrUnknownColor is returned by Lookup for names not in the preset table.
	ErrUnknownColor = errors.New("cloak: unknown color")

	// ErrInvalidRange is returned when an interval is empty or out of bounds.
	ErrInvalidRange = errors.New("cloak: invalid range")
)

// MaxHue is the largest hue value in OpenCV's 8-bit HSV encoding.
const MaxHue = 180

// HSV is a single pixel in OpenCV 8-bit HSV.
type HSV struct {
	H, S, V uint8
}

// Range is a closed interval on all three HSV channels.
type Range struct {
	Lower HSV `json:"lower"`
	Upper HSV `json:"upper"`
}

// Contains reports whether p lies inside the interval (bounds inclusive).
func (r Range) Contains(p HSV) bool {
	return p.H >= r.Lower.H && p.H <= r.Upper.H &&
		p.S >= r.Lower.S && p.S <= r.Upper.S &&
		p.V >= r.Lower.V && p.V <= r.Upper.V
}

func (r Range) validate() error {
	if r.Lower.H > r.Upper.H || r.Lower.S > r.Upper.S || r.Lower.V > r.Upper.V {
		return fmt.Errorf("%w: lower %v above upper %v", ErrInvalidRange, r.Lower, r.Upper)
	}
	if r.Upper.H > MaxHue {
		return fmt.Errorf("%w: hue %d exceeds %d", ErrInvalidRange, r.Upper.H, MaxHue)
	}
	return nil
}

// ColorSpec is an immutable named set of HSV intervals.
// The zero value matches nothing.
type ColorSpec struct {
	name   string
	ranges []Range
}

// Single builds a spec covering one interval.
func Single(name string, lo, hi HSV) ColorSpec {
	return ColorSpec{name: name, ranges: []Range{{Lower: lo, Upper: hi}}}
}

// Wrapped builds a spec for a hue that wraps around the axis boundary.
// A pixel matches when it falls in either interval.
func Wrapped(name string, lo1, hi1, lo2, hi2 HSV) ColorSpec {
	return ColorSpec{name: name, ranges: []Range{
		{Lower: lo1, Upper: hi1},
		{Lower: lo2, Upper: hi2},
	}}
}

// New builds a spec from any number of intervals.
func New(name string, ranges ...Range) (ColorSpec, error) {
	if len(ranges) == 0 {
		return ColorSpec{}, fmt.Errorf("%w: %s has no intervals", ErrInvalidRange, name)
	}
	c := ColorSpec{name: name, ranges: append([]Range(nil), ranges...)}
	if err := c.Validate(); err != nil {
		return ColorSpec{}, err
	}
	return c, nil
}

// Name returns the display name of the colour.
func (c ColorSpec) Name() string {
	return c.name
}

// Ranges returns a copy of the intervals.
func (c ColorSpec) Ranges() []Range {
	return append([]Range(nil), c.ranges...)
}

// Wraps reports whether more than one interval is unioned.
func (c ColorSpec) Wraps() bool {
	return len(c.ranges) > 1
}

// Contains reports whether p falls in any of the intervals.
func (c ColorSpec) Contains(p HSV) bool {
	for _, r := range c.ranges {
		if r.Contains(p) {
			return true
		}
	}
	return false
}

// Validate checks every interval.
func (c ColorSpec) Validate() error {
	if len(c.ranges) == 0 {
		return fmt.Errorf("%w: %q has no intervals", ErrInvalidRange, c.name)
	}
	for _, r := range c.ranges {
		if err := r.validate(); err != nil {
			return fmt.Errorf("%s: %w", c.name, err)
		}
	}
	return nil
}

// String implements fmt.Stringer.
func (c ColorSpec) String() string {
	return fmt.Sprintf("%s%v", c.name, c.ranges)
}
