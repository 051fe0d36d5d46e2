package labs

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

type Shape int

const (
	// ShapeQualified is `"X required": ["op", "value"]`.
	ShapeQualified Shape = iota + 1
	// ShapeRange is `"X required": [lo, hi]`.
	ShapeRange
)

// Value is one parsed lab entry. Range bounds keep the matched text verbatim
// so "[1.0, 2.0]" renders back unchanged.
type Value struct {
	Shape        Shape
	Relationship string
	Scalar       string
	Lower        string
	Upper        string
}

func (v Value) String() string {
	if v.Shape == ShapeRange {
		return fmt.Sprintf("[%s, %s]", v.Lower, v.Upper)
	}
	return strings.TrimSpace(v.Relationship + " " + v.Scalar)
}

// Bounds parses a range value's numeric bounds.
func (v Value) Bounds() (float64, float64, error) {
	if v.Shape != ShapeRange {
		return 0, 0, fmt.Errorf("not a range value")
	}
	lo, err := strconv.ParseFloat(v.Lower, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("lower bound %q: %w", v.Lower, err)
	}
	hi, err := strconv.ParseFloat(v.Upper, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("upper bound %q: %w", v.Upper, err)
	}
	return lo, hi, nil
}

// Mapping is lab key -> parsed value. Keys absent from the source text are
// absent here too.
type Mapping map[string]Value

var (
	qualifiedRe = regexp.MustCompile(`"([^"]+ required)": \["([^"]*)", "([^"]*)"\]`)
	rangeRe     = regexp.MustCompile(`"([^"]+ required)": \[([0-9.]+), ([0-9.]+)\]`)
	looseKeyRe  = regexp.MustCompile(`"([^"]+ required)"\s*:`)
)

// RangeError reports a range value rejected by strict parsing.
type RangeError struct {
	Name   string
	Lower  string
	Upper  string
	Reason string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("lab %q range [%s, %s]: %s", e.Name, e.Lower, e.Upper, e.Reason)
}

// Parser extracts lab values from model replies. The zero value is
// permissive: inverted and malformed ranges are kept as-is.
type Parser struct {
	StrictRanges bool
}

// Parse returns every quoted-pair and numeric-range match in text. Range
// matches are applied after quoted-pair matches, and a later match for the
// same key wins. In strict mode the mapping is still returned in full along
// with a joined error of every rejected range.
func (p Parser) Parse(text string) (Mapping, error) {
	out := make(Mapping)
	for _, m := range qualifiedRe.FindAllStringSubmatch(text, -1) {
		out[m[1]] = Value{Shape: ShapeQualified, Relationship: m[2], Scalar: m[3]}
	}

	var errs []error
	for _, m := range rangeRe.FindAllStringSubmatch(text, -1) {
		v := Value{Shape: ShapeRange, Lower: m[2], Upper: m[3]}
		out[m[1]] = v
		if p.StrictRanges {
			if err := checkRange(m[1], v); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return out, errors.Join(errs...)
}

// checkRange rejects malformed and inverted ranges. ANC ranges must also sit
// on the [0.0, 9.9] x10^9/L scale.
func checkRange(name string, v Value) error {
	lo, hi, err := v.Bounds()
	if err != nil {
		return &RangeError{Name: name, Lower: v.Lower, Upper: v.Upper, Reason: "malformed number"}
	}
	if lo > hi {
		return &RangeError{Name: name, Lower: v.Lower, Upper: v.Upper, Reason: "lower bound exceeds upper bound"}
	}
	if name == ANC && (lo < rangeFloor || hi > rangeCeiling) {
		return &RangeError{Name: name, Lower: v.Lower, Upper: v.Upper, Reason: "outside the 0.0-9.9 x10^9/L scale"}
	}
	return nil
}

// RejectedRange returns the strict-mode rejection for one lab key in an error
// returned by Parser.Parse.
func RejectedRange(err error, name string) (*RangeError, bool) {
	errs := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}
	for _, e := range errs {
		var re *RangeError
		if errors.As(e, &re) && re.Name == name {
			return re, true
		}
	}
	return nil, false
}

// Parse is the permissive parser.
func Parse(text string) Mapping {
	m, _ := Parser{}.Parse(text)
	return m
}

// Unmatched lists keys that look like `"X required":` in text but matched
// neither shape, in order of first appearance.
func Unmatched(text string, m Mapping) []string {
	seen := make(map[string]bool)
	var out []string
	for _, km := range looseKeyRe.FindAllStringSubmatch(text, -1) {
		name := km[1]
		if _, ok := m[name]; ok || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// Render flattens a mapping into column -> cell text. With databaseReady
// set, unit-bearing keys get their unit suffix.
func Render(m Mapping, databaseReady bool) map[string]string {
	out := make(map[string]string, len(m))
	for name, v := range m {
		col := name
		if databaseReady {
			col = DatabaseReadyName(name)
		}
		out[col] = v.String()
	}
	return out
}

// Columns orders rendered column names: canonical labs first (in report
// order, with or without unit suffix), then anything else alphabetically.
func Columns(rendered ...map[string]string) []string {
	present := make(map[string]bool)
	for _, r := range rendered {
		for k := range r {
			present[k] = true
		}
	}

	var out []string
	for _, name := range CanonicalNames {
		for _, col := range []string{name, DatabaseReadyName(name)} {
			if present[col] {
				out = append(out, col)
				delete(present, col)
			}
		}
	}
	var rest []string
	for k := range present {
		rest = append(rest, k)
	}
	sort.Strings(rest)
	return append(out, rest...)
}
