package labs

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

type Operator string

const (
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
)

// ANC ranges live on the [0.0, 9.9] x10^9/L scale. A rule that leaves no
// room on that scale is ErrInvalidRange.
const (
	rangeFloor   = 0.0
	rangeCeiling = 9.9
	rangeStep    = 0.1
)

var (
	ErrUnsupportedOperator = errors.New("unsupported relational operator")
	ErrNoNumericValue      = errors.New("no numeric value")
	ErrInvalidRange        = errors.New("invalid range")
)

var operatorAliases = map[string]Operator{
	">":                        OpGreater,
	"greater than":             OpGreater,
	"more than":                OpGreater,
	"above":                    OpGreater,
	">=":                       OpGreaterEqual,
	"=>":                       OpGreaterEqual,
	"≥":                        OpGreaterEqual,
	"greater than or equal to": OpGreaterEqual,
	"greater than or equal":    OpGreaterEqual,
	"at least":                 OpGreaterEqual,
	"no less than":             OpGreaterEqual,
	"<":                        OpLess,
	"less than":                OpLess,
	"below":                    OpLess,
	"<=":                       OpLessEqual,
	"=<":                       OpLessEqual,
	"≤":                        OpLessEqual,
	"less than or equal to":    OpLessEqual,
	"less than or equal":       OpLessEqual,
	"at most":                  OpLessEqual,
	"no more than":             OpLessEqual,
}

func ParseOperator(s string) (Operator, error) {
	key := strings.Join(strings.Fields(strings.ToLower(s)), " ")
	if op, ok := operatorAliases[key]; ok {
		return op, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedOperator, s)
}

type Range struct {
	Lower float64
	Upper float64
}

func (r Range) String() string {
	return fmt.Sprintf("[%s, %s]", formatBound(r.Lower), formatBound(r.Upper))
}

var (
	leadingNumberRe = regexp.MustCompile(`[-+]?(?:\d+(?:\.\d*)?|\.\d+)`)
	perMicroliterRe = regexp.MustCompile(`(?i)(/\s*(?:u|µ|μ)l\b|/\s*mm(?:\^?3|³)|cells\s*/\s*mm)`)
)

// ParseValue reads the leading number of a value cell such as "1.5 x10^9/L".
// Counts given per microliter (cells/mm3, /µL) are converted to x10^9/L.
func ParseValue(s string) (float64, error) {
	m := leadingNumberRe.FindString(strings.ReplaceAll(s, ",", ""))
	if m == "" {
		return 0, fmt.Errorf("%w in %q", ErrNoNumericValue, s)
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, fmt.Errorf("%w in %q: %v", ErrNoNumericValue, s, err)
	}
	if perMicroliterRe.MatchString(s) {
		v /= 1000
	}
	return v, nil
}

// NormalizeRange applies the fixed operator rules:
//
//	>  v  -> [v+0.1, 9.9]
//	>= v  -> [v, 9.9]
//	<  v  -> [0.0, v-0.1]
//	<= v  -> [0.0, v]
func NormalizeRange(op, value string) (Range, error) {
	o, err := ParseOperator(op)
	if err != nil {
		return Range{}, err
	}
	v, err := ParseValue(value)
	if err != nil {
		return Range{}, err
	}
	var r Range
	switch o {
	case OpGreater:
		r = Range{Lower: v + rangeStep, Upper: rangeCeiling}
	case OpGreaterEqual:
		r = Range{Lower: v, Upper: rangeCeiling}
	case OpLess:
		r = Range{Lower: rangeFloor, Upper: v - rangeStep}
	case OpLessEqual:
		r = Range{Lower: rangeFloor, Upper: v}
	}
	r.Lower = round10(r.Lower)
	r.Upper = round10(r.Upper)
	if r.Lower > r.Upper {
		return Range{}, fmt.Errorf("%w: %s %q gives %s", ErrInvalidRange, o, value, r)
	}
	return r, nil
}

// NormalizeANC normalizes the ANC entry of a parsed mapping. ok is false when
// the mapping has no usable ANC entry, which means no output for the record.
func NormalizeANC(m Mapping) (r Range, ok bool, err error) {
	v, present := m[ANC]
	if !present {
		return Range{}, false, nil
	}
	switch v.Shape {
	case ShapeRange:
		lo, hi, err := v.Bounds()
		if err != nil {
			return Range{}, true, fmt.Errorf("%w: %v", ErrInvalidRange, err)
		}
		return Range{Lower: lo, Upper: hi}, true, nil
	default:
		if strings.TrimSpace(v.Relationship) == "" && strings.TrimSpace(v.Scalar) == "" {
			return Range{}, false, nil
		}
		r, err := NormalizeRange(v.Relationship, v.Scalar)
		return r, true, err
	}
}

// DatabaseReadyText renders the single-key JSON object stored for a record.
func DatabaseReadyText(r Range) string {
	return fmt.Sprintf("{\n    %q: %s\n}", ANC, r.String())
}

func round10(x float64) float64 {
	return math.Round(x*1e10) / 1e10
}

func formatBound(x float64) string {
	if x == 0 {
		x = 0 // drop negative zero
	}
	s := strconv.FormatFloat(x, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
