package domain

import (
	"math"
	"strconv"
	"time"
)

type Phase string

const (
	PhaseFeasibility Phase = "Feasibility"
	PhaseDesign      Phase = "Design"
	PhaseExecution   Phase = "Execution"
	PhaseClosure     Phase = "Closure"
)

// Phases lists the four project phases in pivot order.
var Phases = []Phase{PhaseFeasibility, PhaseDesign, PhaseExecution, PhaseClosure}

// Date is a calendar value that may be blank in the source sheet.
type Date struct {
	Time  time.Time
	Valid bool
}

func NewDate(t time.Time) Date {
	return Date{Time: t, Valid: true}
}

func (d Date) String() string {
	if !d.Valid {
		return ""
	}
	if d.Time.Hour() == 0 && d.Time.Minute() == 0 && d.Time.Second() == 0 {
		return d.Time.Format("2006-01-02")
	}
	return d.Time.Format("2006-01-02 15:04:05")
}

// Days is a nullable whole-day count.
type Days struct {
	N     int
	Valid bool
}

func (d Days) String() string {
	if !d.Valid {
		return ""
	}
	return strconv.Itoa(d.N)
}

// DaysBetween returns floor((to - from) / 24h), or a null count if either
// side is blank.
func DaysBetween(from, to Date) Days {
	if !from.Valid || !to.Valid {
		return Days{}
	}
	diff := to.Time.Sub(from.Time)
	return Days{N: int(math.Floor(diff.Hours() / 24)), Valid: true}
}

type ScheduleRow struct {
	Project            string
	ProjectChild       string
	ProjectStatus      string
	Baseline           float64
	MaxBaseline        float64
	BaselineStatus     string
	Activity           Phase
	ActivityChild      string
	BaselineStartDate  Date
	BaselineFinishDate Date
}

type PivotRow struct {
	ProjectID     string
	CLBStartDate  Date
	CLBFinishDate Date
	Activity      Phase
}

type Severity string

const (
	SeverityHigh     Severity = "High"
	SeverityMedium   Severity = "Medium"
	SeverityLow      Severity = "Low"
	SeverityNegative Severity = "Negative"
	SeverityNone     Severity = "None"
)

// Severities lists every tier in classification priority order.
var Severities = []Severity{SeverityHigh, SeverityMedium, SeverityLow, SeverityNegative, SeverityNone}

// Label is the display text used in exports and charts.
func (s Severity) Label() string {
	switch s {
	case SeverityHigh:
		return "High Severity"
	case SeverityMedium:
		return "Medium Severity"
	case SeverityLow:
		return "Low Severity"
	case SeverityNegative:
		return "Negative Variance"
	default:
		return "No Variance"
	}
}

type ComparisonRow struct {
	ProjectID              string
	Activity               Phase
	LNBaselineStartDate    Date
	CLBStartDate           Date
	StartDateVarianceDays  Days
	LNBaselineFinishDate   Date
	CLBFinishDate          Date
	FinishDateVarianceDays Days
	Severity               Severity
}
