// Package risk evaluates sensor readings against per-kind thresholds.
//
// Evaluation is pure: no state, no I/O. Thresholds are checked from the most
// severe down so the highest tier reached is always the one reported.
package risk

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nerrad567/vigilant-core/internal/device"
)

// ErrNotNumeric is returned by EvaluateMeasurement for values that cannot
// be read as a number.
var ErrNotNumeric = errors.New("risk: measurement is not numeric")

// Severity is an ordered risk tier. Higher values are more severe.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityLabels = [...]string{
	SeverityLow:      "Baixo",
	SeverityMedium:   "Medio",
	SeverityHigh:     "Alto",
	SeverityCritical: "Critico",
}

// String returns the operator-facing label.
func (s Severity) String() string {
	if s >= 0 && int(s) < len(severityLabels) {
		return severityLabels[s]
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// MarshalText encodes the label so JSON carries "Alto" rather than 2.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Rule holds the thresholds for one sensor kind. A value at or above a
// threshold reaches that tier.
type Rule struct {
	Alert    float64 `json:"alert"`
	Danger   float64 `json:"danger"`
	Critical float64 `json:"critical"`
	Unit     string  `json:"unit"`
}

// Rules maps a sensor kind to its thresholds.
type Rules map[device.SensorKind]Rule

// DefaultRules is the built-in table.
var DefaultRules = Rules{
	device.SensorKindTemperature: {
		Alert:    100,
		Danger:   250,
		Critical: 350,
		Unit:     "°C",
	},
	device.SensorKindElectricCurrent: {
		Alert:    40,
		Danger:   50,
		Critical: 70,
		Unit:     "A",
	},
}

// Result is the outcome of one evaluation.
type Result struct {
	IsRisk   bool     `json:"is_risk"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Evaluate checks value against the DefaultRules entry for kind.
func Evaluate(kind device.SensorKind, value float64) Result {
	return DefaultRules.Evaluate(kind, value)
}

// Evaluate checks value against the rule for kind. Kinds without a rule, and
// values below the alert threshold, are not a risk.
func (r Rules) Evaluate(kind device.SensorKind, value float64) Result {
	rule, ok := r[kind]
	if !ok {
		return Result{Severity: SeverityLow}
	}

	switch {
	case value >= rule.Critical:
		return exceeded(kind, SeverityCritical, rule.Critical, rule.Unit)
	case value >= rule.Danger:
		return exceeded(kind, SeverityHigh, rule.Danger, rule.Unit)
	case value >= rule.Alert:
		return exceeded(kind, SeverityMedium, rule.Alert, rule.Unit)
	default:
		return Result{Severity: SeverityLow}
	}
}

// EvaluateMeasurement parses a raw measurement string (either '.' or ','
// as decimal separator) and evaluates it.
func EvaluateMeasurement(kind device.SensorKind, raw string) (Result, error) {
	value, err := ParseMeasurement(raw)
	if err != nil {
		return Result{Severity: SeverityLow}, err
	}
	return Evaluate(kind, value), nil
}

// ParseMeasurement reads a measurement string as a float.
func ParseMeasurement(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	value, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: %q", ErrNotNumeric, raw)
	}
	return value, nil
}

func exceeded(kind device.SensorKind, severity Severity, threshold float64, unit string) Result {
	return Result{
		IsRisk:   true,
		Severity: severity,
		Message:  fmt.Sprintf("%s Excedeu %s %s", kind, strconv.FormatFloat(threshold, 'f', -1, 64), unit),
	}
}
