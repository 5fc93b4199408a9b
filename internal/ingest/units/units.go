// Package units normalizes free-text measurement strings into structured
// quantity+unit pairs. The synonym table is fixed and closed: it covers the
// unit spellings, abbreviations, plural forms, and common misspellings seen
// in public microbiome metadata exports. Unrecognized units pass through
// unchanged, flagged unnormalized; strings without a numeric magnitude come
// back as raw markers so a malformed value never aborts its record.
package units

import (
	"regexp"
	"strconv"
	"strings"

	"biomecore/pkg/domain"
)

// Dimension groups convertible units.
type Dimension string

// Supported dimensions.
const (
	DimTime        Dimension = "time"
	DimLength      Dimension = "length"
	DimMass        Dimension = "mass"
	DimVolume      Dimension = "volume"
	DimTemperature Dimension = "temperature"
)

// unitDef describes one canonical unit: its dimension and the factor that
// converts a value in this unit into the dimension's base unit.
type unitDef struct {
	dim    Dimension
	factor float64
}

// Base units per dimension: years, metres, kilograms, litres, celsius.
var canonical = map[string]unitDef{
	"years":  {DimTime, 1},
	"months": {DimTime, 1.0 / 12},
	"weeks":  {DimTime, 7 / 365.25},
	"days":   {DimTime, 1 / 365.25},
	"hours":  {DimTime, 1 / (365.25 * 24)},

	"m":  {DimLength, 1},
	"cm": {DimLength, 0.01},
	"mm": {DimLength, 0.001},
	"ft": {DimLength, 0.3048},
	"in": {DimLength, 0.0254},

	"kg": {DimMass, 1},
	"g":  {DimMass, 0.001},
	"mg": {DimMass, 1e-6},
	"lb": {DimMass, 0.45359237},

	"l":  {DimVolume, 1},
	"ml": {DimVolume, 0.001},

	"celsius": {DimTemperature, 1},
}

// synonyms maps lowercased unit tokens (including plurals and frequent
// misspellings) to canonical units.
var synonyms = map[string]string{
	"year": "years", "years": "years", "yr": "years", "yrs": "years", "y": "years",
	"month": "months", "months": "months", "mo": "months", "mos": "months", "mnths": "months",
	"week": "weeks", "weeks": "weeks", "wk": "weeks", "wks": "weeks",
	"day": "days", "days": "days", "d": "days",
	"hour": "hours", "hours": "hours", "hr": "hours", "hrs": "hours", "h": "hours",

	"m": "m", "meter": "m", "meters": "m", "metre": "m", "metres": "m",
	"cm": "cm", "centimeter": "cm", "centimeters": "cm", "centimetre": "cm",
	"centimetres": "cm", "centimeteres": "cm",
	"mm": "mm", "millimeter": "mm", "millimeters": "mm", "milimeter": "mm", "milimeters": "mm",
	"ft": "ft", "foot": "ft", "feet": "ft",
	"in": "in", "inch": "in", "inches": "in",

	"kg": "kg", "kgs": "kg", "kilogram": "kg", "kilograms": "kg",
	"kilogramme": "kg", "kilogrammes": "kg", "kilo": "kg", "kilos": "kg",
	"g": "g", "gm": "g", "gms": "g", "gram": "g", "grams": "g", "gramms": "g", "grammes": "g",
	"mg": "mg", "mgs": "mg", "milligram": "mg", "milligrams": "mg", "miligram": "mg", "miligrams": "mg",
	"lb": "lb", "lbs": "lb", "pound": "lb", "pounds": "lb",

	"l": "l", "liter": "l", "liters": "l", "litre": "l", "litres": "l",
	"ml": "ml", "milliliter": "ml", "milliliters": "ml", "millilitre": "ml", "millilitres": "ml",

	"c": "celsius", "celsius": "celsius", "celcius": "celsius", "degc": "celsius",
	"°c": "celsius", "degrees celsius": "celsius", "deg c": "celsius",
}

var magnitudeRe = regexp.MustCompile(`^([+-]?\d+(?:[.,]\d+)?(?:[eE][+-]?\d+)?)\s*(.*)$`)

// Canonical resolves a unit token against the synonym table. It reports the
// canonical spelling and whether the token was recognized. Matching is
// case-insensitive and ignores surrounding whitespace and a trailing period.
func Canonical(token string) (string, bool) {
	t := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(token)), ".")
	c, ok := synonyms[t]
	return c, ok
}

// UnitDimension reports the dimension of a canonical unit.
func UnitDimension(unit string) (Dimension, bool) {
	def, ok := canonical[unit]
	return def.dim, ok
}

// Parse extracts a numeric magnitude and unit token from a free-text value.
// Degenerate inputs yield a raw marker carrying the original string; a
// recognized unit is mapped to its canonical spelling and the quantity is
// flagged normalized, while an unknown unit token passes through with
// Normalized false. A bare number (no unit) is normalized with the given
// default unit; pass "" to leave it unitless.
func Parse(raw, defaultUnit string) domain.Quantity {
	trimmed := strings.TrimSpace(raw)
	m := magnitudeRe.FindStringSubmatch(trimmed)
	if m == nil {
		return domain.Quantity{Raw: raw}
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil {
		return domain.Quantity{Raw: raw}
	}
	token := strings.TrimSpace(m[2])
	if token == "" {
		if defaultUnit != "" {
			return domain.Quantity{Value: value, Unit: defaultUnit, Raw: raw, Normalized: true}
		}
		return domain.Quantity{Value: value, Raw: raw, Normalized: true}
	}
	if c, ok := Canonical(token); ok {
		return domain.Quantity{Value: value, Unit: c, Raw: raw, Normalized: true}
	}
	return domain.Quantity{Value: value, Unit: token, Raw: raw, Normalized: false}
}

// Convert re-expresses a normalized quantity in the target canonical unit.
// It returns the input unchanged (ok=false) for raw markers, unnormalized
// units, unknown targets, or dimension mismatches. Temperature is excluded:
// it is not scale-convertible by factor and only celsius is canonical.
func Convert(q domain.Quantity, target string) (domain.Quantity, bool) {
	if !q.Normalized || q.Unit == target {
		return q, q.Normalized && q.Unit == target
	}
	from, okFrom := canonical[q.Unit]
	to, okTo := canonical[target]
	if !okFrom || !okTo || from.dim != to.dim || from.dim == DimTemperature {
		return q, false
	}
	return domain.Quantity{
		Value:      q.Value * from.factor / to.factor,
		Unit:       target,
		Raw:        q.Raw,
		Normalized: true,
	}, true
}

// ParseInto parses a free-text value and converts it into the target
// canonical unit when possible. When conversion is impossible the parsed
// quantity is returned as-is so the original information is kept.
func ParseInto(raw, defaultUnit, target string) domain.Quantity {
	q := Parse(raw, defaultUnit)
	if converted, ok := Convert(q, target); ok {
		return converted
	}
	return q
}
