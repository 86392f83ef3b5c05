package fissure

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Query parameter names understood by the fissure API.
const (
	paramMissionTypes = "missionTypes"
	paramIsHard       = "isHard"
	paramKnownIDs     = "knownIds"
)

// HardMode is the tri-state hard-mode filter: no preference, hard only, or
// normal only.
type HardMode int8

// Hard-mode filter values. The zero value means "no preference".
const (
	HardModeAny HardMode = iota
	HardModeOnly
	HardModeExclude
)

func (h HardMode) String() string {
	switch h {
	case HardModeOnly:
		return "hard"
	case HardModeExclude:
		return "normal"
	default:
		return "any"
	}
}

// ParseHardMode parses the textual hard-mode forms accepted by config files
// and flags. "true"/"false" are accepted as aliases of "hard"/"normal".
func ParseHardMode(s string) (HardMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any":
		return HardModeAny, nil
	case "hard", "true":
		return HardModeOnly, nil
	case "normal", "false":
		return HardModeExclude, nil
	default:
		return HardModeAny, fmt.Errorf("invalid hard mode %q: must be any, hard, or normal", s)
	}
}

// Bool returns the wire value and whether the filter is set at all.
func (h HardMode) Bool() (value, ok bool) {
	switch h {
	case HardModeOnly:
		return true, true
	case HardModeExclude:
		return false, true
	default:
		return false, false
	}
}

// Criteria is the filter driving requests: a set of mission types and the
// hard-mode preference. An empty mission type set means "all types".
// Criteria values are compared by value; use Normalize before comparing
// values built from user input.
type Criteria struct {
	MissionTypes []string
	HardMode     HardMode
}

// NewCriteria builds normalized criteria from raw mission type names.
func NewCriteria(hard HardMode, missionTypes ...string) Criteria {
	return Criteria{MissionTypes: missionTypes, HardMode: hard}.Normalize()
}

// Normalize returns a copy with mission types NFC-normalized, trimmed,
// deduplicated, and sorted, so that set semantics hold under value equality.
func (c Criteria) Normalize() Criteria {
	out := Criteria{HardMode: c.HardMode}

	for _, mt := range c.MissionTypes {
		mt = NormalizeMissionType(mt)
		if mt == "" {
			continue
		}

		out.MissionTypes = append(out.MissionTypes, mt)
	}

	slices.Sort(out.MissionTypes)
	out.MissionTypes = slices.Compact(out.MissionTypes)

	return out
}

// Equal reports whether two criteria select the same fissures. Both sides
// are expected to be normalized.
func (c Criteria) Equal(other Criteria) bool {
	return c.HardMode == other.HardMode && slices.Equal(c.MissionTypes, other.MissionTypes)
}

// Has reports whether the mission type is selected.
func (c Criteria) Has(missionType string) bool {
	return slices.Contains(c.MissionTypes, NormalizeMissionType(missionType))
}

// String renders the criteria for logs.
func (c Criteria) String() string {
	types := "all"
	if len(c.MissionTypes) > 0 {
		types = strings.Join(c.MissionTypes, ",")
	}

	return fmt.Sprintf("types=%s hard=%s", types, c.HardMode)
}

// Values builds the query for a request. missionTypes is repeated once per
// selected type, isHard is present only when the hard-mode filter is set,
// and knownIds is present only when known is non-empty.
func (c Criteria) Values(known []string) url.Values {
	v := url.Values{}

	for _, mt := range c.MissionTypes {
		v.Add(paramMissionTypes, mt)
	}

	if hard, ok := c.HardMode.Bool(); ok {
		v.Set(paramIsHard, strconv.FormatBool(hard))
	}

	if len(known) > 0 {
		v.Set(paramKnownIDs, strings.Join(known, ","))
	}

	return v
}

// NormalizeMissionType applies Unicode NFC normalization and trims
// surrounding whitespace.
func NormalizeMissionType(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
