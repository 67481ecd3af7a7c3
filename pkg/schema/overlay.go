package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DeviationKind names a conformance deviation reported for a diagram element.
// Unknown values are preserved verbatim so they can still be tracked and
// later cleared.
type DeviationKind string

const (
	DeviationIncomplete         DeviationKind = "INCOMPLETE"
	DeviationMultiExecution     DeviationKind = "MULTI_EXECUTION"
	DeviationIncorrectExecution DeviationKind = "INCORRECT_EXECUTION"
	DeviationIncorrectBranch    DeviationKind = "INCORRECT_BRANCH"
	DeviationSkipped            DeviationKind = "SKIPPED"
	DeviationOverlap            DeviationKind = "OVERLAP"
)

// DeviationKinds lists the known kinds, most severe first.
var DeviationKinds = []DeviationKind{
	DeviationIncorrectExecution,
	DeviationIncorrectBranch,
	DeviationSkipped,
	DeviationIncomplete,
	DeviationOverlap,
	DeviationMultiExecution,
}

// Known reports whether k is one of the six recognised kinds.
func (k DeviationKind) Known() bool {
	return k.Rank() > 0
}

// Rank orders kinds by severity. Higher is more severe; unknown kinds are 0.
func (k DeviationKind) Rank() int {
	for i, known := range DeviationKinds {
		if k == known {
			return len(DeviationKinds) - i
		}
	}
	return 0
}

// NoIteration marks a flag raised outside any loop iteration.
const NoIteration = -1

// FlagDetails is the payload attached to a deviation flag.
type FlagDetails struct {
	Count     *int     `json:"count,omitempty"`
	Over      []string `json:"over,omitempty"`      // overlapping element IDs
	Iteration int      `json:"iteration"`           // NoIteration when absent
}

// UnmarshalJSON defaults Iteration to NoIteration when the field is missing.
func (d *FlagDetails) UnmarshalJSON(data []byte) error {
	type raw FlagDetails
	out := raw{Iteration: NoIteration}
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*d = FlagDetails(out)
	return nil
}

// DeviationFlag is one deviation raised against an element. Severity and
// Value are only populated by the aggregation service.
type DeviationFlag struct {
	Deviation DeviationKind `json:"deviation"`
	Details   *FlagDetails  `json:"details,omitempty"`
	Severity  string        `json:"severity,omitempty"` // CRITICAL | HIGH | MEDIUM | LOW
	Value     any           `json:"value,omitempty"`
}

// Count returns the execution count carried by the flag, if any.
func (f DeviationFlag) Count() (int, bool) {
	if f.Details == nil || f.Details.Count == nil {
		return 0, false
	}
	return *f.Details.Count, true
}

// Iteration returns the loop iteration the flag belongs to, or NoIteration.
func (f DeviationFlag) Iteration() int {
	if f.Details == nil {
		return NoIteration
	}
	return f.Details.Iteration
}

// Color is a stroke/fill pair. Name is set when the color was given as a
// named severity ("GREEN", "RED", ...) and is resolved against a palette.
type Color struct {
	Stroke string `json:"stroke,omitempty"`
	Fill   string `json:"fill,omitempty"`
	Name   string `json:"name,omitempty"`
}

// UnmarshalJSON accepts either an object or a bare color name.
func (c *Color) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*c = Color{Name: name}
		return nil
	}
	type raw Color
	var out raw
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("color: %w", err)
	}
	*c = Color(out)
	return nil
}

// Equal compares two optional colors.
func (c *Color) Equal(other *Color) bool {
	if c == nil || other == nil {
		return c == nil && other == nil
	}
	return *c == *other
}

// Key is a stable string form, used to group elements by applied color.
func (c *Color) Key() string {
	if c == nil {
		return ""
	}
	if c.Name != "" {
		return c.Name
	}
	return c.Stroke + "/" + c.Fill
}

// BlockOverlayReport is the deviation state of one element in an update batch.
type BlockOverlayReport struct {
	BlockID     string          `json:"block_id"`
	Perspective string          `json:"perspective,omitempty"`
	Color       *Color          `json:"color,omitempty"`
	Flags       []DeviationFlag `json:"flags"`
}

// FlagKinds returns the distinct flag kinds of the report in order.
func (r BlockOverlayReport) FlagKinds() []DeviationKind {
	seen := make(map[DeviationKind]bool, len(r.Flags))
	out := make([]DeviationKind, 0, len(r.Flags))
	for _, f := range r.Flags {
		if seen[f.Deviation] {
			continue
		}
		seen[f.Deviation] = true
		out = append(out, f.Deviation)
	}
	return out
}

// MostSevere returns the most severe known kind among flags, or "" if none.
func MostSevere(flags []DeviationFlag) DeviationKind {
	var best DeviationKind
	for _, f := range flags {
		if f.Deviation.Rank() > best.Rank() {
			best = f.Deviation
		}
	}
	return best
}
