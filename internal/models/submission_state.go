package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// SubmissionState is the canonical status of a student's submission for a TP.
type SubmissionState string

const (
	SubmissionDone            SubmissionState = "DONE"
	SubmissionDoneLate        SubmissionState = "DONE_LATE"
	SubmissionDoneGood        SubmissionState = "DONE_GOOD"
	SubmissionDoneButNothing  SubmissionState = "DONE_BUT_NOTHING"
	SubmissionDoneButMediocre SubmissionState = "DONE_BUT_MEDIOCRE"
	SubmissionNotDoneMissing  SubmissionState = "NOT_DONE_MISSING"
	SubmissionExempt          SubmissionState = "EXEMPT"
)

// SubmissionGroup buckets states for display.
type SubmissionGroup string

const (
	GroupSubmitted        SubmissionGroup = "submitted"
	GroupSubmittedPartial SubmissionGroup = "submitted-partial"
	GroupNotSubmitted     SubmissionGroup = "not-submitted"
	GroupExempt           SubmissionGroup = "exempt"
	GroupUnknown          SubmissionGroup = "unknown"
)

// SubmissionStates lists every canonical state in display order.
var SubmissionStates = []SubmissionState{
	SubmissionDone,
	SubmissionDoneLate,
	SubmissionDoneGood,
	SubmissionDoneButNothing,
	SubmissionDoneButMediocre,
	SubmissionNotDoneMissing,
	SubmissionExempt,
}

type stateDisplay struct {
	group     SubmissionGroup
	submitted bool
	label     string
	color     string
	icon      string
	glyph     string
}

var stateDisplays = map[SubmissionState]stateDisplay{
	SubmissionDone:            {GroupSubmitted, true, "Rendu", "#4CAF50", "check", ""},
	SubmissionDoneLate:        {GroupSubmitted, true, "Rendu en retard", "#FF9800", "schedule", ""},
	SubmissionDoneGood:        {GroupSubmitted, true, "Bon rendu", "#2196F3", "star", "+"},
	SubmissionDoneButNothing:  {GroupSubmittedPartial, false, "Rendu vide", "#9E9E9E", "warning", "E"},
	SubmissionDoneButMediocre: {GroupSubmittedPartial, true, "Rendu médiocre", "#FFC107", "info", "~"},
	SubmissionNotDoneMissing:  {GroupNotSubmitted, false, "Non rendu", "#F44336", "close", ""},
	SubmissionExempt:          {GroupExempt, false, "Exempté", "#9C27B0", "block", ""},
}

// Valid reports whether the state is one of the seven canonical values.
func (s SubmissionState) Valid() bool {
	_, ok := stateDisplays[s]
	return ok
}

// Group returns the display bucket of the state.
func (s SubmissionState) Group() SubmissionGroup {
	if d, ok := stateDisplays[s]; ok {
		return d.group
	}
	return GroupUnknown
}

// CountsAsSubmitted reports whether the state adds to the completion numerator.
// DONE_BUT_MEDIOCRE counts even though it displays as partial.
func (s SubmissionState) CountsAsSubmitted() bool {
	return stateDisplays[s].submitted
}

// IsExempt reports whether the state removes the TP from completion accounting.
func (s SubmissionState) IsExempt() bool {
	return s == SubmissionExempt
}

// Label returns the user-facing label, "N/A" for unknown states.
func (s SubmissionState) Label() string {
	if d, ok := stateDisplays[s]; ok {
		return d.label
	}
	return "N/A"
}

// Color returns the UI color of the state.
func (s SubmissionState) Color() string {
	return stateDisplays[s].color
}

// Icon returns the material icon name used by the screen grid.
func (s SubmissionState) Icon() string {
	if d, ok := stateDisplays[s]; ok {
		return d.icon
	}
	return "remove"
}

// Glyph returns the character printed in exported documents. Several states share
// the blank glyph and are distinguished only by cell color.
func (s SubmissionState) Glyph() string {
	return stateDisplays[s].glyph
}

// ClassifySubmissionState converts an untyped status value into a canonical state.
// Legacy boolean encodings map to DONE / NOT_DONE_MISSING. Anything else is rejected.
func ClassifySubmissionState(raw interface{}) (SubmissionState, bool) {
	switch v := raw.(type) {
	case nil:
		return "", false
	case SubmissionState:
		return v, v.Valid()
	case *SubmissionState:
		if v == nil {
			return "", false
		}
		return *v, v.Valid()
	case RawSubmissionValue:
		return v.classify()
	case *RawSubmissionValue:
		if v == nil {
			return "", false
		}
		return v.classify()
	case bool:
		return fromBool(v), true
	case string:
		return classifyString(v)
	default:
		return "", false
	}
}

func classifyString(value string) (SubmissionState, bool) {
	state := SubmissionState(value)
	if state.Valid() {
		return state, true
	}
	switch value {
	case "true":
		return SubmissionDone, true
	case "false":
		return SubmissionNotDoneMissing, true
	}
	return "", false
}

func fromBool(value bool) SubmissionState {
	if value {
		return SubmissionDone
	}
	return SubmissionNotDoneMissing
}

// RawKind tags the JSON shape a backend status value arrived in.
type RawKind int

const (
	RawNull RawKind = iota
	RawString
	RawBool
	RawOther
)

// RawSubmissionValue holds a status value exactly as the backend sent it.
type RawSubmissionValue struct {
	Kind RawKind
	Text string
	Bool bool
}

// RawState wraps a canonical state for outbound payloads and fixtures.
func RawState(state SubmissionState) RawSubmissionValue {
	return RawSubmissionValue{Kind: RawString, Text: string(state)}
}

// RawBoolean wraps a legacy boolean status.
func RawBoolean(value bool) RawSubmissionValue {
	return RawSubmissionValue{Kind: RawBool, Bool: value}
}

// IsNull reports whether the backend sent no value.
func (v RawSubmissionValue) IsNull() bool {
	return v.Kind == RawNull || (v.Kind == RawString && v.Text == "")
}

// String renders the raw value for logs.
func (v RawSubmissionValue) String() string {
	switch v.Kind {
	case RawNull:
		return "null"
	case RawBool:
		if v.Bool {
			return "true"
		}
		return "false"
	default:
		return v.Text
	}
}

func (v RawSubmissionValue) classify() (SubmissionState, bool) {
	switch v.Kind {
	case RawString:
		return classifyString(v.Text)
	case RawBool:
		return fromBool(v.Bool), true
	default:
		return "", false
	}
}

// UnmarshalJSON never fails: unexpected shapes are kept as RawOther for the classifier to reject.
func (v *RawSubmissionValue) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		*v = RawSubmissionValue{Kind: RawNull}
	case bytes.Equal(trimmed, []byte("true")):
		*v = RawSubmissionValue{Kind: RawBool, Bool: true}
	case bytes.Equal(trimmed, []byte("false")):
		*v = RawSubmissionValue{Kind: RawBool, Bool: false}
	case trimmed[0] == '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			*v = RawSubmissionValue{Kind: RawOther, Text: string(trimmed)}
			return nil
		}
		*v = RawSubmissionValue{Kind: RawString, Text: text}
	default:
		*v = RawSubmissionValue{Kind: RawOther, Text: strings.TrimSpace(string(trimmed))}
	}
	return nil
}

// MarshalJSON writes the value back in its original shape.
func (v RawSubmissionValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case RawNull:
		return []byte("null"), nil
	case RawBool:
		return json.Marshal(v.Bool)
	case RawString:
		return json.Marshal(v.Text)
	default:
		if json.Valid([]byte(v.Text)) {
			return []byte(v.Text), nil
		}
		return json.Marshal(v.Text)
	}
}
