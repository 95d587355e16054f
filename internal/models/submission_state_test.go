package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifySubmissionStateCanonicalValues(t *testing.T) {
	for _, state := range SubmissionStates {
		got, ok := ClassifySubmissionState(string(state))
		require.True(t, ok, state)
		require.Equal(t, state, got)

		again, ok := ClassifySubmissionState(got)
		require.True(t, ok)
		require.Equal(t, got, again)
	}
}

func TestClassifySubmissionStateLegacyBooleans(t *testing.T) {
	cases := []struct {
		name string
		raw  interface{}
		want SubmissionState
	}{
		{"bool true", true, SubmissionDone},
		{"bool false", false, SubmissionNotDoneMissing},
		{"string true", "true", SubmissionDone},
		{"string false", "false", SubmissionNotDoneMissing},
		{"raw bool", RawBoolean(true), SubmissionDone},
		{"raw state", RawState(SubmissionExempt), SubmissionExempt},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ClassifySubmissionState(tc.raw)
			require.True(t, ok)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestClassifySubmissionStateRejectsUnknown(t *testing.T) {
	var nilState *SubmissionState
	var nilRaw *RawSubmissionValue
	for _, raw := range []interface{}{nil, "", "done", "TRUE", 42, 1.5, nilState, nilRaw, RawSubmissionValue{Kind: RawOther, Text: "{}"}} {
		state, ok := ClassifySubmissionState(raw)
		require.False(t, ok, "%v", raw)
		require.Empty(t, state)
	}
}

func TestSubmissionStateGroups(t *testing.T) {
	require.Equal(t, GroupSubmitted, SubmissionDoneGood.Group())
	require.Equal(t, GroupSubmittedPartial, SubmissionDoneButMediocre.Group())
	require.Equal(t, GroupSubmittedPartial, SubmissionDoneButNothing.Group())
	require.Equal(t, GroupNotSubmitted, SubmissionNotDoneMissing.Group())
	require.Equal(t, GroupExempt, SubmissionExempt.Group())
	require.Equal(t, GroupUnknown, SubmissionState("").Group())

	require.True(t, SubmissionDoneButMediocre.CountsAsSubmitted())
	require.False(t, SubmissionDoneButNothing.CountsAsSubmitted())
	require.False(t, SubmissionExempt.CountsAsSubmitted())
	require.Equal(t, "N/A", SubmissionState("").Label())
	require.Equal(t, "remove", SubmissionState("").Icon())
	require.Equal(t, "~", SubmissionDoneButMediocre.Glyph())
}

func TestRawSubmissionValueJSON(t *testing.T) {
	var status TPStatus
	require.NoError(t, json.Unmarshal([]byte(`{"id":3,"studentId":7,"tpId":2,"studentSubmission":true}`), &status))
	require.Equal(t, RawBool, status.StudentSubmission.Kind)
	state, ok := ClassifySubmissionState(status.StudentSubmission)
	require.True(t, ok)
	require.Equal(t, SubmissionDone, state)

	require.NoError(t, json.Unmarshal([]byte(`{"studentSubmission":null}`), &status))
	require.True(t, status.StudentSubmission.IsNull())

	require.NoError(t, json.Unmarshal([]byte(`{"studentSubmission":{"x":1}}`), &status))
	require.Equal(t, RawOther, status.StudentSubmission.Kind)

	encoded, err := json.Marshal(RawState(SubmissionDoneLate))
	require.NoError(t, err)
	require.JSONEq(t, `"DONE_LATE"`, string(encoded))

	encoded, err = json.Marshal(RawBoolean(false))
	require.NoError(t, err)
	require.Equal(t, "false", string(encoded))
}
