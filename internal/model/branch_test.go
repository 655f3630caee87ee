package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBranch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Branch
	}{
		{"Conut", BranchConut},
		{"conut", BranchConut},
		{"  CONUT  ", BranchConut},
		{"Conut - Tyre", BranchConutTyre},
		{"conut-tyre", BranchConutTyre},
		{"conut_tyre", BranchConutTyre},
		{"tyre", BranchConutTyre},
		{"Conut Jnah", BranchConutJnah},
		{"jnah", BranchConutJnah},
		{"Main Street Coffee", BranchMainStreetCoffee},
		{"main   street", BranchMainStreetCoffee},
		{"MSC", BranchMainStreetCoffee},
		{"ＣＯＮＵＴ", BranchConut}, // full-width
		{"all", AllBranches},
		{"All Branches", AllBranches},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseBranch(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseBranch_Unknown(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "   ", "Beirut Downtown", "conut hamra"} {
		_, err := ParseBranch(in)
		require.Error(t, err, in)
		ie, ok := AsInputError(err)
		require.True(t, ok)
		assert.Equal(t, KindUnknownBranch, ie.Kind)
		assert.Equal(t, "branch", ie.Field)
	}
}

func TestParseSingleBranch(t *testing.T) {
	t.Parallel()

	b, err := ParseSingleBranch("jnah")
	require.NoError(t, err)
	assert.Equal(t, BranchConutJnah, b)

	_, err = ParseSingleBranch("all")
	require.Error(t, err)
	ie, ok := AsInputError(err)
	require.True(t, ok)
	assert.Equal(t, KindInvalidParameter, ie.Kind)
}

func TestBranches(t *testing.T) {
	t.Parallel()

	bs := Branches()
	assert.Len(t, bs, 4)
	for _, b := range bs {
		assert.True(t, b.Valid())
		assert.False(t, b.IsAll())
	}
	assert.False(t, AllBranches.Valid())
	assert.True(t, AllBranches.IsAll())

	// Returned slice is a copy.
	bs[0] = "mutated"
	assert.Equal(t, BranchConut, Branches()[0])
}

func TestParseShift(t *testing.T) {
	t.Parallel()

	for _, s := range Shifts() {
		got, err := ParseShift(" " + string(s) + " ")
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	got, err := ParseShift("EVENING")
	require.NoError(t, err)
	assert.Equal(t, ShiftEvening, got)

	_, err = ParseShift("night")
	require.Error(t, err)
	ie, ok := AsInputError(err)
	require.True(t, ok)
	assert.Equal(t, KindUnknownShift, ie.Kind)
}

func TestShiftFor(t *testing.T) {
	t.Parallel()

	at := func(h, m int) time.Time { return time.Date(2025, 1, 1, h, m, 0, 0, time.UTC) }
	tests := []struct {
		name string
		in   time.Time
		want Shift
	}{
		{"early morning", at(5, 0), ShiftMorning},
		{"late morning", at(10, 59), ShiftMorning},
		{"midday start", at(11, 0), ShiftMidday},
		{"afternoon", at(15, 59), ShiftMidday},
		{"evening start", at(16, 0), ShiftEvening},
		{"late night", at(23, 30), ShiftEvening},
		{"after midnight", at(2, 0), ShiftEvening},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ShiftFor(tt.in))
		})
	}
}

func TestNormalizeChannel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ChannelDelivery, NormalizeChannel("DELIVERY"))
	assert.Equal(t, ChannelTakeAway, NormalizeChannel("Take Away"))
	assert.Equal(t, ChannelTakeAway, NormalizeChannel("take_away"))
	assert.Equal(t, ChannelTable, NormalizeChannel("Dine-in"))
	assert.Equal(t, "drive_thru", NormalizeChannel("Drive Thru"))
}

func TestInputError(t *testing.T) {
	t.Parallel()

	err := InvalidParam("top_k", 25, "must be between 1 and 20")
	assert.Equal(t, "invalid_parameter: top_k=25: must be between 1 and 20", err.Error())
	assert.True(t, IsInputError(err))

	bare := &InputError{Kind: KindUnknownBranch, Field: "branch", Reason: "branch is required"}
	assert.Equal(t, "unknown_branch: branch: branch is required", bare.Error())
}

func TestUnavailable(t *testing.T) {
	t.Parallel()

	a := Unavailable("no rows")
	assert.Equal(t, StatusDataUnavailable, a.Status)
	assert.Equal(t, ConfidenceLow, a.Confidence)
	assert.Equal(t, a, a.Summary())
}
