package ledger

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendsense/internal/core"
)

func TestSplitEqual(t *testing.T) {
	tests := []struct {
		name         string
		amount       float64
		participants []string
		wantShare    float64
		wantErr      error
	}{
		{name: "even split", amount: 100, participants: []string{"a", "b"}, wantShare: 50},
		{name: "thirds round to cents", amount: 100, participants: []string{"a", "b", "c"}, wantShare: 33.33},
		{name: "half cent rounds up", amount: 0.05, participants: []string{"a", "b"}, wantShare: 0.03},
		{name: "single participant", amount: 12.5, participants: []string{"a"}, wantShare: 12.5},
		{name: "duplicates collapse", amount: 90, participants: []string{"a", "b", "a", "c"}, wantShare: 30},
		{name: "no participants", amount: 10, participants: nil, wantErr: core.ErrNoParticipants},
		{name: "share rounds to zero", amount: 0.01, participants: []string{"a", "b", "c"}, wantErr: core.ErrShareTooSmall},
		{name: "zero amount", amount: 0, participants: []string{"a"}, wantErr: core.ErrInvalidAmount},
		{name: "negative amount", amount: -5, participants: []string{"a"}, wantErr: core.ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			splits, err := SplitEqual(tt.amount, tt.participants)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, splits, len(dedupe(tt.participants)))
			for _, s := range splits {
				assert.Equal(t, tt.wantShare, s.Share)
			}
		})
	}
}

func TestSplitEqualDriftIsNotRedistributed(t *testing.T) {
	splits, err := SplitEqual(10, []string{"a", "b", "c"})
	require.NoError(t, err)
	var sum float64
	for _, s := range splits {
		sum += s.Share
	}
	assert.InDelta(t, 9.99, sum, 1e-9)
}

func TestSplitCustom(t *testing.T) {
	tests := []struct {
		name             string
		amount           float64
		participants     []string
		raw              map[string]string
		wantSplits       []core.Split
		wantParticipants []string
		wantDropped      []string
		wantErr          error
	}{
		{
			name:             "exact shares",
			amount:           100,
			participants:     []string{"alice", "bob"},
			raw:              map[string]string{"alice": "70", "bob": "30"},
			wantSplits:       []core.Split{{MemberID: "alice", Share: 70}, {MemberID: "bob", Share: 30}},
			wantParticipants: []string{"alice", "bob"},
		},
		{
			name:             "within tolerance",
			amount:           100,
			participants:     []string{"a", "b"},
			raw:              map[string]string{"a": "60.25", "b": "40,25"},
			wantSplits:       []core.Split{{MemberID: "a", Share: 60.25}, {MemberID: "b", Share: 40.25}},
			wantParticipants: []string{"a", "b"},
		},
		{
			name:             "invalid entries are dropped from participants",
			amount:           50,
			participants:     []string{"a", "b", "c", "d"},
			raw:              map[string]string{"a": "50", "b": "abc", "c": "0", "d": ""},
			wantSplits:       []core.Split{{MemberID: "a", Share: 50}},
			wantParticipants: []string{"a"},
			wantDropped:      []string{"b", "c", "d"},
		},
		{
			name:         "no valid shares",
			amount:       50,
			participants: []string{"a", "b"},
			raw:          map[string]string{"a": "-1", "b": "x"},
			wantErr:      core.ErrNoValidShares,
		},
		{
			name:         "mismatch beyond tolerance",
			amount:       100,
			participants: []string{"a", "b"},
			raw:          map[string]string{"a": "70", "b": "29.4"},
			wantErr:      core.ErrAmountMismatch,
		},
		{
			name:             "tolerance boundary is inclusive",
			amount:           100,
			participants:     []string{"a", "b"},
			raw:              map[string]string{"a": "70", "b": "29.5"},
			wantSplits:       []core.Split{{MemberID: "a", Share: 70}, {MemberID: "b", Share: 29.5}},
			wantParticipants: []string{"a", "b"},
		},
		{
			name:         "shares for non-participants are ignored",
			amount:       10,
			participants: []string{"a"},
			raw:          map[string]string{"a": "4", "z": "6"},
			wantErr:      core.ErrAmountMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := SplitCustom(tt.amount, tt.participants, tt.raw)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, err, core.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSplits, res.Splits)
			assert.Equal(t, tt.wantParticipants, res.ParticipantIDs)
			assert.Equal(t, tt.wantDropped, res.Dropped)

			var sum float64
			inParticipants := map[string]bool{}
			for _, id := range res.ParticipantIDs {
				inParticipants[id] = true
			}
			for _, s := range res.Splits {
				sum += s.Share
				assert.True(t, inParticipants[s.MemberID])
			}
			assert.LessOrEqual(t, math.Abs(sum-tt.amount), CustomSplitTolerance+1e-9)
		})
	}
}

func TestSplitDispatch(t *testing.T) {
	res, err := Split(SplitRequest{Amount: 9, ParticipantIDs: []string{"a", "b", "c"}, Mode: core.SplitEqual})
	require.NoError(t, err)
	assert.Len(t, res.Splits, 3)
	assert.Equal(t, []string{"a", "b", "c"}, res.ParticipantIDs)

	res, err = Split(SplitRequest{Amount: 9, ParticipantIDs: []string{"a", "b"}, Mode: core.SplitCustom,
		RawShares: map[string]string{"a": "9"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, res.ParticipantIDs)
	assert.Equal(t, []string{"b"}, res.Dropped)

	_, err = Split(SplitRequest{Amount: 9, ParticipantIDs: []string{"a"}, Mode: "weighted"})
	assert.ErrorIs(t, err, core.ErrInvalidSplitMode)
}
