// Package ledger contains the pure computations over ledger data: turning an
// expense into per-member shares, reducing a group into member balances and
// aggregating spending over time windows. Nothing here touches storage.
package ledger

import (
	"github.com/shopspring/decimal"

	"spendsense/internal/core"
)

// CustomSplitTolerance is how far custom shares may sum away from the amount.
const CustomSplitTolerance = 0.5

var customTolerance = decimal.NewFromFloat(CustomSplitTolerance)

// SplitRequest is the input of Split.
type SplitRequest struct {
	Amount         float64
	ParticipantIDs []string
	Mode           core.SplitMode
	// RawShares holds the text typed per participant; custom mode only.
	RawShares map[string]string
}

// SplitResult is the computed split and the participant list the expense must carry.
type SplitResult struct {
	Splits         []core.Split
	ParticipantIDs []string
	// Dropped lists participants whose custom entry was invalid or not positive.
	Dropped []string
}

// Split dispatches to SplitEqual or SplitCustom.
func Split(req SplitRequest) (SplitResult, error) {
	switch req.Mode {
	case core.SplitEqual, "":
		splits, err := SplitEqual(req.Amount, req.ParticipantIDs)
		if err != nil {
			return SplitResult{}, err
		}
		return SplitResult{Splits: splits, ParticipantIDs: dedupe(req.ParticipantIDs)}, nil
	case core.SplitCustom:
		return SplitCustom(req.Amount, req.ParticipantIDs, req.RawShares)
	default:
		return SplitResult{}, core.ErrInvalidSplitMode
	}
}

// SplitEqual gives every participant round(amount/n, 2). The rounding drift
// is not redistributed, so shares may sum to a cent or so off the amount.
// An amount whose per-head share rounds to zero is rejected.
func SplitEqual(amount float64, participantIDs []string) ([]core.Split, error) {
	if amount <= 0 {
		return nil, core.ErrInvalidAmount
	}
	ids := dedupe(participantIDs)
	if len(ids) == 0 {
		return nil, core.ErrNoParticipants
	}
	perHead := core.Round2(core.Dec(amount).Div(decimal.NewFromInt(int64(len(ids)))))
	if perHead <= 0 {
		return nil, core.ErrShareTooSmall
	}
	splits := make([]core.Split, len(ids))
	for i, id := range ids {
		splits[i] = core.Split{MemberID: id, Share: perHead}
	}
	return splits, nil
}

// SplitCustom keeps the participants whose raw share parses to a positive
// amount and drops the rest. It fails when nothing valid remains or when the
// kept shares miss the amount by more than CustomSplitTolerance.
func SplitCustom(amount float64, participantIDs []string, rawShares map[string]string) (SplitResult, error) {
	if amount <= 0 {
		return SplitResult{}, core.ErrInvalidAmount
	}
	ids := dedupe(participantIDs)
	if len(ids) == 0 {
		return SplitResult{}, core.ErrNoParticipants
	}

	var (
		res   SplitResult
		total decimal.Decimal
	)
	for _, id := range ids {
		share, err := core.ParseDecimal(rawShares[id])
		if err != nil {
			res.Dropped = append(res.Dropped, id)
			continue
		}
		res.Splits = append(res.Splits, core.Split{MemberID: id, Share: share.InexactFloat64()})
		res.ParticipantIDs = append(res.ParticipantIDs, id)
		total = total.Add(share)
	}

	if len(res.Splits) == 0 {
		return SplitResult{}, core.ErrNoValidShares
	}
	if total.Sub(core.Dec(amount)).Abs().GreaterThan(customTolerance) {
		return SplitResult{}, core.ErrAmountMismatch
	}
	return res, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
