package core

import (
	"math"
	"strconv"
)

// SplitMode selects how an expense amount is divided.
type SplitMode string

const (
	SplitEqual  SplitMode = "equal"
	SplitCustom SplitMode = "custom"
)

func (m SplitMode) IsValid() bool {
	return m == SplitEqual || m == SplitCustom
}

// ExpenseDraft is the in-progress expense form of one group. Member changes
// cascade into it; saving turns it into an Expense.
type ExpenseDraft struct {
	EditingID      string            `json:"editingId,omitempty"`
	Description    string            `json:"description"`
	Category       string            `json:"category"`
	Amount         string            `json:"amount"`
	PayerID        string            `json:"payerId"`
	ParticipantIDs []string          `json:"participantIds"`
	Mode           SplitMode         `json:"mode"`
	CustomShares   map[string]string `json:"customShares,omitempty"`
}

// NewDraft starts an equal split paid by the first member and shared by everyone.
func NewDraft(g Group) ExpenseDraft {
	d := ExpenseDraft{}
	d.Reset(g)
	if ids := g.MemberIDs(); len(ids) > 0 {
		d.PayerID = ids[0]
	}
	return d
}

// Reset clears the form but keeps the selected payer.
func (d *ExpenseDraft) Reset(g Group) {
	d.EditingID = ""
	d.Description = ""
	d.Category = ""
	d.Amount = ""
	d.Mode = SplitEqual
	d.CustomShares = map[string]string{}
	d.ParticipantIDs = g.MemberIDs()
}

// OnMemberAdded applies the defaults for a group that just gained the
// member newID. An unset payer becomes the new member.
func (d *ExpenseDraft) OnMemberAdded(g Group, newID string) {
	if d.PayerID == "" {
		d.PayerID = newID
	}
	if len(d.ParticipantIDs) == 0 {
		d.ParticipantIDs = g.MemberIDs()
	}
}

// OnMemberRemoved scrubs memberID from the form. g is the group after removal.
func (d *ExpenseDraft) OnMemberRemoved(memberID string, g Group) {
	if d.PayerID == memberID {
		d.PayerID = ""
		if ids := g.MemberIDs(); len(ids) > 0 {
			d.PayerID = ids[0]
		}
	}
	kept := make([]string, 0, len(d.ParticipantIDs))
	for _, id := range d.ParticipantIDs {
		if id != memberID {
			kept = append(kept, id)
		}
	}
	d.ParticipantIDs = kept
	delete(d.CustomShares, memberID)
}

// DraftFromExpense loads a saved expense back into the form for editing.
func DraftFromExpense(e Expense) ExpenseDraft {
	d := ExpenseDraft{
		EditingID:      e.ID,
		Description:    e.Description,
		Amount:         strconv.FormatFloat(e.Amount, 'f', -1, 64),
		PayerID:        e.PayerID,
		ParticipantIDs: append([]string(nil), e.ParticipantIDs...),
		Mode:           SplitEqual,
		CustomShares:   map[string]string{},
	}
	if e.Category != nil {
		d.Category = *e.Category
	}
	if len(e.Splits) == 0 || IsEqualSplit(e) {
		return d
	}
	d.Mode = SplitCustom
	for _, s := range e.Splits {
		d.CustomShares[s.MemberID] = strconv.FormatFloat(s.Share, 'f', -1, 64)
	}
	return d
}

// IsEqualSplit reports whether every participant has a split and all shares
// agree within a cent.
func IsEqualSplit(e Expense) bool {
	if len(e.Splits) == 0 || len(e.ParticipantIDs) != len(e.Splits) {
		return false
	}
	first := e.Splits[0].Share
	for _, s := range e.Splits {
		if math.Abs(s.Share-first) >= 0.01 {
			return false
		}
	}
	return true
}
