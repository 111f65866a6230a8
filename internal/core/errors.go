package core

import (
	"errors"
	"fmt"
)

// Error classes. Every sentinel below wraps exactly one of them so callers
// can branch with errors.Is.
var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrPersistence = errors.New("persistence failed")
)

var (
	ErrInvalidAmount            = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrEmptyDescription         = fmt.Errorf("%w: empty description", ErrValidation)
	ErrDescriptionTooLong       = fmt.Errorf("%w: description too long (max 200 characters)", ErrValidation)
	ErrEmptyTitle               = fmt.Errorf("%w: empty title", ErrValidation)
	ErrEmptyGroupName           = fmt.Errorf("%w: empty group name", ErrValidation)
	ErrEmptyMemberName          = fmt.Errorf("%w: empty member name", ErrValidation)
	ErrMissingPayer             = fmt.Errorf("%w: payer not selected", ErrValidation)
	ErrNoParticipants           = fmt.Errorf("%w: no participants", ErrValidation)
	ErrDuplicateParticipant     = fmt.Errorf("%w: duplicate participant", ErrValidation)
	ErrSplitOutsideParticipants = fmt.Errorf("%w: split member is not a participant", ErrValidation)
	ErrInvalidSplitMode         = fmt.Errorf("%w: invalid split mode", ErrValidation)
	ErrNoValidShares            = fmt.Errorf("%w: no valid shares entered", ErrValidation)
	ErrAmountMismatch           = fmt.Errorf("%w: amount mismatch", ErrValidation)
	ErrShareTooSmall            = fmt.Errorf("%w: amount too small to split between participants", ErrValidation)
	ErrMissingSettlementParty   = fmt.Errorf("%w: settlement needs a debtor and a creditor", ErrValidation)
	ErrSelfSettlement           = fmt.Errorf("%w: debtor and creditor must differ", ErrValidation)
	ErrInvalidProfile           = fmt.Errorf("%w: invalid profile", ErrValidation)
	ErrUnknownMember            = fmt.Errorf("%w: member is not part of the group", ErrValidation)
)

var (
	ErrGroupNotFound           = fmt.Errorf("group %w", ErrNotFound)
	ErrMemberNotFound          = fmt.Errorf("member %w", ErrNotFound)
	ErrExpenseNotFound         = fmt.Errorf("expense %w", ErrNotFound)
	ErrPersonalExpenseNotFound = fmt.Errorf("personal expense %w", ErrNotFound)
)
