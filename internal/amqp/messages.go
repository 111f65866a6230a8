package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType names what changed in the ledger.
type EventType string

const (
	EventGroupCreated          EventType = "group.created"
	EventGroupDeleted          EventType = "group.deleted"
	EventMemberAdded           EventType = "member.added"
	EventMemberRenamed         EventType = "member.renamed"
	EventMemberRemoved         EventType = "member.removed"
	EventExpenseSaved          EventType = "expense.saved"
	EventExpenseDeleted        EventType = "expense.deleted"
	EventExpenseSettleToggled  EventType = "expense.settle_toggled"
	EventSettlementRecorded    EventType = "settlement.recorded"
	EventPersonalExpenseSaved  EventType = "personal_expense.saved"
	EventPersonalExpenseDelete EventType = "personal_expense.deleted"
	EventProfileSaved          EventType = "profile.saved"
	EventLedgerReset           EventType = "ledger.reset"
)

// LedgerEvent is a lightweight change notification. It carries ids only;
// consumers load the current state from the store.
type LedgerEvent struct {
	Type      EventType `json:"type"`
	GroupID   string    `json:"group_id,omitempty"`
	EntityID  string    `json:"entity_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerEvent(t EventType, groupID, entityID string) LedgerEvent {
	return LedgerEvent{
		Type:      t,
		GroupID:   groupID,
		EntityID:  entityID,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the event to JSON bytes
func (e LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes an event and rejects one without a type.
func LedgerEventFromJSON(data []byte) (LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return LedgerEvent{}, err
	}
	if e.Type == "" {
		return LedgerEvent{}, fmt.Errorf("event without type")
	}
	return e, nil
}
