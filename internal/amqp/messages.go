package amqp

import (
	"encoding/json"
	"time"
)

const (
	EventExpenseCreated = "expense.created"
	EventExpenseDeleted = "expense.deleted"
)

// SemestersSyncedMessage announces that a user's semester list was
// reconciled and committed. Consumers fetch the current state themselves;
// the message carries no snapshot.
type SemestersSyncedMessage struct {
	UserID    string    `json:"user_id"`
	Semesters int       `json:"semesters"`
	Timestamp time.Time `json:"timestamp"`
}

func NewSemestersSyncedMessage(userID string, semesters int) *SemestersSyncedMessage {
	return &SemestersSyncedMessage{
		UserID:    userID,
		Semesters: semesters,
		Timestamp: time.Now(),
	}
}

func (m *SemestersSyncedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func SemestersSyncedMessageFromJSON(data []byte) (*SemestersSyncedMessage, error) {
	var msg SemestersSyncedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ExpenseEventMessage announces an expense lifecycle change by id only.
type ExpenseEventMessage struct {
	Event     string    `json:"event"`
	UserID    string    `json:"user_id"`
	ExpenseID int64     `json:"expense_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewExpenseEventMessage(event, userID string, expenseID int64) *ExpenseEventMessage {
	return &ExpenseEventMessage{
		Event:     event,
		UserID:    userID,
		ExpenseID: expenseID,
		Timestamp: time.Now(),
	}
}

func (m *ExpenseEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ExpenseEventMessageFromJSON(data []byte) (*ExpenseEventMessage, error) {
	var msg ExpenseEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
