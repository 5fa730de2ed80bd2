package models

import (
	"time"

	"github.com/Guizzs26/ndw-archiver/internal/content"
)

// TisReference identifies the TIS entity that prompted a notification or action
type TisReference struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type Recipient struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Contact string `json:"contact"`
}

type Template struct {
	Name      string        `json:"name"`
	Version   string        `json:"version"`
	Variables *content.Tree `json:"variables"`
}

// NotificationRecord is a notification sent to a trainee. ID is a pointer so that a missing
// or null id can be told apart from an empty one.
type NotificationRecord struct {
	ID           *string       `json:"id"`
	TisReference *TisReference `json:"tisReference"`
	Type         string        `json:"type"`
	Recipient    *Recipient    `json:"recipient"`
	Template     *Template     `json:"template"`
	SentAt       *time.Time    `json:"sentAt"`
	ReadAt       *time.Time    `json:"readAt"`
	Status       string        `json:"status"`
	StatusDetail string        `json:"statusDetail"`
	LastRetry    *time.Time    `json:"lastRetry"`
}

// ActionRecord is a task assigned to a trainee. AvailableFrom and DueBy are calendar dates
// (YYYY-MM-DD) and are kept verbatim.
type ActionRecord struct {
	ID             *string       `json:"id"`
	Type           string        `json:"type"`
	TraineeID      string        `json:"traineeId"`
	TisReference   *TisReference `json:"tisReference"`
	AvailableFrom  *string       `json:"availableFrom"`
	DueBy          *string       `json:"dueBy"`
	CompletedAt    *time.Time    `json:"completedAt"`
	Status         string        `json:"status"`
	StatusDateTime *time.Time    `json:"statusDateTime"`
}
