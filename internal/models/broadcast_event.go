package models

import (
	"time"

	"github.com/Guizzs26/ndw-archiver/internal/content"
)

// FormBroadcastEvent tells downstream consumers that an archived form changed.
// EventDate is the broadcast time, not the time of the original change.
type FormBroadcastEvent struct {
	FormName       string        `json:"formName"`
	LifecycleState string        `json:"lifecycleState"`
	TraineeID      string        `json:"traineeId"`
	FormType       string        `json:"formType"`
	EventDate      time.Time     `json:"eventDate"`
	FormContent    *content.Tree `json:"formContentDto"`
}
