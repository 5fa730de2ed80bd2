package nats

import (
	"testing"

	"github.com/Guizzs26/ndw-archiver/internal/broadcast"
	"github.com/stretchr/testify/assert"
)

func TestMessage_Headers(t *testing.T) {
	msg := message(broadcast.Publication{
		ID:          "id-1",
		Destination: "form-updated.fifo",
		Body:        []byte(`{"formName":"123.json"}`),
		Attributes:  map[string]string{broadcast.EventTypeAttribute: "FORM_UPDATED"},
		OrderingKey: "X_formr-a_123.json",
	})

	assert.Equal(t, "form-updated.fifo", msg.Subject)
	assert.Equal(t, `{"formName":"123.json"}`, string(msg.Data))
	assert.Equal(t, "FORM_UPDATED", msg.Header.Get("event_type"))
	assert.Equal(t, "X_formr-a_123.json", msg.Header.Get(HeaderMessageGroupID))
}

func TestMessage_NoOrderingKey(t *testing.T) {
	msg := message(broadcast.Publication{ID: "id-2", Destination: "form-updated"})

	assert.Empty(t, msg.Header.Get(HeaderMessageGroupID))
	assert.Empty(t, msg.Header.Get("event_type"))
}

func TestStreamName(t *testing.T) {
	tests := map[string]string{
		"form-updated.fifo": "FORM-UPDATED_FIFO",
		"forms.>":           "FORMS_ALL",
		"plain":             "PLAIN",
	}

	for subject, expected := range tests {
		t.Run(subject, func(t *testing.T) {
			assert.Equal(t, expected, StreamName(subject))
		})
	}
}
