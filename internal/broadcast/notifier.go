// Package broadcast emits "this form changed" events after a form has been archived.
//
// Broadcasting is best effort: a failed publish is logged and dropped, because the archive
// write has already happened and must not be repeated or undone.
package broadcast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Guizzs26/ndw-archiver/internal/content"
	"github.com/Guizzs26/ndw-archiver/internal/models"
	"github.com/Guizzs26/ndw-archiver/pkg/metrics"
	"github.com/google/uuid"
)

// EventTypeAttribute is the single classification attribute attached to a broadcast
const EventTypeAttribute = "event_type"

// fifoSuffix marks destinations that only keep order within one ordering key
const fifoSuffix = ".fifo"

// Route is where broadcasts go. An empty Destination disables broadcasting.
type Route struct {
	Destination      string
	MessageAttribute string
}

func (r Route) Enabled() bool { return r.Destination != "" }

// FIFO reports whether the destination needs an ordering key on every message
func (r Route) FIFO() bool { return strings.HasSuffix(r.Destination, fifoSuffix) }

// Publication is one message handed to a transport
type Publication struct {
	ID          string
	Destination string
	Body        []byte
	Attributes  map[string]string
	OrderingKey string
}

// Publisher delivers a Publication to its destination
type Publisher interface {
	Publish(ctx context.Context, p Publication) error
}

// Status is what happened to a broadcast request
type Status int

const (
	StatusSent Status = iota
	// StatusDisabled means no route is configured
	StatusDisabled
	// StatusOmitted means there was no archived content to report
	StatusOmitted
	// StatusFailed means the publish was attempted and rejected; the error was logged
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSent:
		return "sent"
	case StatusDisabled:
		return "disabled"
	case StatusOmitted:
		return "omitted"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

type Notifier struct {
	publisher Publisher
	route     Route
	now       func() time.Time
	logger    *slog.Logger
}

func NewNotifier(publisher Publisher, route Route, logger *slog.Logger) *Notifier {
	return &Notifier{
		publisher: publisher,
		route:     route,
		now:       time.Now,
		logger:    logger,
	}
}

// OrderingKey groups all transitions of one form of one trainee
func OrderingKey(traineeID, formType, formName string) string {
	return fmt.Sprintf("%s_%s_%s", traineeID, formType, formName)
}

// Notify publishes a change event for an archived form. A nil payload means nothing was
// archived, and no event is built.
func (n *Notifier) Notify(ctx context.Context, formName, formType, traineeID, lifecycleState string, payload *content.Tree) Status {
	l := n.logger.With("form_name", formName, "form_type", formType)

	if payload == nil {
		l.Warn("No content in form, skipping event broadcast")
		return StatusOmitted
	}
	if !n.route.Enabled() || n.publisher == nil {
		l.Debug("Broadcasting disabled, no destination configured")
		return StatusDisabled
	}

	l.Info("Broadcasting event for form")
	event := models.FormBroadcastEvent{
		FormName:       formName,
		LifecycleState: lifecycleState,
		TraineeID:      traineeID,
		FormType:       formType,
		EventDate:      n.now().UTC(),
		FormContent:    payload,
	}

	body, err := encode(event)
	if err != nil {
		l.Error("Failed to serialize broadcast event", "error", err)
		metrics.Broadcasts.WithLabelValues("error").Inc()
		return StatusFailed
	}

	pub := Publication{
		ID:          uuid.NewString(),
		Destination: n.route.Destination,
		Body:        body,
	}
	if n.route.MessageAttribute != "" {
		pub.Attributes = map[string]string{EventTypeAttribute: n.route.MessageAttribute}
	}
	if n.route.FIFO() {
		pub.OrderingKey = OrderingKey(traineeID, formType, formName)
	}

	if err := n.publisher.Publish(ctx, pub); err != nil {
		l.Error("Failed to broadcast event",
			"destination", n.route.Destination,
			"error", err,
		)
		metrics.Broadcasts.WithLabelValues("error").Inc()
		return StatusFailed
	}

	metrics.Broadcasts.WithLabelValues("sent").Inc()
	l.Info("Broadcast event sent", "destination", n.route.Destination, "message_id", pub.ID)
	return StatusSent
}

func encode(event models.FormBroadcastEvent) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(event); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
