// Package processor turns inbound messages into archive entries and broadcasts.
//
// Every record kind follows the same lifecycle:
//
//	received -> content resolved -> category known -> normalized -> archived -> broadcast
//
// and differs only in how content and metadata are obtained. Expected non-processing
// outcomes (unknown type, empty content, missing id on notifications) are returned as an
// Outcome with a nil error. Validation failures wrap ErrInvalidRecord. Any other error is
// transient and the message may be redelivered.
package processor

import (
	"context"
	"errors"
	"time"

	"github.com/Guizzs26/ndw-archiver/internal/archive"
	"github.com/Guizzs26/ndw-archiver/internal/broadcast"
	"github.com/Guizzs26/ndw-archiver/internal/content"
	"github.com/Guizzs26/ndw-archiver/pkg/metrics"
)

// ErrInvalidRecord marks a record that can never be processed as delivered
var ErrInvalidRecord = errors.New("invalid record")

// Message is one inbound delivery: the body plus broker attributes (headers)
type Message struct {
	Body       []byte
	Attributes map[string]string
}

// State is the terminal state a record reached
type State string

const (
	// StateArchived means content was written and no broadcast applies to the kind
	StateArchived State = "archived"
	// StateNotArchived means the write was skipped (empty or unreadable content) or failed
	StateNotArchived        State = "not_archived"
	StateSkippedUnknownType State = "skipped_unknown_type"
	StateSkippedMissingID   State = "skipped_missing_id"
	StateBroadcastSent      State = "broadcast_sent"
	// StateBroadcastSkipped means the record carries no owner/lifecycle metadata, or
	// broadcasting is disabled
	StateBroadcastSkipped State = "broadcast_skipped"
	// StateBroadcastOmitted means nothing was archived so there was nothing to report
	StateBroadcastOmitted State = "broadcast_omitted"
	// StateBroadcastFailed means the publish was rejected; the archive write stands
	StateBroadcastFailed State = "broadcast_failed"
	StateFailed          State = "failed"
)

// Outcome reports how a record was handled. Entry is set when content was archived
type Outcome struct {
	State State
	Entry *archive.Entry
}

func archivedOutcome(entry *archive.Entry) Outcome {
	if entry == nil {
		return Outcome{State: StateNotArchived}
	}
	return Outcome{State: StateArchived, Entry: entry}
}

func broadcastOutcome(status broadcast.Status, entry *archive.Entry) Outcome {
	var state State
	switch status {
	case broadcast.StatusSent:
		state = StateBroadcastSent
	case broadcast.StatusOmitted:
		state = StateBroadcastOmitted
	case broadcast.StatusFailed:
		state = StateBroadcastFailed
	default:
		state = StateBroadcastSkipped
	}
	return Outcome{State: state, Entry: entry}
}

// Processor handles one record kind
type Processor interface {
	Kind() string
	Process(ctx context.Context, msg Message) (Outcome, error)
}

// Broadcaster emits a change event for an archived form
type Broadcaster interface {
	Notify(ctx context.Context, formName, formType, traineeID, lifecycleState string, payload *content.Tree) broadcast.Status
}

// Handle runs p on msg and records metrics for the result
func Handle(ctx context.Context, p Processor, msg Message) (outcome Outcome, err error) {
	start := time.Now()

	defer func() {
		status := "success"
		state := outcome.State
		if err != nil {
			state = StateFailed
			if errors.Is(err, ErrInvalidRecord) {
				status = "invalid"
			} else {
				status = "transient"
			}
		}

		metrics.RecordsProcessed.WithLabelValues(p.Kind(), string(state)).Inc()
		metrics.ProcessingDuration.WithLabelValues(p.Kind(), status).Observe(time.Since(start).Seconds())
	}()

	return p.Process(ctx, msg)
}
