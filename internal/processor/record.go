package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Guizzs26/ndw-archiver/internal/archive"
	"github.com/Guizzs26/ndw-archiver/internal/content"
	"github.com/Guizzs26/ndw-archiver/internal/models"
	"github.com/Guizzs26/ndw-archiver/internal/routing"
)

// RecordProcessor archives typed delivery records under a fixed category, named by their id.
// Records without an id are logged and skipped; they are never broadcast.
type RecordProcessor[T any] struct {
	kind     string
	category string
	idOf     func(*T) *string
	pipeline *Pipeline
	logger   *slog.Logger
}

func NewNotificationProcessor(pipeline *Pipeline, logger *slog.Logger) *RecordProcessor[models.NotificationRecord] {
	return &RecordProcessor[models.NotificationRecord]{
		kind:     "notification",
		category: routing.CategoryNotifications,
		idOf:     func(r *models.NotificationRecord) *string { return r.ID },
		pipeline: pipeline,
		logger:   logger,
	}
}

func NewActionProcessor(pipeline *Pipeline, logger *slog.Logger) *RecordProcessor[models.ActionRecord] {
	return &RecordProcessor[models.ActionRecord]{
		kind:     "action",
		category: routing.CategoryActions,
		idOf:     func(r *models.ActionRecord) *string { return r.ID },
		pipeline: pipeline,
		logger:   logger,
	}
}

func (p *RecordProcessor[T]) Kind() string { return p.kind }

func (p *RecordProcessor[T]) Process(ctx context.Context, msg Message) (Outcome, error) {
	l := p.logger.With("kind", p.kind, "category", p.category)

	body := bytes.TrimSpace(msg.Body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		l.Warn("Record has no content, skipping")
		return Outcome{State: StateNotArchived}, nil
	}

	var record T
	if err := json.Unmarshal(body, &record); err != nil {
		return Outcome{}, fmt.Errorf("%w: failed to decode %s: %v", ErrInvalidRecord, p.kind, err)
	}

	id := p.idOf(&record)
	if id == nil || *id == "" {
		l.Warn("Record has no id, skipping")
		return Outcome{State: StateSkippedMissingID}, nil
	}
	if err := archive.ValidateName(*id); err != nil {
		l.Error("Record id is not a valid archive name", "id", *id)
		return Outcome{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	l = l.With("name", *id)

	// Round trip through the typed record so only known fields are archived, in declared order
	encoded, err := json.Marshal(&record)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: failed to encode %s: %v", ErrInvalidRecord, p.kind, err)
	}
	tree, err := content.Parse(encoded)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: failed to encode %s: %v", ErrInvalidRecord, p.kind, err)
	}

	_, entry := p.pipeline.archive(ctx, l, p.kind, p.category, *id, tree)
	return archivedOutcome(entry), nil
}
