package processor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Guizzs26/ndw-archiver/internal/archive"
	"github.com/Guizzs26/ndw-archiver/internal/content"
)

const (
	// AttrFormType is the message attribute naming a FormR submission's type
	AttrFormType = "formType"

	fieldID             = "id"
	fieldTraineeID      = "traineeTisId"
	fieldLifecycleState = "lifecycleState"
)

// InlineFormProcessor handles forms whose content is the message body. The type is either
// fixed for the queue or taken from a message attribute.
type InlineFormProcessor struct {
	kind          string
	typeTag       string
	typeAttribute string
	pipeline      *Pipeline
	broadcaster   Broadcaster
	logger        *slog.Logger
}

// NewLTFTProcessor archives Less Than Full Time forms. They are never broadcast
func NewLTFTProcessor(pipeline *Pipeline, logger *slog.Logger) *InlineFormProcessor {
	return &InlineFormProcessor{
		kind:     "form_ltft",
		typeTag:  "ltft",
		pipeline: pipeline,
		logger:   logger,
	}
}

// NewFormRProcessor archives FormR submissions typed by the formType attribute and
// broadcasts those that carry owner and lifecycle fields
func NewFormRProcessor(pipeline *Pipeline, broadcaster Broadcaster, logger *slog.Logger) *InlineFormProcessor {
	return &InlineFormProcessor{
		kind:          "form_formr",
		typeAttribute: AttrFormType,
		pipeline:      pipeline,
		broadcaster:   broadcaster,
		logger:        logger,
	}
}

func (p *InlineFormProcessor) Kind() string { return p.kind }

func (p *InlineFormProcessor) Process(ctx context.Context, msg Message) (Outcome, error) {
	tree, err := content.Parse(msg.Body)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	id, _ := tree.GetString(fieldID)
	if strings.TrimSpace(id) == "" {
		p.logger.Error("Form has no id", "kind", p.kind)
		return Outcome{}, fmt.Errorf("%w: form id must not be blank", ErrInvalidRecord)
	}
	name := id + ".json"
	if err := archive.ValidateName(name); err != nil {
		p.logger.Error("Form id is not a valid archive name", "kind", p.kind, "id", id)
		return Outcome{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	typeTag := p.typeTag
	if typeTag == "" {
		typeTag = msg.Attributes[p.typeAttribute]
		if typeTag == "" {
			p.logger.Error("Form is missing its type attribute", "kind", p.kind, "name", name, "attribute", p.typeAttribute)
			return Outcome{}, fmt.Errorf("%w: message attribute %q must not be empty", ErrInvalidRecord, p.typeAttribute)
		}
	}

	l := p.logger.With("kind", p.kind, "name", name, "type", typeTag)

	var traineeID, lifecycleState string
	var hasOwner bool
	if p.broadcaster != nil {
		var hasTrainee, hasLifecycle bool
		traineeID, hasTrainee = tree.GetString(fieldTraineeID)
		lifecycleState, hasLifecycle = tree.GetString(fieldLifecycleState)
		if hasTrainee != hasLifecycle {
			l.Error("Form carries incomplete owner metadata",
				"has_trainee_id", hasTrainee,
				"has_lifecycle_state", hasLifecycle,
			)
			return Outcome{}, fmt.Errorf("%w: form %s needs both %q and %q, or neither",
				ErrInvalidRecord, name, fieldTraineeID, fieldLifecycleState)
		}
		hasOwner = hasTrainee
	}

	category, ok := p.pipeline.resolve(l, typeTag)
	if !ok {
		return Outcome{State: StateSkippedUnknownType}, nil
	}
	l = l.With("category", category)

	payload, entry := p.pipeline.archive(ctx, l, p.kind, category, name, tree)

	if p.broadcaster == nil {
		return archivedOutcome(entry), nil
	}
	if !hasOwner {
		l.Warn("Form has no owner metadata, not broadcasting")
		return Outcome{State: StateBroadcastSkipped, Entry: entry}, nil
	}

	status := p.broadcaster.Notify(ctx, name, typeTag, traineeID, lifecycleState, payload)
	return broadcastOutcome(status, entry), nil
}
