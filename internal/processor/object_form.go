package processor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Guizzs26/ndw-archiver/internal/archive"
	"github.com/Guizzs26/ndw-archiver/internal/content"
	"github.com/Guizzs26/ndw-archiver/internal/models"
	"github.com/Guizzs26/ndw-archiver/internal/objectstore"
	"github.com/Guizzs26/ndw-archiver/pkg/encoding"
)

// Object metadata keys carried by stored forms
const (
	MetaName           = "name"
	MetaFormType       = "formtype"
	MetaTraineeID      = "traineeid"
	MetaLifecycleState = "lifecyclestate"
)

// Fetcher reads the latest version of a stored object
type Fetcher interface {
	Get(ctx context.Context, container, key string) (*objectstore.Object, error)
}

// ObjectFormProcessor handles forms that live in object storage and arrive as change
// notifications pointing at them
type ObjectFormProcessor struct {
	fetcher     Fetcher
	pipeline    *Pipeline
	broadcaster Broadcaster
	logger      *slog.Logger
}

func NewObjectFormProcessor(fetcher Fetcher, pipeline *Pipeline, broadcaster Broadcaster, logger *slog.Logger) *ObjectFormProcessor {
	return &ObjectFormProcessor{
		fetcher:     fetcher,
		pipeline:    pipeline,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

func (p *ObjectFormProcessor) Kind() string { return "form_object" }

func (p *ObjectFormProcessor) Process(ctx context.Context, msg Message) (Outcome, error) {
	ref, err := models.ParseObjectEvent(msg.Body)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	l := p.logger.With("container", ref.Container, "key", ref.Key)
	l.Debug("Received object change event", "version_hint", ref.VersionHint)

	// Versions are not fetched by id; whatever is current now is what gets archived
	obj, err := p.fetcher.Get(ctx, ref.Container, ref.Key)
	if err != nil {
		return Outcome{}, err
	}

	if ref.VersionHint != "" && obj.VersionID != ref.VersionHint {
		l.Info("Object changed since the event was raised, archiving latest version",
			"version_hint", ref.VersionHint,
			"version_latest", obj.VersionID,
		)
	}

	name := obj.Metadata[MetaName]
	formType := obj.Metadata[MetaFormType]
	if name == "" || formType == "" {
		l.Error("Object metadata is missing name or form type")
		return Outcome{}, fmt.Errorf("%w: object %s/%s is missing %q or %q metadata",
			ErrInvalidRecord, ref.Container, ref.Key, MetaName, MetaFormType)
	}
	if err := archive.ValidateName(name); err != nil {
		l.Error("Object name metadata is not a valid archive name", "name", name)
		return Outcome{}, fmt.Errorf("%w: object %s/%s: %v", ErrInvalidRecord, ref.Container, ref.Key, err)
	}
	l = l.With("name", name, "type", formType)

	category, ok := p.pipeline.resolve(l, formType)
	if !ok {
		return Outcome{State: StateSkippedUnknownType}, nil
	}

	traineeID := obj.Metadata[MetaTraineeID]
	lifecycleState := obj.Metadata[MetaLifecycleState]
	if traineeID == "" || lifecycleState == "" {
		l.Error("Object metadata is missing trainee id or lifecycle state")
		return Outcome{}, fmt.Errorf("%w: object %s/%s is missing %q or %q metadata",
			ErrInvalidRecord, ref.Container, ref.Key, MetaTraineeID, MetaLifecycleState)
	}

	payload, entry := p.archiveBody(ctx, l, category, name, obj.Body)

	status := p.broadcaster.Notify(ctx, name, formType, traineeID, lifecycleState, payload)
	return broadcastOutcome(status, entry), nil
}

// archiveBody archives the raw object body. Unreadable content leaves nothing archived and
// is not an error, since the stored object will not change on redelivery.
func (p *ObjectFormProcessor) archiveBody(ctx context.Context, l *slog.Logger, category, name string, body []byte) (*content.Tree, *archive.Entry) {
	if len(body) == 0 {
		l.Warn("Object has no content, nothing archived")
		return nil, nil
	}

	body, transcoded := encoding.EnsureUTF8(body)
	if transcoded {
		l.Debug("Transcoded object content from Windows-1252")
	}

	tree, err := content.Parse(body)
	if err != nil {
		l.Warn("Unable to read object content, nothing archived", "error", err)
		return nil, nil
	}

	return p.pipeline.archive(ctx, l, p.Kind(), category, name, tree)
}
