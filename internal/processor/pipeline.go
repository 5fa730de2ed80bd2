package processor

import (
	"context"
	"log/slog"

	"github.com/Guizzs26/ndw-archiver/internal/archive"
	"github.com/Guizzs26/ndw-archiver/internal/content"
	"github.com/Guizzs26/ndw-archiver/internal/routing"
	"github.com/Guizzs26/ndw-archiver/pkg/metrics"
)

// Recorder keeps a ledger of archived files
type Recorder interface {
	Record(ctx context.Context, kind string, entry archive.Entry) error
}

// Pipeline holds the steps every record kind shares: routing, cleaning, archiving and
// ledger bookkeeping
type Pipeline struct {
	store    *archive.Store
	router   routing.Table
	recorder Recorder
	logger   *slog.Logger
}

// NewPipeline builds the shared steps. recorder may be nil
func NewPipeline(store *archive.Store, router routing.Table, recorder Recorder, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		store:    store,
		router:   router,
		recorder: recorder,
		logger:   logger,
	}
}

// resolve maps a type tag to its category and logs unsupported tags
func (p *Pipeline) resolve(l *slog.Logger, typeTag string) (string, bool) {
	category, ok := p.router.Resolve(typeTag)
	if !ok {
		l.Error("Type is not an exportable form type, skipping", "type", typeTag)
	}
	return category, ok
}

// archive cleans tree and stores it. It returns the cleaned tree and the entry only when the
// write happened. Failures are logged here and never returned.
func (p *Pipeline) archive(ctx context.Context, l *slog.Logger, kind, category, name string, tree *content.Tree) (*content.Tree, *archive.Entry) {
	cleaned := content.Clean(tree)

	data, err := cleaned.MarshalJSON()
	if err != nil {
		l.Error("Failed to serialize cleaned content", "error", err)
		return nil, nil
	}

	entry, ok := p.store.Save(ctx, category, name, data)
	if !ok {
		return nil, nil
	}

	if p.recorder != nil {
		if err := p.recorder.Record(ctx, kind, entry); err != nil {
			l.Warn("Failed to record archive ledger entry", "path", entry.Path, "error", err)
			metrics.LedgerWrites.WithLabelValues("error").Inc()
		} else {
			metrics.LedgerWrites.WithLabelValues("recorded").Inc()
		}
	}

	return cleaned, &entry
}
