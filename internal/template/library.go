package template

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/foxzi/htmlmailer/internal/htmlguard"
	"github.com/foxzi/htmlmailer/internal/metrics"
)

// ImportOptions controls how a name clash with an existing template is handled
type ImportOptions struct {
	// Replace deletes the existing template with the same name. Otherwise the
	// new template is renamed with a millisecond timestamp suffix.
	Replace bool
}

// Library owns the template collection. All mutations go through it so that
// validation always precedes storage.
type Library struct {
	mu        sync.Mutex
	storage   *Storage
	validator *Validator
	logger    *slog.Logger
	now       func() time.Time
}

// NewLibrary creates a library over the given storage
func NewLibrary(storage *Storage, logger *slog.Logger) *Library {
	return &Library{
		storage:   storage,
		validator: NewValidator(),
		logger:    logger,
		now:       time.Now,
	}
}

// Import validates and stores a template. The declared size and file name
// are checked before r is read. Rejections are returned as *RejectedError.
func (l *Library) Import(ctx context.Context, fileName string, size int64, r io.Reader, opts ImportOptions) (*Template, error) {
	if err := l.validator.Precheck(fileName, size); err != nil {
		metrics.IncUploadsRejected()
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxTemplateSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}
	content := string(data)

	result := l.validator.Validate(fileName, content, int64(len(data)))
	if err := result.Err(); err != nil {
		l.logger.Info("template rejected", "name", fileName, "reason", result.Reason)
		metrics.IncUploadsRejected()
		if result.Rule != "" {
			metrics.IncContentRejected("upload", string(result.Rule))
		}
		return nil, err
	}

	tmpl := &Template{
		Name:      fileName,
		Content:   content,
		Size:      int64(len(data)),
		CreatedAt: l.now(),
		Preview:   htmlguard.BuildPreview(content),
		Warnings:  result.Warnings,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	existing, err := l.storage.GetByName(ctx, tmpl.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to look up template: %w", err)
	}
	if existing != nil {
		if opts.Replace {
			if err := l.storage.Delete(ctx, existing.ID); err != nil {
				return nil, fmt.Errorf("failed to replace template: %w", err)
			}
		} else {
			tmpl.Name = fmt.Sprintf("%s (%d)", fileName, tmpl.CreatedAt.UnixMilli())
		}
	}

	if err := l.storage.Create(ctx, tmpl); err != nil {
		return nil, fmt.Errorf("failed to save template: %w", err)
	}

	metrics.IncTemplatesImported()
	l.logger.Info("template imported",
		"id", tmpl.ID,
		"name", tmpl.Name,
		"size", tmpl.Size,
		"warnings", len(tmpl.Warnings),
	)
	return tmpl, nil
}

// Get returns a template by ID, or ErrNotFound
func (l *Library) Get(ctx context.Context, id string) (*Template, error) {
	tmpl, err := l.storage.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if tmpl == nil {
		return nil, ErrNotFound
	}
	return tmpl, nil
}

// Find returns a template by ID or, failing that, by name
func (l *Library) Find(ctx context.Context, idOrName string) (*Template, error) {
	tmpl, err := l.storage.Get(ctx, idOrName)
	if err != nil {
		return nil, err
	}
	if tmpl == nil {
		tmpl, err = l.storage.GetByName(ctx, idOrName)
		if err != nil {
			return nil, err
		}
	}
	if tmpl == nil {
		return nil, ErrNotFound
	}
	return tmpl, nil
}

// List returns templates, newest first
func (l *Library) List(ctx context.Context, filter ListFilter) ([]*Template, error) {
	return l.storage.List(ctx, filter)
}

// Preview recomputes the preview of a stored template with the current rules
func (l *Library) Preview(ctx context.Context, id string) (htmlguard.Preview, error) {
	tmpl, err := l.Get(ctx, id)
	if err != nil {
		return htmlguard.Preview{}, err
	}
	return htmlguard.BuildPreview(tmpl.Content), nil
}

// Delete removes a template
func (l *Library) Delete(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.storage.Delete(ctx, id)
}

// Clear removes every template
func (l *Library) Clear(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.storage.Clear(ctx)
}

// Stats returns template statistics
func (l *Library) Stats(ctx context.Context) (*Stats, error) {
	return l.storage.Stats(ctx)
}

// TemplateStats reports library size for the metrics collector
func (l *Library) TemplateStats(ctx context.Context) (*metrics.TemplateStats, error) {
	stats, err := l.storage.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &metrics.TemplateStats{Total: int(stats.Total), TotalSize: stats.TotalSize}, nil
}
