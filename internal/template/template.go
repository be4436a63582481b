package template

import (
	"time"

	"github.com/foxzi/htmlmailer/internal/htmlguard"
)

// Template is an uploaded HTML email document
type Template struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Content   string            `json:"content"`
	Size      int64             `json:"size"`
	CreatedAt time.Time         `json:"created_at"`
	Preview   htmlguard.Preview `json:"preview"`
	Warnings  []string          `json:"warnings"`
}

// Summary is the listing form of a template, without content
type Summary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Title     string    `json:"title"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	Warnings  []string  `json:"warnings"`
}

// Summary returns the listing form of t
func (t *Template) Summary() Summary {
	return Summary{
		ID:        t.ID,
		Name:      t.Name,
		Title:     t.Preview.Title,
		Size:      t.Size,
		CreatedAt: t.CreatedAt,
		Warnings:  t.Warnings,
	}
}

// ListFilter contains filters for listing templates
type ListFilter struct {
	Limit  int
	Offset int
	Search string
}

// Stats contains template statistics
type Stats struct {
	Total     int64 `json:"total"`
	TotalSize int64 `json:"total_size"`
}
