package api

import (
	"time"

	"github.com/halvard/munin/internal/models"
)

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Content string `json:"content" validate:"required"`
}

// UpdateNoteRequest is the request body for replacing note content.
type UpdateNoteRequest struct {
	Content string `json:"content" validate:"required"`
}

// UpdateTagsRequest is the request body for replacing note tags.
type UpdateTagsRequest struct {
	Tags []string `json:"tags" validate:"required"`
}

// NoteDetail is the full note response type.
type NoteDetail struct {
	UID       string    `json:"uid"`
	Title     string    `json:"title"`
	Path      string    `json:"path"`
	Tags      []string  `json:"tags"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func detailOf(n *models.Note, path string) *NoteDetail {
	tags := n.AllTags()
	if tags == nil {
		tags = []string{}
	}
	return &NoteDetail{
		UID:       n.Meta.UID,
		Title:     n.DisplayTitle(),
		Path:      path,
		Tags:      tags,
		Content:   n.Body,
		CreatedAt: n.Meta.CreatedAt,
		UpdatedAt: n.Meta.UpdatedAt,
	}
}

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []models.ListItem `json:"notes" validate:"required"`
	Total int               `json:"total" validate:"required"`
}

// SyncResponse reports one reconciliation pass.
type SyncResponse struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Removed int `json:"removed"`
}
