// Package models defines the domain types for munin.
package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/halvard/munin/internal/parser"
)

// TimeLayout is the canonical datetime form written to note metadata.
const TimeLayout = "2006-01-02 15:04:05"

// Parse failure modes. Repository layers wrap these into apperr.ErrParse.
var (
	ErrMissingFrontMatter = errors.New("missing front matter")
	ErrInvalidFrontMatter = errors.New("invalid front matter")
)

// Metadata is the front-matter block of a note file.
//
// Title is derived from the body's first H1/H2 heading and recomputed on
// every content update; it is never independently settable.
type Metadata struct {
	UID       string
	Title     string // empty when the body has no heading
	Tags      []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewUID returns a time-derived identifier: UTC YYYYMMDDHHMMSS plus the
// zero-padded low six digits of the nanosecond counter (20 chars total).
func NewUID() string {
	now := time.Now().UTC()
	return fmt.Sprintf("%s%06d", now.Format("20060102150405"), now.Nanosecond()%1_000_000)
}

// Note represents a single markdown document: metadata plus body text.
type Note struct {
	Meta Metadata
	Body string
}

// New creates an empty note with a fresh uid and current timestamps.
func New() *Note {
	now := time.Now().UTC().Truncate(time.Second)
	return &Note{Meta: Metadata{
		UID:       NewUID(),
		CreatedAt: now,
		UpdatedAt: now,
	}}
}

// WithUID creates an empty note carrying the given uid.
func WithUID(uid string) *Note {
	n := New()
	n.Meta.UID = uid
	return n
}

// WithTitle creates a note whose body is seeded with an H1 heading.
func WithTitle(title string) *Note {
	n := New()
	n.Body = fmt.Sprintf("# %s\n\n", title)
	n.Meta.Title = title
	return n
}

// UpdateContent replaces the body, re-derives the title from the first
// heading, and bumps the updated-at timestamp. A no-op when unchanged.
func (n *Note) UpdateContent(body string) {
	if n.Body == body {
		return
	}
	n.Body = body
	n.Meta.Title = parser.ExtractHeading(body)
	n.Meta.UpdatedAt = time.Now().UTC().Truncate(time.Second)
}

// UpdateTags replaces the front-matter tag list.
func (n *Note) UpdateTags(tags []string) {
	n.Meta.Tags = tags
	n.Meta.UpdatedAt = time.Now().UTC().Truncate(time.Second)
}

// Heading returns the body's first H1/H2 heading, or "".
func (n *Note) Heading() string {
	return parser.ExtractHeading(n.Body)
}

// DisplayTitle returns the derived heading, falling back to the uid.
func (n *Note) DisplayTitle() string {
	if h := n.Heading(); h != "" {
		return h
	}
	return n.Meta.UID
}

// AllTags merges front-matter tags with body hashtags, deduplicated
// case-insensitively and sorted.
func (n *Note) AllTags() []string {
	all := make([]string, 0, len(n.Meta.Tags))
	seen := make(map[string]struct{})
	for _, t := range n.Meta.Tags {
		key := strings.ToLower(t)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		all = append(all, t)
	}
	for _, t := range parser.ExtractHashtags(n.Body) {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		all = append(all, t)
	}
	sort.Strings(all)
	return all
}

// Serialize renders the full file content: fenced metadata, blank line, body.
func (n *Note) Serialize() string {
	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString("uid: " + n.Meta.UID + "\n")
	if n.Meta.Title != "" {
		b.WriteString("title: " + n.Meta.Title + "\n")
	}
	if len(n.Meta.Tags) > 0 {
		b.WriteString("tags:\n")
		for _, t := range n.Meta.Tags {
			b.WriteString("  - " + t + "\n")
		}
	}
	b.WriteString("created_at: " + n.Meta.CreatedAt.UTC().Format(TimeLayout) + "\n")
	b.WriteString("updated_at: " + n.Meta.UpdatedAt.UTC().Format(TimeLayout) + "\n")
	b.WriteString("---\n\n")
	b.WriteString(n.Body)
	return b.String()
}

// Parse reads a serialized note file. A file that does not open with the
// front-matter fence is malformed, as is a metadata block missing uid or
// either timestamp.
func Parse(content string) (*Note, error) {
	if !strings.HasPrefix(content, "---\n") {
		return nil, ErrMissingFrontMatter
	}

	const fenceLen = 4 // "---\n"
	end := strings.Index(content[fenceLen:], "\n---")
	if end < 0 {
		return nil, ErrInvalidFrontMatter
	}

	meta, err := parseMetadata(content[fenceLen : fenceLen+end])
	if err != nil {
		return nil, err
	}

	body := ""
	if bodyStart := fenceLen + end + 4; bodyStart < len(content) {
		body = strings.TrimLeft(content[bodyStart:], "\n")
	}

	return &Note{Meta: meta, Body: body}, nil
}

// HasFrontMatter reports whether content carries a fenced metadata block.
func HasFrontMatter(content string) bool {
	return strings.HasPrefix(content, "---\n") && strings.Contains(content[4:], "\n---")
}

// parseMetadata reads the line-oriented metadata block. This is intentionally
// not a YAML parser: the format is a fixed set of keys with inline bracketed
// or dash-list tags, and must round-trip byte-exactly.
func parseMetadata(block string) (Metadata, error) {
	var (
		meta    Metadata
		haveUID bool
		inTags  bool
		created *time.Time
		updated *time.Time
	)

	for _, line := range strings.Split(block, "\n") {
		trimmed := strings.TrimSpace(line)

		if inTags {
			if item, ok := strings.CutPrefix(trimmed, "- "); ok {
				if tag := strings.TrimSpace(item); tag != "" {
					meta.Tags = append(meta.Tags, tag)
				}
				continue
			}
			if trimmed != "" && !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") {
				inTags = false
			}
		}

		switch {
		case strings.HasPrefix(trimmed, "uid:"):
			meta.UID = strings.TrimSpace(strings.TrimPrefix(trimmed, "uid:"))
			haveUID = meta.UID != ""
		case strings.HasPrefix(trimmed, "title:"):
			meta.Title = strings.TrimSpace(strings.TrimPrefix(trimmed, "title:"))
		case strings.HasPrefix(trimmed, "tags:"):
			inline := strings.TrimSpace(strings.TrimPrefix(trimmed, "tags:"))
			if strings.HasPrefix(inline, "[") && strings.HasSuffix(inline, "]") {
				for _, part := range strings.Split(inline[1:len(inline)-1], ",") {
					if tag := strings.TrimSpace(part); tag != "" {
						meta.Tags = append(meta.Tags, tag)
					}
				}
			} else if inline == "" {
				inTags = true
			}
		case strings.HasPrefix(trimmed, "created_at:"):
			created = parseTime(strings.TrimSpace(strings.TrimPrefix(trimmed, "created_at:")))
		case strings.HasPrefix(trimmed, "updated_at:"):
			updated = parseTime(strings.TrimSpace(strings.TrimPrefix(trimmed, "updated_at:")))
		}
	}

	if !haveUID || created == nil || updated == nil {
		return Metadata{}, ErrInvalidFrontMatter
	}
	meta.CreatedAt = *created
	meta.UpdatedAt = *updated
	return meta, nil
}

// parseTime accepts the canonical layout plus RFC-3339 for legacy files.
func parseTime(value string) *time.Time {
	if t, err := time.Parse(TimeLayout, value); err == nil {
		t = t.UTC()
		return &t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		t = t.UTC()
		return &t
	}
	return nil
}

// ListItem is the lightweight listing projection of a note.
type ListItem struct {
	UID       string    `json:"uid"`
	Title     string    `json:"title"`
	Path      string    `json:"path"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GalleryItem is the denormalized listing used by gallery views: preview and
// tags are precomputed so no per-item file read is needed.
type GalleryItem struct {
	UID       string    `json:"uid"`
	Title     string    `json:"title"`
	Preview   string    `json:"preview"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
