package api

import (
	"context"
	"log/slog"
	"strings"

	"github.com/halvard/munin/internal/apperr"
	"github.com/halvard/munin/internal/backlink"
	"github.com/halvard/munin/internal/index"
	"github.com/halvard/munin/internal/models"
	"github.com/halvard/munin/internal/repository"
	"github.com/halvard/munin/internal/search"
	"github.com/halvard/munin/internal/sse"
)

// Service coordinates note persistence with the link graph and event stream.
// Every mutation flows through here so the graph and connected clients stay
// in step with the files.
type Service struct {
	repo     *repository.Hybrid
	links    *backlink.Service
	searcher *search.Engine
	broker   *sse.Broker
	logger   *slog.Logger
}

// NewService wires the note service. broker may be nil when events are off.
func NewService(repo *repository.Hybrid, links *backlink.Service, searcher *search.Engine, broker *sse.Broker, logger *slog.Logger) *Service {
	return &Service{repo: repo, links: links, searcher: searcher, broker: broker, logger: logger}
}

// WithBroker returns a copy of the service that publishes note events to b.
func (s *Service) WithBroker(b *sse.Broker) *Service {
	c := *s
	c.broker = b
	return &c
}

func (s *Service) publish(kind, uid string) {
	if s.broker != nil {
		s.broker.PublishNoteEvent(kind, uid)
	}
}

// CreateNote creates a note from raw markdown content and returns its detail.
func (s *Service) CreateNote(ctx context.Context, content string) (*NoteDetail, error) {
	n := models.New()
	n.UpdateContent(content)

	path, err := s.repo.Save(n)
	if err != nil {
		return nil, err
	}
	s.links.IndexNote(n.Meta.UID, n.DisplayTitle(), n.Body)
	s.publish("created", n.Meta.UID)
	return detailOf(n, path), nil
}

// GetNote loads one note by uid.
func (s *Service) GetNote(ctx context.Context, uid string) (*NoteDetail, error) {
	n, err := s.repo.Load(uid)
	if err != nil {
		return nil, err
	}
	path, _ := s.repo.GetPath(uid)
	return detailOf(n, path), nil
}

// UpdateNote replaces a note's content.
func (s *Service) UpdateNote(ctx context.Context, uid, content string) (*NoteDetail, error) {
	n, err := s.repo.Load(uid)
	if err != nil {
		return nil, err
	}
	n.UpdateContent(content)

	path, err := s.repo.Save(n)
	if err != nil {
		return nil, err
	}
	s.links.IndexNote(n.Meta.UID, n.DisplayTitle(), n.Body)
	s.publish("updated", uid)
	return detailOf(n, path), nil
}

// UpdateTags replaces a note's front-matter tags.
func (s *Service) UpdateTags(ctx context.Context, uid string, tags []string) (*NoteDetail, error) {
	n, err := s.repo.Load(uid)
	if err != nil {
		return nil, err
	}
	n.UpdateTags(tags)

	path, err := s.repo.Save(n)
	if err != nil {
		return nil, err
	}
	s.publish("updated", uid)
	return detailOf(n, path), nil
}

// DeleteNote removes a note everywhere.
func (s *Service) DeleteNote(ctx context.Context, uid string) error {
	if err := s.repo.Delete(uid); err != nil {
		return err
	}
	s.links.RemoveNote(uid)
	s.publish("deleted", uid)
	return nil
}

// ListNotes returns one page of notes plus the total count.
func (s *Service) ListNotes(ctx context.Context, offset, limit int) ([]models.ListItem, int, error) {
	return s.repo.ListPaginated(offset, limit)
}

// Gallery returns the denormalized gallery listing.
func (s *Service) Gallery(ctx context.Context, sortByCreated bool, tag string) ([]models.GalleryItem, error) {
	return s.repo.ListGallery(sortByCreated, tag)
}

// ResolveTitle finds the note carrying a title, case-insensitively.
func (s *Service) ResolveTitle(ctx context.Context, title string) (*NoteDetail, error) {
	n, err := s.repo.FindByTitle(strings.TrimSpace(title))
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, apperr.NotFound(title)
	}
	path, _ := s.repo.GetPath(n.Meta.UID)
	return detailOf(n, path), nil
}

// Search scores notes against a query.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]search.Result, error) {
	return s.searcher.Search(query, limit)
}

// SearchText runs the index's full-text query, for token-oriented callers
// like the MCP tools. Interactive search goes through Search instead.
func (s *Service) SearchText(ctx context.Context, query string, limit int) ([]index.FTSResult, error) {
	return s.repo.SearchText(query, limit)
}

// Backlinks returns the notes linking to the given note.
func (s *Service) Backlinks(ctx context.Context, uid string) []backlink.Info {
	return s.links.BacklinksForUID(uid)
}

// Sync reconciles the index with the note files and rebuilds the link graph.
func (s *Service) Sync(ctx context.Context) (repository.SyncResult, error) {
	res, err := s.repo.SyncIndex()
	if err != nil {
		return res, err
	}
	if err := s.links.Rebuild(s.repo, s.logger); err != nil {
		return res, err
	}
	return res, nil
}
