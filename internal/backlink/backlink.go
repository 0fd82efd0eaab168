// Package backlink maintains the in-memory link graph between notes and
// serves reverse lookups with surrounding context.
package backlink

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/halvard/munin/internal/parser"
	"github.com/halvard/munin/internal/repository"
)

// ContextChars is how many characters of surrounding text a backlink carries
// on each side of the link.
const ContextChars = 40

// Info is one incoming link: who links here and the text around the link.
type Info struct {
	SourceUID   string `json:"source_uid"`
	SourceTitle string `json:"source_title"`
	Context     string `json:"context"`
}

// Service holds the link graph. All methods are safe for concurrent use.
type Service struct {
	mu sync.RWMutex

	// links maps a normalized target title to the uids linking to it,
	// with the byte position of each source's first link occurrence.
	links    map[string]map[string]int
	titles   map[string]string // uid -> display title
	contents map[string]string // uid -> body, for context extraction
}

// NewService creates an empty link graph.
func NewService() *Service {
	return &Service{
		links:    make(map[string]map[string]int),
		titles:   make(map[string]string),
		contents: make(map[string]string),
	}
}

// IndexNote replaces the outgoing links of one note in the graph.
func (s *Service) IndexNote(uid, title, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(uid)
	s.titles[uid] = title
	s.contents[uid] = body

	for _, link := range parser.ExtractWikiLinks(body) {
		target := strings.ToLower(link.Title)
		sources, ok := s.links[target]
		if !ok {
			sources = make(map[string]int)
			s.links[target] = sources
		}
		// Keep the first occurrence per source for context.
		if _, seen := sources[uid]; !seen {
			sources[uid] = link.Position
		}
	}
}

// RemoveNote drops a note and its outgoing links from the graph. Incoming
// links from other notes survive; they dangle until their sources change.
func (s *Service) RemoveNote(uid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(uid)
	delete(s.titles, uid)
	delete(s.contents, uid)
}

func (s *Service) removeLocked(uid string) {
	for target, sources := range s.links {
		delete(sources, uid)
		if len(sources) == 0 {
			delete(s.links, target)
		}
	}
}

// Backlinks returns every note linking to the given title, ordered by source
// uid, each with a bounded context snippet.
func (s *Service) Backlinks(title string) []Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sources := s.links[strings.ToLower(title)]
	if len(sources) == 0 {
		return nil
	}

	out := make([]Info, 0, len(sources))
	for uid, pos := range sources {
		out = append(out, Info{
			SourceUID:   uid,
			SourceTitle: s.titles[uid],
			Context:     parser.ExtractContext(s.contents[uid], pos, ContextChars),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceUID < out[j].SourceUID })
	return out
}

// BacklinksForUID resolves a uid to its title and returns its backlinks. A
// uid without a known title has none.
func (s *Service) BacklinksForUID(uid string) []Info {
	s.mu.RLock()
	title := s.titles[uid]
	s.mu.RUnlock()
	if title == "" {
		return nil
	}

	links := s.Backlinks(title)
	// A note is never its own backlink.
	out := links[:0]
	for _, l := range links {
		if l.SourceUID != uid {
			out = append(out, l)
		}
	}
	return out
}

// Rebuild repopulates the whole graph from the repository.
func (s *Service) Rebuild(repo repository.NoteRepository, logger *slog.Logger) error {
	items, err := repo.ListAll()
	if err != nil {
		return err
	}

	fresh := NewService()
	for _, item := range items {
		n, err := repo.Load(item.UID)
		if err != nil {
			logger.Warn("backlink rebuild: skipping note",
				slog.String("uid", item.UID), slog.Any("error", err))
			continue
		}
		fresh.IndexNote(n.Meta.UID, n.DisplayTitle(), n.Body)
	}

	s.mu.Lock()
	s.links = fresh.links
	s.titles = fresh.titles
	s.contents = fresh.contents
	s.mu.Unlock()
	return nil
}
