// Package search scores notes against a query by fuzzy-matching titles and a
// bounded prefix of each body, fanning the work out across a worker pool.
package search

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/sahilm/fuzzy"
	"golang.org/x/sync/errgroup"

	"github.com/halvard/munin/internal/models"
)

// Limits bounds the work one search is allowed to do.
type Limits struct {
	// MaxContentBytes caps how much of each body is scanned.
	MaxContentBytes int
	// PreviewContext is the characters shown around a body match.
	PreviewContext int
	DefaultLimit   int
	MaxLimit       int
}

// DefaultLimits returns the standard search bounds.
func DefaultLimits() Limits {
	return Limits{
		MaxContentBytes: 4096,
		PreviewContext:  30,
		DefaultLimit:    50,
		MaxLimit:        100,
	}
}

// frontMatterAllowance is extra read budget so the metadata block does not
// eat into the body scan window.
const frontMatterAllowance = 4096

// MatchRange is a half-open range of matched characters in a title.
type MatchRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Preview is a bounded snippet of a matched body. MatchStart is the character
// offset of the match within Text, -1 when the match is non-contiguous.
type Preview struct {
	Text       string `json:"text"`
	MatchStart int    `json:"match_start"`
	MatchLen   int    `json:"match_len"`
}

// Result is one scored search hit.
type Result struct {
	UID          string       `json:"uid"`
	Title        string       `json:"title"`
	Score        int          `json:"score"`
	TitleMatches []MatchRange `json:"title_matches,omitempty"`
	Preview      Preview      `json:"preview"`
}

// Lister supplies the candidate set for a search.
type Lister interface {
	ListAll() ([]models.ListItem, error)
}

// Engine runs searches over the notes of one repository.
type Engine struct {
	repo   Lister
	root   string // absolute notes directory, for bounded body reads
	limits Limits
}

// NewEngine creates a search engine reading note bodies under root.
func NewEngine(repo Lister, root string, limits Limits) *Engine {
	return &Engine{repo: repo, root: root, limits: limits}
}

// Search scores every note against query and returns the best hits, highest
// score first. Title matches weigh double. An empty query matches nothing.
func (e *Engine) Search(query string, limit int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Result{}, nil
	}
	if limit <= 0 {
		limit = e.limits.DefaultLimit
	}
	if limit > e.limits.MaxLimit {
		limit = e.limits.MaxLimit
	}

	items, err := e.repo.ListAll()
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		results []Result
	)
	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, item := range items {
		g.Go(func() error {
			if res, ok := e.matchNote(item, query); ok {
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].UID > results[j].UID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (e *Engine) matchNote(item models.ListItem, query string) (Result, bool) {
	titleScore, titleHit := fuzzyScore(query, item.Title)
	body := e.readBodyPrefix(item.Path)
	bodyScore, bodyHit := fuzzyScore(query, body)

	if !titleHit && !bodyHit {
		return Result{}, false
	}

	score := titleScore*2 + bodyScore
	if score < 1 {
		score = 1
	}

	res := Result{
		UID:     item.UID,
		Title:   item.Title,
		Score:   score,
		Preview: e.makePreview(body, query),
	}
	if titleHit {
		res.TitleMatches = titleRanges(query, item.Title)
	}
	return res, true
}

// readBodyPrefix returns the first MaxContentBytes characters of the note
// body, skipping front matter and never splitting a multi-byte rune. An
// unreadable file scores as an empty body.
func (e *Engine) readBodyPrefix(rel string) string {
	f, err := os.Open(filepath.Join(e.root, rel))
	if err != nil {
		return ""
	}
	defer f.Close()

	budget := int64(e.limits.MaxContentBytes + frontMatterAllowance)
	data, err := io.ReadAll(io.LimitReader(f, budget))
	if err != nil {
		return ""
	}

	body := skipFrontMatter(data)
	if len(body) > e.limits.MaxContentBytes {
		body = body[:e.limits.MaxContentBytes]
	}
	return string(validPrefix(body))
}

func skipFrontMatter(data []byte) []byte {
	if !bytes.HasPrefix(data, []byte("---\n")) {
		return data
	}
	idx := bytes.Index(data[4:], []byte("\n---"))
	if idx < 0 {
		return data
	}
	rest := data[4+idx+4:]
	return bytes.TrimLeft(rest, "\n")
}

// validPrefix trims at most three trailing bytes of a truncated rune.
func validPrefix(b []byte) []byte {
	for i := 0; i < utf8.UTFMax-1; i++ {
		if len(b) == 0 {
			return b
		}
		r, size := utf8.DecodeLastRune(b)
		if r != utf8.RuneError || size > 1 {
			return b
		}
		b = b[:len(b)-1]
	}
	return b
}

func fuzzyScore(query, s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	matches := fuzzy.Find(query, []string{s})
	if len(matches) == 0 {
		return 0, false
	}
	return matches[0].Score, true
}

// titleRanges locates the query in a title for highlighting: contiguous
// case-insensitive occurrences when present, otherwise the merged fuzzy
// match positions.
func titleRanges(query, title string) []MatchRange {
	lq := strings.ToLower(query)
	lt := strings.ToLower(title)
	qlen := utf8.RuneCountInString(lq)

	var out []MatchRange
	for idx := 0; ; {
		j := strings.Index(lt[idx:], lq)
		if j < 0 {
			break
		}
		start := utf8.RuneCountInString(lt[:idx+j])
		out = append(out, MatchRange{Start: start, End: start + qlen})
		idx += j + len(lq)
	}
	if out != nil {
		return out
	}

	matches := fuzzy.Find(query, []string{title})
	if len(matches) == 0 {
		return nil
	}
	return mergeIndexes(title, matches[0].MatchedIndexes)
}

// mergeIndexes converts matched byte offsets to character ranges, merging
// adjacent positions.
func mergeIndexes(s string, byteIdx []int) []MatchRange {
	var out []MatchRange
	prev := -2
	for _, b := range byteIdx {
		pos := utf8.RuneCountInString(s[:b])
		if pos == prev+1 {
			out[len(out)-1].End = pos + 1
		} else {
			out = append(out, MatchRange{Start: pos, End: pos + 1})
		}
		prev = pos
	}
	return out
}

// makePreview builds the snippet around the first contiguous body match,
// PreviewContext characters on each side. Without a contiguous match the
// head of the body stands in.
func (e *Engine) makePreview(body, query string) Preview {
	if body == "" {
		return Preview{Text: "", MatchStart: -1}
	}
	chars := []rune(body)
	ctx := e.limits.PreviewContext

	b := strings.Index(strings.ToLower(body), strings.ToLower(query))
	if b < 0 {
		end := ctx * 2
		if end > len(chars) {
			end = len(chars)
		}
		text := string(chars[:end])
		if end < len(chars) {
			text += "..."
		}
		return Preview{Text: text, MatchStart: -1}
	}

	matchPos := utf8.RuneCountInString(body[:b])
	matchLen := utf8.RuneCountInString(query)

	start := matchPos - ctx
	if start < 0 {
		start = 0
	}
	end := matchPos + matchLen + ctx
	if end > len(chars) {
		end = len(chars)
	}

	text := string(chars[start:end])
	matchStart := matchPos - start
	if start > 0 {
		text = "..." + text
		matchStart += 3
	}
	if end < len(chars) {
		text += "..."
	}
	return Preview{Text: text, MatchStart: matchStart, MatchLen: matchLen}
}
