package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/halvard/munin/internal/api"
	"github.com/halvard/munin/internal/backlink"
	"github.com/halvard/munin/internal/index"
	"github.com/halvard/munin/internal/search"
	"github.com/halvard/munin/internal/testutil"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	repo, dir := testutil.TestRepo(t)
	links := backlink.NewService()
	engine := search.NewEngine(repo, dir, search.DefaultLimits())
	svc := api.NewService(repo, links, engine, nil, testutil.Logger())
	return api.NewRouter(svc, false, "", nil)
}

func doJSON(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func createNote(t *testing.T, h http.Handler, content string) api.NoteDetail {
	t.Helper()
	w := doJSON(t, h, http.MethodPost, "/notes", api.CreateNoteRequest{Content: content})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	var note api.NoteDetail
	if err := json.Unmarshal(w.Body.Bytes(), &note); err != nil {
		t.Fatal(err)
	}
	return note
}

func TestNotesCRUD(t *testing.T) {
	h := newTestRouter(t)

	note := createNote(t, h, "# Shopping\n\n- milk")
	if note.UID == "" || note.Title != "Shopping" {
		t.Fatalf("note = %+v", note)
	}

	w := doJSON(t, h, http.MethodGet, "/notes/"+note.UID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}

	w = doJSON(t, h, http.MethodPut, "/notes/"+note.UID, api.UpdateNoteRequest{Content: "# Shopping\n\n- milk\n- eggs"})
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", w.Code, w.Body.String())
	}
	var updated api.NoteDetail
	if err := json.Unmarshal(w.Body.Bytes(), &updated); err != nil {
		t.Fatal(err)
	}
	if updated.Content != "# Shopping\n\n- milk\n- eggs" {
		t.Errorf("content = %q", updated.Content)
	}

	w = doJSON(t, h, http.MethodGet, "/notes", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var list api.NoteListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if list.Total != 1 || len(list.Notes) != 1 {
		t.Errorf("list = %+v", list)
	}

	w = doJSON(t, h, http.MethodDelete, "/notes/"+note.UID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	w = doJSON(t, h, http.MethodGet, "/notes/"+note.UID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d", w.Code)
	}
}

func TestGetNote_Missing(t *testing.T) {
	h := newTestRouter(t)
	w := doJSON(t, h, http.MethodGet, "/notes/doesnotexist", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestCreateNote_BadJSON(t *testing.T) {
	h := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/notes", bytes.NewBufferString("{broken"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestUpdateTags(t *testing.T) {
	h := newTestRouter(t)
	note := createNote(t, h, "# Tagged Note\n\nbody")

	w := doJSON(t, h, http.MethodPut, "/notes/"+note.UID+"/tags", api.UpdateTagsRequest{Tags: []string{"work", "urgent"}})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var updated api.NoteDetail
	if err := json.Unmarshal(w.Body.Bytes(), &updated); err != nil {
		t.Fatal(err)
	}
	if len(updated.Tags) != 2 {
		t.Errorf("tags = %v", updated.Tags)
	}
}

func TestBacklinksEndpoint(t *testing.T) {
	h := newTestRouter(t)
	target := createNote(t, h, "# Target Note\n\nplain")
	createNote(t, h, "# Source Note\n\nsee [[Target Note]] for details")

	w := doJSON(t, h, http.MethodGet, "/notes/"+target.UID+"/backlinks", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Backlinks []backlink.Info `json:"backlinks"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Backlinks) != 1 || resp.Backlinks[0].SourceTitle != "Source Note" {
		t.Errorf("backlinks = %+v", resp.Backlinks)
	}
}

func TestResolveEndpoint(t *testing.T) {
	h := newTestRouter(t)
	note := createNote(t, h, "# Unique Title\n\nbody")

	w := doJSON(t, h, http.MethodGet, "/resolve?title=unique+title", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resolved api.NoteDetail
	if err := json.Unmarshal(w.Body.Bytes(), &resolved); err != nil {
		t.Fatal(err)
	}
	if resolved.UID != note.UID {
		t.Errorf("resolved = %+v", resolved)
	}

	w = doJSON(t, h, http.MethodGet, "/resolve?title=nothing", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	w = doJSON(t, h, http.MethodGet, "/resolve", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	h := newTestRouter(t)
	createNote(t, h, "# Kubernetes Cheatsheet\n\nkubectl commands")

	w := doJSON(t, h, http.MethodGet, "/search?q=kubernetes", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Results []search.Result `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 {
		t.Errorf("results = %+v", resp.Results)
	}

	w = doJSON(t, h, http.MethodGet, "/search", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSearchTextEndpoint(t *testing.T) {
	h := newTestRouter(t)
	createNote(t, h, "# Meeting Notes\n\ndiscussed the roadmap")

	w := doJSON(t, h, http.MethodGet, "/search/text?q=roadmap", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Results []index.FTSResult `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Title != "Meeting Notes" {
		t.Errorf("results = %+v", resp.Results)
	}

	w = doJSON(t, h, http.MethodGet, "/search/text", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGalleryEndpoint(t *testing.T) {
	h := newTestRouter(t)
	createNote(t, h, "# Visible\n\nbody #keep")
	createNote(t, h, "# Hidden\n\nbody")

	w := doJSON(t, h, http.MethodGet, "/gallery?tag=keep", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Notes []json.RawMessage `json:"notes"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Notes) != 1 {
		t.Errorf("gallery = %d items, want 1", len(resp.Notes))
	}
}

func TestSyncEndpoint(t *testing.T) {
	h := newTestRouter(t)
	w := doJSON(t, h, http.MethodPost, "/sync", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp api.SyncResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
}

func TestAuthMiddleware(t *testing.T) {
	repo, dir := testutil.TestRepo(t)
	links := backlink.NewService()
	engine := search.NewEngine(repo, dir, search.DefaultLimits())
	svc := api.NewService(repo, links, engine, nil, testutil.Logger())
	h := api.NewRouter(svc, true, "secret", nil)

	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token status = %d, want 200", w.Code)
	}
}
