package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/generator"
	"github.com/conorfennell/recall/internal/importer"
	"github.com/conorfennell/recall/internal/library"
	"github.com/conorfennell/recall/internal/progress"
	"github.com/conorfennell/recall/internal/storage"
)

var testNow = time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)

type stubGenerator struct{}

func (stubGenerator) GenerateCards(ctx context.Context, req generator.Request) ([]generator.Draft, error) {
	return []generator.Draft{{Question: "What is " + req.Topic + "?", Answer: "A topic."}}, nil
}

func (stubGenerator) Explain(ctx context.Context, question, answer string, kind domain.ExplanationKind) (string, error) {
	return "simple " + string(kind), nil
}

func newTestServer(t *testing.T, gen generator.Generator) *httptest.Server {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	clock := func() time.Time { return testNow }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := []library.Option{library.WithClock(clock), library.WithLogger(logger)}
	if gen != nil {
		opts = append(opts, library.WithGenerator(gen))
	}
	lib := library.New(db, opts...)
	svc := progress.NewService(db, progress.Options{Now: clock, Location: time.UTC, Logger: logger})
	im := importer.New(db, filepath.Join(t.TempDir(), "repos"), importer.WithClock(clock), importer.WithLogger(logger))

	srv := httptest.NewServer(NewServer(lib, svc, im, logger))
	t.Cleanup(srv.Close)
	return srv
}

// do sends a JSON request and decodes a JSON response into out when given.
func do(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("Failed to decode %s %s response: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func TestReviewFlow(t *testing.T) {
	srv := newTestServer(t, nil)

	var deck deckDTO
	if code := do(t, "POST", srv.URL+"/api/decks", map[string]string{"title": "Go", "complexity": "Beginner"}, &deck); code != http.StatusCreated {
		t.Fatalf("Create deck returned %d", code)
	}

	var card cardDTO
	if code := do(t, "POST", srv.URL+"/api/decks/"+deck.ID+"/cards", cardRequest{Question: "What is a map?", Answer: "A hash table."}, &card); code != http.StatusCreated {
		t.Fatalf("Add card returned %d", code)
	}
	if card.Scheduling.Ease != 2.5 || card.Scheduling.IntervalDays != 0 || card.Scheduling.LastReviewedAt != nil {
		t.Errorf("Unexpected initial scheduling: %+v", card.Scheduling)
	}

	var due []cardDTO
	if code := do(t, "GET", srv.URL+"/api/due?deck="+deck.ID, nil, &due); code != http.StatusOK || len(due) != 1 {
		t.Fatalf("Due returned %d with %d cards", code, len(due))
	}

	var intervals map[string]int
	do(t, "GET", srv.URL+"/api/cards/"+card.ID+"/intervals", nil, &intervals)
	if len(intervals) != 4 || intervals["good"] != 1 {
		t.Errorf("Unexpected intervals: %v", intervals)
	}

	var state schedulingDTO
	if code := do(t, "POST", srv.URL+"/api/cards/"+card.ID+"/reviews", map[string]any{"rating": "good"}, &state); code != http.StatusOK {
		t.Fatalf("Review returned %d", code)
	}
	if state.Repetitions != 1 || state.IntervalDays != 1 || !state.DueAt.Equal(testNow.AddDate(0, 0, 1)) {
		t.Errorf("Unexpected state after review: %+v", state)
	}
	if code := do(t, "POST", srv.URL+"/api/cards/"+card.ID+"/reviews", map[string]any{"rating": 1}, &state); code != http.StatusOK {
		t.Fatalf("Numeric review returned %d", code)
	}
	if state.Lapses != 1 || state.Repetitions != 0 {
		t.Errorf("Expected a lapse after Again, got %+v", state)
	}
	if code := do(t, "POST", srv.URL+"/api/cards/"+card.ID+"/reviews", map[string]any{"rating": json.RawMessage(`"\u0047ood"`)}, &state); code != http.StatusOK {
		t.Fatalf("Review with an escaped rating name returned %d", code)
	}
	if state.Repetitions != 1 {
		t.Errorf("Expected the escaped name to decode as Good, got %+v", state)
	}

	var dash dashboardDTO
	do(t, "GET", srv.URL+"/api/dashboard", nil, &dash)
	if dash.TotalCards != 1 || dash.ReviewsToday != 3 || dash.Streak != 1 || len(dash.Decks) != 1 {
		t.Errorf("Unexpected dashboard: %+v", dash)
	}

	var detail deckDetailDTO
	do(t, "GET", srv.URL+"/api/decks/"+deck.ID, nil, &detail)
	if detail.ID != deck.ID || len(detail.Cards) != 1 || detail.Mastery != 0 {
		t.Errorf("Unexpected deck detail: %+v", detail)
	}

	var edited cardDTO
	if code := do(t, "PATCH", srv.URL+"/api/cards/"+card.ID, cardRequest{Question: "What is a Go map?", Answer: "A hash table."}, &edited); code != http.StatusOK {
		t.Fatalf("Edit returned %d", code)
	}
	if edited.Question != "What is a Go map?" || edited.Scheduling.Lapses != 1 {
		t.Errorf("Edit should keep scheduling: %+v", edited)
	}

	if code := do(t, "DELETE", srv.URL+"/api/decks/"+deck.ID, nil, nil); code != http.StatusNoContent {
		t.Errorf("Delete deck returned %d", code)
	}
	if code := do(t, "GET", srv.URL+"/api/cards/"+card.ID+"/intervals", nil, nil); code != http.StatusNotFound {
		t.Errorf("Expected 404 for a card of a deleted deck, got %d", code)
	}
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t, nil)
	var deck deckDTO
	do(t, "POST", srv.URL+"/api/decks", map[string]string{"title": "Go", "complexity": "Beginner"}, &deck)
	var card cardDTO
	do(t, "POST", srv.URL+"/api/decks/"+deck.ID+"/cards", cardRequest{Question: "q", Answer: "a"}, &card)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"invalid rating name", "POST", "/api/cards/" + card.ID + "/reviews", map[string]any{"rating": "perfect"}, http.StatusBadRequest},
		{"rating out of range", "POST", "/api/cards/" + card.ID + "/reviews", map[string]any{"rating": 5}, http.StatusBadRequest},
		{"missing rating", "POST", "/api/cards/" + card.ID + "/reviews", map[string]any{}, http.StatusBadRequest},
		{"quoted rating name", "POST", "/api/cards/" + card.ID + "/reviews", map[string]any{"rating": `"good"`}, http.StatusBadRequest},
		{"fractional rating", "POST", "/api/cards/" + card.ID + "/reviews", map[string]any{"rating": 2.5}, http.StatusBadRequest},
		{"rating object", "POST", "/api/cards/" + card.ID + "/reviews", map[string]any{"rating": map[string]int{"value": 3}}, http.StatusBadRequest},
		{"unknown card", "POST", "/api/cards/nope/reviews", map[string]any{"rating": "good"}, http.StatusNotFound},
		{"unknown deck", "GET", "/api/decks/nope", nil, http.StatusNotFound},
		{"add card to unknown deck", "POST", "/api/decks/nope/cards", cardRequest{Question: "q", Answer: "a"}, http.StatusNotFound},
		{"bad complexity", "POST", "/api/decks", map[string]string{"title": "x", "complexity": "Expert"}, http.StatusBadRequest},
		{"unknown field", "POST", "/api/decks", map[string]string{"name": "x"}, http.StatusBadRequest},
		{"bad due limit", "GET", "/api/due?limit=0", nil, http.StatusBadRequest},
		{"unknown explanation kind", "GET", "/api/cards/" + card.ID + "/explanations/eli99", nil, http.StatusBadRequest},
		{"generator unavailable", "GET", "/api/cards/" + card.ID + "/explanations/eli5", nil, http.StatusServiceUnavailable},
		{"generate unavailable", "POST", "/api/decks/generate", map[string]any{"topic": "x", "count": 1, "complexity": "Beginner"}, http.StatusServiceUnavailable},
		{"wrong method", "PUT", "/api/decks", nil, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := do(t, tt.method, srv.URL+tt.path, tt.body, nil); got != tt.want {
				t.Errorf("%s %s returned %d, want %d", tt.method, tt.path, got, tt.want)
			}
		})
	}
}

func TestGenerateAndExplain(t *testing.T) {
	srv := newTestServer(t, stubGenerator{})

	var detail deckDetailDTO
	body := map[string]any{"topic": "TLS", "count": 1, "complexity": "advanced"}
	if code := do(t, "POST", srv.URL+"/api/decks/generate", body, &detail); code != http.StatusCreated {
		t.Fatalf("Generate returned %d", code)
	}
	if detail.Title != "TLS" || detail.Complexity != "Advanced" || len(detail.Cards) != 1 {
		t.Fatalf("Unexpected generated deck: %+v", detail)
	}

	var expl map[string]string
	if code := do(t, "GET", srv.URL+"/api/cards/"+detail.Cards[0].ID+"/explanations/mnemonic", nil, &expl); code != http.StatusOK {
		t.Fatalf("Explanation returned %d", code)
	}
	if expl["text"] != "simple mnemonic" {
		t.Errorf("Unexpected explanation: %v", expl)
	}
}

func TestSync(t *testing.T) {
	srv := newTestServer(t, nil)
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "deck.md"), []byte("Q: one\nA: 1\n---\nQ: two\nA: 2\n"), 0o644); err != nil {
		t.Fatalf("Failed to write deck file: %v", err)
	}
	var deck deckDTO
	do(t, "POST", srv.URL+"/api/decks", map[string]string{"title": "Synced", "complexity": "Beginner", "source": src}, &deck)

	var res syncDTO
	if code := do(t, "POST", srv.URL+"/api/sync", nil, &res); code != http.StatusOK {
		t.Fatalf("Sync returned %d", code)
	}
	if len(res.Decks) != 1 || res.Decks[0].DeckID != deck.ID || res.Decks[0].Added != 2 || res.Error != "" {
		t.Errorf("Unexpected sync response: %+v", res)
	}
}
