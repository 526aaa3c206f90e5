package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/generator"
	"github.com/conorfennell/recall/internal/importer"
	"github.com/conorfennell/recall/internal/library"
	"github.com/conorfennell/recall/internal/progress"
	"github.com/conorfennell/recall/internal/sm2"
)

const (
	maxBodyBytes    = 1 << 20
	defaultDueLimit = 20
	maxDueLimit     = 500
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	lib      *library.Library
	progress *progress.Service
	importer *importer.Importer
	log      *slog.Logger
	router   *http.ServeMux
}

// NewServer creates and configures a new server.
func NewServer(lib *library.Library, svc *progress.Service, im *importer.Importer, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		lib:      lib,
		progress: svc,
		importer: im,
		log:      log,
		router:   http.NewServeMux(),
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.HandleFunc("GET /api/decks", s.handleListDecks())
	s.router.HandleFunc("POST /api/decks", s.handleCreateDeck())
	s.router.HandleFunc("POST /api/decks/generate", s.handleGenerateDeck())
	s.router.HandleFunc("GET /api/decks/{id}", s.handleGetDeck())
	s.router.HandleFunc("DELETE /api/decks/{id}", s.handleDeleteDeck())
	s.router.HandleFunc("POST /api/decks/{id}/cards", s.handleAddCard())

	s.router.HandleFunc("GET /api/due", s.handleDue())
	s.router.HandleFunc("PATCH /api/cards/{id}", s.handleEditCard())
	s.router.HandleFunc("DELETE /api/cards/{id}", s.handleDeleteCard())
	s.router.HandleFunc("POST /api/cards/{id}/reviews", s.handlePostReview())
	s.router.HandleFunc("GET /api/cards/{id}/intervals", s.handleIntervals())
	s.router.HandleFunc("GET /api/cards/{id}/explanations/{kind}", s.handleExplanation())

	s.router.HandleFunc("GET /api/dashboard", s.handleDashboard())
	s.router.HandleFunc("POST /api/sync", s.handlePostSync())
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info("HTTP server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleListDecks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		decks, err := s.lib.Decks(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toDeckDTOs(decks))
	}
}

func (s *Server) handleCreateDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Title      string `json:"title"`
			Complexity string `json:"complexity"`
			Source     string `json:"source"`
		}
		if !s.decode(w, r, &req) {
			return
		}
		deck, err := s.lib.CreateDeck(r.Context(), library.NewDeck{
			Title:      req.Title,
			Complexity: domain.Complexity(req.Complexity),
			Source:     req.Source,
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toDeckDTO(deck))
	}
}

func (s *Server) handleGenerateDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Topic      string `json:"topic"`
			Count      int    `json:"count"`
			Complexity string `json:"complexity"`
		}
		if !s.decode(w, r, &req) {
			return
		}
		deck, cards, err := s.lib.GenerateDeck(r.Context(), req.Topic, req.Count, domain.Complexity(req.Complexity))
		if err != nil && deck.ID == "" {
			s.writeError(w, r, err)
			return
		}
		if err != nil {
			s.log.Warn("Deck generated with errors", "deck_id", deck.ID, "error", err)
		}
		writeJSON(w, http.StatusCreated, deckDetailDTO{deckDTO: toDeckDTO(deck), Cards: toCardDTOs(cards)})
	}
}

func (s *Server) handleGetDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deck, cards, err := s.lib.Deck(r.Context(), r.PathValue("id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		mastery, err := s.progress.DeckMastery(r.Context(), deck.ID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, deckDetailDTO{deckDTO: toDeckDTO(deck), Mastery: mastery, Cards: toCardDTOs(cards)})
	}
}

func (s *Server) handleDeleteDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.lib.DeleteDeck(r.Context(), r.PathValue("id")); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type cardRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func (s *Server) handleAddCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cardRequest
		if !s.decode(w, r, &req) {
			return
		}
		card, err := s.lib.AddCard(r.Context(), r.PathValue("id"), req.Question, req.Answer)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toCardDTO(card))
	}
}

func (s *Server) handleEditCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cardRequest
		if !s.decode(w, r, &req) {
			return
		}
		card, err := s.lib.EditCard(r.Context(), r.PathValue("id"), req.Question, req.Answer)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toCardDTO(card))
	}
}

func (s *Server) handleDeleteCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.lib.DeleteCard(r.Context(), r.PathValue("id")); err != nil {
			s.writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleDue lists the cards due now, most overdue first.
func (s *Server) handleDue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultDueLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > maxDueLimit {
				s.writeError(w, r, fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrInvalidInput, maxDueLimit))
				return
			}
			limit = n
		}
		cards, err := s.progress.DueCardList(r.Context(), r.URL.Query().Get("deck"), limit)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toCardDTOs(cards))
	}
}

// handlePostReview records a rating given as a name ("good") or a number (3).
func (s *Server) handlePostReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Rating json.RawMessage `json:"rating"`
		}
		if !s.decode(w, r, &req) {
			return
		}
		rating, err := parseRating(req.Rating)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		state, err := s.progress.RecordReview(r.Context(), r.PathValue("id"), rating)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toSchedulingDTO(state))
	}
}

// parseRating decodes a JSON string or integer rating.
func parseRating(raw json.RawMessage) (sm2.Rating, error) {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return sm2.ParseRating(name)
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return sm2.ParseRating(strconv.Itoa(n))
	}
	return 0, fmt.Errorf("%w: %s", sm2.ErrInvalidRating, raw)
}

func (s *Server) handleIntervals() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		intervals, err := s.progress.NextIntervals(r.Context(), r.PathValue("id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toIntervalsDTO(intervals))
	}
}

func (s *Server) handleExplanation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, err := domain.ParseExplanationKind(r.PathValue("kind"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		text, err := s.lib.Explanation(r.Context(), r.PathValue("id"), kind)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"kind": string(kind), "text": text})
	}
}

func (s *Server) handleDashboard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := s.progress.Dashboard(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toDashboardDTO(d))
	}
}

// handlePostSync triggers a sync of every sourced deck. It runs in the
// foreground so the caller sees the outcome.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results, err := s.importer.SyncAll(r.Context())
		resp := syncDTO{Decks: toSyncResultDTOs(results)}
		if err != nil {
			s.log.Warn("Sync finished with errors", "error", err)
			resp.Error = err.Error()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// decode reads a JSON body into v, answering 400 itself on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: malformed request body: %v", domain.ErrInvalidInput, err))
		return false
	}
	return true
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, sm2.ErrInvalidRating):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrCardNotFound), errors.Is(err, domain.ErrDeckNotFound):
		return http.StatusNotFound
	case errors.Is(err, generator.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
