// Package mailapi exposes triage state and manual submission over HTTP.
package mailapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/linnemanlabs/mailwatch/internal/ledger"
	"github.com/linnemanlabs/mailwatch/internal/message"
	"github.com/linnemanlabs/mailwatch/internal/notify"
	"github.com/linnemanlabs/mailwatch/internal/triage"
)

// API holds dependencies for HTTP handlers.
type API struct {
	logger   log.Logger
	pipeline *triage.Pipeline
	router   *notify.Router
	ring     *triage.Ring
	ledger   *ledger.Ledger
}

// New creates a new API handler.
func New(logger log.Logger, pipeline *triage.Pipeline, router *notify.Router, ring *triage.Ring, led *ledger.Ledger) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if pipeline == nil || ring == nil || led == nil {
		panic(xerrors.New("pipeline, ring, and ledger are required"))
	}
	return &API{
		logger:   logger,
		pipeline: pipeline,
		router:   router,
		ring:     ring,
		ledger:   led,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/triage/recent", a.handleRecent)
		r.Get("/triage/{id}", a.handleGetTriage)
		r.Get("/ledger", a.handleLedger)
		r.Post("/messages", a.handleSubmitMessage)
	})
}

func (a *API) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			http.Error(w, `{"error":"limit must be an integer between 1 and 500"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}

	results := a.ring.Recent(limit)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"results": results,
		"count":   len(results),
	})
}

func (a *API) handleGetTriage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("mailwatch.triage.id", id))

	result, ok := a.ring.Get(id)
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	span.SetAttributes(attribute.String("mailwatch.triage.tier", string(result.Tier)))

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

func (a *API) handleLedger(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"size":       a.ledger.Len(),
		"checkpoint": a.ledger.Checkpoint(),
	})
}

// submitRequest is a manually injected message, for testing rules or wiring
// other mail sources in.
type submitRequest struct {
	ID      string    `json:"id"`
	From    string    `json:"from"`
	To      []string  `json:"to"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	Date    time.Time `json:"date"`
}

func (a *API) handleSubmitMessage(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	if req.From == "" || req.Subject == "" {
		http.Error(w, `{"error":"from and subject are required"}`, http.StatusBadRequest)
		return
	}

	if req.Date.IsZero() {
		req.Date = time.Now()
	}
	m := &message.Message{
		ID:      req.ID,
		From:    req.From,
		To:      req.To,
		Subject: req.Subject,
		Body:    message.CleanBody(req.Body),
		Date:    req.Date,
	}

	if m.ID != "" && a.ledger.Has(m.ID) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "already processed", "id": m.ID})
		return
	}

	result := a.pipeline.Process(r.Context(), m)
	if a.router != nil {
		a.router.Dispatch(r.Context(), m, result)
	}
	if m.ID != "" {
		a.ledger.Add(m.ID)
	}
	a.ring.Add(result)

	a.logger.Info(r.Context(), "manual message triaged",
		"message_id", m.ID, "score", result.Score, "tier", result.Tier)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(result)
}
