package wehttp

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/weegigs/wee-ledger-go/projections"
	"github.com/weegigs/wee-ledger-go/stores/boltdb"
	"github.com/weegigs/wee-ledger-go/we"
)

const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

type ReadModels interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Scan(ctx context.Context, prefix string, limit int) ([]projections.Entry, error)
	Checkpoint(ctx context.Context, name string, version uint32) (*projections.Position, error)
}

type Projections interface {
	Lags(ctx context.Context) ([]projections.Lag, error)
}

type Storage interface {
	Metrics(ctx context.Context) (boltdb.StorageMetrics, error)
}

// Ledger is the set of components the read API serves. Nil components answer 404.
type Ledger struct {
	Events      we.EventStore
	ReadModels  ReadModels
	Projections Projections
	Storage     Storage
}

type LedgerOption func(*ledgerHandler)

func WithLedgerLogger(log *zerolog.Logger) LedgerOption {
	return func(h *ledgerHandler) {
		h.log = log
	}
}

type ledgerHandler struct {
	ledger Ledger
	log    *zerolog.Logger
}

// NewLedgerHandler serves read-only views of the log, read models, projection progress
// and storage health.
func NewLedgerHandler(ledger Ledger, options ...LedgerOption) http.Handler {
	h := &ledgerHandler{ledger: ledger}
	for _, option := range options {
		option(h)
	}
	if h.log == nil {
		h.log = &log.Logger
	}

	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/events", h.events)
	r.Get("/events/latest", h.latest)
	r.Get("/aggregates/{id}/events", h.aggregateEvents)
	r.Get("/read-models", h.scanReadModels)
	r.Get("/read-models/{key}", h.readModel)
	r.Get("/projections", h.projections)
	r.Get("/projections/{name}/{version}", h.checkpoint)
	r.Get("/storage", h.storage)

	return r
}

// EventResource is the wire form of a recorded event. JSON payloads are embedded as is.
type EventResource struct {
	Sequence    we.Sequence              `json:"sequence"`
	AggregateId we.AggregateId           `json:"aggregate"`
	Version     we.Version               `json:"version"`
	EventID     we.EventID               `json:"id"`
	EventType   we.EventType             `json:"type"`
	Timestamp   we.Timestamp             `json:"timestamp"`
	Metadata    we.RecordedEventMetadata `json:"metadata"`
	Encoding    string                   `json:"encoding"`
	Payload     json.RawMessage          `json:"payload"`
}

func NewEventResource(event we.RecordedEvent) EventResource {
	resource := EventResource{
		Sequence:    event.Sequence,
		AggregateId: event.AggregateId,
		Version:     event.Version,
		EventID:     event.EventID,
		EventType:   event.EventType,
		Timestamp:   event.Timestamp,
		Metadata:    event.Metadata,
		Encoding:    event.Data.Encoding,
	}

	if event.Data.Encoding == we.JSONEncoding && json.Valid(event.Data.Data) {
		resource.Payload = event.Data.Data
	} else {
		encoded, _ := json.Marshal(event.Data.Data)
		resource.Payload = encoded
	}

	return resource
}

func (h *ledgerHandler) events(w http.ResponseWriter, r *http.Request) {
	if h.ledger.Events == nil {
		http.NotFound(w, r)
		return
	}

	from, err := querySequence(r, "from", 1)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	resources := make([]EventResource, 0, min(limit, DefaultPageSize))
	stream := h.ledger.Events.Stream(from)
	for len(resources) < limit && stream.Next(r.Context()) {
		resources = append(resources, NewEventResource(stream.Event()))
	}
	if err := stream.Err(); err != nil {
		h.failed(w, r, err, "failed to stream events")
		return
	}

	render.JSON(w, r, resources)
}

func (h *ledgerHandler) latest(w http.ResponseWriter, r *http.Request) {
	if h.ledger.Events == nil {
		http.NotFound(w, r)
		return
	}

	sequence, err := h.ledger.Events.LatestSequence(r.Context())
	if err != nil {
		h.failed(w, r, err, "failed to read latest sequence")
		return
	}

	render.JSON(w, r, map[string]we.Sequence{"sequence": sequence})
}

func (h *ledgerHandler) aggregateEvents(w http.ResponseWriter, r *http.Request) {
	if h.ledger.Events == nil {
		http.NotFound(w, r)
		return
	}

	id := we.AggregateId(chi.URLParam(r, "id"))

	events, err := h.ledger.Events.Events(r.Context(), id)
	if err != nil {
		h.failed(w, r, err, "failed to read aggregate events")
		return
	}

	resources := make([]EventResource, 0, len(events))
	for _, event := range events {
		resources = append(resources, NewEventResource(event))
	}

	render.JSON(w, r, resources)
}

func (h *ledgerHandler) readModel(w http.ResponseWriter, r *http.Request) {
	if h.ledger.ReadModels == nil {
		http.NotFound(w, r)
		return
	}

	key := chi.URLParam(r, "key")
	value, err := h.ledger.ReadModels.Get(r.Context(), key)
	if err != nil {
		h.failed(w, r, err, "failed to read read model")
		return
	}

	if value == nil {
		http.NotFound(w, r)
		return
	}

	contentType := "application/json"
	if !json.Valid(value) {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(value)
}

type entryResource struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

func (h *ledgerHandler) scanReadModels(w http.ResponseWriter, r *http.Request) {
	if h.ledger.ReadModels == nil {
		http.NotFound(w, r)
		return
	}

	limit, err := queryLimit(r)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	entries, err := h.ledger.ReadModels.Scan(r.Context(), r.URL.Query().Get("prefix"), limit)
	if err != nil {
		h.failed(w, r, err, "failed to scan read models")
		return
	}

	resources := make([]entryResource, 0, len(entries))
	for _, entry := range entries {
		value := json.RawMessage(entry.Value)
		if !json.Valid(entry.Value) {
			value, _ = json.Marshal(entry.Value)
		}
		resources = append(resources, entryResource{Key: entry.Key, Value: value})
	}

	render.JSON(w, r, resources)
}

func (h *ledgerHandler) projections(w http.ResponseWriter, r *http.Request) {
	if h.ledger.Projections == nil {
		http.NotFound(w, r)
		return
	}

	lags, err := h.ledger.Projections.Lags(r.Context())
	if err != nil {
		h.failed(w, r, err, "failed to read projection lag")
		return
	}

	render.JSON(w, r, lags)
}

func (h *ledgerHandler) checkpoint(w http.ResponseWriter, r *http.Request) {
	if h.ledger.ReadModels == nil {
		http.NotFound(w, r)
		return
	}

	name := chi.URLParam(r, "name")
	version, err := strconv.ParseUint(strings.TrimPrefix(chi.URLParam(r, "version"), "v"), 10, 32)
	if err != nil {
		h.badRequest(w, r, we.ValidationFailed("checkpoint", "projection version must be a number"))
		return
	}

	position, err := h.ledger.ReadModels.Checkpoint(r.Context(), name, uint32(version))
	if err != nil {
		h.failed(w, r, err, "failed to read checkpoint")
		return
	}

	if position == nil {
		http.NotFound(w, r)
		return
	}

	render.JSON(w, r, position)
}

func (h *ledgerHandler) storage(w http.ResponseWriter, r *http.Request) {
	if h.ledger.Storage == nil {
		http.NotFound(w, r)
		return
	}

	metrics, err := h.ledger.Storage.Metrics(r.Context())
	if err != nil {
		h.failed(w, r, err, "failed to read storage metrics")
		return
	}

	render.JSON(w, r, metrics)
}

func (h *ledgerHandler) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, errorResponse{Error: err.Error()})
}

func (h *ledgerHandler) failed(w http.ResponseWriter, r *http.Request, err error, msg string) {
	h.log.Error().Err(err).Str("path", r.URL.Path).Msg(msg)
	writeError(w, r, err)
}

func querySequence(r *http.Request, name string, fallback we.Sequence) (we.Sequence, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}

	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, we.ValidationFailed("query", name+" must be a non-negative integer")
	}

	return we.Sequence(value), nil
}

func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return DefaultPageSize, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return 0, we.ValidationFailed("query", "limit must be a positive integer")
	}

	return min(value, MaxPageSize), nil
}
