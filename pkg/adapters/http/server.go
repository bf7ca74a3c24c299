package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/turnstile"
	"github.com/aretw0/turnstile/pkg/domain"
	"github.com/aretw0/turnstile/pkg/registry"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

// Engine defines the operations of the Turnstile engine exposed over HTTP.
type Engine interface {
	Execute(ctx context.Context, req domain.TransitionRequest) (*domain.Result, error)
	Create(ctx context.Context, entity *domain.Entity) (*domain.Entity, error)
	Get(ctx context.Context, id string) (*domain.Entity, error)
	AuditTrail(ctx context.Context, id string) ([]domain.AuditRecord, error)
	RetryCascade(ctx context.Context, id string) error
	ResolveAction(collection, action string) (domain.Kind, domain.State, error)
	KindOf(collection string) (domain.Kind, bool)
	Machines() []registry.Machine
}

// Server maps HTTP routes onto the engine.
type Server struct {
	Engine  Engine
	Actors  ActorResolver
	Streams *StreamManager
	Logger  *slog.Logger
}

// Option configures the handler.
type Option func(*Server)

// WithActorResolver replaces the default header-based resolver.
func WithActorResolver(a ActorResolver) Option {
	return func(s *Server) {
		s.Actors = a
	}
}

// WithStreams shares a StreamManager whose Hooks are wired into the engine.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.Logger = logger
	}
}

// NewHandler creates a new HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	s := &Server{
		Engine: engine,
		Actors: HeaderActorResolver{},
		Logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager()
	}

	r := chi.NewRouter()
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})
	r.Get("/machines", s.ListMachines)
	r.Get("/events", s.SubscribeEvents)

	r.Route("/{collection}", func(r chi.Router) {
		r.Post("/", s.CreateEntity)
		r.Get("/{id}", s.GetEntity)
		r.Get("/{id}/audit", s.GetAuditTrail)
		r.Post("/{id}/cascade/retry", s.RetryCascade)
		r.Post("/{id}/{action}", s.Transition)
	})

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+HeaderActorID+", "+HeaderActorRole+", "+HeaderExpectedStatus)
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Transition handles POST /{collection}/{id}/{action}.
func (s *Server) Transition(w http.ResponseWriter, r *http.Request) {
	collection, id, action := chi.URLParam(r, "collection"), chi.URLParam(r, "id"), chi.URLParam(r, "action")

	actorID, role, err := s.Actors.Resolve(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error(), "")
		return
	}

	kind, to, err := s.Engine.ResolveAction(collection, action)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	payload, err := decodeObject(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error(), "")
		return
	}

	res, err := s.Engine.Execute(r.Context(), domain.TransitionRequest{
		EntityID:        id,
		Kind:            kind,
		To:              to,
		ActorID:         actorID,
		ActorRole:       role,
		ExpectedCurrent: domain.State(strings.TrimSpace(r.Header.Get(HeaderExpectedStatus))),
		Payload:         payload,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	w.Header().Set(HeaderApplied, fmt.Sprint(res.Applied))
	if res.CascadeErr != nil {
		w.Header().Set(HeaderCascadeFailed, "true")
	}
	writeJSON(w, http.StatusOK, res.Entity)
}

// RetryCascade handles POST /{collection}/{id}/cascade/retry.
func (s *Server) RetryCascade(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := s.Actors.Resolve(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error(), "")
		return
	}
	e, err := s.load(r)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if err := s.Engine.RetryCascade(r.Context(), e.ID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.Logger.Info("cascade retried", "id", e.ID, "actor", actorID)
	w.WriteHeader(http.StatusNoContent)
}

type createRequest struct {
	ID       string         `json:"id"`
	OrgID    string         `json:"org_id"`
	ParentID string         `json:"parent_id"`
	Payload  map[string]any `json:"payload"`
}

// CreateEntity handles POST /{collection}: the entity starts in the initial state.
func (s *Server) CreateEntity(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	kind, ok := s.Engine.KindOf(collection)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "unknown collection "+collection, "")
		return
	}

	var body createRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body", "")
		return
	}
	if strings.TrimSpace(body.ID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "id is required", "")
		return
	}

	e := domain.NewEntity(body.ID, kind, "")
	e.OrgID = body.OrgID
	e.ParentID = body.ParentID
	if body.Payload != nil {
		e.Payload = body.Payload
	}

	created, err := s.Engine.Create(r.Context(), e)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetEntity handles GET /{collection}/{id}.
func (s *Server) GetEntity(w http.ResponseWriter, r *http.Request) {
	e, err := s.load(r)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// GetAuditTrail handles GET /{collection}/{id}/audit.
func (s *Server) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	e, err := s.load(r)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	records, err := s.Engine.AuditTrail(r.Context(), e.ID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// load fetches the entity and checks it belongs to the collection in the path.
func (s *Server) load(r *http.Request) (*domain.Entity, error) {
	collection, id := chi.URLParam(r, "collection"), chi.URLParam(r, "id")
	kind, ok := s.Engine.KindOf(collection)
	if !ok {
		return nil, fmt.Errorf("%w: collection '%s'", registry.ErrUnknownKind, collection)
	}
	e, err := s.Engine.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if e.Kind != kind {
		return nil, fmt.Errorf("%w: %s is not in %s", domain.ErrNotFound, id, collection)
	}
	return e, nil
}

// ListMachines handles GET /machines.
func (s *Server) ListMachines(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Engine.Machines())
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if doc, err := OpenAPI(); err == nil && doc.Info != nil {
		apiVersion = doc.Info.Version
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"app":         "turnstile-http",
		"version":     strings.TrimSpace(turnstile.Version),
		"api_version": apiVersion,
	})
}

// decodeObject reads an optional JSON object body.
func decodeObject(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var payload map[string]any
	err := json.NewDecoder(r.Body).Decode(&payload)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("body must be a JSON object: %w", err)
	}
	return payload, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "err", err)
	}
}
