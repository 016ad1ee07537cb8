// Package api exposes the planning engines as JSON endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/vsinha/prodplan/pkg/application/dto"
	"github.com/vsinha/prodplan/pkg/application/services/mrp"
	"github.com/vsinha/prodplan/pkg/application/services/orchestration"
	"github.com/vsinha/prodplan/pkg/application/services/reconcile"
	"github.com/vsinha/prodplan/pkg/application/services/rollup"
	"github.com/vsinha/prodplan/pkg/domain/entities"
	"github.com/vsinha/prodplan/pkg/domain/repositories"
	"github.com/vsinha/prodplan/pkg/infrastructure/events"
)

const maxBodyBytes = 4 << 20

// Planner is the planning surface the server exposes
type Planner interface {
	HandleRollup(ctx context.Context, req dto.RollupRequest) (dto.RollupResponse, error)
	HandleMRP(ctx context.Context, req dto.MRPRequest) (dto.MRPResponse, error)
	HandleReconcile(ctx context.Context, req dto.ReconcileRequest) (dto.ReconcileResponse, error)
	HandleCommit(ctx context.Context, req dto.CommitRequest) (dto.CommitResponse, error)
	RunRollup(ctx context.Context, modelRef string) (*rollup.Run, error)
	RunMRP(ctx context.Context, asOf time.Time) (*mrp.Run, error)
	RunReconciliation(ctx context.Context, models []string) (*reconcile.Run, error)
	GetBatch(ctx context.Context, id string) (*entities.PurchaseBatch, error)
}

var _ Planner = (*orchestration.PlanningOrchestrator)(nil)

// EventLog is the store-wide event log read by /v1/events
type EventLog interface {
	ReadAllEvents(fromPosition int) ([]events.Event, error)
	NextPosition() int
}

var _ EventLog = (*events.InMemoryEventStore)(nil)

// Options configure the router
type Options struct {
	CORSOrigins []string
	// Metrics serves /metrics when set
	Metrics http.Handler
	Logger  *zap.Logger
	// Events serves /v1/events when set
	Events EventLog
	// Now stamps repository-backed MRP runs that carry no as_of
	Now func() time.Time
}

// Server routes HTTP requests to a planner
type Server struct {
	planner Planner
	events  EventLog
	logger  *zap.Logger
	now     func() time.Time
}

// NewRouter builds the HTTP handler
func NewRouter(planner Planner, opts Options) http.Handler {
	s := &Server{planner: planner, events: opts.Events, logger: opts.Logger, now: opts.Now}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/rollup", s.rollup)
		r.Post("/mrp", s.mrp)
		r.Post("/reconcile", s.reconcile)
		r.Post("/commit", s.commit)

		r.Post("/runs/rollup/{model}", s.runRollup)
		r.Post("/runs/mrp", s.runMRP)
		r.Post("/runs/reconciliation", s.runReconciliation)
		r.Get("/batches/{id}", s.batch)
		if s.events != nil {
			r.Get("/events", s.eventLog)
		}
	})
	return r
}

func (s *Server) rollup(w http.ResponseWriter, r *http.Request) {
	var req dto.RollupRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.planner.HandleRollup(r.Context(), req)
	s.respond(w, r, resp, err)
}

func (s *Server) mrp(w http.ResponseWriter, r *http.Request) {
	var req dto.MRPRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.planner.HandleMRP(r.Context(), req)
	s.respond(w, r, resp, err)
}

func (s *Server) reconcile(w http.ResponseWriter, r *http.Request) {
	var req dto.ReconcileRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.planner.HandleReconcile(r.Context(), req)
	s.respond(w, r, resp, err)
}

func (s *Server) commit(w http.ResponseWriter, r *http.Request) {
	var req dto.CommitRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.planner.HandleCommit(r.Context(), req)
	status := StatusFor(err)
	if err != nil && status == http.StatusOK {
		// a rejected selection produces nothing
		status = http.StatusBadRequest
	}
	s.respondStatus(w, r, status, resp, err)
}

func (s *Server) runRollup(w http.ResponseWriter, r *http.Request) {
	run, err := s.planner.RunRollup(r.Context(), chi.URLParam(r, "model"))
	var resp dto.RollupResponse
	if run != nil {
		resp = dto.NewRollupResponse(run.Result, err)
	} else {
		resp = dto.NewRollupResponse(nil, err)
	}
	s.respond(w, r, resp, err)
}

// runMRP nets the current snapshot. as_of defaults to today.
func (s *Server) runMRP(w http.ResponseWriter, r *http.Request) {
	asOf := s.now().UTC().Truncate(24 * time.Hour)
	if v := r.URL.Query().Get("as_of"); v != "" {
		t, err := time.Parse(dto.DateLayout, v)
		if err != nil {
			verr := &entities.ValidationError{Field: "as_of", Message: "expected YYYY-MM-DD, got " + v}
			s.respond(w, r, dto.NewMRPResponse(nil, verr), &orchestration.RequestError{Err: verr})
			return
		}
		asOf = t
	}
	run, err := s.planner.RunMRP(r.Context(), asOf)
	s.respond(w, r, dto.NewMRPResponse(run, err), err)
}

// runReconciliation reconciles the comma separated models, or all of them
func (s *Server) runReconciliation(w http.ResponseWriter, r *http.Request) {
	var models []string
	for _, m := range strings.Split(r.URL.Query().Get("models"), ",") {
		if m = strings.TrimSpace(m); m != "" {
			models = append(models, m)
		}
	}
	run, err := s.planner.RunReconciliation(r.Context(), models)
	s.respond(w, r, dto.NewReconcileRunResponse(run, err), err)
}

func (s *Server) batch(w http.ResponseWriter, r *http.Request) {
	batch, err := s.planner.GetBatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respond(w, r, map[string]interface{}{"error": dto.NewErrorRecord(err)}, err)
		return
	}
	writeJSON(w, http.StatusOK, batch)
}

// eventLog pages through the event log. next is the from value that
// resumes after the last returned event.
func (s *Server) eventLog(w http.ResponseWriter, r *http.Request) {
	from := 0
	if v := r.URL.Query().Get("from"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			rec := dto.ErrorRecord{Kind: dto.KindValidation, Message: "from must be a non-negative integer, got " + v}
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"errors": []dto.ErrorRecord{rec}})
			return
		}
		from = n
	}
	evs, err := s.events.ReadAllEvents(from)
	if err != nil {
		s.respond(w, r, map[string]interface{}{"error": dto.NewErrorRecord(err)}, err)
		return
	}
	next := from
	if n := len(evs); n > 0 {
		if last, ok := evs[n-1].(events.BaseEvent); ok {
			next = last.Position + 1
		}
	} else if end := s.events.NextPosition(); next > end {
		next = end
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": evs, "next": next})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		rec := dto.ErrorRecord{Kind: dto.KindValidation, Message: "invalid request body: " + err.Error()}
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"errors": []dto.ErrorRecord{rec}})
		return false
	}
	return true
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, body interface{}, err error) {
	s.respondStatus(w, r, StatusFor(err), body, err)
}

func (s *Server) respondStatus(w http.ResponseWriter, r *http.Request, status int, body interface{}, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("api: request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}
	writeJSON(w, status, body)
}

// StatusFor maps an engine outcome to an HTTP status. Planning problems
// returned next to a result ride along with a 200, whatever their kind;
// only a call that produced nothing is unprocessable.
func StatusFor(err error) int {
	var (
		reqErr *orchestration.RequestError
		abort  *orchestration.AbortError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &reqErr):
		return http.StatusBadRequest
	case errors.Is(err, entities.ErrStaleSnapshot), errors.Is(err, entities.ErrAlreadyConsumed):
		return http.StatusConflict
	case errors.Is(err, repositories.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &abort):
		if planningProblems(abort.Err) {
			return http.StatusUnprocessableEntity
		}
	case planningProblems(err):
		return http.StatusOK
	}
	return http.StatusInternalServerError
}

// planningProblems reports whether every error in err is a record or
// structure problem found by an engine
func planningProblems(err error) bool {
	for _, e := range multierr.Errors(err) {
		var validation *entities.ValidationError
		if !errors.As(e, &validation) && !entities.IsFatal(e) {
			return false
		}
	}
	return true
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
