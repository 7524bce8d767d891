package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"llm-paper-trader/internal/engine"
	"llm-paper-trader/internal/interfaces"
	"llm-paper-trader/internal/logger"
	"llm-paper-trader/internal/types"

	"github.com/gorilla/mux"
)

const defaultLogLines = 100

// Route is one entry of the control surface.
type Route struct {
	Name        string
	Method      string
	Pattern     string
	HandlerFunc http.HandlerFunc
}

// Server exposes manual control of a session and read-only views of it.
type Server struct {
	eng     *engine.Engine
	stepper interfaces.Engine
	runner  *engine.Runner
	ws      http.Handler
	http    *http.Server
}

// New builds the server. stepper is what POST /api/step drives, usually the
// engine wrapped for observability. ws may be nil.
func New(eng *engine.Engine, stepper interfaces.Engine, runner *engine.Runner, ws http.Handler) *Server {
	if stepper == nil {
		stepper = eng
	}
	return &Server{eng: eng, stepper: stepper, runner: runner, ws: ws}
}

// requestLogger logs every request with its route name and latency.
func requestLogger(inner http.Handler, name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		inner.ServeHTTP(w, r)
		logger.Debug(r.Context(), "HTTP request",
			"method", r.Method,
			"uri", r.RequestURI,
			"route", name,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) routes() []Route {
	routes := []Route{
		{"OverrideSellAll", http.MethodPost, "/api/override/sell-all", s.overrideHandler(engine.CmdSellAll)},
		{"OverrideBuyMax", http.MethodPost, "/api/override/buy-max", s.overrideHandler(engine.CmdBuyMax)},
		{"Step", http.MethodPost, "/api/step", s.handleStep},
		{"RunnerStart", http.MethodPost, "/api/runner/start", s.handleRunnerStart},
		{"RunnerPause", http.MethodPost, "/api/runner/pause", s.handleRunnerPause},
		{"Portfolio", http.MethodGet, "/api/portfolio", s.handlePortfolio},
		{"Logs", http.MethodGet, "/api/logs", s.handleLogs},
		{"Chart", http.MethodGet, "/api/chart", s.handleChart},
		{"Memory", http.MethodGet, "/api/memory", s.handleMemory},
		{"Status", http.MethodGet, "/api/status", s.handleStatus},
	}
	if s.ws != nil {
		routes = append(routes, Route{"ws", http.MethodGet, "/ws", s.ws.ServeHTTP})
	}
	return routes
}

// Router returns the mux with every route registered.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter().StrictSlash(true)
	for _, route := range s.routes() {
		var handler http.Handler = route.HandlerFunc
		if route.Name != "ws" && logger.IsDebugEnabled() {
			handler = requestLogger(handler, route.Name)
		}
		router.
			Methods(route.Method).
			Path(route.Pattern).
			Name(route.Name).
			Handler(handler)
	}
	return router
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "Control server listening", "addr", addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

type statusResponse struct {
	engine.Status
	Running    bool   `json:"running"`
	RunnerMode string `json:"runner_mode,omitempty"`
	Steps      int64  `json:"runner_steps"`
}

type ackResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn(context.Background(), "Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func (s *Server) overrideHandler(cmd engine.Command) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.eng.Override(r.Context(), cmd); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusAccepted, ackResponse{OK: true, Message: string(cmd) + " queued for next step"})
	}
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	res, err := s.stepper.Step(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRunnerStart(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusNotImplemented, errors.New("no runner configured"))
		return
	}
	mode := r.URL.Query().Get("mode")
	started, err := s.runner.Start(r.Context(), mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	msg := "runner started"
	if !started {
		msg = "runner already running"
	}
	writeJSON(w, http.StatusOK, ackResponse{OK: true, Message: msg})
}

func (s *Server) handleRunnerPause(w http.ResponseWriter, _ *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusNotImplemented, errors.New("no runner configured"))
		return
	}
	s.runner.Pause()
	writeJSON(w, http.StatusOK, ackResponse{OK: true, Message: "runner pausing after current step"})
}

func (s *Server) handlePortfolio(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.Snapshot())
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	n := defaultLogLines
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, errors.New("n must be a non-negative integer"))
			return
		}
		n = parsed
	}
	writeJSON(w, http.StatusOK, map[string][]string{"logs": s.eng.Logs(n)})
}

func (s *Server) handleChart(w http.ResponseWriter, _ *http.Request) {
	events := s.eng.Chart()
	if events == nil {
		events = []types.ChartEvent{}
	}
	writeJSON(w, http.StatusOK, map[string][]types.ChartEvent{"events": events})
}

func (s *Server) handleMemory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.Memory())
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{Status: s.eng.Status()}
	if s.runner != nil {
		resp.Running = s.runner.Running()
		resp.RunnerMode = s.runner.Mode()
		resp.Steps = s.runner.Steps()
	}
	writeJSON(w, http.StatusOK, resp)
}
