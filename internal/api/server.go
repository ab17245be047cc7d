// Package api serves the administrative HTTP interface of the display:
// plugin status, manual runs, reloads and a websocket stream of run events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"infodisplay/internal/daemon"
	"infodisplay/internal/history"
	"infodisplay/internal/scheduler"
	"infodisplay/pkg/surface"

	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

// Controller is the part of the application the API drives.
type Controller interface {
	ListPlugins() []scheduler.Status
	CurrentPlugin() string
	DaemonState() daemon.State
	RunPlugin(ctx context.Context, name string, force bool) (scheduler.Result, error)
	UpdateDisplay(ctx context.Context) (scheduler.Result, error)
	Cycle(ctx context.Context) (scheduler.Result, error)
	ReloadPlugins() error
	Clear(color string) error
	History(ctx context.Context, plugin string, limit int) ([]scheduler.Result, error)
	HistorySummaries(ctx context.Context) ([]history.Summary, error)
}

// Server provides HTTP API endpoints for the display
type Server struct {
	ctrl   Controller
	hub    *Hub
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a new API server listening on addr
func NewServer(ctrl Controller, logger *zap.Logger, addr string) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("api")

	s := &Server{
		ctrl:   ctrl,
		hub:    NewHub(logger),
		logger: logger,
	}

	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: a run request lasts as long as the render.
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleSitemap)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/plugins", s.handlePlugins)
	mux.HandleFunc("/api/plugins/{name}/run", s.handleRunPlugin)
	mux.HandleFunc("/api/update", s.handleUpdate)
	mux.HandleFunc("/api/cycle", s.handleCycle)
	mux.HandleFunc("/api/reload", s.handleReload)
	mux.HandleFunc("/api/clear", s.handleClear)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/history/summary", s.handleHistorySummary)
	mux.HandleFunc("/api/events", s.hub.ServeHTTP)
	return mux
}

// OnRun forwards a run to the websocket clients. It lets the server be
// registered as a scheduler observer.
func (s *Server) OnRun(r scheduler.Result) {
	s.hub.OnRun(r)
}

// PluginView is the JSON form of a plugin status row
type PluginView struct {
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	UpdateInterval int        `json:"update_interval"`
	LastRun        *time.Time `json:"last_run"`
	NeedsUpdate    bool       `json:"needs_update"`
	IsCurrent      bool       `json:"is_current"`
}

// StatusResponse represents the JSON response for the status endpoint
type StatusResponse struct {
	Daemon    daemon.State `json:"daemon"`
	Current   string       `json:"current"`
	Plugins   []PluginView `json:"plugins"`
	Timestamp time.Time    `json:"timestamp"`
}

// RunResponse answers every endpoint that triggers a render
type RunResponse struct {
	Success bool              `json:"success"`
	Plugin  string            `json:"plugin,omitempty"`
	Outcome scheduler.Outcome `json:"outcome,omitempty"`
	Message string            `json:"message"`
}

// MessageResponse answers endpoints that do not render
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func pluginViews(statuses []scheduler.Status) []PluginView {
	views := make([]PluginView, 0, len(statuses))
	for _, st := range statuses {
		views = append(views, PluginView{
			Name:           st.Name,
			Description:    st.Description,
			UpdateInterval: st.IntervalSeconds(),
			LastRun:        st.LastRun,
			NeedsUpdate:    st.NeedsUpdate,
			IsCurrent:      st.IsCurrent,
		})
	}
	return views
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// handleHealth returns a simple health check response
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	s.writeJSON(w, http.StatusOK, StatusResponse{
		Daemon:    s.ctrl.DaemonState(),
		Current:   s.ctrl.CurrentPlugin(),
		Plugins:   pluginViews(s.ctrl.ListPlugins()),
		Timestamp: time.Now(),
	})
}

func (s *Server) handlePlugins(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	s.writeJSON(w, http.StatusOK, pluginViews(s.ctrl.ListPlugins()))
}

// handleRunPlugin renders one plugin. force defaults to true: a manual run
// should show the plugin now.
func (s *Server) handleRunPlugin(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	name := r.PathValue("name")

	force := true
	if v := r.URL.Query().Get("force"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, MessageResponse{Message: fmt.Sprintf("invalid force value %q", v)})
			return
		}
		force = parsed
	}

	res, err := s.ctrl.RunPlugin(r.Context(), name, force)
	if res.Plugin == "" {
		res.Plugin = name
	}
	s.writeRun(w, res, err)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	res, err := s.ctrl.UpdateDisplay(r.Context())
	s.writeRun(w, res, err)
}

func (s *Server) handleCycle(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	res, err := s.ctrl.Cycle(r.Context())
	s.writeRun(w, res, err)
}

// writeRun maps a run to its response. A failed render is still a 200:
// the request was served, the plugin did not render.
func (s *Server) writeRun(w http.ResponseWriter, res scheduler.Result, err error) {
	resp := RunResponse{
		Success: err == nil,
		Plugin:  res.Plugin,
		Outcome: res.Outcome,
	}

	code := http.StatusOK
	switch {
	case errors.Is(err, scheduler.ErrNotFound):
		code = http.StatusNotFound
		resp.Message = err.Error()
	case errors.Is(err, scheduler.ErrNoPluginsAvailable):
		code = http.StatusServiceUnavailable
		resp.Message = err.Error()
	case errors.Is(err, scheduler.ErrRenderFailed):
		resp.Message = err.Error()
	case err != nil:
		code = http.StatusInternalServerError
		resp.Message = err.Error()
	case res.Outcome == scheduler.OutcomeSkipped:
		resp.Message = fmt.Sprintf("%s is not due for an update", res.Plugin)
	default:
		resp.Message = fmt.Sprintf("Rendered %s", res.Plugin)
	}

	s.writeJSON(w, code, resp)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	if err := s.ctrl.ReloadPlugins(); err != nil {
		s.logger.Warn("Reload request failed", zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, MessageResponse{Message: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Plugins reloaded"})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	color := r.URL.Query().Get("color")
	if color == "" {
		color = surface.White
	}

	err := s.ctrl.Clear(color)
	switch {
	case errors.Is(err, surface.ErrUnknownColor):
		s.writeJSON(w, http.StatusBadRequest, MessageResponse{Message: err.Error()})
	case err != nil:
		s.writeJSON(w, http.StatusInternalServerError, MessageResponse{Message: err.Error()})
	default:
		s.writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Display cleared to " + color})
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeJSON(w, http.StatusBadRequest, MessageResponse{Message: fmt.Sprintf("invalid limit %q", v)})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	runs, err := s.ctrl.History(r.Context(), r.URL.Query().Get("plugin"), limit)
	if err != nil {
		s.writeHistoryError(w, err)
		return
	}
	if runs == nil {
		runs = []scheduler.Result{}
	}
	s.writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleHistorySummary(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	summaries, err := s.ctrl.HistorySummaries(r.Context())
	if err != nil {
		s.writeHistoryError(w, err)
		return
	}
	if summaries == nil {
		summaries = []history.Summary{}
	}
	s.writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) writeHistoryError(w http.ResponseWriter, err error) {
	if errors.Is(err, history.ErrDisabled) {
		s.writeJSON(w, http.StatusNotFound, MessageResponse{Message: err.Error()})
		return
	}
	s.logger.Error("History query failed", zap.Error(err))
	s.writeJSON(w, http.StatusInternalServerError, MessageResponse{Message: err.Error()})
}

// Endpoint represents an API endpoint with its documentation
type Endpoint struct {
	Path        string `json:"path"`
	Method      string `json:"method"`
	Description string `json:"description"`
}

var endpoints = []Endpoint{
	{Path: "/", Method: "GET", Description: "This sitemap - lists all available API endpoints"},
	{Path: "/health", Method: "GET", Description: "Health check endpoint - returns {\"status\": \"ok\"}"},
	{Path: "/api/status", Method: "GET", Description: "Daemon state, current plugin and plugin list"},
	{Path: "/api/plugins", Method: "GET", Description: "Status of every loaded plugin"},
	{Path: "/api/plugins/{name}/run", Method: "POST", Description: "Render a plugin now (?force=false to respect its interval)"},
	{Path: "/api/update", Method: "POST", Description: "Render the selected plugin if it is due"},
	{Path: "/api/cycle", Method: "POST", Description: "Show the next plugin"},
	{Path: "/api/reload", Method: "POST", Description: "Reload the config file and plugins"},
	{Path: "/api/clear", Method: "POST", Description: "Clear the display (?color=white)"},
	{Path: "/api/history", Method: "GET", Description: "Recent runs (?plugin=&limit=)"},
	{Path: "/api/history/summary", Method: "GET", Description: "Run counts per plugin"},
	{Path: "/api/events", Method: "GET", Description: "Websocket stream of run events"},
}

// handleSitemap returns a list of all available API endpoints
func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	// Only handle requests to the root path
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if !allow(w, r, http.MethodGet) {
		return
	}

	preferHTML := strings.Contains(r.Header.Get("Accept"), "text/html")

	if preferHTML {
		// HTML format for browsers
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>Info Display API</title>
    <style>
        body { font-family: monospace; margin: 40px; background: #1e1e1e; color: #d4d4d4; }
        h1 { color: #4ec9b0; }
        h2 { color: #569cd6; margin-top: 30px; }
        .endpoint { background: #2d2d2d; padding: 15px; margin: 10px 0; border-left: 3px solid #007acc; }
        .method { color: #4ec9b0; font-weight: bold; }
        .path { color: #ce9178; }
        .description { color: #9cdcfe; margin-top: 5px; }
    </style>
</head>
<body>
    <h1>Info Display API</h1>
    <h2>Available Endpoints</h2>
`)
		for _, ep := range endpoints {
			fmt.Fprintf(w, `    <div class="endpoint">
        <div><span class="method">%s</span> <span class="path">%s</span></div>
        <div class="description">%s</div>
    </div>
`, ep.Method, ep.Path, ep.Description)
		}
		fmt.Fprintf(w, "</body>\n</html>\n")
	} else {
		// Plain text format for terminal
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "Info Display API\n")
		fmt.Fprintf(w, "================\n\n")
		fmt.Fprintf(w, "Available endpoints:\n\n")
		for _, ep := range endpoints {
			fmt.Fprintf(w, "  %-6s %-26s %s\n", ep.Method, ep.Path, ep.Description)
		}
		fmt.Fprintf(w, "\nExamples:\n\n")
		fmt.Fprintf(w, "  Show the weather now:\n")
		fmt.Fprintf(w, "    curl -X POST http://localhost:8080/api/plugins/weather/run\n\n")
		fmt.Fprintf(w, "  Follow run events:\n")
		fmt.Fprintf(w, "    websocat ws://localhost:8080/api/events\n\n")
	}

	s.logger.Debug("Sitemap request served",
		zap.String("remote_addr", r.RemoteAddr),
		zap.Bool("html_format", preferHTML))
}

// Start begins serving HTTP requests. The listener is bound before Start
// returns so address errors are reported to the caller.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}
	s.logger.Info("Starting HTTP API server", zap.String("addr", ln.Addr().String()))

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server and disconnects websocket
// clients.
func (s *Server) Stop() error {
	s.logger.Info("Stopping HTTP API server")

	s.hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}
