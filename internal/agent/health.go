package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dyluth/grove/pkg/blackboard"
)

// HealthServer provides HTTP health check endpoints for a running agent.
type HealthServer struct {
	addr   string
	engine *Engine
	client *blackboard.Client
	server *http.Server
}

// NewHealthServer creates a health server reporting on engine. client may be
// nil for agents that run without Redis.
func NewHealthServer(addr string, engine *Engine, client *blackboard.Client) *HealthServer {
	return &HealthServer{
		addr:   addr,
		engine: engine,
		client: client,
	}
}

// Start starts the HTTP health check server in the background.
func (h *HealthServer) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.healthCheckHandler)

	h.server = &http.Server{
		Addr:         h.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("Health server error: %v\n", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the health check server.
func (h *HealthServer) Shutdown(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

// healthCheckHandler handles GET /healthz requests.
// Returns 503 when Redis is configured but unreachable.
func (h *HealthServer) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status: "healthy",
		Redis:  "disabled",
	}
	if h.engine != nil {
		st := h.engine.Status()
		response.Tree = st.Tree
		response.Running = st.Running
		response.Ticks = st.Ticks
	}

	code := http.StatusOK
	if h.client != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.client.Ping(ctx); err != nil {
			response.Status = "unhealthy"
			response.Redis = "disconnected"
			response.Error = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			response.Redis = "connected"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(response)
}

// HealthResponse is the JSON response structure for health checks.
type HealthResponse struct {
	Status  string `json:"status"`
	Tree    string `json:"tree,omitempty"`
	Running bool   `json:"running"`
	Ticks   int64  `json:"ticks"`
	Redis   string `json:"redis,omitempty"`
	Error   string `json:"error,omitempty"`
}
