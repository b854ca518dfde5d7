package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skypro1111/voiceloop/internal/config"
	"github.com/skypro1111/voiceloop/internal/conversation"
	"github.com/skypro1111/voiceloop/internal/events"
	"github.com/skypro1111/voiceloop/internal/metrics"
)

const (
	serviceName    = "voiceloop"
	serviceVersion = "1.0.0"

	eventBuffer = 64
	writeWait   = 5 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = pongWait * 9 / 10
)

// StatusProvider reports the conversation loop state
type StatusProvider interface {
	Status() conversation.Status
}

// StatsFunc returns a JSON-serializable snapshot of a component
type StatsFunc func() any

// HTTPServer provides HTTP API endpoints for monitoring the voice client
type HTTPServer struct {
	server   *http.Server
	logger   *slog.Logger
	config   *config.Config
	loop     StatusProvider
	bus      *events.Bus
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	upgrader websocket.Upgrader

	// Server state
	startTime time.Time
	mu        sync.RWMutex
	stats     map[string]StatsFunc
}

// NewHTTPServer creates a new HTTP API server. bus may be nil, which
// disables the event feed.
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger, appConfig *config.Config,
	loop StatusProvider, bus *events.Bus, m *metrics.Metrics, gatherer prometheus.Gatherer) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		loop:      loop,
		bus:       bus,
		metrics:   m,
		gatherer:  gatherer,
		startTime: time.Now(),
		stats:     make(map[string]StatsFunc),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Local monitoring tool; dashboards may be served from another origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      h.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// RegisterStats exposes a component snapshot under /stats
func (h *HTTPServer) RegisterStats(name string, fn StatsFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stats[name] = fn
}

// Handler returns the API routes
func (h *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/status", h.withMetrics("/status", h.handleStatus))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Not wrapped: promhttp instruments itself and the websocket hijacks the connection
	mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/events", h.handleEvents)

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))

	return mux
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server. Event feeds end when the bus closes.
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

func (h *HTTPServer) writeJSON(w http.ResponseWriter, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		h.logger.Error("Failed to encode response", slog.String("error", err.Error()))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := h.loop.Status()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"conversation": map[string]interface{}{
			"state":   status.State,
			"session": status.Session.ID,
			"turns":   status.Turns,
		},
	}

	h.writeJSON(w, health)
}

// handleStatus implements the /status endpoint
func (h *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.writeJSON(w, h.loop.Status())
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	c := h.config

	// API key is reported only as present or absent
	sanitizedConfig := map[string]interface{}{
		"turn": map[string]interface{}{
			"endpoint":        c.Turn.Endpoint,
			"timeout":         c.Turn.Timeout,
			"max_reply_bytes": c.Turn.MaxReplyBytes,
		},
		"transcription": map[string]interface{}{
			"endpoint":    c.Transcription.Endpoint,
			"model":       c.Transcription.Model,
			"language":    c.Transcription.Language,
			"timeout":     c.Transcription.Timeout,
			"api_key_set": c.Transcription.APIKey != "",
		},
		"capture": map[string]interface{}{
			"source":         c.Capture.Source,
			"sample_rate":    c.Capture.SampleRate,
			"channels":       c.Capture.Channels,
			"bit_depth":      c.Capture.BitDepth,
			"frame_duration": c.Capture.FrameDuration,
			"listen_timeout": c.Capture.ListenTimeout,
			"phrase_limit":   c.Capture.PhraseLimit,
			"calibration":    c.Capture.Calibration,
		},
		"vad": map[string]interface{}{
			"threshold_multiplier": c.VAD.ThresholdMultiplier,
			"min_energy":           c.VAD.MinEnergy,
			"min_speech":           c.VAD.MinSpeech,
			"silence":              c.VAD.Silence,
		},
		"playback": map[string]interface{}{
			"grace":             c.Playback.Grace,
			"frames_per_buffer": c.Playback.FramesPerBuffer,
		},
		"archive": map[string]interface{}{
			"dir": c.Archive.Dir,
		},
		"logging": map[string]interface{}{
			"level":  c.Logging.Level,
			"format": c.Logging.Format,
			"output": c.Logging.Output,
		},
	}

	if c.Capture.Source == config.SourceNetMic {
		sanitizedConfig["netmic"] = map[string]interface{}{
			"bind_address": c.NetMic.BindAddress,
			"port":         c.NetMic.Port,
			"max_gap":      c.NetMic.MaxGap,
		}
	}

	h.writeJSON(w, sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]interface{}{
		"uptime":       time.Since(h.startTime).String(),
		"timestamp":    time.Now().UTC(),
		"conversation": h.loop.Status(),
	}

	if h.bus != nil {
		stats["events"] = map[string]interface{}{
			"subscribers": h.bus.Subscribers(),
			"published":   h.bus.Published(),
			"dropped":     h.bus.Dropped(),
		}
	}

	h.mu.RLock()
	for name, fn := range h.stats {
		stats[name] = fn()
	}
	h.mu.RUnlock()

	h.writeJSON(w, stats)
}

// handleEvents streams conversation events over a websocket
func (h *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if h.bus == nil {
		http.Error(w, "Event feed disabled", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		h.logger.Debug("Websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	ch, unsubscribe := h.bus.Subscribe(eventBuffer)
	defer unsubscribe()

	h.logger.Debug("Event feed connected", slog.String("remote_addr", r.RemoteAddr))

	// Drain client frames so pongs and close messages are processed
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-ch:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}

			data, err := sonic.Marshal(e)
			if err != nil {
				h.logger.Error("Failed to encode event", slog.String("error", err.Error()))
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-closed:
			h.logger.Debug("Event feed disconnected", slog.String("remote_addr", r.RemoteAddr))
			return
		}
	}
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	h.mu.RLock()
	components := make([]string, 0, len(h.stats))
	for name := range h.stats {
		components = append(components, name)
	}
	h.mu.RUnlock()
	sort.Strings(components)

	apiDoc := map[string]interface{}{
		"service": "voiceloop voice client",
		"version": serviceVersion,
		"endpoints": map[string]interface{}{
			"GET /":        "API documentation",
			"GET /health":  "Service health check",
			"GET /status":  "Conversation state, session and turn counters",
			"GET /config":  "Sanitized configuration",
			"GET /stats":   "Component statistics",
			"GET /metrics": "Prometheus metrics",
			"GET /events":  "Websocket feed of conversation events",
		},
		"components": components,
		"timestamp":  time.Now().UTC(),
	}

	h.writeJSON(w, apiDoc)
}
