// Package server exposes the dump and thread API over HTTP.
//
// Identity is the X-User-ID header; requests without it fall back to the
// "default" user. All reads and writes are scoped to that user.
package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/skeinhq/skein/internal/pipeline"
	"github.com/skeinhq/skein/internal/store"
)

const defaultUserID = "default"

// maxDumpBytes bounds a single dump submission.
const maxDumpBytes = 1 << 20

// Server handles the HTTP API.
type Server struct {
	store    *store.DB
	pipeline *pipeline.Pipeline
	started  time.Time
}

// New creates a server over the given store and pipeline.
func New(st *store.DB, pl *pipeline.Pipeline) *Server {
	return &Server{store: st, pipeline: pl, started: time.Now()}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /dumps", s.handleCreateDump)
	mux.HandleFunc("GET /dumps", s.handleListDumps)
	mux.HandleFunc("POST /dumps/{id}/process", s.handleProcessDump)
	mux.HandleFunc("GET /threads", s.handleListThreads)
	mux.HandleFunc("GET /threads/{id}", s.handleGetThread)
	return mux
}

func userID(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return defaultUserID
}

// ─── Health ──────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"status": "error", "error": err.Error()})
		return
	}

	health := map[string]any{
		"status":     "ok",
		"uptime":     time.Since(s.started).Round(time.Second).String(),
		"goroutines": runtime.NumGoroutine(),
		"stats":      stats,
	}

	// Process-level resource usage; best effort, absent on failure.
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mem, err := proc.MemoryInfo(); err == nil {
			health["rss_bytes"] = mem.RSS
		}
		if cpu, err := proc.CPUPercent(); err == nil {
			health["cpu_percent"] = cpu
		}
	}

	writeJSON(w, http.StatusOK, health)
}

// ─── Dumps ───────────────────────────────────────────────────────────────────

// CreateDumpRequest is the request body for POST /dumps.
type CreateDumpRequest struct {
	Content     string   `json:"content"`                // raw dump text (required)
	ContentType string   `json:"content_type,omitempty"` // default "text"
	MediaURLs   []string `json:"media_urls,omitempty"`
	Process     bool     `json:"process,omitempty"` // run the pipeline inline
}

// CreateDumpResponse is the response for POST /dumps.
type CreateDumpResponse struct {
	Dump     *store.Dump      `json:"dump"`
	Pipeline *pipeline.Result `json:"pipeline,omitempty"`
}

func (s *Server) handleCreateDump(w http.ResponseWriter, r *http.Request) {
	var req CreateDumpRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDumpBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "content is required"})
		return
	}
	if req.ContentType == "" {
		req.ContentType = "text"
	}

	user := userID(r)
	dump, err := s.store.CreateDump(user, req.Content, req.ContentType, req.MediaURLs)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to store dump: " + err.Error()})
		return
	}

	resp := CreateDumpResponse{Dump: dump}
	if req.Process {
		result, err := s.pipeline.ProcessDump(r.Context(), dump.ID, user)
		if err != nil {
			// The dump is saved either way; report the pipeline failure
			// without discarding it.
			log.Printf("[server] inline processing of dump %s failed: %v", dump.ID, err)
			writeJSON(w, http.StatusAccepted, map[string]any{
				"dump":  dump,
				"error": "processing failed: " + err.Error(),
			})
			return
		}
		resp.Pipeline = result
		if refreshed, err := s.store.GetDump(dump.ID, user); err == nil {
			resp.Dump = refreshed
		}
	}

	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListDumps(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	dumps, err := s.store.ListDumps(userID(r), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list dumps: " + err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"dumps": dumps})
}

func (s *Server) handleProcessDump(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	dumpID := r.PathValue("id")

	result, err := s.pipeline.ProcessDump(r.Context(), dumpID, user)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "dump not found"})
		return
	case errors.Is(err, store.ErrAlreadyProcessed):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "dump already processed"})
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "processing failed: " + err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ─── Threads ─────────────────────────────────────────────────────────────────

func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	state := store.ThreadState(r.URL.Query().Get("state"))
	if state != "" && !state.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown state: " + string(state)})
		return
	}

	threads, err := s.store.ListThreads(userID(r), state)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list threads: " + err.Error()})
		return
	}

	// Board view: threads grouped by lifecycle state.
	board := make(map[store.ThreadState][]*store.Thread)
	for _, th := range threads {
		board[th.State] = append(board[th.State], th)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"threads": threads,
		"board":   board,
	})
}

// ThreadDetail is the response for GET /threads/{id}.
type ThreadDetail struct {
	Thread   *store.Thread         `json:"thread"`
	Segments []*store.Segment      `json:"segments"`
	Edges    []store.ConnectedEdge `json:"edges"`
}

func (s *Server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("id")

	thread, err := s.store.GetThread(threadID, userID(r))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "thread not found"})
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get thread: " + err.Error()})
		return
	}

	segments, err := s.store.SegmentsForThread(threadID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get segments: " + err.Error()})
		return
	}

	edges, err := s.store.ConnectedEdges(threadID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get edges: " + err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, ThreadDetail{
		Thread:   thread,
		Segments: segments,
		Edges:    edges,
	})
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
