// Package server exposes the answer service over HTTP: a single POST
// endpoint that streams newline-delimited token objects, plus a health
// check. The serving snapshot is read-only; when a rebuild atomically
// publishes a new store file, a watcher swaps in a fresh snapshot without
// restarting the process.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"course-rag/internal/config"
	"course-rag/internal/llm"
	"course-rag/internal/models"
	"course-rag/internal/orchestrator"
	"course-rag/internal/search"
	"course-rag/internal/store"
)

// liveStore is the swappable snapshot+index pair behind orchestrator.Store.
type liveStore struct {
	mu   sync.RWMutex
	snap *store.Snapshot
	idx  *search.Index

	rerank     bool
	candidates int
}

func (l *liveStore) swap(snap *store.Snapshot) {
	l.mu.Lock()
	l.snap = snap
	l.idx = search.New(snap)
	l.mu.Unlock()
}

func (l *liveStore) Documents() []store.Document {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap.Documents()
}

func (l *liveStore) Lookup(path string) (store.Document, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap.Lookup(path)
}

func (l *liveStore) TopK(query []float32, k int, keywords []string) []search.Result {
	l.mu.RLock()
	idx := l.idx
	l.mu.RUnlock()

	if !l.rerank {
		return idx.TopK(query, k)
	}
	candidates := idx.TopK(query, l.candidates)
	return search.Rerank(candidates, keywords, k)
}

func (l *liveStore) Dimension() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap.Dimension()
}

func (l *liveStore) counts() (docs, chunks int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap.DocumentCount(), l.snap.ChunkCount()
}

// Server serves one course.
type Server struct {
	cfg  config.Course
	live *liveStore
	orch *orchestrator.Orchestrator
}

// New opens the course's store snapshot and wires the orchestrator.
func New(cfg config.Course, clients *llm.Clients) (*Server, error) {
	snap, err := store.Open(cfg.StorePath, cfg.Debug)
	if err != nil {
		return nil, err
	}
	live := &liveStore{
		rerank:     cfg.Search.Rerank,
		candidates: cfg.Search.Candidates,
	}
	live.swap(snap)

	orch := orchestrator.New(clients.Helper, clients.Answer, clients.Embedder, live, orchestrator.Config{
		Topic:         cfg.Topic,
		TopK:          cfg.Search.TopK,
		HistoryWindow: cfg.HistoryWindow,
	})
	return &Server{cfg: cfg, live: live, orch: orch}, nil
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /get_response", s.handleGetResponse)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", s.cfg.Port),
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		// Streaming answers can run long.
		WriteTimeout: 300 * time.Second,
	}

	go s.watchStore(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	docs, chunks := s.live.counts()
	log.Info().Int("port", s.cfg.Port).Int("documents", docs).Int("chunks", chunks).Msg("server starting")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type tokenLine struct {
	Token string `json:"token"`
}

func (s *Server) handleGetResponse(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()

	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}
	if err := models.Validate(req.History); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	log.Info().Str("request_id", reqID).Int("history", len(req.History)).Msg("query received")
	start := time.Now()

	// Headers are written lazily so a failure before the first token can
	// still produce a real error status.
	wroteAny := false
	enc := json.NewEncoder(w)
	emit := func(token string) error {
		if !wroteAny {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			wroteAny = true
		}
		if err := enc.Encode(tokenLine{Token: token}); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	// The request context cancels when the client disconnects, which stops
	// the model stream and releases the upstream connection.
	err := s.orch.Answer(r.Context(), req, emit)
	switch {
	case err == nil:
		log.Info().Str("request_id", reqID).Dur("elapsed", time.Since(start)).Msg("answer complete")
	case errors.Is(err, context.Canceled):
		log.Info().Str("request_id", reqID).Msg("client disconnected")
	case !wroteAny:
		log.Error().Err(err).Str("request_id", reqID).Msg("request failed")
		http.Error(w, "answer generation failed", http.StatusBadGateway)
	default:
		// Mid-stream failure: the client sees a truncated stream.
		log.Error().Err(err).Str("request_id", reqID).Msg("stream aborted")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	docs, chunks := s.live.counts()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"documents": docs,
		"chunks":    chunks,
	})
}

// watchStore reloads the snapshot when a rebuild renames a new store over
// the live path.
func (s *Server) watchStore(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn().Err(err).Msg("store watcher unavailable, restart to pick up rebuilds")
		return
	}
	defer watcher.Close()

	dir := filepath.Dir(s.cfg.StorePath)
	if err := watcher.Add(dir); err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("cannot watch store directory")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Name != s.cfg.StorePath {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// The rename is atomic, so the file is complete once it exists.
			snap, err := store.Open(s.cfg.StorePath, s.cfg.Debug)
			if err != nil {
				log.Error().Err(err).Msg("reloading store failed, keeping current snapshot")
				continue
			}
			s.live.swap(snap)
			log.Info().Int("documents", snap.DocumentCount()).Int("chunks", snap.ChunkCount()).Msg("store reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("store watcher error")
		}
	}
}
