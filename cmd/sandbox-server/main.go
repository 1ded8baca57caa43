// Command sandbox-server is a mock container file service for local
// development. It serves the container file endpoints the engine's
// annotation resolver downloads from, backed by an in-memory file set,
// and can simulate container expiry to exercise the stale-container
// retry path.
//
// Configuration (environment variables):
//
//	SANDBOX_PORT           listen port (default 9091)
//	SANDBOX_CONTAINER_TTL  container lifetime, e.g. "2m"; requests for
//	                       a container older than the TTL return the
//	                       expired-container error (default: never)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

func main() {
	port := os.Getenv("SANDBOX_PORT")
	if port == "" {
		port = "9091"
	}

	var ttl time.Duration
	if raw := os.Getenv("SANDBOX_CONTAINER_TTL"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			slog.Error("invalid SANDBOX_CONTAINER_TTL", "value", raw, "error", err)
			os.Exit(1)
		}
		ttl = parsed
	}

	store := newContainerStore(ttl)
	store.seed()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /containers/{containerID}/files/content", store.handleDownloadByPath)
	mux.HandleFunc("GET /containers/{containerID}/files/{fileID}/content", store.handleDownloadByID)
	mux.HandleFunc("PUT /containers/{containerID}/files/{fileID}", store.handleUpload)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, `{"status":"ok"}`)
	})

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("mock sandbox server listening", "addr", srv.Addr, "container_ttl", ttl)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown failed", "error", err)
		}
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}
}

// containerStore holds per-container files. Containers are created
// lazily on first access and expire after the configured TTL.
type containerStore struct {
	mu         sync.Mutex
	ttl        time.Duration
	containers map[string]*container
}

type container struct {
	createdAt time.Time
	byID      map[string][]byte
	byPath    map[string][]byte
}

func newContainerStore(ttl time.Duration) *containerStore {
	return &containerStore{
		ttl:        ttl,
		containers: make(map[string]*container),
	}
}

// seed installs a default container with a few files so the server is
// useful without any setup.
func (s *containerStore) seed() {
	c := s.lookup("cntr_demo")
	c.byID["file_chart"] = []byte("PNG mock bytes: revenue chart")
	c.byPath["/mnt/data/report.csv"] = []byte("quarter,revenue\nQ1,100\nQ2,120\n")
	c.byPath["/mnt/data/summary.txt"] = []byte("Revenue grew 20% quarter over quarter.\n")
}

// lookup returns the container, creating it if absent. Callers hold no
// lock; lookup acquires it.
func (s *containerStore) lookup(id string) *container {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.containers[id]
	if !ok {
		c = &container{
			createdAt: time.Now(),
			byID:      make(map[string][]byte),
			byPath:    make(map[string][]byte),
		}
		s.containers[id] = c
	}
	return c
}

func (s *containerStore) expired(c *container) bool {
	return s.ttl > 0 && time.Since(c.createdAt) > s.ttl
}

func (s *containerStore) handleDownloadByID(w http.ResponseWriter, r *http.Request) {
	containerID := r.PathValue("containerID")
	fileID := r.PathValue("fileID")

	c := s.lookup(containerID)
	if s.expired(c) {
		writeExpired(w, containerID)
		return
	}

	s.mu.Lock()
	data, ok := c.byID[fileID]
	s.mu.Unlock()
	if !ok {
		writeFileError(w, http.StatusNotFound, "file_not_found",
			fmt.Sprintf("file %s not found in container %s", fileID, containerID))
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

func (s *containerStore) handleDownloadByPath(w http.ResponseWriter, r *http.Request) {
	containerID := r.PathValue("containerID")
	path := r.URL.Query().Get("path")
	if path == "" {
		writeFileError(w, http.StatusBadRequest, "missing_path", "query parameter 'path' is required")
		return
	}

	c := s.lookup(containerID)
	if s.expired(c) {
		writeExpired(w, containerID)
		return
	}

	s.mu.Lock()
	data, ok := c.byPath[path]
	s.mu.Unlock()
	if !ok {
		writeFileError(w, http.StatusNotFound, "file_not_found",
			fmt.Sprintf("path %s not found in container %s", path, containerID))
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

// handleUpload lets tests and demos place files into a container. The
// optional "path" query also registers the content under a sandbox
// path.
func (s *containerStore) handleUpload(w http.ResponseWriter, r *http.Request) {
	containerID := r.PathValue("containerID")
	fileID := r.PathValue("fileID")

	data, err := io.ReadAll(io.LimitReader(r.Body, 64<<20))
	if err != nil {
		writeFileError(w, http.StatusBadRequest, "read_failed", "could not read request body")
		return
	}

	c := s.lookup(containerID)
	s.mu.Lock()
	c.byID[fileID] = data
	if path := r.URL.Query().Get("path"); path != "" {
		c.byPath[path] = data
	}
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

// writeExpired emits the stale-container shape the engine's file
// client detects: a 404 whose error code is container_expired.
func writeExpired(w http.ResponseWriter, containerID string) {
	writeFileError(w, http.StatusNotFound, "container_expired",
		fmt.Sprintf("container %s has expired", containerID))
}

func writeFileError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
