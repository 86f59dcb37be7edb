// Package httpapi exposes the validation service over HTTP: run history,
// suite management and on-demand suite execution.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/veridata-io/veridata/internal/result"
	"github.com/veridata-io/veridata/internal/runner"
	"github.com/veridata-io/veridata/internal/store"
	"github.com/veridata-io/veridata/internal/suite"
	"github.com/veridata-io/veridata/pkg/logger"
)

// RunQuerier is the read side of the result store the API serves from.
type RunQuerier interface {
	ListRuns(ctx context.Context, limit int) ([]result.RunMetadata, error)
	GetRun(ctx context.Context, runID string) (*store.RunRecord, error)
}

// SuiteRunner executes one bound suite and persists the outcome.
type SuiteRunner interface {
	RunSuite(ctx context.Context, suiteName string, bindings []runner.Binding) (result.RunMetadata, []result.ValidationResult, error)
}

// Server bundles the HTTP endpoints.
type Server struct {
	querier  RunQuerier
	loader   *suite.Loader
	runs     SuiteRunner
	suiteDir string
	log      *logger.Logger
	metrics  http.Handler
}

// NewServer wires the handler set. querier may be nil when no queryable
// store is configured; the run-history endpoints then return 503.
func NewServer(querier RunQuerier, loader *suite.Loader, runs SuiteRunner, suiteDir string, metricsHandler http.Handler, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		querier:  querier,
		loader:   loader,
		runs:     runs,
		suiteDir: suiteDir,
		log:      log,
		metrics:  metricsHandler,
	}
}

// Routes registers every endpoint on a fresh mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /runs", s.handleListRuns)
	mux.HandleFunc("GET /runs/{id}", s.handleGetRun)
	mux.HandleFunc("POST /runs/{suite}", s.handleTriggerRun)
	mux.HandleFunc("GET /suites", s.handleListSuites)
	mux.HandleFunc("POST /suites", s.handleSaveSuite)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.querier == nil {
		writeError(w, http.StatusServiceUnavailable, "no queryable result store configured")
		return
	}
	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := s.querier.ListRuns(r.Context(), limit)
	if err != nil {
		s.log.Errorf("list runs: %v", err)
		writeError(w, http.StatusInternalServerError, "list runs failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.querier == nil {
		writeError(w, http.StatusServiceUnavailable, "no queryable result store configured")
		return
	}
	rec, err := s.querier.GetRun(r.Context(), r.PathValue("id"))
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.log.Errorf("get run: %v", err)
		writeError(w, http.StatusInternalServerError, "get run failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("suite")
	path, err := s.suitePath(name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	doc, bindings, err := s.loader.LoadSuiteFile(r.Context(), path)
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, "unknown suite "+name)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	run, results, err := s.runs.RunSuite(r.Context(), doc.SuiteName, bindings)
	if err != nil {
		s.log.Errorf("run suite %s: %v", name, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, store.RunRecord{Run: run, Results: results})
}

func (s *Server) handleListSuites(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.suiteDir)
	if err != nil {
		if os.IsNotExist(err) {
			writeJSON(w, http.StatusOK, map[string]any{"suites": []string{}})
			return
		}
		s.log.Errorf("list suites: %v", err)
		writeError(w, http.StatusInternalServerError, "list suites failed")
		return
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if ext := filepath.Ext(name); ext == ".yaml" || ext == ".yml" {
			names = append(names, strings.TrimSuffix(name, ext))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"suites": names})
}

func (s *Server) handleSaveSuite(w http.ResponseWriter, r *http.Request) {
	var doc suite.Suite
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid suite document: "+err.Error())
		return
	}
	if _, err := s.loader.Bind(r.Context(), &doc); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	path, err := s.suitePath(doc.SuiteName)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	data, err := yaml.Marshal(&doc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode suite failed")
		return
	}
	if err := os.MkdirAll(s.suiteDir, 0755); err != nil {
		s.log.Errorf("save suite: %v", err)
		writeError(w, http.StatusInternalServerError, "save suite failed")
		return
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		s.log.Errorf("save suite: %v", err)
		writeError(w, http.StatusInternalServerError, "save suite failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"suite": doc.SuiteName})
}

// suitePath maps a suite name onto the suite directory, refusing anything
// that would escape it.
func (s *Server) suitePath(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid suite name %q", name)
	}
	return filepath.Join(s.suiteDir, name+".yaml"), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
