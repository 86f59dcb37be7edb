package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridata-io/veridata/internal/engine"
	"github.com/veridata-io/veridata/internal/result"
	"github.com/veridata-io/veridata/internal/runner"
	"github.com/veridata-io/veridata/internal/store"
	"github.com/veridata-io/veridata/internal/suite"
)

type stubRunner struct {
	lastSuite string
}

func (s *stubRunner) RunSuite(ctx context.Context, suiteName string, bindings []runner.Binding) (result.RunMetadata, []result.ValidationResult, error) {
	s.lastSuite = suiteName
	run := result.NewRun(suiteName, "", "run-stub")
	run.Finish(result.RunComplete)
	return run, []result.ValidationResult{{
		RunID:         run.RunID,
		ValidatorType: "ColumnNotNull",
		EngineName:    "db",
		Table:         "users",
		Status:        result.StatusPass,
		Severity:      result.SeverityFail,
		StartedAt:     time.Now().UTC(),
	}}, nil
}

func testServer(t *testing.T) (*Server, *store.DBStore, string, *stubRunner) {
	t.Helper()
	db, err := store.NewDBStore("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	e, err := engine.NewSQLite("", engine.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	require.NoError(t, e.Seed(context.Background(),
		"CREATE TABLE users (id INTEGER, email TEXT)",
		"INSERT INTO users VALUES (1, 'a@x.io')",
	))

	loader := suite.NewLoader(nil, map[string]engine.Engine{"db": e})
	dir := t.TempDir()
	runs := &stubRunner{}
	return NewServer(db, loader, runs, dir, nil, nil), db, dir, runs
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	s.Routes().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	s, _, _, _ := testServer(t)
	w := doRequest(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListRunsEmpty(t *testing.T) {
	s, _, _, _ := testServer(t)
	w := doRequest(t, s, http.MethodGet, "/runs", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Runs []result.RunMetadata `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Empty(t, body.Runs)
}

func TestGetRunRoundTrip(t *testing.T) {
	s, db, _, _ := testServer(t)
	run := result.NewRun("users_suite", "", "run-7")
	run.Finish(result.RunComplete)
	require.NoError(t, db.PersistRun(context.Background(), run, []result.ValidationResult{{
		RunID: "run-7", ValidatorType: "ColumnNotNull", EngineName: "db", Table: "users",
		Status: result.StatusPass, Severity: result.SeverityFail, StartedAt: run.StartedAt,
	}}, nil))

	w := doRequest(t, s, http.MethodGet, "/runs/run-7", "")
	require.Equal(t, http.StatusOK, w.Code)

	var rec store.RunRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, "users_suite", rec.Run.SuiteName)
	require.Len(t, rec.Results, 1)
}

func TestGetRunNotFound(t *testing.T) {
	s, _, _, _ := testServer(t)
	w := doRequest(t, s, http.MethodGet, "/runs/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTriggerRun(t *testing.T) {
	s, _, dir, runs := testServer(t)
	doc := "suite_name: users_suite\nengine: db\ntable: users\nexpectations:\n" +
		"  - expectation_type: ColumnNotNull\n    column: email\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "users_suite.yaml"), []byte(doc), 0644))

	w := doRequest(t, s, http.MethodPost, "/runs/users_suite", "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "users_suite", runs.lastSuite)

	var rec store.RunRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, "run-stub", rec.Run.RunID)
}

func TestTriggerRunUnknownSuite(t *testing.T) {
	s, _, _, _ := testServer(t)
	w := doRequest(t, s, http.MethodPost, "/runs/ghost", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSaveAndListSuites(t *testing.T) {
	s, _, _, _ := testServer(t)
	doc := map[string]any{
		"suite_name": "users_suite",
		"engine":     "db",
		"table":      "users",
		"expectations": []map[string]any{
			{"expectation_type": "ColumnNotNull", "column": "email"},
		},
	}
	payload, err := json.Marshal(doc)
	require.NoError(t, err)

	w := doRequest(t, s, http.MethodPost, "/suites", string(payload))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doRequest(t, s, http.MethodGet, "/suites", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Suites []string `json:"suites"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{"users_suite"}, body.Suites)
}

func TestSaveSuiteRejectsBadConfig(t *testing.T) {
	s, _, _, _ := testServer(t)
	doc := map[string]any{
		"suite_name": "bad",
		"engine":     "db",
		"table":      "users",
		"expectations": []map[string]any{
			{"expectation_type": "NoSuch"},
		},
	}
	payload, _ := json.Marshal(doc)
	w := doRequest(t, s, http.MethodPost, "/suites", string(payload))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
