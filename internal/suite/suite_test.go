package suite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veridata-io/veridata/internal/engine"
	"github.com/veridata-io/veridata/internal/result"
	"github.com/veridata-io/veridata/internal/validator"
)

const suiteYAML = `
suite_name: users_quality
engine: warehouse
table: users
expectations:
  - expectation_type: ColumnNotNull
    column: email
    severity: FAIL
    tags: [pii]
  - expectation_type: RowCountValidator
    min: 1
    where: "status = 'active'"
    severity: WARN
  - expectation_type: ColumnValueInSet
    column: status
    values: [active, inactive]
    allow_null: false
`

func testEngines(t *testing.T) map[string]engine.Engine {
	t.Helper()
	e, err := engine.NewSQLite("", engine.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	require.NoError(t, e.Seed(context.Background(),
		"CREATE TABLE users (id INTEGER, email TEXT, status TEXT)",
		"INSERT INTO users VALUES (1, 'a@x.io', 'active')",
	))
	return map[string]engine.Engine{"warehouse": e}
}

func TestParseAndBindSuite(t *testing.T) {
	s, err := ParseSuite([]byte(suiteYAML))
	require.NoError(t, err)
	assert.Equal(t, "users_quality", s.SuiteName)
	assert.Equal(t, "warehouse", s.Engine)
	require.Len(t, s.Expectations, 3)

	l := NewLoader(nil, testEngines(t))
	bindings, err := l.Bind(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, bindings, 3)

	assert.Equal(t, "warehouse", bindings[0].EngineName)
	assert.Equal(t, "users", bindings[0].Table)
	assert.Equal(t, "ColumnNotNull", bindings[0].Validator.Type())
	assert.Equal(t, result.SeverityWarn, bindings[1].Validator.Options().Severity)
	assert.Equal(t, "status = 'active'", bindings[1].Validator.Options().Where)
}

func TestBindUnknownExpectationType(t *testing.T) {
	s := &Suite{
		SuiteName: "s", Engine: "warehouse", Table: "users",
		Expectations: []validator.Config{{Type: "NoSuchValidator"}},
	}
	l := NewLoader(nil, testEngines(t))
	_, err := l.Bind(context.Background(), s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfig))

	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "s", cerr.Suite)
}

func TestBindUnknownColumn(t *testing.T) {
	s := &Suite{
		SuiteName: "s", Engine: "warehouse", Table: "users",
		Expectations: []validator.Config{{Type: "ColumnNotNull", Column: "nope"}},
	}
	l := NewLoader(nil, testEngines(t))
	_, err := l.Bind(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestBindUnknownEngine(t *testing.T) {
	s := &Suite{SuiteName: "s", Engine: "missing", Table: "users"}
	l := NewLoader(nil, testEngines(t))
	_, err := l.Bind(context.Background(), s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfig))
}

func TestBindBadRegexRejectedAtLoad(t *testing.T) {
	s := &Suite{
		SuiteName: "s", Engine: "warehouse", Table: "users",
		Expectations: []validator.Config{{Type: "ColumnMatchesRegex", Column: "email", Pattern: "(["}},
	}
	l := NewLoader(nil, testEngines(t))
	_, err := l.Bind(context.Background(), s)
	require.Error(t, err)
}

func TestLoadSuiteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.yaml")
	require.NoError(t, os.WriteFile(path, []byte(suiteYAML), 0644))

	l := NewLoader(nil, testEngines(t))
	s, bindings, err := l.LoadSuiteFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "users_quality", s.SuiteName)
	assert.Len(t, bindings, 3)
}

func TestParseSLA(t *testing.T) {
	doc := `
sla_name: nightly
suites:
  - suite_name: a
    engine: warehouse
    table: users
    expectations:
      - expectation_type: ColumnNotNull
        column: email
`
	sla, err := ParseSLA([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "nightly", sla.SLAName)
	require.Len(t, sla.Suites, 1)

	l := NewLoader(nil, testEngines(t))
	bound, err := l.BindSLA(context.Background(), sla)
	require.NoError(t, err)
	assert.Len(t, bound["a"], 1)
}
