// Package app wires configuration, engines, stores and the runner into the
// running application.
package app

import (
	"context"
	"fmt"

	"github.com/veridata-io/veridata/internal/config"
	"github.com/veridata-io/veridata/internal/engine"
	"github.com/veridata-io/veridata/internal/result"
	"github.com/veridata-io/veridata/internal/runner"
	"github.com/veridata-io/veridata/internal/stats"
	"github.com/veridata-io/veridata/internal/store"
	"github.com/veridata-io/veridata/internal/suite"
	"github.com/veridata-io/veridata/pkg/logger"
	"github.com/veridata-io/veridata/pkg/metrics"
)

// App owns every long-lived component of the service.
type App struct {
	Config  *config.Config
	Log     *logger.Logger
	Engines map[string]engine.Engine
	Runner  *runner.Runner
	Loader  *suite.Loader
	Stats   *stats.Collector

	store   result.Store
	dbStore *store.DBStore
}

// New builds the application from configuration.
func New(cfg *config.Config) (*App, error) {
	log := logger.New(cfg.Log)

	engines, err := openEngines(cfg, log)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:  cfg,
		Log:     log,
		Engines: engines,
		Loader:  suite.NewLoader(nil, engines),
		Stats:   stats.NewCollector(nil),
	}

	switch cfg.StoreKind {
	case config.StoreDB:
		db, err := store.NewDBStore(cfg.StorePath, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.store = db
		a.dbStore = db
	case config.StoreFile:
		fs, err := store.NewFileStore(cfg.StorePath, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.store = fs
	}

	var history result.History
	if a.dbStore != nil {
		history = a.dbStore
	}
	a.Runner = runner.New(engines, runner.Options{
		History:        history,
		BindingTimeout: cfg.BindingTimeout,
		Logger:         log,
		Recorder:       metrics.Recorder{},
	})
	return a, nil
}

// DBStore returns the queryable store, or nil when a different store kind is
// configured.
func (a *App) DBStore() *store.DBStore { return a.dbStore }

// RunSuite executes bound expectations, persists the outcome and collects
// column statistics for every table the suite touched.
func (a *App) RunSuite(ctx context.Context, suiteName string, bindings []runner.Binding) (result.RunMetadata, []result.ValidationResult, error) {
	run, results, err := a.Runner.Run(ctx, suiteName, "", "", bindings)
	if err != nil {
		return run, results, err
	}
	if a.store == nil {
		return run, results, nil
	}

	if err := a.store.PersistRun(ctx, run, results, nil); err != nil {
		return run, results, fmt.Errorf("persist run %s: %w", run.RunID, err)
	}
	if collected := a.collectStats(ctx, bindings); len(collected) > 0 {
		if err := a.store.PersistStats(ctx, run, collected); err != nil {
			return run, results, fmt.Errorf("persist statistics of run %s: %w", run.RunID, err)
		}
	}
	return run, results, nil
}

func (a *App) collectStats(ctx context.Context, bindings []runner.Binding) []result.ColumnStat {
	seen := make(map[[2]string]struct{})
	var out []result.ColumnStat
	for _, b := range bindings {
		key := [2]string{b.EngineName, b.Table}
		if _, done := seen[key]; done {
			continue
		}
		seen[key] = struct{}{}
		eng, ok := a.Engines[b.EngineName]
		if !ok {
			continue
		}
		collected, err := a.Stats.Collect(ctx, b.EngineName, eng, b.Table)
		if err != nil {
			a.Log.Warnf("collect statistics for %s.%s: %v", b.EngineName, b.Table, err)
			continue
		}
		out = append(out, collected...)
	}
	return out
}

// Close releases engines and the store.
func (a *App) Close() {
	for name, eng := range a.Engines {
		if err := eng.Close(); err != nil {
			a.Log.Warnf("close engine %s: %v", name, err)
		}
	}
	if a.dbStore != nil {
		if err := a.dbStore.Close(); err != nil {
			a.Log.Warnf("close result store: %v", err)
		}
	}
}

func openEngines(cfg *config.Config, log *logger.Logger) (map[string]engine.Engine, error) {
	engines := make(map[string]engine.Engine, len(cfg.Engines))
	closeAll := func() {
		for _, e := range engines {
			e.Close()
		}
	}
	for _, ec := range cfg.Engines {
		opts := engine.Options{
			PoolSize:    ec.PoolSize,
			PoolTimeout: ec.PoolTimeout,
			Logger:      log,
		}
		var (
			eng engine.Engine
			err error
		)
		switch ec.Kind {
		case config.KindSQLite:
			eng, err = engine.NewSQLite(ec.Path, opts)
		case config.KindFile:
			view := ec.View
			if view == "" {
				view = ec.Name
			}
			eng, err = engine.NewFileEngine(view, ec.Pattern, opts)
		case config.KindPostgres:
			eng, err = engine.NewPostgres(ec.DSN, opts)
		default:
			err = fmt.Errorf("unknown engine kind %q", ec.Kind)
		}
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("open engine %q: %w", ec.Name, err)
		}
		engines[ec.Name] = eng
	}
	return engines, nil
}
