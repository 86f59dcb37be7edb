// Command veridata runs data-quality suites from the command line or serves
// the HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/veridata-io/veridata/applications/httpapi"
	"github.com/veridata-io/veridata/internal/app"
	"github.com/veridata-io/veridata/internal/config"
	"github.com/veridata-io/veridata/internal/result"
	"github.com/veridata-io/veridata/pkg/metrics"
)

func main() {
	serve := flag.Bool("serve", false, "start the HTTP API instead of running once")
	suitePath := flag.String("suite", "", "run a single suite file and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "veridata: %v\n", err)
		os.Exit(2)
	}

	a, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "veridata: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	code := 0
	if *serve {
		runServer(ctx, a)
	} else {
		code = runOnce(ctx, a, *suitePath)
	}
	stop()
	a.Close()
	os.Exit(code)
}

func runServer(ctx context.Context, a *app.App) {
	var querier httpapi.RunQuerier
	if db := a.DBStore(); db != nil {
		querier = db
	}
	server := httpapi.NewServer(querier, a.Loader, a, a.Config.SuiteDir, metrics.Handler(), a.Log)
	srv := &http.Server{Addr: a.Config.ListenAddr, Handler: server.Routes()}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	a.Log.Infof("listening on %s", a.Config.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		a.Log.Errorf("http server: %v", err)
	}
}

// runOnce executes either one suite file or every suite in the suite
// directory. Exit code 1 signals at least one FAIL-severity failure or
// error; 2 signals a configuration or execution problem.
func runOnce(ctx context.Context, a *app.App, suitePath string) int {
	paths := []string{suitePath}
	if suitePath == "" {
		var err error
		paths, err = suiteFiles(a.Config.SuiteDir)
		if err != nil {
			a.Log.Errorf("%v", err)
			return 2
		}
		if len(paths) == 0 {
			a.Log.Warnf("no suites found in %s", a.Config.SuiteDir)
			return 0
		}
	}

	exit := 0
	for _, path := range paths {
		doc, bindings, err := a.Loader.LoadSuiteFile(ctx, path)
		if err != nil {
			a.Log.Errorf("load %s: %v", path, err)
			return 2
		}
		run, results, err := a.RunSuite(ctx, doc.SuiteName, bindings)
		if err != nil {
			a.Log.Errorf("run %s: %v", doc.SuiteName, err)
			return 2
		}
		for _, res := range results {
			logResult(a, res)
			if res.Status != result.StatusPass && res.Severity == result.SeverityFail {
				exit = 1
			}
		}
		a.Log.Infof("suite %s: run %s finished %s", doc.SuiteName, run.RunID, run.Status)
	}
	return exit
}

func logResult(a *app.App, res result.ValidationResult) {
	entry := a.Log.WithField("validator", res.ValidatorType).
		WithField("table", res.Table).
		WithField("status", string(res.Status))
	switch res.Status {
	case result.StatusPass:
		entry.Debug("expectation held")
	case result.StatusFail:
		entry.Warnf("expectation failed: %s", res.ErrorMessage)
	default:
		entry.Errorf("expectation errored: %s", res.ErrorMessage)
	}
}

func suiteFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read suite directory %q: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext := filepath.Ext(e.Name()); ext == ".yaml" || ext == ".yml" {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	return paths, nil
}
