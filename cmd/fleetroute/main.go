// Command fleetroute solves a routing problem from a JSON file and writes
// the solution to stdout. Intended for batch runs and for exercising the
// engine against real problem dumps.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"fleetroute"
	"fleetroute/config"
	"fleetroute/internal/buildinfo"
	"fleetroute/logging"
	"fleetroute/metrics"
	"fleetroute/model"
	"fleetroute/solver"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to fleetroute.yaml")
		problemPath = flag.String("problem", "-", "problem JSON file, - for stdin")
		kind        = flag.String("solver", "auto", "solver kind: auto, greedy, genetic, httpvrp")
		timeout     = flag.Duration("timeout", 5*time.Minute, "solve deadline")
		metricsAddr = flag.String("metrics-addr", "", "serve Prometheus metrics on this address while solving")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		for k, v := range buildinfo.Info() {
			fmt.Printf("%s: %s\n", k, v)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format)
	defer log.Sync()

	problem, err := readProblem(*problemPath)
	if err != nil {
		log.Fatal("read problem", zap.Error(err))
	}

	if *metricsAddr != "" {
		go func() {
			handler := promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})
			mux := http.NewServeMux()
			mux.Handle("/metrics", handler)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Warn("metrics listener stopped", zap.Error(err))
			}
		}()
	}

	eng := fleetroute.New(cfg, log)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	res, err := eng.SolveWith(ctx, problem, solver.Kind(*kind))
	if err != nil {
		log.Fatal("solve failed", zap.Error(err))
	}
	log.Info("solved",
		zap.String("solver", res.SolverUsed),
		zap.Int("routes", len(res.Routes)),
		zap.Int("unassigned", len(res.UnassignedJobs)),
		zap.Float64("quality", res.QualityScore),
		zap.Int64("ms", res.ComputationMS))

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		log.Fatal("encode solution", zap.Error(err))
	}
}

func readProblem(path string) (*model.RoutingProblem, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var p model.RoutingProblem
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode problem json: %w", err)
	}
	return &p, nil
}
