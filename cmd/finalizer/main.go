// The finalizer completes the workflow items raised for settled
// agreements. It runs separately from the closer because the GUI
// raises the workflow events with a significant delay after an
// agreement is closed. Each run consumes the data batches the closer
// left behind and approves the matching workflow items in SO01.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agreement-closing/internal/closing/application"
	"agreement-closing/internal/closing/batchlog"
	"agreement-closing/internal/closing/metrics"
	"agreement-closing/internal/sapgui/olegui"
	"agreement-closing/internal/workflow"
)

const (
	appName    = "CS Agreement Closing Finalizer"
	appVersion = "2.0.20250310"
)

type config struct {
	configPath string
}

func main() {
	args := parseFlags()

	logDir := filepath.Join(getenvDefault("CLOSING_WORK_DIR", "."), "logs")
	logger, logFile, err := application.OpenRunLog(logDir, appName, appVersion)
	if err != nil {
		fmt.Fprintln(os.Stderr, "CRITICAL:", err)
		os.Exit(1)
	}

	code := run(context.Background(), logger, args)
	logger.Printf("=== System shutdown with return code: %d ===", code)
	logFile.Close()
	os.Exit(code)
}

// run returns the process exit code: 0 on success, 2 when the
// initialization fails, 3 when the batch processing fails.
func run(ctx context.Context, logger *log.Logger, args config) int {
	logger.Println("=== Initialization ===")

	cfg, err := application.LoadConfig(args.configPath)
	if err != nil {
		logger.Printf("CRITICAL: %v", err)
		return 2
	}
	batches, err := batchlog.NewStore(cfg.BatchDir())
	if err != nil {
		logger.Printf("CRITICAL: %v", err)
		return 2
	}
	fin, err := application.NewFinalizer(workflow.New(logger), batches, metrics.New(), logger)
	if err != nil {
		logger.Printf("CRITICAL: %v", err)
		return 2
	}

	logger.Println("Connecting to SAP ...")
	conn, err := olegui.Connect(cfg.GUI.System)
	if err != nil {
		logger.Printf("CRITICAL: %v", err)
		return 2
	}
	logger.Println("Connection created.")

	logger.Println("=== Initialization OK ===")
	logger.Println()

	if cfg.MetricsAddr != "" {
		go serveMetrics(logger, cfg.MetricsAddr)
	}

	code := 0
	logger.Println("=== Processing ===")
	if err := fin.Run(ctx, conn.Session()); err != nil {
		logger.Printf("ERROR: %v", err)
		logger.Println("=== Failure ===")
		logger.Println()
		code = 3
	} else {
		logger.Println("=== Processing OK ===")
		logger.Println()
	}

	logger.Println("=== Cleanup ===")
	logger.Println("Disconnecting from SAP ...")
	if err := conn.Close(); err != nil {
		logger.Printf("ERROR: %v", err)
	} else {
		logger.Println("Connection to SAP closed.")
	}
	logger.Println("=== Cleanup OK ===")
	logger.Println()
	return code
}

func serveMetrics(logger *log.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Printf("WARNING: metrics listener: %v", err)
	}
}

func parseFlags() config {
	var cfg config
	flag.StringVar(&cfg.configPath, "config", "", "path of the app config file")
	flag.Parse()
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
