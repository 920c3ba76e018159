package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"bpo-assigner/config"
	"bpo-assigner/formatter"
	"bpo-assigner/logging"
	"bpo-assigner/metrics"
	"bpo-assigner/processor"
	"bpo-assigner/server"
)

func main() {
	// Define flags
	input := flag.String("input", "", "Input roster, .xlsx or .csv (required unless -serve)")
	sheet := flag.String("sheet", "", "Workbook sheet to read (default: first sheet)")
	unreachable := flag.String("unreachable", "", "Optional unreachable-party list, .xlsx or .csv")
	absent := flag.String("absent", "", "Agent absent today")
	substitute := flag.String("substitute", "", "Name covering the absent agent's seat (empty removes the seat)")
	date := flag.String("date", "", "Run date yyyy-mm-dd (default: today)")
	configPath := flag.String("config", "", "Path to config.toml (default: $"+config.EnvConfigPath+")")
	outDir := flag.String("out-dir", ".", "Directory for the processed workbook and CSV")
	format := flag.String("format", "text", "Report format: text|json")
	metricsAddr := flag.String("metrics-addr", "", "Address to expose Prometheus metrics (e.g., :9090)")
	pushGateway := flag.String("push-url", "", "Pushgateway URL to push metrics to (e.g., http://localhost:9091)")
	wait := flag.Bool("wait", false, "Keep process running after completion to allow for metric scraping")
	serve := flag.Bool("serve", false, "Run the HTTP upload server instead of a single run")
	addr := flag.String("addr", "", "Listen address in -serve mode (default: config server.addr)")
	debug := flag.Bool("debug", false, "Development logging")

	// Parse command-line flags
	flag.Parse()

	logger, err := logging.New(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	if *serve {
		if *addr != "" {
			cfg.Server.Addr = *addr
		}
		if err := runServer(cfg, logger, *debug); err != nil {
			logger.Error("server stopped", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	// Start metrics server if address provided
	if *metricsAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
			fmt.Printf("Metrics server listening on %s/metrics\n", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
				fmt.Printf("Metrics server error: %v\n", err)
			}
		}()
	}

	// Validate required input flag
	if *input == "" {
		fmt.Println("Error: -input flag is required")
		fmt.Println("\nUsage:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	// Validate format enum
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[*format] {
		fmt.Printf("Error: format must be one of: text, json (got: %s)\n", *format)
		os.Exit(1)
	}

	runDate, err := parseRunDate(*date)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	// Open input files
	file, err := os.Open(*input)
	if err != nil {
		fmt.Printf("Error opening file: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	req := processor.Request{
		Input:      file,
		InputName:  filepath.Base(*input),
		Sheet:      *sheet,
		Absent:     *absent,
		Substitute: *substitute,
		RunDate:    runDate,
		// An unreadable list only disables the sentinel rule and is
		// reported as a warning.
		SentinelsPath: *unreachable,
	}

	out, err := processor.New(cfg, logger).Process(req)
	if err != nil {
		fmt.Printf("Error processing %s: %v\n", *input, err)
		os.Exit(1)
	}

	for _, a := range out.Artifacts {
		path := filepath.Join(*outDir, a.Name)
		if err := os.WriteFile(path, a.Data, 0o644); err != nil {
			fmt.Printf("Error writing %s: %v\n", path, err)
			os.Exit(1)
		}
	}

	// Output based on format
	switch *format {
	case "json":
		fmt.Println(formatter.FormatJSON(out.Report))
	default: // "text"
		fmt.Print(formatter.FormatText(out.Report))
	}

	// Handle metrics pushing or waiting
	if *pushGateway != "" {
		jobName := "bpo_assigner"
		if err := push.New(*pushGateway, jobName).Gatherer(metrics.Registry).Push(); err != nil {
			fmt.Fprintf(os.Stderr, "Error pushing to Pushgateway: %v\n", err)
		} else {
			fmt.Println("\nMetrics successfully pushed to Pushgateway")
		}
	}

	if *wait && *metricsAddr != "" {
		fmt.Println("\nProcess kept alive for metric scraping. Press Ctrl+C to exit.")
		// Wait for interrupt signal
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		fmt.Println("\nExiting...")
	}
}

func parseRunDate(raw string) (time.Time, error) {
	if raw == "" {
		now := time.Now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local), nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid -date %q, expected yyyy-mm-dd", raw)
	}
	return t, nil
}

// runServer serves until SIGINT/SIGTERM, then drains in-flight requests.
func runServer(cfg *config.AppConfig, logger *zap.Logger, debug bool) error {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}
	srv, err := server.New(cfg, logger)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
