package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ironsheep/stamp-detector/internal/config"
	"github.com/ironsheep/stamp-detector/internal/detector"
	"github.com/ironsheep/stamp-detector/internal/logging"
	"github.com/ironsheep/stamp-detector/internal/server"
	"github.com/sirupsen/logrus"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	mode := "mcp"

	// Handle --version and -v flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("stamp-detector %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			printHelp()
			return
		case "http", "mcp":
			mode = os.Args[1]
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q, see --help\n", os.Args[1])
			os.Exit(2)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		// logging is not configured yet
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Logging goes to stderr (stdout is for MCP protocol)
	logging.Setup(cfg.LogLevel)
	log := logrus.WithFields(logrus.Fields{"version": Version, "mode": mode})
	log.WithFields(logrus.Fields{"built": BuildTime, "commit": GitCommit}).Debug("Stamp detector starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	det := detector.New(cfg)
	if err := det.InitStamps(ctx, cfg.StampDir); err != nil {
		log.WithError(err).Warn("Starting without reference stamps")
	}
	log.WithFields(logrus.Fields{"dir": cfg.StampDir, "stamps": det.Store().Len()}).Info("Reference stamps loaded")

	switch mode {
	case "http":
		err = server.ListenAndServe(ctx, cfg.HTTPAddr, server.NewHTTPHandler(det), 15*time.Second)
	default:
		err = server.New(det, cfg, Version).Run(ctx)
	}
	if err != nil && ctx.Err() == nil {
		log.WithError(err).Fatal("Server error")
	}
}

func printHelp() {
	fmt.Println("stamp-detector - detect reference stamps in PDF, DOCX and image documents")
	fmt.Println()
	fmt.Println("Usage: stamp-detector [command] [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  mcp              Serve MCP over stdin/stdout (default)")
	fmt.Println("  http             Serve the HTTP upload API on STAMP_HTTP_ADDR")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version, -v    Print version information")
	fmt.Println("  --help, -h       Print this help message")
	fmt.Println()
	fmt.Println("Environment variables (also read from .env):")
	fmt.Println("  STAMP_DIR=public/stamps       Reference stamp directory")
	fmt.Println("  STAMP_LOG_LEVEL=debug         Enable debug logging")
	fmt.Println("  STAMP_HTTP_ADDR=:8080         HTTP listen address")
	fmt.Println("  TIME_BUDGET_MS=8000           Per-detection time budget")
	fmt.Println("  THRESHOLD_HI / THRESHOLD_LO   Decision thresholds (0.88 / 0.80)")
}
