package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/woxQAQ/umdpack/internal/bundle"
	"github.com/woxQAQ/umdpack/internal/config"
	"github.com/woxQAQ/umdpack/internal/descriptor"
	"github.com/woxQAQ/umdpack/internal/loadcheck"
	"go.uber.org/zap"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "Path to configuration file")
	descriptorPath := flag.String("descriptor", "", "Path to build descriptor (default build.yaml)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	verify := flag.Bool("verify", false, "Load the artifact under every module convention after building")
	metafile := flag.String("metafile", "", "Write an esbuild-style metafile to this path")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadToolConfig(*configPath)
	if err != nil {
		bootstrap, _ := zap.NewProduction()
		bootstrap.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Flags win over the config file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "descriptor":
			cfg.Descriptor = *descriptorPath
		case "log-level":
			cfg.LogLevel = *logLevel
		case "verify":
			cfg.Verify = *verify
		case "metafile":
			cfg.Metafile = *metafile
		}
	})

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("Starting umdpack",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("date", date),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("umdpack failed", zap.Error(err))
	}
}

// run performs one build. Every resource it opens is released before it
// returns, including on error.
func run(ctx context.Context, cfg *config.ToolConfig, logger *zap.Logger) error {
	d, err := descriptor.ParseDescriptor(cfg.Descriptor)
	if err != nil {
		return fmt.Errorf("failed to load build descriptor: %w", err)
	}

	bundler, err := bundle.NewBundler(ctx, d, bundle.Options{
		ValidateWasm:    cfg.Wasm.Validate,
		WasmMemoryPages: cfg.Wasm.MemoryPages,
		WasmDebug:       cfg.Wasm.Debug,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create bundler: %w", err)
	}
	defer func() {
		if err := bundler.Close(ctx); err != nil {
			logger.Warn("Failed to close bundler", zap.Error(err))
		}
	}()

	result, err := bundler.Build(ctx)
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	if cfg.Metafile != "" {
		if err := bundle.WriteMetafile(result, d.Dir(), cfg.Metafile); err != nil {
			return fmt.Errorf("failed to write metafile: %w", err)
		}
		logger.Info("Metafile written", zap.String("path", cfg.Metafile))
	}

	if cfg.Verify {
		checker := loadcheck.NewChecker(loadcheck.Options{
			Library:         d.Output.Library,
			ModulesDir:      d.ModulesDir(),
			Externals:       result.Externals,
			WasmMemoryPages: cfg.Wasm.MemoryPages,
			WasmDebug:       cfg.Wasm.Debug,
		}, logger)
		if _, err := checker.CheckAll(ctx, result.OutputPath); err != nil {
			return fmt.Errorf("artifact verification failed: %w", err)
		}
	}

	logger.Info("Build complete",
		zap.String("output", result.OutputPath),
		zap.Int("bytes", result.Bytes),
		zap.String("sha256", result.SHA256),
	)
	return nil
}

func newLogger(level string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if level == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		zcfg := zap.NewProductionConfig()
		if lvl, perr := zap.ParseAtomicLevel(level); perr == nil {
			zcfg.Level = lvl
		}
		logger, err = zcfg.Build()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
