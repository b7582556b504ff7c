package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Brownie44l1/digit-api/internal/app"
	"github.com/Brownie44l1/digit-api/internal/config"
	"github.com/Brownie44l1/digit-api/internal/handlers"
	"github.com/Brownie44l1/digit-api/internal/logger"
	"github.com/Brownie44l1/digit-api/internal/model"
	"github.com/Brownie44l1/digit-api/internal/preprocess"
	"github.com/Brownie44l1/digit-api/internal/web"
)

func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func main() {
	var overrides config.Overrides
	flag.IntVar(&overrides.Port, "port", 0, "HTTP port (overrides PORT)")
	flag.StringVar(&overrides.ModelDir, "models", "", "directory holding <name>.onnx files (overrides MODEL_DIR)")
	flag.StringVar(&overrides.ModelName, "model", "", "model loaded at startup (overrides MODEL_NAME)")
	flag.StringVar(&overrides.OnnxLibrary, "onnxruntime", "", "path to the onnxruntime shared library (overrides ONNXRUNTIME_LIB)")
	flag.StringVar(&overrides.Resampler, "resampler", "", "resampling filter (overrides RESAMPLER)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.ApplyOverrides(overrides)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logs, err := logger.New(cfg.LogDirectory)
	if err != nil {
		log.Fatalf("Failed to open logs: %v", err)
	}
	defer logs.Close()

	prep, err := preprocess.New(cfg.Resampler)
	if err != nil {
		logs.Error("Failed to configure preprocessing: %v", err)
		os.Exit(1)
	}

	runtime := model.NewRuntime(cfg.ModelDir, cfg.OnnxLibrary)
	defer runtime.Close()
	loader := app.LoaderFunc(runtime.LoadClassifier)

	shared := app.NewController(loader, prep, app.LogReporter{Logger: logs, Prefix: "api "}, app.Options{
		CanvasSize: cfg.CanvasSize,
		BrushWidth: cfg.BrushWidth,
		Logger:     logs,
	})
	defer shared.Close()

	logs.Info("Loading model %s from %s", cfg.ModelName, cfg.ModelDir)
	if err := shared.LoadModel(context.Background(), cfg.ModelName); err != nil {
		// The server stays up; the model can be selected later through /models.
		logs.Warning("Startup model unavailable: %v", err)
	}

	handler := handlers.NewHandler(shared, runtime, cfg.MaxUploadBytes, logs)
	sessions := handlers.NewSessions(loader, prep, runtime, handlers.SessionConfig{
		CanvasSize:   cfg.CanvasSize,
		BrushWidth:   cfg.BrushWidth,
		DefaultModel: cfg.ModelName,
	}, logs)
	defer sessions.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", enableCORS(handler.Health))
	mux.HandleFunc("/models", enableCORS(handler.Models))
	mux.HandleFunc("/predict", enableCORS(handler.Predict))
	mux.HandleFunc("/predict/image", enableCORS(handler.PredictFromImage))
	mux.Handle("/ws", sessions)
	mux.Handle("/", web.Handler())

	port := strconv.Itoa(cfg.Port)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logs.Info("Server starting on port %s", port)
	logs.Info("Resampler: %s", prep.Filter())
	logs.Info("Endpoints:")
	logs.Info("  GET  /              - Drawing page")
	logs.Info("  GET  /ws            - Interactive drawing session")
	logs.Info("  GET  /health        - Health check")
	logs.Info("  GET  /models        - List models")
	logs.Info("  POST /models        - Select model")
	logs.Info("  POST /predict       - Raw array prediction")
	logs.Info("  POST /predict/image - Predict from image upload")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logs.Error("Server failed: %v", err)
		}
	case <-ctx.Done():
		logs.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logs.Error("Shutdown: %v", err)
		}
	}
}
