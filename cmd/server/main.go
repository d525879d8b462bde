package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Brownie44l1/blight-api/internal/config"
	"github.com/Brownie44l1/blight-api/internal/handlers"
	"github.com/Brownie44l1/blight-api/internal/history"
	"github.com/Brownie44l1/blight-api/internal/inference"
	"github.com/Brownie44l1/blight-api/internal/knowledge"
	"github.com/Brownie44l1/blight-api/internal/model"
	"github.com/Brownie44l1/blight-api/internal/preprocess"
)

func main() {
	var envFile string
	flag.StringVar(&envFile, "env", "", "path to load env from")
	flag.Parse()

	if err := config.LoadEnvFile(envFile); err != nil {
		log.Fatalf("%v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("%v", err)
	}
	slog.SetDefault(cfg.Logger(os.Stderr))

	metadata, err := model.LoadMetadata(cfg.MetadataPath)
	if err != nil {
		log.Fatalf("Failed to load model metadata: %v", err)
	}

	log.Printf("Loading model from: %s", cfg.ModelPath)

	engine := model.NewEngine(metadata, cfg.InferenceTimeout)
	if err := engine.Load(model.NewOnnxLoader(cfg.ModelPath, cfg.OnnxLibPath)); err != nil {
		slog.Error("model failed to load, predictions will be rejected", "path", cfg.ModelPath, "error", err)
	} else {
		log.Printf("Model loaded: %s", cfg.ModelPath)
	}
	defer engine.Close()

	kb := knowledge.Default()
	if missing := kb.Missing(metadata.Classes); len(missing) > 0 {
		slog.Warn("classes without reference info", "classes", missing)
	}

	store := history.NewStore()
	svc := inference.NewService(engine, preprocess.New(metadata, preprocess.WithMaxPixels(cfg.MaxImagePixels)), kb, store, metadata.Classes)
	handler := handlers.NewHandler(svc, store, kb, engine, cfg.MaxUploadBytes)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handlers.NewRouter(handler),
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Printf("Server forced to shutdown: %v", err)
		}
	}()

	log.Printf("Server starting on port %s", cfg.Port)
	log.Printf("Classes: %v", metadata.Classes)
	log.Println("Endpoints:")
	log.Println("  GET  /health   - Health check and model status")
	log.Println("  POST /predict  - Classify an uploaded leaf image (field 'file')")
	log.Println("  GET  /history  - Past predictions, newest first")
	log.Println("  GET  /diseases - Reference info per class")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("Server failed: %v", err)
		return
	}
}
