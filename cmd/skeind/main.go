// skeind is the skein daemon: an HTTP API that turns raw brain dumps into
// living idea threads.
//
// A dump is segmented into topic-coherent excerpts, each excerpt is embedded
// and clustered onto an idea thread, and every touched thread gets a fresh
// synthesis (title, summary, lifecycle state, momentum) plus rediscovered
// similarity edges to other threads.
//
// External dependencies:
//   - SQLite (embedded, via go-sqlite3 + sqlite-vec)
//   - an OpenAI-compatible chat API (for segmentation and synthesis)
//   - Ollama (for embeddings)
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skeinhq/skein/internal/cluster"
	"github.com/skeinhq/skein/internal/config"
	"github.com/skeinhq/skein/internal/edges"
	"github.com/skeinhq/skein/internal/llm"
	"github.com/skeinhq/skein/internal/pipeline"
	"github.com/skeinhq/skein/internal/segment"
	"github.com/skeinhq/skein/internal/server"
	"github.com/skeinhq/skein/internal/store"
	"github.com/skeinhq/skein/internal/synth"
	"github.com/skeinhq/skein/internal/vecindex"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	db, err := store.Open(cfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	index, err := vecindex.OpenSQLite(db.SQL())
	if err != nil {
		log.Fatalf("Failed to open vector index: %v", err)
	}

	model := llm.NewClient(llm.Config{
		ChatURL:    cfg.ChatURL,
		ChatKey:    cfg.ChatKey,
		ChatModel:  cfg.ChatModel,
		EmbedURL:   cfg.EmbedURL,
		EmbedModel: cfg.EmbedModel,
	})
	if cfg.ChatKey == "" {
		log.Println("[main] SKEIN_CHAT_KEY not set: segmentation and synthesis will run degraded")
	}

	pl := pipeline.New(
		db,
		index,
		model,
		segment.New(model),
		cluster.New(db, index),
		synth.New(model),
		edges.New(db, index, model),
	)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.New(db, pl).Handler(),
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	log.Printf("skeind listening on :%s (data: %s)", cfg.Port, cfg.DataDir)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
