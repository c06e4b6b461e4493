package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benwaters/screenloom/internal/config"
	"github.com/benwaters/screenloom/internal/enrich"
	"github.com/benwaters/screenloom/internal/gdrive"
	"github.com/benwaters/screenloom/internal/llm"
	"github.com/benwaters/screenloom/internal/media"
	"github.com/benwaters/screenloom/internal/pipeline"
	"github.com/benwaters/screenloom/internal/server"
	"github.com/benwaters/screenloom/internal/storage"
	"github.com/benwaters/screenloom/internal/transcribe"
)

func main() {
	log.Println("screenloom: starting")

	cfg, warnings, err := config.Load(os.Getenv(config.EnvPrefix + "CONFIG"))
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	for _, w := range warnings {
		log.Printf("warning: %s", w)
	}

	store, err := storage.NewFileStore(cfg.StorePath)
	if err != nil {
		log.Fatalf("session store init failed: %v", err)
	}

	var journal *media.Journal
	if cfg.ChunkJournalPath != "" {
		journal, err = media.NewJournal(cfg.ChunkJournalPath)
		if err != nil {
			log.Printf("warning: chunk journal disabled: %v", err)
			journal = nil
		} else {
			defer func() { _ = journal.Close() }()
		}
	}

	aggregator := media.NewAggregator(cfg.RecordingsDir, journal)
	if recovered, err := aggregator.Recover(); err != nil {
		log.Printf("warning: chunk recovery failed: %v", err)
	} else if recovered > 0 {
		log.Printf("recovered %d pending chunks from a previous run", recovered)
	}

	hub := server.NewHub()

	transcriber := transcribe.NewGateway(cfg.DeepgramAPIKey, cfg.DeepgramModel)

	var refiner *enrich.Refiner
	llmClient, err := buildLLMClient(cfg)
	if err != nil {
		log.Printf("warning: script refinement disabled: %v", err)
	} else if llmClient != nil {
		refiner = enrich.NewRefiner(llmClient)
	}
	speech := enrich.NewSpeechClient(cfg.ElevenLabsAPIKey, cfg.VoiceID, cfg.TTSModel)
	enrichment := enrich.NewService(refiner, speech)

	runner := pipeline.NewRunner(store, transcriber, enrichment, hub, aggregator.SessionDir, cfg.ParsedGatewayTimeout())
	if cfg.ExportsDir != "" {
		runner.SetExporter(storage.NewWriter(cfg.ExportsDir))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.GDriveFolderID != "" {
		syncer, syncErr := gdrive.NewSyncer(ctx, cfg.GoogleCredentialsFile, cfg.GDriveFolderID)
		if syncErr != nil {
			log.Printf("warning: gdrive backup disabled: %v", syncErr)
		} else {
			go runGDriveSync(ctx, syncer, cfg.StorePath)
		}
	}

	handler := server.Handler(server.Deps{
		Store:      store,
		Media:      aggregator,
		Pipeline:   runner,
		Hub:        hub,
		Enrichment: enrichment,
		Status: server.GatewayStatus{
			Transcription: transcriber.IsAvailable,
			Refinement:    enrichment.IsAvailable,
			Synthesis:     enrichment.SpeechConfigured,
		},
		GeneratedDir: cfg.GeneratedDir,
	})

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: handler}
	go func() {
		log.Printf("session API at http://%s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Println("screenloom: shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
}

func buildLLMClient(cfg config.Config) (llm.Client, error) {
	provider, model, err := llm.ParseModel(cfg.RefinerModel)
	if err != nil {
		return nil, err
	}

	var apiKey string
	switch provider {
	case "gemini":
		apiKey = cfg.GeminiAPIKey
	case "openai":
		apiKey = cfg.OpenAIAPIKey
	}
	if apiKey == "" {
		return nil, nil
	}
	return llm.NewClient(provider, apiKey, model)
}

func runGDriveSync(ctx context.Context, syncer *gdrive.Syncer, storePath string) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			date := time.Now().UTC().Format("2006-01-02")
			if err := syncer.Sync(storePath, date); err != nil {
				log.Printf("gdrive sync error: %v", err)
			}
		}
	}
}
