// Command ingest rebuilds a course's chunk store from its corpus directory.
// The rebuild is all-or-nothing: it writes to a temporary store and only
// replaces the live one after every document has been processed.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"course-rag/internal/chunker"
	"course-rag/internal/config"
	"course-rag/internal/ingest"
	"course-rag/internal/llm"
	"course-rag/internal/store"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", "./configs/config.yaml", "Path to the configuration file")
	courseKey := flag.String("course", "", "Course key from the configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging and query logging")
	flag.Parse()

	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if *courseKey == "" {
		log.Fatal().Msg("Please provide a course key with the -course flag")
	}

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	course, err := cfg.Course(*courseKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Error resolving course")
	}
	course.Debug = course.Debug || *debug

	clients, err := llm.NewClients(course.LLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing LLM clients")
	}

	ch, err := chunker.New(course.Chunking)
	if err != nil {
		log.Fatal().Err(err).Msg("Error configuring chunker")
	}

	builder, err := store.NewBuilder(course.StorePath, course.Debug)
	if err != nil {
		log.Fatal().Err(err).Msg("Error creating temp store")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline := ingest.New(ch, clients.Embedder, clients.Helper, builder, course.Ingest)
	stats, err := pipeline.Run(ctx, course.CorpusDir)
	if err != nil {
		builder.Abort()
		log.Fatal().Err(err).Msg("Ingestion aborted, live store untouched")
	}

	if err := builder.Commit(); err != nil {
		builder.Abort()
		log.Fatal().Err(err).Msg("Error publishing store")
	}

	log.Info().
		Int("added", stats.Added).
		Int("skipped", stats.Skipped).
		Int("failed", stats.Failed).
		Int("chunks", stats.Chunks).
		Dur("duration", stats.Duration).
		Msg("Ingestion complete")
}
