// Command serve answers student questions for one course over HTTP,
// streaming tokens as they arrive from the model.
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

	"course-rag/internal/config"
	"course-rag/internal/llm"
	"course-rag/internal/server"
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

	srv, err := server.New(course, clients)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening store")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}
}
