package main

import (
	"chat-relay/auth"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/transport"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/rs/cors"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for the server and background workers.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Storage (BadgerDB message log + Bluge search index)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.INFO))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	//  Defer will be executed before run() returned anything to main()
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return fmt.Errorf("search index opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing search index...")
		_ = blugeWriter.Close()
	}()

	// 3. Repositories & identity provider
	messageLog := repositories.NewMessageLog(db, log, config.HistoryPageSize)
	directory := repositories.NewDirectory(db)
	searchIndex := repositories.NewSearchIndex(blugeWriter, log)
	provider := auth.NewTokenProvider(config.JWTSecret, config.AuthTokenDuration)

	// 4. Optional moderation pass
	var moderator *moderation.Moderator
	if config.CensoredWordsPath != nil {
		words, err := moderation.LoadWords(*config.CensoredWordsPath)
		if err != nil {
			return fmt.Errorf("censored words loading failed: %w", err)
		}
		replacement, err := CharacterRune(config.CensoredReplacement)
		if err != nil {
			return err
		}
		moderator, err = moderation.NewModerator(words, replacement)
		if err != nil {
			return err
		}
		log.Info(fmt.Sprintf("%d censored words loaded", len(words)))
	}

	// 5. Registry & router
	stats := observability.NewRelayStats()
	registry := runtime.NewRegistry()
	router := runtime.NewRouter(log, registry, messageLog, searchIndex,
		moderator, stats, config.EchoToSender)

	// 6. Supervision & signals
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(workers.NewBadgerGCWorker(db, config.GCInterval, log))
	sup.Add(workers.NewHeartbeatWorker(log, registry, stats, config.HeartbeatInterval))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go sup.Run(ctx)

	// 7. HTTP server
	handler := transport.NewHandler(log, registry, router, provider,
		messageLog, directory, searchIndex, stats, transport.HandlerConfig{
			AllowedOrigins:       config.Origins(),
			ConnectionBufferSize: config.ConnectionBufferSize,
			WriteTimeout:         config.WriteTimeout,
			SearchLimit:          config.SearchLimit,
		})

	c := cors.New(cors.Options{
		AllowedOrigins:   config.Origins(),
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		MaxAge:           300,
		AllowCredentials: true,
	})

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{Addr: address, Handler: c.Handler(handler.SetupRouter())}

	// Use an error channel to capture Serve() issues
	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 9. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	sup.Stop()
	log.Info("Program stopped cleanly")

	return nil
}
