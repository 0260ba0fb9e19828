/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the Momentum Engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Build coach client (optional, needs an API key)
  4. Create API handler with dependencies
  5. Start the background score refresher
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port            HTTP server port (default: 8080)
  -db              SQLite database path (default: momentum.db)
                   Use ":memory:" for in-memory database
  -coach-url       Chat completion API base URL (default: OpenAI)
  -coach-model     Model for coaching nudges (default: gpt-4o-mini)
  -refresh         Background refresh interval (default: 1h, 0 disables)

ENVIRONMENT:
  COACH_API_KEY    API key for the coaching endpoint. When unset the
                   coach routes still serve the built prompts, just
                   without a live nudge.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Stop the background refresher
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/momentum.db"

  # Run with in-memory database and no background refresh
  ./server -db=":memory:" -refresh=0

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aeterna/momentum-engine/api"
	"github.com/aeterna/momentum-engine/coach"
	"github.com/aeterna/momentum-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "momentum.db", "SQLite database path")
	coachURL := flag.String("coach-url", "", "chat completion API base URL (default OpenAI)")
	coachModel := flag.String("coach-model", "gpt-4o-mini", "model for coaching nudges")
	refresh := flag.Duration("refresh", time.Hour, "background score refresh interval (0 disables)")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Coach client is optional: without a key the coach endpoint still
	// serves the built prompts.
	var coachClient *coach.Client
	if key := os.Getenv("COACH_API_KEY"); key != "" {
		coachClient = coach.NewClient(coach.Config{
			BaseURL: *coachURL,
			APIKey:  key,
			Model:   *coachModel,
		})
	} else {
		log.Println("COACH_API_KEY not set; coaching nudges disabled")
	}

	// Initialize handler
	handler := api.NewHandler(store, coachClient)

	// Background refresher keeps weekly scores and streaks current for
	// owners who go idle.
	if *refresh > 0 {
		scheduler := api.NewRefreshScheduler(store, handler)
		scheduler.CheckInterval = *refresh
		scheduler.Start()
		defer scheduler.Stop()
	}

	// Create router
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", *port)
		log.Printf("📊 API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
