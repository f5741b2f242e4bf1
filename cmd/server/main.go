// cmd/server/main.go
package main

import (
	"log"
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/jcallahan/chessrelay/internal/cache"
	"github.com/jcallahan/chessrelay/internal/handlers"
	"github.com/jcallahan/chessrelay/internal/middleware"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	// Move journal is optional: without REDIS_ADDR moves are relayed but
	// not recorded anywhere.
	var journal *cache.Journal
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		var err error
		journal, err = cache.Connect(addr, os.Getenv("JOURNAL_QUEUE_NAME"))
		if err != nil {
			log.Fatalf("move journal: %v", err)
		}
		logger.Infof("Move journal connected at %s", addr)
	}

	srv := handlers.NewRelayServer(logger, journal)

	mux := http.NewServeMux()
	mux.Handle("/ws", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.WSHandler(logger, srv),
	)))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
