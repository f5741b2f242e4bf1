// internal/handlers/server.go
package handlers

import (
	"os"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/jcallahan/chessrelay/internal/cache"
	"github.com/jcallahan/chessrelay/internal/game"
	"github.com/jcallahan/chessrelay/internal/room"
)

// RelayServer holds the room store and the session controller shared by
// every WebSocket connection.
type RelayServer struct {
	Rooms *room.Store
	Ctrl  *game.Controller

	// MsgRate is the per-connection inbound frame budget per second.
	MsgRate float64
}

// NewRelayServer wires the store and controller. The journal may be nil
// when no Redis address is configured.
func NewRelayServer(logger *logrus.Logger, journal *cache.Journal) *RelayServer {
	store := room.NewStore()
	return &RelayServer{
		Rooms:   store,
		Ctrl:    game.NewController(store, logger, journal),
		MsgRate: getEnvFloat("WS_MSG_RATE", 20),
	}
}

// getEnvFloat is a helper to parse an environment variable as a float,
// else a default value.
func getEnvFloat(key string, def float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return v
}
