// internal/handlers/ws.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/jcallahan/chessrelay/internal/game"
	"github.com/jcallahan/chessrelay/internal/room"
)

// Message is the inbound frame envelope. Only the fields relevant to a
// given "type" are populated by clients; the rest stay zero.
type Message struct {
	Type       string  `json:"type"`
	RoomCode   string  `json:"roomCode,omitempty"`
	PlayerName string  `json:"playerName,omitempty"`
	TargetID   string  `json:"targetId,omitempty"`
	Slot       string  `json:"slot,omitempty"`
	Color      *string `json:"color,omitempty"` // null clears the shine color
	Move       string  `json:"move,omitempty"`
	FEN        string  `json:"fen,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	Winner     string  `json:"winner,omitempty"`
	Message    string  `json:"message,omitempty"`
	LastMove   string  `json:"lastMove,omitempty"`
}

// WSHandler accepts a relay WebSocket connection, assigns it a fresh
// connection identity, and runs the read loop until the client goes
// away. All room state the identity touched is reconciled on exit.
func WSHandler(logger *logrus.Logger, srv *RelayServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"relay"},
			OriginPatterns: []string{"*"}, // Adjust in production
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "relay" {
			c.Close(BadSubprotocolError, "client must speak the relay subprotocol")
			return
		}

		// No authentication by design: identity is connection-scoped.
		userID := uuid.New()
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		conn := &room.Connection{
			UserID:  userID,
			Cancel:  cancel,
			OutChan: make(chan interface{}, 16),
		}
		conn.Write(game.WelcomeEvent{Type: game.EventWelcome, ID: userID})

		logger.Infof("Client %s connected from %s", userID, r.RemoteAddr)

		go writePump(ctx, c, conn, logger)
		readPump(ctx, c, srv, conn, logger)

		logger.Infof("Client %s read pump exited. Reconciling rooms.", userID)
		srv.Ctrl.Disconnect(userID)
	}
}

// readPump reads frames off the socket, applies the per-connection rate
// limit and dispatches each event to the session controller. Each event
// is handled to completion, broadcasts included, before the next frame
// is read, which gives every room single-writer event handling.
func readPump(ctx context.Context, c *websocket.Conn, srv *RelayServer, conn *room.Connection, logger *logrus.Logger) {
	limiter := rate.NewLimiter(rate.Limit(srv.MsgRate), burstFor(srv.MsgRate))

	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				logger.Infof("Client %s: WebSocket closed normally.", conn.UserID)
			} else if strings.Contains(err.Error(), "context canceled") {
				// Handler is shutting down, nothing to report.
			} else {
				logger.Warnf("Client %s: read error: %v (CloseStatus: %d)", conn.UserID, err, closeStatus)
			}
			return
		}

		if typ != websocket.MessageText {
			logger.Warnf("Client %s: non-text message type %d. Ignoring.", conn.UserID, typ)
			continue
		}

		if !limiter.Allow() {
			logger.Warnf("Client %s: over message rate limit, frame dropped.", conn.UserID)
			continue
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warnf("Client %s: invalid json: %v", conn.UserID, err)
			conn.WriteError("Invalid JSON format")
			continue
		}

		dispatch(srv, conn, msg, logger)
	}
}

// burstFor sizes the limiter's burst at twice the sustained rate,
// floored at 1 so a fractional rate below one frame per second still
// lets frames through.
func burstFor(msgRate float64) int {
	burst := int(msgRate) * 2
	if burst < 1 {
		burst = 1
	}
	return burst
}

// dispatch routes one inbound event to the controller.
func dispatch(srv *RelayServer, conn *room.Connection, msg Message, logger *logrus.Logger) {
	switch msg.Type {
	case "create_room":
		conn.Name = displayName(msg.PlayerName, conn.UserID)
		srv.Ctrl.CreateRoom(conn)
	case "join_room":
		conn.Name = displayName(msg.PlayerName, conn.UserID)
		srv.Ctrl.JoinRoom(msg.RoomCode, conn)
	case "assign_slot":
		target, err := uuid.Parse(msg.TargetID)
		if err != nil {
			conn.WriteError("Invalid target id")
			return
		}
		srv.Ctrl.AssignSlot(msg.RoomCode, conn.UserID, target, msg.Slot)
	case "remove_from_slot":
		srv.Ctrl.UnassignSlot(msg.RoomCode, conn.UserID, msg.Slot)
	case "set_shine_color":
		target, err := uuid.Parse(msg.TargetID)
		if err != nil {
			conn.WriteError("Invalid target id")
			return
		}
		srv.Ctrl.SetShine(msg.RoomCode, conn.UserID, target, msg.Color)
	case "kick_player":
		target, err := uuid.Parse(msg.TargetID)
		if err != nil {
			conn.WriteError("Invalid target id")
			return
		}
		srv.Ctrl.Kick(msg.RoomCode, conn.UserID, target)
	case "start_game":
		srv.Ctrl.StartGame(msg.RoomCode, conn.UserID)
	case "make_move":
		srv.Ctrl.MakeMove(msg.RoomCode, conn.UserID, msg.Move, msg.FEN)
	case "resign":
		srv.Ctrl.Resign(msg.RoomCode, conn.UserID)
	case "claim_game_over":
		srv.Ctrl.ClaimGameOver(msg.RoomCode, conn.UserID, msg.Reason, msg.Winner, msg.Message, msg.FEN, msg.LastMove)
	case "offer_draw":
		srv.Ctrl.OfferDraw(msg.RoomCode, conn.UserID)
	case "reject_draw":
		srv.Ctrl.RejectDraw(msg.RoomCode, conn.UserID)
	case "accept_draw":
		srv.Ctrl.AcceptDraw(msg.RoomCode, conn.UserID)
	case "send_chat":
		srv.Ctrl.Chat(msg.RoomCode, conn.UserID, msg.Message)
	default:
		logger.Warnf("Client %s: unknown event type '%s'", conn.UserID, msg.Type)
		conn.WriteError(fmt.Sprintf("Unknown event type: %s", msg.Type))
	}
}

// displayName falls back to a short guest handle when the client sent
// no name.
func displayName(name string, userID uuid.UUID) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Sprintf("Guest_%s", userID.String()[:4])
	}
	return name
}

// writePump drains the connection's out-channel onto the socket and
// keeps the connection alive with periodic pings.
func writePump(ctx context.Context, c *websocket.Conn, conn *room.Connection, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-conn.OutChan:
			if !ok {
				// Channel closed, connection was replaced or removed.
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Warnf("Client %s: failed to marshal outgoing msg: %v", conn.UserID, err)
				continue
			}

			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("Client %s: failed to write to websocket: %v", conn.UserID, err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("Client %s: ping failed: %v. Assuming disconnect.", conn.UserID, err)
				return
			}
		}
	}
}
