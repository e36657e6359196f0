// internal/ws/handler.go
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pokerhall/tableserv/internal/auth"
	"github.com/pokerhall/tableserv/internal/middleware"
	"github.com/pokerhall/tableserv/internal/models"
)

// clientRequest is the structure for inbound websocket messages.
type clientRequest struct {
	Type    string         `json:"type"`
	TableID int64          `json:"table_id"`
	CmdType string         `json:"cmd_type,omitempty"`
	Props   map[string]any `json:"props,omitempty"`
}

// errorReply is sent back when an inbound message cannot be honored.
type errorReply struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Handler upgrades viewer connections, authenticates them and runs the
// inbound read loop. Commands are written to the command log, never
// applied here; the owning session picks them up through the bus.
func Handler(logger *logrus.Logger, cm *ClientsManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authenticate(r)
		if err != nil {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}

		clientID, err := resolveClientID(r)
		if err != nil {
			http.Error(w, "invalid client_id", http.StatusBadRequest)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"table"},
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			logger.Warnf("websocket accept error for user %d: %v", userID, err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler exit")

		if c.Subprotocol() != "table" {
			c.Close(websocket.StatusPolicyViolation, "client must use the 'table' subprotocol")
			return
		}
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		ctx := r.Context()
		if err := cm.store.UpsertClient(ctx, clientID, userID); err != nil {
			logger.WithError(err).Warn("client upsert failed")
			c.Close(websocket.StatusInternalError, "cannot persist client")
			return
		}

		client := NewClient(clientID, userID, c, logger)
		cm.Register(ctx, client)

		readErr := readLoop(ctx, c, cm, client, logger)

		cm.Unregister(client)
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, readErr)
	}
}

// readLoop consumes inbound frames until the connection drops.
func readLoop(ctx context.Context, c *websocket.Conn, cm *ClientsManager, client *Client, logger *logrus.Logger) error {
	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			return err
		}

		var req clientRequest
		if err := json.Unmarshal(data, &req); err != nil {
			sendError(ctx, c, "malformed request")
			continue
		}

		switch req.Type {
		case "watch":
			if err := cm.Subscribe(ctx, client, req.TableID); err != nil {
				logger.WithError(err).WithField("table_id", req.TableID).Warn("subscribe failed")
				sendError(ctx, c, "cannot watch table")
			}
		case "unwatch":
			cm.Unsubscribe(client, req.TableID)
		case "cmd":
			cmdType, err := models.ParseCmdType(req.CmdType)
			if err != nil {
				sendError(ctx, c, "unknown command type")
				continue
			}
			if _, err := cm.store.CreateTableCmd(ctx, req.TableID, client.ID, client.UserID, cmdType, req.Props); err != nil {
				logger.WithError(err).WithFields(logrus.Fields{
					"table_id": req.TableID,
					"cmd_type": req.CmdType,
				}).Warn("command insert failed")
				sendError(ctx, c, "command not accepted")
			}
		default:
			sendError(ctx, c, "unknown request type")
		}
	}
}

func sendError(ctx context.Context, c *websocket.Conn, msg string) {
	data, err := json.Marshal(errorReply{Type: "error", Error: msg})
	if err != nil {
		return
	}
	_ = c.Write(ctx, websocket.MessageText, data)
}

// authenticate pulls the session token from the Authorization header or
// the token query parameter.
func authenticate(r *http.Request) (int64, error) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" || token == r.Header.Get("Authorization") {
		token = r.URL.Query().Get("token")
	}
	return auth.AuthenticateJWT(token)
}

// resolveClientID reuses the caller-supplied client id so a reconnecting
// viewer keeps its cursor, minting a fresh one otherwise.
func resolveClientID(r *http.Request) (uuid.UUID, error) {
	raw := r.URL.Query().Get("client_id")
	if raw == "" {
		return uuid.New(), nil
	}
	return uuid.Parse(raw)
}
