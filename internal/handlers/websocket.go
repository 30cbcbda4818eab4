package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"contest-vote-backend/internal/middleware"
	"contest-vote-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub            *services.ContestHub
	userService    *services.UserService
	contestService *services.ContestService
	voteService    *services.VoteService
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(
	hub *services.ContestHub,
	userService *services.UserService,
	contestService *services.ContestService,
	voteService *services.VoteService,
) *WebSocketHandler {
	return &WebSocketHandler{
		hub:            hub,
		userService:    userService,
		contestService: contestService,
		voteService:    voteService,
	}
}

// HandleWebSocket handles GET /ws?token=...&contest_id=...
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	claims, err := middleware.ValidateWebSocketToken(r.URL.Query().Get("token"), h.userService)
	if err != nil {
		respondError(w, "invalid token", http.StatusUnauthorized)
		return
	}
	userID := claims.UserID

	contestID := r.URL.Query().Get("contest_id")
	if contestID == "" {
		respondError(w, "contest_id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if _, err := h.contestService.GetContest(ctx, contestID); err != nil {
		respondServiceError(w, err, "Failed to get contest")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	h.hub.Subscribe(contestID, userID, conn)
	defer h.hub.Unsubscribe(contestID, userID, conn)

	h.sendVoteStatus(ctx, contestID, userID)

	log.Info().Str("user_id", userID).Str("contest_id", contestID).Msg("WebSocket connection established")

	for {
		_, messageBytes, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("user_id", userID).Msg("WebSocket error")
			}
			break
		}

		var msg services.WSMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("Failed to parse WebSocket message")
			h.sendError(contestID, userID, "Invalid message format")
			continue
		}

		h.handleMessage(ctx, contestID, userID, msg)
	}
}

// handleMessage processes incoming WebSocket messages
func (h *WebSocketHandler) handleMessage(ctx context.Context, contestID, userID string, msg services.WSMessage) {
	switch msg.Type {
	case "ping":
		h.send(contestID, userID, services.WSMessage{Type: "pong", ContestID: contestID})
	case "vote_status":
		h.sendVoteStatus(ctx, contestID, userID)
	default:
		h.sendError(contestID, userID, "Unknown message type")
	}
}

func (h *WebSocketHandler) sendVoteStatus(ctx context.Context, contestID, userID string) {
	status, err := h.voteService.VoteStatus(ctx, contestID, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("contest_id", contestID).Msg("Failed to load vote status")
		h.sendError(contestID, userID, "Failed to load vote status")
		return
	}
	h.send(contestID, userID, services.WSMessage{
		Type:      "vote_status",
		ContestID: contestID,
		Data:      status,
	})
}

func (h *WebSocketHandler) sendError(contestID, userID, message string) {
	h.send(contestID, userID, services.WSMessage{Type: "error", Message: message})
}

func (h *WebSocketHandler) send(contestID, userID string, msg services.WSMessage) {
	if err := h.hub.SendToUser(contestID, userID, msg); err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Str("type", msg.Type).
			Msg("Failed to send WebSocket message")
	}
}
