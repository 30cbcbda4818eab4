package services

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type      string      `json:"type"`
	ContestID string      `json:"contest_id,omitempty"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// wsWriteWait bounds a single write; a client that cannot take a message in
// time is dropped
const wsWriteWait = 10 * time.Second

// wsClient serializes writes to one connection
type wsClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsClient) write(data []byte, wait time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// ContestHub fans contest events out to subscribed WebSocket clients.
// Each user holds at most one subscription per contest.
type ContestHub struct {
	mu        sync.RWMutex
	contests  map[string]map[string]*wsClient
	writeWait time.Duration
}

// NewContestHub creates a new WebSocket hub
func NewContestHub() *ContestHub {
	return &ContestHub{
		contests:  make(map[string]map[string]*wsClient),
		writeWait: wsWriteWait,
	}
}

// Subscribe registers a connection for a user's view of a contest
func (h *ContestHub) Subscribe(contestID, userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.contests[contestID]
	if !ok {
		subs = make(map[string]*wsClient)
		h.contests[contestID] = subs
	}

	// Close existing connection if any
	if existing, exists := subs[userID]; exists {
		existing.conn.Close()
	}
	subs[userID] = &wsClient{conn: conn}

	log.Info().Str("contest_id", contestID).Str("user_id", userID).Msg("WebSocket subscription registered")
}

// Unsubscribe removes a user's connection from a contest. A connection that
// was already replaced by a newer subscription is left alone.
func (h *ContestHub) Unsubscribe(contestID, userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client, exists := h.contests[contestID][userID]; exists && client.conn == conn {
		h.unsubscribeLocked(contestID, userID, client)
	}
}

func (h *ContestHub) unsubscribeLocked(contestID, userID string, only *wsClient) {
	subs, ok := h.contests[contestID]
	if !ok {
		return
	}
	if client, exists := subs[userID]; exists && client == only {
		client.conn.Close()
		delete(subs, userID)
		log.Info().Str("contest_id", contestID).Str("user_id", userID).Msg("WebSocket subscription removed")
	}
	if len(subs) == 0 {
		delete(h.contests, contestID)
	}
}

// Subscribers returns how many users follow a contest
func (h *ContestHub) Subscribers(contestID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.contests[contestID])
}

// SendToUser sends a message to one subscriber of a contest
func (h *ContestHub) SendToUser(contestID, userID string, message WSMessage) error {
	h.mu.RLock()
	client, exists := h.contests[contestID][userID]
	h.mu.RUnlock()

	if !exists {
		return fmt.Errorf("user %s is not subscribed to contest %s", userID, contestID)
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := client.write(data, h.writeWait); err != nil {
		h.mu.Lock()
		h.unsubscribeLocked(contestID, userID, client)
		h.mu.Unlock()
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Broadcast sends a message to every subscriber of a contest. Writes run in
// parallel so one slow client costs at most the write wait; connections that
// fail to accept the write are dropped.
func (h *ContestHub) Broadcast(contestID string, message WSMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Error().Err(err).Str("type", message.Type).Msg("Failed to marshal broadcast")
		return
	}

	h.mu.RLock()
	targets := make(map[string]*wsClient, len(h.contests[contestID]))
	for userID, client := range h.contests[contestID] {
		targets[userID] = client
	}
	h.mu.RUnlock()

	var (
		wg       sync.WaitGroup
		failedMu sync.Mutex
		failed   = make(map[string]*wsClient)
	)
	for userID, client := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := client.write(data, h.writeWait); err != nil {
				log.Warn().Err(err).Str("user_id", userID).Str("contest_id", contestID).Msg("Failed to deliver broadcast")
				failedMu.Lock()
				failed[userID] = client
				failedMu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(failed) > 0 {
		h.mu.Lock()
		for userID, client := range failed {
			h.unsubscribeLocked(contestID, userID, client)
		}
		h.mu.Unlock()
	}
}
