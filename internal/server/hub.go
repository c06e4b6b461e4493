package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/benwaters/screenloom/internal/storage"
)

// Client is one live subscriber. A client with no joined sessions observes
// every event (the dashboard list view); joining sessions narrows delivery
// to those sessions only.
type Client struct {
	ch       chan []byte
	mu       sync.Mutex
	sessions map[string]struct{}
}

// Chan returns the client's delivery channel. It is closed on Unsubscribe.
func (c *Client) Chan() <-chan []byte {
	return c.ch
}

func (c *Client) wantsSession(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sessions) == 0 {
		return true
	}
	_, ok := c.sessions[sessionID]
	return ok
}

// Hub fans progress events out to current subscribers. Delivery is best
// effort and at most once: a client whose buffer is full misses the event
// and is expected to re-fetch state on reconnect.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]struct{})}
}

func (h *Hub) Subscribe() *Client {
	c := &Client{
		ch:       make(chan []byte, 64),
		sessions: make(map[string]struct{}),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *Hub) Unsubscribe(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		close(c.ch)
	}
}

// JoinSession scopes the client's deliveries to the given session.
func (h *Hub) JoinSession(c *Client, sessionID string) {
	c.mu.Lock()
	c.sessions[sessionID] = struct{}{}
	c.mu.Unlock()
}

// LeaveSession removes one session from the client's scope; with no
// sessions left the client is global again.
func (h *Hub) LeaveSession(c *Client, sessionID string) {
	c.mu.Lock()
	delete(c.sessions, sessionID)
	c.mu.Unlock()
}

func (h *Hub) broadcast(sessionID string, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !c.wantsSession(sessionID) {
			continue
		}
		select {
		case c.ch <- msg:
		default:
		}
	}
}

func (h *Hub) BroadcastSessionStarted(sessionID, url string) {
	h.broadcastEvent(sessionID, SessionStartedEvent{
		Event:     newEvent("session_started", time.Now().UTC()),
		SessionID: sessionID,
		URL:       url,
	})
}

func (h *Hub) BroadcastSessionStatus(sessionID, status, message string) {
	h.broadcastEvent(sessionID, SessionStatusEvent{
		Event:     newEvent("session_status", time.Now().UTC()),
		SessionID: sessionID,
		Status:    status,
		Message:   message,
	})
}

func (h *Hub) BroadcastTranscriptionReady(sessionID string, tr *storage.Transcription) {
	h.broadcastEvent(sessionID, TranscriptionReadyEvent{
		Event:         newEvent("transcription_ready", time.Now().UTC()),
		SessionID:     sessionID,
		Transcription: tr,
	})
}

func (h *Hub) BroadcastRefinementReady(sessionID string, script *storage.RefinedScript) {
	h.broadcastEvent(sessionID, RefinementReadyEvent{
		Event:     newEvent("refinement_ready", time.Now().UTC()),
		SessionID: sessionID,
		Script:    script,
	})
}

func (h *Hub) BroadcastSynthesisReady(sessionID, audioPath string) {
	h.broadcastEvent(sessionID, SynthesisReadyEvent{
		Event:     newEvent("synthesis_ready", time.Now().UTC()),
		SessionID: sessionID,
		AudioPath: audioPath,
	})
}

func (h *Hub) BroadcastSessionComplete(sessionID string) {
	h.broadcastEvent(sessionID, SessionCompleteEvent{
		Event:     newEvent("session_complete", time.Now().UTC()),
		SessionID: sessionID,
	})
}

func (h *Hub) BroadcastSessionDeleted(sessionID string) {
	h.broadcastEvent(sessionID, SessionDeletedEvent{
		Event:     newEvent("session_deleted", time.Now().UTC()),
		SessionID: sessionID,
	})
}

func (h *Hub) BroadcastError(sessionID, message string) {
	h.broadcastEvent(sessionID, ErrorEvent{
		Event:     newEvent("error", time.Now().UTC()),
		SessionID: sessionID,
		Message:   message,
	})
}

func (h *Hub) broadcastEvent(sessionID string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("event marshal error: %v", err)
		return
	}
	h.broadcast(sessionID, payload)
}
