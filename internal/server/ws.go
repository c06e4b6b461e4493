package server

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientCommand is what the extension or dashboard sends upstream: scope
// requests only, everything else flows downstream.
type clientCommand struct {
	Action    string `json:"action"`
	SessionID string `json:"session_id"`
}

func registerWSRoute(mux *http.ServeMux, hub *Hub) {
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("ws upgrade error: %v", err)
			return
		}
		defer func() { _ = conn.Close() }()

		connectionEvent := ConnectionEvent{
			Event:     newEvent("connection", time.Now().UTC()),
			Connected: true,
		}
		payload, err := json.Marshal(connectionEvent)
		if err == nil {
			_ = conn.WriteMessage(websocket.TextMessage, payload)
		}

		client := hub.Subscribe()
		defer hub.Unsubscribe(client)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				_, msg, err := conn.ReadMessage()
				if err != nil {
					return
				}
				var cmd clientCommand
				if err := json.Unmarshal(msg, &cmd); err != nil {
					continue
				}
				switch cmd.Action {
				case "join":
					if cmd.SessionID != "" {
						hub.JoinSession(client, cmd.SessionID)
					}
				case "leave":
					if cmd.SessionID != "" {
						hub.LeaveSession(client, cmd.SessionID)
					}
				}
			}
		}()

		for {
			select {
			case msg, ok := <-client.Chan():
				if !ok {
					return
				}
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	})
}
