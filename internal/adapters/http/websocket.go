package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/ndvigrid/internal/adapters/nats"
	"github.com/samirrijal/ndvigrid/internal/core/domain"
	"github.com/samirrijal/ndvigrid/internal/pkg/metrics"
)

// wsMessage is a gesture sent by a client.
type wsMessage struct {
	Action   string  `json:"action"` // "zoomend" | "moveend"
	Viewport string  `json:"viewport"`
	Zoom     int     `json:"zoom"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
}

// wsEvent is pushed to clients.
type wsEvent struct {
	Type   string             `json:"type"` // "state" | "change" | "error"
	View   *domain.ViewState  `json:"view,omitempty"`
	Change *domain.ViewChange `json:"change,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// WebSocketHandler streams view changes of the grid to clients and accepts
// their gestures. With NATS configured the stream carries the changes of
// every instance of the grid; otherwise only the local ones.
// Clients send JSON: {"action":"moveend","viewport":"2019","lat":9.1,"lng":40.4}
func WebSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		log := slog.Default().With("component", "ws", "remote", c.RemoteAddr().String())
		log.Info("ws client connected")

		var mu sync.Mutex
		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		view := deps.Grid.Sync().State()
		if err := writeJSON(wsEvent{Type: "state", View: &view}); err != nil {
			return
		}

		unsubscribe, err := subscribeChanges(deps, func(change domain.ViewChange) {
			_ = writeJSON(wsEvent{Type: "change", Change: &change})
		})
		if err != nil {
			log.Error("ws subscribe failed", "error", err)
			return
		}
		defer unsubscribe()

		// Keep-alive ping
		done := make(chan struct{})
		defer close(done)
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				_ = writeJSON(wsEvent{Type: "error", Error: "invalid JSON"})
				continue
			}

			vp, err := deps.Grid.Viewport(m.Viewport)
			if err != nil {
				_ = writeJSON(wsEvent{Type: "error", Error: "unknown viewport: " + m.Viewport})
				continue
			}

			switch m.Action {
			case "zoomend":
				_, err = userZoom(deps, vp, m.Zoom)
			case "moveend":
				_, err = userMove(deps, vp, domain.GeoPoint{Lat: m.Lat, Lng: m.Lng})
			default:
				_ = writeJSON(wsEvent{Type: "error", Error: "unknown action: " + m.Action})
				continue
			}
			if err != nil {
				_ = writeJSON(wsEvent{Type: "error", Error: err.Error()})
			}
		}

		log.Info("ws client disconnected")
	}
}

// subscribeChanges delivers the grid's view changes to fn until the returned
// func is called.
func subscribeChanges(deps *Dependencies, fn func(domain.ViewChange)) (func(), error) {
	if deps.NATS != nil {
		sub, err := deps.NATS.Subscribe(natsadapter.GridSubjects(deps.Grid.Sync().GridID()), func(msg *nats.Msg) {
			var change domain.ViewChange
			if err := json.Unmarshal(msg.Data, &change); err != nil {
				return
			}
			fn(change)
		})
		if err != nil {
			return nil, err
		}
		return func() { _ = sub.Unsubscribe() }, nil
	}
	if deps.Events != nil {
		return deps.Events.Watch(fn), nil
	}
	return func() {}, nil
}
