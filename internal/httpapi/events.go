package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	wt "github.com/annelo/tileworld/internal/worldtypes"
)

const (
	wsWriteWait  = 5 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// parseEventFilter разбирает ?types=chat,tile_changed. Пустой фильтр пропускает все.
func parseEventFilter(raw string) map[string]bool {
	if raw == "" {
		return nil
	}
	filter := make(map[string]bool)
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			filter[name] = true
		}
	}
	return filter
}

// handleEvents транслирует события мира наблюдателю в виде JSON
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	filter := parseEventFilter(r.URL.Query().Get("types"))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debugw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := s.source.Subscribe()
	defer unsubscribe()
	s.logger.Infow("Наблюдатель подключен", "remote", r.RemoteAddr)

	// Читатель нужен только для pong и обнаружения закрытия
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-readDone:
			s.logger.Infow("Наблюдатель отключился", "remote", r.RemoteAddr)
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
					time.Now().Add(wsWriteWait))
				return
			}
			if filter != nil && !filter[ev.Type.String()] {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(observedEvent(ev)); err != nil {
				s.logger.Debugw("Ошибка записи в websocket", "error", err)
				return
			}
		}
	}
}

// ObservedEvent - событие в потоке наблюдателя; тип передается именем
type ObservedEvent struct {
	Type     string         `json:"type"`
	Tick     uint64         `json:"tick,omitempty"`
	Position wt.Vec2        `json:"position"`
	EntityID string         `json:"entity_id,omitempty"`
	PlayerID string         `json:"player_id,omitempty"`
	Message  string         `json:"message,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
}

func observedEvent(ev *wt.WorldEvent) ObservedEvent {
	return ObservedEvent{
		Type:     ev.Type.String(),
		Tick:     ev.Tick,
		Position: ev.Position,
		EntityID: ev.EntityID,
		PlayerID: ev.PlayerID,
		Message:  ev.Message,
		Payload:  ev.Payload,
	}
}
