package service

import (
	"time"

	wt "github.com/annelo/tileworld/internal/worldtypes"
)

// Minimum interval between player position broadcasts.
const playerBroadcastMinInterval = 200 * time.Millisecond

// allowPositionBroadcast throttles position updates per player.
func (s *WorldService) allowPositionBroadcast(playerID string) bool {
	now := s.now()
	s.throttleMu.Lock()
	defer s.throttleMu.Unlock()
	if last, ok := s.lastPosBroadcast[playerID]; ok && now.Sub(last) < playerBroadcastMinInterval {
		return false
	}
	s.lastPosBroadcast[playerID] = now
	return true
}

// dispatch рассылает событие мира подписчикам и клиентам.
// Глобальные события получают все, инвентарь - только владелец, остальные -
// клиенты, в окне загрузки которых лежит позиция события.
func (s *WorldService) dispatch(ev *wt.WorldEvent) {
	s.publishToSubscribers(ev)

	if ev.Type == wt.EventPlayerMoved && !s.allowPositionBroadcast(ev.PlayerID) {
		return
	}

	msg := &ServerMessage{Event: ev}
	high := ev.Type.Priority() == wt.PriorityHigh

	if ev.Type == wt.EventInventory {
		s.sendToPlayer(ev.PlayerID, msg, high)
		return
	}
	if ev.Global() {
		s.broadcastToAll(msg, high)
		return
	}

	evChunk := ev.Position.Chunk()
	chunks := s.world.Chunks()
	s.mu.RLock()
	defer s.mu.RUnlock()
	for playerID, conn := range s.clients {
		if playerID == ev.PlayerID {
			conn.send(msg, high, false)
			continue
		}
		player, err := s.world.Players().Get(playerID)
		if err != nil {
			continue
		}
		if chunks.InWindow(player.Position().Chunk(), evChunk) {
			conn.send(msg, high, false)
		}
	}
}

// broadcastToAll sends a message to all connected clients.
func (s *WorldService) broadcastToAll(msg *ServerMessage, high bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, conn := range s.clients {
		conn.send(msg, high, false)
	}
}

// sendToPlayer sends a message to a specific player.
func (s *WorldService) sendToPlayer(playerID string, msg *ServerMessage, high bool) {
	s.mu.RLock()
	conn, exists := s.clients[playerID]
	s.mu.RUnlock()
	if exists {
		conn.send(msg, high, false)
	}
}

func (s *WorldService) publishToSubscribers(ev *wt.WorldEvent) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *WorldService) closeSubscribers() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}
