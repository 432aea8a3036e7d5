package playermanager

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/annelo/tileworld/internal/entity"
)

// Ошибки менеджера игроков
var (
	ErrPlayerExists   = errors.New("игрок с таким ID уже существует")
	ErrPlayerNotFound = errors.New("игрок не найден")
)

// Session содержит подключенного игрока и данные его сессии
type Session struct {
	Player   *entity.Player
	Name     string
	JoinedAt time.Time
}

// PlayerManager управляет подключенными игроками
type PlayerManager struct {
	players map[string]*Session
	mu      sync.RWMutex
}

// NewPlayerManager создает новый экземпляр менеджера игроков
func NewPlayerManager() *PlayerManager {
	return &PlayerManager{
		players: make(map[string]*Session),
	}
}

// Add добавляет игрока в менеджер
func (pm *PlayerManager) Add(p *entity.Player) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	// Проверяем, существует ли уже игрок с таким ID
	if _, exists := pm.players[p.ID()]; exists {
		return ErrPlayerExists
	}

	pm.players[p.ID()] = &Session{Player: p, Name: p.Name(), JoinedAt: time.Now()}
	return nil
}

// Get возвращает игрока по ID
func (pm *PlayerManager) Get(id string) (*entity.Player, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	s, exists := pm.players[id]
	if !exists {
		return nil, ErrPlayerNotFound
	}
	return s.Player, nil
}

// Session возвращает сессию игрока
func (pm *PlayerManager) Session(id string) (Session, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	s, exists := pm.players[id]
	if !exists {
		return Session{}, ErrPlayerNotFound
	}
	return *s, nil
}

// ByName ищет игрока по имени сессии
func (pm *PlayerManager) ByName(name string) (*entity.Player, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	for _, s := range pm.players {
		if s.Name == name {
			return s.Player, nil
		}
	}
	return nil, ErrPlayerNotFound
}

// Remove удаляет игрока из менеджера и возвращает его
func (pm *PlayerManager) Remove(id string) (*entity.Player, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	s, exists := pm.players[id]
	if !exists {
		return nil, ErrPlayerNotFound
	}
	delete(pm.players, id)
	return s.Player, nil
}

// All возвращает всех игроков в порядке подключения
func (pm *PlayerManager) All() []*entity.Player {
	pm.mu.RLock()
	sessions := make([]*Session, 0, len(pm.players))
	for _, s := range pm.players {
		sessions = append(sessions, s)
	}
	pm.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].JoinedAt.Equal(sessions[j].JoinedAt) {
			return sessions[i].Player.ID() < sessions[j].Player.ID()
		}
		return sessions[i].JoinedAt.Before(sessions[j].JoinedAt)
	})
	players := make([]*entity.Player, len(sessions))
	for i, s := range sessions {
		players[i] = s.Player
	}
	return players
}

// Count возвращает число подключенных игроков
func (pm *PlayerManager) Count() int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return len(pm.players)
}
