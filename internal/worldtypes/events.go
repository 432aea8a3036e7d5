package worldtypes

// EventType - тип мирового события
type EventType int32

const (
	EventUnknown EventType = iota
	EventPlayerJoined
	EventPlayerLeft
	EventPlayerMoved
	EventPlayerHealth
	EventPlayerDied
	EventPlayerRespawned
	EventTileChanged
	EventEntitySpawned
	EventEntityMoved
	EventEntityDespawned
	EventItemPickup
	EventInventory
	EventTime
	EventChat
	EventChunkUnloaded
	EventTileEntityUpdated
	EventServerShutdown
)

var eventNames = map[EventType]string{
	EventUnknown:           "unknown",
	EventPlayerJoined:      "player_joined",
	EventPlayerLeft:        "player_left",
	EventPlayerMoved:       "player_moved",
	EventPlayerHealth:      "player_health",
	EventPlayerDied:        "player_died",
	EventPlayerRespawned:   "player_respawned",
	EventTileChanged:       "tile_changed",
	EventEntitySpawned:     "entity_spawned",
	EventEntityMoved:       "entity_moved",
	EventEntityDespawned:   "entity_despawned",
	EventItemPickup:        "item_pickup",
	EventInventory:         "inventory",
	EventTime:              "time",
	EventChat:              "chat",
	EventChunkUnloaded:     "chunk_unloaded",
	EventTileEntityUpdated: "tile_entity_updated",
	EventServerShutdown:    "server_shutdown",
}

func (t EventType) String() string {
	if n, ok := eventNames[t]; ok {
		return n
	}
	return "unknown"
}

// Priority - приоритет доставки события клиентам
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// Priority возвращает приоритет доставки события
func (t EventType) Priority() Priority {
	switch t {
	case EventPlayerHealth, EventPlayerDied, EventPlayerRespawned, EventInventory,
		EventPlayerJoined, EventPlayerLeft, EventServerShutdown:
		return PriorityHigh
	case EventEntityMoved, EventTime:
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// WorldEvent - событие игрового мира
type WorldEvent struct {
	Type     EventType      `json:"type"`
	Tick     uint64         `json:"tick,omitempty"`
	Position Vec2           `json:"position"`
	EntityID string         `json:"entity_id,omitempty"`
	PlayerID string         `json:"player_id,omitempty"`
	Message  string         `json:"message,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
}

// Global сообщает, что событие должно рассылаться всем независимо от позиции
func (e *WorldEvent) Global() bool {
	switch e.Type {
	case EventTime, EventChat, EventPlayerJoined, EventPlayerLeft, EventServerShutdown:
		return true
	}
	return false
}
