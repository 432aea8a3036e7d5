package service

import (
	"google.golang.org/protobuf/types/known/timestamppb"

	wt "github.com/annelo/tileworld/internal/worldtypes"
)

// MaxChunkRadius - наибольший радиус запроса чанков
const MaxChunkRadius = 3

// JoinRequest - запрос на вход в игру
type JoinRequest struct {
	Name string `json:"name"`
}

// JoinResponse - ответ на вход: токен сессии и начальное состояние игрока
type JoinResponse struct {
	PlayerID   string                 `json:"player_id"`
	Token      string                 `json:"token"`
	Operator   bool                   `json:"operator,omitempty"`
	Seed       int64                  `json:"seed"`
	Spawn      wt.TilePosition        `json:"spawn"`
	Position   wt.Vec2                `json:"position"`
	Health     int                    `json:"health"`
	MaxHealth  int                    `json:"max_health"`
	Selected   int                    `json:"selected"`
	Inventory  [][2]int               `json:"inventory"`
	ServerTime *timestamppb.Timestamp `json:"server_time,omitempty"`
}

// ChunksRequest - запрос чанков вокруг центра
type ChunksRequest struct {
	Center wt.ChunkPosition `json:"center"`
	Radius int32            `json:"radius"`
}

// ChunkMessage - чанк в переносимом формате стеков кодов [y][x]
type ChunkMessage struct {
	Position wt.ChunkPosition `json:"position"`
	Version  uint32           `json:"version"`
	Tiles    [][][]string     `json:"tiles"`
}

// ClientMessageType - вид сообщения клиента в игровом потоке
type ClientMessageType string

const (
	MsgMove     ClientMessageType = "move"
	MsgSelect   ClientMessageType = "select"
	MsgAct      ClientMessageType = "act"
	MsgInteract ClientMessageType = "interact"
	MsgCraft    ClientMessageType = "craft"
	MsgRespawn  ClientMessageType = "respawn"
	MsgSleep    ClientMessageType = "sleep"
	MsgChat     ClientMessageType = "chat"
)

// ClientMessage - сообщение клиента. Заполняются только поля, нужные его виду.
type ClientMessage struct {
	Seq  uint64            `json:"seq,omitempty"`
	Type ClientMessageType `json:"type"`

	// move
	Direction wt.Vec2 `json:"direction,omitempty"`
	DT        float64 `json:"dt,omitempty"`

	// select, interact
	Slot int `json:"slot,omitempty"`

	// act, interact, sleep
	Target wt.TilePosition `json:"target,omitempty"`

	// interact
	Action string `json:"action,omitempty"`
	Count  int    `json:"count,omitempty"`

	// chat, interact(write)
	Text string `json:"text,omitempty"`

	// craft
	Recipe int `json:"recipe,omitempty"`
}

// Ack подтверждает выполненное действие клиента
type Ack struct {
	Seq    uint64            `json:"seq,omitempty"`
	Type   ClientMessageType `json:"type"`
	Result string            `json:"result,omitempty"`
}

// ErrorMessage сообщает клиенту, что действие отклонено
type ErrorMessage struct {
	Seq     uint64 `json:"seq,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServerMessage - сообщение сервера: событие мира, подтверждение или ошибка
type ServerMessage struct {
	Event *wt.WorldEvent `json:"event,omitempty"`
	Ack   *Ack           `json:"ack,omitempty"`
	Error *ErrorMessage  `json:"error,omitempty"`
}

// CommandRequest - консольная команда оператора
type CommandRequest struct {
	Line string `json:"line"`
}

// CommandResponse - вывод консольной команды
type CommandResponse struct {
	Output string `json:"output"`
}
