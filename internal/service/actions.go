package service

import (
	"context"
	"math"

	"github.com/annelo/tileworld/internal/world"
)

// handleClientMessage routes incoming client messages to the world. Возвращает подтверждение или ошибку.
func (s *WorldService) handleClientMessage(ctx context.Context, playerID string, msg *ClientMessage) *ServerMessage {
	result, err := s.applyClientMessage(ctx, playerID, msg)
	if err != nil {
		s.logger.Debugw("Действие отклонено", "player_id", playerID, "type", msg.Type, "error", err)
		return errorMessage(msg.Seq, err)
	}
	// Движение подтверждается событием перемещения
	if msg.Type == MsgMove {
		return nil
	}
	return &ServerMessage{Ack: &Ack{Seq: msg.Seq, Type: msg.Type, Result: result}}
}

func (s *WorldService) applyClientMessage(ctx context.Context, playerID string, msg *ClientMessage) (string, error) {
	switch msg.Type {
	case MsgMove:
		if msg.DT <= 0 || math.IsNaN(msg.DT) || math.IsInf(msg.DT, 0) {
			return "", invalidArgument("dt", "шаг времени должен быть положительным")
		}
		if math.IsNaN(msg.Direction.X) || math.IsNaN(msg.Direction.Y) {
			return "", invalidArgument("direction", "некорректное направление")
		}
		_, err := s.world.MovePlayer(playerID, msg.Direction.Normalize(), msg.DT)
		return "", err

	case MsgSelect:
		return "", s.world.SelectSlot(playerID, msg.Slot)

	case MsgAct:
		outcome, err := s.world.Act(playerID, msg.Target)
		return string(outcome), err

	case MsgInteract:
		if msg.Action == "" {
			return "", invalidArgument("action", "не задано действие")
		}
		_, err := s.world.Interact(playerID, msg.Target, msg.Action, world.InteractData{
			Slot:  msg.Slot,
			Count: msg.Count,
			Text:  msg.Text,
		})
		return msg.Action, err

	case MsgCraft:
		return "", s.world.Craft(playerID, msg.Recipe)

	case MsgRespawn:
		_, err := s.world.Respawn(ctx, playerID)
		return "", err

	case MsgSleep:
		return "", s.world.Sleep(playerID, msg.Target)

	case MsgChat:
		return "", s.world.Chat(playerID, msg.Text)
	}
	return "", invalidArgument("type", "неизвестный вид сообщения: "+string(msg.Type))
}
