package storage

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Номера полей состояния игрока в протобуф-кодировке
const (
	fieldPlayerID        protowire.Number = 1
	fieldPlayerName      protowire.Number = 2
	fieldPlayerX         protowire.Number = 3
	fieldPlayerY         protowire.Number = 4
	fieldPlayerHealth    protowire.Number = 5
	fieldPlayerMaxHealth protowire.Number = 6
	fieldPlayerSlot      protowire.Number = 7
	fieldPlayerSpawnX    protowire.Number = 8
	fieldPlayerSpawnY    protowire.Number = 9
	fieldPlayerLastSeen  protowire.Number = 10

	fieldSlotID    protowire.Number = 1
	fieldSlotCount protowire.Number = 2
)

var errBadPlayerState = errors.New("поврежденное состояние игрока")

// MarshalPlayerState кодирует состояние игрока в формат protobuf wire.
// Пустые слоты инвентаря тоже пишутся, чтобы сохранить их порядок.
func MarshalPlayerState(ps *PlayerState) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldPlayerID, protowire.BytesType)
	b = protowire.AppendString(b, ps.ID)
	b = protowire.AppendTag(b, fieldPlayerName, protowire.BytesType)
	b = protowire.AppendString(b, ps.Name)
	b = protowire.AppendTag(b, fieldPlayerX, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(ps.Position.X))
	b = protowire.AppendTag(b, fieldPlayerY, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(ps.Position.Y))
	b = protowire.AppendTag(b, fieldPlayerHealth, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(ps.Health)))
	b = protowire.AppendTag(b, fieldPlayerMaxHealth, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(ps.MaxHealth)))

	for _, slot := range ps.Inventory {
		var sb []byte
		sb = protowire.AppendTag(sb, fieldSlotID, protowire.VarintType)
		sb = protowire.AppendVarint(sb, uint64(slot[0]))
		sb = protowire.AppendTag(sb, fieldSlotCount, protowire.VarintType)
		sb = protowire.AppendVarint(sb, uint64(slot[1]))

		b = protowire.AppendTag(b, fieldPlayerSlot, protowire.BytesType)
		b = protowire.AppendBytes(b, sb)
	}

	b = protowire.AppendTag(b, fieldPlayerSpawnX, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(ps.Spawn.X)))
	b = protowire.AppendTag(b, fieldPlayerSpawnY, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(ps.Spawn.Y)))
	b = protowire.AppendTag(b, fieldPlayerLastSeen, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(ps.LastSeen))
	return b
}

// UnmarshalPlayerState разбирает состояние игрока; неизвестные поля пропускаются
func UnmarshalPlayerState(b []byte) (*PlayerState, error) {
	ps := &PlayerState{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", errBadPlayerState, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldPlayerID && typ == protowire.BytesType:
			ps.ID, n = protowire.ConsumeString(b)
		case num == fieldPlayerName && typ == protowire.BytesType:
			ps.Name, n = protowire.ConsumeString(b)
		case num == fieldPlayerX && typ == protowire.Fixed64Type:
			var v uint64
			v, n = protowire.ConsumeFixed64(b)
			ps.Position.X = math.Float64frombits(v)
		case num == fieldPlayerY && typ == protowire.Fixed64Type:
			var v uint64
			v, n = protowire.ConsumeFixed64(b)
			ps.Position.Y = math.Float64frombits(v)
		case num == fieldPlayerHealth && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			ps.Health = int32(protowire.DecodeZigZag(v))
		case num == fieldPlayerMaxHealth && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			ps.MaxHealth = int32(protowire.DecodeZigZag(v))
		case num == fieldPlayerSlot && typ == protowire.BytesType:
			var raw []byte
			raw, n = protowire.ConsumeBytes(b)
			if n >= 0 {
				slot, err := unmarshalSlot(raw)
				if err != nil {
					return nil, err
				}
				ps.Inventory = append(ps.Inventory, slot)
			}
		case num == fieldPlayerSpawnX && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			ps.Spawn.X = int32(protowire.DecodeZigZag(v))
		case num == fieldPlayerSpawnY && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			ps.Spawn.Y = int32(protowire.DecodeZigZag(v))
		case num == fieldPlayerLastSeen && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			ps.LastSeen = int64(v)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: поле %d: %v", errBadPlayerState, num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return ps, nil
}

func unmarshalSlot(b []byte) ([2]int, error) {
	var slot [2]int
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return slot, fmt.Errorf("%w: слот: %v", errBadPlayerState, protowire.ParseError(n))
		}
		b = b[n:]
		if typ != protowire.VarintType || (num != fieldSlotID && num != fieldSlotCount) {
			n = protowire.ConsumeFieldValue(num, typ, b)
		} else {
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			if num == fieldSlotID {
				slot[0] = int(v)
			} else {
				slot[1] = int(v)
			}
		}
		if n < 0 {
			return slot, fmt.Errorf("%w: слот: %v", errBadPlayerState, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return slot, nil
}

// playerFileName возвращает имя файла состояния игрока
func playerFileName(id string) string {
	return id + ".pstate"
}
