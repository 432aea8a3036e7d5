package savegame

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// LegacyFileName - сохранение старого построчного формата
const LegacyFileName = "level.save"

// ParseLegacyPlayerLine разбирает строку игрока старого формата "x:y:0:health:max".
// Короткая форма "x:y:health" получает максимум здоровья по умолчанию.
func ParseLegacyPlayerLine(line string) (PlayerSave, error) {
	parts := strings.Split(strings.TrimSpace(line), ":")
	ps := PlayerSave{MaxHealth: DefaultHealth}

	var err error
	switch len(parts) {
	case 5:
		if ps.MaxHealth, err = strconv.Atoi(parts[4]); err != nil {
			return PlayerSave{}, fmt.Errorf("%w: максимум здоровья %q", ErrBadSave, parts[4])
		}
		if ps.Health, err = strconv.Atoi(parts[3]); err != nil {
			return PlayerSave{}, fmt.Errorf("%w: здоровье %q", ErrBadSave, parts[3])
		}
	case 3:
		if ps.Health, err = strconv.Atoi(parts[2]); err != nil {
			return PlayerSave{}, fmt.Errorf("%w: здоровье %q", ErrBadSave, parts[2])
		}
	default:
		return PlayerSave{}, fmt.Errorf("%w: строка игрока %q", ErrBadSave, line)
	}

	for i := 0; i < 2; i++ {
		if ps.Position[i], err = strconv.ParseFloat(parts[i], 64); err != nil {
			return PlayerSave{}, fmt.Errorf("%w: координата %q", ErrBadSave, parts[i])
		}
	}
	if ps.Health > ps.MaxHealth {
		ps.Health = ps.MaxHealth
	}
	return ps, nil
}

// ParseLegacyLevel разбирает файл level.save.
// Строки: игрок, инвентарь JSON, сид, точка появления "x:y", время, затемнение.
// Чанки в старом формате хранились отдельно и не переносятся.
func ParseLegacyLevel(data []byte) (*GameSave, error) {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		lines = append(lines, strings.TrimSpace(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(lines) < 3 {
		return nil, fmt.Errorf("%w: в %s всего %d строк", ErrBadSave, LegacyFileName, len(lines))
	}

	player, err := ParseLegacyPlayerLine(lines[0])
	if err != nil {
		return nil, err
	}
	if lines[1] != "" {
		if err := json.Unmarshal([]byte(lines[1]), &player.Inventory); err != nil {
			return nil, fmt.Errorf("%w: инвентарь: %v", ErrBadSave, err)
		}
	}

	gs := &GameSave{
		PlayerState: player,
		WorldState: WorldSave{
			Seed:       lines[2],
			SpawnPoint: player.Position,
			NightShade: DefaultShade,
		},
		Chests:   make(map[string][][2]int),
		Furnaces: make(map[string]FurnaceSave),
		Signs:    make(map[string]string),
		Chunks:   make(map[string][][][]string),
	}

	if len(lines) > 3 && lines[3] != "" {
		sp := strings.Split(lines[3], ":")
		if len(sp) != 2 {
			return nil, fmt.Errorf("%w: точка появления %q", ErrBadSave, lines[3])
		}
		for i := range sp {
			if gs.WorldState.SpawnPoint[i], err = strconv.ParseFloat(sp[i], 64); err != nil {
				return nil, fmt.Errorf("%w: точка появления %q", ErrBadSave, lines[3])
			}
		}
	}
	if len(lines) > 4 && lines[4] != "" {
		if gs.WorldState.GlobalTime, err = strconv.ParseInt(lines[4], 10, 64); err != nil {
			return nil, fmt.Errorf("%w: время %q", ErrBadSave, lines[4])
		}
	}
	if len(lines) > 5 && lines[5] != "" {
		if gs.WorldState.NightShade, err = strconv.Atoi(lines[5]); err != nil {
			return nil, fmt.Errorf("%w: затемнение %q", ErrBadSave, lines[5])
		}
	}
	return gs, nil
}
