package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/nsf/termbox-go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/annelo/tileworld/internal/service"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

var (
	serverAddr = flag.String("server", "localhost:50051", "Адрес сервера и порт")
	playerName = flag.String("name", "Player1", "Имя игрока")
	debugMode  = flag.Bool("debug", false, "Режим отладки (показать подробную информацию)")
)

// moveStep - сколько секунд ходьбы дает одно нажатие клавиши
const moveStep = 0.1

// ClientState содержит состояние клиента
type ClientState struct {
	playerID       string
	playerName     string
	token          string
	position       wt.Vec2
	facing         wt.Vec2
	health         int
	maxHealth      int
	selected       int
	recipe         int
	night          bool
	chunks         map[wt.ChunkPosition]*wt.Chunk
	chunkRequests  map[wt.ChunkPosition]bool // Какие чанки были запрошены
	serverMessages []string                  // Последние сообщения от сервера
	mu             sync.RWMutex
	// Позиции других игроков и мобов, ключ – ID сущности
	otherPlayers map[string]wt.Vec2
	entities     map[string]wt.Vec2
	client       service.WorldClient
	stream       grpc.BidiStreamingClient[service.ClientMessage, service.ServerMessage]
	seq          atomic.Uint64
}

// newClientState создает новое состояние клиента
func newClientState() *ClientState {
	return &ClientState{
		facing:        wt.Vec2{X: 0, Y: 1},
		chunks:        make(map[wt.ChunkPosition]*wt.Chunk),
		chunkRequests: make(map[wt.ChunkPosition]bool),
		serverMessages: []string{
			"Подключение к серверу...",
		},
		otherPlayers: make(map[string]wt.Vec2),
		entities:     make(map[string]wt.Vec2),
	}
}

// Символы для верхнего тайла клетки
var tileSymbols = map[wt.TileID]rune{
	wt.TileNone:        ' ',
	wt.TileWater:       '~',
	wt.TileGrass:       '.',
	wt.TileDirt:        ',',
	wt.TileIce:         '=',
	wt.TileIcyGrass:    ':',
	wt.TileIcyDirt:     ';',
	wt.TileTorch:       '!',
	wt.TileSleepingBag: 'b',
	wt.TileStone:       '#',
	wt.TileBush:        '%',
	wt.TileIcyBush:     '%',
	wt.TileRock:        'o',
	wt.TileIcyRock:     'o',
	wt.TileIronOre:     'i',
	wt.TileDiamondOre:  'd',
	wt.TileCoalOre:     'c',
	wt.TileChest:       'C',
	wt.TileFurnace:     'F',
	wt.TileWorkbench:   'W',
	wt.TileSign:        'S',
}

// Цвета для тайлов
var tileColors = map[wt.TileID]termbox.Attribute{
	wt.TileWater:      termbox.ColorBlue,
	wt.TileGrass:      termbox.ColorGreen,
	wt.TileDirt:       termbox.ColorYellow,
	wt.TileIce:        termbox.ColorCyan,
	wt.TileIcyGrass:   termbox.ColorCyan,
	wt.TileIcyDirt:    termbox.ColorWhite,
	wt.TileTorch:      termbox.ColorYellow | termbox.AttrBold,
	wt.TileStone:      termbox.ColorWhite,
	wt.TileBush:       termbox.ColorGreen | termbox.AttrBold,
	wt.TileIcyBush:    termbox.ColorCyan | termbox.AttrBold,
	wt.TileIronOre:    termbox.ColorRed,
	wt.TileDiamondOre: termbox.ColorCyan | termbox.AttrBold,
	wt.TileCoalOre:    termbox.ColorBlack | termbox.AttrBold,
	wt.TileChest:      termbox.ColorYellow,
	wt.TileFurnace:    termbox.ColorRed | termbox.AttrBold,
	wt.TileWorkbench:  termbox.ColorYellow,
	wt.TileSign:       termbox.ColorWhite,
}

func (cs *ClientState) callOption() grpc.CallOption {
	return grpc.PerRPCCredentials(service.BearerToken(cs.token))
}

// getCell возвращает клетку в указанной позиции и запрашивает незагруженный чанк
func (cs *ClientState) getCell(tile wt.TilePosition) (wt.Cell, bool) {
	pos := tile.Chunk()

	cs.mu.Lock()
	defer cs.mu.Unlock()

	chunk, exists := cs.chunks[pos]
	if !exists {
		if !cs.chunkRequests[pos] {
			// Отмечаем, что чанк запрошен, чтобы не запрашивать его многократно
			cs.chunkRequests[pos] = true
			go cs.requestChunks(pos)
		}
		return wt.Cell{}, false
	}
	lx, ly := tile.Local()
	return chunk.At(lx, ly), true
}

// addServerMessage добавляет сообщение в список сообщений
func (cs *ClientState) addServerMessage(message string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.serverMessages = append([]string{message}, cs.serverMessages...)
	if len(cs.serverMessages) > 5 {
		cs.serverMessages = cs.serverMessages[:5]
	}
}

// requestChunks запрашивает чанки вокруг center
func (cs *ClientState) requestChunks(center wt.ChunkPosition) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := cs.client.GetChunks(ctx, &service.ChunksRequest{Center: center, Radius: 1}, cs.callOption())
	if err != nil {
		cs.forgetRequest(center)
		return
	}

	received := 0
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			cs.addServerMessage(fmt.Sprintf("Ошибка при получении чанка: %v", err))
			cs.forgetRequest(center)
			return
		}
		chunk, err := service.ChunkFromMessage(msg)
		if err != nil {
			continue
		}
		cs.mu.Lock()
		cs.chunks[chunk.Position] = chunk
		cs.chunkRequests[chunk.Position] = true
		cs.mu.Unlock()
		received++
	}
	if *debugMode {
		cs.addServerMessage(fmt.Sprintf("Получено %d чанков вокруг %s", received, center))
	}
}

// forgetRequest помечает чанк как не запрошенный, чтобы попробовать позже
func (cs *ClientState) forgetRequest(pos wt.ChunkPosition) {
	cs.mu.Lock()
	delete(cs.chunkRequests, pos)
	cs.mu.Unlock()
}

func (cs *ClientState) send(msg *service.ClientMessage) {
	if cs.stream == nil {
		return
	}
	msg.Seq = cs.seq.Add(1)
	if err := cs.stream.Send(msg); err != nil {
		cs.addServerMessage(fmt.Sprintf("Ошибка отправки: %v", err))
	}
}

// movePlayer отправляет шаг в заданном направлении; позицию подтверждает сервер
func (cs *ClientState) movePlayer(dx, dy float64) {
	dir := wt.Vec2{X: dx, Y: dy}
	cs.mu.Lock()
	cs.facing = dir
	cs.mu.Unlock()
	cs.send(&service.ClientMessage{Type: service.MsgMove, Direction: dir, DT: moveStep})
}

// target возвращает тайл перед игроком
func (cs *ClientState) target() wt.TilePosition {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.position.Add(cs.facing).Tile()
}

// processInput обрабатывает ввод с клавиатуры
func processInput(cs *ClientState) {
	for {
		switch ev := termbox.PollEvent(); ev.Type {
		case termbox.EventKey:
			switch ev.Key {
			case termbox.KeyEsc, termbox.KeyCtrlC:
				return
			case termbox.KeyArrowUp:
				cs.movePlayer(0, -1)
			case termbox.KeyArrowDown:
				cs.movePlayer(0, 1)
			case termbox.KeyArrowLeft:
				cs.movePlayer(-1, 0)
			case termbox.KeyArrowRight:
				cs.movePlayer(1, 0)
			case termbox.KeySpace:
				cs.send(&service.ClientMessage{Type: service.MsgAct, Target: cs.target()})
			case termbox.KeyEnter:
				cs.send(&service.ClientMessage{Type: service.MsgInteract, Target: cs.target(), Action: "open"})
			}

			switch ev.Ch {
			case 'w':
				cs.movePlayer(0, -1)
			case 's':
				cs.movePlayer(0, 1)
			case 'a':
				cs.movePlayer(-1, 0)
			case 'd':
				cs.movePlayer(1, 0)
			case '1', '2', '3', '4', '5', '6', '7', '8', '9':
				cs.send(&service.ClientMessage{Type: service.MsgSelect, Slot: int(ev.Ch - '1')})
			case '[', ']':
				cs.mu.Lock()
				if ev.Ch == '[' && cs.recipe > 0 {
					cs.recipe--
				} else if ev.Ch == ']' {
					cs.recipe++
				}
				cs.mu.Unlock()
			case 'c':
				cs.mu.RLock()
				recipe := cs.recipe
				cs.mu.RUnlock()
				cs.send(&service.ClientMessage{Type: service.MsgCraft, Recipe: recipe})
			case 'z':
				cs.send(&service.ClientMessage{Type: service.MsgSleep, Target: cs.target()})
			case 'r':
				cs.send(&service.ClientMessage{Type: service.MsgRespawn})
			case 'q':
				return
			}
		case termbox.EventInterrupt:
			return
		case termbox.EventError:
			log.Fatalf("Ошибка терминала: %v", ev.Err)
		}
	}
}

// renderWorld отображает мир вокруг игрока
func renderWorld(cs *ClientState) {
	termbox.Clear(termbox.ColorDefault, termbox.ColorDefault)
	width, height := termbox.Size()

	cs.mu.RLock()
	pos := cs.position
	info := fmt.Sprintf("Игрок: %s | HP: %d/%d | Слот: %d | Рецепт: %d | X: %.1f | Y: %.1f",
		cs.playerName, cs.health, cs.maxHealth, cs.selected+1, cs.recipe, pos.X, pos.Y)
	if cs.night {
		info += " | ночь"
	}
	others := make(map[wt.TilePosition]rune, len(cs.otherPlayers)+len(cs.entities))
	for _, p := range cs.otherPlayers {
		others[p.Tile()] = 'P'
	}
	for _, p := range cs.entities {
		if _, ok := others[p.Tile()]; !ok {
			others[p.Tile()] = 'm'
		}
	}
	messages := append([]string(nil), cs.serverMessages...)
	cs.mu.RUnlock()

	infoY := 0
	drawText(0, infoY, width, info, termbox.ColorWhite, termbox.ColorDefault)
	infoY++

	if *debugMode {
		tile := pos.Tile()
		lx, ly := tile.Local()
		debugInfo := fmt.Sprintf("Чанк: %s | Тайл: [%d, %d] | Локально: [%d, %d]", pos.Chunk(), tile.X, tile.Y, lx, ly)
		drawText(0, infoY, width, debugInfo, termbox.ColorYellow, termbox.ColorDefault)
		infoY++
	}

	for x := 0; x < width; x++ {
		termbox.SetCell(x, infoY, '-', termbox.ColorWhite, termbox.ColorDefault)
	}
	infoY++

	startY := infoY
	worldHeight := height - startY - 7
	worldWidth := width
	center := pos.Tile()

	for y := 0; y < worldHeight; y++ {
		for x := 0; x < worldWidth; x++ {
			tile := wt.TilePosition{
				X: center.X - int32(worldWidth/2) + int32(x),
				Y: center.Y - int32(worldHeight/2) + int32(y),
			}
			cell, loaded := cs.getCell(tile)
			symbol, fg, bg := ' ', termbox.ColorDefault, termbox.ColorDefault
			if loaded {
				top := cell.Top()
				symbol = tileSymbols[top]
				fg = tileColors[top]
			}

			switch {
			case tile == center:
				symbol, fg, bg = '@', termbox.ColorRed, termbox.ColorDarkGray
			case others[tile] != 0:
				symbol, fg, bg = others[tile], termbox.ColorYellow, termbox.ColorDarkGray
			}
			termbox.SetCell(x, y+startY, symbol, fg, bg)
		}
	}

	msgY := height - 7
	drawText(0, msgY, width, "----- Сообщения -----", termbox.ColorWhite, termbox.ColorDefault)
	msgY++
	for i, msg := range messages {
		drawText(0, msgY+i, width, msg, termbox.ColorCyan, termbox.ColorDefault)
	}

	instructions := "WASD - ходьба, Пробел - действие, Enter - открыть, 1-9 - слот, [ ] c - крафт, z - сон, r - возрождение, Q - выход"
	drawText(0, height-1, width, instructions, termbox.ColorWhite, termbox.ColorDefault)
	termbox.Flush()
}

// drawText отображает текст с ограничением по ширине
func drawText(x, y, maxWidth int, text string, fg, bg termbox.Attribute) {
	i := 0
	for _, ch := range text {
		if i >= maxWidth {
			break
		}
		termbox.SetCell(x+i, y, ch, fg, bg)
		i++
	}
}

// payloadInt читает число из полезной нагрузки события (JSON отдает float64)
func payloadInt(ev *wt.WorldEvent, key string) (int, bool) {
	v, ok := ev.Payload[key].(float64)
	return int(v), ok
}

// payloadCodes читает стек кодов клетки
func payloadCodes(ev *wt.WorldEvent) []string {
	raw, _ := ev.Payload["codes"].([]any)
	codes := make([]string, 0, len(raw))
	for _, c := range raw {
		if s, ok := c.(string); ok {
			codes = append(codes, s)
		}
	}
	return codes
}

// processServerMessages обрабатывает сообщения от сервера
func processServerMessages(cs *ClientState) {
	for {
		msg, err := cs.stream.Recv()
		if errors.Is(err, io.EOF) {
			cs.addServerMessage("Сервер закрыл соединение")
			return
		}
		if err != nil {
			cs.addServerMessage(fmt.Sprintf("Ошибка: %v", err))
			return
		}

		switch {
		case msg.Error != nil:
			cs.addServerMessage(fmt.Sprintf("Отклонено (%s): %s", msg.Error.Code, msg.Error.Message))
		case msg.Ack != nil:
			if msg.Ack.Result != "" && *debugMode {
				cs.addServerMessage(fmt.Sprintf("%s: %s", msg.Ack.Type, msg.Ack.Result))
			}
		case msg.Event != nil:
			handleEvent(cs, msg.Event)
		}
	}
}

func handleEvent(cs *ClientState, ev *wt.WorldEvent) {
	own := ev.PlayerID == cs.playerID

	switch ev.Type {
	case wt.EventPlayerMoved, wt.EventPlayerRespawned:
		cs.mu.Lock()
		if own {
			cs.position = ev.Position
			if h, ok := payloadInt(ev, "health"); ok {
				cs.health = h
			}
		} else {
			cs.otherPlayers[ev.PlayerID] = ev.Position
		}
		cs.mu.Unlock()

	case wt.EventPlayerJoined:
		if !own {
			cs.mu.Lock()
			cs.otherPlayers[ev.PlayerID] = ev.Position
			cs.mu.Unlock()
			cs.addServerMessage(fmt.Sprintf("Игрок %s присоединился", ev.Message))
		}

	case wt.EventPlayerLeft:
		cs.mu.Lock()
		delete(cs.otherPlayers, ev.PlayerID)
		cs.mu.Unlock()
		cs.addServerMessage(fmt.Sprintf("Игрок %s отключился", ev.Message))

	case wt.EventPlayerHealth:
		if own {
			if h, ok := payloadInt(ev, "health"); ok {
				cs.mu.Lock()
				cs.health = h
				cs.mu.Unlock()
			}
		}

	case wt.EventPlayerDied:
		if own {
			cs.addServerMessage("Вы погибли. Нажмите r для возрождения")
		}

	case wt.EventInventory:
		if sel, ok := payloadInt(ev, "selected"); ok {
			cs.mu.Lock()
			cs.selected = sel
			cs.mu.Unlock()
		}

	case wt.EventTileChanged:
		x, okX := payloadInt(ev, "x")
		y, okY := payloadInt(ev, "y")
		if !okX || !okY {
			return
		}
		tile := wt.TilePosition{X: int32(x), Y: int32(y)}
		cs.mu.Lock()
		if chunk, ok := cs.chunks[tile.Chunk()]; ok {
			lx, ly := tile.Local()
			chunk.Set(lx, ly, wt.CellFromCodes(payloadCodes(ev)))
		}
		cs.mu.Unlock()

	case wt.EventEntitySpawned, wt.EventEntityMoved:
		cs.mu.Lock()
		cs.entities[ev.EntityID] = ev.Position
		cs.mu.Unlock()

	case wt.EventEntityDespawned:
		cs.mu.Lock()
		delete(cs.entities, ev.EntityID)
		cs.mu.Unlock()

	case wt.EventChunkUnloaded:
		cs.mu.Lock()
		pos := ev.Position.Chunk()
		delete(cs.chunks, pos)
		delete(cs.chunkRequests, pos)
		cs.mu.Unlock()

	case wt.EventTime:
		night, _ := ev.Payload["night"].(bool)
		cs.mu.Lock()
		cs.night = night
		cs.mu.Unlock()

	case wt.EventChat:
		name, _ := ev.Payload["name"].(string)
		cs.addServerMessage(fmt.Sprintf("%s: %s", name, ev.Message))

	case wt.EventItemPickup:
		if own {
			cs.addServerMessage("Предмет подобран")
		}

	case wt.EventServerShutdown:
		cs.addServerMessage("Сервер останавливается")
	}
}

func main() {
	flag.Parse()

	clientState := newClientState()
	clientState.playerName = *playerName

	conn, err := grpc.NewClient(*serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("Не удалось подключиться к серверу: %v", err)
	}
	defer conn.Close()

	client := service.NewWorldClient(conn)
	clientState.client = client

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resp, err := client.JoinGame(ctx, &service.JoinRequest{Name: *playerName})
	if err != nil {
		log.Fatalf("Ошибка при подключении к игре: %v", err)
	}

	clientState.playerID = resp.PlayerID
	clientState.token = resp.Token
	clientState.position = resp.Position
	clientState.health = resp.Health
	clientState.maxHealth = resp.MaxHealth
	clientState.selected = resp.Selected
	clientState.addServerMessage(fmt.Sprintf("Успешное подключение! ID: %s, сид: %d", resp.PlayerID, resp.Seed))

	stream, err := client.GameStream(ctx, clientState.callOption())
	if err != nil {
		log.Fatalf("Ошибка при создании потока: %v", err)
	}
	clientState.stream = stream

	if err := termbox.Init(); err != nil {
		log.Fatalf("Не удалось инициализировать терминал: %v", err)
	}
	defer termbox.Close()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalChan
		cancel()
		termbox.Interrupt()
	}()

	go processServerMessages(clientState)

	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				renderWorld(clientState)
			}
		}
	}()

	processInput(clientState)

	cancel()
	_ = stream.CloseSend()
}
