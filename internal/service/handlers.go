package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/annelo/tileworld/internal/playermanager"
	"github.com/annelo/tileworld/internal/plugin"
	"github.com/annelo/tileworld/internal/world"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

// MaxNameLength - наибольшая длина имени игрока
const MaxNameLength = 24

var _ WorldServer = (*WorldService)(nil)

// RegisterServer registers the WorldService on the given gRPC server.
func (s *WorldService) RegisterServer(grpcServer grpc.ServiceRegistrar) {
	RegisterWorldServer(grpcServer, s)
}

func validatePlayerName(name string) error {
	if name == "" {
		return invalidArgument("name", "имя игрока не может быть пустым")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return invalidArgument("name", "имя игрока слишком длинное")
	}
	for _, r := range name {
		if !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return invalidArgument("name", "имя игрока содержит недопустимые символы")
		}
	}
	return nil
}

// JoinGame handles player join requests.
func (s *WorldService) JoinGame(ctx context.Context, req *JoinRequest) (*JoinResponse, error) {
	name := strings.TrimSpace(req.Name)
	if err := validatePlayerName(name); err != nil {
		return nil, err
	}
	id := world.PlayerID(name)

	p, err := s.world.Players().Get(id)
	if err == nil {
		// Игрок остался в мире без потока: переиспользуем его
		if s.isConnected(id) {
			return nil, status.Errorf(codes.AlreadyExists, "игрок %s уже в игре", name)
		}
	} else {
		p, err = s.world.JoinPlayer(ctx, id, name)
		if err != nil {
			s.logger.Errorw("Не удалось добавить игрока", "name", name, "error", err)
			return nil, toStatus(err)
		}
	}

	operator := s.operators(name)
	token, err := s.auth.Issue(id, name, operator)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	health, maxHealth := p.Health()
	s.logger.Infow("Игрок присоединился к игре", "name", name, "player_id", id, "operator", operator)
	return &JoinResponse{
		PlayerID:   id,
		Token:      token,
		Operator:   operator,
		Seed:       s.world.Seed(),
		Spawn:      s.world.Spawn(),
		Position:   p.Position(),
		Health:     health,
		MaxHealth:  maxHealth,
		Selected:   p.Selected(),
		Inventory:  p.Inventory().Snapshot(),
		ServerTime: timestamppb.New(s.now()),
	}, nil
}

// playerFromContext возвращает ID игрока из токена и проверяет, что он в мире
func (s *WorldService) playerFromContext(ctx context.Context) (string, error) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "нет токена сессии")
	}
	if _, err := s.world.Players().Get(claims.Subject); err != nil {
		return "", status.Errorf(codes.NotFound, "Player not found: %v", err)
	}
	return claims.Subject, nil
}

// GetChunks handles world chunk requests.
func (s *WorldService) GetChunks(req *ChunksRequest, stream grpc.ServerStreamingServer[ChunkMessage]) error {
	ctx := stream.Context()
	playerID, err := s.playerFromContext(ctx)
	if err != nil {
		return err
	}
	if req.Radius < 0 {
		return invalidArgument("radius", "радиус не может быть отрицательным")
	}
	radius := req.Radius
	if radius > MaxChunkRadius {
		radius = MaxChunkRadius
		s.logger.Debugw("Радиус запроса чанков уменьшен", "player_id", playerID, "radius", radius)
	}

	center := req.Center
	for y := center.Y - radius; y <= center.Y+radius; y++ {
		for x := center.X - radius; x <= center.X+radius; x++ {
			if err := ctx.Err(); err != nil {
				return status.FromContextError(err).Err()
			}
			pos := wt.ChunkPosition{X: x, Y: y}
			chunk, err := s.world.Chunks().GetOrGenerate(ctx, pos)
			if err != nil {
				s.logger.Warnw("Ошибка при получении чанка", "chunk", pos.Key(), "error", err)
				continue
			}
			if err := stream.Send(chunkMessage(chunk)); err != nil {
				s.logger.Errorw("Ошибка при отправке чанка", "chunk", pos.Key(), "error", err)
				return status.Errorf(codes.Internal, "Error sending chunk: %v", err)
			}
		}
	}
	return nil
}

// GameStream establishes a bidirectional stream for game events.
// Отключение клиента выводит его игрока из мира с сохранением.
func (s *WorldService) GameStream(stream grpc.BidiStreamingServer[ClientMessage, ServerMessage]) error {
	ctx := stream.Context()
	playerID, err := s.playerFromContext(ctx)
	if err != nil {
		return err
	}

	conn := newClientConn(playerID)
	s.mu.Lock()
	if old, ok := s.clients[playerID]; ok {
		old.close()
	}
	s.clients[playerID] = conn
	s.mu.Unlock()
	playersConnected.Add(1)

	writeErr := make(chan error, 1)
	go func() {
		writeErr <- conn.writeLoop(ctx, stream)
	}()

	recvDone := make(chan error, 1)
	go func() {
		for {
			msg, err := stream.Recv()
			if err != nil {
				recvDone <- err
				return
			}
			if reply := s.handleClientMessage(ctx, playerID, msg); reply != nil {
				conn.send(reply, true, false)
			}
		}
	}()

	// Поток завершается, когда клиент закрыл его или сервер закрыл соединение
	var recvErr error
	select {
	case err := <-recvDone:
		if !errors.Is(err, io.EOF) {
			recvErr = err
		}
	case <-conn.done:
	}

	conn.close()
	<-writeErr
	replaced := s.removeClient(playerID, conn)
	playersConnected.Add(-1)

	if !replaced {
		if err := s.world.LeavePlayer(context.WithoutCancel(ctx), playerID); err != nil && !errors.Is(err, playermanager.ErrPlayerNotFound) {
			s.logger.Errorw("Ошибка при выходе игрока", "player_id", playerID, "error", err)
		}
	}
	s.logger.Infow("Player disconnected", "player_id", playerID, "dropped", conn.dropped.Load())

	if recvErr != nil && status.Code(recvErr) != codes.Canceled {
		s.logger.Infow("Connection lost", "player_id", playerID, "error", recvErr)
	}
	return nil
}

// removeClient удаляет соединение. Возвращает true, если его уже заменило новое соединение того же игрока.
func (s *WorldService) removeClient(playerID string, conn *clientConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.clients[playerID]
	if ok && current == conn {
		delete(s.clients, playerID)
		s.throttleMu.Lock()
		delete(s.lastPosBroadcast, playerID)
		s.throttleMu.Unlock()
		return false
	}
	return ok
}

func (s *WorldService) isConnected(playerID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.clients[playerID]
	return ok
}

// Command выполняет консольную команду от имени оператора
func (s *WorldService) Command(ctx context.Context, req *CommandRequest) (*CommandResponse, error) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok || !claims.Operator {
		return nil, status.Error(codes.PermissionDenied, "команды доступны только операторам")
	}
	line := strings.TrimSpace(req.Line)
	if line == "" {
		return nil, invalidArgument("line", "пустая команда")
	}

	out, err := s.registry.Execute(line)
	if err != nil {
		if errors.Is(err, plugin.ErrUnknownCommand) {
			return nil, invalidArgument("line", err.Error())
		}
		code := codeOf(err)
		if code == codes.Internal {
			code = codes.FailedPrecondition
		}
		return nil, status.Error(code, err.Error())
	}
	s.logger.Infow("Команда оператора", "player", claims.Name, "line", line)
	return &CommandResponse{Output: out}, nil
}
