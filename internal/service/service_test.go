package service_test

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/annelo/tileworld/internal/gamedata"
	"github.com/annelo/tileworld/internal/plugin"
	"github.com/annelo/tileworld/internal/service"
	"github.com/annelo/tileworld/internal/world"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

const testSecret = "test-secret-for-tileworld"

type testEnv struct {
	world  *world.World
	reg    *plugin.DefaultRegistry
	auth   *service.Authenticator
	svc    *service.WorldService
	client service.WorldClient
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cat, err := gamedata.Load()
	require.NoError(t, err)
	cfg := world.DefaultConfig()
	cfg.Name = "test"
	cfg.Seed = 42
	w, err := world.New(context.Background(), cfg, cat, nil, rand.New(rand.NewSource(42)), nil)
	require.NoError(t, err)

	reg := plugin.NewDefaultRegistry()
	auth := service.NewAuthenticator(testSecret, time.Hour)
	svc := service.NewWorldService(w, reg, auth,
		service.WithOperators(func(name string) bool { return name == "admin" }))

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(auth.ServerOptions()...)
	svc.RegisterServer(srv)
	go func() { _ = srv.Serve(lis) }()

	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		srv.Stop()
		_ = svc.Stop(context.Background())
		cancel()
	})
	return &testEnv{world: w, reg: reg, auth: auth, svc: svc, client: service.NewWorldClient(conn)}
}

func (e *testEnv) join(t *testing.T, name string) *service.JoinResponse {
	t.Helper()
	resp, err := e.client.JoinGame(context.Background(), &service.JoinRequest{Name: name})
	require.NoError(t, err)
	return resp
}

func withToken(token string) grpc.CallOption {
	return grpc.PerRPCCredentials(service.BearerToken(token))
}

// recvUntil читает поток, пока pred не вернет true
func recvUntil(t *testing.T, stream grpc.BidiStreamingClient[service.ClientMessage, service.ServerMessage], pred func(*service.ServerMessage) bool) *service.ServerMessage {
	t.Helper()
	for {
		msg, err := stream.Recv()
		require.NoError(t, err)
		if pred(msg) {
			return msg
		}
	}
}

func TestJoinGameIssuesToken(t *testing.T) {
	env := newTestEnv(t)
	resp := env.join(t, "alice")

	assert.Equal(t, world.PlayerID("alice"), resp.PlayerID)
	assert.Equal(t, int64(42), resp.Seed)
	assert.Equal(t, 20, resp.Health)
	assert.Equal(t, env.world.Spawn(), resp.Spawn)
	assert.False(t, resp.Operator)
	require.NotNil(t, resp.ServerTime, "сервер должен сообщить время")

	claims, err := env.auth.Verify(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.PlayerID, claims.Subject)
	assert.Equal(t, "alice", claims.Name)

	// Повторный вход без открытого потока переиспользует игрока
	again := env.join(t, "Alice")
	assert.Equal(t, resp.PlayerID, again.PlayerID)
	assert.Equal(t, 1, env.world.Players().Count())
}

func TestJoinGameRejectsBadName(t *testing.T) {
	env := newTestEnv(t)
	for _, name := range []string{"", "   ", "a b", "abcdefghijklmnopqrstuvwxyz"} {
		_, err := env.client.JoinGame(context.Background(), &service.JoinRequest{Name: name})
		st := status.Convert(err)
		require.Equal(t, codes.InvalidArgument, st.Code(), "имя %q должно быть отклонено", name)

		var found bool
		for _, d := range st.Details() {
			if br, ok := d.(*errdetails.BadRequest); ok {
				require.NotEmpty(t, br.GetFieldViolations())
				assert.Equal(t, "name", br.GetFieldViolations()[0].GetField())
				found = true
			}
		}
		assert.True(t, found, "ошибка должна содержать BadRequest")
	}
}

func TestMethodsRequireToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.client.Command(ctx, &service.CommandRequest{Line: "help"})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	stream, err := env.client.GetChunks(ctx, &service.ChunksRequest{Radius: 1})
	require.NoError(t, err)
	_, err = stream.Recv()
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = env.client.Command(ctx, &service.CommandRequest{Line: "help"}, withToken("garbage"))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestGetChunksClampsRadius(t *testing.T) {
	env := newTestEnv(t)
	resp := env.join(t, "alice")
	center := resp.Position.Chunk()

	stream, err := env.client.GetChunks(context.Background(),
		&service.ChunksRequest{Center: center, Radius: 10}, withToken(resp.Token))
	require.NoError(t, err)

	got := map[wt.ChunkPosition]bool{}
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		require.Len(t, msg.Tiles, wt.ChunkSize)
		chunk, err := service.ChunkFromMessage(msg)
		require.NoError(t, err)
		assert.Equal(t, msg.Position, chunk.Position)
		got[msg.Position] = true
	}
	side := 2*service.MaxChunkRadius + 1
	assert.Len(t, got, side*side, "радиус ограничен сверху")
	assert.True(t, got[center])

	stream, err = env.client.GetChunks(context.Background(),
		&service.ChunksRequest{Center: center, Radius: -1}, withToken(resp.Token))
	require.NoError(t, err)
	_, err = stream.Recv()
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGameStreamChatAndAck(t *testing.T) {
	env := newTestEnv(t)
	resp := env.join(t, "alice")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := env.client.GameStream(ctx, withToken(resp.Token))
	require.NoError(t, err)

	require.NoError(t, stream.Send(&service.ClientMessage{Seq: 7, Type: service.MsgChat, Text: "привет"}))

	var gotAck, gotChat bool
	recvUntil(t, stream, func(m *service.ServerMessage) bool {
		if m.Ack != nil && m.Ack.Seq == 7 {
			gotAck = true
		}
		if m.Event != nil && m.Event.Type == wt.EventChat {
			assert.Equal(t, "привет", m.Event.Message)
			gotChat = true
		}
		return gotAck && gotChat
	})
}

func TestGameStreamReportsRejectedActions(t *testing.T) {
	env := newTestEnv(t)
	resp := env.join(t, "alice")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := env.client.GameStream(ctx, withToken(resp.Token))
	require.NoError(t, err)

	require.NoError(t, stream.Send(&service.ClientMessage{Seq: 1, Type: "dance"}))
	msg := recvUntil(t, stream, func(m *service.ServerMessage) bool { return m.Error != nil })
	assert.Equal(t, uint64(1), msg.Error.Seq)
	assert.Equal(t, codes.InvalidArgument.String(), msg.Error.Code)

	require.NoError(t, stream.Send(&service.ClientMessage{Seq: 2, Type: service.MsgCraft, Recipe: 5}))
	msg = recvUntil(t, stream, func(m *service.ServerMessage) bool { return m.Error != nil })
	assert.Equal(t, uint64(2), msg.Error.Seq)
	assert.Equal(t, codes.FailedPrecondition.String(), msg.Error.Code, "без верстака и материалов крафт невозможен")

	require.NoError(t, stream.Send(&service.ClientMessage{Seq: 3, Type: service.MsgSleep, Target: resp.Spawn}))
	msg = recvUntil(t, stream, func(m *service.ServerMessage) bool { return m.Error != nil })
	assert.Equal(t, uint64(3), msg.Error.Seq)
}

func TestDisconnectLeavesWorld(t *testing.T) {
	env := newTestEnv(t)
	resp := env.join(t, "alice")

	stream, err := env.client.GameStream(context.Background(), withToken(resp.Token))
	require.NoError(t, err)
	require.NoError(t, stream.Send(&service.ClientMessage{Type: service.MsgSelect, Slot: 1}))
	recvUntil(t, stream, func(m *service.ServerMessage) bool { return m.Ack != nil })
	assert.Len(t, env.svc.ConnectedPlayers(), 1)

	require.NoError(t, stream.CloseSend())
	require.Eventually(t, func() bool {
		return env.world.Players().Count() == 0 && len(env.svc.ConnectedPlayers()) == 0
	}, 3*time.Second, 10*time.Millisecond, "игрок должен выйти из мира после закрытия потока")
}

func TestStopSendsShutdown(t *testing.T) {
	env := newTestEnv(t)
	resp := env.join(t, "alice")

	stream, err := env.client.GameStream(context.Background(), withToken(resp.Token))
	require.NoError(t, err)
	require.NoError(t, stream.Send(&service.ClientMessage{Type: service.MsgSelect, Slot: 0}))
	recvUntil(t, stream, func(m *service.ServerMessage) bool { return m.Ack != nil })

	require.NoError(t, env.svc.Stop(context.Background()))
	recvUntil(t, stream, func(m *service.ServerMessage) bool {
		return m.Event != nil && m.Event.Type == wt.EventServerShutdown
	})
	_, err = stream.Recv()
	assert.Error(t, err, "после остановки поток закрыт")
	assert.Zero(t, env.world.Players().Count())
}

func TestCommandRequiresOperator(t *testing.T) {
	env := newTestEnv(t)
	env.reg.RegisterCommand("ping", "reply pong", func(args []string) (string, error) {
		return "pong", nil
	})
	ctx := context.Background()

	alice := env.join(t, "alice")
	_, err := env.client.Command(ctx, &service.CommandRequest{Line: "ping"}, withToken(alice.Token))
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	admin := env.join(t, "admin")
	require.True(t, admin.Operator)
	out, err := env.client.Command(ctx, &service.CommandRequest{Line: "ping"}, withToken(admin.Token))
	require.NoError(t, err)
	assert.Equal(t, "pong", out.Output)

	_, err = env.client.Command(ctx, &service.CommandRequest{Line: "nope"}, withToken(admin.Token))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestSubscribeReceivesWorldEvents(t *testing.T) {
	env := newTestEnv(t)
	events, unsubscribe := env.svc.Subscribe()
	defer unsubscribe()

	env.world.Emit(wt.WorldEvent{Type: wt.EventChat, Message: "server"})
	select {
	case ev := <-events:
		assert.Equal(t, wt.EventChat, ev.Type)
	case <-time.After(3 * time.Second):
		t.Fatal("подписчик не получил событие")
	}
}

func TestAuthenticatorRejectsExpiredAndForeignTokens(t *testing.T) {
	auth := service.NewAuthenticator(testSecret, time.Minute)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	auth.SetClock(func() time.Time { return now })

	token, err := auth.Issue("id-1", "bob", true)
	require.NoError(t, err)
	claims, err := auth.Verify(token)
	require.NoError(t, err)
	assert.True(t, claims.Operator)

	now = now.Add(2 * time.Minute)
	_, err = auth.Verify(token)
	assert.ErrorIs(t, err, service.ErrInvalidToken, "просроченный токен")

	other := service.NewAuthenticator("another-secret", time.Hour)
	foreign, err := other.Issue("id-1", "bob", true)
	require.NoError(t, err)
	_, err = service.NewAuthenticator(testSecret, time.Hour).Verify(foreign)
	assert.ErrorIs(t, err, service.ErrInvalidToken, "чужая подпись")
}

func TestChunkFromMessageRejectsBrokenGrid(t *testing.T) {
	_, err := service.ChunkFromMessage(&service.ChunkMessage{Tiles: make([][][]string, 3)})
	assert.Error(t, err)
}

func TestRegisterCoreSystems(t *testing.T) {
	reg := plugin.NewDefaultRegistry()
	service.RegisterCoreSystems(reg, time.Minute)
	names := make([]string, 0)
	for _, s := range reg.GameSystems() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"day_night", "chunk_streaming", "entities", "spawn", "tile_entities", "autosave"}, names)
}
