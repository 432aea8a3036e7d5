package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/annelo/tileworld/internal/service"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

var (
	serverAddr   = flag.String("addr", "localhost:50051", "gRPC адрес сервера")
	clientsCount = flag.Int("n", 100, "Количество эмулируемых клиентов")
	duration     = flag.Duration("duration", 30*time.Second, "Длительность теста")
	actChance    = flag.Int("act", 10, "Вероятность действия с тайлом за тик, %")
)

// counters - общая статистика ботов
type counters struct {
	joined   atomic.Int64
	sent     atomic.Int64
	events   atomic.Int64
	rejected atomic.Int64
}

var directions = []wt.Vec2{{X: 1}, {X: -1}, {Y: 1}, {Y: -1}}

func main() {
	flag.Parse()
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "bclient"})
	logger.Info("Запускаем ботов", "clients", *clientsCount, "addr", *serverAddr, "duration", *duration)

	conn, err := grpc.NewClient(*serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		logger.Fatal("Не удалось подключиться", "error", err)
	}
	defer conn.Close()
	client := service.NewWorldClient(conn)

	stopCtx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	var (
		wg    sync.WaitGroup
		stats counters
	)
	for i := 0; i < *clientsCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := runClient(stopCtx, client, id, &stats); err != nil {
				logger.Warn("Бот завершился с ошибкой", "bot", id, "error", err)
			}
		}(i)
	}

	wg.Wait()
	logger.Info("Боты завершили работу",
		"joined", stats.joined.Load(),
		"sent", stats.sent.Load(),
		"events", stats.events.Load(),
		"rejected", stats.rejected.Load(),
	)
}

func runClient(ctx context.Context, client service.WorldClient, id int, stats *counters) error {
	joinResp, err := client.JoinGame(ctx, &service.JoinRequest{Name: fmt.Sprintf("bot-%d", id)})
	if err != nil {
		return fmt.Errorf("join: %w", err)
	}
	stats.joined.Add(1)
	creds := grpc.PerRPCCredentials(service.BearerToken(joinResp.Token))

	stream, err := client.GameStream(ctx, creds)
	if err != nil {
		return fmt.Errorf("stream: %w", err)
	}

	// Читатель считает события и отказы
	go func() {
		for {
			msg, err := stream.Recv()
			if err != nil {
				return
			}
			switch {
			case msg.Error != nil:
				stats.rejected.Add(1)
			case msg.Event != nil:
				stats.events.Add(1)
			}
		}
	}()

	randSrc := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)))
	pos := joinResp.Position
	var seq uint64

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	send := func(msg *service.ClientMessage) error {
		seq++
		msg.Seq = seq
		if err := stream.Send(msg); err != nil {
			return err
		}
		stats.sent.Add(1)
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			if err := stream.CloseSend(); err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			return nil
		case <-ticker.C:
			dir := directions[randSrc.Intn(len(directions))]
			if err := send(&service.ClientMessage{Type: service.MsgMove, Direction: dir, DT: 0.1}); err != nil {
				return nil
			}
			pos = pos.Add(dir.Scale(0.5))

			if randSrc.Intn(100) < *actChance {
				target := pos.Add(dir).Tile()
				if err := send(&service.ClientMessage{Type: service.MsgAct, Target: target}); err != nil {
					return nil
				}
			}
		}
	}
}
