package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/annelo/tileworld/internal/config"
	"github.com/annelo/tileworld/internal/gamedata"
	"github.com/annelo/tileworld/internal/httpapi"
	"github.com/annelo/tileworld/internal/logging"
	"github.com/annelo/tileworld/internal/plugin"
	"github.com/annelo/tileworld/internal/savegame"
	"github.com/annelo/tileworld/internal/service"
	"github.com/annelo/tileworld/internal/world"
)

var (
	configPath = flag.String("config", "", "Путь к YAML-файлу настроек")
	worldName  = flag.String("world", "", "Название игрового мира")
	savesDir   = flag.String("saves", "", "Каталог сохранений")
	seed       = flag.Int64("seed", 0, "Сид для генерации нового мира (0 = случайный)")
	port       = flag.Int("port", 0, "Порт для gRPC сервера")
	httpAddr   = flag.String("http", "", "Адрес HTTP API (пусто = из настроек, \"off\" = выключен)")
	debug      = flag.Bool("debug", false, "Отладочный режим: подробный журнал")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Ошибка конфигурации: %v", err)
	}
	applyFlags(cfg)

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Не удалось настроить журнал: %v", err)
	}
	defer logger.Sync() //nolint:errcheck
	zap.ReplaceGlobals(logger.Desugar())

	if err := run(cfg, logger); err != nil {
		logger.Errorw("Сервер завершился с ошибкой", "error", err)
		os.Exit(1)
	}
}

// applyFlags накладывает явно заданные флаги поверх настроек
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "world":
			cfg.World.Name = *worldName
		case "saves":
			cfg.Storage.SavesDir = *savesDir
		case "seed":
			cfg.World.Seed = *seed
		case "port":
			cfg.Server.Port = *port
		case "http":
			cfg.Server.HTTPAddr = *httpAddr
		case "debug":
			cfg.Server.Debug = *debug
		}
	})
	if cfg.Server.Debug {
		cfg.Logging.Level = "debug"
		cfg.Logging.Development = true
	}
	if strings.EqualFold(cfg.Server.HTTPAddr, "off") {
		cfg.Server.HTTPAddr = ""
	}
}

// openWorld находит мир в каталоге (создавая его при необходимости) и открывает его хранилище
func openWorld(ctx context.Context, cfg *config.Config, catalog *savegame.Catalog, reg *plugin.DefaultRegistry, logger *zap.SugaredLogger) (*world.World, *service.WorldService, error) {
	name := cfg.World.Name
	worldSeed := cfg.World.Seed
	if !catalog.Exists(name) {
		if worldSeed == 0 {
			worldSeed = time.Now().UnixNano()
		}
		if _, err := catalog.Create(ctx, name, worldSeed); err != nil {
			return nil, nil, fmt.Errorf("не удалось создать мир %s: %w", name, err)
		}
		logger.Infow("Создан новый мир", "world", name, "seed", worldSeed)
	} else if entry, err := catalog.Get(ctx, name); err == nil {
		worldSeed = entry.Seed
	}

	store, err := catalog.OpenStorage(ctx, name, worldSeed)
	if err != nil {
		return nil, nil, fmt.Errorf("не удалось открыть хранилище мира %s: %w", name, err)
	}

	cat, err := gamedata.Load()
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("не удалось загрузить игровые данные: %w", err)
	}

	w, err := world.New(ctx, cfg.WorldConfig(worldSeed), cat, store, nil, logger.Named("world"),
		world.WithHooks(reg),
		world.WithBlockFactories(reg.FactoryMap()),
	)
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	auth := service.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	svc := service.NewWorldService(w, reg, auth,
		service.WithLogger(logger),
		service.WithStorage(store),
		service.WithTickInterval(cfg.Server.TickInterval),
		service.WithOperators(cfg.IsOperator),
	)
	return w, svc, nil
}

func run(cfg *config.Config, logger *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog, err := savegame.Open(cfg.Storage.SavesDir, savegame.WithLogger(logger.Named("catalog")))
	if err != nil {
		return err
	}
	defer catalog.Close()

	// 1) Реестр и core-системы, 2) консольные команды, 3) граница core, 4) плагины
	reg := plugin.NewDefaultRegistry()
	reg.SetLogger(logger)
	service.RegisterCoreSystems(reg, cfg.Storage.CleanupInterval)

	pm := plugin.NewPluginManager(cfg.Server.PluginDir, logger)
	console := &adminConsole{cfg: cfg, reg: reg, plugins: pm, catalog: catalog, shutdown: stop}
	console.register()
	reg.MarkCore()
	if err := pm.Load(reg); err != nil {
		logger.Warnw("Ошибка при загрузке плагинов", "dir", cfg.Server.PluginDir, "error", err)
	}

	w, svc, err := openWorld(ctx, cfg, catalog, reg, logger)
	if err != nil {
		return err
	}
	console.svc = svc

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.Port))
	if err != nil {
		_ = svc.Stop(context.Background())
		return fmt.Errorf("не удалось создать слушателя: %w", err)
	}

	grpcServer := grpc.NewServer(svc.Auth().ServerOptions()...)
	svc.RegisterServer(grpcServer)
	// Включаем reflection для инструментов вроде grpcurl
	reflection.Register(grpcServer)

	var httpServer *http.Server
	if cfg.Server.HTTPAddr != "" {
		api := httpapi.New(svc, catalog, logger, httpapi.WithCORSOrigins(cfg.Server.CORSOrigins))
		httpServer = api.HTTPServer(cfg.Server.HTTPAddr)
	}

	svc.Start(ctx)
	go console.repl(os.Stdin)

	logger.Infow("Игровой сервер запущен",
		"port", cfg.Server.Port,
		"http", cfg.Server.HTTPAddr,
		"world", w.Name(),
		"seed", w.Seed(),
		"plugins", pm.Loaded(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("gRPC сервер: %w", err)
		}
		return nil
	})
	if httpServer != nil {
		g.Go(func() error {
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP сервер: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Infow("Получен сигнал завершения, останавливаем сервер")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Сначала сервис: клиенты получают событие остановки, данные сохраняются
		stopErr := svc.Stop(shutdownCtx)

		done := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-shutdownCtx.Done():
			grpcServer.Stop()
		}
		if httpServer != nil {
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Warnw("Ошибка остановки HTTP сервера", "error", err)
			}
		}
		return stopErr
	})

	err = g.Wait()
	logger.Infow("Сервер остановлен")
	return err
}

// repl читает консольные команды администратора
func (c *adminConsole) repl(in *os.File) {
	scanner := bufio.NewScanner(in)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			out, err := c.reg.Execute(line)
			switch {
			case errors.Is(err, plugin.ErrUnknownCommand):
				fmt.Printf("Неизвестная команда: %s\n", strings.Fields(line)[0])
			case err != nil:
				fmt.Printf("Error: %v\n", err)
			default:
				fmt.Print(out)
			}
		}
		fmt.Print("> ")
	}
}
