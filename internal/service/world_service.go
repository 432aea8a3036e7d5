// Package service реализует gRPC-транспорт игрового мира: вход, выдачу чанков, игровой поток
// событий и консольные команды операторов.
package service

import (
	"expvar"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/annelo/tileworld/internal/gameloop"
	"github.com/annelo/tileworld/internal/storage"
	"github.com/annelo/tileworld/internal/world"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

const (
	// sendQueueSize is the maximum number of messages in send queues per client.
	sendQueueSize = 1024
	// subscriberQueueSize - буфер подписчика на события (наблюдатели HTTP)
	subscriberQueueSize = 256
)

// Метрики транспорта
var (
	playersConnected = expvar.NewInt("players_connected")
	chunksSaved      = expvar.NewInt("chunks_saved")
	eventsSent       = expvar.NewInt("events_sent")
)

// Registry - то, что сервису нужно от реестра плагинов
type Registry interface {
	GameSystems() []gameloop.System
	Execute(line string) (string, error)
}

// SystemRegistrar регистрирует системы игрового цикла
type SystemRegistrar interface {
	RegisterGameSystem(sys gameloop.System)
}

// RegisterCoreSystems регистрирует встроенные системы цикла. Вызывается до MarkCore.
func RegisterCoreSystems(reg SystemRegistrar, cleanupInterval time.Duration) {
	for _, sys := range gameloop.DefaultSystems(cleanupInterval) {
		reg.RegisterGameSystem(sys)
	}
}

// WorldService представляет собой реализацию gRPC сервиса игрового мира
type WorldService struct {
	logger   *zap.SugaredLogger
	world    *world.World
	registry Registry
	auth     *Authenticator
	storage  storage.WorldStorage

	// Мьютекс для синхронизации доступа к карте клиентов
	mu sync.RWMutex

	// Карта активных клиентских соединений
	clients map[string]*clientConn

	// Throttle карты: последний момент, когда позиция игрока была разослана
	lastPosBroadcast map[string]time.Time
	throttleMu       sync.Mutex

	// Подписчики на поток событий мира
	subs    map[int]chan *wt.WorldEvent
	nextSub int
	subsMu  sync.Mutex

	// игровая петля
	loop *gameloop.Loop

	tick      time.Duration
	operators func(name string) bool
	now       func() time.Time

	stopOnce sync.Once
	running  atomic.Bool
	cancel   func()
	wg       sync.WaitGroup

	savedSeen atomic.Int64
}

// Option настраивает сервис
type Option func(*WorldService)

// WithLogger задает логгер
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *WorldService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStorage передает сервису хранилище мира, чтобы Stop сбросил и закрыл его
func WithStorage(st storage.WorldStorage) Option {
	return func(s *WorldService) { s.storage = st }
}

// WithTickInterval задает длительность тика игрового цикла
func WithTickInterval(d time.Duration) Option {
	return func(s *WorldService) {
		if d > 0 {
			s.tick = d
		}
	}
}

// WithOperators задает проверку прав оператора по имени игрока
func WithOperators(isOperator func(name string) bool) Option {
	return func(s *WorldService) {
		if isOperator != nil {
			s.operators = isOperator
		}
	}
}

// WithClock подменяет часы троттлинга (для тестов)
func WithClock(now func() time.Time) Option {
	return func(s *WorldService) { s.now = now }
}

// NewWorldService создает новый экземпляр сервиса игрового мира
func NewWorldService(w *world.World, reg Registry, auth *Authenticator, opts ...Option) *WorldService {
	s := &WorldService{
		logger:           zap.NewNop().Sugar(),
		world:            w,
		registry:         reg,
		auth:             auth,
		clients:          make(map[string]*clientConn),
		lastPosBroadcast: make(map[string]time.Time),
		subs:             make(map[int]chan *wt.WorldEvent),
		tick:             gameloop.DefaultTick,
		operators:        func(string) bool { return false },
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// World возвращает обслуживаемый мир
func (s *WorldService) World() *world.World { return s.world }

// Loop возвращает игровой цикл; nil до Start
func (s *WorldService) Loop() *gameloop.Loop { return s.loop }

// Auth возвращает выдающий токены аутентификатор
func (s *WorldService) Auth() *Authenticator { return s.auth }

// ConnectedPlayers возвращает ID игроков с открытым игровым потоком
func (s *WorldService) ConnectedPlayers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, id)
	}
	return ids
}

// Subscribe подписывает на все события мира. Медленный подписчик теряет события.
func (s *WorldService) Subscribe() (<-chan *wt.WorldEvent, func()) {
	ch := make(chan *wt.WorldEvent, subscriberQueueSize)
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
			s.subsMu.Unlock()
		})
	}
}
