// Package httpapi - HTTP-интерфейс администратора: статистика мира, игроки, чанки,
// каталог миров, expvar и websocket-наблюдатель событий.
package httpapi

import (
	"context"
	"expvar"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/annelo/tileworld/internal/savegame"
	"github.com/annelo/tileworld/internal/world"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

// requestTimeout ограничивает обычные запросы; websocket живет без ограничения
const requestTimeout = 30 * time.Second

// WorldSource - источник состояния мира (сервис мира)
type WorldSource interface {
	World() *world.World
	ConnectedPlayers() []string
	Subscribe() (<-chan *wt.WorldEvent, func())
}

// WorldCatalog - каталог сохраненных миров
type WorldCatalog interface {
	List(ctx context.Context) ([]savegame.Entry, error)
}

// Server - HTTP API администратора
type Server struct {
	source   WorldSource
	catalog  WorldCatalog
	logger   *zap.SugaredLogger
	upgrader websocket.Upgrader
	started  time.Time
	origins  []string
	router   *chi.Mux
}

// Option - опция HTTP API
type Option func(*Server)

// WithCORSOrigins задает разрешенные источники запросов
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// New собирает маршруты. catalog может быть nil: тогда /api/v1/worlds отвечает 503.
func New(source WorldSource, catalog WorldCatalog, logger *zap.SugaredLogger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Server{
		source:  source,
		catalog: catalog,
		logger:  logger.Named("httpapi"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		started: time.Now(),
		origins: []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/ws/events", s.handleEvents)
	r.Handle("/debug/vars", expvar.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/health", s.handleHealth)
		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/stats", s.handleStats)
			r.Get("/players", s.handlePlayers)
			r.Get("/chunks/{x}/{y}", s.handleChunk)
			r.Get("/worlds", s.handleWorlds)
		})
	})
	return r
}

// Handler возвращает корневой обработчик
func (s *Server) Handler() http.Handler { return s.router }

// HTTPServer оборачивает маршруты в http.Server с таймаутами заголовков
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debugw("HTTP запрос",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
