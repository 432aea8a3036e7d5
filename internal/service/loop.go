package service

import (
	"context"
	"time"

	"github.com/annelo/tileworld/internal/gameloop"
)

const (
	metricsInterval  = 5 * time.Second
	cacheLogInterval = 30 * time.Minute
)

// Start запускает игровой цикл, рассылку событий мира и сбор метрик. Повторный вызов ничего не делает.
func (s *WorldService) Start(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	deps := gameloop.Dependencies{
		World:          s.world,
		Logger:         s.logger,
		EmitWorldEvent: s.world.Emit,
	}
	s.loop = gameloop.NewLoop(s.tick, deps, s.registry.GameSystems()...)

	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		s.loop.Run(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.processWorldEvents(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.monitorCacheUsage(ctx)
	}()
}

// processWorldEvents receives world events and broadcasts them to clients.
func (s *WorldService) processWorldEvents(ctx context.Context) {
	events := s.world.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			s.dispatch(ev)
		}
	}
}

// monitorCacheUsage periodically updates metrics and logs cache usage statistics.
func (s *WorldService) monitorCacheUsage(ctx context.Context) {
	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	var sinceLog time.Duration
	for {
		select {
		case <-ticker.C:
			s.syncMetrics()
			sinceLog += metricsInterval
			if sinceLog >= cacheLogInterval {
				sinceLog = 0
				s.logger.Infow("Статистика кеша чанков", "stats", s.world.Chunks().Stats())
			}
		case <-ctx.Done():
			return
		}
	}
}

// syncMetrics переносит счетчик сохраненных чанков в expvar
func (s *WorldService) syncMetrics() {
	var saved int64
	switch v := s.world.Chunks().Stats()["saved"].(type) {
	case int:
		saved = int64(v)
	case int64:
		saved = v
	default:
		return
	}
	if prev := s.savedSeen.Swap(saved); saved > prev {
		chunksSaved.Add(saved - prev)
	}
}
