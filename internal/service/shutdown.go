package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/annelo/tileworld/internal/playermanager"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

// Stop disconnects clients, stops the loop, saves all player and chunk data and closes storage.
func (s *WorldService) Stop(ctx context.Context) error {
	var result error
	s.stopOnce.Do(func() {
		s.DisconnectAllClients()
		if s.cancel != nil {
			s.cancel()
			s.wg.Wait()
		}

		var errs []error
		for _, p := range s.world.Players().All() {
			// игрока мог уже вывести закрывшийся поток
			if err := s.world.LeavePlayer(ctx, p.ID()); err != nil && !errors.Is(err, playermanager.ErrPlayerNotFound) {
				errs = append(errs, err)
			}
		}
		if err := s.world.Save(ctx); err != nil {
			errs = append(errs, err)
		}
		s.syncMetrics()
		if s.storage != nil {
			if err := s.storage.Close(); err != nil {
				errs = append(errs, fmt.Errorf("ошибка при закрытии хранилища: %w", err))
			}
		}
		s.closeSubscribers()
		s.running.Store(false)
		result = errors.Join(errs...)
		s.logger.Infow("Сервис мира остановлен", "error", result)
	})
	return result
}

// DisconnectAllClients disconnects all clients by sending a shutdown event and closing queues.
func (s *WorldService) DisconnectAllClients() {
	shutdown := &ServerMessage{Event: &wt.WorldEvent{
		Type:    wt.EventServerShutdown,
		Tick:    s.world.Tick(),
		Message: "Server is shutting down",
	}}

	s.mu.Lock()
	count := len(s.clients)
	for _, conn := range s.clients {
		conn.send(shutdown, true, false)
		conn.close()
	}
	s.mu.Unlock()

	s.logger.Infow("Клиенты отключены", "count", count)
}
