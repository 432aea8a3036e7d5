package httpapi

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	wt "github.com/annelo/tileworld/internal/worldtypes"
)

// ErrorResponse - тело ответа с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

// PlayerInfo - игрок в ответе /api/v1/players
type PlayerInfo struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Position  wt.Vec2 `json:"position"`
	Health    int     `json:"health"`
	MaxHealth int     `json:"max_health"`
	Dead      bool    `json:"dead"`
	Connected bool    `json:"connected"`
}

// ChunkResponse - чанк в переносимом формате стеков кодов [y][x]
type ChunkResponse struct {
	Position wt.ChunkPosition `json:"position"`
	Version  uint32           `json:"version"`
	Tiles    [][][]string     `json:"tiles"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"tick":      s.source.World().Tick(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	wld := s.source.World()
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]interface{}{
		"world":     wld.Stats(),
		"noise":     wld.Generator().Noise().GetCacheStats(),
		"connected": len(s.source.ConnectedPlayers()),
	})
}

func (s *Server) handlePlayers(w http.ResponseWriter, r *http.Request) {
	connected := make(map[string]bool)
	for _, id := range s.source.ConnectedPlayers() {
		connected[id] = true
	}

	players := s.source.World().Players().All()
	out := make([]PlayerInfo, 0, len(players))
	for _, p := range players {
		health, maxHealth := p.Health()
		out = append(out, PlayerInfo{
			ID:        p.ID(),
			Name:      p.Name(),
			Position:  p.Position(),
			Health:    health,
			MaxHealth: maxHealth,
			Dead:      p.Dead(),
			Connected: connected[p.ID()],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	render.Status(r, http.StatusOK)
	render.JSON(w, r, out)
}

func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	x, err := strconv.ParseInt(chi.URLParam(r, "x"), 10, 32)
	if err != nil {
		s.renderError(w, r, http.StatusBadRequest, "invalid chunk x coordinate", err)
		return
	}
	y, err := strconv.ParseInt(chi.URLParam(r, "y"), 10, 32)
	if err != nil {
		s.renderError(w, r, http.StatusBadRequest, "invalid chunk y coordinate", err)
		return
	}

	pos := wt.ChunkPosition{X: int32(x), Y: int32(y)}
	chunk, err := s.source.World().Chunks().GetOrGenerate(r.Context(), pos)
	if err != nil {
		s.renderError(w, r, http.StatusInternalServerError, "failed to load chunk", err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, ChunkResponse{Position: chunk.Position, Version: chunk.Version, Tiles: chunk.CodeGrid()})
}

func (s *Server) handleWorlds(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		s.renderError(w, r, http.StatusServiceUnavailable, "world catalog is not configured", nil)
		return
	}
	entries, err := s.catalog.List(r.Context())
	if err != nil {
		s.renderError(w, r, http.StatusInternalServerError, "failed to list worlds", err)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, entries)
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	resp := ErrorResponse{Error: message, Code: status}
	if err != nil {
		s.logger.Warnw("Ошибка API", "error", err, "message", message, "status", status)
		// внутренние ошибки клиенту не раскрываем
		if status < http.StatusInternalServerError {
			resp.Message = err.Error()
		}
	}
	render.Status(r, status)
	render.JSON(w, r, resp)
}
