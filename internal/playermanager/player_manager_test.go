package playermanager_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annelo/tileworld/internal/entity"
	"github.com/annelo/tileworld/internal/playermanager"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

func newPlayer(id, name string) *entity.Player {
	return entity.NewPlayer(id, name, wt.Vec2{X: 1, Y: 2}, 20, nil)
}

func TestPlayerManager(t *testing.T) {
	pm := playermanager.NewPlayerManager()

	// Добавляем игрока
	require.NoError(t, pm.Add(newPlayer("p1", "alice")))
	assert.ErrorIs(t, pm.Add(newPlayer("p1", "alice")), playermanager.ErrPlayerExists, "повторный ID должен давать ошибку")
	require.NoError(t, pm.Add(newPlayer("p2", "bob")))
	assert.Equal(t, 2, pm.Count())

	p, err := pm.Get("p1")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Name())
	assert.Equal(t, wt.Vec2{X: 1, Y: 2}, p.Position())

	p, err = pm.ByName("bob")
	require.NoError(t, err)
	assert.Equal(t, "p2", p.ID())
	_, err = pm.ByName("carol")
	assert.ErrorIs(t, err, playermanager.ErrPlayerNotFound)

	s, err := pm.Session("p2")
	require.NoError(t, err)
	assert.Equal(t, "bob", s.Name)
	assert.False(t, s.JoinedAt.IsZero())

	assert.Len(t, pm.All(), 2)

	// Удаляем игрока
	removed, err := pm.Remove("p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", removed.ID())
	_, err = pm.Get("p1")
	assert.ErrorIs(t, err, playermanager.ErrPlayerNotFound, "удаленный игрок не должен находиться")
	_, err = pm.Remove("p1")
	assert.ErrorIs(t, err, playermanager.ErrPlayerNotFound)
	assert.Equal(t, 1, pm.Count())
}
