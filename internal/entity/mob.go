package entity

import (
	"math"
	"sync"

	"github.com/annelo/tileworld/internal/gamedata"
	"github.com/annelo/tileworld/internal/storage"
	wt "github.com/annelo/tileworld/internal/worldtypes"
)

// Направления блуждания моба
const (
	wanderIdle = iota
	wanderRight
	wanderLeft
	wanderUp
	wanderDown
)

// Интервал перестроения пути к цели, мс
const repathInterval = 1000

// Mob - моб, управляемый описанием из игровых данных
type Mob struct {
	mu     sync.RWMutex
	id     string
	def    gamedata.MobDefinition
	pos    wt.Vec2
	health int
	alive  bool

	// блуждание: направление, длина (тайлы или мс для ожидания), откуда и когда началось
	wanderDir   int
	wanderLen   int
	wanderFrom  wt.Vec2
	wanderSince int64
	collided    bool

	path       []GridPoint
	pathOrigin wt.TilePosition
	pathStep   int
	pathAt     int64
	chasing    bool

	lastAttack int64
	lastSent   wt.Vec2
}

// NewMob создает моба в точке pos
func NewMob(def gamedata.MobDefinition, pos wt.Vec2, now int64) *Mob {
	return &Mob{
		id:          newID(),
		def:         def,
		pos:         pos,
		health:      def.Health,
		alive:       true,
		wanderDir:   wanderIdle,
		wanderLen:   250,
		wanderFrom:  pos,
		wanderSince: now,
		lastAttack:  now,
		lastSent:    pos,
	}
}

// MobFromRecord восстанавливает моба из снимка
func MobFromRecord(def gamedata.MobDefinition, rec storage.MobRecord, now int64) *Mob {
	m := NewMob(def, rec.Position, now)
	if rec.ID != "" {
		m.id = rec.ID
	}
	if rec.Health > 0 {
		m.health = rec.Health
	}
	return m
}

func (m *Mob) ID() string { return m.id }

func (m *Mob) Kind() Kind { return KindMob }

// Definition возвращает описание моба
func (m *Mob) Definition() gamedata.MobDefinition { return m.def }

// Hostile сообщает, враждебен ли моб
func (m *Mob) Hostile() bool { return m.def.Hostile }

func (m *Mob) Position() wt.Vec2 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pos
}

// Health возвращает текущее здоровье
func (m *Mob) Health() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.health
}

func (m *Mob) Alive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.alive
}

// Record возвращает запись для снимка сущностей
func (m *Mob) Record() storage.MobRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return storage.MobRecord{ID: m.id, MobID: m.def.ID, Position: m.pos, Health: m.health}
}

// TakeDamage наносит урон. Моб с единицей здоровья умирает от следующего удара.
// Возвращает true, если моб умер этим ударом.
func (m *Mob) TakeDamage(amount int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.alive {
		return false
	}
	if m.health > 1 {
		m.health -= amount
		if m.health < 1 {
			m.health = 1
		}
		return false
	}
	m.alive = false
	return true
}

// Kill убирает моба без добычи
func (m *Mob) Kill() {
	m.mu.Lock()
	m.alive = false
	m.mu.Unlock()
}

type mobAction int

const (
	actNone mobAction = iota
	actShoot
	actMelee
)

// Update выбирает поведение: преследование ближайшего игрока для враждебных мобов, иначе блуждание
func (m *Mob) Update(ctx *TickContext, dt float64) {
	target := m.findTarget(ctx)
	var targetPos wt.Vec2
	if target != nil {
		targetPos = target.Position()
	}
	var players []wt.Vec2
	if ctx.Entities != nil {
		for _, p := range ctx.Entities.Players() {
			if !p.Dead() {
				players = append(players, p.Position())
			}
		}
	}

	m.mu.Lock()
	if !m.alive {
		m.mu.Unlock()
		return
	}

	var vel wt.Vec2
	action := actNone
	if target != nil {
		vel, action = m.chase(ctx, targetPos)
	} else {
		if m.chasing {
			m.chasing = false
			m.path = nil
			m.startWander(ctx)
		}
		vel = m.wander(ctx)
	}

	m.collided = false
	m.moveWithCollisions(ctx, vel.Scale(dt), players)
	pos := m.pos
	moved := pos.Dist(m.lastSent) >= 0.25
	if moved {
		m.lastSent = pos
	}
	def := m.def
	m.mu.Unlock()

	if moved {
		ctx.emit(wt.WorldEvent{Type: wt.EventEntityMoved, Position: pos, EntityID: m.id})
	}

	switch action {
	case actShoot:
		ctx.FireProjectile(pos, angleTo(pos, targetPos), TeamMob, def.Damage)
	case actMelee:
		ctx.HurtPlayer(target, def.Damage)
	}
}

func (m *Mob) findTarget(ctx *TickContext) *Player {
	if !m.def.Hostile || ctx.Entities == nil {
		return nil
	}
	pos := m.Position()
	var best *Player
	bestDist := ctx.Settings.PlayerDetectionRadius
	for _, p := range ctx.Entities.Players() {
		if p.Dead() {
			continue
		}
		if d := pos.Dist(p.Position()); d <= bestDist {
			best, bestDist = p, d
		}
	}
	return best
}

// chase ведет моба к цели по пути A* и решает, пора ли атаковать. Вызывается под блокировкой.
func (m *Mob) chase(ctx *TickContext, target wt.Vec2) (wt.Vec2, mobAction) {
	m.chasing = true
	dist := m.pos.Dist(target)

	switch m.def.Attack {
	case gamedata.AttackRanged:
		if dist <= m.def.StopDistance {
			if ctx.Now-m.lastAttack > ctx.Settings.FireRate {
				m.lastAttack = ctx.Now
				return wt.Vec2{}, actShoot
			}
			return wt.Vec2{}, actNone
		}
	case gamedata.AttackMelee:
		if dist <= ctx.Settings.MeleeReach {
			if float64(ctx.Now-m.lastAttack) > float64(ctx.Settings.FireRate)*1.2 {
				m.lastAttack = ctx.Now
				return wt.Vec2{}, actMelee
			}
			return wt.Vec2{}, actNone
		}
	}
	if dist <= m.def.StopDistance {
		return wt.Vec2{}, actNone
	}

	targetTile := target.Tile()
	if m.path == nil || m.pathStep >= len(m.path) || ctx.Now-m.pathAt >= repathInterval {
		m.repath(ctx, targetTile)
	}
	if m.pathStep >= len(m.path) {
		// пути нет: идем напрямую, стены остановят
		return target.Sub(m.pos).Normalize().Scale(ctx.Settings.MobWalkSpeed), actNone
	}

	next := m.path[m.pathStep]
	waypoint := wt.TilePosition{X: m.pathOrigin.X + int32(next.X), Y: m.pathOrigin.Y + int32(next.Y)}.Center()
	if m.pos.Dist(waypoint) < 0.1 {
		m.pathStep++
		if m.pathStep >= len(m.path) {
			return wt.Vec2{}, actNone
		}
		next = m.path[m.pathStep]
		waypoint = wt.TilePosition{X: m.pathOrigin.X + int32(next.X), Y: m.pathOrigin.Y + int32(next.Y)}.Center()
	}
	step := waypoint.Sub(m.pos)
	speed := ctx.Settings.MobWalkSpeed
	if l := step.Len(); l < speed*0.05 {
		speed = l / 0.05
	}
	return step.Normalize().Scale(speed), actNone
}

func (m *Mob) repath(ctx *TickContext, target wt.TilePosition) {
	m.pathAt = ctx.Now
	m.path = nil
	m.pathStep = 0
	if ctx.Terrain == nil {
		return
	}
	grid, origin := ctx.Terrain.WalkGrid(m.pos.Chunk())
	from := GridPoint{X: int(m.pos.Tile().X - origin.X), Y: int(m.pos.Tile().Y - origin.Y)}
	to := GridPoint{X: int(target.X - origin.X), Y: int(target.Y - origin.Y)}
	path := FindPath(grid, from, to, ctx.Settings.PathNodeLimit)
	if len(path) < 2 {
		return
	}
	m.path = path
	m.pathOrigin = origin
	m.pathStep = 1
}

// wander продолжает текущую инструкцию блуждания и возвращает скорость. Вызывается под блокировкой.
func (m *Mob) wander(ctx *TickContext) wt.Vec2 {
	speed := ctx.Settings.MobWalkSpeed
	dist := float64(m.wanderLen)
	done := false
	var vel wt.Vec2

	switch m.wanderDir {
	case wanderRight:
		if m.pos.X < m.wanderFrom.X+dist {
			vel.X = speed
		} else {
			done = true
		}
	case wanderLeft:
		if m.pos.X > m.wanderFrom.X-dist {
			vel.X = -speed
		} else {
			done = true
		}
	case wanderUp:
		if m.pos.Y > m.wanderFrom.Y-dist {
			vel.Y = -speed
		} else {
			done = true
		}
	case wanderDown:
		if m.pos.Y < m.wanderFrom.Y+dist {
			vel.Y = speed
		} else {
			done = true
		}
	default:
		done = ctx.Now >= m.wanderSince+int64(m.wanderLen)
	}

	if done || m.collided {
		m.startWander(ctx)
		return wt.Vec2{}
	}
	return vel
}

// startWander выбирает новую инструкцию: ожидание 500-3000 мс или шаг на 1-5 тайлов
func (m *Mob) startWander(ctx *TickContext) {
	m.wanderFrom = m.pos
	m.wanderSince = ctx.Now
	m.wanderDir = ctx.Rand.Intn(5)
	if m.wanderDir == wanderIdle {
		m.wanderLen = 500 + ctx.Rand.Intn(2501)
	} else {
		m.wanderLen = 1 + ctx.Rand.Intn(5)
	}
}

// moveWithCollisions двигает моба с учетом объектов, воды и игроков. Вызывается под блокировкой.
func (m *Mob) moveWithCollisions(ctx *TickContext, delta wt.Vec2, players []wt.Vec2) {
	if ctx.Terrain == nil || (delta.X == 0 && delta.Y == 0) {
		return
	}
	blocked := func(c wt.Cell) bool { return !c.Walkable() }

	hitsPlayer := func(pos wt.Vec2) bool {
		for _, pp := range players {
			if boxesOverlap(pos, pp) {
				return true
			}
		}
		return false
	}

	for _, xAxis := range []bool{true, false} {
		d := delta.Y
		if xAxis {
			d = delta.X
		}
		next, hit := moveAxis(ctx.Terrain, m.pos, d, xAxis, blocked)
		if d != 0 && hitsPlayer(next) && !hitsPlayer(m.pos) {
			next, hit = m.pos, true
		}
		if hit {
			m.collided = true
		}
		m.pos = next
	}
	if math.IsNaN(m.pos.X) || math.IsNaN(m.pos.Y) {
		m.pos = m.wanderFrom
	}
}
