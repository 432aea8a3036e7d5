package entity

import (
	"math"
	"sync"

	wt "github.com/annelo/tileworld/internal/worldtypes"
)

// Team определяет, кого ранит снаряд
type Team uint8

const (
	// TeamMob - снаряд моба, ранит игроков
	TeamMob Team = iota
	// TeamPlayer - снаряд игрока, ранит первого задетого моба
	TeamPlayer
)

// hitRadius - расстояние, на котором снаряд задевает цель
const hitRadius = 0.5

// Projectile - летящий снаряд (стрела)
type Projectile struct {
	mu      sync.Mutex
	id      string
	pos     wt.Vec2
	vel     wt.Vec2
	team    Team
	damage  int
	spawned int64
	alive   bool
}

// NewProjectile создает снаряд, летящий под углом deg (в градусах) со скоростью speed тайлов в секунду
func NewProjectile(pos wt.Vec2, deg, speed float64, team Team, damage int, now int64) *Projectile {
	dir := wt.Vec2{X: 1}.Rotate(deg)
	return &Projectile{
		id:      newID(),
		pos:     pos,
		vel:     dir.Scale(speed),
		team:    team,
		damage:  damage,
		spawned: now,
		alive:   true,
	}
}

func (pr *Projectile) ID() string { return pr.id }

func (pr *Projectile) Kind() Kind { return KindProjectile }

// Team возвращает команду снаряда
func (pr *Projectile) Team() Team { return pr.team }

// Velocity возвращает скорость снаряда
func (pr *Projectile) Velocity() wt.Vec2 {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return pr.vel
}

func (pr *Projectile) Position() wt.Vec2 {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return pr.pos
}

func (pr *Projectile) Alive() bool {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return pr.alive
}

// Update двигает снаряд и проверяет попадания
func (pr *Projectile) Update(ctx *TickContext, dt float64) {
	pr.mu.Lock()
	if !pr.alive {
		pr.mu.Unlock()
		return
	}
	if ctx.Now-pr.spawned > ctx.Settings.ProjectileLifetime {
		pr.alive = false
		pr.mu.Unlock()
		return
	}
	pr.pos = pr.pos.Add(pr.vel.Scale(dt))
	pos, team, damage := pr.pos, pr.team, pr.damage
	pr.mu.Unlock()

	if ctx.Terrain != nil {
		cell, err := ctx.Terrain.Cell(pos.Tile())
		if err != nil || cell.Solid() {
			pr.destroy()
			return
		}
	}
	if ctx.Entities == nil {
		return
	}

	switch team {
	case TeamMob:
		for _, p := range ctx.Entities.Players() {
			if p.Dead() || p.Position().Dist(pos) > hitRadius {
				continue
			}
			ctx.HurtPlayer(p, damage)
			pr.destroy()
			return
		}
	case TeamPlayer:
		if m := ctx.Entities.NearestMob(pos, hitRadius); m != nil {
			ctx.HurtMob(m, damage)
			pr.destroy()
		}
	}
}

func (pr *Projectile) destroy() {
	pr.mu.Lock()
	pr.alive = false
	pr.mu.Unlock()
}

// FireProjectile выпускает снаряд с разбросом ±ProjectileSpread градусов
func (tc *TickContext) FireProjectile(from wt.Vec2, deg float64, team Team, damage int) *Projectile {
	spread := tc.Settings.ProjectileSpread
	if spread > 0 && tc.Rand != nil {
		deg += (tc.Rand.Float64()*2 - 1) * spread
	}
	// вылетает с края квадрата стрелка, чтобы не задеть его самого
	dir := wt.Vec2{X: 1}.Rotate(deg)
	start := from.Add(dir.Scale(box + 0.05))
	pr := NewProjectile(start, deg, tc.Settings.ProjectileSpeed, team, damage, tc.Now)
	if tc.Entities == nil || tc.Entities.Add(pr) != nil {
		return nil
	}
	tc.emit(wt.WorldEvent{
		Type:     wt.EventEntitySpawned,
		Position: start,
		EntityID: pr.ID(),
		Payload: map[string]any{
			"kind":  KindProjectile.String(),
			"team":  int(team),
			"angle": math.Round(deg*10) / 10,
		},
	})
	return pr
}

// HurtMob наносит урон мобу; убитый моб оставляет добычу
func (tc *TickContext) HurtMob(m *Mob, amount int) {
	if !m.TakeDamage(amount) {
		return
	}
	def := m.Definition()
	if def.Drop[0] != 0 && def.Drop[1] > 0 {
		qty := 1
		if tc.Rand != nil {
			qty += tc.Rand.Intn(def.Drop[1])
		}
		tc.DropItem(m.Position(), wt.ItemStack{ID: def.Drop[0], Count: qty})
	}
}
