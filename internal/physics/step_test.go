package physics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxphys/internal/entity"
	"github.com/annel0/voxphys/internal/vec"
	"github.com/annel0/voxphys/internal/world/tile"
)

func newTestEntity(t *testing.T, position, size vec.Vec3Float) *entity.Entity {
	t.Helper()
	e, err := entity.NewEntity(entity.KindPlayer, position, size, 1)
	require.NoError(t, err)
	return e
}

func stoneFloor() mapTerrain {
	return mapTerrain{}.fill(t3(-3, -3, -1), t3(3, 3, -1), tile.NewFull(tile.Stone))
}

func TestStepZeroDtIsNoop(t *testing.T) {
	e := newTestEntity(t, v3(0.5, 0.5, 3), v3(0.8, 0.8, 1.8))
	e.Velocity = v3(1, 2, 3)

	res := Step(e, stoneFloor(), 0, DefaultConfig())
	assert.Equal(t, StepResult{}, res)
	assert.Equal(t, v3(0.5, 0.5, 3), e.Position)
	assert.Equal(t, v3(1, 2, 3), e.Velocity)
}

func TestStepIdempotentRest(t *testing.T) {
	e := newTestEntity(t, v3(0.5, 0.5, 0), v3(0.8, 0.8, 1.8))

	for i := 0; i < 10; i++ {
		res := Step(e, stoneFloor(), 1.0/60, DefaultConfig())
		require.False(t, res.Capped)
		assert.Equal(t, ConstraintSingle, res.Constraint)
	}
	assert.Equal(t, v3(0.5, 0.5, 0), e.Position)
	assert.Equal(t, vec.Zero3, e.Velocity)
	assert.Equal(t, entity.StatusGrounded, e.Status)
}

func TestStepFallsAndLands(t *testing.T) {
	e := newTestEntity(t, v3(0.5, 0.5, 2), v3(0.8, 0.8, 1.8))

	for i := 0; i < 120; i++ {
		Step(e, stoneFloor(), 1.0/60, DefaultConfig())
	}
	assert.InDelta(t, 0, e.Position.Z, 1e-9)
	assert.Equal(t, vec.Zero3, e.Velocity)
	assert.Equal(t, entity.StatusGrounded, e.Status)
}

func TestStepNoTunneling(t *testing.T) {
	wall := mapTerrain{}.fill(t3(5, -2, -2), t3(5, 12, 3), tile.NewFull(tile.Stone))
	cfg := DefaultConfig()
	cfg.Gravity = 0

	velocities := []vec.Vec3Float{
		v3(3, 0, 0),
		v3(17.3, 0, 0),
		v3(1e3, 0, 0),
		v3(1e5, 0, 0),
		v3(500, 300, 0),
		v3(250, 1, 0.5),
	}
	for _, velocity := range velocities {
		e := newTestEntity(t, v3(0.5, 0.5, 0), v3(1, 1, 1))
		e.Velocity = velocity

		Step(e, wall, 1, cfg)

		l, h := e.Bounds()
		assert.False(t, overlapsSolid(wall, l, h, 1e-9), "скорость %+v: бокс %+v..%+v в стене", velocity, l, h)
		assert.LessOrEqual(t, h.X, 5+1e-9, "скорость %+v", velocity)
	}
}

func TestStepWallSlide(t *testing.T) {
	terrain := stoneFloor().fill(t3(2, -3, 0), t3(2, 3, 2), tile.NewFull(tile.Stone))
	cfg := DefaultConfig()
	cfg.Gravity = 0

	e := newTestEntity(t, v3(0.5, 0, 0.5), v3(1, 1, 1))
	e.Velocity = v3(4, 1, 0)

	res := Step(e, terrain, 0.5, cfg)
	assert.Equal(t, 1, res.Collisions)

	_, h := e.Bounds()
	assert.InDelta(t, 2, h.X, 1e-9)
	assert.InDelta(t, 0.5, e.Position.Y, 1e-9)
	assert.Equal(t, v3(0, 1, 0), e.Velocity)
}

func TestStepIterationCap(t *testing.T) {
	terrain := mapTerrain{t3(3, 0, 0): tile.NewFull(tile.Stone)}
	cfg := DefaultConfig()
	cfg.Gravity = 0
	cfg.MaxIterations = 1

	e := newTestEntity(t, v3(0.5, 0.5, 0), v3(1, 1, 1))
	e.Velocity = v3(10, 0, 0)

	res := Step(e, terrain, 1, cfg)
	assert.True(t, res.Capped)
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, vec.Zero3, e.Velocity)
	assert.InDelta(t, 2.5, e.Position.X, 1e-9)
}

func TestStepJump(t *testing.T) {
	cfg := DefaultConfig()
	e := newTestEntity(t, v3(0.5, 0.5, 0), v3(0.8, 0.8, 1.8))
	e.JumpInput = true

	res := Step(e, stoneFloor(), 1.0/60, cfg)
	assert.True(t, res.Jumped)
	assert.False(t, e.JumpInput)
	assert.InDelta(t, cfg.JumpImpulse-cfg.Gravity/60, e.Velocity.Z, 1e-9)
	assert.Greater(t, e.Position.Z, 0.0)
}

func TestStepJumpIsBufferedInAir(t *testing.T) {
	e := newTestEntity(t, v3(0.5, 0.5, 5), v3(0.8, 0.8, 1.8))
	e.JumpInput = true

	res := Step(e, stoneFloor(), 1.0/60, DefaultConfig())
	assert.False(t, res.Jumped)
	assert.True(t, e.JumpInput)
	assert.Equal(t, entity.StatusFalling, e.Status)
}

func TestStepFriction(t *testing.T) {
	cfg := DefaultConfig()
	e := newTestEntity(t, v3(0.5, 0.5, 0), v3(0.8, 0.8, 1.8))
	e.Velocity = v3(2, 0, 0)

	Step(e, stoneFloor(), 0.1, cfg)

	loss := tile.Stone.Properties().Friction * cfg.Gravity * 0.1
	assert.InDelta(t, 2-loss, e.Velocity.X, 1e-9)
	assert.InDelta(t, 0, e.Velocity.Z, 1e-12)
	assert.InDelta(t, 0.5+(2-loss)*0.1, e.Position.X, 1e-9)
}

func TestStepBounce(t *testing.T) {
	terrain := mapTerrain{t3(3, 0, 0): tile.NewFull(tile.Wood)}
	cfg := DefaultConfig()
	cfg.Gravity = 0

	e := newTestEntity(t, v3(0.5, 0.5, 0), v3(1, 1, 1))
	e.Velocity = v3(10, 0, 0)

	Step(e, terrain, 1, cfg)

	bounce := tile.Wood.Properties().Bounce
	assert.InDelta(t, -10*bounce, e.Velocity.X, 1e-9)
	assert.InDelta(t, 2.5-10*bounce*0.8, e.Position.X, 1e-9)
}

func TestStepInputAcceleration(t *testing.T) {
	cfg := DefaultConfig()
	e := newTestEntity(t, v3(0.5, 0.5, 0), v3(0.8, 0.8, 1.8))
	e.MovementInput = v3(0, -1, 1)

	Step(e, stoneFloor(), 0.01, cfg)

	// На земле z ввода отбрасывается, ускорение удвоено
	wish := 2 * cfg.MoveForce * 0.01
	loss := tile.Stone.Properties().Friction * cfg.Gravity * 0.01
	assert.InDelta(t, -(wish - loss), e.Velocity.Y, 1e-9)
	assert.InDelta(t, 0, e.Velocity.Z, 1e-12)
	assert.Equal(t, entity.FacingUp, e.Facing)
}

func TestStepInputSpeedLimit(t *testing.T) {
	cfg := DefaultConfig()
	e := newTestEntity(t, v3(0.5, 0.5, 10), v3(0.8, 0.8, 1.8))
	e.Velocity = v3(cfg.MaxMoveSpeed, 0, 0)
	e.MovementInput = v3(1, 0, 0)

	Step(e, stoneFloor(), 0.01, cfg)
	assert.InDelta(t, cfg.MaxMoveSpeed, e.Velocity.X, 1e-12)
}

func TestStepSwimming(t *testing.T) {
	terrain := stoneFloor().fill(t3(-3, -3, 0), t3(3, 3, 2), tile.NewEmpty(tile.Water))
	e := newTestEntity(t, v3(0.5, 0.5, 0), v3(0.8, 0.8, 1.8))

	Step(e, terrain, 1.0/60, DefaultConfig())
	assert.Equal(t, entity.StatusSwimming, e.Status)
}

func TestStepMissingTerrainIsSolid(t *testing.T) {
	e := newTestEntity(t, v3(0.5, 0.5, 0), v3(0.8, 0.8, 1.8))

	res := Step(e, unloadedBelow{}, 1.0/60, DefaultConfig())
	assert.Positive(t, res.MissingTiles)
	assert.Equal(t, 1, res.Contacts)
	assert.Equal(t, v3(0.5, 0.5, 0), e.Position)
	assert.Equal(t, entity.StatusGrounded, e.Status)
}

func TestStepOnRampIsGrounded(t *testing.T) {
	ramp, err := tile.NewSlope(tile.Grass, tile.Air, tile.Direction{X: 1, Z: 1}, 1)
	require.NoError(t, err)
	terrain := mapTerrain{t3(0, 0, 0): ramp}

	e := newTestEntity(t, v3(0.5, 0.5, 0.6), v3(0.2, 0.2, 0.2))
	Step(e, terrain, 1.0/60, DefaultConfig())

	assert.Equal(t, entity.StatusGrounded, e.Status)
	// Скорость не уходит внутрь наклона
	n := v3(1, 0, 1).Normalized()
	assert.GreaterOrEqual(t, e.Velocity.Dot(n), -1e-9)
}
