package physics

import (
	"math"

	"github.com/annel0/voxphys/internal/entity"
	"github.com/annel0/voxphys/internal/vec"
	"github.com/annel0/voxphys/internal/world/tile"
)

// Config параметры шага физики
type Config struct {
	Gravity       float64 `yaml:"gravity"`        // Ускорение свободного падения
	MoveForce     float64 `yaml:"move_force"`     // Сила, с которой сущность толкает себя вводом
	MaxMoveSpeed  float64 `yaml:"max_move_speed"` // Предельная скорость вдоль ввода
	JumpImpulse   float64 `yaml:"jump_impulse"`
	MaxIterations int     `yaml:"max_iterations"` // Предел столкновений за шаг
	GroundNormalZ float64 `yaml:"ground_normal_z"`
}

// DefaultConfig возвращает параметры по умолчанию
func DefaultConfig() Config {
	return Config{
		Gravity:       9.8,
		MoveForce:     20,
		MaxMoveSpeed:  5,
		JumpImpulse:   5,
		MaxIterations: 8,
		GroundNormalZ: 0.7,
	}
}

// StepResult итог одного шага
type StepResult struct {
	Iterations   int
	Collisions   int
	Capped       bool // Итерации исчерпаны, скорость обнулена
	MissingTiles int  // Обращения к незагруженным тайлам
	Contacts     int  // Контакты в начале шага
	Jumped       bool
	Constraint   ConstraintKind // Вид ограничения на первой итерации
}

// Параметры ускорения и торможения вводом по состоянию движения
var inputParams = map[entity.Status]struct{ accel, decel float64 }{
	entity.StatusGrounded: {2, 0},
	entity.StatusFalling:  {1, 1},
	entity.StatusSwimming: {1.5, 0.5},
}

// Step продвигает сущность на dt секунд сквозь рельеф.
// Рельеф не должен меняться во время шага.
func Step(e *entity.Entity, terrain Terrain, dt float64, cfg Config) StepResult {
	var res StepResult
	if !(dt > 0) {
		return res
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultConfig().MaxIterations
	}

	lk := newLookup(terrain)

	l, h := e.Bounds()
	contacts := lk.detectContacts(l, h)
	res.Contacts = len(contacts)
	e.Status = lk.status(e, contacts, cfg)

	applyInput(e, cfg, dt)
	e.Velocity.Z -= cfg.Gravity * dt

	if e.JumpInput && len(contacts) > 0 {
		jumpNormal := contacts[0].Normal
		for _, c := range contacts[1:] {
			if c.Normal.Z > jumpNormal.Z {
				jumpNormal = c.Normal
			}
		}
		e.Velocity = e.Velocity.Add(jumpNormal.Mul(cfg.JumpImpulse))
		e.JumpInput = false
		res.Jumped = true
	}

	remaining := dt
	for {
		if res.Iterations >= cfg.MaxIterations {
			e.Velocity = vec.Zero3
			res.Capped = true
			break
		}
		res.Iterations++

		var set ConstraintSet
		e.Velocity, set = SolveConstraints(e.Velocity, contacts)
		if res.Iterations == 1 {
			res.Constraint = set.Kind
			e.Velocity = applyFriction(e.Velocity, set)
		}

		c, hit := lk.detectNextCollision(e.Position, e.Size, e.Velocity, remaining)
		if !hit {
			e.Position = e.Position.Add(e.Velocity.Mul(remaining))
			break
		}
		res.Collisions++

		e.Position = e.Position.Add(e.Velocity.Mul(c.T))

		vn := e.Velocity.Dot(c.Normal)
		factor := 1.0
		if vn < -MinBounceSpeed {
			factor += c.Material.Properties().Bounce
		}
		e.Velocity = e.Velocity.Sub(c.Normal.Mul(vn * factor))

		remaining -= c.T

		l, h = e.Bounds()
		contacts = lk.detectContacts(l, h)
	}

	res.MissingTiles = lk.missing
	return res
}

// status выводит состояние движения: вода важнее опоры под ногами
func (lk *lookup) status(e *entity.Entity, contacts []Contact, cfg Config) entity.Status {
	if lk.tile(e.Center().Floor()).Fluid == tile.Water {
		return entity.StatusSwimming
	}
	for _, c := range contacts {
		if c.Normal.Z > cfg.GroundNormalZ {
			return entity.StatusGrounded
		}
	}
	return entity.StatusFalling
}

// applyInput разгоняет сущность вдоль намерения, не превышая MaxMoveSpeed
func applyInput(e *entity.Entity, cfg Config, dt float64) {
	e.UpdateFacing()

	input := e.MovementInput
	if e.Status == entity.StatusGrounded {
		input.Z = 0
	}
	if input.IsZero() || !input.IsFinite() {
		return
	}

	magnitude := math.Min(input.Length(), 1)
	direction := input.Normalized()

	wish := cfg.MoveForce / e.Mass * magnitude * dt
	target := cfg.MaxMoveSpeed * magnitude
	current := e.Velocity.Dot(direction)

	p := inputParams[e.Status]
	switch {
	case current < -target:
		e.Velocity = e.Velocity.Add(direction.Mul(math.Min(p.decel*wish, target-current)))
	case current < target:
		e.Velocity = e.Velocity.Add(direction.Mul(math.Min(p.accel*wish, target-current)))
	}
}

// applyFriction гасит скорость скольжения по кулону: на величину
// friction·ΔV каждой ограничившей поверхности, но не разворачивая ее.
func applyFriction(velocity vec.Vec3Float, set ConstraintSet) vec.Vec3Float {
	if set.Kind != ConstraintSingle && set.Kind != ConstraintDouble {
		return velocity
	}
	speed := velocity.Length()
	if speed == 0 {
		return velocity
	}
	var loss float64
	for _, c := range set.Constraints {
		loss += c.Properties.Friction * c.DeltaV
	}
	if loss >= speed {
		return vec.Zero3
	}
	return velocity.Mul((speed - loss) / speed)
}
