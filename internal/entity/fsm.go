package entity

import (
	"math"
	"math/rand"

	"github.com/annel0/voxphys/internal/vec"
)

// State представляет состояние конечного автомата, управляющего вводом
type State interface {
	Enter(entity *Entity)
	Update(entity *Entity, dt float64) State
	Exit(entity *Entity)
}

// Think обновляет автономное управление сущностью перед шагом физики
func (e *Entity) Think(dt float64) {
	if e.Brain != nil {
		newState := e.Brain.Update(e, dt)
		if newState != e.Brain {
			e.Brain.Exit(e)
			e.Brain = newState
			e.Brain.Enter(e)
		}
	}
}

// SetState устанавливает новое состояние сущности
func (e *Entity) SetState(state State) {
	if e.Brain != nil {
		e.Brain.Exit(e)
	}

	e.Brain = state

	if e.Brain != nil {
		e.Brain.Enter(e)
	}
}

// === Конкретные состояния ===

// IdleState - состояние бездействия
type IdleState struct {
	rng         *rand.Rand
	TimeInState float64
	MaxIdleTime float64
}

// NewIdleState создаёт новое состояние бездействия
func NewIdleState(seed int64) *IdleState {
	rng := rand.New(rand.NewSource(seed))
	return &IdleState{
		rng:         rng,
		MaxIdleTime: 2.0 + rng.Float64()*3.0, // 2-5 секунд
	}
}

func (s *IdleState) Enter(entity *Entity) {
	s.TimeInState = 0
	entity.MovementInput = vec.Vec3Float{}
	entity.JumpInput = false
}

func (s *IdleState) Update(entity *Entity, dt float64) State {
	s.TimeInState += dt

	if s.TimeInState >= s.MaxIdleTime {
		return newWanderState(s.rng)
	}

	return s
}

func (s *IdleState) Exit(entity *Entity) {}

// WanderState - состояние блуждания в случайном направлении.
// Если сущность стоит на земле и почти не движется, она подпрыгивает.
type WanderState struct {
	rng           *rand.Rand
	Direction     vec.Vec3Float
	TimeInState   float64
	MaxWanderTime float64
	stuckTime     float64
}

// StuckSpeed скорость, ниже которой блуждающая сущность считается застрявшей
const StuckSpeed = 0.2

// stuckJumpDelay время без движения до прыжка
const stuckJumpDelay = 0.5

func newWanderState(rng *rand.Rand) *WanderState {
	return &WanderState{
		rng:           rng,
		MaxWanderTime: 3.0 + rng.Float64()*5.0, // 3-8 секунд
	}
}

func (s *WanderState) Enter(entity *Entity) {
	s.TimeInState = 0
	s.stuckTime = 0

	angle := s.rng.Float64() * 2 * math.Pi
	s.Direction = vec.Vec3Float{X: math.Cos(angle), Y: math.Sin(angle)}
	entity.MovementInput = s.Direction
}

func (s *WanderState) Update(entity *Entity, dt float64) State {
	s.TimeInState += dt

	if s.TimeInState >= s.MaxWanderTime {
		return &IdleState{rng: s.rng, MaxIdleTime: 2.0 + s.rng.Float64()*3.0}
	}

	entity.MovementInput = s.Direction

	horizontal := vec.Vec3Float{X: entity.Velocity.X, Y: entity.Velocity.Y}
	if entity.Status == StatusGrounded && horizontal.Length() < StuckSpeed {
		s.stuckTime += dt
		if s.stuckTime >= stuckJumpDelay {
			entity.JumpInput = true
			s.stuckTime = 0
		}
	} else {
		s.stuckTime = 0
	}

	return s
}

func (s *WanderState) Exit(entity *Entity) {
	entity.MovementInput = vec.Vec3Float{}
}
