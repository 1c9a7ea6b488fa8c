package entity

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/annel0/voxphys/internal/vec"
)

// Snapshot сериализуемое состояние сущности
type Snapshot struct {
	ID       string        `json:"id"`
	Kind     string        `json:"kind"`
	Position vec.Vec3Float `json:"position"`
	Velocity vec.Vec3Float `json:"velocity"`
	Size     vec.Vec3Float `json:"size"`
	Mass     float64       `json:"mass"`
	Facing   string        `json:"facing"`
	Status   string        `json:"status"`
	Wander   bool          `json:"wander,omitempty"`
}

// Snapshot снимает копию состояния сущности
func (e *Entity) Snapshot() Snapshot {
	_, wander := e.Brain.(*WanderState)
	if _, idle := e.Brain.(*IdleState); idle {
		wander = true
	}
	return Snapshot{
		ID:       e.ID.String(),
		Kind:     e.Kind.String(),
		Position: e.Position,
		Velocity: e.Velocity,
		Size:     e.Size,
		Mass:     e.Mass,
		Facing:   e.Facing.String(),
		Status:   e.Status.String(),
		Wander:   wander,
	}
}

// FromSnapshot восстанавливает сущность из снимка
func FromSnapshot(s Snapshot) (*Entity, error) {
	id, err := uuid.Parse(s.ID)
	if err != nil {
		return nil, fmt.Errorf("некорректный id сущности: %w", err)
	}
	kind, err := ParseKind(s.Kind)
	if err != nil {
		return nil, err
	}
	e, err := NewEntity(kind, s.Position, s.Size, s.Mass)
	if err != nil {
		return nil, err
	}
	e.ID = id
	e.Velocity = s.Velocity
	e.Facing = parseFacing(s.Facing)
	if s.Wander {
		e.SetState(NewIdleState(int64(id.ID())))
	}
	return e, nil
}

func parseFacing(s string) Facing {
	switch s {
	case "up":
		return FacingUp
	case "left":
		return FacingLeft
	case "right":
		return FacingRight
	default:
		return FacingDown
	}
}
