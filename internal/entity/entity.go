package entity

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/annel0/voxphys/internal/vec"
)

// Углы бокса относительно позиции, в долях размера
var (
	LowCorner  = vec.Vec3Float{X: -0.5, Y: -0.5, Z: 0}
	HighCorner = vec.Vec3Float{X: 0.5, Y: 0.5, Z: 1}
)

// Kind тип сущности
type Kind uint8

const (
	KindPlayer Kind = iota
	KindNPC
)

// String возвращает имя типа
func (k Kind) String() string {
	switch k {
	case KindPlayer:
		return "player"
	case KindNPC:
		return "npc"
	default:
		return "unknown"
	}
}

// ParseKind разбирает тип сущности
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "player":
		return KindPlayer, nil
	case "npc":
		return KindNPC, nil
	default:
		return 0, fmt.Errorf("неизвестный тип сущности %q", s)
	}
}

// Facing направление взгляда, выводимое из ввода
type Facing uint8

const (
	FacingDown Facing = iota
	FacingUp
	FacingLeft
	FacingRight
)

// String возвращает имя направления
func (f Facing) String() string {
	switch f {
	case FacingUp:
		return "up"
	case FacingDown:
		return "down"
	case FacingLeft:
		return "left"
	case FacingRight:
		return "right"
	default:
		return "unknown"
	}
}

// Status состояние движения, вычисляемое шагом физики
type Status uint8

const (
	StatusFalling Status = iota
	StatusGrounded
	StatusSwimming
)

// String возвращает имя состояния
func (s Status) String() string {
	switch s {
	case StatusGrounded:
		return "grounded"
	case StatusFalling:
		return "falling"
	case StatusSwimming:
		return "swimming"
	default:
		return "unknown"
	}
}

// Entity представляет тело, движущееся сквозь воксельный мир.
// Поля меняются только шагом физики и вводом до начала шага.
type Entity struct {
	ID       uuid.UUID
	Kind     Kind
	Position vec.Vec3Float // Центр нижней грани бокса
	Velocity vec.Vec3Float
	Size     vec.Vec3Float
	Mass     float64

	MovementInput vec.Vec3Float // Намерение движения, z учитывается только в воздухе и воде
	JumpInput     bool          // Сбрасывается шагом физики после использования

	Facing Facing
	Status Status

	Brain State // Автономное управление вводом, nil для игроков
}

// NewEntity создаёт новую сущность
func NewEntity(kind Kind, position, size vec.Vec3Float, mass float64) (*Entity, error) {
	if size.X <= 0 || size.Y <= 0 || size.Z <= 0 {
		return nil, fmt.Errorf("размер сущности должен быть положительным: %+v", size)
	}
	if mass <= 0 {
		return nil, fmt.Errorf("масса сущности должна быть положительной: %v", mass)
	}
	if !position.IsFinite() {
		return nil, fmt.Errorf("некорректная позиция: %+v", position)
	}
	return &Entity{
		ID:       uuid.New(),
		Kind:     kind,
		Position: position,
		Size:     size,
		Mass:     mass,
		Status:   StatusFalling,
	}, nil
}

// Bounds возвращает нижний и верхний углы бокса
func (e *Entity) Bounds() (l, h vec.Vec3Float) {
	return BoundsAt(e.Position, e.Size)
}

// BoundsAt возвращает углы бокса для произвольной позиции
func BoundsAt(position, size vec.Vec3Float) (l, h vec.Vec3Float) {
	return position.Add(size.Scale(LowCorner)), position.Add(size.Scale(HighCorner))
}

// Center возвращает геометрический центр бокса
func (e *Entity) Center() vec.Vec3Float {
	return e.Position.Add(vec.Vec3Float{Z: e.Size.Z / 2})
}

// UpdateFacing выводит направление взгляда из горизонтального ввода.
// Нулевой или диагональный ввод не меняет направление.
func (e *Entity) UpdateFacing() {
	in := e.MovementInput
	ax, ay := abs(in.X), abs(in.Y)
	switch {
	case in.Y < -ax:
		e.Facing = FacingUp
	case in.Y > ax:
		e.Facing = FacingDown
	case in.X < -ay:
		e.Facing = FacingLeft
	case in.X > ay:
		e.Facing = FacingRight
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
