// Package tile описывает геометрию одного вокселя: пустой, полный куб
// или наклонное полупространство direction·p <= level.
package tile

import (
	"errors"
	"fmt"

	"github.com/annel0/voxphys/internal/vec"
)

// ErrDegenerateSlope возвращается, когда уровень наклона не пересекает куб
var ErrDegenerateSlope = errors.New("вырожденный наклон")

// State производное состояние тайла
type State uint8

const (
	Empty State = iota
	Full
	Partial
)

// String возвращает имя состояния
func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case Full:
		return "full"
	case Partial:
		return "partial"
	default:
		return "unknown"
	}
}

// Direction нормаль плоскости наклона в малых целых
type Direction struct {
	X, Y, Z int8
}

// IsZero проверяет нулевое направление
func (d Direction) IsZero() bool {
	return d.X == 0 && d.Y == 0 && d.Z == 0
}

// Get возвращает компоненту по оси
func (d Direction) Get(a vec.Axis) int {
	switch a {
	case vec.X:
		return int(d.X)
	case vec.Y:
		return int(d.Y)
	default:
		return int(d.Z)
	}
}

// Vec3 переводит направление в целочисленный вектор
func (d Direction) Vec3() vec.Vec3 {
	return vec.Vec3{X: int(d.X), Y: int(d.Y), Z: int(d.Z)}
}

// Float переводит направление в вектор с плавающей точкой
func (d Direction) Float() vec.Vec3Float {
	return vec.Vec3Float{X: float64(d.X), Y: float64(d.Y), Z: float64(d.Z)}
}

// Sums возвращает суммы отрицательных и положительных компонент.
// Это минимум и максимум direction·p по вершинам единичного куба.
func (d Direction) Sums() (neg, pos int) {
	for _, a := range vec.Axes {
		if v := d.Get(a); v >= 0 {
			pos += v
		} else {
			neg += v
		}
	}
	return neg, pos
}

// Tile описание занятого объема одного вокселя
type Tile struct {
	Material  Material
	Fluid     Fluid
	Level     int8
	Direction Direction
}

// NewFull создает полный блок
func NewFull(material Material) Tile {
	return Tile{Material: material, Fluid: Air, Level: 1}
}

// NewEmpty создает пустой тайл, заполненный жидкостью
func NewEmpty(fluid Fluid) Tile {
	return Tile{Material: Grass, Fluid: fluid}
}

// NewSlope создает наклонный тайл. Возвращает ErrDegenerateSlope,
// если плоскость не пересекает внутренность куба.
func NewSlope(material Material, fluid Fluid, direction Direction, level int8) (Tile, error) {
	if direction.IsZero() {
		return Tile{}, fmt.Errorf("%w: нулевое направление", ErrDegenerateSlope)
	}
	neg, pos := direction.Sums()
	if int(level) <= neg || int(level) >= pos {
		return Tile{}, fmt.Errorf("%w: уровень %d вне (%d, %d)", ErrDegenerateSlope, level, neg, pos)
	}
	return Tile{Material: material, Fluid: fluid, Level: level, Direction: direction}, nil
}

// State классифицирует тайл по направлению и уровню
func (t Tile) State() State {
	if t.Direction.IsZero() {
		if t.Level == 0 {
			return Empty
		}
		return Full
	}
	return Partial
}

// IsEmpty проверяет, что тайл пустой
func (t Tile) IsEmpty() bool {
	return t.State() == Empty
}

// IsFull проверяет, что тайл полный
func (t Tile) IsFull() bool {
	return t.State() == Full
}

// Normalize сворачивает вырожденный наклон в пустой или полный тайл
func (t Tile) Normalize() Tile {
	if t.State() != Partial {
		return t
	}
	neg, pos := t.Direction.Sums()
	switch {
	case int(t.Level) <= neg:
		return Tile{Material: t.Material, Fluid: t.Fluid}
	case int(t.Level) >= pos:
		return Tile{Material: t.Material, Fluid: t.Fluid, Level: 1}
	}
	return t
}

// Valid проверяет, что наклонный тайл не вырожден
func (t Tile) Valid() bool {
	return t.Normalize() == t
}

// IncludesCorner проверяет, лежит ли вершина куба в твердой части.
// Не имеет смысла для пустых тайлов.
func (t Tile) IncludesCorner(corner vec.Vec3) bool {
	return t.Direction.Vec3().Dot(corner) <= int(t.Level)
}

// Occupied проверяет, занята ли точка в локальных координатах тайла [0,1]³
func (t Tile) Occupied(local vec.Vec3Float) bool {
	if local.X < 0 || local.X > 1 || local.Y < 0 || local.Y > 1 || local.Z < 0 || local.Z > 1 {
		return false
	}
	switch t.State() {
	case Full:
		return true
	case Partial:
		return t.Direction.Float().Dot(local) <= float64(t.Level)
	default:
		return false
	}
}
