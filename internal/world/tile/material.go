package tile

import (
	"fmt"
	"strings"
)

// Material определяет материал твердой части тайла
type Material uint8

const (
	Grass Material = iota
	Mud
	Dirt
	Stone
	Wood
	Brick
	Tiles
)

var materialNames = [...]string{
	Grass: "grass",
	Mud:   "mud",
	Dirt:  "dirt",
	Stone: "stone",
	Wood:  "wood",
	Brick: "brick",
	Tiles: "tiles",
}

// String возвращает имя материала
func (m Material) String() string {
	if int(m) < len(materialNames) {
		return materialNames[m]
	}
	return fmt.Sprintf("material(%d)", m)
}

// Valid проверяет, что материал известен
func (m Material) Valid() bool {
	return int(m) < len(materialNames)
}

// ParseMaterial находит материал по имени без учета регистра
func ParseMaterial(name string) (Material, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range materialNames {
		if n == name {
			return Material(i), nil
		}
	}
	return 0, fmt.Errorf("неизвестный материал %q", name)
}

// Fluid определяет заполнитель пустой части тайла
type Fluid uint8

const (
	Air Fluid = iota
	Water
)

// String возвращает имя жидкости
func (f Fluid) String() string {
	switch f {
	case Air:
		return "air"
	case Water:
		return "water"
	default:
		return fmt.Sprintf("fluid(%d)", f)
	}
}

// ParseFluid находит жидкость по имени
func ParseFluid(name string) (Fluid, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "air":
		return Air, nil
	case "water":
		return Water, nil
	default:
		return 0, fmt.Errorf("неизвестная жидкость %q", name)
	}
}

// Properties физические параметры поверхности
type Properties struct {
	Friction float64 // Коэффициент трения Кулона
	Bounce   float64 // Доля нормальной скорости, возвращаемая при ударе
}

var materialProperties = [...]Properties{
	Grass: {Friction: 0.6},
	Mud:   {Friction: 0.9},
	Dirt:  {Friction: 0.6},
	Stone: {Friction: 0.5},
	Wood:  {Friction: 0.4, Bounce: 0.25},
	Brick: {Friction: 0.5},
	Tiles: {Friction: 0.3},
}

// Properties возвращает физические параметры материала
func (m Material) Properties() Properties {
	if int(m) < len(materialProperties) {
		return materialProperties[m]
	}
	return Properties{}
}

// Merge объединяет параметры двух поверхностей с одинаковой нормалью
func (p Properties) Merge(other Properties) Properties {
	return Properties{
		Friction: (p.Friction + other.Friction) / 2,
		Bounce:   (p.Bounce + other.Bounce) / 2,
	}
}
