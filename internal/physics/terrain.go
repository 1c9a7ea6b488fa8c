// Package physics реализует непрерывную коллизию AABB с воксельным рельефом:
// поиск контактов, ограничение скорости контактами и развертку по времени.
package physics

import (
	"github.com/annel0/voxphys/internal/vec"
	"github.com/annel0/voxphys/internal/world/tile"
)

// Terrain источник тайлов. false означает, что ячейка не загружена.
// Во время шага рельеф не должен меняться.
type Terrain interface {
	TileAt(pos vec.Vec3) (tile.Tile, bool)
}

// MissingTile подставляется вместо незагруженных тайлов.
// Отсутствующий рельеф всегда считается твердым.
var MissingTile = tile.NewFull(tile.Stone)

// lookup считает обращения к незагруженным тайлам за один шаг
type lookup struct {
	terrain Terrain
	missing int
}

func newLookup(terrain Terrain) *lookup {
	return &lookup{terrain: terrain}
}

func (lk *lookup) tile(pos vec.Vec3) tile.Tile {
	t, ok := lk.terrain.TileAt(pos)
	if !ok {
		lk.missing++
		return MissingTile
	}
	return t
}

// forEachTile обходит включительный диапазон from..to в порядке Z, Y, X
// (Z - внешний цикл). По каждой оси обход идет от from к to, даже если
// from больше to. Обход прекращается, когда fn возвращает false.
func forEachTile(from, to vec.Vec3, fn func(pos vec.Vec3) bool) {
	sz, sy, sx := stepToward(from.Z, to.Z), stepToward(from.Y, to.Y), stepToward(from.X, to.X)
	for z := from.Z; ; z += sz {
		for y := from.Y; ; y += sy {
			for x := from.X; ; x += sx {
				if !fn(vec.Vec3{X: x, Y: y, Z: z}) {
					return
				}
				if x == to.X {
					break
				}
			}
			if y == to.Y {
				break
			}
		}
		if z == to.Z {
			break
		}
	}
}

func stepToward(from, to int) int {
	if to < from {
		return -1
	}
	return 1
}

func min0(v int) int {
	if v < 0 {
		return v
	}
	return 0
}

func max0(v int) int {
	if v > 0 {
		return v
	}
	return 0
}

func splat(v float64) vec.Vec3Float {
	return vec.Vec3Float{X: v, Y: v, Z: v}
}

// inTile проверяет, что точка лежит в кубе тайла с допуском boundsTolerance
func inTile(p vec.Vec3Float, tp vec.Vec3) bool {
	for _, a := range vec.Axes {
		lo := float64(tp.Get(a))
		if v := p.Get(a); v < lo-boundsTolerance || v > lo+1+boundsTolerance {
			return false
		}
	}
	return true
}

// inSquare двумерный аналог inTile для проекции на плоскость
func inSquare(p vec.Vec2Float, tp vec.Vec2) bool {
	x, y := float64(tp.X), float64(tp.Y)
	return p.X >= x-boundsTolerance && p.X <= x+1+boundsTolerance &&
		p.Y >= y-boundsTolerance && p.Y <= y+1+boundsTolerance
}

// clampToTile ограничивает точку кубом тайла
func clampToTile(p vec.Vec3Float, tp vec.Vec3) vec.Vec3Float {
	lo := tp.ToFloat()
	return p.Clamp(lo, lo.Add(splat(1)))
}

// nearCorner угол бокса с наименьшим direction·p
func nearCorner(l, h vec.Vec3Float, dir tile.Direction) vec.Vec3Float {
	var p vec.Vec3Float
	for _, a := range vec.Axes {
		if dir.Get(a) >= 0 {
			p = p.With(a, l.Get(a))
		} else {
			p = p.With(a, h.Get(a))
		}
	}
	return p
}
