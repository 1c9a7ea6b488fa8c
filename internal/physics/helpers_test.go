package physics

import (
	"github.com/annel0/voxphys/internal/vec"
	"github.com/annel0/voxphys/internal/world/tile"
)

// mapTerrain рельеф для тестов: все, чего нет в карте, пусто и загружено
type mapTerrain map[vec.Vec3]tile.Tile

func (m mapTerrain) TileAt(pos vec.Vec3) (tile.Tile, bool) {
	return m[pos], true
}

// fill заполняет включительный диапазон тайлом t
func (m mapTerrain) fill(from, to vec.Vec3, t tile.Tile) mapTerrain {
	forEachTile(from, to, func(pos vec.Vec3) bool {
		m[pos] = t
		return true
	})
	return m
}

// unloadedBelow считает незагруженным все, что ниже z = 0
type unloadedBelow struct{}

func (unloadedBelow) TileAt(pos vec.Vec3) (tile.Tile, bool) {
	return tile.Tile{}, pos.Z >= 0
}

func v3(x, y, z float64) vec.Vec3Float {
	return vec.Vec3Float{X: x, Y: y, Z: z}
}

func t3(x, y, z int) vec.Vec3 {
	return vec.Vec3{X: x, Y: y, Z: z}
}

// overlapsSolid проверяет, пересекает ли бокс объем какого-либо полного тайла
func overlapsSolid(m mapTerrain, l, h vec.Vec3Float, tolerance float64) bool {
	for pos, t := range m {
		if t.State() != tile.Full {
			continue
		}
		lo := pos.ToFloat()
		inside := true
		for _, a := range vec.Axes {
			if h.Get(a) <= lo.Get(a)+tolerance || l.Get(a) >= lo.Get(a)+1-tolerance {
				inside = false
				break
			}
		}
		if inside {
			return true
		}
	}
	return false
}
