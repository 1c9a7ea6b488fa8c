package world

import (
	"github.com/annel0/voxphys/internal/vec"
	"github.com/annel0/voxphys/internal/world/tile"
)

// Размеры ячейки мира
const (
	CellWidthBits  = 5
	CellHeightBits = 5
	CellWidth      = 1 << CellWidthBits
	CellHeight     = 1 << CellHeightBits
	CellXYMask     = CellWidth - 1
	CellZMask      = CellHeight - 1
	CellTileCount  = CellWidth * CellWidth * CellHeight
)

// CellTiles плотный массив тайлов ячейки, индексы [z][y][x]
type CellTiles [CellHeight][CellWidth][CellWidth]tile.Tile

// Cell представляет участок мира размером 32x32x32 тайла
type Cell struct {
	Location vec.Vec3 // Координаты ячейки в решетке ячеек
	Tiles    CellTiles
	Unload   bool // Помечена к выгрузке
	Dirty    bool // Изменена после загрузки
}

// NewCell создаёт пустую ячейку, заполненную воздухом
func NewCell(location vec.Vec3) *Cell {
	return &Cell{Location: location}
}

// CellLocation возвращает координаты ячейки, содержащей тайл
func CellLocation(tilePos vec.Vec3) vec.Vec3 {
	return vec.Vec3{
		X: tilePos.X >> CellWidthBits,
		Y: tilePos.Y >> CellWidthBits,
		Z: tilePos.Z >> CellHeightBits,
	}
}

// LocalPos возвращает координаты тайла внутри ячейки
func LocalPos(tilePos vec.Vec3) vec.Vec3 {
	return vec.Vec3{
		X: tilePos.X & CellXYMask,
		Y: tilePos.Y & CellXYMask,
		Z: tilePos.Z & CellZMask,
	}
}

// Origin возвращает мировые координаты нулевого тайла ячейки
func (c *Cell) Origin() vec.Vec3 {
	return vec.Vec3{
		X: c.Location.X << CellWidthBits,
		Y: c.Location.Y << CellWidthBits,
		Z: c.Location.Z << CellHeightBits,
	}
}

// At возвращает тайл по локальным координатам
func (c *Cell) At(local vec.Vec3) tile.Tile {
	return c.Tiles[local.Z][local.Y][local.X]
}

// Set записывает тайл по локальным координатам
func (c *Cell) Set(local vec.Vec3, t tile.Tile) {
	c.Tiles[local.Z][local.Y][local.X] = t
}

// ForEach обходит все тайлы ячейки в порядке z, y, x
func (c *Cell) ForEach(fn func(local vec.Vec3, t tile.Tile)) {
	for z := 0; z < CellHeight; z++ {
		for y := 0; y < CellWidth; y++ {
			for x := 0; x < CellWidth; x++ {
				fn(vec.Vec3{X: x, Y: y, Z: z}, c.Tiles[z][y][x])
			}
		}
	}
}

// SolidCount возвращает количество непустых тайлов
func (c *Cell) SolidCount() int {
	n := 0
	c.ForEach(func(_ vec.Vec3, t tile.Tile) {
		if t.State() != tile.Empty {
			n++
		}
	})
	return n
}
