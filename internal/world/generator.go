package world

import (
	"fmt"
	"math"

	"github.com/annel0/voxphys/internal/util"
	"github.com/annel0/voxphys/internal/vec"
	"github.com/annel0/voxphys/internal/world/tile"
)

// GeneratorMode определяет способ генерации рельефа
type GeneratorMode string

const (
	ModePerlin GeneratorMode = "perlin" // Карта высот из октав шума с наклонной поверхностью
	ModeFlat   GeneratorMode = "flat"   // Плоский слой земли с кирпичной пирамидкой в углу ячейки
)

// flatGroundTop верхний уровень земли в плоском режиме
const flatGroundTop = 3

// GeneratorSettings параметры генерации
type GeneratorSettings struct {
	Mode         GeneratorMode
	Seed         int64
	LargeSize    float64 // Период самой крупной октавы, в тайлах
	SmallSize    float64 // Период самой мелкой октавы
	OctaveSize   float64 // Множитель частоты между октавами
	OctaveWeight float64 // Делитель веса между октавами
	HeightScale  float64
	Center       float64 // Средняя высота и уровень воды
}

// DefaultGeneratorSettings возвращает параметры по умолчанию
func DefaultGeneratorSettings(seed int64) GeneratorSettings {
	return GeneratorSettings{
		Mode:         ModePerlin,
		Seed:         seed,
		LargeSize:    64,
		SmallSize:    4,
		OctaveSize:   2,
		OctaveWeight: 2,
		HeightScale:  16,
		Center:       16,
	}
}

// Validate проверяет параметры генерации
func (s GeneratorSettings) Validate() error {
	switch s.Mode {
	case ModePerlin, ModeFlat:
	default:
		return fmt.Errorf("неизвестный режим генерации %q", s.Mode)
	}
	if s.Mode == ModePerlin {
		if s.LargeSize <= 0 || s.SmallSize <= 0 || s.SmallSize > s.LargeSize {
			return fmt.Errorf("некорректные размеры октав: large=%v small=%v", s.LargeSize, s.SmallSize)
		}
		if s.OctaveSize <= 1 || s.OctaveWeight <= 0 {
			return fmt.Errorf("некорректные параметры октав: size=%v weight=%v", s.OctaveSize, s.OctaveWeight)
		}
	}
	return nil
}

// Слои материалов по высоте
var layerMaterials = [...]tile.Material{
	tile.Stone, tile.Stone, tile.Stone, tile.Stone, tile.Stone,
	tile.Stone, tile.Stone, tile.Stone, tile.Stone, tile.Stone,
	tile.Mud, tile.Mud, tile.Mud, tile.Mud,
	tile.Grass, tile.Grass, tile.Grass, tile.Grass,
	tile.Dirt, tile.Dirt, tile.Dirt, tile.Dirt,
	tile.Stone, tile.Stone, tile.Stone, tile.Stone,
	tile.Stone, tile.Stone, tile.Stone, tile.Stone,
}

func materialAt(z int) tile.Material {
	if z < 0 {
		return tile.Stone
	}
	if z >= len(layerMaterials) {
		return layerMaterials[len(layerMaterials)-1]
	}
	return layerMaterials[z]
}

// Generator генерирует ячейки мира
type Generator struct {
	settings GeneratorSettings
	noise    *util.Noise
}

// NewGenerator создаёт новый генератор мира
func NewGenerator(settings GeneratorSettings) (*Generator, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &Generator{
		settings: settings,
		noise:    util.NewNoise(settings.Seed),
	}, nil
}

// Settings возвращает параметры генератора
func (g *Generator) Settings() GeneratorSettings {
	return g.settings
}

// GenerateCell генерирует ячейку по ее координатам
func (g *Generator) GenerateCell(location vec.Vec3) *Cell {
	cell := NewCell(location)
	switch g.settings.Mode {
	case ModeFlat:
		g.generateFlat(cell)
	default:
		g.generatePerlin(cell)
	}
	return cell
}

func (g *Generator) generateFlat(cell *Cell) {
	origin := cell.Origin()
	for z := 0; z < CellHeight; z++ {
		worldZ := origin.Z + z
		for y := 0; y < CellWidth; y++ {
			for x := 0; x < CellWidth; x++ {
				local := vec.Vec3{X: x, Y: y, Z: z}
				switch {
				case worldZ < 0:
					cell.Set(local, tile.NewFull(tile.Stone))
				case worldZ < flatGroundTop:
					cell.Set(local, tile.NewFull(tile.Dirt))
				case worldZ == flatGroundTop:
					cell.Set(local, tile.NewFull(tile.Grass))
				case worldZ == flatGroundTop+1:
					cell.Set(local, pyramidTile(x, y))
				}
			}
		}
	}
}

// pyramidTile четыре наклонных тайла, сходящихся в острую вершину
func pyramidTile(x, y int) tile.Tile {
	brick := func(dx, dy, dz, level int8) tile.Tile {
		return tile.Tile{Material: tile.Brick, Fluid: tile.Air, Level: level, Direction: tile.Direction{X: dx, Y: dy, Z: dz}}
	}
	switch {
	case x == 0 && y == CellWidth-1:
		return brick(-3, 3, 6, 0)
	case x == 0 && y == CellWidth-2:
		return brick(-3, -3, 6, -3)
	case x == 1 && y == CellWidth-2:
		return brick(3, -3, 6, 0)
	case x == 1 && y == CellWidth-1:
		return brick(3, 3, 6, 3)
	}
	return tile.NewEmpty(tile.Air)
}

// Column описание столбца рельефа
type Column struct {
	Height   int       // Высота первого нетвердого тайла
	Surface  tile.Tile // Наклонный тайл на высоте Height
	WaterTop int       // Уровень воды (исключительно)
}

// ColumnAt вычисляет столбец рельефа для мировых координат x, y
func (g *Generator) ColumnAt(x, y int) Column {
	s := g.settings

	var height, gx, gy float64
	inverseSize := 1.0 / s.LargeSize
	weight := 1.0
	for inverseSize <= 1.0/s.SmallSize+1e-12 {
		value, dx, dy := g.noise.Gradient2D(float64(x)*inverseSize, float64(y)*inverseSize)
		height += value * weight
		gx += dx * weight * inverseSize
		gy += dy * weight * inverseSize

		inverseSize *= s.OctaveSize
		weight /= s.OctaveWeight
	}

	h := int(math.Floor(height*s.HeightScale + s.Center))
	gx *= s.HeightScale
	gy *= s.HeightScale

	// Нормаль поверхности (-gx, -gy, 1), масштабированная до малых целых
	direction := tile.Direction{
		X: clampInt8(math.Round(-gx * 8)),
		Y: clampInt8(math.Round(-gy * 8)),
		Z: 8,
	}
	level := (int(direction.X) + int(direction.Y) + int(direction.Z)) / 2

	waterTop := int(math.Round(s.Center))
	fluid := tile.Air
	if h < waterTop {
		fluid = tile.Water
	}

	surface := tile.Tile{
		Material:  materialAt(h),
		Fluid:     fluid,
		Level:     int8(level),
		Direction: direction,
	}.Normalize()

	return Column{Height: h, Surface: surface, WaterTop: waterTop}
}

func (g *Generator) generatePerlin(cell *Cell) {
	origin := cell.Origin()
	for y := 0; y < CellWidth; y++ {
		for x := 0; x < CellWidth; x++ {
			col := g.ColumnAt(origin.X+x, origin.Y+y)
			for z := 0; z < CellHeight; z++ {
				worldZ := origin.Z + z
				local := vec.Vec3{X: x, Y: y, Z: z}
				switch {
				case worldZ < col.Height:
					cell.Set(local, tile.NewFull(materialAt(worldZ)))
				case worldZ == col.Height:
					cell.Set(local, col.Surface)
				case worldZ < col.WaterTop:
					cell.Set(local, tile.NewEmpty(tile.Water))
				}
			}
		}
	}
}

func clampInt8(v float64) int8 {
	// Запас, чтобы level = sum/2 оставался в int8
	const limit = 40
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return int8(v)
}
