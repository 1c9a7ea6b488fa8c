package vec

import "math"

// Vec3 представляет трехмерный вектор с целочисленными координатами.
// Используется для координат тайлов и ячеек мира.
type Vec3 struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Splat3 создает вектор с одинаковыми координатами
func Splat3(v int) Vec3 {
	return Vec3{X: v, Y: v, Z: v}
}

// Equals проверяет равенство векторов
func (v Vec3) Equals(other Vec3) bool {
	return v.X == other.X && v.Y == other.Y && v.Z == other.Z
}

// Add складывает два вектора
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{
		X: v.X + other.X,
		Y: v.Y + other.Y,
		Z: v.Z + other.Z,
	}
}

// Sub вычитает вектор
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{
		X: v.X - other.X,
		Y: v.Y - other.Y,
		Z: v.Z - other.Z,
	}
}

// Dot возвращает скалярное произведение
func (v Vec3) Dot(other Vec3) int {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// Shr выполняет арифметический сдвиг вправо по всем осям.
// Для отрицательных координат результат округляется вниз.
func (v Vec3) Shr(bits uint) Vec3 {
	return Vec3{X: v.X >> bits, Y: v.Y >> bits, Z: v.Z >> bits}
}

// Shl выполняет сдвиг влево по всем осям
func (v Vec3) Shl(bits uint) Vec3 {
	return Vec3{X: v.X << bits, Y: v.Y << bits, Z: v.Z << bits}
}

// And применяет битовую маску к каждой координате
func (v Vec3) And(mask int) Vec3 {
	return Vec3{X: v.X & mask, Y: v.Y & mask, Z: v.Z & mask}
}

// Get возвращает координату по оси
func (v Vec3) Get(a Axis) int {
	switch a {
	case X:
		return v.X
	case Y:
		return v.Y
	default:
		return v.Z
	}
}

// With возвращает копию вектора с замененной координатой
func (v Vec3) With(a Axis, value int) Vec3 {
	switch a {
	case X:
		v.X = value
	case Y:
		v.Y = value
	default:
		v.Z = value
	}
	return v
}

// Plane отбрасывает координату оси a и возвращает остаток в порядке (L, R)
func (v Vec3) Plane(a Axis) Vec2 {
	return Vec2{X: v.Get(a.L()), Y: v.Get(a.R())}
}

// ToFloat преобразует в вектор с плавающей точкой
func (v Vec3) ToFloat() Vec3Float {
	return Vec3Float{X: float64(v.X), Y: float64(v.Y), Z: float64(v.Z)}
}

// DistanceTo возвращает квадрат расстояния до другого вектора
func (v Vec3) DistanceTo(other Vec3) float64 {
	dx := v.X - other.X
	dy := v.Y - other.Y
	dz := v.Z - other.Z
	return float64(dx*dx + dy*dy + dz*dz)
}

// ChebyshevDistance возвращает максимальную разницу по осям
func (v Vec3) ChebyshevDistance(other Vec3) int {
	d := abs(v.X - other.X)
	if dy := abs(v.Y - other.Y); dy > d {
		d = dy
	}
	if dz := abs(v.Z - other.Z); dz > d {
		d = dz
	}
	return d
}

// FloorVec3 округляет вектор вниз до целочисленного
func FloorVec3(v Vec3Float) Vec3 {
	return Vec3{
		X: int(math.Floor(v.X)),
		Y: int(math.Floor(v.Y)),
		Z: int(math.Floor(v.Z)),
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
