package vec

import "math"

// Vec3Float представляет трехмерный вектор с плавающими координатами
type Vec3Float struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Zero3 нулевой вектор
var Zero3 = Vec3Float{}

// Unit возвращает единичный вектор вдоль оси a со знаком positive
func Unit(a Axis, positive bool) Vec3Float {
	s := 1.0
	if !positive {
		s = -1.0
	}
	return Vec3Float{}.With(a, s)
}

// Add складывает два вектора
func (v Vec3Float) Add(other Vec3Float) Vec3Float {
	return Vec3Float{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Sub вычитает вектор
func (v Vec3Float) Sub(other Vec3Float) Vec3Float {
	return Vec3Float{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Mul умножает вектор на скаляр
func (v Vec3Float) Mul(scalar float64) Vec3Float {
	return Vec3Float{X: v.X * scalar, Y: v.Y * scalar, Z: v.Z * scalar}
}

// Scale выполняет покомпонентное умножение
func (v Vec3Float) Scale(other Vec3Float) Vec3Float {
	return Vec3Float{X: v.X * other.X, Y: v.Y * other.Y, Z: v.Z * other.Z}
}

// Neg возвращает противоположный вектор
func (v Vec3Float) Neg() Vec3Float {
	return Vec3Float{X: -v.X, Y: -v.Y, Z: -v.Z}
}

// Dot возвращает скалярное произведение
func (v Vec3Float) Dot(other Vec3Float) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// Cross возвращает векторное произведение
func (v Vec3Float) Cross(other Vec3Float) Vec3Float {
	return Vec3Float{
		X: v.Y*other.Z - v.Z*other.Y,
		Y: v.Z*other.X - v.X*other.Z,
		Z: v.X*other.Y - v.Y*other.X,
	}
}

// LengthSquared возвращает квадрат длины вектора
func (v Vec3Float) LengthSquared() float64 {
	return v.Dot(v)
}

// Length возвращает длину вектора
func (v Vec3Float) Length() float64 {
	return math.Sqrt(v.LengthSquared())
}

// Normalized возвращает нормализованный вектор
func (v Vec3Float) Normalized() Vec3Float {
	length := v.Length()
	if length == 0 {
		return Vec3Float{}
	}
	return v.Mul(1 / length)
}

// IsZero проверяет, что все координаты равны нулю
func (v Vec3Float) IsZero() bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// ApproxEquals сравнивает векторы покомпонентно с допуском eps
func (v Vec3Float) ApproxEquals(other Vec3Float, eps float64) bool {
	return math.Abs(v.X-other.X) <= eps &&
		math.Abs(v.Y-other.Y) <= eps &&
		math.Abs(v.Z-other.Z) <= eps
}

// Get возвращает координату по оси
func (v Vec3Float) Get(a Axis) float64 {
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
func (v Vec3Float) With(a Axis, value float64) Vec3Float {
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
func (v Vec3Float) Plane(a Axis) Vec2Float {
	return Vec2Float{X: v.Get(a.L()), Y: v.Get(a.R())}
}

// Embed вставляет двумерный вектор обратно в плоскость оси a,
// подставляя value по самой оси
func Embed(p Vec2Float, a Axis, value float64) Vec3Float {
	return Vec3Float{}.With(a.L(), p.X).With(a.R(), p.Y).With(a, value)
}

// Min возвращает покомпонентный минимум
func (v Vec3Float) Min(other Vec3Float) Vec3Float {
	return Vec3Float{X: math.Min(v.X, other.X), Y: math.Min(v.Y, other.Y), Z: math.Min(v.Z, other.Z)}
}

// Max возвращает покомпонентный максимум
func (v Vec3Float) Max(other Vec3Float) Vec3Float {
	return Vec3Float{X: math.Max(v.X, other.X), Y: math.Max(v.Y, other.Y), Z: math.Max(v.Z, other.Z)}
}

// Clamp ограничивает каждую координату отрезком [lo, hi]
func (v Vec3Float) Clamp(lo, hi Vec3Float) Vec3Float {
	return v.Max(lo).Min(hi)
}

// Floor округляет вниз до целочисленного вектора
func (v Vec3Float) Floor() Vec3 {
	return FloorVec3(v)
}

// IsFinite проверяет, что координаты не NaN и не бесконечны
func (v Vec3Float) IsFinite() bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0) &&
		!math.IsNaN(v.Z) && !math.IsInf(v.Z, 0)
}
