package vec

// Axis обозначает ось координат
type Axis uint8

const (
	X Axis = iota
	Y
	Z
)

// PriorityOrder порядок обхода осей при разрешении неоднозначностей.
// Вертикаль проверяется первой, чтобы стоящие на земле тела получали опорную нормаль.
var PriorityOrder = [3]Axis{Z, Y, X}

// Axes оси в естественном порядке
var Axes = [3]Axis{X, Y, Z}

// L возвращает первую ось плоскости, перпендикулярной a
func (a Axis) L() Axis {
	if a == X {
		return Y
	}
	return X
}

// R возвращает вторую ось плоскости, перпендикулярной a
func (a Axis) R() Axis {
	if a == Z {
		return Y
	}
	return Z
}

// String возвращает имя оси
func (a Axis) String() string {
	switch a {
	case X:
		return "X"
	case Y:
		return "Y"
	case Z:
		return "Z"
	default:
		return "?"
	}
}
