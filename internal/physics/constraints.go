package physics

import (
	"math"

	"github.com/annel0/voxphys/internal/vec"
	"github.com/annel0/voxphys/internal/world/tile"
)

// parallelEpsilon нижняя граница |n1×n2|² для ребра между плоскостями
const parallelEpsilon = 1e-8

// ConstraintKind число активных ограничений после решения
type ConstraintKind uint8

const (
	ConstraintNone ConstraintKind = iota
	ConstraintSingle
	ConstraintDouble
	ConstraintLocked
)

// String возвращает имя вида ограничения
func (k ConstraintKind) String() string {
	switch k {
	case ConstraintNone:
		return "none"
	case ConstraintSingle:
		return "single"
	case ConstraintDouble:
		return "double"
	case ConstraintLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// Constraint поверхность, ограничившая скорость
type Constraint struct {
	Normal     vec.Vec3Float
	Properties tile.Properties
	DeltaV     float64 // Снятая вдоль нормали скорость, не меньше нуля
}

// ConstraintSet результат решения
type ConstraintSet struct {
	Kind        ConstraintKind
	Constraints []Constraint
}

type surface struct {
	normal     vec.Vec3Float
	properties tile.Properties
}

// SolveConstraints ограничивает скорость так, чтобы она не уходила
// внутрь ни одной из поверхностей контакта.
//
// Одна встречная плоскость дает скольжение по ней, а если результат
// упирается в другую поверхность, то вдоль их общего ребра. Две и более
// встречных плоскости сразу перебираются парами: скорость проецируется на
// ребро первой подходящей пары, без пары сущность заперта.
func SolveConstraints(velocity vec.Vec3Float, contacts []Contact) (vec.Vec3Float, ConstraintSet) {
	surfaces := mergeContacts(contacts)

	opposing, _ := partition(velocity, surfaces)
	switch len(opposing) {
	case 0:
		return velocity, ConstraintSet{Kind: ConstraintNone}
	case 1:
		return solveSingle(velocity, opposing[0], surfaces)
	default:
		return solveEdges(velocity, opposing, surfaces)
	}
}

// solveSingle скользит по единственной встречной плоскости
func solveSingle(velocity vec.Vec3Float, first surface, surfaces []surface) (vec.Vec3Float, ConstraintSet) {
	slid := velocity.Sub(first.normal.Mul(velocity.Dot(first.normal)))

	var blocking []surface
	for _, s := range surfaces {
		if s.normal != first.normal && slid.Dot(s.normal) < 0 {
			blocking = append(blocking, s)
		}
	}
	if len(blocking) == 0 {
		return slid, result(velocity, slid, ConstraintSingle, first)
	}

	for _, second := range blocking {
		next, ok := pairVelocity(slid, first, second, surfaces)
		if ok {
			return next, result(velocity, next, ConstraintDouble, first, second)
		}
	}

	active := append([]surface{first}, blocking...)
	return vec.Zero3, result(velocity, vec.Zero3, ConstraintLocked, active...)
}

// solveEdges перебирает неупорядоченные пары встречных плоскостей
func solveEdges(velocity vec.Vec3Float, opposing, surfaces []surface) (vec.Vec3Float, ConstraintSet) {
	for i := range opposing {
		for j := i + 1; j < len(opposing); j++ {
			next, ok := pairVelocity(velocity, opposing[i], opposing[j], surfaces)
			if ok {
				return next, result(velocity, next, ConstraintDouble, opposing[i], opposing[j])
			}
		}
	}
	return vec.Zero3, result(velocity, vec.Zero3, ConstraintLocked, opposing...)
}

// pairVelocity ограничивает скорость парой плоскостей a и b и проверяет
// результат по всем поверхностям. Для почти параллельных нормалей ребро
// не определено: скорость последовательно снимается с обеих плоскостей
// и проверяется без исключений.
func pairVelocity(velocity vec.Vec3Float, a, b surface, surfaces []surface) (vec.Vec3Float, bool) {
	dir := a.normal.Cross(b.normal)
	if l := dir.LengthSquared(); l >= parallelEpsilon {
		next := dir.Mul(velocity.Dot(dir) / l)
		return next, !violatesAny(next, surfaces, a.normal, b.normal)
	}

	next := velocity.Sub(a.normal.Mul(velocity.Dot(a.normal)))
	if d := next.Dot(b.normal); d < 0 {
		next = next.Sub(b.normal.Mul(d))
	}
	return next, !violatesAny(next, surfaces)
}

// mergeContacts склеивает совпадающие нормали, усредняя свойства материалов
func mergeContacts(contacts []Contact) []surface {
	surfaces := make([]surface, 0, len(contacts))
	for _, c := range contacts {
		props := c.Material.Properties()
		merged := false
		for k := range surfaces {
			if surfaces[k].normal.ApproxEquals(c.Normal, normalMergeEpsilon) {
				surfaces[k].properties = surfaces[k].properties.Merge(props)
				merged = true
				break
			}
		}
		if !merged {
			surfaces = append(surfaces, surface{normal: c.Normal, properties: props})
		}
	}
	return surfaces
}

func partition(velocity vec.Vec3Float, surfaces []surface) (opposing, remainder []surface) {
	for _, s := range surfaces {
		if velocity.Dot(s.normal) < 0 {
			opposing = append(opposing, s)
		} else {
			remainder = append(remainder, s)
		}
	}
	return opposing, remainder
}

// violatesAny проверяет, уходит ли скорость внутрь хотя бы одной поверхности,
// кроме плоскостей skip, вдоль ребра которых она направлена.
func violatesAny(velocity vec.Vec3Float, surfaces []surface, skip ...vec.Vec3Float) bool {
	for _, s := range surfaces {
		if containsNormal(skip, s.normal) {
			continue
		}
		if velocity.Dot(s.normal) < 0 {
			return true
		}
	}
	return false
}

func containsNormal(normals []vec.Vec3Float, n vec.Vec3Float) bool {
	for _, m := range normals {
		if m == n {
			return true
		}
	}
	return false
}

func result(before, after vec.Vec3Float, kind ConstraintKind, active ...surface) ConstraintSet {
	set := ConstraintSet{Kind: kind, Constraints: make([]Constraint, 0, len(active))}
	delta := after.Sub(before)
	for _, s := range active {
		set.Constraints = append(set.Constraints, Constraint{
			Normal:     s.normal,
			Properties: s.properties,
			DeltaV:     math.Max(0, delta.Dot(s.normal)),
		})
	}
	return set
}
