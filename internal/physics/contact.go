package physics

import (
	"math"

	"github.com/annel0/voxphys/internal/vec"
	"github.com/annel0/voxphys/internal/world/tile"
)

const (
	// SurfaceMargin расстояние, на котором поверхность считается касающейся
	SurfaceMargin = 1e-4
	// MinBounceSpeed минимальная скорость удара, при которой работает отскок
	MinBounceSpeed = 0.1

	normalMergeEpsilon = 1e-7
	boundsTolerance    = 1e-10
)

// Contact поверхность, которой бокс касается в текущей позиции
type Contact struct {
	Normal       vec.Vec3Float // Внешняя единичная нормаль
	Material     tile.Material
	Displacement float64 // Знаковое расстояние вдоль нормали, отрицательное при проникновении
}

// DetectContacts находит все поверхности, которых касается бокс [l, h].
// Не более одного контакта на тайл.
func DetectContacts(terrain Terrain, l, h vec.Vec3Float) []Contact {
	return newLookup(terrain).detectContacts(l, h)
}

func (lk *lookup) detectContacts(l, h vec.Vec3Float) []Contact {
	from := l.Sub(splat(SurfaceMargin)).Floor()
	to := h.Add(splat(SurfaceMargin)).Floor()

	var contacts []Contact
	forEachTile(from, to, func(tp vec.Vec3) bool {
		t := lk.tile(tp)
		if c, ok := testContact(l, h, tp, t); ok {
			contacts = append(contacts, c)
		}
		return true
	})
	return contacts
}

func testContact(l, h vec.Vec3Float, tp vec.Vec3, t tile.Tile) (Contact, bool) {
	var (
		normal       vec.Vec3Float
		displacement float64
		ok           bool
	)
	switch t.State() {
	case tile.Full:
		var a vec.Axis
		var positive bool
		a, positive, displacement, ok = testContactFullBlock(l, h, tp)
		normal = vec.Unit(a, positive)
	case tile.Partial:
		normal, displacement, ok = testContactSlope(l, h, tp, t)
	}
	if !ok {
		return Contact{}, false
	}
	return Contact{Normal: normal, Material: t.Material, Displacement: displacement}, true
}

// testContactFullBlock ищет грань куба в пределах SurfaceMargin от грани бокса.
// Оси проверяются в порядке vec.PriorityOrder, поэтому пол выигрывает у стены.
func testContactFullBlock(l, h vec.Vec3Float, tp vec.Vec3) (axis vec.Axis, positive bool, displacement float64, ok bool) {
	origin := tp.ToFloat()
	hInset := h.Sub(origin)
	lInset := origin.Add(splat(1)).Sub(l)

	for _, a := range vec.PriorityOrder {
		la, ra := a.L(), a.R()
		if hInset.Get(la) <= SurfaceMargin || lInset.Get(la) <= SurfaceMargin ||
			hInset.Get(ra) <= SurfaceMargin || lInset.Get(ra) <= SurfaceMargin {
			continue
		}
		if math.Abs(hInset.Get(a)) < SurfaceMargin {
			return a, false, hInset.Get(a), true
		}
		if math.Abs(lInset.Get(a)) < SurfaceMargin {
			return a, true, lInset.Get(a), true
		}
	}
	return 0, false, 0, false
}

// testContactSlope проверяет наклонный тайл: плоскость, ребра, вершины
// и, наконец, открытую часть плоской грани.
func testContactSlope(l, h vec.Vec3Float, tp vec.Vec3, t tile.Tile) (vec.Vec3Float, float64, bool) {
	dir := t.Direction
	level := int(t.Level)

	neg, pos := dir.Sums()
	if level <= neg {
		return vec.Vec3Float{}, 0, false
	}
	if level >= pos {
		a, positive, displacement, ok := testContactFullBlock(l, h, tp)
		return vec.Unit(a, positive), displacement, ok
	}

	near := nearCorner(l, h, dir)
	slopeNormal := dir.Float()
	slopeS := float64(tp.Dot(dir.Vec3()) + level)

	// Плоскость наклона
	sInset := (slopeS - near.Dot(slopeNormal)) / slopeNormal.Length()
	if math.Abs(sInset) < SurfaceMargin && inTile(near, tp) {
		return slopeNormal.Normalized(), sInset, true
	}

	// Острые ребра
	for _, a := range vec.Axes {
		la, ra := a.L(), a.R()
		if level >= min0(dir.Get(a))+max0(dir.Get(la))+max0(dir.Get(ra)) {
			continue
		}

		edgeNormal := slopeNormal.Plane(a)
		planeTile := tp.Plane(a)
		nearEdge := near.Plane(a)

		edgeS := float64(planeTile.Dot(dir.Vec3().Plane(a)) + level - min0(dir.Get(a)))
		sInset := (edgeS - nearEdge.Dot(edgeNormal)) / edgeNormal.Length()

		planeRelative := float64(tp.Get(a))
		if dir.Get(a) < 0 {
			planeRelative++
		}

		if math.Abs(sInset) < SurfaceMargin && inSquare(nearEdge, planeTile) &&
			planeRelative >= l.Get(a) && planeRelative <= h.Get(a) {
			return vec.Embed(edgeNormal.Normalized(), a, 0), sInset, true
		}
	}

	// Острые вершины
	for _, a := range vec.Axes {
		la, ra := a.L(), a.R()
		da := dir.Get(a)
		if level > max0(da)+min0(dir.Get(la))+min0(dir.Get(ra)) {
			continue
		}

		cornerS := float64(tp.Get(a)*da + level - min0(dir.Get(la)) - min0(dir.Get(ra)))
		sInset := (cornerS - near.Get(a)*float64(da)) / float64(da)

		cornerL, cornerR := cornerRelative(tp, dir, la), cornerRelative(tp, dir, ra)
		if math.Abs(sInset) < SurfaceMargin &&
			cornerL >= l.Get(la) && cornerL <= h.Get(la) &&
			cornerR >= l.Get(ra) && cornerR <= h.Get(ra) {
			return vec.Unit(a, da >= 0), sInset, true
		}
	}

	// Плоская грань, если в точке касания она не срезана наклоном
	a, positive, displacement, ok := testContactFullBlock(l, h, tp)
	if !ok {
		return vec.Vec3Float{}, 0, false
	}
	face := h.Get(a)
	if positive {
		face = l.Get(a)
	}
	if solidAt(near.With(a, face), tp, slopeNormal, slopeS) {
		return vec.Unit(a, positive), displacement, true
	}
	return vec.Vec3Float{}, 0, false
}

// cornerRelative координата вершины тайла, срезанной наклоном, по оси a
func cornerRelative(tp vec.Vec3, dir tile.Direction, a vec.Axis) float64 {
	c := float64(tp.Get(a))
	if dir.Get(a) < 0 {
		c++
	}
	return c
}

// solidAt проверяет, что точка, прижатая к кубу тайла, строго внутри твердой части
func solidAt(p vec.Vec3Float, tp vec.Vec3, slopeNormal vec.Vec3Float, slopeS float64) bool {
	return clampToTile(p, tp).Dot(slopeNormal)+boundsTolerance < slopeS
}
