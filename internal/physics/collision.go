package physics

import (
	"math"

	"github.com/annel0/voxphys/internal/entity"
	"github.com/annel0/voxphys/internal/vec"
	"github.com/annel0/voxphys/internal/world/tile"
)

// maxTraversalSteps ограничивает обход границ тайлов за одну развертку
const maxTraversalSteps = 1 << 16

// Collision первое столкновение на пути бокса
type Collision struct {
	T        float64 // Время удара в пределах оставшегося времени
	Normal   vec.Vec3Float
	Material tile.Material
}

// DetectNextCollision ищет самое раннее столкновение бокса, движущегося
// с постоянной скоростью velocity, в пределах времени remaining.
func DetectNextCollision(terrain Terrain, position, size, velocity vec.Vec3Float, remaining float64) (Collision, bool) {
	return newLookup(terrain).detectNextCollision(position, size, velocity, remaining)
}

func (lk *lookup) detectNextCollision(position, size, velocity vec.Vec3Float, remaining float64) (Collision, bool) {
	if velocity.IsZero() || !velocity.IsFinite() || !(remaining >= 0) {
		return Collision{}, false
	}

	l, h := entity.BoundsAt(position, size)

	var (
		reversed [3]bool
		step     vec.Vec3
		main     vec.Vec3Float // Ведущий угол
		far      vec.Vec3Float // Противоположный угол
	)
	for _, a := range vec.Axes {
		reversed[a] = velocity.Get(a) < 0
		if reversed[a] {
			step = step.With(a, -1)
			main = main.With(a, l.Get(a))
			far = far.With(a, h.Get(a))
		} else {
			step = step.With(a, 1)
			main = main.With(a, h.Get(a))
			far = far.With(a, l.Get(a))
		}
	}

	leadingTile := func(p vec.Vec3Float) vec.Vec3 {
		var t vec.Vec3
		for _, a := range vec.Axes {
			if reversed[a] {
				t = t.With(a, int(math.Floor(p.Get(a))))
			} else {
				t = t.With(a, int(math.Ceil(p.Get(a)))-1)
			}
		}
		return t
	}
	trailingTile := func(p vec.Vec3Float) vec.Vec3 {
		var t vec.Vec3
		for _, a := range vec.Axes {
			if reversed[a] {
				t = t.With(a, int(math.Ceil(p.Get(a)))-1)
			} else {
				t = t.With(a, int(math.Floor(p.Get(a))))
			}
		}
		return t
	}

	var (
		best  Collision
		found bool
		maxT  = remaining
	)
	scan := func(from, to vec.Vec3) {
		forEachTile(from, to, func(tp vec.Vec3) bool {
			if c, ok := testCollision(l, h, velocity, tp, lk.tile(tp), maxT); ok {
				best, found, maxT = c, true, c.T
			}
			return true
		})
	}

	// Тайлы, в которых бокс уже находится: передние слои по Z, затем Y, затем X
	mainTile := leadingTile(main)
	farTile := trailingTile(far)
	for _, layer := range []struct {
		axis, check vec.Axis
		hasCheck    bool
	}{
		{axis: vec.Z},
		{axis: vec.Y, check: vec.Z, hasCheck: true},
		{axis: vec.X, check: vec.Y, hasCheck: true},
	} {
		if layer.hasCheck {
			ca := layer.check
			if mainTile.Get(ca) == farTile.Get(ca) {
				break
			}
			mainTile = mainTile.With(ca, mainTile.Get(ca)-step.Get(ca))
		}
		scan(mainTile, farTile.With(layer.axis, mainTile.Get(layer.axis)))
	}

	// Границы тайлов, которые пересекает ведущий угол, в порядке времени
	current := main.Floor()
	var boundary vec.Vec3
	for _, a := range vec.Axes {
		if reversed[a] {
			boundary = boundary.With(a, current.Get(a))
		} else {
			boundary = boundary.With(a, current.Get(a)+1)
		}
	}

	for steps := 0; !found && steps < maxTraversalSteps; steps++ {
		var tNext vec.Vec3Float
		for _, a := range vec.Axes {
			v := velocity.Get(a)
			t := math.Inf(1)
			if v != 0 {
				if t = (float64(boundary.Get(a)) - main.Get(a)) / v; t < 0 {
					t = math.Inf(1)
				}
			}
			tNext = tNext.With(a, t)
		}

		var a vec.Axis
		switch {
		case tNext.X < tNext.Y && tNext.X < tNext.Z:
			a = vec.X
		case tNext.Y < tNext.Z:
			a = vec.Y
		default:
			a = vec.Z
		}

		t := tNext.Get(a)
		if t > remaining {
			break
		}

		current = current.With(a, current.Get(a)+step.Get(a))
		boundary = boundary.With(a, boundary.Get(a)+step.Get(a))

		mTile := leadingTile(main.Add(velocity.Mul(t))).With(a, current.Get(a))
		fTile := trailingTile(far.Add(velocity.Mul(t))).With(a, current.Get(a))

		// Для осей, по которым есть движение, берется тайл ведущего угла:
		// так угол не проскакивает сквозь ребро, а скольжение вдоль стены не цепляется
		if la := a.L(); velocity.Get(la) != 0 {
			mTile = mTile.With(la, current.Get(la))
		}
		if ra := a.R(); velocity.Get(ra) != 0 {
			mTile = mTile.With(ra, current.Get(ra))
		}

		scan(mTile, fTile)
	}

	return best, found
}

func testCollision(l, h, velocity vec.Vec3Float, tp vec.Vec3, t tile.Tile, maxT float64) (Collision, bool) {
	switch t.State() {
	case tile.Full:
		toi, a, positive, ok := testCollisionFullBlock(l, h, velocity, tp, maxT)
		if !ok {
			return Collision{}, false
		}
		return Collision{T: toi, Normal: vec.Unit(a, positive), Material: t.Material}, true
	case tile.Partial:
		toi, normal, ok := testCollisionSlope(l, h, velocity, tp, t, maxT)
		if !ok {
			return Collision{}, false
		}
		return Collision{T: toi, Normal: normal, Material: t.Material}, true
	default:
		return Collision{}, false
	}
}

// testCollisionFullBlock время, когда грань бокса дойдет до грани куба.
// Первая подходящая ось в порядке vec.PriorityOrder.
func testCollisionFullBlock(l, h, velocity vec.Vec3Float, tp vec.Vec3, maxT float64) (t float64, axis vec.Axis, positive bool, ok bool) {
	for _, a := range vec.PriorityOrder {
		v := velocity.Get(a)
		switch {
		case v < 0:
			t = (float64(tp.Get(a)) + 1 - l.Get(a)) / v
			if t >= 0 && t <= maxT {
				return t, a, true, true
			}
		case v > 0:
			t = (float64(tp.Get(a)) - h.Get(a)) / v
			if t >= 0 && t <= maxT {
				return t, a, false, true
			}
		}
	}
	return 0, 0, false, false
}

func testCollisionSlope(l, h, velocity vec.Vec3Float, tp vec.Vec3, t tile.Tile, maxT float64) (float64, vec.Vec3Float, bool) {
	dir := t.Direction
	level := int(t.Level)

	neg, pos := dir.Sums()
	if level <= neg {
		return 0, vec.Vec3Float{}, false
	}
	if level >= pos {
		toi, a, positive, ok := testCollisionFullBlock(l, h, velocity, tp, maxT)
		return toi, vec.Unit(a, positive), ok
	}

	near := nearCorner(l, h, dir)
	slopeNormal := dir.Float()
	slopeS := float64(tp.Dot(dir.Vec3()) + level)

	// Плоскость наклона
	if sv := velocity.Dot(slopeNormal); sv <= -SurfaceMargin {
		if cs := near.Dot(slopeNormal); cs >= slopeS {
			toi := (slopeS - cs) / sv
			if toi > maxT {
				return 0, vec.Vec3Float{}, false
			}
			if inTile(near.Add(velocity.Mul(toi)), tp) {
				return toi, slopeNormal.Normalized(), true
			}
		}
	}

	// Острые ребра
	for _, a := range vec.Axes {
		la, ra := a.L(), a.R()
		if level >= min0(dir.Get(a))+max0(dir.Get(la))+max0(dir.Get(ra)) {
			continue
		}

		planeVelocity := velocity.Plane(a)
		edgeNormal := slopeNormal.Plane(a)

		sv := planeVelocity.Dot(edgeNormal)
		if sv > -SurfaceMargin {
			continue
		}

		planeTile := tp.Plane(a)
		nearEdge := near.Plane(a)

		edgeS := float64(planeTile.Dot(dir.Vec3().Plane(a)) + level - min0(dir.Get(a)))
		cs := nearEdge.Dot(edgeNormal)
		if cs < edgeS {
			continue
		}

		toi := (edgeS - cs) / sv
		if toi > maxT {
			return 0, vec.Vec3Float{}, false
		}

		planeRelative := cornerRelative(tp, dir, a) - velocity.Get(a)*toi
		if inSquare(nearEdge.Add(planeVelocity.Mul(toi)), planeTile) &&
			planeRelative >= l.Get(a) && planeRelative <= h.Get(a) {
			return toi, vec.Embed(edgeNormal.Normalized(), a, 0), true
		}
	}

	// Острые вершины
	for _, a := range vec.Axes {
		la, ra := a.L(), a.R()
		da := dir.Get(a)
		if level > max0(da)+min0(dir.Get(la))+min0(dir.Get(ra)) {
			continue
		}

		sv := velocity.Get(a) * float64(da)
		if sv >= 0 {
			continue
		}

		cornerS := float64(tp.Get(a)*da + level - min0(dir.Get(la)) - min0(dir.Get(ra)))
		cs := near.Get(a) * float64(da)
		if cs < cornerS {
			continue
		}

		toi := (cornerS - cs) / sv
		if toi > maxT {
			return 0, vec.Vec3Float{}, false
		}

		cornerL := cornerRelative(tp, dir, la) - velocity.Get(la)*toi
		cornerR := cornerRelative(tp, dir, ra) - velocity.Get(ra)*toi
		if cornerL >= l.Get(la) && cornerL <= h.Get(la) &&
			cornerR >= l.Get(ra) && cornerR <= h.Get(ra) {
			return toi, vec.Unit(a, da >= 0), true
		}
	}

	// Плоская грань
	toi, a, positive, ok := testCollisionFullBlock(l, h, velocity, tp, maxT)
	if !ok {
		return 0, vec.Vec3Float{}, false
	}
	face := h.Get(a)
	if positive {
		face = l.Get(a)
	}
	if solidAt(near.With(a, face).Add(velocity.Mul(toi)), tp, slopeNormal, slopeS) {
		return toi, vec.Unit(a, positive), true
	}
	return 0, vec.Vec3Float{}, false
}
