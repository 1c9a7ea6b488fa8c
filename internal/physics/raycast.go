package physics

import (
	"math"

	"github.com/annel0/voxphys/internal/vec"
	"github.com/annel0/voxphys/internal/world/tile"
)

// RayHit точка, где луч впервые входит в твердую часть тайла
type RayHit struct {
	Tile   vec.Vec3
	Point  vec.Vec3Float
	Normal vec.Vec3Float
	T      float64 // Доля длины луча от 0 до 1
}

// CastRay ведет луч от origin до origin+ray и возвращает первое попадание.
// Тайл, в котором начинается луч, учитывается только наклонной плоскостью.
func CastRay(terrain Terrain, origin, ray vec.Vec3Float) (RayHit, bool) {
	if !origin.IsFinite() || !ray.IsFinite() || ray.IsZero() {
		return RayHit{}, false
	}
	lk := newLookup(terrain)

	var (
		reversed [3]bool
		step     vec.Vec3
		current  vec.Vec3
		boundary vec.Vec3
	)
	for _, a := range vec.Axes {
		reversed[a] = ray.Get(a) < 0
		if reversed[a] {
			step = step.With(a, -1)
			current = current.With(a, int(math.Ceil(origin.Get(a)))-1)
			boundary = boundary.With(a, current.Get(a))
		} else {
			step = step.With(a, 1)
			current = current.With(a, int(math.Floor(origin.Get(a))))
			boundary = boundary.With(a, current.Get(a)+1)
		}
	}

	if hit, ok := castOnTile(lk.tile(current), current, origin, ray, 0, nil); ok {
		return hit, true
	}

	for steps := 0; steps < maxTraversalSteps; steps++ {
		var tNext vec.Vec3Float
		for _, a := range vec.Axes {
			t := math.Inf(1)
			if v := ray.Get(a); v != 0 {
				if t = (float64(boundary.Get(a)) - origin.Get(a)) / v; t < 0 {
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
		if t > 1 {
			return RayHit{}, false
		}

		current = current.With(a, current.Get(a)+step.Get(a))
		boundary = boundary.With(a, boundary.Get(a)+step.Get(a))

		entry := vec.Unit(a, reversed[a])
		if hit, ok := castOnTile(lk.tile(current), current, origin, ray, t, &entry); ok {
			return hit, true
		}
	}
	return RayHit{}, false
}

// castOnTile проверяет попадание внутри одного тайла. entry - нормаль грани,
// через которую луч вошел в тайл, nil для начального тайла.
func castOnTile(t tile.Tile, tp vec.Vec3, origin, ray vec.Vec3Float, tEnter float64, entry *vec.Vec3Float) (RayHit, bool) {
	incidence := origin.Add(ray.Mul(tEnter))
	enterHit := func() (RayHit, bool) {
		if entry == nil {
			return RayHit{}, false
		}
		return RayHit{Tile: tp, Point: incidence, Normal: *entry, T: tEnter}, true
	}

	switch t.State() {
	case tile.Full:
		return enterHit()
	case tile.Partial:
	default:
		return RayHit{}, false
	}

	dir := t.Direction
	level := int(t.Level)
	neg, pos := dir.Sums()
	if level <= neg {
		return RayHit{}, false
	}
	if level >= pos {
		return enterHit()
	}

	slopeNormal := dir.Float()
	slopeS := float64(tp.Dot(dir.Vec3()) + level)

	if entry != nil && incidence.Dot(slopeNormal) <= slopeS {
		return enterHit()
	}

	sv := ray.Dot(slopeNormal)
	if sv >= 0 {
		return RayHit{}, false
	}
	os := origin.Dot(slopeNormal)
	if os < slopeS {
		return RayHit{}, false
	}
	toi := (slopeS - os) / sv
	if toi > 1 {
		return RayHit{}, false
	}
	point := origin.Add(ray.Mul(toi))
	if !inTile(point, tp) {
		return RayHit{}, false
	}
	return RayHit{Tile: tp, Point: point, Normal: slopeNormal.Normalized(), T: toi}, true
}
