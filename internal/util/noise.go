package util

import (
	"github.com/aquilax/go-perlin"
)

const gradientStep = 1e-3

// Noise оборачивает генератор шума Перлина с фиксированным сидом
type Noise struct {
	perlin *perlin.Perlin
	seed   int64
}

// NewNoise создает генератор шума Перлина с указанным сидом
func NewNoise(seed int64) *Noise {
	alpha := 2.0  // Сглаживание шума
	beta := 2.0   // Частота шума
	n := int32(3) // Количество октав
	return &Noise{
		perlin: perlin.NewPerlin(alpha, beta, n, seed),
		seed:   seed,
	}
}

// Seed возвращает сид генератора
func (n *Noise) Seed() int64 {
	return n.seed
}

// Noise2D возвращает значение шума (примерно от -1 до 1)
func (n *Noise) Noise2D(x, y float64) float64 {
	return n.perlin.Noise2D(x, y)
}

// Noise2D01 возвращает значение шума в диапазоне от 0 до 1
func (n *Noise) Noise2D01(x, y float64) float64 {
	return (n.perlin.Noise2D(x, y) + 1.0) / 2.0
}

// Gradient2D возвращает значение шума и его градиент (центральная разность)
func (n *Noise) Gradient2D(x, y float64) (value, dx, dy float64) {
	value = n.perlin.Noise2D(x, y)
	dx = (n.perlin.Noise2D(x+gradientStep, y) - n.perlin.Noise2D(x-gradientStep, y)) / (2 * gradientStep)
	dy = (n.perlin.Noise2D(x, y+gradientStep) - n.perlin.Noise2D(x, y-gradientStep)) / (2 * gradientStep)
	return value, dx, dy
}
