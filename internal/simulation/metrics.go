package simulation

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/voxphys/internal/physics"
)

// Metrics Prometheus-метрики цикла симуляции.
//
// Метрики:
// * voxphys_tick_duration_seconds{phase} - histogram (stream, physics, total)
// * voxphys_entities - gauge
// * voxphys_loaded_cells - gauge
// * voxphys_step_iterations - histogram
// * voxphys_collisions_total, voxphys_capped_steps_total, voxphys_missing_tiles_total - counters
// * voxphys_cells_streamed_total{op} - counter (load, unload)
// * voxphys_constraints_total{kind} - counter по виду ограничения первой итерации
type Metrics struct {
	tickDuration   *prometheus.HistogramVec
	entities       prometheus.Gauge
	loadedCells    prometheus.Gauge
	stepIterations prometheus.Histogram
	collisions     prometheus.Counter
	cappedSteps    prometheus.Counter
	missingTiles   prometheus.Counter
	cellsStreamed  *prometheus.CounterVec
	constraints    *prometheus.CounterVec
}

// NewMetrics создаёт метрики и регистрирует их в reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	const ns = "voxphys"
	m := &Metrics{
		tickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "tick_duration_seconds",
			Help:      "Длительность фаз тика симуляции.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		}, []string{"phase"}),
		entities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "entities",
			Help:      "Количество симулируемых сущностей.",
		}),
		loadedCells: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "loaded_cells",
			Help:      "Количество загруженных ячеек мира.",
		}),
		stepIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "step_iterations",
			Help:      "Итераций столкновений за шаг сущности.",
			Buckets:   prometheus.LinearBuckets(1, 1, 8),
		}),
		collisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "collisions_total",
			Help:      "Общее число столкновений.",
		}),
		cappedSteps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "capped_steps_total",
			Help:      "Шаги, исчерпавшие лимит итераций.",
		}),
		missingTiles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "missing_tiles_total",
			Help:      "Обращения физики к незагруженным тайлам.",
		}),
		cellsStreamed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "cells_streamed_total",
			Help:      "Загруженные и выгруженные ячейки.",
		}, []string{"op"}),
		constraints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "constraints_total",
			Help:      "Виды ограничений скорости на первой итерации шага.",
		}, []string{"kind"}),
	}

	reg.MustRegister(m.tickDuration, m.entities, m.loadedCells, m.stepIterations,
		m.collisions, m.cappedSteps, m.missingTiles, m.cellsStreamed, m.constraints)
	return m
}

func (m *Metrics) observeStep(res physics.StepResult) {
	m.stepIterations.Observe(float64(res.Iterations))
	m.collisions.Add(float64(res.Collisions))
	m.missingTiles.Add(float64(res.MissingTiles))
	m.constraints.WithLabelValues(res.Constraint.String()).Inc()
	if res.Capped {
		m.cappedSteps.Inc()
	}
}
