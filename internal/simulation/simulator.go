package simulation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/annel0/voxphys/internal/entity"
	"github.com/annel0/voxphys/internal/eventbus"
	"github.com/annel0/voxphys/internal/logging"
	"github.com/annel0/voxphys/internal/physics"
	"github.com/annel0/voxphys/internal/storage"
	"github.com/annel0/voxphys/internal/vec"
	"github.com/annel0/voxphys/internal/world"
	"github.com/annel0/voxphys/internal/world/tile"
)

// ErrEntityNotFound возвращается для неизвестного ID сущности
var ErrEntityNotFound = errors.New("сущность не найдена")

// ErrInvalidRay возвращается CastRay для нулевого, бесконечного или слишком длинного луча
var ErrInvalidRay = errors.New("некорректный луч")

// eventSource имя источника событий симуляции
const eventSource = "simulation"

// Config параметры цикла симуляции
type Config struct {
	Physics          physics.Config
	TickInterval     time.Duration
	Workers          int // 0 - по числу CPU
	StreamRadius     int // Запас в тайлах вокруг сущности при подгрузке ячеек
	SnapshotInterval time.Duration
}

// DefaultConfig возвращает параметры по умолчанию
func DefaultConfig() Config {
	return Config{
		Physics:          physics.DefaultConfig(),
		TickInterval:     time.Second / 30,
		StreamRadius:     2,
		SnapshotInterval: 30 * time.Second,
	}
}

// Input управляющий ввод сущности, применяется в начале следующего тика
type Input struct {
	Move vec.Vec3Float `json:"move"`
	Jump bool          `json:"jump"`
}

// SpawnRequest параметры создания сущности
type SpawnRequest struct {
	Kind           entity.Kind
	Position       vec.Vec3Float
	Size           vec.Vec3Float
	Mass           float64
	Wander         bool // Управляется автоматом блуждания
	PlaceOnSurface bool // Поставить на первый твердый тайл под позицией
}

// TickStats итог одного тика
type TickStats struct {
	Tick          uint64
	Entities      int
	Collisions    int
	Capped        int
	MissingTiles  int
	CellsLoaded   int
	CellsUnloaded int
	Duration      time.Duration
}

// Options зависимости симулятора; все поля, кроме World, необязательны
type Options struct {
	World     *world.World
	Snapshots storage.SnapshotRepo
	Bus       eventbus.EventBus
	Metrics   *Metrics
}

// Simulator владеет сущностями и продвигает их сквозь мир.
//
// Тик состоит из двух фаз: подгрузки ячеек под блокировкой мира на запись
// и параллельных шагов физики под блокировкой на чтение.
type Simulator struct {
	cfg       Config
	world     *world.World
	snapshots storage.SnapshotRepo
	bus       eventbus.EventBus
	metrics   *Metrics
	tracer    trace.Tracer
	logger    *logging.Logger
	stepLog   *logging.Logger

	mu       sync.RWMutex // Набор сущностей и их состояние
	entities map[uuid.UUID]*entity.Entity
	tick     uint64

	inputMu sync.Mutex
	pending map[uuid.UUID]Input
}

// NewSimulator создаёт симулятор
func NewSimulator(cfg Config, opts Options) (*Simulator, error) {
	if opts.World == nil {
		return nil, errors.New("симулятору нужен мир")
	}
	if cfg.TickInterval <= 0 {
		return nil, fmt.Errorf("некорректный интервал тика: %v", cfg.TickInterval)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	return &Simulator{
		cfg:       cfg,
		world:     opts.World,
		snapshots: opts.Snapshots,
		bus:       opts.Bus,
		metrics:   opts.Metrics,
		tracer:    otel.Tracer("voxphys/simulation"),
		logger:    logging.GetSimulationLogger(),
		stepLog:   logging.GetPhysicsLogger(),
		entities:  make(map[uuid.UUID]*entity.Entity),
		pending:   make(map[uuid.UUID]Input),
	}, nil
}

// Spawn создаёт сущность и возвращает ее снимок
func (s *Simulator) Spawn(ctx context.Context, req SpawnRequest) (entity.Snapshot, error) {
	position := req.Position
	if req.PlaceOnSurface {
		s.world.Mu.Lock()
		p, err := s.world.PlaceOnSurface(ctx, position)
		s.world.Mu.Unlock()
		if err != nil {
			return entity.Snapshot{}, fmt.Errorf("размещение сущности: %w", err)
		}
		position = p
	}

	e, err := entity.NewEntity(req.Kind, position, req.Size, req.Mass)
	if err != nil {
		return entity.Snapshot{}, err
	}
	if req.Wander {
		e.SetState(entity.NewIdleState(int64(e.ID.ID())))
	}

	s.mu.Lock()
	s.entities[e.ID] = e
	snap := e.Snapshot()
	count := len(s.entities)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.entities.Set(float64(count))
	}
	s.logger.Info("➕ Сущность %s (%s) создана в %+v", snap.ID, snap.Kind, snap.Position)
	s.publish(ctx, eventbus.EntitySpawned, eventbus.PriorityNormal, snap)
	return snap, nil
}

// Despawn удаляет сущность и ее сохраненный снимок
func (s *Simulator) Despawn(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	if _, ok := s.entities[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%s: %w", id, ErrEntityNotFound)
	}
	delete(s.entities, id)
	count := len(s.entities)
	s.mu.Unlock()

	s.inputMu.Lock()
	delete(s.pending, id)
	s.inputMu.Unlock()

	if s.snapshots != nil {
		if err := s.snapshots.Delete(ctx, id.String()); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("Не удалось удалить снимок %s: %v", id, err)
		}
	}

	if s.metrics != nil {
		s.metrics.entities.Set(float64(count))
	}
	s.logger.Info("➖ Сущность %s удалена", id)
	s.publish(ctx, eventbus.EntityDespawned, eventbus.PriorityNormal, map[string]string{"id": id.String()})
	return nil
}

// SetInput ставит ввод в очередь до следующего тика.
// Повторный ввод до тика заменяет предыдущий, прыжок сохраняется.
func (s *Simulator) SetInput(id uuid.UUID, in Input) error {
	if !in.Move.IsFinite() {
		return fmt.Errorf("некорректный ввод: %+v", in.Move)
	}

	s.mu.RLock()
	_, ok := s.entities[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrEntityNotFound)
	}

	s.inputMu.Lock()
	defer s.inputMu.Unlock()
	if prev, ok := s.pending[id]; ok && prev.Jump {
		in.Jump = true
	}
	s.pending[id] = in
	return nil
}

// Entity возвращает снимок сущности
func (s *Simulator) Entity(id uuid.UUID) (entity.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	if !ok {
		return entity.Snapshot{}, fmt.Errorf("%s: %w", id, ErrEntityNotFound)
	}
	return e.Snapshot(), nil
}

// Entities возвращает снимки всех сущностей, отсортированные по ID
func (s *Simulator) Entities() []entity.Snapshot {
	s.mu.RLock()
	out := make([]entity.Snapshot, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e.Snapshot())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// EntityCount возвращает количество сущностей
func (s *Simulator) EntityCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

// TickCount возвращает номер последнего тика
func (s *Simulator) TickCount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tick
}

// Tile возвращает тайл мира, загружая ячейку при необходимости
func (s *Simulator) Tile(ctx context.Context, pos vec.Vec3) (tile.Tile, error) {
	s.world.Mu.RLock()
	t, ok := s.world.TileAt(pos)
	s.world.Mu.RUnlock()
	if ok {
		return t, nil
	}

	s.world.Mu.Lock()
	defer s.world.Mu.Unlock()
	cell, err := s.world.GetOrLoadCell(ctx, world.CellLocation(pos))
	if err != nil {
		return tile.Tile{}, err
	}
	return cell.At(world.LocalPos(pos)), nil
}

// SetTile меняет тайл мира между тиками
func (s *Simulator) SetTile(ctx context.Context, pos vec.Vec3, t tile.Tile) error {
	if !t.Material.Valid() {
		return fmt.Errorf("неизвестный материал %d", t.Material)
	}

	s.world.Mu.Lock()
	err := s.world.SetTile(ctx, pos, t)
	s.world.Mu.Unlock()
	if err != nil {
		return err
	}

	s.publish(ctx, eventbus.TileChanged, eventbus.PriorityNormal, map[string]interface{}{
		"position": pos,
		"state":    t.Normalize().State().String(),
	})
	return nil
}

// MaxRayLength наибольшая длина луча для CastRay
const MaxRayLength = 256.0

// CastRay подгружает ячейки вдоль луча и ищет первое попадание в рельеф
func (s *Simulator) CastRay(ctx context.Context, origin, ray vec.Vec3Float) (physics.RayHit, bool, error) {
	if !origin.IsFinite() || !ray.IsFinite() || ray.IsZero() {
		return physics.RayHit{}, false, fmt.Errorf("%w: %+v -> %+v", ErrInvalidRay, origin, ray)
	}
	if l := ray.Length(); l > MaxRayLength {
		return physics.RayHit{}, false, fmt.Errorf("%w: длина %.1f больше %.0f", ErrInvalidRay, l, MaxRayLength)
	}

	end := origin.Add(ray)
	lo, hi := origin.Min(end).Floor(), origin.Max(end).Floor()

	s.world.Mu.Lock()
	_, err := s.world.EnsureLoaded(ctx, lo, hi)
	s.world.Mu.Unlock()
	if err != nil {
		return physics.RayHit{}, false, fmt.Errorf("подгрузка ячеек вдоль луча: %w", err)
	}

	s.world.Mu.RLock()
	defer s.world.Mu.RUnlock()
	hit, ok := physics.CastRay(s.world, origin, ray)
	return hit, ok, nil
}

// Tick продвигает все сущности на dt секунд
func (s *Simulator) Tick(ctx context.Context, dt float64) (TickStats, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "simulation.Tick")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tick++
	stats := TickStats{Tick: s.tick, Entities: len(s.entities)}
	span.SetAttributes(attribute.Int64("tick", int64(s.tick)), attribute.Int("entities", stats.Entities))

	entities := s.orderedEntities()
	s.applyInputs(dt)

	if err := s.stream(ctx, entities, dt, &stats); err != nil {
		span.RecordError(err)
		return stats, err
	}

	results, err := s.stepAll(ctx, entities, dt)
	if err != nil {
		span.RecordError(err)
		return stats, err
	}

	for i, res := range results {
		stats.Collisions += res.Collisions
		stats.MissingTiles += res.MissingTiles
		if s.metrics != nil {
			s.metrics.observeStep(res)
		}
		if res.Capped {
			stats.Capped++
			e := entities[i]
			s.logger.Warn("⚠️ Сущность %s исчерпала %d итераций, скорость обнулена", e.ID, res.Iterations)
			s.publish(ctx, eventbus.StepCapped, eventbus.PriorityHigh, map[string]interface{}{
				"id":       e.ID.String(),
				"tick":     s.tick,
				"position": e.Position,
			})
		}
	}

	stats.Duration = time.Since(start)
	if s.metrics != nil {
		s.metrics.tickDuration.WithLabelValues("total").Observe(stats.Duration.Seconds())
	}
	span.SetAttributes(attribute.Int("collisions", stats.Collisions), attribute.Int("capped", stats.Capped))
	return stats, nil
}

// orderedEntities возвращает сущности в порядке ID; требует s.mu
func (s *Simulator) orderedEntities() []*entity.Entity {
	out := make([]*entity.Entity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// applyInputs переносит очередь ввода в сущности и обновляет автоматы; требует s.mu
func (s *Simulator) applyInputs(dt float64) {
	s.inputMu.Lock()
	pending := s.pending
	s.pending = make(map[uuid.UUID]Input)
	s.inputMu.Unlock()

	for id, in := range pending {
		e, ok := s.entities[id]
		if !ok {
			continue
		}
		e.MovementInput = in.Move
		if in.Jump {
			e.JumpInput = true
		}
	}

	for _, e := range s.entities {
		e.Think(dt)
	}
}

// stream подгружает ячейки под пройденным за тик объемом и выгружает остальные
func (s *Simulator) stream(ctx context.Context, entities []*entity.Entity, dt float64, stats *TickStats) error {
	ctx, span := s.tracer.Start(ctx, "simulation.stream")
	defer span.End()
	start := time.Now()

	s.world.Mu.Lock()
	defer s.world.Mu.Unlock()

	s.world.FlagAll()
	for _, e := range entities {
		lo, hi := s.sweptTiles(e, dt)
		n, err := s.world.EnsureLoaded(ctx, lo, hi)
		stats.CellsLoaded += n
		if err != nil {
			return fmt.Errorf("подгрузка ячеек для %s: %w", e.ID, err)
		}
	}

	n, err := s.world.UnloadFlagged(ctx)
	stats.CellsUnloaded = n
	if err != nil {
		return fmt.Errorf("выгрузка ячеек: %w", err)
	}

	if s.metrics != nil {
		s.metrics.cellsStreamed.WithLabelValues("load").Add(float64(stats.CellsLoaded))
		s.metrics.cellsStreamed.WithLabelValues("unload").Add(float64(stats.CellsUnloaded))
		s.metrics.loadedCells.Set(float64(s.world.CellCount()))
		s.metrics.tickDuration.WithLabelValues("stream").Observe(time.Since(start).Seconds())
	}
	if stats.CellsLoaded > 0 || stats.CellsUnloaded > 0 {
		s.publish(ctx, eventbus.CellsStreamed, eventbus.PriorityLow, map[string]int{
			"loaded":   stats.CellsLoaded,
			"unloaded": stats.CellsUnloaded,
		})
	}
	return nil
}

// sweptTiles оценивает тайлы, которых сущность может коснуться за dt.
// Скорость берется с запасом на ввод, прыжок и гравитацию.
func (s *Simulator) sweptTiles(e *entity.Entity, dt float64) (lo, hi vec.Vec3) {
	p := s.cfg.Physics
	reach := (e.Velocity.Length()+p.MaxMoveSpeed+p.JumpImpulse+p.Gravity*dt)*dt + float64(s.cfg.StreamRadius)
	reach = math.Min(reach, float64(world.CellWidth)*4)
	margin := vec.Vec3Float{X: reach, Y: reach, Z: reach}

	l, h := e.Bounds()
	return l.Sub(margin).Floor(), h.Add(margin).Floor()
}

// stepAll выполняет шаги физики параллельно под блокировкой мира на чтение
func (s *Simulator) stepAll(ctx context.Context, entities []*entity.Entity, dt float64) ([]physics.StepResult, error) {
	ctx, span := s.tracer.Start(ctx, "simulation.physics")
	defer span.End()
	start := time.Now()

	s.world.Mu.RLock()
	defer s.world.Mu.RUnlock()

	results := make([]physics.StepResult, len(entities))
	traceSteps := s.stepLog.Enabled(logging.TRACE)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, e := range entities {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			from := e.Position
			results[i] = physics.Step(e, s.world, dt, s.cfg.Physics)
			if traceSteps {
				logging.LogEntityStep(s.stepLog, e.ID.String(),
					[3]float64{from.X, from.Y, from.Z},
					[3]float64{e.Position.X, e.Position.Y, e.Position.Z},
					results[i].Iterations)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.tickDuration.WithLabelValues("physics").Observe(time.Since(start).Seconds())
	}
	return results, nil
}

// SaveSnapshots сохраняет снимки всех сущностей
func (s *Simulator) SaveSnapshots(ctx context.Context) (int, error) {
	if s.snapshots == nil {
		return 0, nil
	}
	snaps := s.Entities()
	if err := s.snapshots.BatchSave(ctx, snaps); err != nil {
		return 0, fmt.Errorf("сохранение снимков: %w", err)
	}
	return len(snaps), nil
}

// Restore загружает сохраненные сущности. Поврежденные снимки пропускаются.
func (s *Simulator) Restore(ctx context.Context) (int, error) {
	if s.snapshots == nil {
		return 0, nil
	}
	snaps, err := s.snapshots.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("загрузка снимков: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	restored := 0
	for _, snap := range snaps {
		e, err := entity.FromSnapshot(snap)
		if err != nil {
			s.logger.Warn("Пропущен снимок %s: %v", snap.ID, err)
			continue
		}
		s.entities[e.ID] = e
		restored++
	}
	if s.metrics != nil {
		s.metrics.entities.Set(float64(len(s.entities)))
	}
	return restored, nil
}

// Run крутит тики с фиксированным шагом и периодически сохраняет снимки
// до отмены контекста
func (s *Simulator) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	var snapshotC <-chan time.Time
	if s.snapshots != nil && s.cfg.SnapshotInterval > 0 {
		snapshotTicker := time.NewTicker(s.cfg.SnapshotInterval)
		defer snapshotTicker.Stop()
		snapshotC = snapshotTicker.C
	}

	dt := s.cfg.TickInterval.Seconds()
	s.logger.Info("▶️ Симуляция запущена: тик %v, воркеров %d", s.cfg.TickInterval, s.cfg.Workers)

	for {
		select {
		case <-ctx.Done():
			s.shutdownSave()
			s.logger.Info("⏹️ Симуляция остановлена на тике %d", s.TickCount())
			return nil
		case <-ticker.C:
			stats, err := s.Tick(ctx, dt)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				return fmt.Errorf("тик %d: %w", stats.Tick, err)
			}
			if stats.Duration > s.cfg.TickInterval {
				s.logger.Warn("Тик %d занял %v при бюджете %v", stats.Tick, stats.Duration, s.cfg.TickInterval)
			}
		case <-snapshotC:
			n, err := s.SaveSnapshots(ctx)
			if err != nil {
				s.logger.Error("Ошибка автосохранения сущностей: %v", err)
				continue
			}
			s.logger.Debug("💾 Сохранено снимков: %d", n)
		}
	}
}

// shutdownSave сохраняет сущности и мир после отмены основного контекста
func (s *Simulator) shutdownSave() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if n, err := s.SaveSnapshots(ctx); err != nil {
		s.logger.Error("Ошибка сохранения сущностей при остановке: %v", err)
	} else if n > 0 {
		s.logger.Info("💾 Сохранено снимков при остановке: %d", n)
	}
	if n, err := s.world.SaveDirtyLocked(ctx); err != nil {
		s.logger.Error("Ошибка сохранения мира при остановке: %v", err)
	} else if n > 0 {
		s.logger.Info("💾 Сохранено ячеек при остановке: %d", n)
	}
}

func (s *Simulator) publish(ctx context.Context, eventType string, priority int, payload interface{}) {
	if s.bus == nil {
		return
	}
	ev, err := eventbus.NewEnvelope(eventSource, eventType, priority, payload)
	if err != nil {
		s.logger.Error("Событие %s не создано: %v", eventType, err)
		return
	}
	if err := s.bus.Publish(ctx, ev); err != nil {
		s.logger.Debug("Событие %s не опубликовано: %v", eventType, err)
	}
}
