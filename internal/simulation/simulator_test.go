package simulation

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/annel0/voxphys/internal/entity"
	"github.com/annel0/voxphys/internal/eventbus"
	"github.com/annel0/voxphys/internal/storage"
	"github.com/annel0/voxphys/internal/vec"
	"github.com/annel0/voxphys/internal/world"
	"github.com/annel0/voxphys/internal/world/tile"
)

const testDt = 1.0 / 30

var playerSize = vec.Vec3Float{X: 0.6, Y: 0.6, Z: 1.8}

func newTestWorld(t *testing.T) *world.World {
	t.Helper()
	settings := world.DefaultGeneratorSettings(1)
	settings.Mode = world.ModeFlat
	gen, err := world.NewGenerator(settings)
	require.NoError(t, err)
	return world.NewWorld(gen, nil)
}

func newTestSimulator(t *testing.T, opts Options) *Simulator {
	t.Helper()
	if opts.World == nil {
		opts.World = newTestWorld(t)
	}
	cfg := DefaultConfig()
	cfg.Workers = 4
	sim, err := NewSimulator(cfg, opts)
	require.NoError(t, err)
	return sim
}

func spawnPlayer(t *testing.T, sim *Simulator, pos vec.Vec3Float, onSurface bool) uuid.UUID {
	t.Helper()
	snap, err := sim.Spawn(context.Background(), SpawnRequest{
		Kind:           entity.KindPlayer,
		Position:       pos,
		Size:           playerSize,
		Mass:           1,
		PlaceOnSurface: onSurface,
	})
	require.NoError(t, err)
	return uuid.MustParse(snap.ID)
}

func runTicks(t *testing.T, sim *Simulator, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := sim.Tick(context.Background(), testDt)
		require.NoError(t, err)
	}
}

func TestNewSimulatorValidation(t *testing.T) {
	_, err := NewSimulator(DefaultConfig(), Options{})
	assert.Error(t, err, "мир обязателен")

	cfg := DefaultConfig()
	cfg.TickInterval = 0
	_, err = NewSimulator(cfg, Options{World: newTestWorld(t)})
	assert.Error(t, err)
}

func TestSpawnOnSurfaceStaysAtRest(t *testing.T) {
	sim := newTestSimulator(t, Options{})
	id := spawnPlayer(t, sim, vec.Vec3Float{X: 10.5, Y: 10.5, Z: 20}, true)

	snap, err := sim.Entity(id)
	require.NoError(t, err)
	assert.Equal(t, 4.0, snap.Position.Z)

	runTicks(t, sim, 30)

	snap, err = sim.Entity(id)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, snap.Position.Z, 1e-9)
	assert.InDelta(t, 10.5, snap.Position.X, 1e-9)
	assert.Equal(t, "grounded", snap.Status)
}

func TestFallingEntityLands(t *testing.T) {
	sim := newTestSimulator(t, Options{})
	id := spawnPlayer(t, sim, vec.Vec3Float{X: 12.5, Y: 12.5, Z: 8}, false)

	runTicks(t, sim, 60)

	snap, err := sim.Entity(id)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, snap.Position.Z, 0.01)
	assert.GreaterOrEqual(t, snap.Position.Z, 4.0-1e-9, "сущность не должна проваливаться в землю")
	assert.Equal(t, "grounded", snap.Status)
}

func TestInputMovesEntity(t *testing.T) {
	sim := newTestSimulator(t, Options{})
	id := spawnPlayer(t, sim, vec.Vec3Float{X: 10.5, Y: 10.5, Z: 4}, false)

	require.NoError(t, sim.SetInput(id, Input{Move: vec.Vec3Float{X: 1}}))
	runTicks(t, sim, 30)

	snap, err := sim.Entity(id)
	require.NoError(t, err)
	assert.Greater(t, snap.Position.X, 11.5)
	assert.LessOrEqual(t, snap.Velocity.X, DefaultConfig().Physics.MaxMoveSpeed+1e-9)
	assert.Equal(t, "right", snap.Facing)
	assert.InDelta(t, 4.0, snap.Position.Z, 1e-9)
}

func TestJumpInputIsQueued(t *testing.T) {
	sim := newTestSimulator(t, Options{})
	id := spawnPlayer(t, sim, vec.Vec3Float{X: 10.5, Y: 10.5, Z: 4}, false)

	require.NoError(t, sim.SetInput(id, Input{Jump: true}))
	// Повторный ввод до тика не отменяет прыжок
	require.NoError(t, sim.SetInput(id, Input{}))

	snap, err := sim.Entity(id)
	require.NoError(t, err)
	assert.Equal(t, 4.0, snap.Position.Z, "ввод применяется только в тике")

	runTicks(t, sim, 3)
	snap, err = sim.Entity(id)
	require.NoError(t, err)
	assert.Greater(t, snap.Position.Z, 4.1)
}

func TestUnknownEntity(t *testing.T) {
	sim := newTestSimulator(t, Options{})
	id := uuid.New()

	assert.ErrorIs(t, sim.SetInput(id, Input{}), ErrEntityNotFound)
	assert.ErrorIs(t, sim.Despawn(context.Background(), id), ErrEntityNotFound)
	_, err := sim.Entity(id)
	assert.ErrorIs(t, err, ErrEntityNotFound)
}

func TestSetInputRejectsNaN(t *testing.T) {
	sim := newTestSimulator(t, Options{})
	id := spawnPlayer(t, sim, vec.Vec3Float{X: 10.5, Y: 10.5, Z: 4}, false)

	assert.Error(t, sim.SetInput(id, Input{Move: vec.Vec3Float{X: math.NaN()}}))
}

func TestDespawn(t *testing.T) {
	repo := storage.NewMemorySnapshotRepo()
	sim := newTestSimulator(t, Options{Snapshots: repo})
	id := spawnPlayer(t, sim, vec.Vec3Float{X: 10.5, Y: 10.5, Z: 4}, false)

	_, err := sim.SaveSnapshots(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, repo.Count())

	require.NoError(t, sim.Despawn(context.Background(), id))
	assert.Zero(t, sim.EntityCount())
	assert.Zero(t, repo.Count(), "снимок удаляется вместе с сущностью")
}

func TestStreamingUnloadsDistantCells(t *testing.T) {
	w := newTestWorld(t)
	sim := newTestSimulator(t, Options{World: w})
	spawnPlayer(t, sim, vec.Vec3Float{X: 10.5, Y: 10.5, Z: 4}, false)

	w.Mu.Lock()
	_, err := w.GetOrLoadCell(context.Background(), vec.Vec3{X: 10, Y: 10})
	w.Mu.Unlock()
	require.NoError(t, err)

	stats, err := sim.Tick(context.Background(), testDt)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.CellsLoaded)
	assert.Equal(t, 1, stats.CellsUnloaded)

	w.Mu.RLock()
	defer w.Mu.RUnlock()
	assert.Equal(t, []vec.Vec3{{}}, w.Locations())
}

func TestStreamingCoversCellBoundary(t *testing.T) {
	w := newTestWorld(t)
	sim := newTestSimulator(t, Options{World: w})
	// Сущность у стыка четырех ячеек
	spawnPlayer(t, sim, vec.Vec3Float{X: 32, Y: 32, Z: 4}, false)

	runTicks(t, sim, 10)

	w.Mu.RLock()
	count := w.CellCount()
	w.Mu.RUnlock()
	assert.Equal(t, 4, count)

	snaps := sim.Entities()
	require.Len(t, snaps, 1)
	assert.InDelta(t, 4.0, snaps[0].Position.Z, 1e-9)
}

func TestTileEditsAffectPhysics(t *testing.T) {
	sim := newTestSimulator(t, Options{})
	ctx := context.Background()
	id := spawnPlayer(t, sim, vec.Vec3Float{X: 10.5, Y: 10.5, Z: 4}, false)

	// Стена на пути
	for z := 4; z < 7; z++ {
		require.NoError(t, sim.SetTile(ctx, vec.Vec3{X: 12, Y: 10, Z: z}, tile.NewFull(tile.Stone)))
	}
	got, err := sim.Tile(ctx, vec.Vec3{X: 12, Y: 10, Z: 5})
	require.NoError(t, err)
	assert.Equal(t, tile.Full, got.State())

	require.NoError(t, sim.SetInput(id, Input{Move: vec.Vec3Float{X: 1}}))
	runTicks(t, sim, 90)

	snap, err := sim.Entity(id)
	require.NoError(t, err)
	assert.LessOrEqual(t, snap.Position.X+playerSize.X/2, 12.0+1e-9, "сущность не должна проходить сквозь стену")

	assert.Error(t, sim.SetTile(ctx, vec.Vec3{}, tile.Tile{Material: 200, Level: 1}))
}

func TestTileLoadsMissingCell(t *testing.T) {
	sim := newTestSimulator(t, Options{})
	got, err := sim.Tile(context.Background(), vec.Vec3{X: 500, Y: -500, Z: 3})
	require.NoError(t, err)
	assert.Equal(t, tile.NewFull(tile.Grass), got)
}

func TestCastRayLoadsCellsAlongRay(t *testing.T) {
	sim := newTestSimulator(t, Options{})

	// Ячейки под лучом еще не загружены: без подгрузки луч уперся бы в отсутствующий рельеф сразу под началом
	hit, ok, err := sim.CastRay(context.Background(), vec.Vec3Float{X: 500.5, Y: -499.5, Z: 10}, vec.Vec3Float{Z: -10})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, vec.Vec3{X: 500, Y: -500, Z: 3}, hit.Tile)
	assert.Equal(t, vec.Vec3Float{Z: 1}, hit.Normal)
	assert.InDelta(t, 0.6, hit.T, 1e-12)
	assert.InDelta(t, 4, hit.Point.Z, 1e-12)
}

func TestCastRayRejectsInvalidRays(t *testing.T) {
	sim := newTestSimulator(t, Options{})
	origin := vec.Vec3Float{X: 0.5, Y: 0.5, Z: 10}

	for _, ray := range []vec.Vec3Float{
		{},
		{Z: math.Inf(-1)},
		{Z: -(MaxRayLength + 1)},
	} {
		_, _, err := sim.CastRay(context.Background(), origin, ray)
		assert.ErrorIs(t, err, ErrInvalidRay, "луч %+v", ray)
	}
}

func TestSnapshotsRoundTrip(t *testing.T) {
	repo := storage.NewMemorySnapshotRepo()
	sim := newTestSimulator(t, Options{Snapshots: repo})
	spawnPlayer(t, sim, vec.Vec3Float{X: 10.5, Y: 10.5, Z: 4}, false)
	spawnPlayer(t, sim, vec.Vec3Float{X: 14.5, Y: 10.5, Z: 4}, false)

	n, err := sim.SaveSnapshots(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	restored := newTestSimulator(t, Options{Snapshots: repo})
	n, err = restored.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	before := sim.Entities()
	after := restored.Entities()
	require.Len(t, after, 2)
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.Equal(t, before[i].Position, after[i].Position)
	}
}

func TestRestoreSkipsCorruptSnapshots(t *testing.T) {
	repo := storage.NewMemorySnapshotRepo()
	require.NoError(t, repo.Save(context.Background(), entity.Snapshot{ID: "not-a-uuid", Size: playerSize, Mass: 1}))

	sim := newTestSimulator(t, Options{Snapshots: repo})
	n, err := sim.Restore(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestParallelWanderers(t *testing.T) {
	sim := newTestSimulator(t, Options{})
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		_, err := sim.Spawn(ctx, SpawnRequest{
			Kind:     entity.KindNPC,
			Position: vec.Vec3Float{X: 10.5 + float64(i%5)*2, Y: 10.5 + float64(i/5)*2, Z: 4},
			Size:     playerSize,
			Mass:     1,
			Wander:   true,
		})
		require.NoError(t, err)
	}

	runTicks(t, sim, 120)

	for _, snap := range sim.Entities() {
		assert.True(t, snap.Position.IsFinite())
		assert.GreaterOrEqual(t, snap.Position.Z, 4.0-1e-9, "сущность %s провалилась", snap.ID)
	}
	assert.Equal(t, uint64(120), sim.TickCount())
}

func TestEventsPublished(t *testing.T) {
	bus := eventbus.NewMemoryBus(64)
	defer bus.Close()

	var mu sync.Mutex
	types := make(map[string]int)
	done := make(chan struct{}, 16)
	_, err := bus.Subscribe(context.Background(), eventbus.Filter{Sources: []string{eventSource}}, func(ctx context.Context, ev *eventbus.Envelope) {
		mu.Lock()
		types[ev.EventType]++
		mu.Unlock()
		done <- struct{}{}
	})
	require.NoError(t, err)

	sim := newTestSimulator(t, Options{Bus: bus})
	id := spawnPlayer(t, sim, vec.Vec3Float{X: 10.5, Y: 10.5, Z: 4}, false)
	require.NoError(t, sim.Despawn(context.Background(), id))

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("события не доставлены")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, types[eventbus.EntitySpawned])
	assert.Equal(t, 1, types[eventbus.EntityDespawned])
}

func TestMetricsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	sim := newTestSimulator(t, Options{Metrics: metrics})
	spawnPlayer(t, sim, vec.Vec3Float{X: 10.5, Y: 10.5, Z: 8}, false)

	runTicks(t, sim, 45)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.entities))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.loadedCells))
	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.collisions), 1.0, "приземление дает столкновение")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cellsStreamed.WithLabelValues("load")))

	count, err := testutil.GatherAndCount(reg, "voxphys_tick_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestRunStopsAndSaves(t *testing.T) {
	repo := storage.NewMemorySnapshotRepo()
	cfg := DefaultConfig()
	cfg.TickInterval = 5 * time.Millisecond
	sim, err := NewSimulator(cfg, Options{World: newTestWorld(t), Snapshots: repo})
	require.NoError(t, err)
	spawnPlayer(t, sim, vec.Vec3Float{X: 10.5, Y: 10.5, Z: 4}, false)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, sim.Run(ctx))

	assert.Greater(t, sim.TickCount(), uint64(0))
	assert.Equal(t, 1, repo.Count(), "снимки сохраняются при остановке")
}

func ExampleSimulator_Tick() {
	settings := world.DefaultGeneratorSettings(1)
	settings.Mode = world.ModeFlat
	gen, _ := world.NewGenerator(settings)

	sim, _ := NewSimulator(DefaultConfig(), Options{World: world.NewWorld(gen, nil)})
	snap, _ := sim.Spawn(context.Background(), SpawnRequest{
		Position: vec.Vec3Float{X: 0.5, Y: 0.5, Z: 6},
		Size:     vec.Vec3Float{X: 1, Y: 1, Z: 1},
		Mass:     1,
	})

	for i := 0; i < 60; i++ {
		sim.Tick(context.Background(), 1.0/30)
	}
	after, _ := sim.Entity(uuid.MustParse(snap.ID))
	fmt.Printf("%.2f %s\n", after.Position.Z, after.Status)
	// Output: 4.00 grounded
}

func TestTickSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	sim := newTestSimulator(t, Options{})
	spawnPlayer(t, sim, vec.Vec3Float{X: 10.5, Y: 10.5, Z: 4}, false)
	runTicks(t, sim, 1)

	names := make(map[string]bool)
	for _, s := range recorder.Ended() {
		names[s.Name()] = true
	}
	assert.True(t, names["simulation.Tick"])
	assert.True(t, names["simulation.stream"])
	assert.True(t, names["simulation.physics"])
}
