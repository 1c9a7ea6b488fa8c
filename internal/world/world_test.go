package world

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxphys/internal/vec"
	"github.com/annel0/voxphys/internal/world/tile"
)

// memoryCellStore простое хранилище ячеек для тестов
type memoryCellStore struct {
	cells map[vec.Vec3]CellTiles
	saves int
}

func newMemoryCellStore() *memoryCellStore {
	return &memoryCellStore{cells: make(map[vec.Vec3]CellTiles)}
}

func (s *memoryCellStore) LoadCell(_ context.Context, location vec.Vec3) (*Cell, bool, error) {
	tiles, ok := s.cells[location]
	if !ok {
		return nil, false, nil
	}
	cell := NewCell(location)
	cell.Tiles = tiles
	return cell, true, nil
}

func (s *memoryCellStore) SaveCell(_ context.Context, cell *Cell) error {
	s.cells[cell.Location] = cell.Tiles
	s.saves++
	return nil
}

func (s *memoryCellStore) DeleteCell(_ context.Context, location vec.Vec3) error {
	delete(s.cells, location)
	return nil
}

func flatGenerator(t *testing.T) *Generator {
	t.Helper()
	settings := DefaultGeneratorSettings(1)
	settings.Mode = ModeFlat
	g, err := NewGenerator(settings)
	require.NoError(t, err)
	return g
}

func TestCellAddressingNegative(t *testing.T) {
	pos := vec.Vec3{X: -1, Y: 32, Z: -33}
	assert.Equal(t, vec.Vec3{X: -1, Y: 1, Z: -2}, CellLocation(pos))
	assert.Equal(t, vec.Vec3{X: 31, Y: 0, Z: 31}, LocalPos(pos))

	cell := NewCell(CellLocation(pos))
	assert.Equal(t, pos, cell.Origin().Add(LocalPos(pos)), "origin + local должен давать исходную позицию")
}

func TestTileAtMissingCell(t *testing.T) {
	w := NewWorld(flatGenerator(t), nil)
	_, ok := w.TileAt(vec.Vec3{})
	assert.False(t, ok, "незагруженная ячейка должна сообщать об отсутствии")
}

func TestFlatGeneration(t *testing.T) {
	w := NewWorld(flatGenerator(t), nil)
	ctx := context.Background()

	_, err := w.GetOrLoadCell(ctx, vec.Vec3{})
	require.NoError(t, err)

	ground, ok := w.TileAt(vec.Vec3{X: 5, Y: 5, Z: 3})
	require.True(t, ok)
	assert.Equal(t, tile.NewFull(tile.Grass), ground)

	air, _ := w.TileAt(vec.Vec3{X: 5, Y: 5, Z: 10})
	assert.Equal(t, tile.Empty, air.State())

	slope, _ := w.TileAt(vec.Vec3{X: 0, Y: 31, Z: 4})
	assert.Equal(t, tile.Partial, slope.State())
	assert.True(t, slope.Valid())
}

func TestEnsureLoadedCoversRange(t *testing.T) {
	w := NewWorld(flatGenerator(t), nil)
	n, err := w.EnsureLoaded(context.Background(), vec.Vec3{X: -1, Y: -1, Z: 0}, vec.Vec3{X: 0, Y: 0, Z: 1})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 4, w.CellCount())

	n, err = w.EnsureLoaded(context.Background(), vec.Vec3{}, vec.Vec3{X: 1})
	require.NoError(t, err)
	assert.Equal(t, 0, n, "повторная загрузка не должна создавать ячейки")
}

func TestUnloadPersistsDirtyCells(t *testing.T) {
	store := newMemoryCellStore()
	w := NewWorld(flatGenerator(t), store)
	ctx := context.Background()

	pos := vec.Vec3{X: 3, Y: 4, Z: 10}
	require.NoError(t, w.SetTile(ctx, pos, tile.NewFull(tile.Wood)))
	_, err := w.GetOrLoadCell(ctx, vec.Vec3{X: 1})
	require.NoError(t, err)

	w.FlagAll()
	unloaded, err := w.UnloadFlagged(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, unloaded)
	assert.Equal(t, 0, w.CellCount())
	assert.Equal(t, 1, store.saves, "сохраняется только измененная ячейка")

	_, ok := w.TileAt(pos)
	assert.False(t, ok)

	_, err = w.GetOrLoadCell(ctx, CellLocation(pos))
	require.NoError(t, err)
	got, ok := w.TileAt(pos)
	require.True(t, ok)
	assert.Equal(t, tile.NewFull(tile.Wood), got, "изменение должно пережить выгрузку")
}

func TestFlaggedCellTouchedAgainIsKept(t *testing.T) {
	w := NewWorld(flatGenerator(t), nil)
	ctx := context.Background()
	_, err := w.EnsureLoaded(ctx, vec.Vec3{}, vec.Vec3{X: 40})
	require.NoError(t, err)

	w.FlagAll()
	_, err = w.EnsureLoaded(ctx, vec.Vec3{}, vec.Vec3{})
	require.NoError(t, err)

	unloaded, err := w.UnloadFlagged(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, unloaded)
	_, ok := w.Cell(vec.Vec3{})
	assert.True(t, ok)
}

func TestSetTileNormalizesDegenerateSlope(t *testing.T) {
	w := NewWorld(flatGenerator(t), nil)
	ctx := context.Background()
	pos := vec.Vec3{X: 1, Y: 1, Z: 20}
	require.NoError(t, w.SetTile(ctx, pos, tile.Tile{Material: tile.Stone, Direction: tile.Direction{Z: 1}, Level: 5}))
	got, _ := w.TileAt(pos)
	assert.Equal(t, tile.Full, got.State())
}

func TestPlaceOnSurface(t *testing.T) {
	w := NewWorld(flatGenerator(t), nil)
	p, err := w.PlaceOnSurface(context.Background(), vec.Vec3Float{X: 10.5, Y: 10.5, Z: 20})
	require.NoError(t, err)
	assert.Equal(t, 4.0, p.Z)
}

func TestPerlinGenerationIsDeterministic(t *testing.T) {
	a, err := NewGenerator(DefaultGeneratorSettings(99))
	require.NoError(t, err)
	b, err := NewGenerator(DefaultGeneratorSettings(99))
	require.NoError(t, err)

	ca := a.GenerateCell(vec.Vec3{X: 2, Y: -1})
	cb := b.GenerateCell(vec.Vec3{X: 2, Y: -1})
	assert.Equal(t, ca.Tiles, cb.Tiles)

	col := a.ColumnAt(70, -10)
	assert.True(t, col.Surface.Valid(), "поверхность не должна быть вырожденной")
}

func TestGeneratorSettingsValidate(t *testing.T) {
	s := DefaultGeneratorSettings(1)
	s.Mode = "caves"
	assert.Error(t, s.Validate())

	s = DefaultGeneratorSettings(1)
	s.SmallSize = 128
	assert.Error(t, s.Validate())
}

func TestAutoSaveRunBlocksUntilCancel(t *testing.T) {
	store := newMemoryCellStore()
	w := NewWorld(flatGenerator(t), store)
	w.SetAutoSaveInterval(5 * time.Millisecond)

	pos := vec.Vec3{X: 3, Y: 4, Z: 10}
	require.NoError(t, w.SetTile(context.Background(), pos, tile.NewFull(tile.Wood)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		w.Mu.RLock()
		defer w.Mu.RUnlock()
		return store.saves > 0
	}, time.Second, 5*time.Millisecond)

	select {
	case <-done:
		t.Fatal("Run вернулся до отмены контекста")
	default:
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run не завершился после отмены контекста")
	}

	reloaded := NewWorld(flatGenerator(t), store)
	_, err := reloaded.GetOrLoadCell(context.Background(), CellLocation(pos))
	require.NoError(t, err)
	got, ok := reloaded.TileAt(pos)
	require.True(t, ok)
	assert.Equal(t, tile.NewFull(tile.Wood), got, "автосохранение должно записать измененную ячейку")
}

func TestAutoSaveRunWithoutStoreReturns(t *testing.T) {
	w := NewWorld(flatGenerator(t), nil)
	w.SetAutoSaveInterval(time.Millisecond)

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run без хранилища должен сразу возвращаться")
	}
}
