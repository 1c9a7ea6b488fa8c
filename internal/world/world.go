package world

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/annel0/voxphys/internal/logging"
	"github.com/annel0/voxphys/internal/vec"
	"github.com/annel0/voxphys/internal/world/tile"
)

// CellGenerator создает содержимое новой ячейки
type CellGenerator interface {
	GenerateCell(location vec.Vec3) *Cell
}

// CellStore постоянное хранилище измененных ячеек
type CellStore interface {
	LoadCell(ctx context.Context, location vec.Vec3) (*Cell, bool, error)
	SaveCell(ctx context.Context, cell *Cell) error
	DeleteCell(ctx context.Context, location vec.Vec3) error
}

// World разреженный индекс ячеек мира.
//
// Методы чтения (TileAt, Cell, CellCount) не берут блокировку: вызывающий
// держит Mu.RLock. Методы, меняющие набор ячеек или тайлы, требуют Mu.Lock.
// Исключение - методы с суффиксом Locked, которые блокируют сами.
type World struct {
	Mu sync.RWMutex

	cells     map[vec.Vec3]*Cell
	generator CellGenerator
	store     CellStore // может быть nil
	logger    *logging.Logger

	autoSaveInterval time.Duration
}

// NewWorld создает пустой мир
func NewWorld(generator CellGenerator, store CellStore) *World {
	return &World{
		cells:            make(map[vec.Vec3]*Cell),
		generator:        generator,
		store:            store,
		logger:           logging.GetWorldLogger(),
		autoSaveInterval: 5 * time.Minute,
	}
}

// SetAutoSaveInterval меняет период автосохранения; 0 отключает его
func (w *World) SetAutoSaveInterval(d time.Duration) {
	w.autoSaveInterval = d
}

// TileAt возвращает тайл по мировым координатам. false означает, что
// ячейка не загружена.
func (w *World) TileAt(pos vec.Vec3) (tile.Tile, bool) {
	cell, ok := w.cells[CellLocation(pos)]
	if !ok {
		return tile.Tile{}, false
	}
	return cell.At(LocalPos(pos)), true
}

// Cell возвращает загруженную ячейку
func (w *World) Cell(location vec.Vec3) (*Cell, bool) {
	cell, ok := w.cells[location]
	return cell, ok
}

// CellCount возвращает количество загруженных ячеек
func (w *World) CellCount() int {
	return len(w.cells)
}

// Locations возвращает отсортированные координаты загруженных ячеек
func (w *World) Locations() []vec.Vec3 {
	out := make([]vec.Vec3, 0, len(w.cells))
	for loc := range w.cells {
		out = append(out, loc)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Z != b.Z {
			return a.Z < b.Z
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
	return out
}

// GetOrLoadCell возвращает ячейку, загружая ее из хранилища или генерируя
func (w *World) GetOrLoadCell(ctx context.Context, location vec.Vec3) (*Cell, error) {
	if cell, ok := w.cells[location]; ok {
		cell.Unload = false
		return cell, nil
	}

	if w.store != nil {
		cell, found, err := w.store.LoadCell(ctx, location)
		if err != nil {
			return nil, fmt.Errorf("загрузка ячейки %v: %w", location, err)
		}
		if found {
			w.cells[location] = cell
			w.logger.Debug("Ячейка %v загружена из хранилища", location)
			return cell, nil
		}
	}

	cell := w.generator.GenerateCell(location)
	w.cells[location] = cell
	w.logger.Trace("Ячейка %v сгенерирована", location)
	return cell, nil
}

// EnsureLoaded загружает все ячейки, покрывающие тайлы в диапазоне [lo, hi]
func (w *World) EnsureLoaded(ctx context.Context, lo, hi vec.Vec3) (int, error) {
	from := CellLocation(lo)
	to := CellLocation(hi)
	loaded := 0
	for z := from.Z; z <= to.Z; z++ {
		for y := from.Y; y <= to.Y; y++ {
			for x := from.X; x <= to.X; x++ {
				loc := vec.Vec3{X: x, Y: y, Z: z}
				if cell, ok := w.cells[loc]; ok {
					cell.Unload = false
					continue
				}
				if _, err := w.GetOrLoadCell(ctx, loc); err != nil {
					return loaded, err
				}
				loaded++
			}
		}
	}
	return loaded, nil
}

// SetTile записывает тайл, загружая ячейку при необходимости.
// Вырожденные наклоны нормализуются.
func (w *World) SetTile(ctx context.Context, pos vec.Vec3, t tile.Tile) error {
	cell, err := w.GetOrLoadCell(ctx, CellLocation(pos))
	if err != nil {
		return err
	}
	cell.Set(LocalPos(pos), t.Normalize())
	cell.Dirty = true
	return nil
}

// FlagAll помечает все ячейки к выгрузке. Ячейки, затронутые затем
// через EnsureLoaded или GetOrLoadCell, снимают пометку.
func (w *World) FlagAll() {
	for _, cell := range w.cells {
		cell.Unload = true
	}
}

// UnloadFlagged сохраняет измененные помеченные ячейки и удаляет их из памяти
func (w *World) UnloadFlagged(ctx context.Context) (int, error) {
	unloaded := 0
	for loc, cell := range w.cells {
		if !cell.Unload {
			continue
		}
		if err := w.persist(ctx, cell); err != nil {
			return unloaded, err
		}
		delete(w.cells, loc)
		unloaded++
	}
	if unloaded > 0 {
		w.logger.Debug("Выгружено ячеек: %d, осталось: %d", unloaded, len(w.cells))
	}
	return unloaded, nil
}

// SaveDirty сохраняет все измененные ячейки
func (w *World) SaveDirty(ctx context.Context) (int, error) {
	saved := 0
	for _, cell := range w.cells {
		if !cell.Dirty {
			continue
		}
		if err := w.persist(ctx, cell); err != nil {
			return saved, err
		}
		saved++
	}
	return saved, nil
}

func (w *World) persist(ctx context.Context, cell *Cell) error {
	if !cell.Dirty || w.store == nil {
		return nil
	}
	if err := w.store.SaveCell(ctx, cell); err != nil {
		return fmt.Errorf("сохранение ячейки %v: %w", cell.Location, err)
	}
	cell.Dirty = false
	return nil
}

// PlaceOnSurface возвращает позицию над первым непустым тайлом,
// найденным сверху вниз в ячейке точки и ячейке под ней
func (w *World) PlaceOnSurface(ctx context.Context, pos vec.Vec3Float) (vec.Vec3Float, error) {
	tilePos := pos.Floor()
	loc := CellLocation(tilePos)
	for _, cellLoc := range []vec.Vec3{loc, loc.Sub(vec.Vec3{Z: 1})} {
		cell, err := w.GetOrLoadCell(ctx, cellLoc)
		if err != nil {
			return pos, err
		}
		local := LocalPos(tilePos)
		for z := CellHeight - 1; z >= 0; z-- {
			if !cell.At(local.With(vec.Z, z)).IsEmpty() {
				return pos.With(vec.Z, float64(cell.Origin().Z+z+1)), nil
			}
		}
	}
	return pos.With(vec.Z, float64(loc.Sub(vec.Vec3{Z: 1}).Shl(CellHeightBits).Z)), nil
}

// SaveDirtyLocked сохраняет измененные ячейки под блокировкой мира
func (w *World) SaveDirtyLocked(ctx context.Context) (int, error) {
	w.Mu.Lock()
	defer w.Mu.Unlock()
	return w.SaveDirty(ctx)
}

// Run сохраняет измененные ячейки раз в интервал автосохранения и блокируется
// до отмены контекста. Начатое сохранение всегда завершается до возврата.
// Без хранилища или интервала сразу возвращается.
func (w *World) Run(ctx context.Context) {
	if w.autoSaveInterval <= 0 || w.store == nil {
		return
	}
	ticker := time.NewTicker(w.autoSaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			saved, err := w.SaveDirtyLocked(ctx)
			if err != nil {
				w.logger.Error("Ошибка автосохранения мира: %v", err)
				continue
			}
			if saved > 0 {
				w.logger.Info("💾 Автосохранение: %d ячеек", saved)
			}
		}
	}
}
