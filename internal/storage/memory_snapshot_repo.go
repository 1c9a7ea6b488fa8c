package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/annel0/voxphys/internal/entity"
)

// MemorySnapshotRepo реализует SnapshotRepo в памяти.
// Используется, когда Redis не настроен, и в тестах.
// ВНИМАНИЕ: Данные теряются при перезапуске сервера!
type MemorySnapshotRepo struct {
	mu   sync.RWMutex
	data map[string]entity.Snapshot
}

// NewMemorySnapshotRepo создает новый репозиторий снимков в памяти.
func NewMemorySnapshotRepo() *MemorySnapshotRepo {
	return &MemorySnapshotRepo{
		data: make(map[string]entity.Snapshot),
	}
}

// Save сохраняет снимок сущности в памяти.
func (r *MemorySnapshotRepo) Save(ctx context.Context, snapshot entity.Snapshot) error {
	if snapshot.ID == "" {
		return fmt.Errorf("пустой id снимка")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.data[snapshot.ID] = snapshot
	return nil
}

// Load загружает снимок сущности из памяти.
func (r *MemorySnapshotRepo) Load(ctx context.Context, id string) (entity.Snapshot, bool, error) {
	select {
	case <-ctx.Done():
		return entity.Snapshot{}, false, ctx.Err()
	default:
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.data[id]
	return s, exists, nil
}

// Delete удаляет снимок сущности из памяти.
func (r *MemorySnapshotRepo) Delete(ctx context.Context, id string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.data[id]; !exists {
		return fmt.Errorf("снимок %s: %w", id, ErrNotFound)
	}

	delete(r.data, id)
	return nil
}

// BatchSave сохраняет снимки нескольких сущностей.
func (r *MemorySnapshotRepo) BatchSave(ctx context.Context, snapshots []entity.Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	// Валидация всех записей перед сохранением
	for _, s := range snapshots {
		if s.ID == "" {
			return fmt.Errorf("пустой id снимка в batch")
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range snapshots {
		r.data[s.ID] = s
	}
	return nil
}

// LoadAll возвращает все снимки, отсортированные по ID.
func (r *MemorySnapshotRepo) LoadAll(ctx context.Context) ([]entity.Snapshot, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]entity.Snapshot, 0, len(r.data))
	for _, s := range r.data {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Count возвращает количество сохраненных снимков (для отладки).
func (r *MemorySnapshotRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

// Clear очищает все снимки (для тестов).
func (r *MemorySnapshotRepo) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = make(map[string]entity.Snapshot)
}
