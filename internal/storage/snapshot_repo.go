package storage

import (
	"context"
	"errors"

	"github.com/annel0/voxphys/internal/entity"
)

// ErrNotFound возвращается, если снимок сущности отсутствует
var ErrNotFound = errors.New("запись не найдена")

// SnapshotRepo определяет интерфейс для сохранения и загрузки снимков сущностей.
// Снимки привязаны к ID сущности и переживают перезапуск сервера.
type SnapshotRepo interface {
	// Save сохраняет снимок сущности.
	Save(ctx context.Context, snapshot entity.Snapshot) error

	// Load загружает снимок по ID.
	// Возвращает false, если снимок не сохранялся.
	Load(ctx context.Context, id string) (entity.Snapshot, bool, error)

	// Delete удаляет снимок. Возвращает ErrNotFound, если его нет.
	Delete(ctx context.Context, id string) error

	// BatchSave сохраняет снимки нескольких сущностей (для автосохранения).
	BatchSave(ctx context.Context, snapshots []entity.Snapshot) error

	// LoadAll возвращает все сохраненные снимки (для восстановления при старте).
	LoadAll(ctx context.Context) ([]entity.Snapshot, error)
}
