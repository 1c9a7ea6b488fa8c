package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v3"

	"github.com/annel0/voxphys/internal/logging"
	"github.com/annel0/voxphys/internal/vec"
	"github.com/annel0/voxphys/internal/world"
)

// ErrNotReady возвращается после закрытия хранилища
var ErrNotReady = errors.New("хранилище не готово")

// WorldStorage хранит измененные ячейки мира в BadgerDB
type WorldStorage struct {
	db      *badger.DB
	dbPath  string
	codec   *CellCodec
	logger  *logging.Logger
	mutex   sync.RWMutex
	isReady bool
}

var _ world.CellStore = (*WorldStorage)(nil)

// NewWorldStorage открывает хранилище мира в каталоге dataPath/world
func NewWorldStorage(dataPath string) (*WorldStorage, error) {
	dbPath := filepath.Join(dataPath, "world")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB
	return openWorldStorage(opts, dbPath)
}

// NewInMemoryWorldStorage создаёт хранилище без записи на диск
func NewInMemoryWorldStorage() (*WorldStorage, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return openWorldStorage(opts, "")
}

func openWorldStorage(opts badger.Options, dbPath string) (*WorldStorage, error) {
	codec, err := NewCellCodec()
	if err != nil {
		return nil, err
	}

	db, err := badger.Open(opts)
	if err != nil {
		codec.Close()
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	return &WorldStorage{
		db:      db,
		dbPath:  dbPath,
		codec:   codec,
		logger:  logging.GetStorageLogger(),
		isReady: true,
	}, nil
}

// Close закрывает хранилище данных
func (ws *WorldStorage) Close() error {
	ws.mutex.Lock()
	defer ws.mutex.Unlock()

	if !ws.isReady {
		return nil
	}

	ws.isReady = false
	ws.codec.Close()
	return ws.db.Close()
}

// SaveCell сохраняет тайлы ячейки целиком
func (ws *WorldStorage) SaveCell(ctx context.Context, cell *world.Cell) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return ErrNotReady
	}

	data := ws.codec.Encode(&cell.Tiles)
	err := ws.db.Update(func(txn *badger.Txn) error {
		return txn.Set(cellKey(cell.Location), data)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}

	ws.logger.Trace("Ячейка %v сохранена (%d байт)", cell.Location, len(data))
	return nil
}

// LoadCell загружает ячейку. found = false, если ячейка не сохранялась.
func (ws *WorldStorage) LoadCell(ctx context.Context, location vec.Vec3) (*world.Cell, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return nil, false, ErrNotReady
	}

	var data []byte
	err := ws.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cellKey(location))
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...)
			return nil
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}

	cell := world.NewCell(location)
	if err := ws.codec.Decode(data, &cell.Tiles); err != nil {
		return nil, false, fmt.Errorf("ячейка %v: %w", location, err)
	}
	return cell, true, nil
}

// DeleteCell удаляет сохраненную ячейку, после чего она снова генерируется
func (ws *WorldStorage) DeleteCell(ctx context.Context, location vec.Vec3) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return ErrNotReady
	}

	err := ws.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(cellKey(location))
	})
	if err != nil {
		return fmt.Errorf("ошибка удаления из BadgerDB: %w", err)
	}
	return nil
}

// CountCells возвращает число сохраненных ячеек
func (ws *WorldStorage) CountCells() (int, error) {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return 0, ErrNotReady
	}

	count := 0
	err := ws.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte("cell:")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("ошибка обхода BadgerDB: %w", err)
	}
	return count, nil
}

// RunGC запускает сборку мусора в журнале значений BadgerDB
func (ws *WorldStorage) RunGC() error {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady || ws.dbPath == "" {
		return nil
	}

	err := ws.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}
