package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxphys/internal/entity"
	"github.com/annel0/voxphys/internal/vec"
)

func testSnapshot(x float64) entity.Snapshot {
	return entity.Snapshot{
		ID:       uuid.NewString(),
		Kind:     "player",
		Position: vec.Vec3Float{X: x, Y: 2, Z: 3},
		Velocity: vec.Vec3Float{Z: -1},
		Size:     vec.Vec3Float{X: 0.6, Y: 0.6, Z: 1.8},
		Mass:     70,
		Facing:   "left",
		Status:   "grounded",
	}
}

// runSnapshotRepoSuite проверяет общий контракт SnapshotRepo
func runSnapshotRepoSuite(t *testing.T, repo SnapshotRepo) {
	ctx := context.Background()

	t.Run("Save and Load", func(t *testing.T) {
		expected := testSnapshot(10)
		require.NoError(t, repo.Save(ctx, expected))

		actual, found, err := repo.Load(ctx, expected.ID)
		require.NoError(t, err)
		require.True(t, found, "Снимок не найден")
		assert.Equal(t, expected, actual)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		s, found, err := repo.Load(ctx, uuid.NewString())
		require.NoError(t, err)
		assert.False(t, found)
		assert.Equal(t, entity.Snapshot{}, s)
	})

	t.Run("Update", func(t *testing.T) {
		s := testSnapshot(1)
		require.NoError(t, repo.Save(ctx, s))
		s.Position.X = 42
		require.NoError(t, repo.Save(ctx, s))

		actual, found, err := repo.Load(ctx, s.ID)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, 42.0, actual.Position.X)
	})

	t.Run("Delete", func(t *testing.T) {
		s := testSnapshot(5)
		require.NoError(t, repo.Save(ctx, s))
		require.NoError(t, repo.Delete(ctx, s.ID))

		_, found, err := repo.Load(ctx, s.ID)
		require.NoError(t, err)
		assert.False(t, found, "Снимок найден после удаления")

		err = repo.Delete(ctx, s.ID)
		assert.True(t, errors.Is(err, ErrNotFound), "ожидалась ErrNotFound, получена %v", err)
	})

	t.Run("BatchSave and LoadAll", func(t *testing.T) {
		batch := []entity.Snapshot{testSnapshot(100), testSnapshot(200), testSnapshot(300)}
		require.NoError(t, repo.BatchSave(ctx, batch))
		require.NoError(t, repo.BatchSave(ctx, nil))

		all, err := repo.LoadAll(ctx)
		require.NoError(t, err)

		byID := make(map[string]entity.Snapshot, len(all))
		for _, s := range all {
			byID[s.ID] = s
		}
		for _, s := range batch {
			assert.Equal(t, s, byID[s.ID])
		}
		for i := 1; i < len(all); i++ {
			assert.Less(t, all[i-1].ID, all[i].ID, "LoadAll должен сортировать по ID")
		}
	})

	t.Run("Validation", func(t *testing.T) {
		assert.Error(t, repo.Save(ctx, entity.Snapshot{}), "Ожидалась ошибка для пустого id")
	})
}

func TestMemorySnapshotRepo(t *testing.T) {
	repo := NewMemorySnapshotRepo()
	runSnapshotRepoSuite(t, repo)

	t.Run("Batch Validation", func(t *testing.T) {
		before := repo.Count()
		err := repo.BatchSave(context.Background(), []entity.Snapshot{testSnapshot(1), {}})
		assert.Error(t, err)
		assert.Equal(t, before, repo.Count(), "batch с ошибкой не должен сохранять ничего")
	})

	t.Run("Context Cancellation", func(t *testing.T) {
		canceledCtx, cancel := context.WithCancel(context.Background())
		cancel()

		err := repo.Save(canceledCtx, testSnapshot(1))
		assert.Equal(t, context.Canceled, err)
	})

	t.Run("Clear", func(t *testing.T) {
		repo.Clear()
		assert.Equal(t, 0, repo.Count())
		all, err := repo.LoadAll(context.Background())
		require.NoError(t, err)
		assert.Empty(t, all)
	})
}

// TestRedisSnapshotRepo требует запущенный Redis: VOXPHYS_REDIS_ADDR=localhost:6379
func TestRedisSnapshotRepo(t *testing.T) {
	addr := os.Getenv("VOXPHYS_REDIS_ADDR")
	if addr == "" {
		t.Skip("VOXPHYS_REDIS_ADDR не задан, пропускаем тест Redis")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	config := DefaultRedisConfig()
	config.Addr = addr
	config.KeyPrefix = fmt.Sprintf("voxphys:test:%d:", time.Now().UnixNano())

	repo, err := NewRedisSnapshotRepo(ctx, config)
	require.NoError(t, err)
	defer repo.Close()

	runSnapshotRepoSuite(t, repo)

	// Очистка тестовых ключей
	all, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	for _, s := range all {
		_ = repo.Delete(ctx, s.ID)
	}
}

// TestConcurrentAccess тестирует конкурентный доступ к репозиторию
func TestConcurrentAccess(t *testing.T) {
	repo := NewMemorySnapshotRepo()
	ctx := context.Background()

	const numGoroutines = 10
	const numOperations = 100

	done := make(chan bool, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(goroutineID int) {
			defer func() { done <- true }()

			for j := 0; j < numOperations; j++ {
				s := testSnapshot(float64(goroutineID*numOperations + j))

				if err := repo.Save(ctx, s); err != nil {
					t.Errorf("Ошибка сохранения в горутине %d: %v", goroutineID, err)
					return
				}

				loaded, found, err := repo.Load(ctx, s.ID)
				if err != nil {
					t.Errorf("Ошибка загрузки в горутине %d: %v", goroutineID, err)
					return
				}
				if !found || loaded != s {
					t.Errorf("Неверный снимок в горутине %d: ожидался %+v, получен %+v",
						goroutineID, s, loaded)
					return
				}
			}
		}(i)
	}

	for i := 0; i < numGoroutines; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("Тест превысил таймаут")
		}
	}

	assert.Equal(t, numGoroutines*numOperations, repo.Count())
}
