package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/annel0/voxphys/internal/entity"
	"github.com/annel0/voxphys/internal/logging"
)

// RedisSnapshotRepo хранит снимки сущностей в Redis
type RedisSnapshotRepo struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *logging.Logger
}

var _ SnapshotRepo = (*RedisSnapshotRepo)(nil)

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Addr      string        `yaml:"addr"`       // Адрес Redis сервера
	Password  string        `yaml:"password"`   // Пароль (пустой если не требуется)
	DB        int           `yaml:"db"`         // Номер базы данных
	KeyPrefix string        `yaml:"key_prefix"` // Префикс для ключей
	TTL       time.Duration `yaml:"ttl"`        // Время жизни записей, 0 - без ограничения
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "voxphys:entity:",
	}
}

// NewRedisSnapshotRepo подключается к Redis и проверяет соединение
func NewRedisSnapshotRepo(ctx context.Context, config *RedisConfig) (*RedisSnapshotRepo, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("не удалось подключиться к Redis: %w", err)
	}

	logger := logging.GetStorageLogger()
	logger.Info("Подключено к Redis %s", config.Addr)

	return &RedisSnapshotRepo{
		client:    client,
		keyPrefix: config.KeyPrefix,
		ttl:       config.TTL,
		logger:    logger,
	}, nil
}

func (r *RedisSnapshotRepo) key(id string) string {
	return r.keyPrefix + id
}

// Save сохраняет снимок сущности
func (r *RedisSnapshotRepo) Save(ctx context.Context, snapshot entity.Snapshot) error {
	if snapshot.ID == "" {
		return fmt.Errorf("пустой id снимка")
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("ошибка сериализации снимка: %w", err)
	}
	if err := r.client.Set(ctx, r.key(snapshot.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("ошибка сохранения снимка: %w", err)
	}
	return nil
}

// Load загружает снимок сущности
func (r *RedisSnapshotRepo) Load(ctx context.Context, id string) (entity.Snapshot, bool, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return entity.Snapshot{}, false, nil
	}
	if err != nil {
		return entity.Snapshot{}, false, fmt.Errorf("ошибка чтения снимка: %w", err)
	}

	var s entity.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return entity.Snapshot{}, false, fmt.Errorf("ошибка десериализации снимка: %w", err)
	}
	return s, true, nil
}

// Delete удаляет снимок сущности
func (r *RedisSnapshotRepo) Delete(ctx context.Context, id string) error {
	n, err := r.client.Del(ctx, r.key(id)).Result()
	if err != nil {
		return fmt.Errorf("ошибка удаления снимка: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("снимок %s: %w", id, ErrNotFound)
	}
	return nil
}

// BatchSave записывает снимки одним пайплайном
func (r *RedisSnapshotRepo) BatchSave(ctx context.Context, snapshots []entity.Snapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for _, s := range snapshots {
		data, err := json.Marshal(s)
		if err != nil {
			r.logger.Warn("Не удалось сериализовать снимок %s: %v", s.ID, err)
			continue
		}
		pipe.Set(ctx, r.key(s.ID), data, r.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ошибка выполнения batch: %w", err)
	}
	return nil
}

// LoadAll сканирует ключи с префиксом и загружает все снимки
func (r *RedisSnapshotRepo) LoadAll(ctx context.Context) ([]entity.Snapshot, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, r.keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("ошибка сканирования ключей: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	// Получаем данные пайплайном
	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Get(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("ошибка чтения снимков: %w", err)
	}

	out := make([]entity.Snapshot, 0, len(keys))
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			// Ключ мог истечь между SCAN и GET
			continue
		}
		var s entity.Snapshot
		if err := json.Unmarshal(data, &s); err != nil {
			r.logger.Warn("Пропущен поврежденный снимок %s: %v", keys[i], err)
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Close закрывает соединение с Redis
func (r *RedisSnapshotRepo) Close() error {
	return r.client.Close()
}
