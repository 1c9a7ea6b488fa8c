package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/annel0/voxphys/internal/api"
	"github.com/annel0/voxphys/internal/config"
	"github.com/annel0/voxphys/internal/entity"
	"github.com/annel0/voxphys/internal/eventbus"
	"github.com/annel0/voxphys/internal/logging"
	"github.com/annel0/voxphys/internal/observability"
	"github.com/annel0/voxphys/internal/simulation"
	"github.com/annel0/voxphys/internal/storage"
	"github.com/annel0/voxphys/internal/vec"
	"github.com/annel0/voxphys/internal/world"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	logOpts, err := cfg.Logging.Options()
	if err != nil {
		log.Fatalf("❌ Ошибка настройки логирования: %v", err)
	}
	if err := logging.InitDefaultLogger(logOpts); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()

	logging.Info("🎮 Запуск сервера воксельной физики...")

	if err := run(cfg); err != nil {
		logging.Error("❌ Сервер завершился с ошибкой: %v", err)
		logging.CloseDefaultLogger()
		os.Exit(1)
	}
	logging.Info("✅ Сервер остановлен")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// === ТЕЛЕМЕТРИЯ ===
	shutdownTracing, err := observability.InitTelemetry(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.Enabled)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logging.Warn("Ошибка остановки трассировки: %v", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// === ХРАНИЛИЩА ===
	var cells *storage.WorldStorage
	if cfg.Storage.DataPath != "" {
		cells, err = storage.NewWorldStorage(cfg.Storage.DataPath)
	} else {
		logging.Warn("data_path не задан, мир хранится только в памяти")
		cells, err = storage.NewInMemoryWorldStorage()
	}
	if err != nil {
		return err
	}
	defer cells.Close()
	if n, err := cells.CountCells(); err == nil {
		logging.Info("🗄️ Сохраненных ячеек мира: %d", n)
	}

	var snapshots storage.SnapshotRepo
	if cfg.Storage.Redis != nil {
		repo, err := storage.NewRedisSnapshotRepo(ctx, cfg.Storage.Redis)
		if err != nil {
			return err
		}
		defer repo.Close()
		snapshots = repo
	} else {
		snapshots = storage.NewMemorySnapshotRepo()
	}

	// === МИР ===
	gen, err := world.NewGenerator(cfg.World.GeneratorSettings())
	if err != nil {
		return err
	}
	w := world.NewWorld(gen, cells)
	w.SetAutoSaveInterval(cfg.World.AutoSave())

	// === СОБЫТИЯ ===
	bus := eventbus.NewMemoryBus(1024)
	defer bus.Close()
	if _, err := eventbus.StartLoggingListener(bus); err != nil {
		return err
	}
	busMetrics := eventbus.NewMetricsExporter(bus, registry)
	busMetrics.Start(10 * time.Second)
	defer busMetrics.Stop()

	// === СИМУЛЯЦИЯ ===
	sim, err := simulation.NewSimulator(simulation.Config{
		Physics:          cfg.Physics,
		TickInterval:     cfg.Simulation.TickInterval(),
		Workers:          cfg.Simulation.Workers,
		StreamRadius:     cfg.Simulation.StreamRadius,
		SnapshotInterval: cfg.Simulation.Snapshot(),
	}, simulation.Options{
		World:     w,
		Snapshots: snapshots,
		Bus:       bus,
		Metrics:   simulation.NewMetrics(registry),
	})
	if err != nil {
		return err
	}

	restored, err := sim.Restore(ctx)
	if err != nil {
		return err
	}
	logging.Info("♻️ Восстановлено сущностей: %d", restored)
	if restored == 0 {
		spawnWanderers(ctx, sim, cfg.Simulation.NPCCount, cfg.World.Seed)
	}

	// === REST API ===
	server, err := api.NewRestServer(api.Config{
		Port:      cfg.Server.GetRESTPort(),
		Simulator: sim,
		Registry:  registry,
		GinMode:   cfg.Server.GinMode,
		Service:   cfg.Telemetry.ServiceName,
	})
	if err != nil {
		return err
	}

	// Все фоновые задачи живут в группе: cells.Close не выполнится,
	// пока идет автосохранение
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sim.Run(gctx)
	})
	g.Go(func() error {
		w.Run(gctx)
		return nil
	})
	g.Go(server.Start)
	g.Go(func() error {
		collectGarbage(gctx, cells)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logging.Info("🛑 Получен сигнал завершения, останавливаем сервер...")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Stop(sctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// spawnWanderers расставляет блуждающих NPC вокруг начала координат
func spawnWanderers(ctx context.Context, sim *simulation.Simulator, count int, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < count; i++ {
		pos := vec.Vec3Float{
			X: rng.Float64()*48 - 24,
			Y: rng.Float64()*48 - 24,
			Z: float64(2*world.CellHeight - 1),
		}
		_, err := sim.Spawn(ctx, simulation.SpawnRequest{
			Kind:           entity.KindNPC,
			Position:       pos,
			Size:           vec.Vec3Float{X: 0.8, Y: 0.8, Z: 0.9},
			Mass:           1,
			Wander:         true,
			PlaceOnSurface: true,
		})
		if err != nil {
			logging.Warn("Не удалось создать NPC %d: %v", i, err)
		}
	}
}

// collectGarbage периодически чистит журнал значений BadgerDB
func collectGarbage(ctx context.Context, cells *storage.WorldStorage) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := cells.RunGC(); err != nil {
				logging.Warn("Ошибка сборки мусора BadgerDB: %v", err)
			}
		}
	}
}
