package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/annel0/voxel-server/internal/api"
	"github.com/annel0/voxel-server/internal/auth"
	"github.com/annel0/voxel-server/internal/config"
	"github.com/annel0/voxel-server/internal/ecs"
	"github.com/annel0/voxel-server/internal/gamestate"
	"github.com/annel0/voxel-server/internal/jobs"
	"github.com/annel0/voxel-server/internal/logging"
	"github.com/annel0/voxel-server/internal/network"
	"github.com/annel0/voxel-server/internal/physics"
	"github.com/annel0/voxel-server/internal/registry"
	"github.com/annel0/voxel-server/internal/scripting"
	"github.com/annel0/voxel-server/internal/storage"
	"github.com/annel0/voxel-server/internal/transport"
	"github.com/annel0/voxel-server/internal/world"
	"github.com/annel0/voxel-server/internal/world/terrain"
)

// Коды завершения процесса
const (
	exitFailure     = 1
	exitBadConfig   = 2
	exitNoDataDir   = 3
	exitNoGameDir   = 4
	exitDBDir       = 5
	exitPersistence = 6
	exitSetup       = 7
)

const shutdownTimeout = 10 * time.Second

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exit(code int, format string, args ...interface{}) error {
	return &exitError{code: code, err: fmt.Errorf(format, args...)}
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "❌ Аварийное завершение: %v\n", r)
			os.Exit(exitFailure)
		}
	}()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(exitFailure)
	}
}

type flags struct {
	config      string
	port        int
	maxPlayers  int
	mode        string
	name        string
	motd        string
	dataDir     string
	dbDir       string
	game        string
	logToFile   bool
	logLevel    string
	adminAddr   string
	cacheChunks int
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "voxel-server",
		Short:         "Сервер воксельного мира",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(f.config)
			if err != nil {
				return exit(exitBadConfig, "конфигурация: %w", err)
			}
			applyFlags(cmd, &f, cfg)
			return run(cfg)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&f.config, "config", "c", "", "путь к YAML конфигурации (или VOXEL_CONFIG)")
	fs.IntVarP(&f.port, "port", "p", 0, "UDP порт сервера")
	fs.IntVar(&f.maxPlayers, "max-players", 0, "максимум одновременных игроков")
	fs.StringVar(&f.mode, "mode", "", "singleplayer или multiplayer")
	fs.StringVar(&f.name, "name", "", "имя сервера в рукопожатии")
	fs.StringVar(&f.motd, "motd", "", "сообщение дня")
	fs.StringVar(&f.dataDir, "datadir", "", "каталог с играми")
	fs.StringVar(&f.dbDir, "dbdir", "", "каталог баз данных миров")
	fs.StringVar(&f.game, "game", "", "имя игры в <datadir>/games")
	fs.BoolVar(&f.logToFile, "log", false, "писать логи в файл")
	fs.StringVar(&f.logLevel, "log-level", "", "TRACE, DEBUG, INFO, WARN или ERROR")
	fs.StringVar(&f.adminAddr, "admin", "", "адрес админского HTTP, пустой отключает")
	fs.IntVar(&f.cacheChunks, "cache-chunks", 0, "сколько чанков держать в памяти")
	return cmd
}

// applyFlags флаги командной строки важнее файла и окружения
func applyFlags(cmd *cobra.Command, f *flags, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("port") {
		cfg.Server.Port = f.port
	}
	if changed("max-players") {
		cfg.Server.MaxPlayers = f.maxPlayers
	}
	if changed("mode") {
		cfg.Server.Mode = f.mode
	}
	if changed("name") {
		cfg.Server.Name = f.name
	}
	if changed("motd") {
		cfg.Server.MOTD = f.motd
	}
	if changed("datadir") {
		cfg.Storage.DataDir = f.dataDir
	}
	if changed("dbdir") {
		cfg.Storage.DBDir = f.dbDir
	}
	if changed("game") {
		cfg.Storage.Game = f.game
	}
	if changed("log") {
		cfg.Logging.ToFile = f.logToFile
	}
	if changed("log-level") {
		cfg.Logging.Level = f.logLevel
	}
	if changed("admin") {
		cfg.Server.AdminAddr = f.adminAddr
	}
	if changed("cache-chunks") {
		cfg.World.CacheChunks = f.cacheChunks
	}
}

func setupLogging(cfg *config.Config) error {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logging.Configure(logging.Options{
		Dir:          cfg.Logging.Dir,
		ToFile:       cfg.Logging.ToFile,
		ConsoleLevel: level,
		FileLevel:    logging.DEBUG,
	})
	return logging.InitDefaultLogger("server")
}

func run(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return exit(exitBadConfig, "некорректная конфигурация: %w", err)
	}
	if err := setupLogging(cfg); err != nil {
		return exit(exitBadConfig, "логирование: %w", err)
	}
	defer logging.CloseDefaultLogger()
	defer func() { _ = logging.GetLoggerManager().CloseAll() }()

	logging.Info("🎮 Запуск %s (режим %s)", cfg.Server.Name, cfg.Server.Mode)

	if _, err := os.Stat(cfg.Storage.DataDir); err != nil {
		return exit(exitNoDataDir, "каталог данных %s: %w", cfg.Storage.DataDir, err)
	}
	if _, err := os.Stat(cfg.GameDir()); err != nil {
		return exit(exitNoGameDir, "каталог игры %s: %w", cfg.GameDir(), err)
	}
	if err := os.MkdirAll(cfg.WorldDBDir(), 0o755); err != nil {
		return exit(exitDBDir, "каталог базы %s: %w", cfg.WorldDBDir(), err)
	}

	reg, setup, err := registry.LoadSetup(filepath.Join(cfg.GameDir(), "setup.yaml"))
	if err != nil {
		return exit(exitSetup, "описание игры: %w", err)
	}
	areaGens, terrainGen, err := terrain.FromSetup(setup.Terrain, reg)
	if err != nil {
		return exit(exitSetup, "генератор ландшафта: %w", err)
	}
	logging.Info("📦 Игра %s: материалов %d, текстур %d", cfg.Storage.Game, len(reg.Materials()), len(reg.Textures()))

	db, err := storage.NewBadgerStorage(cfg.WorldDBDir())
	if err != nil {
		return exit(exitPersistence, "база мира: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error("❌ Ошибка закрытия базы: %v", err)
		}
	}()

	ws, err := world.NewStore(world.Options{
		Registry:       reg,
		Persistence:    db,
		Terrain:        terrainGen,
		AreaGenerators: areaGens,
		CacheChunks:    cfg.World.CacheChunks,
		MemoryPressure: cfg.World.MemoryPressure,
	})
	if err != nil {
		return exit(exitSetup, "мир: %w", err)
	}
	defer ws.Close()

	entities := ecs.NewStore()
	if err := db.RetrieveEntities(entities); err != nil {
		return exit(exitPersistence, "загрузка сущностей: %w", err)
	}
	state := gamestate.New(ws, entities)

	tokens, err := auth.NewTokens(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return exit(exitBadConfig, "ключ токенов: %w", err)
	}
	authenticator := auth.NewAuthenticator(db, tokens, cfg.Server.Mode == config.ModeSingleplayer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := jobs.NewPool(ctx, 0)
	queue := jobs.NewQueue()

	host, err := transport.ListenKCP(fmt.Sprintf(":%d", cfg.Server.Port), cfg.Server.Liveness)
	if err != nil {
		_ = pool.Stop()
		return fmt.Errorf("порт %d: %w", cfg.Server.Port, err)
	}

	srv, err := network.NewServer(network.Options{
		Config: cfg,
		State:  state,
		Host:   host,
		Queue:  queue,
		Pool:   pool,
		Engine: scripting.NewBuiltin(state),
		Auth:   authenticator,
	})
	if err != nil {
		_ = pool.Stop()
		_ = host.Close()
		return err
	}
	physicsLoop := physics.NewLoop(state, cfg.Ticks.Physics)

	var admin *api.AdminServer
	if cfg.Server.AdminAddr != "" {
		admin, err = api.NewAdminServer(api.Config{
			Addr:       cfg.Server.AdminAddr,
			ServerName: cfg.Server.Name,
			Players:    srv,
			World:      ws,
		})
		if err != nil {
			_ = pool.Stop()
			_ = host.Close()
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return physicsLoop.Run(gctx) })
	if admin != nil {
		g.Go(admin.Start)
	}
	logging.Info("✅ Сервер слушает UDP :%d, игроков до %d", cfg.Server.Port, cfg.Server.MaxPlayers)

	<-gctx.Done()
	logging.Info("📡 Завершение работы...")

	srv.Stop()
	stop()
	if admin != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := admin.Stop(shutdownCtx); err != nil {
			logging.Error("❌ Ошибка остановки админского API: %v", err)
		}
		cancel()
	}
	runErr := g.Wait()

	if err := pool.Stop(); err != nil {
		logging.Warn("⚠️ Пул заданий остановлен с ошибкой: %v", err)
	}
	if err := host.Close(); err != nil {
		logging.Warn("⚠️ Ошибка закрытия транспорта: %v", err)
	}
	if err := db.StoreEntities(entities); err != nil {
		logging.Error("❌ Ошибка сохранения сущностей: %v", err)
	}
	if err := ws.Flush(); err != nil {
		logging.Error("❌ Ошибка записи мира: %v", err)
	}

	logging.Info("👋 Сервер остановлен")
	return runErr
}
