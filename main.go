package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/wfunc/bingoserver/auth"
	"github.com/wfunc/bingoserver/config"
	"github.com/wfunc/bingoserver/logger"
	"github.com/wfunc/bingoserver/monitor"
	"github.com/wfunc/bingoserver/persistence"
	"github.com/wfunc/bingoserver/pool"
	"github.com/wfunc/bingoserver/room"
	"github.com/wfunc/bingoserver/server"
	"github.com/wfunc/bingoserver/services"
)

// loadPool 按配置加载号码池
func loadPool(cfg *config.Config) (*pool.Pool, error) {
	var (
		p   *pool.Pool
		err error
	)
	switch cfg.Game.PoolSource {
	case "file":
		p, err = pool.LoadFile(cfg.Game.PoolFile)
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		p, err = pool.LoadPostgres(ctx, cfg.Database.Postgres.DSN())
	default:
		p = pool.Standard()
	}
	if err != nil {
		return nil, err
	}
	if err := p.CheckSize(cfg.Game.PoolSize); err != nil {
		return nil, err
	}
	return p, nil
}

func main() {
	configPath := pflag.String("config", ".", "directory containing config.yaml")
	pflag.Parse()

	// Initialize logger
	logger.Init(logger.Options{})

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}
	logger.Init(logger.Options{Level: cfg.Log.Level, Development: cfg.Log.Development})
	defer logger.Sync()

	numbers, err := loadPool(cfg)
	if err != nil {
		logger.Log.Fatalf("Failed to load number pool: %v", err)
	}
	logger.Log.Infow("Number pool loaded", "source", cfg.Game.PoolSource, "size", numbers.Size())

	validator, err := room.ValidatorByName(cfg.Game.WinValidator)
	if err != nil {
		logger.Log.Fatalf("Invalid win validator: %v", err)
	}

	// Initialize Database
	db, err := persistence.Open(cfg.Database.Driver, cfg.Database.Postgres.DSN())
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	logger.Log.Infow("Database ready", "driver", cfg.Database.Driver)
	records := services.NewRecordService(db)

	// Initialize Game Server
	gameServer := server.NewGameServer(server.Deps{
		Server:    cfg.Server,
		Game:      cfg.Game,
		Signer:    auth.NewSigner(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL),
		Pool:      numbers,
		Validator: validator,
		Records:   records,
		Monitor:   monitor.NewMonitor("bingo"),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- gameServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Log.Infof("Received %s, shutting down", sig)
	case err := <-errCh:
		if err != nil {
			logger.Log.Errorf("Server stopped: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := gameServer.Shutdown(ctx); err != nil {
		logger.Log.Errorf("Shutdown: %v", err)
	}
	if err := records.Close(); err != nil {
		logger.Log.Errorf("Close database: %v", err)
	}
	logger.Log.Info("Server stopped")
}
