package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	appcfg "github.com/park285/sealed-battleship/internal/config"
	"github.com/park285/sealed-battleship/internal/eventfeed"
	"github.com/park285/sealed-battleship/internal/msgcat"
	"github.com/park285/sealed-battleship/internal/obslog"
	"github.com/park285/sealed-battleship/internal/pvpbattle"
	"github.com/park285/sealed-battleship/internal/rulebook"
	"github.com/park285/sealed-battleship/internal/txapi"
)

func main() {
	// a missing .env is fine; the environment may already be set
	_ = godotenv.Load()

	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	cfg, err := appcfg.Load()
	if err != nil {
		logger.Fatal("config error", zap.Error(err))
	}

	book, err := rulebook.Load(cfg.RulesFile)
	if err != nil {
		logger.Fatal("rules error", zap.Error(err))
	}
	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		logger.Fatal("message catalog error", zap.Error(err))
	}
	logger.Info("message catalog loaded", zap.Strings("locales", cat.Locales()))

	mgr, err := pvpbattle.NewManager(cfg.RedisURL,
		pvpbattle.WithRules(book.Rules()),
		pvpbattle.WithTTL(cfg.GameTTL),
		pvpbattle.WithLogger(logger),
	)
	if err != nil {
		logger.Fatal("battle manager init error", zap.Error(err))
	}
	defer mgr.Close()

	if cfg.DatabaseURL != "" {
		repo, err := pvpbattle.NewRepository(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("result repository init error", zap.Error(err))
		}
		defer repo.Close()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = repo.EnsureSchema(sctx)
		cancel()
		if err != nil {
			logger.Fatal("result schema error", zap.Error(err))
		}
		mgr.AttachRepository(repo)
	} else {
		logger.Info("DATABASE_URL not set; finished games are not archived")
	}

	api := txapi.New(mgr, txapi.Config{
		Book:         book,
		Catalog:      cat,
		Logger:       logger.Named("txapi"),
		MaxBodyBytes: cfg.MaxBodyBytes,
	})
	feed := eventfeed.New(mgr, eventfeed.Config{
		OriginPatterns: cfg.WSOriginPatterns,
		Catalog:        cat,
		Logger:         logger.Named("feed"),
	})

	errCh := make(chan error, 2)
	go func() { errCh <- api.ListenAndServe(cfg.ListenAddr) }()
	go func() { errCh <- feed.ListenAndServe(cfg.EventsAddr) }()
	logger.Info("battleship_node_start",
		zap.String("listen", cfg.ListenAddr),
		zap.String("events", cfg.EventsAddr),
		zap.String("rules", book.Name),
		zap.Int("board_size", book.BoardSize),
		zap.Duration("game_ttl", cfg.GameTTL),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("battleship_node_stop", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("listener failed", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := api.Shutdown(ctx); err != nil {
		logger.Warn("api shutdown", zap.Error(err))
	}
	if err := feed.Shutdown(ctx); err != nil {
		logger.Warn("feed shutdown", zap.Error(err))
	}
}
