package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/CoolE88/observatory/internal/auth"
	appgrpc "github.com/CoolE88/observatory/internal/grpc"
	apphttp "github.com/CoolE88/observatory/internal/http"
	"github.com/CoolE88/observatory/internal/service"
	"github.com/CoolE88/observatory/internal/timefilter"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the HTTP and gRPC servers",
		Action: serve,
	}
}

func serve(ctx context.Context, _ *cli.Command) error {
	env, err := newEnvironment()
	if err != nil {
		return err
	}
	defer env.close()
	cfg, logger := env.cfg, env.logger

	logger.Info("Starting Observatory", zap.String("version", version))

	// Ожидание сигнала завершения
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	// Инициализация репозитория
	repo, err := env.openRepository(ctx)
	if err != nil {
		return err
	}
	defer func() {
		repo.Close()
		logger.Info("Database connection closed")
	}()

	// Инициализация сервисов
	resolver := timefilter.NewResolver(loc, time.Now)
	dataService := service.NewDataService(repo, resolver, cfg.QueryConfig.DefaultLimit, cfg.QueryConfig.WeightBucket, logger)
	emitterService := service.NewEmitterService(repo, logger)
	authenticator := auth.NewAuthenticator(cfg.AuthConfig, emitterService, logger)

	httpServer := apphttp.NewHTTPServer(cfg.RESTPort, dataService, emitterService, authenticator, logger)
	grpcServer := appgrpc.NewGRPCServer(dataService, authenticator, logger)

	g, gctx := errgroup.WithContext(ctx)

	// Запуск HTTP сервера
	g.Go(func() error {
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", zap.Error(err))
			return err
		}
		return nil
	})

	// Запуск GRPC сервера
	g.Go(func() error {
		if err := grpcServer.Start(cfg.GRPCPort); err != nil {
			logger.Error("gRPC server failed", zap.Error(err))
			return err
		}
		return nil
	})

	// Graceful shutdown по сигналу или падению одного из серверов
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Останавливаем HTTP сервер
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown failed", zap.Error(err))
		}

		// Останавливаем GRPC сервер
		if err := grpcServer.Shutdown(shutdownCtx); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				logger.Warn("gRPC server shutdown due to timeout")
			} else {
				logger.Error("gRPC server shutdown failed", zap.Error(err))
			}
		}
		return nil
	})

	err = g.Wait()
	logger.Info("Observatory stopped")
	return err
}
