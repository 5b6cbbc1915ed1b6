package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/config"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/handler"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/mailqueue"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/repository"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/seed"
)

func main() {
	/**********************************************
	 * logger
	 **********************************************/
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	/**********************************************
	 * config
	 **********************************************/
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	/**********************************************
	 * database
	 **********************************************/
	dbpool, err := repository.Open(cfg)
	if err != nil {
		logger.Error("failed to connect to database", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()

	repo, err := repository.NewRepository(cfg, dbpool)
	if err != nil {
		logger.Error("failed to create repository", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Database.TransactionTimeout)*time.Second)
	defer cancel()

	if err := repo.Migrate(ctx); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		return
	}

	/**********************************************
	 * initial admin
	 **********************************************/
	admin, created, err := seed.EnsureInitialAdmin(ctx, repo, cfg)
	if err != nil {
		logger.Error("failed to ensure initial admin", "error", err)
		return
	}
	if created {
		logger.Info("initial admin created", "matricula", admin.Matricula, "email", admin.Email)
	}

	/**********************************************
	 * rabbitmq
	 **********************************************/
	conn, err := amqp.Dial(cfg.RabbitMQ.DSN)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		return
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Error("failed to open channel", "error", err)
		return
	}
	defer ch.Close()

	if _, err := mailqueue.Declare(ch); err != nil {
		logger.Error("failed to declare queue", "error", err)
		return
	}

	mailer := mailqueue.NewPublisher(ch, time.Duration(cfg.RabbitMQ.PublishTimeout)*time.Second)

	/**********************************************
	 * redis
	 **********************************************/
	rdb := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password:    cfg.Redis.Password,
		DB:          0,
		DialTimeout: time.Duration(cfg.Redis.ConnectTimeout) * time.Second,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to redis", "error", err)
		return
	}

	/**********************************************
	 * handler
	 **********************************************/
	h, err := handler.NewHandler(cfg, repo, mailer, rdb)
	if err != nil {
		logger.Error("failed to create handler", "error", err)
		return
	}
	h.RegisterRoutes()

	/**********************************************
	 * http server
	 **********************************************/
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      h.Mux,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("starting server", "port", cfg.Server.Port, "driver", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped", slog.String("error", err.Error()))
			quit <- syscall.SIGTERM
		}
	}()

	<-quit
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer shutdownCancel()

	// in-flight registrations finish or roll back before the pool closes
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down server", slog.String("error", err.Error()))
	}
	logger.Info("server stopped")
}
