package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/config"
	"github.com/sysu-ecnc-dev/tutoring-manager/backend/internal/mailqueue"
	"github.com/wneessen/go-mail"
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
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	/**********************************************
	 * smtp client
	 **********************************************/
	client, err := mail.NewClient(cfg.Email.SMTP.Host,
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithSSL(),
		mail.WithPort(cfg.Email.SMTP.Port),
		mail.WithUsername(cfg.Email.SMTP.Username),
		mail.WithPassword(cfg.Email.SMTP.Password),
		mail.WithTimeout(time.Duration(cfg.Email.SMTP.DialTimeout)*time.Second),
	)
	if err != nil {
		logger.Error("failed to create smtp client", slog.String("error", err.Error()))
		return
	}
	defer client.Close()

	dialCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Email.SMTP.DialTimeout)*time.Second)
	err = checkSMTP(dialCtx, client)
	cancel()
	if err != nil {
		logger.Error("failed to reach smtp server", slog.String("error", err.Error()))
		return
	}

	/**********************************************
	 * rabbitmq
	 **********************************************/
	conn, err := amqp.Dial(cfg.RabbitMQ.DSN)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Error("failed to open channel", slog.String("error", err.Error()))
		return
	}
	defer ch.Close()

	q, err := mailqueue.Declare(ch)
	if err != nil {
		logger.Error("failed to declare queue", slog.String("error", err.Error()))
		return
	}

	// one unacknowledged message at a time
	if err := ch.Qos(1, 0, false); err != nil {
		logger.Error("failed to set qos", slog.String("error", err.Error()))
		return
	}

	msgs, err := ch.Consume(
		q.Name,
		"",    // consumer tag chosen by the broker
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		logger.Error("failed to consume", slog.String("error", err.Error()))
		return
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ctx, stop := context.WithCancel(context.Background())
	wg := sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-msgs:
				if !ok {
					logger.Error("delivery channel closed")
					return
				}
				deliver(ctx, logger, client, cfg.Email.SMTP.Username, delivery)
			}
		}
	}()

	logger.Info("waiting for messages (CTRL+C to quit)")
	<-sigChan

	logger.Info("stopping mail worker")
	stop()
	wg.Wait()
	logger.Info("mail worker stopped")
}

// deliver sends one queued message. Malformed messages are dropped and SMTP
// failures are requeued.
func deliver(ctx context.Context, logger *slog.Logger, client *mail.Client, from string, delivery amqp.Delivery) {
	typ, to, data, err := mailqueue.Decode(delivery.Body)
	if err != nil {
		logger.Error("malformed mail message", slog.String("error", err.Error()))
		_ = delivery.Nack(false, false)
		return
	}

	msg, err := buildMessage(from, typ, to, data)
	if err != nil {
		logger.Error("failed to build mail", slog.String("type", typ), slog.String("error", err.Error()))
		_ = delivery.Nack(false, false)
		return
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		logger.Error("failed to send mail", slog.String("type", typ), slog.String("to", to), slog.String("error", err.Error()))
		_ = delivery.Nack(false, true)
		return
	}

	logger.Info("mail sent", slog.String("type", typ), slog.String("to", to))
	_ = delivery.Ack(false)
}

// checkSMTP dials the server once at startup and hangs up again. Every
// delivery opens its own session.
func checkSMTP(ctx context.Context, client *mail.Client) error {
	if err := client.DialWithContext(ctx); err != nil {
		return err
	}
	return client.Close()
}
