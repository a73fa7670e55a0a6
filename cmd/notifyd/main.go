// Command notifyd follows the notification channel the gateway publishes to
// and writes every delivery to the log. It is the reference consumer for
// REDIS_CHANNEL; point a mailer or push bridge at the same channel.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mind-engage/mindengage-obe/internal/config"
	"github.com/mind-engage/mindengage-obe/internal/logger"
	"github.com/mind-engage/mindengage-obe/internal/notify"
)

func main() {
	cfg := config.FromEnv()
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if cfg.RedisAddr == "" {
		log.Fatal("REDIS_ADDR is required")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rd, err := notify.NewRedisDispatcher(cfg.RedisAddr, cfg.RedisChannel, log)
	if err != nil {
		log.Fatal("redis connect failed", "addr", cfg.RedisAddr, "error", err)
	}
	defer rd.Close()

	err = rd.Subscribe(ctx, func(m notify.Message) {
		log.Info("notification",
			"notification_id", m.NotificationID, "alert_id", m.AlertID,
			"user_id", m.UserID, "role", m.Role, "student_id", m.StudentID,
			"alert_type", m.AlertType, "priority", m.Priority, "title", m.Title)
	})
	if err != nil {
		log.Fatal("subscribe failed", "channel", cfg.RedisChannel, "error", err)
	}
	log.Info("following notifications", "addr", cfg.RedisAddr, "channel", cfg.RedisChannel)
	<-ctx.Done()
}
