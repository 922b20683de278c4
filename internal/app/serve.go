package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Hemesh11/autotasker/internal/gateway"
	"github.com/Hemesh11/autotasker/internal/observability"
)

const heartbeatInterval = 30 * time.Second

// Serve runs the scheduler and, when configured, the Telegram gateway until
// ctx is done.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var messenger gateway.Messenger
	if tg, ok := a.Config.GetTelegramConfig(); ok {
		gw, err := gateway.NewTelegramGateway(tg.Token, tg.ChatID, tg.AllowedChats, a)
		if err != nil {
			return fmt.Errorf("failed to start telegram gateway: %w", err)
		}
		if tg.ChatID != 0 {
			a.Notifier.Add("telegram", gw)
		}
		messenger = gw
	}
	log.Printf("[app] delivery channels: %v", a.Notifier.Channels())

	if err := a.Scheduler.Start(ctx); err != nil {
		return err
	}
	defer a.Scheduler.Stop()

	if messenger != nil {
		go func() {
			if err := messenger.Start(ctx); err != nil {
				log.Printf("[app] telegram gateway stopped: %v", err)
				cancel()
			}
		}()
		defer messenger.Stop()
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			observability.Heartbeat()
			a.Events.LogHeartbeat()
		}
	}
}
