package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/lerocia/internal/eventbus"
)

// tailEvents печатает доменные события из JetStream до Ctrl+C
func tailEvents(natsURL, stream string, types []string) error {
	bus, err := eventbus.NewJetStreamBus(natsURL, stream, 24*time.Hour)
	if err != nil {
		return err
	}
	defer bus.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sub, err := bus.Subscribe(ctx, eventbus.Filter{Types: types}, func(_ context.Context, ev *eventbus.Envelope) {
		fmt.Printf("%s %-20s %s\n", ev.Timestamp.Format(time.RFC3339), ev.EventType, ev.Payload)
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	fmt.Printf("Слушаем %s (%s)...\n", stream, natsURL)
	<-ctx.Done()
	return nil
}
