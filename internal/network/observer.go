package network

import "github.com/annel0/lerocia/internal/game"

// Sink принимает события транспорта. Реализуется game.World.
type Sink interface {
	Submit(ev game.Event)
	TrySubmit(ev game.Event) bool
}

// Observer учёт трафика
type Observer interface {
	ObserveFrame(channel, direction string, size int)
	ConnectionRejected()
}

type nopObserver struct{}

func (nopObserver) ObserveFrame(string, string, int) {}
func (nopObserver) ConnectionRejected()              {}

// Имена каналов для метрик
const (
	ChannelReliable   = "kcp"
	ChannelUnreliable = "udp"
)
