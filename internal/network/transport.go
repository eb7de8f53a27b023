package network

import (
	"fmt"

	"github.com/annel0/lerocia/internal/config"
	"github.com/annel0/lerocia/internal/session"
)

// Transport объединяет два канала и реализует game.Broadcaster
type Transport struct {
	codec      *Codec
	Reliable   *ReliableServer
	Unreliable *UnreliableServer
}

// NewTransport создаёт оба канала по настройкам сервера
func NewTransport(cfg config.ServerConfig, sink Sink, observer Observer) (*Transport, error) {
	codec, err := NewCodec(cfg.CompressThreshold)
	if err != nil {
		return nil, err
	}
	t := &Transport{codec: codec}
	t.Reliable = NewReliableServer(fmt.Sprintf(":%d", cfg.KCPPort), sink, ReliableOptions{
		MaxConnections: cfg.MaxConnections,
		Codec:          codec,
		Observer:       observer,
		OnClose:        func(conn session.ConnID) { t.Unreliable.Unbind(conn) },
	})
	t.Unreliable = NewUnreliableServer(fmt.Sprintf(":%d", cfg.UDPPort), sink, t.Reliable, observer)
	return t, nil
}

// Start запускает оба канала
func (t *Transport) Start() error {
	if err := t.Reliable.Start(); err != nil {
		return err
	}
	if err := t.Unreliable.Start(); err != nil {
		t.Reliable.Stop()
		return err
	}
	return nil
}

// Stop останавливает каналы. Отключения успевают попасть в очередь тика.
func (t *Transport) Stop() {
	t.Reliable.Stop()
	t.Unreliable.Stop()
	t.codec.Close()
}

func (t *Transport) SendReliable(conn session.ConnID, msg string) {
	t.Reliable.Send(conn, msg)
}

// SendUnreliable без привязанного UDP адреса сообщение отбрасывается
func (t *Transport) SendUnreliable(conn session.ConnID, msg string) {
	t.Unreliable.Send(conn, msg)
}
