package network

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/lerocia/internal/game"
	"github.com/annel0/lerocia/internal/logging"
	"github.com/annel0/lerocia/internal/session"
	"github.com/xtaci/kcp-go/v5"
)

const (
	// idleTimeout молчащий клиент отключается
	idleTimeout = 30 * time.Second
	sendBuffer  = 256
)

// ReliableOptions настройки надёжного канала
type ReliableOptions struct {
	MaxConnections int
	Codec          *Codec
	Observer       Observer
	// OnClose вызывается при закрытии сессии до события отключения
	OnClose func(conn session.ConnID)
}

// client KCP сессия одного клиента
type client struct {
	id   session.ConnID
	conn *kcp.UDPSession
	out  chan []byte
	quit chan struct{}
	once sync.Once
}

// ReliableServer принимает KCP сессии и передаёт кадры в Sink
type ReliableServer struct {
	addr     string
	opts     ReliableOptions
	sink     Sink
	listener *kcp.Listener
	logger   *logging.Logger

	nextID  atomic.Uint32
	mu      sync.RWMutex
	clients map[session.ConnID]*client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReliableServer создаёт сервер; Start начинает приём
func NewReliableServer(addr string, sink Sink, opts ReliableOptions) *ReliableServer {
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &ReliableServer{
		addr:    addr,
		opts:    opts,
		sink:    sink,
		clients: make(map[session.ConnID]*client),
		logger:  logging.GetNetworkLogger(),
	}
}

// Start открывает KCP слушатель
func (s *ReliableServer) Start() error {
	listener, err := kcp.ListenWithOptions(s.addr, nil, 0, 0)
	if err != nil {
		return fmt.Errorf("kcp listen %s: %w", s.addr, err)
	}
	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(1)
	go s.acceptLoop()
	s.logger.Info("KCP сервер слушает %s", listener.Addr())
	return nil
}

// Addr фактический адрес слушателя
func (s *ReliableServer) Addr() net.Addr {
	return s.listener.Addr()
}

// Stop закрывает слушатель и все сессии
func (s *ReliableServer) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	_ = s.listener.Close()

	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()
	for _, c := range clients {
		s.drop(c)
	}
	s.wg.Wait()
	s.logger.Info("KCP сервер остановлен")
}

func (s *ReliableServer) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.AcceptKCP()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			s.logger.Error("Ошибка приёма KCP: %v", err)
			continue
		}
		if s.opts.MaxConnections > 0 && s.Count() >= s.opts.MaxConnections {
			s.logger.Warn("Отклонено соединение %s: достигнут лимит %d", conn.RemoteAddr(), s.opts.MaxConnections)
			s.opts.Observer.ConnectionRejected()
			_ = conn.Close()
			continue
		}

		// Настройки для игрового трафика
		conn.SetStreamMode(true)
		conn.SetWriteDelay(false)
		conn.SetNoDelay(1, 20, 2, 1)
		conn.SetWindowSize(512, 512)
		conn.SetMtu(1400)

		c := &client{
			id:   session.ConnID(s.nextID.Add(1)),
			conn: conn,
			out:  make(chan []byte, sendBuffer),
			quit: make(chan struct{}),
		}
		s.mu.Lock()
		s.clients[c.id] = c
		s.mu.Unlock()

		s.logger.Info("KCP клиент %d подключен: %s", c.id, conn.RemoteAddr())
		s.sink.Submit(game.Event{Kind: game.EventConnect, Conn: c.id})

		s.wg.Add(2)
		go s.readLoop(c)
		go s.writeLoop(c)
	}
}

func (s *ReliableServer) readLoop(c *client) {
	defer s.wg.Done()
	defer s.drop(c)

	r := bufio.NewReader(c.conn)
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
		msg, err := s.opts.Codec.ReadFrame(r)
		if err != nil {
			var ne net.Error
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			case errors.As(err, &ne) && ne.Timeout():
				s.logger.Warn("KCP клиент %d: таймаут простоя", c.id)
			default:
				s.logger.Warn("KCP клиент %d: %v", c.id, err)
			}
			return
		}
		s.opts.Observer.ObserveFrame(ChannelReliable, "in", len(msg))
		s.sink.Submit(game.Event{Kind: game.EventMessage, Conn: c.id, Payload: msg})
	}
}

func (s *ReliableServer) writeLoop(c *client) {
	defer s.wg.Done()
	for {
		select {
		case frame := <-c.out:
			if _, err := c.conn.Write(frame); err != nil {
				s.logger.Warn("KCP клиент %d: запись: %v", c.id, err)
				s.drop(c)
				return
			}
			s.opts.Observer.ObserveFrame(ChannelReliable, "out", len(frame))
		case <-c.quit:
			return
		}
	}
}

// drop закрывает сессию и ровно один раз сообщает об отключении
func (s *ReliableServer) drop(c *client) {
	c.once.Do(func() {
		close(c.quit)
		_ = c.conn.Close()
		s.mu.Lock()
		delete(s.clients, c.id)
		s.mu.Unlock()
		s.logger.Info("KCP клиент %d отключен", c.id)
		if s.opts.OnClose != nil {
			s.opts.OnClose(c.id)
		}
		s.sink.Submit(game.Event{Kind: game.EventDisconnect, Conn: c.id})
	})
}

// Send ставит сообщение в очередь сессии. Переполненная очередь означает
// отстающего клиента; такая сессия закрывается, порядок сообщений не нарушается.
func (s *ReliableServer) Send(conn session.ConnID, msg string) {
	s.mu.RLock()
	c, ok := s.clients[conn]
	s.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case c.out <- s.opts.Codec.Encode(msg):
	case <-c.quit:
	default:
		s.logger.Warn("KCP клиент %d: очередь отправки переполнена", conn)
		go s.drop(c)
	}
}

// Disconnect закрывает сессию по инициативе сервера
func (s *ReliableServer) Disconnect(conn session.ConnID) {
	s.mu.RLock()
	c, ok := s.clients[conn]
	s.mu.RUnlock()
	if ok {
		s.drop(c)
	}
}

// RemoteIP адрес клиента для проверки привязки ненадёжного канала
func (s *ReliableServer) RemoteIP(conn session.ConnID) (net.IP, bool) {
	s.mu.RLock()
	c, ok := s.clients[conn]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	host, _, err := net.SplitHostPort(c.conn.RemoteAddr().String())
	if err != nil {
		return nil, false
	}
	return net.ParseIP(host), true
}

// Count число открытых сессий
func (s *ReliableServer) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
