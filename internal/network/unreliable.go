package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/annel0/lerocia/internal/game"
	"github.com/annel0/lerocia/internal/logging"
	"github.com/annel0/lerocia/internal/protocol"
	"github.com/annel0/lerocia/internal/session"
)

var (
	ErrBindUnknownConn  = errors.New("привязка к неизвестному соединению")
	ErrBindAddrMismatch = errors.New("адрес UDP не совпадает с адресом KCP сессии")
)

// IPResolver возвращает IP надёжной сессии соединения
type IPResolver interface {
	RemoteIP(conn session.ConnID) (net.IP, bool)
}

// UnreliableServer UDP канал для кадров положений.
// Клиент привязывает свой UDP адрес командой BIND|connId.
type UnreliableServer struct {
	addr     string
	conn     *net.UDPConn
	sink     Sink
	resolver IPResolver
	observer Observer
	logger   *logging.Logger

	mu     sync.RWMutex
	byConn map[session.ConnID]*net.UDPAddr
	byAddr map[string]session.ConnID

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewUnreliableServer создаёт UDP сервер
func NewUnreliableServer(addr string, sink Sink, resolver IPResolver, observer Observer) *UnreliableServer {
	if observer == nil {
		observer = nopObserver{}
	}
	return &UnreliableServer{
		addr:     addr,
		sink:     sink,
		resolver: resolver,
		observer: observer,
		logger:   logging.GetNetworkLogger(),
		byConn:   make(map[session.ConnID]*net.UDPAddr),
		byAddr:   make(map[string]session.ConnID),
	}
}

// Start открывает UDP сокет
func (s *UnreliableServer) Start() error {
	udpAddr, err := net.ResolveUDPAddr("udp", s.addr)
	if err != nil {
		return fmt.Errorf("udp resolve %s: %w", s.addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("udp listen %s: %w", s.addr, err)
	}
	s.conn = conn
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(1)
	go s.receiveLoop()
	s.logger.Info("UDP сервер слушает %s", conn.LocalAddr())
	return nil
}

// Addr фактический адрес сокета
func (s *UnreliableServer) Addr() net.Addr {
	return s.conn.LocalAddr()
}

// Stop закрывает сокет
func (s *UnreliableServer) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	_ = s.conn.Close()
	s.wg.Wait()
}

func (s *UnreliableServer) receiveLoop() {
	defer s.wg.Done()
	buffer := make([]byte, 2048)
	for {
		// Таймаут чтения, чтобы можно было проверять контекст
		_ = s.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, addr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			s.logger.Warn("Ошибка чтения UDP: %v", err)
			continue
		}
		s.observer.ObserveFrame(ChannelUnreliable, "in", n)
		s.handlePacket(string(buffer[:n]), addr)
	}
}

func (s *UnreliableServer) handlePacket(raw string, addr *net.UDPAddr) {
	cmd, err := protocol.Decode(raw)
	if err == nil {
		if b, ok := cmd.(protocol.Bind); ok {
			if err := s.Bind(session.ConnID(b.ConnID), addr); err != nil {
				s.logger.Warn("UDP %s: %v", addr, err)
			}
			return
		}
	}

	s.mu.RLock()
	conn, bound := s.byAddr[addr.String()]
	s.mu.RUnlock()
	if !bound {
		s.logger.Debug("UDP датаграмма от непривязанного адреса %s отброшена", addr)
		return
	}
	// Потеря кадра положения допустима
	if !s.sink.TrySubmit(game.Event{Kind: game.EventMessage, Conn: conn, Payload: raw}) {
		s.logger.Debug("UDP кадр соединения %d отброшен: очередь тика полна", conn)
	}
}

// Bind привязывает UDP адрес к соединению, если IP совпадает с KCP сессией
func (s *UnreliableServer) Bind(conn session.ConnID, addr *net.UDPAddr) error {
	ip, ok := s.resolver.RemoteIP(conn)
	if !ok {
		return fmt.Errorf("%w: %d", ErrBindUnknownConn, conn)
	}
	if !ip.Equal(addr.IP) {
		return fmt.Errorf("%w: %s != %s", ErrBindAddrMismatch, addr.IP, ip)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byConn[conn]; ok {
		delete(s.byAddr, old.String())
	}
	// Адрес мог принадлежать другому соединению
	if prev, ok := s.byAddr[addr.String()]; ok && prev != conn {
		delete(s.byConn, prev)
	}
	s.byConn[conn] = addr
	s.byAddr[addr.String()] = conn
	s.logger.Debug("UDP %s привязан к соединению %d", addr, conn)
	return nil
}

// Unbind забывает адрес соединения
func (s *UnreliableServer) Unbind(conn session.ConnID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if addr, ok := s.byConn[conn]; ok {
		delete(s.byAddr, addr.String())
		delete(s.byConn, conn)
	}
}

// Send отправляет датаграмму, если у соединения есть привязанный адрес
func (s *UnreliableServer) Send(conn session.ConnID, msg string) bool {
	s.mu.RLock()
	addr, ok := s.byConn[conn]
	s.mu.RUnlock()
	if !ok || s.conn == nil {
		return false
	}
	n, err := s.conn.WriteToUDP([]byte(msg), addr)
	if err != nil {
		s.logger.Debug("UDP запись соединению %d: %v", conn, err)
		return false
	}
	s.observer.ObserveFrame(ChannelUnreliable, "out", n)
	return true
}
