package network

import (
	"bytes"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/annel0/lerocia/internal/game"
	"github.com/annel0/lerocia/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtaci/kcp-go/v5"
)

type chanSink struct {
	events chan game.Event
}

func newChanSink() *chanSink {
	return &chanSink{events: make(chan game.Event, 64)}
}

func (s *chanSink) Submit(ev game.Event) { s.events <- ev }

func (s *chanSink) TrySubmit(ev game.Event) bool {
	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}

func (s *chanSink) next(t *testing.T) game.Event {
	t.Helper()
	select {
	case ev := <-s.events:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("нет события транспорта")
		return game.Event{}
	}
}

type staticResolver map[session.ConnID]net.IP

func (r staticResolver) RemoteIP(conn session.ConnID) (net.IP, bool) {
	ip, ok := r[conn]
	return ip, ok
}

func TestCodecRoundTrip(t *testing.T) {
	codec, err := NewCodec(64)
	require.NoError(t, err)
	defer codec.Close()

	short := "HIT|1|2"
	long := "ITEMS|" + strings.Repeat("1%7%0%0%0;", 100)

	var buf bytes.Buffer
	buf.Write(codec.Encode(short))
	frame := codec.Encode(long)
	assert.Equal(t, flagZstd, frame[4])
	assert.Less(t, len(frame), len(long))
	buf.Write(frame)

	got, err := codec.ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, short, got)
	got, err = codec.ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, long, got)
}

func TestCodecWithoutCompression(t *testing.T) {
	codec, err := NewCodec(0)
	require.NoError(t, err)
	defer codec.Close()

	frame := codec.Encode(strings.Repeat("x", 5000))
	assert.Equal(t, flagPlain, frame[4])
	assert.Equal(t, []byte{0x89, 0x13, 0, 0}, frame[:4])
}

func TestCodecRejectsBadFrames(t *testing.T) {
	codec, err := NewCodec(0)
	require.NoError(t, err)
	defer codec.Close()

	_, err = codec.ReadFrame(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0x7f, 0}))
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	_, err = codec.ReadFrame(bytes.NewReader([]byte{2, 0, 0, 0, 9, 'x'}))
	assert.ErrorIs(t, err, ErrUnknownFlag)
}

func TestBindRequiresMatchingIP(t *testing.T) {
	sink := newChanSink()
	s := NewUnreliableServer("127.0.0.1:0", sink, staticResolver{7: net.ParseIP("10.0.0.5")}, nil)

	err := s.Bind(7, &net.UDPAddr{IP: net.ParseIP("10.0.0.6"), Port: 4000})
	assert.ErrorIs(t, err, ErrBindAddrMismatch)
	err = s.Bind(8, &net.UDPAddr{IP: net.ParseIP("10.0.0.5"), Port: 4000})
	assert.ErrorIs(t, err, ErrBindUnknownConn)

	addr := &net.UDPAddr{IP: net.ParseIP("10.0.0.5"), Port: 4000}
	require.NoError(t, s.Bind(7, addr))

	s.handlePacket("MYPOSITION|1|2|3|1|0|0|0|0", addr)
	ev := sink.next(t)
	assert.Equal(t, game.EventMessage, ev.Kind)
	assert.Equal(t, session.ConnID(7), ev.Conn)

	s.Unbind(7)
	s.handlePacket("MYPOSITION|1|2|3|1|0|0|0|0", addr)
	assert.Empty(t, sink.events)
}

func TestRebindMovesAddress(t *testing.T) {
	ip := net.ParseIP("10.0.0.5")
	s := NewUnreliableServer("127.0.0.1:0", newChanSink(), staticResolver{7: ip, 9: ip}, nil)
	addr := &net.UDPAddr{IP: ip, Port: 4000}

	require.NoError(t, s.Bind(7, addr))
	require.NoError(t, s.Bind(9, addr))

	_, old := s.byConn[7]
	assert.False(t, old, "старое соединение не должно получать кадры нового")
	assert.Equal(t, addr, s.byConn[9])
	assert.Equal(t, session.ConnID(9), s.byAddr[addr.String()])

	s.Unbind(9)
	assert.Empty(t, s.byConn)
	assert.Empty(t, s.byAddr)
}

func TestBindOverUDP(t *testing.T) {
	sink := newChanSink()
	s := NewUnreliableServer("127.0.0.1:0", sink, staticResolver{3: net.ParseIP("127.0.0.1")}, nil)
	require.NoError(t, s.Start())
	defer s.Stop()

	client, err := net.DialUDP("udp", nil, s.Addr().(*net.UDPAddr))
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Write([]byte("BIND|3"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.Send(3, "ASKPOSITION|") }, 2*time.Second, 10*time.Millisecond)

	buf := make([]byte, 64)
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, err := client.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ASKPOSITION|", string(buf[:n]))
}

func TestReliableServerSession(t *testing.T) {
	codec, err := NewCodec(16)
	require.NoError(t, err)
	defer codec.Close()

	sink := newChanSink()
	s := NewReliableServer("127.0.0.1:0", sink, ReliableOptions{MaxConnections: 4, Codec: codec})
	require.NoError(t, s.Start())
	defer s.Stop()

	conn, err := kcp.DialWithOptions(s.Addr().String(), nil, 0, 0)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetStreamMode(true)

	_, err = conn.Write(codec.Encode("NAMEIS|alice|10"))
	require.NoError(t, err)

	ev := sink.next(t)
	require.Equal(t, game.EventConnect, ev.Kind)
	id := ev.Conn
	ev = sink.next(t)
	assert.Equal(t, game.EventMessage, ev.Kind)
	assert.Equal(t, id, ev.Conn)
	assert.Equal(t, "NAMEIS|alice|10", ev.Payload)

	ip, ok := s.RemoteIP(id)
	require.True(t, ok)
	assert.True(t, ip.Equal(net.ParseIP("127.0.0.1")))

	reply := "ITEMS|" + strings.Repeat("1%7%0%0%0;", 10)
	s.Send(id, reply)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	got, err := codec.ReadFrame(conn)
	require.NoError(t, err)
	assert.Equal(t, reply, got)

	s.Disconnect(id)
	ev = sink.next(t)
	assert.Equal(t, game.EventDisconnect, ev.Kind)
	assert.Equal(t, id, ev.Conn)
	assert.Zero(t, s.Count())
}
