package main

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/annel0/lerocia/internal/network"
	"github.com/annel0/lerocia/internal/protocol"
	"github.com/xtaci/kcp-go/v5"
)

type playOptions struct {
	KCPAddr     string
	UDPAddr     string
	Name        string
	CharacterID int
}

// play подключается, представляется и пересылает строки stdin серверу.
// Строки с префиксом "udp " уходят по ненадёжному каналу.
func play(opts playOptions) error {
	sess, err := kcp.DialWithOptions(opts.KCPAddr, nil, 0, 0)
	if err != nil {
		return fmt.Errorf("kcp dial: %w", err)
	}
	defer sess.Close()
	sess.SetStreamMode(true)
	sess.SetWriteDelay(false)
	sess.SetNoDelay(1, 20, 2, 1)

	codec, err := network.NewCodec(0)
	if err != nil {
		return err
	}
	defer codec.Close()
	reader := bufio.NewReader(sess)

	_ = sess.SetReadDeadline(time.Now().Add(5 * time.Second))
	greeting, err := codec.ReadFrame(reader)
	if err != nil {
		return fmt.Errorf("ожидание ASKNAME: %w", err)
	}
	fmt.Println("<", greeting)
	msg, err := protocol.Split(greeting)
	if err != nil || msg.Command != protocol.CmdAskName || len(msg.Args) == 0 {
		return fmt.Errorf("неожиданное приветствие %q", greeting)
	}
	connID := msg.Args[0]
	_ = sess.SetReadDeadline(time.Time{})

	if _, err := sess.Write(codec.Encode(protocol.Encode(protocol.CmdNameIs, opts.Name, protocol.Itoa(opts.CharacterID)))); err != nil {
		return err
	}

	var udp *net.UDPConn
	if opts.UDPAddr != "" {
		if udp, err = bindUDP(opts.UDPAddr, connID); err != nil {
			return err
		}
		defer udp.Close()
		go printDatagrams(udp)
	}

	errCh := make(chan error, 1)
	go func() {
		for {
			frame, err := codec.ReadFrame(reader)
			if err != nil {
				errCh <- err
				return
			}
			fmt.Println("<", frame)
		}
	}()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case err := <-errCh:
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("соединение закрыто: %w", err)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if rest, isUDP := strings.CutPrefix(line, "udp "); isUDP && udp != nil {
				_, err = udp.Write([]byte(rest))
			} else {
				_, err = sess.Write(codec.Encode(line))
			}
			if err != nil {
				return err
			}
		}
	}
}

func bindUDP(addr, connID string) (*net.UDPConn, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("udp dial: %w", err)
	}
	if _, err := conn.Write([]byte(protocol.Encode(protocol.CmdBind, connID))); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func printDatagrams(conn *net.UDPConn) {
	buf := make([]byte, 64*1024)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		fmt.Println("<udp", string(buf[:n]))
	}
}
