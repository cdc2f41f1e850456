// Package transport implements the UDP-over-loopback adapter: binding to
// the uid-derived port range, the candidate endpoint set that range
// implies, and a nonblocking send/receive surface the engine drains from
// its single event loop. The monotonic one-shot and periodic timers the
// engine needs are the standard library's time.Timer and time.Ticker; there
// is nothing domain-specific about a timer that would justify wrapping them.
package transport

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"
)

// Datagram is one inbound packet paired with the endpoint it arrived from.
type Datagram struct {
	Data []byte
	From string
}

// UDP is the transport adapter bound to one port in the uid-derived range.
type UDP struct {
	conn       *net.UDPConn
	localAddr  string
	candidates []string
	inbox      chan Datagram
	logger     *zap.Logger
}

// Bind tries each port in the uid-derived range in turn and binds the
// first one that is free. The returned adapter records the candidate
// endpoints (the other ports in the range, as loopback addresses), which
// Candidates reports.
// Failing to bind any port in the range is fatal to the caller by design;
// Bind only reports the error, the caller decides how to die.
func Bind(uid int, logger *zap.Logger) (*UDP, error) {
	ports := PortRange(uid)

	var conn *net.UDPConn
	var bound int
	var lastErr error
	for _, p := range ports {
		addr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: p}
		c, err := net.ListenUDP("udp4", addr)
		if err != nil {
			lastErr = err
			continue
		}
		conn, bound = c, p
		break
	}
	if conn == nil {
		return nil, fmt.Errorf("transport: no free port in range %v: %w", ports, lastErr)
	}

	candidates := make([]string, 0, len(ports)-1)
	for _, p := range CandidatePorts(ports, bound) {
		candidates = append(candidates, loopbackAddr(p))
	}

	logger.Info("bound udp socket", zap.Int("port", bound), zap.Strings("candidates", candidates))

	return &UDP{
		conn:       conn,
		localAddr:  loopbackAddr(bound),
		candidates: candidates,
		inbox:      make(chan Datagram, 64),
		logger:     logger,
	}, nil
}

func loopbackAddr(port int) string {
	return fmt.Sprintf("127.0.0.1:%d", port)
}

// LocalAddr returns the endpoint this adapter is bound to.
func (t *UDP) LocalAddr() string {
	return t.localAddr
}

// Candidates returns the other ports in the uid-derived range, as loopback
// endpoints, regardless of whether any peer is actually listening there.
func (t *UDP) Candidates() []string {
	return append([]string(nil), t.candidates...)
}

// Inbox is the channel the engine drains inbound datagrams from.
func (t *UDP) Inbox() <-chan Datagram {
	return t.inbox
}

// Run starts the receive loop in its own goroutine and returns immediately.
// It stops when ctx is done or the socket is closed.
func (t *UDP) Run(ctx context.Context) {
	go func() {
		buf := make([]byte, 65536)
		for {
			n, addr, err := t.conn.ReadFromUDP(buf)
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
					t.logger.Debug("udp read failed", zap.Error(err))
					return
				}
			}

			data := make([]byte, n)
			copy(data, buf[:n])

			select {
			case t.inbox <- Datagram{Data: data, From: addr.String()}:
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Send writes data to the given endpoint. Failures are logged and
// swallowed: the caller relies on anti-entropy and hot-rumor resends to
// recover rather than retrying a failed send itself.
func (t *UDP) Send(to string, data []byte) {
	addr, err := net.ResolveUDPAddr("udp4", to)
	if err != nil {
		t.logger.Warn("invalid peer address", zap.String("to", to), zap.Error(err))
		return
	}

	n, err := t.conn.WriteToUDP(data, addr)
	if err != nil {
		t.logger.Debug("send failed", zap.String("to", to), zap.Error(err))
		return
	}
	if n != len(data) {
		t.logger.Debug("short write", zap.String("to", to), zap.Int("wrote", n), zap.Int("want", len(data)))
	}
}

// Close releases the underlying socket.
func (t *UDP) Close() error {
	return t.conn.Close()
}
