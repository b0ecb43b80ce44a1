package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

const (
	// MethodICMP sends echo requests from a raw socket (needs root).
	MethodICMP = "icmp"
	// MethodExec runs the system ping binary.
	MethodExec = "exec"

	protocolICMP = 1
)

var echoPayload = []byte("relayblock-probe")

// ICMPPinger sends ICMP echo requests over a raw IPv4 socket. Each Ping
// opens its own socket and filters replies by peer, identifier and sequence,
// so concurrent pings do not steal each other's replies.
type ICMPPinger struct {
	next atomic.Uint32
}

func NewICMPPinger() *ICMPPinger {
	p := &ICMPPinger{}
	p.next.Store(uint32(os.Getpid()))
	return p
}

func (p *ICMPPinger) Ping(ctx context.Context, addr string, count int, timeout time.Duration) ([]time.Duration, error) {
	dst, err := net.ResolveIPAddr("ip4", addr)
	if err != nil {
		return nil, err
	}

	conn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		return nil, fmt.Errorf("open icmp socket: %w", err)
	}
	defer conn.Close()

	id := int(p.next.Add(1) & 0xffff)
	buf := make([]byte, 1500)
	var rtts []time.Duration

	for seq := 0; seq < count; seq++ {
		if err := ctx.Err(); err != nil {
			return rtts, nil
		}

		msg := icmp.Message{
			Type: ipv4.ICMPTypeEcho,
			Code: 0,
			Body: &icmp.Echo{ID: id, Seq: seq, Data: echoPayload},
		}
		wb, err := msg.Marshal(nil)
		if err != nil {
			return rtts, err
		}

		start := time.Now()
		if _, err := conn.WriteTo(wb, dst); err != nil {
			return rtts, fmt.Errorf("send echo to %s: %w", addr, err)
		}

		deadline := start.Add(timeout)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		if err := conn.SetReadDeadline(deadline); err != nil {
			return rtts, err
		}

		rtt, ok, err := awaitEchoReply(conn, buf, dst, id, seq, start)
		if err != nil {
			return rtts, err
		}
		if ok {
			rtts = append(rtts, rtt)
		}
	}
	return rtts, nil
}

// awaitEchoReply reads until the matching reply arrives or the read
// deadline passes. A deadline is not an error.
func awaitEchoReply(conn *icmp.PacketConn, buf []byte, dst *net.IPAddr, id, seq int, start time.Time) (time.Duration, bool, error) {
	for {
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return 0, false, nil
			}
			return 0, false, fmt.Errorf("read echo reply: %w", err)
		}
		if peerIP, ok := peer.(*net.IPAddr); !ok || !peerIP.IP.Equal(dst.IP) {
			continue
		}

		reply, err := icmp.ParseMessage(protocolICMP, buf[:n])
		if err != nil || reply.Type != ipv4.ICMPTypeEchoReply {
			continue
		}
		echo, ok := reply.Body.(*icmp.Echo)
		if !ok || echo.ID != id || echo.Seq != seq {
			continue
		}
		return time.Since(start), true, nil
	}
}
