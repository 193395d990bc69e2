package host

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"

	"virtual-router/internal/config"
	"virtual-router/internal/packet"
	"virtual-router/internal/transport"
)

var ErrNotIPv4 = errors.New("host: destination is not an IPv4 address")

// PacketError is a datagram that arrived but could not be decoded or failed
// its checksums. The transport itself is still healthy.
type PacketError struct {
	Err error
}

func (e *PacketError) Error() string {
	return "host: bad packet: " + e.Err.Error()
}

func (e *PacketError) Unwrap() error {
	return e.Err
}

func isPacketError(err error) bool {
	var pe *PacketError
	return errors.As(err, &pe)
}

// Config is a host's place in the two address spaces: Address on the
// virtual network, Gateway as the real UDP endpoint of its router.
type Config struct {
	Address netip.Addr
	Gateway netip.AddrPort
}

type Kind int

const (
	KindText Kind = iota
	KindICMP
	KindOther
)

// Message is one received virtual packet.
type Message struct {
	Kind Kind
	Src  netip.Addr
	Dst  netip.Addr
	TTL  uint8
	Text string

	ICMPType uint8
	ICMPCode uint8
	// OrigDst is the destination of the packet an ICMP error refers to.
	OrigDst netip.Addr
}

func (m Message) String() string {
	switch m.Kind {
	case KindText:
		return fmt.Sprintf("%s: %s", m.Src, m.Text)
	case KindICMP:
		s := fmt.Sprintf("%s: %s (code %d)", m.Src, ipv4.ICMPType(m.ICMPType), m.ICMPCode)
		if m.OrigDst.IsValid() {
			s += " for " + m.OrigDst.String()
		}
		return s
	}
	return fmt.Sprintf("%s: unsupported packet", m.Src)
}

type Endpoint struct {
	conn   transport.Conn
	cfg    Config
	logger *log.Entry
	ttl    uint8
	port   uint16
	buf    []byte
}

type Option func(*Endpoint)

func WithLogger(l *log.Entry) Option {
	return func(e *Endpoint) { e.logger = l }
}

// WithTTL sets the TTL of outgoing packets.
func WithTTL(ttl uint8) Option {
	return func(e *Endpoint) { e.ttl = ttl }
}

// WithPort sets the UDP port written into virtual headers.
func WithPort(port uint16) Option {
	return func(e *Endpoint) { e.port = port }
}

func New(conn transport.Conn, cfg Config, opts ...Option) *Endpoint {
	e := &Endpoint{
		conn:   conn,
		cfg:    cfg,
		logger: log.NewEntry(log.StandardLogger()),
		ttl:    config.DefaultTTL,
		port:   config.VirtualPort,
		buf:    make([]byte, config.MaxPacketSize),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Endpoint) Address() netip.Addr {
	return e.cfg.Address
}

// Send wraps msg in a virtual IPv4/UDP packet for dst and hands it to the
// gateway.
func (e *Endpoint) Send(dst netip.Addr, msg []byte) error {
	if !dst.Is4() {
		return ErrNotIPv4
	}
	b, err := packet.BuildUDPPacket(packet.UDPPacketSpec{
		Src:     e.cfg.Address,
		Dst:     dst,
		SrcPort: e.port,
		DstPort: e.port,
		TTL:     e.ttl,
		Data:    msg,
	})
	if err != nil {
		return fmt.Errorf("build packet: %w", err)
	}
	if err := e.conn.WriteTo(b, e.cfg.Gateway); err != nil {
		return fmt.Errorf("send to gateway %s: %w", e.cfg.Gateway, err)
	}
	e.logger.WithFields(log.Fields{"dst": dst.String(), "len": len(msg)}).Debug("sent message")
	return nil
}

// Receive blocks for the next datagram and decodes it. Corrupted packets
// return a *packet.ChecksumError.
func (e *Endpoint) Receive() (Message, error) {
	n, _, err := e.conn.ReadFrom(e.buf)
	if err != nil {
		return Message{}, err
	}
	p, err := packet.Parse(e.buf[:n])
	if err != nil {
		return Message{}, &PacketError{Err: err}
	}
	if err := p.Verify(); err != nil {
		return Message{}, &PacketError{Err: err}
	}

	m := Message{Src: p.IP.Src, Dst: p.IP.Dst, TTL: p.IP.TTL}
	switch {
	case p.UDP != nil:
		m.Kind = KindText
		m.Text = string(p.Data)
	case p.ICMP != nil:
		m.Kind = KindICMP
		m.ICMPType = p.ICMP.Type
		m.ICMPCode = p.ICMP.Code
		if orig, err := packet.DecodeIPv4(p.Data); err == nil {
			m.OrigDst = orig.Dst
		}
	default:
		m.Kind = KindOther
	}
	return m, nil
}

// Listen reports every received message to fn until ctx is cancelled.
// Undecodable packets are logged and skipped.
func (e *Endpoint) Listen(ctx context.Context, fn func(Message)) error {
	stop := context.AfterFunc(ctx, func() { e.conn.Close() })
	defer stop()

	var backoff transport.Backoff
	for {
		m, err := e.Receive()
		switch {
		case err == nil:
			backoff.Reset()
			fn(m)
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, transport.ErrClosed):
			return err
		case isPacketError(err):
			e.logger.WithError(err).Warn("dropped packet")
		default:
			e.logger.WithError(err).WithField("retry_in", backoff.Delay().String()).Warn("receive failed")
			backoff.Wait(ctx)
		}
	}
}
