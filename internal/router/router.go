package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"

	"virtual-router/internal/capture"
	"virtual-router/internal/config"
	"virtual-router/internal/metrics"
	"virtual-router/internal/packet"
	"virtual-router/internal/route"
	"virtual-router/internal/transport"
)

// Routes is the read-only view of the routing state a Router needs.
// Both *route.Table and *route.Cache satisfy it.
type Routes interface {
	Lookup(dst netip.Addr) (route.Entry, bool)
	IsSelf(addr netip.Addr) bool
	Primary() (netip.Addr, bool)
	Entries() []route.Entry
	SelfAddrs() []netip.Addr
}

// Deliverer receives packets addressed to the router itself. The packet
// aliases the receive buffer and is only valid during the call.
type Deliverer func(p *packet.Packet)

type Router struct {
	conn       transport.Conn
	routes     Routes
	logger     *log.Entry
	metrics    *metrics.Metrics
	capture    *capture.Writer
	deliver    Deliverer
	defaultTTL uint8
}

type Option func(*Router)

func WithLogger(l *log.Entry) Option {
	return func(r *Router) { r.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// WithCapture records every received and sent datagram.
func WithCapture(w *capture.Writer) Option {
	return func(r *Router) { r.capture = w }
}

func WithDeliverer(d Deliverer) Option {
	return func(r *Router) { r.deliver = d }
}

// WithDefaultTTL sets the TTL of generated ICMP errors.
func WithDefaultTTL(ttl uint8) Option {
	return func(r *Router) { r.defaultTTL = ttl }
}

func New(conn transport.Conn, routes Routes, opts ...Option) *Router {
	r := &Router{
		conn:       conn,
		routes:     routes,
		logger:     log.NewEntry(log.StandardLogger()),
		defaultTTL: config.DefaultTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = metrics.New()
	}
	if r.deliver == nil {
		r.deliver = r.logDelivery
	}
	return r
}

func (r *Router) Metrics() *metrics.Metrics {
	return r.metrics
}

// Run serves packets until ctx is cancelled. Rejected packets are logged
// and never end the loop; only a closed transport does.
func (r *Router) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { r.conn.Close() })
	defer stop()

	r.logger.WithField("addr", r.conn.LocalAddr().String()).Info("router started")

	var backoff transport.Backoff
	buf := make([]byte, config.MaxPacketSize)
	for {
		n, from, err := r.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				r.logger.Info("router stopped")
				return nil
			}
			if errors.Is(err, transport.ErrClosed) {
				return err
			}
			r.logger.WithError(err).WithField("retry_in", backoff.Delay().String()).Warn("receive failed")
			backoff.Wait(ctx)
			continue
		}
		backoff.Reset()

		if r.debug() {
			r.logger.WithFields(log.Fields{
				"from":   from.String(),
				"packet": capture.Describe(buf[:n]),
			}).Debug("received datagram")
		}
		r.HandlePacket(buf[:n])
	}
}

func (r *Router) debug() bool {
	return r.logger.Logger.IsLevelEnabled(log.DebugLevel)
}

// HandlePacket runs one datagram through validation and the routing
// decision, performing at most one transport send. The datagram may be
// modified in place.
func (r *Router) HandlePacket(b []byte) (Verdict, error) {
	r.metrics.PacketsReceived.Inc()
	r.record(b)

	v, err := r.handle(b)
	r.metrics.Verdicts.WithLabelValues(v.String()).Inc()
	r.report(v, err)
	return v, err
}

func (r *Router) handle(b []byte) (Verdict, error) {
	p, err := packet.Parse(b)
	if err != nil {
		return Dropped, fmt.Errorf("parse: %w", err)
	}
	if err := p.Verify(); err != nil {
		return Dropped, err
	}

	if r.routes.IsSelf(p.IP.Dst) {
		r.deliver(p)
		return Delivered, nil
	}

	entry, ok := r.routes.Lookup(p.IP.Dst)
	if !ok {
		notFound := &RouteNotFoundError{Dst: p.IP.Dst}
		if err := r.sendICMPError(p, packet.ICMPTypeUnreachable, packet.ICMPCodeNetUnreachable); err != nil {
			return Unreachable, errors.Join(notFound, err)
		}
		return Unreachable, notFound
	}

	if p.IP.TTL == 0 {
		expired := &TTLExpiredError{Src: p.IP.Src, Dst: p.IP.Dst}
		if err := r.sendICMPError(p, packet.ICMPTypeTimeExceeded, packet.ICMPCodeTTLExceeded); err != nil {
			return TTLExpired, errors.Join(expired, err)
		}
		return TTLExpired, expired
	}

	if _, err := packet.DecrementTTL(p.Raw); err != nil {
		return Dropped, err
	}
	if err := r.send(p.Raw, entry.NextHop); err != nil {
		return Dropped, err
	}
	if r.debug() {
		r.logger.WithFields(log.Fields{
			"dst":      p.IP.Dst.String(),
			"prefix":   entry.Prefix.String(),
			"next_hop": entry.NextHop.String(),
			"packet":   capture.Describe(p.Raw),
		}).Debug("forwarded packet")
	}
	return Forwarded, nil
}

// sendICMPError reports p back to its source. The error is routed like any
// other packet: towards the next hop for the original source address.
func (r *Router) sendICMPError(p *packet.Packet, typ, code uint8) error {
	if p.ICMP != nil && p.ICMP.IsError() {
		return ErrICMPAboutICMP
	}
	if r.routes.IsSelf(p.IP.Src) {
		return ErrICMPAboutSelf
	}
	src, ok := r.routes.Primary()
	if !ok {
		return ErrNoPrimary
	}
	back, ok := r.routes.Lookup(p.IP.Src)
	if !ok {
		return &RouteNotFoundError{Dst: p.IP.Src}
	}

	msg, err := packet.BuildICMPError(packet.ICMPErrorSpec{
		Src:   src,
		Dst:   p.IP.Src,
		TTL:   r.defaultTTL,
		Type:  typ,
		Code:  code,
		Quote: p.Quote(),
	})
	if err != nil {
		return err
	}
	if err := r.send(msg, back.NextHop); err != nil {
		return err
	}

	r.metrics.ICMPSent.WithLabelValues(ipv4.ICMPType(typ).String()).Inc()
	r.logger.WithFields(log.Fields{
		"type":     ipv4.ICMPType(typ).String(),
		"dst":      p.IP.Src.String(),
		"next_hop": back.NextHop.String(),
		"packet":   capture.Describe(msg),
	}).Info("sent ICMP error")
	return nil
}

func (r *Router) send(b []byte, to netip.AddrPort) error {
	if err := r.conn.WriteTo(b, to); err != nil {
		r.metrics.SendErrors.Inc()
		return fmt.Errorf("send to %s: %w", to, err)
	}
	r.record(b)
	return nil
}

func (r *Router) record(b []byte) {
	if r.capture == nil {
		return
	}
	if err := r.capture.Write(b, time.Now()); err != nil {
		r.logger.WithError(err).Warn("capture failed")
	}
}

func (r *Router) report(v Verdict, err error) {
	entry := r.logger.WithField("verdict", v.String())
	switch {
	case err == nil:
		return
	case v == Dropped:
		entry.WithError(err).Warn("dropped packet")
	default:
		entry.WithError(err).Info("packet not routable")
	}
}

func (r *Router) logDelivery(p *packet.Packet) {
	fields := log.Fields{
		"src": p.IP.Src.String(),
		"dst": p.IP.Dst.String(),
	}
	switch {
	case p.UDP != nil:
		fields["message"] = string(p.Data)
	case p.ICMP != nil:
		fields["icmp"] = ipv4.ICMPType(p.ICMP.Type).String()
		fields["code"] = p.ICMP.Code
	default:
		fields["protocol"] = p.IP.Protocol
	}
	r.logger.WithFields(fields).Info("local delivery")
}

// Banner writes the startup summary: listen address, local addresses and
// the routing table, longest prefixes first.
func (r *Router) Banner(w io.Writer) {
	fmt.Fprintf(w, "-- Router started on %s --\n\n", r.conn.LocalAddr())
	for _, a := range r.routes.SelfAddrs() {
		fmt.Fprintf(w, "local %s\n", a)
	}
	fmt.Fprintf(w, "%18s   %-21s\n", "-Prefixes-", "-Next hop-")
	for _, e := range r.routes.Entries() {
		fmt.Fprintf(w, "%18s -> %-21s\n", e.Prefix, e.NextHop)
	}
}
