package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"virtual-router/internal/route"
)

var (
	ErrNoAddress = errors.New("config: no address directive")
	ErrNoGateway = errors.New("config: no gateway directive")
)

// ConfigError is a missing or unusable node configuration. It is fatal at
// startup.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IgnoredLine is a line of a node file that was not understood.
type IgnoredLine struct {
	Line   int
	Text   string
	Reason string
}

// RouterConfig is the content of a router-<n>.txt file.
type RouterConfig struct {
	Addresses []netip.Addr
	Routes    []route.Entry
	Ignored   []IgnoredLine
}

// HostConfig is the content of a host-<n>.txt file. Address is the host's
// virtual address; Gateway is the real endpoint of its router.
type HostConfig struct {
	Address netip.Addr
	Gateway netip.AddrPort
	Ignored []IgnoredLine
}

func RouterPath(dir string, n int) string {
	return filepath.Join(dir, RouterFilePrefix+strconv.Itoa(n)+NodeFileSuffix)
}

func HostPath(dir string, n int) string {
	return filepath.Join(dir, HostFilePrefix+strconv.Itoa(n)+NodeFileSuffix)
}

// LoadRouter reads router-<n>.txt from dir.
func LoadRouter(dir string, n int) (*RouterConfig, error) {
	path := RouterPath(dir, n)
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	defer f.Close()

	cfg, err := ParseRouter(f)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return cfg, nil
}

// ParseRouter reads "address <ipv4>" and "prefix <ipv4>/<bits> <ipv4>[:port]"
// directives. Anything else is ignored. At least one address is required;
// the first one is the router's primary address.
func ParseRouter(r io.Reader) (*RouterConfig, error) {
	cfg := &RouterConfig{}
	err := scanDirectives(r, func(no int, fields []string) string {
		switch fields[0] {
		case "address":
			if len(fields) != 2 {
				return "expected: address <ipv4>"
			}
			a, err := parseAddr4(fields[1])
			if err != nil {
				return err.Error()
			}
			cfg.Addresses = append(cfg.Addresses, a)
		case "prefix":
			if len(fields) != 3 {
				return "expected: prefix <ipv4>/<bits> <next-hop>"
			}
			p, err := route.ParsePrefix(fields[1])
			if err != nil {
				return err.Error()
			}
			hop, err := ParseEndpoint(fields[2])
			if err != nil {
				return err.Error()
			}
			cfg.Routes = append(cfg.Routes, route.Entry{Prefix: p, NextHop: hop})
		default:
			return "unknown directive"
		}
		return ""
	}, &cfg.Ignored)
	if err != nil {
		return nil, err
	}
	if len(cfg.Addresses) == 0 {
		return nil, ErrNoAddress
	}
	return cfg, nil
}

// LoadHost reads host-<n>.txt from dir.
func LoadHost(dir string, n int) (*HostConfig, error) {
	path := HostPath(dir, n)
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	defer f.Close()

	cfg, err := ParseHost(f)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return cfg, nil
}

// ParseHost reads "address <ipv4>" and "gateway <ipv4>[:port]". Later
// directives override earlier ones.
func ParseHost(r io.Reader) (*HostConfig, error) {
	cfg := &HostConfig{}
	err := scanDirectives(r, func(no int, fields []string) string {
		if len(fields) != 2 {
			return "expected: <directive> <value>"
		}
		switch fields[0] {
		case "address":
			a, err := parseAddr4(fields[1])
			if err != nil {
				return err.Error()
			}
			cfg.Address = a
		case "gateway":
			gw, err := ParseEndpoint(fields[1])
			if err != nil {
				return err.Error()
			}
			cfg.Gateway = gw
		default:
			return "unknown directive"
		}
		return ""
	}, &cfg.Ignored)
	if err != nil {
		return nil, err
	}
	if !cfg.Address.IsValid() {
		return nil, ErrNoAddress
	}
	if !cfg.Gateway.IsValid() {
		return nil, ErrNoGateway
	}
	return cfg, nil
}

// scanDirectives calls fn for every non-blank, non-comment line. A
// non-empty return value records the line as ignored with that reason.
func scanDirectives(r io.Reader, fn func(no int, fields []string) string, ignored *[]IgnoredLine) error {
	sc := bufio.NewScanner(r)
	no := 0
	for sc.Scan() {
		no++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if reason := fn(no, strings.Fields(text)); reason != "" {
			*ignored = append(*ignored, IgnoredLine{Line: no, Text: text, Reason: reason})
		}
	}
	return sc.Err()
}

func parseAddr4(s string) (netip.Addr, error) {
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, err
	}
	if !a.Is4() {
		return netip.Addr{}, fmt.Errorf("%s is not an IPv4 address", s)
	}
	return a, nil
}

// ParseEndpoint parses "a.b.c.d" or "a.b.c.d:port". A missing port is
// returned as zero and resolved later with WithDefaultPort.
func ParseEndpoint(s string) (netip.AddrPort, error) {
	if strings.Contains(s, ":") {
		ap, err := netip.ParseAddrPort(s)
		if err != nil {
			return netip.AddrPort{}, err
		}
		if !ap.Addr().Is4() {
			return netip.AddrPort{}, fmt.Errorf("%s is not an IPv4 endpoint", s)
		}
		return ap, nil
	}
	a, err := parseAddr4(s)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return netip.AddrPortFrom(a, 0), nil
}

// WithDefaultPort fills in port when ap has none.
func WithDefaultPort(ap netip.AddrPort, port uint16) netip.AddrPort {
	if ap.Port() != 0 {
		return ap
	}
	return netip.AddrPortFrom(ap.Addr(), port)
}

// Table builds the routing table, giving next hops without an explicit
// port the default one. Duplicate prefixes are returned for logging.
func (c *RouterConfig) Table(defaultPort uint16) (*route.Table, []error) {
	entries := make([]route.Entry, len(c.Routes))
	for i, e := range c.Routes {
		e.NextHop = WithDefaultPort(e.NextHop, defaultPort)
		entries[i] = e
	}
	return route.NewTable(c.Addresses, entries)
}

// LogIgnored reports the lines of a node file that were skipped.
func LogIgnored(l *log.Entry, path string, lines []IgnoredLine) {
	for _, ig := range lines {
		l.WithFields(log.Fields{
			"file":   path,
			"line":   ig.Line,
			"text":   ig.Text,
			"reason": ig.Reason,
		}).Debug("ignored config line")
	}
}
