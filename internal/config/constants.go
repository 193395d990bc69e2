package config

import "time"

// Network defaults
const (
	DefaultPort   = 1618 // real UDP port every node listens on
	VirtualPort   = 4529 // UDP port written into virtual headers by hosts
	DefaultTTL    = 64
	MaxPacketSize = 65535
)

// Node configuration files
const (
	DefaultConfigDir = "config"
	RouterFilePrefix = "router-"
	HostFilePrefix   = "host-"
	NodeFileSuffix   = ".txt"
)

// Route lookup cache
const (
	DefaultRouteCacheSize = 1024
)

// Status server
const (
	DefaultMetricsPath = "/metrics"
	ShutdownTimeout    = 5 * time.Second
	ReadHeaderTimeout  = 5 * time.Second
)

// Environment variable prefix for settings overrides (VNET_LOG_LEVEL, ...).
const EnvPrefix = "VNET"
