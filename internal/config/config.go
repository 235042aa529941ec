// Package config loads tinysip's runtime configuration from command-line
// flags, overridable by environment variables, in that precedence order
// (SPEC_FULL.md §4.10).
package config

import (
	"net"
	"os"
	"strconv"
)

// Config holds every tunable named in SPEC_FULL.md §6/§4.10.
type Config struct {
	// SIP transport
	Port        int    // SIP_PORT
	BindAddr    string // interface to bind the UDP socket on
	AdvertiseIP string // SIP_SERVER_IP_ADDRESS, auto-detected if unset

	// Capacity tunables (overridable, default to the values in SPEC_FULL.md §6)
	BufferSize     int
	MaxThreads     int
	QueueCapacity  int
	MaxCalls       int
	RegisterExpiry int // REGISTER_CONTACT_EXPIRES

	// Ambient
	LogLevel      string
	LogFile       string // empty disables file rotation
	DirectoryPath string // empty falls back to directory.Default()

	// Domain (disabled unless set)
	AdminAddr string // empty disables the admin HTTP server
	EventsURL string // empty disables the NATS event publisher
}

// Load parses flags, then applies any matching environment variable
// overrides, then fills in any still-unset advertise address by probing the
// host's interfaces.
func Load(args []string) *Config {
	cfg := Default()

	fs := newFlagSet()
	fs.apply(cfg, args)

	applyEnvOverrides(cfg)

	if cfg.AdvertiseIP == "" {
		cfg.AdvertiseIP = primaryInterfaceIP()
	}

	return cfg
}

// Default returns the built-in defaults named in SPEC_FULL.md §6, before
// flags or environment variables are applied.
func Default() *Config {
	return &Config{
		Port:           5060,
		BindAddr:       "0.0.0.0",
		BufferSize:     1400,
		MaxThreads:     5,
		QueueCapacity:  10,
		MaxCalls:       32,
		RegisterExpiry: 7200,
		LogLevel:       "info",
		DirectoryPath:  "",
		AdminAddr:      "",
		EventsURL:      "",
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TINYSIP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("TINYSIP_BIND"); v != "" {
		cfg.BindAddr = v
	}
	if v := os.Getenv("TINYSIP_ADVERTISE"); v != "" {
		cfg.AdvertiseIP = v
	}
	if v := os.Getenv("TINYSIP_LOGLEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("TINYSIP_LOGFILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("TINYSIP_DIRECTORY"); v != "" {
		cfg.DirectoryPath = v
	}
	if v := os.Getenv("TINYSIP_ADMIN_ADDR"); v != "" {
		cfg.AdminAddr = v
	}
	if v := os.Getenv("TINYSIP_EVENTS_URL"); v != "" {
		cfg.EventsURL = v
	}
	if v := os.Getenv("TINYSIP_MAX_CALLS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxCalls = n
		}
	}
	if v := os.Getenv("TINYSIP_MAX_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxThreads = n
		}
	}
	if v := os.Getenv("TINYSIP_QUEUE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.QueueCapacity = n
		}
	}
}

// primaryInterfaceIP detects the first non-loopback IPv4 address on an up
// interface, falling back to 127.0.0.1.
func primaryInterfaceIP() string {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "127.0.0.1"
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil {
				return ipnet.IP.String()
			}
		}
	}

	return "127.0.0.1"
}
