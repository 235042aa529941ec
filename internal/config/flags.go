package config

import "flag"

// flagSet wraps a private *flag.FlagSet so Load can be called safely from
// tests without colliding with flag.CommandLine or other callers.
type flagSet struct {
	fs *flag.FlagSet
}

func newFlagSet() *flagSet {
	return &flagSet{fs: flag.NewFlagSet("tinysipd", flag.ContinueOnError)}
}

func (f *flagSet) apply(cfg *Config, args []string) {
	f.fs.IntVar(&cfg.Port, "port", cfg.Port, "SIP listening port")
	f.fs.StringVar(&cfg.BindAddr, "bind", cfg.BindAddr, "SIP bind address")
	f.fs.StringVar(&cfg.AdvertiseIP, "advertise", cfg.AdvertiseIP, "address to advertise in SIP headers (auto-detected if unset)")
	f.fs.IntVar(&cfg.BufferSize, "buffer-size", cfg.BufferSize, "maximum accepted UDP datagram size")
	f.fs.IntVar(&cfg.MaxThreads, "max-threads", cfg.MaxThreads, "number of worker goroutines")
	f.fs.IntVar(&cfg.QueueCapacity, "queue-capacity", cfg.QueueCapacity, "per-worker bounded queue capacity")
	f.fs.IntVar(&cfg.MaxCalls, "max-calls", cfg.MaxCalls, "call slot table capacity")
	f.fs.IntVar(&cfg.RegisterExpiry, "register-expires", cfg.RegisterExpiry, "seconds advertised in REGISTER 200 OK Contact expires param")
	f.fs.StringVar(&cfg.LogLevel, "loglevel", cfg.LogLevel, "log level (debug, info, warn, error)")
	f.fs.StringVar(&cfg.LogFile, "logfile", cfg.LogFile, "rotating log file path (empty disables file logging)")
	f.fs.StringVar(&cfg.DirectoryPath, "directory", cfg.DirectoryPath, "path to the user directory YAML seed file (empty uses built-in defaults)")
	f.fs.StringVar(&cfg.AdminAddr, "admin-addr", cfg.AdminAddr, "admin introspection HTTP listen address (empty disables it)")
	f.fs.StringVar(&cfg.EventsURL, "events-url", cfg.EventsURL, "NATS URL for call lifecycle events (empty disables publishing)")

	// fs.Parse prints its own error and usage output on a bad argument;
	// Load ignores the error, keeping any flags parsed before the bad
	// argument and the defaults for the rest. nil/empty args parse cleanly.
	_ = f.fs.Parse(args)
}
