package main

import (
	"flag"
	"net"
	"os"

	"github.com/rs/zerolog"
	"github.com/stesla/telwire/internal/telnet"
)

var (
	addr        = flag.String("addr", getEnvDefault("TELWIRE_ADDR", ""), "address on which to listen")
	configPath  = flag.String("config", getEnvDefault("TELWIRE_CONFIG", ""), "path to a TOML config file")
	metricsAddr = flag.String("metrics", getEnvDefault("TELWIRE_METRICS_ADDR", ""), "address on which to serve prometheus metrics")
)

func main() {
	flag.Parse()

	cfg, err := configure(*configPath, *addr, *metricsAddr)
	if err != nil {
		l := newLogger(os.Stderr, zerolog.InfoLevel)
		l.Fatal().Err(err).Send()
	}

	zerolog.SetGlobalLevel(cfg.LogLevel)
	logger := newLogger(os.Stdout, cfg.LogLevel)

	if cfg.MetricsAddr != "" {
		go serveMetrics(logger, cfg.MetricsAddr)
	}

	l, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		logger.Fatal().Err(err).Send()
	}
	defer l.Close()

	logger.Info().Str("addr", cfg.Addr).Msg("started")

	for {
		tcp, err := l.Accept()
		if err != nil {
			logger.Error().Err(err).Msg("error accepting connection")
			continue
		}

		conn := telnet.WrapConfig(tcp, telnet.Config{
			Logger:            logger.With().Str("client", tcp.RemoteAddr().String()).Logger(),
			MaxSubnegotiation: cfg.MaxSubnegotiation,
		})

		go func() {
			defer conn.Close()
			newDownstreamSession(conn, logger, cfg).runForever()
		}()
	}
}

// configure applies the config file at path, if any, and then the
// addresses given on the command line.
func configure(path, addr, metricsAddr string) (Config, error) {
	cfg := defaultConfig()
	if path != "" {
		var err error
		if cfg, err = loadConfig(path, cfg); err != nil {
			return Config{}, err
		}
	}
	if addr != "" {
		cfg.Addr = addr
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}
	return cfg, nil
}

func getEnvDefault(name, defaultValue string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return defaultValue
}
