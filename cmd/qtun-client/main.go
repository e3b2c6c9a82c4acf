package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aurorasec/qtun/internal/client"
	"github.com/aurorasec/qtun/internal/config"
	"github.com/aurorasec/qtun/internal/identity"
)

var version = "dev"

func usage() {
	fmt.Fprintf(os.Stderr, "usage: qtun-client [flags] [virtual_ip] [server_host:port]\n\n")
	fmt.Fprintf(os.Stderr, "defaults: virtual_ip %s, server %s, split tunnel\n\n", config.GatewayIP, config.DefaultServerAddr)
	flag.PrintDefaults()
}

func main() {
	var (
		configPath  = flag.String("config", "", "path to YAML config file")
		serverKey   = flag.String("server-key", "", "path to the server's public key file")
		pskHex      = flag.String("psk", "", "pre-shared key (hex, 64 chars)")
		clientID    = flag.String("id", "", "client label used in server logs")
		fullTunnel  = flag.Bool("full-tunnel", false, "route all traffic through the VPN")
		logLevel    = flag.String("log-level", "", "log level: debug, info, warn, error")
		showVersion = flag.Bool("version", false, "show version and exit")
	)
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("qtun-client %s\n", version)
		os.Exit(0)
	}

	cfg := config.DefaultClientConfig()
	if *configPath != "" {
		loaded, err := config.LoadClientConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if args := flag.Args(); len(args) > 0 {
		cfg.VirtualIP = args[0]
		if len(args) > 1 {
			cfg.ServerAddr = args[1]
		}
	}
	if *serverKey != "" {
		cfg.ServerKeyPath = *serverKey
	}
	if *pskHex != "" {
		cfg.PSK = *pskHex
	}
	if *clientID != "" {
		cfg.ClientID = *clientID
	}
	if *fullTunnel {
		cfg.FullTunnel = true
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	log := newLogger(cfg.LogLevel)

	psk, err := config.ParsePSK(cfg.PSK)
	if err != nil {
		log.Error("invalid PSK", "err", err)
		os.Exit(1)
	}

	verifier, err := identity.LoadVerifier(cfg.ServerKeyPath)
	if err != nil {
		log.Error("load server public key failed", "path", cfg.ServerKeyPath, "err", err)
		os.Exit(1)
	}

	cli := client.New(client.Config{
		ServerAddr: cfg.ServerAddr,
		VirtualIP:  cfg.VirtualIP,
		ClientID:   cfg.ClientID,
		PSK:        psk,
		FullTunnel: cfg.FullTunnel,
	}, verifier, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cli.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("client exited", "err", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
