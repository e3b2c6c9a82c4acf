package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aurorasec/qtun/internal/config"
	"github.com/aurorasec/qtun/internal/gateway"
	"github.com/aurorasec/qtun/internal/identity"
	"github.com/aurorasec/qtun/internal/server"
	"github.com/aurorasec/qtun/internal/tun"
)

var version = "dev"

func main() {
	var (
		configPath  = flag.String("config", "", "path to YAML config file")
		listenAddr  = flag.String("listen", "", "UDP listen address (default 0.0.0.0:9000)")
		keysDir     = flag.String("keys-dir", "", "directory holding the server keypair")
		pskHex      = flag.String("psk", "", "pre-shared key (hex, 64 chars)")
		gatewayMode = flag.Bool("gateway", false, "enable IP forwarding and NAT to the internet")
		statusAddr  = flag.String("status-addr", "", "status/metrics HTTP listen address (disabled if empty)")
		stunServers = flag.String("stun", "", "comma-separated STUN servers for public endpoint discovery")
		logLevel    = flag.String("log-level", "", "log level: debug, info, warn, error")
		showVersion = flag.Bool("version", false, "show version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("qtun-server %s\n", version)
		os.Exit(0)
	}

	cfg := config.DefaultServerConfig()
	if *configPath != "" {
		loaded, err := config.LoadServerConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *keysDir != "" {
		cfg.KeysDir = *keysDir
	}
	if *pskHex != "" {
		cfg.PSK = *pskHex
	}
	if *gatewayMode {
		cfg.Gateway = true
	}
	if *statusAddr != "" {
		cfg.StatusAddr = *statusAddr
	}
	if *stunServers != "" {
		cfg.STUNServers = strings.Split(*stunServers, ",")
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

	ident, err := identity.LoadOrGenerate(cfg.KeysDir)
	if err != nil {
		log.Error("load identity failed", "err", err)
		os.Exit(1)
	}
	log.Info("identity loaded", "keys_dir", cfg.KeysDir)
	fmt.Printf("server public key (distribute to clients): %s\n", ident.PublicKeyHex())

	dev, err := tun.New(tun.Config{Address: cfg.TUNAddress, Netmask: cfg.TUNNetmask})
	if err != nil {
		log.Error("create TUN device failed", "err", err)
		os.Exit(1)
	}
	log.Info("TUN device created", "name", dev.Name())

	if err := tun.ConfigureRoute(dev.Name(), config.VPNSubnet); err != nil {
		log.Warn("route configuration failed", "err", err)
	}

	if cfg.Gateway {
		if err := gateway.EnableIPForwarding(); err != nil {
			log.Error("enable IP forwarding failed", "err", err)
			os.Exit(1)
		}
		externalIf, err := gateway.DetectDefaultInterface()
		if err != nil {
			log.Error("detect default interface failed", "err", err)
			os.Exit(1)
		}
		if err := gateway.SetupNAT(dev.Name(), externalIf); err != nil {
			log.Error("NAT setup failed", "err", err)
			os.Exit(1)
		}
		defer gateway.CleanupNAT(dev.Name(), externalIf)
		log.Info("gateway enabled", "external_if", externalIf)
	}

	srv := server.New(server.Config{
		ListenAddr:  cfg.ListenAddr,
		PSK:         psk,
		Gateway:     cfg.Gateway,
		StatusAddr:  cfg.StatusAddr,
		STUNServers: cfg.STUNServers,
	}, ident, dev, log)

	if err := srv.Start(); err != nil {
		log.Error("start server failed", "err", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("received signal, shutting down", "signal", sig)

	srv.Stop()
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
