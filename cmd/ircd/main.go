// Command ircd runs the IRC server.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aeolun/ircd/pkg/server"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "~/.ircd/config.toml", "Path to config file")
	host := flag.String("host", "", "Address to bind on (overrides config)")
	port := flag.Int("port", 0, "TCP port (overrides config)")
	wsPort := flag.Int("ws-port", 0, "WebSocket port (overrides config, 0 = disabled)")
	sshPort := flag.Int("ssh-port", 0, "SSH port (overrides config, 0 = disabled)")
	metricsPort := flag.Int("metrics-port", 0, "Metrics HTTP port (overrides config, 0 = disabled)")
	origin := flag.String("origin", "", "Server name used in reply prefixes (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ircd %s\n", version)
		return
	}

	tomlConfig, err := server.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	config := tomlConfig.ToConfig()

	// Flags beat config file and environment
	if *host != "" {
		config.Host = *host
	}
	if *port != 0 {
		config.TCPPort = *port
	}
	if *wsPort != 0 {
		config.WSPort = *wsPort
	}
	if *sshPort != 0 {
		config.SSHPort = *sshPort
	}
	if *metricsPort != 0 {
		config.MetricsPort = *metricsPort
	}
	if *origin != "" {
		config.Origin = *origin
	}

	srv, err := server.NewServer(config)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}
	if *debug {
		srv.EnableDebugLogging()
	}

	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	log.Printf("ircd %s serving %s on %s:%d", version, config.NetworkName, config.Host, config.TCPPort)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	if err := srv.Stop(); err != nil {
		log.Fatalf("Shutdown error: %v", err)
	}
}
