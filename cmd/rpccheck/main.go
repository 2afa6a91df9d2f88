package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"tokensentry/config"
	"tokensentry/internal/infrastructure/logger"
	"tokensentry/internal/infrastructure/rpcpool"
)

// rpccheck probes every configured RPC endpoint once and prints the
// resulting health snapshot.
func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewConsoleLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	gateway := rpcpool.NewGateway(cfg.RPC, log)
	gateway.CheckAll(context.Background())

	unhealthy := 0
	for _, h := range gateway.Health() {
		role := "backup"
		if h.Primary {
			role = "primary"
		}
		state := "healthy"
		if !h.Healthy {
			state = "UNHEALTHY"
			unhealthy++
		}
		fmt.Printf("%-12s %-8s %-10s latency=%.0fms success=%.0f%%  %s\n",
			h.Label, role, state, h.LatencyMs, h.SuccessRate*100, h.URL)
	}
	if unhealthy > 0 {
		os.Exit(2)
	}
}
