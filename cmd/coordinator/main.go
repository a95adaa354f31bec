// cmd/coordinator/main.go
//
// Entry point for the Tournament Coordinator: the authoritative owner
// of the team roster, match phase, scoreboard, and disabled-state map.
// It listens for UDP JSON messages from OperatorProxies and
// RobotAgents on one port, and serves the referee HTTP interface
// (GET /teams, POST /award, GET /metrics) on a second port.
//
// ▸ Environment variables recognized
//   ────────────────────────────────
//   • COORDINATOR_UDP_PORT   → UDP port for the roster/match protocol. [def: 6000]
//   • COORDINATOR_HTTP_PORT  → HTTP port for the referee endpoint.     [def: 6700]
//   • COORDINATOR_CONFIG     → path to a YAML config overlay.          [def: none]
//   • COORDINATOR_RESULTS_DIR→ directory match reports are written to. [def: ./results]
//   • BROADCAST_ADDR         → subnet broadcast address for discovery. [def: 255.255.255.255]
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/vimsent/lasertag/internal/clock"
	"github.com/vimsent/lasertag/internal/config"
	"github.com/vimsent/lasertag/internal/coordinator"
	"github.com/vimsent/lasertag/internal/logging"
	"github.com/vimsent/lasertag/internal/metrics"
	"github.com/vimsent/lasertag/internal/netudp"
	"github.com/vimsent/lasertag/internal/refereehttp"

	"github.com/prometheus/client_golang/prometheus"
)

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	log := logging.New("coordinator")

	cfg, err := config.Load(envString("COORDINATOR_CONFIG", ""))
	if err != nil {
		log.Error("FATAL: cannot load config: %v", err)
		os.Exit(1)
	}
	udpPort := envInt("COORDINATOR_UDP_PORT", cfg.CoordinatorUDPPort)
	httpPort := envInt("COORDINATOR_HTTP_PORT", cfg.CoordinatorHTTPPort)
	resultsDir := envString("COORDINATOR_RESULTS_DIR", "./results")
	broadcastAddrStr := envString("BROADCAST_ADDR", "255.255.255.255")

	sock, err := netudp.Listen(&net.UDPAddr{Port: udpPort})
	if err != nil {
		log.Error("FATAL: cannot bind UDP port %d: %v", udpPort, err)
		os.Exit(1)
	}
	defer sock.Close()
	if err := sock.EnableBroadcast(); err != nil {
		log.Warn("could not enable broadcast on UDP socket: %v", err)
	}

	registry := prometheus.DefaultRegisterer
	coordMetrics := metrics.NewCoordinator(registry)

	coord := coordinator.New(cfg, clock.Real, sock,
		coordinator.WithMetrics(coordMetrics),
		coordinator.WithResultWriter(coordinator.FileResultWriter{Dir: resultsDir}),
	)

	awardPoints := make(map[string]int, len(cfg.AwardPoints))
	for cat, pts := range cfg.AwardPoints {
		awardPoints[string(cat)] = pts
	}
	refSrv := refereehttp.New(coord, awardPoints)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		<-ch
		log.Info("shutdown signal received, stopping coordinator")
		cancel()
	}()

	httpAddr := fmt.Sprintf(":%d", httpPort)
	go func() {
		log.Info("referee HTTP listening on %s", httpAddr)
		if err := netHTTPListenAndServeUntilCancelled(ctx, httpAddr, refSrv); err != nil {
			log.Error("referee HTTP server stopped: %v", err)
		}
	}()

	broadcastAddr := &net.UDPAddr{IP: net.ParseIP(broadcastAddrStr), Port: udpPort}
	selfIP := localOutboundIP(log)

	log.Info("coordinator listening on UDP :%d (points_per_hit=%d disable_duration=%s)",
		udpPort, cfg.PointsPerHit, cfg.DisableDuration)

	if err := coord.Run(ctx, broadcastAddr, selfIP, udpPort); err != nil {
		log.Error("coordinator stopped: %v", err)
	}
}

func localOutboundIP(log *logging.Logger) net.IP {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		log.Warn("could not determine outbound IP, defaulting to 0.0.0.0: %v", err)
		return net.IPv4zero
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP
}
