// cmd/operator/main.go
//
// Entry point for an OperatorProxy: the human-facing intermediary for
// one team. It learns its team identity from its RobotAgent at
// startup (the robot is the source of truth), registers with the
// Coordinator, and forwards gated input to the robot every control
// tick (spec.md §4.2).
//
// ▸ Environment variables recognized
//   ────────────────────────────────
//   • ROBOT_ADDR       → host:port of this team's RobotAgent.         [def: persisted / prompt]
//   • COORD_ADDR       → host:port of the Coordinator's UDP endpoint. [def: from ConfigResponse]
//   • OPERATOR_CONFIG  → path to a YAML config overlay.                [def: none]
//   • ROBOT_ADDR_FILE  → path used to persist the robot address.      [def: ./robot_addr.txt]
package main

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/vimsent/lasertag/internal/clock"
	"github.com/vimsent/lasertag/internal/config"
	"github.com/vimsent/lasertag/internal/logging"
	"github.com/vimsent/lasertag/internal/model"
	"github.com/vimsent/lasertag/internal/netudp"
	"github.com/vimsent/lasertag/internal/operator"
)

func main() {
	log := logging.New("operator")

	cfg, err := config.Load(os.Getenv("OPERATOR_CONFIG"))
	if err != nil {
		log.Error("FATAL: cannot load config: %v", err)
		os.Exit(1)
	}

	addrStore := operator.FileAddr{Path: envOr("ROBOT_ADDR_FILE", "./robot_addr.txt")}
	robotAddrStr := os.Getenv("ROBOT_ADDR")
	if robotAddrStr == "" {
		if saved, err := addrStore.Load(); err == nil && saved != "" {
			robotAddrStr = saved
		}
	}
	if robotAddrStr == "" {
		robotAddrStr = promptForRobotAddr()
	}
	_ = addrStore.Save(robotAddrStr)

	robotAddr, err := net.ResolveUDPAddr("udp", robotAddrStr)
	if err != nil {
		log.Error("FATAL: invalid robot address %q: %v", robotAddrStr, err)
		os.Exit(1)
	}

	// Robot-facing socket is bound first (ephemeral port) so we can
	// send ConfigRequest before we know our own team_id.
	robotSock, err := netudp.Listen(&net.UDPAddr{})
	if err != nil {
		log.Error("FATAL: cannot bind robot-facing socket: %v", err)
		os.Exit(1)
	}
	defer robotSock.Close()

	bootstrap := operator.New(0, cfg, clock.Real, nil, robotSock)
	configResp, err := bootstrap.RequestRobotConfig(robotAddr)
	if err != nil {
		log.Error("FATAL: could not obtain config from robot at %s: %v", robotAddrStr, err)
		os.Exit(1)
	}

	teamID := configResp.Config.Team.TeamID
	listenPort := cfg.OperatorPortBase + int(teamID)
	coordSock, err := netudp.Listen(&net.UDPAddr{Port: listenPort})
	if err != nil {
		log.Error("FATAL: cannot bind coordinator-facing socket on :%d: %v", listenPort, err)
		os.Exit(1)
	}
	defer coordSock.Close()

	coordAddrStr := envOr("COORD_ADDR", configResp.Config.Network.CoordinatorAddr)
	coordAddr, err := net.ResolveUDPAddr("udp", coordAddrStr)
	if err != nil {
		log.Error("FATAL: invalid coordinator address %q: %v", coordAddrStr, err)
		os.Exit(1)
	}

	proxy := operator.New(model.TeamID(teamID), cfg, clock.Real, coordSock, robotSock)
	proxy.Register(coordAddr, configResp.Config.Team.TeamName, configResp.Config.Team.RobotName, listenPort)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		<-ch
		log.Info("shutdown signal received, stopping operator proxy")
		cancel()
	}()

	log.Info("operator proxy for team %d running (robot=%s coordinator=%s)", teamID, robotAddrStr, coordAddrStr)

	// Without a real UI layer wired in, the control loop reads neutral
	// input; a GUI integration replaces nextInput with live UI state.
	nextInput := func() operator.InputRecord { return operator.InputRecord{} }

	if err := proxy.Run(ctx, nextInput, 1.0); err != nil {
		log.Error("operator proxy stopped: %v", err)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func promptForRobotAddr() string {
	fmt.Print("Robot address (host:port): ")
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}
