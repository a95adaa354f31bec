// cmd/robot/main.go
//
// Entry point for a RobotAgent: bridges UDP command traffic to
// hardware actuators, answers its OperatorProxy's ConfigRequest with
// the canonical team identity, and reports IR hits to the Coordinator.
// It learns the Coordinator's address from a DiscoveryBeacon rather
// than static configuration, per spec.md §2.
//
// ▸ Environment variables recognized
//   ────────────────────────────────
//   • TEAM_ID          → this robot's team_id, 1-255.              [required]
//   • TEAM_NAME        → display name for the team.                [def: "Team <id>"]
//   • ROBOT_NAME       → display name for the robot.                [def: "Robot <id>"]
//   • ROBOT_PORT       → UDP port this robot listens on for Control.[def: cfg.RobotPort]
//   • ROBOT_CONFIG     → path to a YAML config overlay.             [def: none]
//   • COORD_ADDR       → host:port of the Coordinator, skips discovery. [def: none]
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
	"github.com/vimsent/lasertag/internal/logging"
	"github.com/vimsent/lasertag/internal/model"
	"github.com/vimsent/lasertag/internal/netudp"
	"github.com/vimsent/lasertag/internal/robot"
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
	log := logging.New("robot")

	cfg, err := config.Load(envString("ROBOT_CONFIG", ""))
	if err != nil {
		log.Error("FATAL: cannot load config: %v", err)
		os.Exit(1)
	}

	rawTeamID := envInt("TEAM_ID", 0)
	teamID := model.TeamID(rawTeamID)
	if !teamID.Valid() {
		log.Error("FATAL: TEAM_ID must be set to a value in [1, 255], got %d", rawTeamID)
		os.Exit(1)
	}

	robotPort := envInt("ROBOT_PORT", cfg.RobotPort)
	identity := robot.Identity{
		TeamID:    teamID,
		TeamName:  envString("TEAM_NAME", fmt.Sprintf("Team %d", teamID)),
		RobotName: envString("ROBOT_NAME", fmt.Sprintf("Robot %d", teamID)),
		RobotPort: robotPort,
	}

	ctlSock, err := netudp.Listen(&net.UDPAddr{Port: robotPort})
	if err != nil {
		log.Error("FATAL: cannot bind operator-facing UDP port %d: %v", robotPort, err)
		os.Exit(1)
	}
	defer ctlSock.Close()

	coordSock, err := netudp.Listen(&net.UDPAddr{})
	if err != nil {
		log.Error("FATAL: cannot bind coordinator-facing socket: %v", err)
		os.Exit(1)
	}
	defer coordSock.Close()

	var coordAddr *net.UDPAddr
	if s := os.Getenv("COORD_ADDR"); s != "" {
		coordAddr, err = net.ResolveUDPAddr("udp", s)
		if err != nil {
			log.Error("FATAL: invalid COORD_ADDR %q: %v", s, err)
			os.Exit(1)
		}
		identity.CoordinatorAddr = s
	}

	act := robot.NewLoggingActuator(log)
	agent := robot.New(identity, cfg, clock.Real, act, coordSock, ctlSock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		<-ch
		log.Info("shutdown signal received, stopping robot agent")
		cancel()
	}()

	log.Info("robot agent for team %d listening on :%d (coordinator=%s)",
		teamID, robotPort, envString("COORD_ADDR", "<discovered>"))

	if err := agent.Run(ctx, coordAddr); err != nil {
		log.Error("robot agent stopped: %v", err)
	}
}
