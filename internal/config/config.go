// Package config loads an immutable configuration Snapshot once at
// startup. Nothing in this codebase mutates a live Snapshot; a config
// change means building a new Snapshot and atomically swapping a
// pointer to it (spec.md §9: "Shared mutable config → immutable
// snapshot + reloader").
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AwardCategory is one of the referee HTTP endpoint's bonus kinds.
type AwardCategory string

const (
	AwardRetrieval AwardCategory = "retrieval"
	AwardSteal     AwardCategory = "steal"
	AwardPossession AwardCategory = "possession"
)

// Snapshot is the full, immutable set of tunables for a tournament.
// Every field here is something original_source/ or a prior version
// of the Coordinator hard-coded; spec.md §9 flags POINTS_PER_HIT in
// particular as configuration, not a constant, and the rest follow the
// same discipline.
type Snapshot struct {
	PointsPerHit    int                      `yaml:"points_per_hit"`
	DisableDuration time.Duration            `yaml:"disable_duration"`
	AwardPoints     map[AwardCategory]int    `yaml:"award_points"`
	AwardGracePeriod time.Duration           `yaml:"award_grace_period"`
	HitDedupWindow  time.Duration            `yaml:"hit_dedup_window"`

	DiscoveryInterval    time.Duration `yaml:"discovery_interval"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	DisableScanInterval  time.Duration `yaml:"disable_scan_interval"`
	MatchTimerInterval   time.Duration `yaml:"match_timer_interval"`
	HeartbeatStaleAfter  time.Duration `yaml:"heartbeat_stale_after"`
	HeartbeatOfflineAfter time.Duration `yaml:"heartbeat_offline_after"`

	CoordinatorUDPPort  int `yaml:"coordinator_udp_port"`
	CoordinatorHTTPPort int `yaml:"coordinator_http_port"`
	OperatorPortBase    int `yaml:"operator_port_base"`
	RobotPort           int `yaml:"robot_port"`
	VideoPortBaseOp     int `yaml:"video_port_base_operator"`
	VideoPortBaseCoord  int `yaml:"video_port_base_coordinator"`

	ConfigRequestTimeout time.Duration `yaml:"config_request_timeout"`
	ControlTimeout       time.Duration `yaml:"control_timeout"`
	PowerSaveTimeout     time.Duration `yaml:"power_save_timeout"`
	WeaponCooldown       time.Duration `yaml:"weapon_cooldown"`

	ControlTickRate int `yaml:"control_tick_rate_hz"`
}

// Default returns the values spec.md names explicitly (§6 port map,
// §4.1-4.3 timing constants). Callers load a Snapshot from a YAML file
// and Default fills in anything the file omits.
func Default() Snapshot {
	return Snapshot{
		PointsPerHit:    10,
		DisableDuration: 10 * time.Second,
		AwardPoints: map[AwardCategory]int{
			AwardRetrieval:  10,
			AwardSteal:      20,
			AwardPossession: 30,
		},
		AwardGracePeriod: 300 * time.Second,
		HitDedupWindow:   300 * time.Millisecond,

		DiscoveryInterval:     15 * time.Second,
		HeartbeatInterval:     1 * time.Second,
		DisableScanInterval:   100 * time.Millisecond,
		MatchTimerInterval:    100 * time.Millisecond,
		HeartbeatStaleAfter:   5 * time.Second,
		HeartbeatOfflineAfter: 15 * time.Second,

		CoordinatorUDPPort:  6000,
		CoordinatorHTTPPort: 6700,
		OperatorPortBase:    6100,
		RobotPort:           5005,
		VideoPortBaseOp:     5100,
		VideoPortBaseCoord:  5000,

		ConfigRequestTimeout: 5 * time.Second,
		ControlTimeout:       800 * time.Millisecond,
		PowerSaveTimeout:     10 * time.Second,
		WeaponCooldown:       2 * time.Second,

		ControlTickRate: 30,
	}
}

// Load reads a YAML document at path and overlays it onto Default().
// A missing file is not an error — binaries run on defaults — but a
// malformed one is fatal at startup per spec.md §7 (Configuration
// errors are fatal at startup, never at runtime).
func Load(path string) (Snapshot, error) {
	snap := Default()
	if path == "" {
		return snap, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return snap, nil
		}
		return Snapshot{}, err
	}
	if err := yaml.Unmarshal(b, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// AwardValue returns the configured point value for category, and
// whether the category is recognized.
func (s Snapshot) AwardValue(category AwardCategory) (int, bool) {
	v, ok := s.AwardPoints[category]
	return v, ok
}
