package coordinator

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vimsent/lasertag/internal/model"
)

// MatchReport is the human-readable artifact written at match end
// (spec.md §6: "Match results: human-readable text report... listing
// rankings, K/D, hit log"). Filename choice is left to the operator
// per spec.md; ResultWriter implementations decide the actual path.
type MatchReport struct {
	MatchID   string
	EndTime   time.Time
	Rankings  []TeamReportLine
	HitLog    []model.HitRecord
}

// TeamReportLine is one row of the final rankings.
type TeamReportLine struct {
	TeamID   model.TeamID
	TeamName string
	Points   int
	Kills    int
	Deaths   int
}

// ResultWriter persists a MatchReport. spec.md §1 treats "persistence
// of match logs" as an external collaborator consumed via a simple
// store interface; the filesystem implementation below is the default
// for the coordinator binary.
type ResultWriter interface {
	Write(MatchReport) error
}

// FileResultWriter writes one text file per match under Dir, named by
// match id and end time (spec.md §6: "Filename chosen by operator at
// end-of-match prompt" — here the operator supplies Dir once via the
// coordinator binary's COORDINATOR_RESULTS_DIR environment variable
// instead of being prompted per match, since the core has no
// interactive UI layer).
type FileResultWriter struct {
	Dir string
}

// Write renders and saves report.
func (w FileResultWriter) Write(report MatchReport) error {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return err
	}
	name := fmt.Sprintf("%s-%s.txt", sanitize(report.MatchID), report.EndTime.UTC().Format(time.RFC3339))
	path := filepath.Join(w.Dir, name)
	return os.WriteFile(path, []byte(render(report)), 0o644)
}

func sanitize(s string) string {
	if s == "" {
		return "match"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

func render(report MatchReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Match %s — ended %s\n", report.MatchID, report.EndTime.Format(time.RFC3339))
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	b.WriteString("Rankings\n")
	for i, r := range report.Rankings {
		fmt.Fprintf(&b, "  %d. %-20s  points=%-4d kills=%-3d deaths=%-3d\n",
			i+1, r.TeamName, r.Points, r.Kills, r.Deaths)
	}

	b.WriteString("\nHit log\n")
	for _, h := range report.HitLog {
		if h.Kind == model.HitKindAward {
			fmt.Fprintf(&b, "  [%7s] #%-4d AWARD team=%d category=%s points=%d\n",
				h.T.Round(time.Millisecond), h.Sequence, h.AttackerID, h.AwardCategory, h.PointsAwarded)
		} else {
			fmt.Fprintf(&b, "  [%7s] #%-4d HIT   attacker=%d defender=%d points=%d\n",
				h.T.Round(time.Millisecond), h.Sequence, h.AttackerID, h.DefenderID, h.PointsAwarded)
		}
	}
	return b.String()
}

// buildReportLocked assembles a MatchReport from the current match
// state. Caller must hold c.mu.
func (c *Coordinator) buildReportLocked() MatchReport {
	lines := make([]TeamReportLine, 0, len(c.match.Participants))
	for id := range c.match.Participants {
		sc := c.match.Scores[id]
		name := teamName(c.roster, id)
		if sc == nil {
			sc = &model.Score{}
		}
		lines = append(lines, TeamReportLine{TeamID: id, TeamName: name, Points: sc.Points, Kills: sc.Kills, Deaths: sc.Deaths})
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].Points != lines[j].Points {
			return lines[i].Points > lines[j].Points
		}
		return lines[i].TeamID < lines[j].TeamID
	})

	return MatchReport{
		MatchID:  c.match.MatchID,
		EndTime:  c.match.EndTime,
		Rankings: lines,
		HitLog:   append([]model.HitRecord(nil), c.match.HitLog...),
	}
}
