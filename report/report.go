// Package report summarizes a finished scheduler run.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/LegacyCodeHQ/sequencer/program"
	"github.com/LegacyCodeHQ/sequencer/scheduler"
	"github.com/LegacyCodeHQ/sequencer/unit"
)

// Format selects how a Summary is rendered.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

func (f Format) String() string {
	return string(f)
}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown report format: %s (valid options: %s, %s)", s, FormatText, FormatJSON)
	}
}

// Program describes one program at the end of a run.
type Program struct {
	ID           program.ID `json:"id"`
	Name         string     `json:"name"`
	Kind         string     `json:"kind"`
	State        string     `json:"state"`
	Error        string     `json:"error,omitempty"`
	Nodes        int        `json:"nodes"`
	Edges        int        `json:"edges"`
	RemovedEdges int        `json:"removed_edges"`
	Live         int        `json:"live"`
}

// Stalled describes a unit that never finished.
type Stalled struct {
	Unit       unit.ID    `json:"unit"`
	Program    program.ID `json:"program"`
	Target     string     `json:"target"`
	Purpose    string     `json:"purpose"`
	Phase      string     `json:"phase"`
	Waits      []string   `json:"waits"`
	Deadlocked bool       `json:"deadlocked"`
}

// StateCount is the number of units that ended in State.
type StateCount struct {
	State string `json:"state"`
	Count int    `json:"count"`
}

// Summary is the outcome of a run.
type Summary struct {
	RunID    string       `json:"run_id"`
	Programs []Program    `json:"programs"`
	Units    []StateCount `json:"units"`
	Stalled  []Stalled    `json:"stalled,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// Succeeded reports whether every program finished without error.
func (s Summary) Succeeded() bool {
	return s.Error == ""
}

var stateOrder = []unit.State{
	unit.Ready,
	unit.Running,
	unit.Waiting,
	unit.Parked,
	unit.Held,
	unit.Done,
	unit.Cancelled,
	unit.Unresolved,
}

// Build collects the summary of s after Run returned runErr.
func Build(s *scheduler.Scheduler, runErr error) Summary {
	summary := Summary{RunID: s.RunID()}
	if runErr != nil {
		summary.Error = runErr.Error()
	}

	for _, p := range s.Programs() {
		entry := Program{
			ID:           p.ID,
			Name:         p.Name,
			Kind:         p.Kind.String(),
			State:        p.State.String(),
			RemovedEdges: s.RemovedEdges(p.ID),
			Live:         len(s.Live(p.ID)),
		}
		if p.Err != nil {
			entry.Error = p.Err.Error()
		}
		if g, err := s.Graph(p.ID); err == nil {
			entry.Nodes = g.Len()
			entry.Edges = g.EdgeCount()
		}
		summary.Programs = append(summary.Programs, entry)
	}

	counts := make(map[unit.State]int)
	for _, u := range s.Units() {
		counts[u.State]++
	}
	for _, st := range stateOrder {
		if counts[st] > 0 {
			summary.Units = append(summary.Units, StateCount{State: st.String(), Count: counts[st]})
		}
	}

	for _, su := range s.Stalled() {
		waits := make([]string, len(su.Waits))
		for i, w := range su.Waits {
			waits[i] = w.String()
		}
		summary.Stalled = append(summary.Stalled, Stalled{
			Unit:       su.Unit,
			Program:    su.Program,
			Target:     su.Target.String(),
			Purpose:    su.Purpose.String(),
			Phase:      su.Phase.String(),
			Waits:      waits,
			Deadlocked: su.Deadlocked,
		})
	}
	return summary
}

// Write renders summary to w.
func Write(w io.Writer, summary Summary, format Format) error {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	case FormatText, "":
		_, err := io.WriteString(w, summary.Text())
		return err
	default:
		return fmt.Errorf("unknown report format: %s", format)
	}
}

// Text renders the summary for a terminal.
func (s Summary) Text() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "run %s\n", s.RunID)

	sb.WriteString("\nprograms\n")
	for _, p := range s.Programs {
		fmt.Fprintf(&sb, "  %d %s (%s) %s: %d nodes, %d edges, %d removed, %d live\n",
			p.ID, p.Name, p.Kind, p.State, p.Nodes, p.Edges, p.RemovedEdges, p.Live)
		if p.Error != "" {
			fmt.Fprintf(&sb, "    error: %s\n", p.Error)
		}
	}

	sb.WriteString("\nunits\n")
	for _, c := range s.Units {
		fmt.Fprintf(&sb, "  %-11s %d\n", c.State, c.Count)
	}

	if len(s.Stalled) > 0 {
		sb.WriteString("\nstalled\n")
		for _, u := range s.Stalled {
			verdict := "unresolved"
			if u.Deadlocked {
				verdict = "deadlocked"
			}
			fmt.Fprintf(&sb, "  #%d %s %s at %s %s waiting on [%s]\n",
				u.Unit, u.Purpose, u.Target, u.Phase, verdict, strings.Join(u.Waits, ", "))
		}
	}

	if s.Error != "" {
		fmt.Fprintf(&sb, "\nfailed: %s\n", s.Error)
	} else {
		sb.WriteString("\nok\n")
	}
	return sb.String()
}
