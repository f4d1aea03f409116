// Package dashboard periodically renders a textual snapshot of every live
// flow's trade-off state to the log, in place of the web/SSE dashboard a
// browser-facing service would use — this service has no browser client.
package dashboard

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/guptarohit/asciigraph"
	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"

	"flowctld/internal/flowctrl"
)

// Snapshotter is the subset of *demux.Server the dashboard depends on.
type Snapshotter interface {
	Snapshots() []flowctrl.Snapshot
}

// Manager renders a ticker-driven textual flow table to the log.
type Manager struct {
	snapshotter Snapshotter
	log         *zap.Logger
	interval    time.Duration
}

// New builds a Manager. A zero interval means Run returns immediately
// without rendering anything, matching a disabled dashboard.
func New(snapshotter Snapshotter, log *zap.Logger, interval time.Duration) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{snapshotter: snapshotter, log: log, interval: interval}
}

// Run renders on every tick until ctx is cancelled. It is a no-op when the
// configured interval is zero.
func (m *Manager) Run(ctx context.Context) {
	if m.interval <= 0 {
		return
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.render()
		}
	}
}

func (m *Manager) render() {
	snaps := m.snapshotter.Snapshots()
	if len(snaps) == 0 {
		m.log.Info("no active flows")
		return
	}

	sort.Slice(snaps, func(i, j int) bool { return snaps[i].FlowID < snaps[j].FlowID })

	m.log.Info("flow table\n" + renderTable(snaps) + renderBusiestSparkline(snaps))
}

// renderTable writes to an in-memory buffer: tablewriter.NewWriter, header
// via Header(...), rows via Append(...).
func renderTable(snaps []flowctrl.Snapshot) string {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.Header("Flow ID", "Delta", "EWMA Rate (Mbps)", "Min RTT (ms)", "Loss Rate")

	for _, s := range snaps {
		lossStr := fmt.Sprintf("%.4f", s.LossRate)
		if s.LossRate > 0 {
			lossStr = red(lossStr)
		} else {
			lossStr = green(lossStr)
		}
		_ = table.Append(
			fmt.Sprintf("%d", s.FlowID),
			fmt.Sprintf("%d", s.CurTradeOff),
			fmt.Sprintf("%.2f", s.EWMARateMbps),
			fmt.Sprintf("%.1f", s.MinRTTMillis),
			lossStr,
		)
	}
	_ = table.Render()
	return buf.String()
}

// renderBusiestSparkline plots the smoothed-rate history of the flow with
// the most samples with asciigraph, down-sampling long histories.
func renderBusiestSparkline(snaps []flowctrl.Snapshot) string {
	busiest := snaps[0]
	for _, s := range snaps[1:] {
		if len(s.SmoothedRates) > len(busiest.SmoothedRates) {
			busiest = s
		}
	}
	if len(busiest.SmoothedRates) < 2 {
		return ""
	}

	const maxPoints = 80
	data := busiest.SmoothedRates
	step := 1
	if len(data) > maxPoints {
		step = len(data) / maxPoints
	}
	sampled := make([]float64, 0, maxPoints)
	for i := 0; i < len(data); i += step {
		sampled = append(sampled, data[i])
	}

	graph := asciigraph.Plot(sampled,
		asciigraph.Height(10),
		asciigraph.Width(70),
		asciigraph.Caption(fmt.Sprintf("flow %d smoothed rate (Mbps)", busiest.FlowID)),
	)
	return "\n" + graph + "\n"
}

// ForceRenderToStdout renders once directly to stdout, bypassing the
// logger.
func (m *Manager) ForceRenderToStdout() {
	snaps := m.snapshotter.Snapshots()
	if len(snaps) == 0 {
		fmt.Fprintln(os.Stdout, "no active flows")
		return
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].FlowID < snaps[j].FlowID })
	fmt.Fprint(os.Stdout, renderTable(snaps))
	fmt.Fprint(os.Stdout, renderBusiestSparkline(snaps))
}
