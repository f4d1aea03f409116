package demux

import (
	"context"
	"net"

	"go.uber.org/zap"

	"flowctld/internal/flowctrl"
	"flowctld/internal/wire"
)

// runWorker is the serial consumer for one flow: it owns the flow's
// FlowCtrl and its outbound connection to the agent, and is the only
// goroutine that ever touches either, so neither needs its own lock. It
// returns when tx is closed (Disconnect, or a replacing Connect).
func (s *Server) runWorker(flowID uint32, entry *flowEntry) {
	log := s.log.With(zap.Uint32("flow_id", flowID))

	conn, err := net.Dial("unix", s.agentSocketPath)
	if err != nil {
		log.Error("failed to dial agent socket; decisions will not be delivered", zap.Error(err))
	} else {
		defer conn.Close()
	}

	fc := flowctrl.New(s.appType, s.log)

	for report := range entry.tx {
		ctx, endIngest := context.Background(), func() {}
		if s.tracer != nil {
			ctx, endIngest = s.tracer.StartReportIngest(ctx)
		}
		fc.AddData(report)
		endIngest()

		snap := fc.Snapshot()
		entry.snapshot.Store(&snap)

		cmd, fired := fc.Process()
		if !fired {
			continue
		}

		_, endDecide := context.Background(), func() {}
		if s.tracer != nil {
			_, endDecide = s.tracer.StartFlowDecide(ctx)
		}
		if s.metrics != nil {
			s.metrics.Decision(flowID, fc.CurTradeOff())
		}
		endDecide()

		snap = fc.Snapshot()
		entry.snapshot.Store(&snap)

		if conn == nil {
			continue
		}
		if err := sendCommand(conn, *cmd); err != nil {
			log.Warn("failed to deliver trade-off command", zap.Error(err))
		}
	}

	log.Info("flow worker exiting")
}

// sendCommand writes a framed JSON command and reads back the agent's
// framed reply. The reply is read to keep the connection's framing in
// sync but its contents are intentionally ignored.
func sendCommand(conn net.Conn, cmd wire.Command) error {
	payload, err := cmd.Encode()
	if err != nil {
		return err
	}
	if err := wire.WriteFrame(conn, payload); err != nil {
		return err
	}
	_, err = wire.ReadFrame(conn)
	return err
}
