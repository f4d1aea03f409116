// Package demux implements the demultiplexer: a single Unix-domain stream
// listener that routes control and report frames to one worker goroutine
// per flow, each owning a private FlowCtrl instance.
package demux

import (
	"context"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"flowctld/internal/config"
	"flowctld/internal/flowctrl"
	"flowctld/internal/wire"
)

// Metrics is the subset of instrumentation the demultiplexer drives. A nil
// Metrics is valid — every call site checks before dereferencing.
type Metrics interface {
	FlowConnected(flowID uint32)
	FlowDisconnected(flowID uint32)
	ReportReceived(flowID uint32, elems int)
	Decision(flowID uint32, tradeOff int)
	FrameDropped(reason string)
}

// Tracer starts the two named spans: report.ingest around each decoded
// data frame, and flow.decide around each fired decision. A nil Tracer is
// valid.
type Tracer interface {
	StartReportIngest(ctx context.Context) (context.Context, func())
	StartFlowDecide(ctx context.Context) (context.Context, func())
}

// flowEntry is one flow table slot: the mutex guards (a) replacement of
// the tx handle, (b) the final close/delete on Disconnect, and (c) send on
// data ingress, so those three never race the channel's open/closed state.
type flowEntry struct {
	mu     sync.Mutex
	tx     chan wire.ReportEntry
	closed bool

	// snapshot is written only by this flow's own worker goroutine after
	// each ingested report and each fired decision, and read only by
	// internal/dashboard; an atomic
	// pointer keeps both sides lock-free without giving the dashboard any
	// access to the FlowCtrl the worker owns.
	snapshot atomic.Pointer[flowctrl.Snapshot]
}

// Server is the demultiplexer: one listener, one flow table, one worker
// goroutine per live flow.
type Server struct {
	listenPath      string
	agentSocketPath string
	appType         config.AppType
	log             *zap.Logger
	metrics         Metrics
	tracer          Tracer

	tableMu sync.Mutex
	flows   map[uint32]*flowEntry

	workerWG sync.WaitGroup
}

// New builds a Server from cfg. metrics and tracer may be nil.
func New(cfg config.Config, log *zap.Logger, metrics Metrics, tracer Tracer) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		listenPath:      cfg.ReportSocketPath,
		agentSocketPath: cfg.AgentSocketPath,
		appType:         cfg.AppType,
		log:             log,
		metrics:         metrics,
		tracer:          tracer,
		flows:           make(map[uint32]*flowEntry),
	}
}

// Run unlinks and rebinds the listening socket, then accepts connections
// until ctx is cancelled or the listener errors. Each accepted connection
// gets its own handler goroutine. Run blocks until the accept loop ends;
// on cancellation it first closes every live flow and waits for their
// workers to exit.
func (s *Server) Run(ctx context.Context) error {
	if err := os.Remove(s.listenPath); err != nil && !os.IsNotExist(err) {
		return err
	}

	ln, err := net.Listen("unix", s.listenPath)
	if err != nil {
		return err
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.log.Info("listening", zap.String("socket", s.listenPath))

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.tableMu.Lock()
				for flowID, entry := range s.flows {
					delete(s.flows, flowID)
					closeEntry(entry)
				}
				s.tableMu.Unlock()
				s.workerWG.Wait()
				return nil
			default:
				return err
			}
		}
		go s.handleConn(conn)
	}
}

// handleConn runs one connection's frame-reading loop until EOF or error.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	for {
		payload, err := wire.ReadFrame(conn)
		if err != nil {
			return
		}
		if len(payload) < wire.ControlFrameMaxLen {
			s.handleControl(payload)
		} else {
			s.handleData(payload)
		}
	}
}

func (s *Server) handleControl(payload []byte) {
	ctrl, ok := wire.DecodeControl(payload)
	if !ok {
		s.log.Warn("dropping malformed control frame")
		if s.metrics != nil {
			s.metrics.FrameDropped("malformed_control")
		}
		return
	}
	switch {
	case ctrl.Connect != nil:
		s.connectFlow(ctrl.Connect.FlowID)
	case ctrl.Disconnect != nil:
		s.disconnectFlow(ctrl.Disconnect.FlowID)
	}
}

// connectFlow tears down any existing worker for flowID, then starts a
// fresh one: a Connect on a live flow always replaces its worker rather
// than being ignored or rejected.
func (s *Server) connectFlow(flowID uint32) {
	s.tableMu.Lock()
	if existing, ok := s.flows[flowID]; ok {
		delete(s.flows, flowID)
		s.tableMu.Unlock()
		closeEntry(existing)
		if s.metrics != nil {
			s.metrics.FlowDisconnected(flowID)
		}
		s.log.Info("replaced existing flow worker", zap.Uint32("flow_id", flowID))
		s.tableMu.Lock()
	}

	entry := &flowEntry{tx: make(chan wire.ReportEntry, 64)}
	s.flows[flowID] = entry
	s.tableMu.Unlock()

	s.workerWG.Add(1)
	go func() {
		defer s.workerWG.Done()
		s.runWorker(flowID, entry)
	}()

	if s.metrics != nil {
		s.metrics.FlowConnected(flowID)
	}
}

func (s *Server) disconnectFlow(flowID uint32) {
	s.tableMu.Lock()
	entry, ok := s.flows[flowID]
	if ok {
		delete(s.flows, flowID)
	}
	s.tableMu.Unlock()
	if !ok {
		return
	}
	closeEntry(entry)
	if s.metrics != nil {
		s.metrics.FlowDisconnected(flowID)
	}
}

// closeEntry marks entry closed and closes its channel under its own
// mutex, so any in-flight send in handleData observes closed == true
// before it would otherwise race a send on a closed channel.
func closeEntry(entry *flowEntry) {
	entry.mu.Lock()
	entry.closed = true
	close(entry.tx)
	entry.mu.Unlock()
}

// Snapshots returns a point-in-time copy of every live flow's dashboard
// state, for internal/dashboard to render. Flows whose worker has not yet
// ingested a report are omitted.
func (s *Server) Snapshots() []flowctrl.Snapshot {
	s.tableMu.Lock()
	entries := make([]*flowEntry, 0, len(s.flows))
	for _, entry := range s.flows {
		entries = append(entries, entry)
	}
	s.tableMu.Unlock()

	snaps := make([]flowctrl.Snapshot, 0, len(entries))
	for _, entry := range entries {
		if snap := entry.snapshot.Load(); snap != nil {
			snaps = append(snaps, *snap)
		}
	}
	return snaps
}

func (s *Server) handleData(payload []byte) {
	report, ok := wire.DecodeReportEntry(payload)
	if !ok {
		s.log.Warn("dropping malformed data frame")
		if s.metrics != nil {
			s.metrics.FrameDropped("malformed_data")
		}
		return
	}

	s.tableMu.Lock()
	entry, ok := s.flows[report.FlowID]
	s.tableMu.Unlock()
	if !ok {
		if s.metrics != nil {
			s.metrics.FrameDropped("unknown_flow")
		}
		return
	}

	entry.mu.Lock()
	if !entry.closed {
		entry.tx <- report
	}
	entry.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ReportReceived(report.FlowID, int(report.ChunkLen))
	}
}
