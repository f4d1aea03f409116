package demux

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"flowctld/internal/config"
	"flowctld/internal/wire"
)

// fakeAgent accepts connections on agentPath and echoes back an empty JSON
// object for every framed command it receives, standing in for the
// data-plane agent the worker dials.
func fakeAgent(t *testing.T, agentPath string) net.Listener {
	t.Helper()
	ln, err := net.Listen("unix", agentPath)
	if err != nil {
		t.Fatalf("listen agent socket: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				for {
					if _, err := wire.ReadFrame(c); err != nil {
						return
					}
					if err := wire.WriteFrame(c, []byte("{}")); err != nil {
						return
					}
				}
			}(conn)
		}
	}()
	return ln
}

func writeFrame(t *testing.T, conn net.Conn, payload []byte) {
	t.Helper()
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := conn.Write(lenBuf[:]); err != nil {
		t.Fatalf("write frame length: %v", err)
	}
	if _, err := conn.Write(payload); err != nil {
		t.Fatalf("write frame payload: %v", err)
	}
}

func TestServerRoutesConnectReportAndDisconnect(t *testing.T) {
	dir := t.TempDir()
	reportPath := filepath.Join(dir, "report.sock")
	agentPath := filepath.Join(dir, "agent.sock")

	agentLn := fakeAgent(t, agentPath)
	defer agentLn.Close()

	cfg := config.Default()
	cfg.ReportSocketPath = reportPath
	cfg.AgentSocketPath = agentPath

	s := New(cfg, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitForSocket(t, reportPath)

	conn, err := net.Dial("unix", reportPath)
	if err != nil {
		t.Fatalf("dial report socket: %v", err)
	}
	defer conn.Close()

	connectMsg, _ := json.Marshal(map[string]any{"Connect": map[string]uint32{"flow_id": 42}})
	writeFrame(t, conn, connectMsg)

	waitUntil(t, func() bool {
		s.tableMu.Lock()
		defer s.tableMu.Unlock()
		_, ok := s.flows[42]
		return ok
	})

	payload := wire.EncodeReportEntry(wire.ReportEntry{
		FlowID:   42,
		ChunkID:  -1,
		ChunkLen: 1,
		DataArray: []wire.ReportDataElem{
			{RTT: 60000, AckedBytes: 1448, LostBytes: 0, Timestamp: 0},
		},
	})
	writeFrame(t, conn, payload)

	disconnectMsg, _ := json.Marshal(map[string]any{"Disconnect": map[string]uint32{"flow_id": 42}})
	writeFrame(t, conn, disconnectMsg)

	waitUntil(t, func() bool {
		s.tableMu.Lock()
		defer s.tableMu.Unlock()
		_, ok := s.flows[42]
		return !ok
	})
}

func TestUnknownFlowDataFrameIsDropped(t *testing.T) {
	dir := t.TempDir()
	reportPath := filepath.Join(dir, "report.sock")

	cfg := config.Default()
	cfg.ReportSocketPath = reportPath
	cfg.AgentSocketPath = filepath.Join(dir, "agent.sock")

	s := New(cfg, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	waitForSocket(t, reportPath)

	conn, err := net.Dial("unix", reportPath)
	if err != nil {
		t.Fatalf("dial report socket: %v", err)
	}
	defer conn.Close()

	payload := wire.EncodeReportEntry(wire.ReportEntry{
		FlowID:   999,
		ChunkID:  -1,
		ChunkLen: 1,
		DataArray: []wire.ReportDataElem{
			{RTT: 60000, AckedBytes: 1448, LostBytes: 0, Timestamp: 0},
		},
	})
	writeFrame(t, conn, payload)

	s.tableMu.Lock()
	defer s.tableMu.Unlock()
	if _, ok := s.flows[999]; ok {
		t.Fatal("expected no flow table entry for an unknown flow id's data frame")
	}
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("socket %s never appeared", path)
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
