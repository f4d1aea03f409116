package flowctrl

import (
	"testing"

	"flowctld/internal/config"
	"flowctld/internal/wire"
)

// syntheticEntry builds one report interval's worth of evenly spaced
// samples at the given rate (bytes/sample), RTT (ms), and loss (bytes per
// sample), ending the interval when end is true.
func syntheticEntry(flowID uint32, startSeq int, n int, startTimeUS, stepUS uint32, rttMillis, acked, lost uint32, end bool) wire.ReportEntry {
	elems := make([]wire.ReportDataElem, n)
	for i := 0; i < n; i++ {
		elems[i] = wire.ReportDataElem{
			RTT:        rttMillis * 1000,
			AckedBytes: acked,
			LostBytes:  lost,
			Timestamp:  startTimeUS + uint32(i)*stepUS,
		}
	}
	chunkID := int16(startSeq)
	if end {
		chunkID = -1
	}
	return wire.ReportEntry{
		FlowID:    flowID,
		ChunkID:   chunkID,
		ChunkLen:  uint16(n),
		DataArray: elems,
	}
}

func feedIntervals(f *FlowCtrl, intervals int, rttMillis uint32) {
	var tUS uint32
	const stepUS = 2000 // 2ms between samples
	for iv := 0; iv < intervals; iv++ {
		for chunk := 0; chunk < 3; chunk++ {
			end := chunk == 2
			e := syntheticEntry(7, chunk, 10, tUS, stepUS, rttMillis, 1448, 0, end)
			f.AddData(e)
			tUS += stepUS * 10
		}
	}
}

func TestAddDataBindsFlowID(t *testing.T) {
	f := New(config.AppFile, nil)
	if _, ok := f.FlowID(); ok {
		t.Fatal("expected no flow id bound before first sample")
	}
	feedIntervals(f, 1, 60)
	id, ok := f.FlowID()
	if !ok || id != 7 {
		t.Fatalf("got (%d,%v), want (7,true)", id, ok)
	}
}

func TestProcessKeepsTradeOffInRange(t *testing.T) {
	f := New(config.AppFile, nil)
	for i := 0; i < 40; i++ {
		feedIntervals(f, 1, 60)
		if cmd, fired := f.Process(); fired {
			if cmd == nil {
				t.Fatal("fired decision must return a non-nil command")
			}
			if f.curTradeOff < minTradeOff || f.curTradeOff > maxTradeOff {
				t.Fatalf("cur_trade_off out of range: %d", f.curTradeOff)
			}
		}
	}
}

func TestProcessNoOpWithoutIntervalBoundary(t *testing.T) {
	f := New(config.AppFile, nil)
	e := syntheticEntry(7, 0, 10, 0, 2000, 60, 1448, 0, false)
	f.AddData(e)
	if _, fired := f.Process(); fired {
		t.Fatal("expected no decision before an interval boundary")
	}
}

func TestClearHistoryResetsBuffersButKeepsMinRTTAndTradeOff(t *testing.T) {
	f := New(config.AppFile, nil)
	feedIntervals(f, 2, 60)
	prevMinRTTs := len(f.minRTTs)
	prevTradeOff := f.curTradeOff
	f.clearHistory()

	if len(f.historyRTT) != 0 || len(f.smoothedRate) != 0 || len(f.smoothedBDP) != 0 {
		t.Fatal("expected history buffers to be emptied")
	}
	if len(f.minRTTs) != prevMinRTTs {
		t.Fatal("expected minrtts to survive clearHistory")
	}
	if f.curTradeOff != prevTradeOff {
		t.Fatal("expected cur_trade_off to survive clearHistory")
	}
}

func TestZeroChunkLenIsIgnored(t *testing.T) {
	f := New(config.AppFile, nil)
	e := wire.ReportEntry{FlowID: 3, ChunkID: 0, ChunkLen: 0}
	f.AddData(e)
	if len(f.historyRTT) != 0 {
		t.Fatal("expected zero-length chunk to add no samples")
	}
	id, ok := f.FlowID()
	if !ok || id != 3 {
		t.Fatal("expected flow id to still bind on a zero-length chunk")
	}
}

func TestCoarseAdjustBranchMapping(t *testing.T) {
	f := New(config.AppFile, nil)
	f.curTradeOff = 100
	f.qoeLambda = 1.0
	f.ewmaRate = 10
	f.minRTTs = []float64{60}

	f.lossRate = 0.0
	half := f.coarseAdjust(netLambdaBeta{lambda: 0.1})
	f.lossRate = 0.2
	full := f.coarseAdjust(netLambdaBeta{lambda: 0.1})
	if !(half < full) {
		t.Fatalf("expected clean-and-underprovisioned half step (%v) < lossy full step (%v)", half, full)
	}
}
