package flowctrl

// updateMinRTT folds a newly observed RTT sample (ms) into the sliding
// 10-second minRTT window, evicting stale entries first.
func (f *FlowCtrl) updateMinRTT(rttMillis float64) {
	now := wallClockNow()
	cut := 0
	for cut < len(f.minRTTTimestamps) && f.minRTTTimestamps[cut] < now-minRTTWindowSecs {
		cut++
	}
	if cut > 0 {
		f.minRTTs = append([]float64{}, f.minRTTs[cut:]...)
		f.minRTTTimestamps = append([]float64{}, f.minRTTTimestamps[cut:]...)
	}
	f.minRTTs = append(f.minRTTs, rttMillis)
	f.minRTTTimestamps = append(f.minRTTTimestamps, now)
}

// updateLoss recomputes the loss rate over the most recent two intervals
// and records a max-queue-length sample derived from it.
func (f *FlowCtrl) updateLoss() {
	n := intervalsSum(f.intervalsLen, 2)
	acked := tail(f.historyAckedBytes, n)
	lost := tail(f.historyLostBytes, n)

	totalAcked := sumOf(acked)
	totalLost := sumOf(lost)
	denom := totalLost + totalAcked
	if denom == 0 {
		f.lossRate = 0
		return
	}
	f.lossRate = totalLost / denom
	if f.lossRate > 0 {
		f.historyMaxQlen = append(f.historyMaxQlen, (1-f.lossRate)/float64(f.curTradeOff)*1000.0)
	}
}

// intervalsSum sums the last n entries of intervalsLen (or all of them if
// there are fewer than n), mirroring sum(self.intervals_len[-n:]).
func intervalsSum(x []int, n int) int {
	start := len(x) - n
	if start < 0 {
		start = 0
	}
	s := 0
	for _, v := range x[start:] {
		s += v
	}
	return s
}

func sumOf(x []float64) float64 {
	s := 0.0
	for _, v := range x {
		s += v
	}
	return s
}
