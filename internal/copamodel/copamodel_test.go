package copamodel

import "testing"

func TestQueueDelayStrictlyDecreasingInDelta(t *testing.T) {
	minRTT := 0.06
	bw := 10.0
	prev := QueueDelay(50, bw, minRTT, false)
	for delta := 100; delta <= 500; delta += 50 {
		cur := QueueDelay(delta, bw, minRTT, false)
		if cur >= prev {
			t.Fatalf("QueueDelay not decreasing at delta=%d: prev=%v cur=%v", delta, prev, cur)
		}
		prev = cur
	}
}

func TestQueueDelayGuardsZeroBandwidth(t *testing.T) {
	got := QueueDelay(100, 0, 0.06, false)
	want := QueueDelay(100, 0.001, 0.06, false)
	if got != want {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestQueueDelayBounceMultiplier(t *testing.T) {
	plain := QueueDelay(50, 10, 0.06, false)
	bounced := QueueDelay(50, 10, 0.06, true)
	if bounced <= plain {
		t.Fatalf("expected bounce delay to be larger: plain=%v bounced=%v", plain, bounced)
	}
}

func TestLossNonIncreasingInDelta(t *testing.T) {
	maxQlen := 20.0
	prev := Loss(10, maxQlen)
	for delta := 50; delta <= 500; delta += 50 {
		cur := Loss(delta, maxQlen)
		if cur > prev {
			t.Fatalf("Loss increased at delta=%d: prev=%v cur=%v", delta, prev, cur)
		}
		prev = cur
	}
}

func TestLossFlooredAtZero(t *testing.T) {
	got := Loss(500, 1000)
	if got != 0 {
		t.Fatalf("got %v want 0", got)
	}
}

func TestRelativeThroughputHighFreqNonPositive(t *testing.T) {
	got := RelativeThroughputHighFreq(4, 100, 0.06)
	if got > 0 {
		t.Fatalf("got %v, want <= 0 (deficit from full utilization)", got)
	}
}

func TestRelativeThroughputLowFreqNonPositive(t *testing.T) {
	got := RelativeThroughputLowFreq(4, 100, 0.06, 0.32)
	if got > 0 {
		t.Fatalf("got %v, want <= 0", got)
	}
}
