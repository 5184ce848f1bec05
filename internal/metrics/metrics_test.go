package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestResult(t *testing.T) {
	tests := []struct {
		err      error
		notFound bool
		want     string
	}{
		{nil, false, resultSuccess},
		{errors.New("disk full"), false, resultError},
		{errors.New("room not found"), true, resultNotFound},
	}
	for _, tt := range tests {
		if got := result(tt.err, tt.notFound); got != tt.want {
			t.Errorf("result(%v, %v) = %q, want %q", tt.err, tt.notFound, got, tt.want)
		}
	}
}

func TestCounters(t *testing.T) {
	Init()
	Init() // second call is a no-op

	before := testutil.ToFloat64(deviceActions.WithLabelValues("light", "on", resultSuccess))
	DeviceAction("light", "on", nil, false)
	DeviceAction("light", "on", nil, false)
	if got := testutil.ToFloat64(deviceActions.WithLabelValues("light", "on", resultSuccess)); got != before+2 {
		t.Errorf("device actions = %v, want %v", got, before+2)
	}

	before = testutil.ToFloat64(deviceActions.WithLabelValues("tv", "on", resultNotFound))
	DeviceAction("tv", "on", errors.New("device not found"), true)
	if got := testutil.ToFloat64(deviceActions.WithLabelValues("tv", "on", resultNotFound)); got != before+1 {
		t.Errorf("not found actions = %v, want %v", got, before+1)
	}

	SetActiveCycles(3)
	if got := testutil.ToFloat64(activeCycles); got != 3 {
		t.Errorf("active cycles = %v, want 3", got)
	}

	before = testutil.ToFloat64(assistantCalls.WithLabelValues(resultError))
	AssistantCall(2*time.Second, errors.New("exit status 1"))
	if got := testutil.ToFloat64(assistantCalls.WithLabelValues(resultError)); got != before+1 {
		t.Errorf("assistant errors = %v, want %v", got, before+1)
	}
	if n := testutil.CollectAndCount(assistantLatency); n != 1 {
		t.Errorf("latency collectors = %d", n)
	}
}
