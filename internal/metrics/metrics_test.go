package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	c.ScanStarted()
	c.ScanStarted()
	c.PageAcquired()
	c.ScanFinished("completed", time.Second)
	c.ScanFinished("error", time.Second)
	c.SetDevices([]string{"disabled", "enabled"}, map[string]int{"disabled": 2})

	if got := testutil.ToFloat64(c.ScansStarted); got != 2 {
		t.Fatalf("expected 2 scans started, got %v", got)
	}
	if got := testutil.ToFloat64(c.ScansFinished.WithLabelValues("error")); got != 1 {
		t.Fatalf("expected 1 failed scan, got %v", got)
	}
	if got := testutil.ToFloat64(c.Devices.WithLabelValues("disabled")); got != 2 {
		t.Fatalf("expected 2 disabled devices, got %v", got)
	}
	if got := testutil.ToFloat64(c.Devices.WithLabelValues("enabled")); got != 0 {
		t.Fatalf("expected 0 enabled devices, got %v", got)
	}
	if _, err := New(reg); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestNilCollectors(t *testing.T) {
	var c *Collectors
	c.ScanStarted()
	c.PageAcquired()
	c.ScanFinished("completed", time.Millisecond)
	c.SetDevices([]string{"enabled"}, nil)
}
