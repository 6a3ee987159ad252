package prometheus

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCollector_IncCounter(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := New(registry)

	c.IncCounter("test_counter_total", 1)
	c.IncCounter("test_counter_total", 2)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	found := false
	for _, f := range families {
		if f.GetName() == "test_counter_total" {
			found = true
			if got := f.GetMetric()[0].GetCounter().GetValue(); got != 3 {
				t.Errorf("counter value = %v, want 3", got)
			}
		}
	}
	if !found {
		t.Error("counter not registered")
	}
}

func TestCollector_SetGauge(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := New(registry)

	c.SetGauge("test_gauge", 42)
	c.SetGauge("test_gauge", 7)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	found := false
	for _, f := range families {
		if f.GetName() == "test_gauge" {
			found = true
			if got := f.GetMetric()[0].GetGauge().GetValue(); got != 7 {
				t.Errorf("gauge value = %v, want 7", got)
			}
		}
	}
	if !found {
		t.Error("gauge not registered")
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := New(registry)

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				c.IncCounter("concurrent_counter_total", 1)
			}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() == "concurrent_counter_total" {
			if got := f.GetMetric()[0].GetCounter().GetValue(); got != 1000 {
				t.Errorf("counter value = %v, want 1000", got)
			}
		}
	}
}
