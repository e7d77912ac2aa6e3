//go:build !integration

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	IncGeneration(" Answer ", "completed")
	if got := testutil.ToFloat64(generationRunsTotal.WithLabelValues("answer", "completed")); got < 1 {
		t.Errorf("labels should be normalised, got %v", got)
	}

	before := testutil.ToFloat64(storeErrorsTotal.WithLabelValues("search"))
	IncStoreError("search")
	if got := testutil.ToFloat64(storeErrorsTotal.WithLabelValues("search")); got != before+1 {
		t.Errorf("want %v, got %v", before+1, got)
	}
}

func TestMustRegister_Idempotent(t *testing.T) {
	MustRegister()
	MustRegister()
}

func TestRegister_FreshRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	IncWorkerTask("ok")
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "worker_tasks_total" {
			found = true
		}
	}
	if !found {
		t.Error("worker_tasks_total not exported")
	}
	if err := Register(reg); err == nil {
		t.Error("second registration on the same registry should fail")
	}
}
