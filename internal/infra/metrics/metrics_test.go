package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMustRegisterTo(t *testing.T) {
	reg := prometheus.NewRegistry()
	MustRegisterTo(reg)

	IncRouted("Command", "/save")
	IncJobRun("file temp sweep", "ok")
	SetBuildInfo("v1", "abc")

	if got := testutil.ToFloat64(routedMessagesTotal.WithLabelValues("command", "/save")); got < 1 {
		t.Fatalf("routed counter = %v", got)
	}
	if got := testutil.ToFloat64(jobRunsTotal.WithLabelValues("file_temp_sweep", "ok")); got < 1 {
		t.Fatalf("job counter = %v", got)
	}
	if n, err := testutil.GatherAndCount(reg, "build_info"); err != nil || n != 1 {
		t.Fatalf("build_info series = %d (err=%v)", n, err)
	}
}
