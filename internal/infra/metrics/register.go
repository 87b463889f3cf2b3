package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once       sync.Once
	collectors []prometheus.Collector
)

// register is called from init() in each metrics file.
func register(cs ...prometheus.Collector) {
	collectors = append(collectors, cs...)
}

// MustRegister registers every collector with the default registry, once per process.
func MustRegister() {
	once.Do(func() { MustRegisterTo(prometheus.DefaultRegisterer) })
}

// MustRegisterTo registers every collector with reg; tests pass a fresh registry.
func MustRegisterTo(reg prometheus.Registerer) {
	if len(collectors) > 0 {
		reg.MustRegister(collectors...)
	}
}

// norm lower-cases label values and joins inner spaces so "Voice Note" and "voice_note" agree.
func norm(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
}
