// Package metrics holds the small pieces of Prometheus wiring shared
// across cmd/serve: parsing --metrics-labels into constant labels and
// wrapping the default registerer with them, grounded on the teacher's
// internal/security/metrics.go ParseMetricsLabels/InitMetrics pair.
package metrics

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

var validLabelKey = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParseLabels parses a comma-separated list of key=value pairs into
// Prometheus constant labels. Values support ${VAR}/$VAR environment
// expansion. Returns nil for an empty string.
func ParseLabels(s string) (prometheus.Labels, error) {
	s = os.Expand(s, os.Getenv)
	if s == "" {
		return nil, nil
	}
	labels := prometheus.Labels{}
	for _, pair := range strings.Split(s, ",") {
		idx := strings.IndexByte(pair, '=')
		if idx < 0 {
			return nil, fmt.Errorf("invalid label %q: expected key=value", pair)
		}
		k, v := pair[:idx], pair[idx+1:]
		if !validLabelKey.MatchString(k) {
			return nil, fmt.Errorf("invalid label key %q: must match [a-zA-Z_][a-zA-Z0-9_]*", k)
		}
		labels[k] = v
	}
	return labels, nil
}

// ApplyConstantLabels rewraps the default Prometheus registerer so every
// collector registered afterwards (taskruntime.InitMetrics included)
// carries labels as constant labels. No-op for an empty map.
func ApplyConstantLabels(labels prometheus.Labels) {
	if len(labels) == 0 {
		return
	}
	prometheus.DefaultRegisterer = prometheus.WrapRegistererWith(labels, prometheus.DefaultRegisterer)
}
