package metrics

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// SnapshotFile is the file name WriteSnapshot uses inside the output directory.
const SnapshotFile = "metrics.prom"

// WriteSnapshot renders every metric family gathered from g in the
// Prometheus text exposition format to dir/metrics.prom.
func WriteSnapshot(g prometheus.Gatherer, dir string) (string, error) {
	families, err := g.Gather()
	if err != nil {
		return "", fmt.Errorf("gather metrics: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create metrics dir: %w", err)
	}
	path := filepath.Join(dir, SnapshotFile)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create metrics snapshot: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := bufio.NewWriter(f)
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return "", fmt.Errorf("write metric family %s: %w", mf.GetName(), err)
		}
	}
	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("flush metrics snapshot: %w", err)
	}
	return path, nil
}
