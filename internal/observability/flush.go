package observability

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// batchCounters are logged on exit; batch binaries are not scraped.
var batchCounters = []string{"enrichArticlesTotal", "ingestReadingsTotal", "upstreamCallsTotal", "cacheHitsTotal"}

// FlushTelemetry logs the batch counters that moved during this process and
// flushes the logger. Call last, after in-flight work has drained.
func FlushTelemetry(ctx context.Context, logger *zap.Logger) error {
	if logger == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if fields := counterFields(); len(fields) > 0 {
		logger.Info("telemetry summary", fields...)
	}
	if err := logger.Sync(); err != nil {
		return fmt.Errorf("flush logs: %w", err)
	}
	return nil
}

// counterFields returns one field per non-zero series of batchCounters,
// keyed name{label=value,...}.
func counterFields() []zap.Field {
	families, err := registry.Gather()
	if err != nil {
		return nil
	}
	wanted := make(map[string]bool, len(batchCounters))
	for _, n := range batchCounters {
		wanted[n] = true
	}

	var fields []zap.Field
	for _, mf := range families {
		if !wanted[mf.GetName()] {
			continue
		}
		for _, m := range mf.GetMetric() {
			v := m.GetCounter().GetValue()
			if v == 0 {
				continue
			}
			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			sort.Strings(labels)
			fields = append(fields, zap.Float64(mf.GetName()+"{"+strings.Join(labels, ",")+"}", v))
		}
	}
	return fields
}
