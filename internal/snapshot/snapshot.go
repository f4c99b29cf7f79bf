// Package snapshot assembles immutable report snapshots.
package snapshot

import (
	"time"

	"github.com/sitereport/sitereport/internal/aggregate"
	"github.com/sitereport/sitereport/internal/config"
	"github.com/sitereport/sitereport/internal/model"
	"github.com/sitereport/sitereport/internal/period"
)

// Build combines client identity, period and aggregation output into a
// ReportSnapshot. It performs no I/O; the result depends only on its inputs.
func Build(client config.Client, p model.MonthPeriod, res *aggregate.Result, generatedAt time.Time) *model.ReportSnapshot {
	warnings := make([]string, len(res.Warnings))
	copy(warnings, res.Warnings)

	return &model.ReportSnapshot{
		SchemaVersion: model.SnapshotSchemaVersion,
		ClientID:      client.ID,
		ZoneID:        client.ZoneID,
		Domain:        client.Domain,
		Timezone:      client.TimezoneName(),
		MonthKey:      p.MonthKey,
		MonthLabel:    period.MonthLabel(p, client.Location()),
		Period:        p,
		Traffic:       res.Traffic,
		Security:      res.Security,
		Performance:   res.Performance,
		Warnings:      warnings,
		GeneratedAt:   generatedAt.UTC(),
	}
}
