package consolidate

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	prettytext "github.com/jedib0t/go-pretty/v6/text"

	"github.com/modullar/violations-tracker-backend/internal/dedup"
)

// ClusterReport records one planned or applied cluster merge.
type ClusterReport struct {
	Size          int                               `json:"size"`
	CanonicalUUID string                            `json:"canonical_uuid"`
	AbsorbedUUIDs []string                          `json:"absorbed_uuids"`
	Breakdowns    map[string]dedup.SimilarityResult `json:"breakdowns,omitempty"`
}

// Report summarizes one consolidation run. A dry run carries the full cluster
// plan with merged/deleted counters left at zero.
type Report struct {
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
	DryRun         bool            `json:"dry_run"`
	CorpusSize     int             `json:"corpus_size"`
	Threshold      float64         `json:"threshold"`
	Clusters       []ClusterReport `json:"clusters"`
	MergedClusters int             `json:"merged_clusters"`
	DeletedRecords int             `json:"deleted_records"`
}

// RenderTable returns the run summary as a terminal table, one row per
// cluster.
func (r *Report) RenderTable() string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Cluster", "Size", "Canonical", "Absorbed", "Top Score"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: prettytext.AlignRight, AlignHeader: prettytext.AlignLeft},
		{Number: 2, Align: prettytext.AlignRight, AlignHeader: prettytext.AlignLeft},
		{Number: 5, Align: prettytext.AlignRight, AlignHeader: prettytext.AlignLeft},
	})

	for i, cluster := range r.Clusters {
		tw.AppendRow(table.Row{
			i + 1,
			cluster.Size,
			cluster.CanonicalUUID,
			strings.Join(cluster.AbsorbedUUIDs, "\n"),
			formatTopScore(cluster),
		})
	}

	mode := "applied"
	if r.DryRun {
		mode = "dry run"
	}
	tw.AppendFooter(table.Row{
		"", "",
		fmt.Sprintf("%d records, threshold %.2f", r.CorpusSize, r.Threshold),
		fmt.Sprintf("%d clusters (%s)", len(r.Clusters), mode),
		fmt.Sprintf("%d deleted", r.DeletedRecords),
	})

	return tw.Render()
}

func formatTopScore(cluster ClusterReport) string {
	top := 0.0
	for _, result := range cluster.Breakdowns {
		if result.Total > top {
			top = result.Total
		}
	}
	if top == 0 {
		return "-"
	}
	return fmt.Sprintf("%.3f", top)
}
