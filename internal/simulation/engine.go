package simulation

import (
	"math"
	"sort"

	"github.com/kiranshivaraju/insightgate/internal/config"
	"github.com/kiranshivaraju/insightgate/pkg/models"
)

// Baseline is the immutable starting point for simulations. It holds copies
// of the extracted values, so later changes to the extraction do not leak in.
type Baseline struct {
	churn *churnModel
	value *valueModel
}

// churnModel predicts the share of records whose activity falls below a
// threshold after the activity column is scaled by f.
type churnModel struct {
	column    string
	pct       float64
	count     float64
	total     int
	threshold float64
	shape     activityShape
}

// valueModel holds value metrics that scale linearly with the value column.
type valueModel struct {
	column  string
	metrics map[string]float64
}

// BaselineFrom captures the derived metrics a simulation can recompute.
// Metrics that cannot be modelled from the extraction are left out.
func BaselineFrom(ex models.Extraction) *Baseline {
	b := &Baseline{}
	if bi := ex.BusinessIntelligence; bi != nil {
		if cr := bi.ChurnRisk; cr != nil && cr.ActivityColumn != "" && cr.LowActivityThreshold != nil {
			var dist *models.ColumnDistribution
			if d, ok := ex.Distribution(cr.ActivityColumn); ok {
				dist = &d
			}
			if shape := shapeFor(dist, cr.AvgActivity); shape != nil {
				b.churn = &churnModel{
					column:    cr.ActivityColumn,
					pct:       cr.AtRiskPercentage,
					count:     float64(cr.AtRiskCount),
					total:     cr.TotalRecords,
					threshold: *cr.LowActivityThreshold,
					shape:     shape,
				}
			}
		}
		if vm := bi.Value; vm != nil && vm.ValueColumn != "" {
			metrics := make(map[string]float64)
			for name, v := range map[string]*float64{
				models.MetricTotalValue:     vm.Total,
				models.MetricAvgValue:       vm.Avg,
				models.MetricMedianValue:    vm.Median,
				models.MetricTopDecileValue: vm.TopDecile,
			} {
				if v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0) {
					metrics[name] = *v
				}
			}
			if len(metrics) > 0 {
				b.value = &valueModel{column: vm.ValueColumn, metrics: metrics}
			}
		}
	}
	return b
}

// Columns returns the columns some derived metric depends on, sorted.
func (b *Baseline) Columns() []string {
	cols := []string{}
	if b == nil {
		return cols
	}
	if b.churn != nil {
		cols = append(cols, b.churn.column)
	}
	if b.value != nil && (b.churn == nil || !sameColumn(b.value.column, b.churn.column)) {
		cols = append(cols, b.value.column)
	}
	sort.Strings(cols)
	return cols
}

// Original returns the baseline value of a derived metric.
func (b *Baseline) Original(name string) (float64, bool) {
	if b == nil {
		return 0, false
	}
	if b.churn != nil {
		switch name {
		case models.MetricAtRiskPercentage:
			return b.churn.pct, true
		case models.MetricAtRiskCount:
			return b.churn.count, true
		}
	}
	if b.value != nil {
		v, ok := b.value.metrics[name]
		return v, ok
	}
	return 0, false
}

// Simulate recomputes derived metrics with each entry's column scaled by its
// factor. Entries for different columns combine independently; a repeated
// column keeps its last factor. Each call starts from the baseline, so results
// never accumulate across calls.
func Simulate(b *Baseline, entries []models.ScenarioEntry, th config.Thresholds) (*models.SimulationResult, error) {
	if len(entries) == 0 {
		return nil, ErrNoScenario
	}
	effective, err := normalize(entries, th)
	if err != nil {
		return nil, err
	}

	res := &models.SimulationResult{
		Delta:      make(map[string]models.MetricDelta),
		Scenario:   append([]models.ScenarioEntry{}, effective...),
		Unaffected: []string{},
	}

	for _, e := range effective {
		used := false

		if b != nil && b.churn != nil && sameColumn(e.TargetColumn, b.churn.column) {
			used = true
			pct, count := b.churn.simulate(e.ModificationFactor)
			res.Delta[models.MetricAtRiskPercentage] = delta(b.churn.pct, pct)
			res.Delta[models.MetricAtRiskCount] = delta(b.churn.count, count)
		}

		if b != nil && b.value != nil && sameColumn(e.TargetColumn, b.value.column) {
			used = true
			for name, v := range b.value.metrics {
				res.Delta[name] = delta(v, v*e.ModificationFactor)
			}
		}

		if !used {
			res.Unaffected = append(res.Unaffected, e.TargetColumn)
		}
	}

	return res, nil
}

func delta(original, simulated float64) models.MetricDelta {
	return models.MetricDelta{Original: original, Simulated: simulated, Delta: simulated - original}
}

// simulate returns the at-risk percentage and count with activity scaled by f.
// The model is calibrated against the reported baseline: f = 1 reproduces it.
func (c *churnModel) simulate(f float64) (pct, count float64) {
	base := c.shape.below(c.threshold)
	cur := c.shape.below(c.threshold / f)

	if base > 0 {
		ratio := cur / base
		pct = c.pct * ratio
		count = math.Round(c.count * ratio)
	} else {
		pct = cur * 100
		count = math.Round(cur * float64(c.total))
	}

	if pct > 100 {
		pct = 100
	}
	if c.total > 0 && count > float64(c.total) {
		count = float64(c.total)
	}
	return pct, count
}
