package simulation

import (
	"math"

	"github.com/kiranshivaraju/insightgate/pkg/models"
)

// activityShape is a cumulative distribution over an activity column.
type activityShape interface {
	// below returns the fraction of records with activity strictly under x.
	below(x float64) float64
}

// shapeFor picks the most informative model the pipeline reported:
// the histogram, then a normal fit from mean and std, then an exponential
// with the reported mean. It returns nil when none can be built.
func shapeFor(dist *models.ColumnDistribution, avgActivity *float64) activityShape {
	if dist != nil {
		if h := newHistogramShape(dist.Histogram); h != nil {
			return h
		}
	}

	var mean *float64
	if dist != nil && dist.Mean != nil {
		mean = dist.Mean
	} else {
		mean = avgActivity
	}
	if mean == nil || math.IsNaN(*mean) || math.IsInf(*mean, 0) {
		return nil
	}
	if dist != nil && dist.Std != nil && *dist.Std > 0 && !math.IsInf(*dist.Std, 0) {
		return normalShape{mean: *mean, std: *dist.Std}
	}
	if *mean > 0 {
		return exponentialShape{mean: *mean}
	}
	return nil
}

type histogramShape struct {
	bins  []models.HistogramBin
	total float64
}

func newHistogramShape(bins []models.HistogramBin) *histogramShape {
	var total float64
	for _, b := range bins {
		total += b.Count
	}
	if len(bins) == 0 || total <= 0 {
		return nil
	}
	return &histogramShape{bins: bins, total: total}
}

// below interpolates linearly inside the bin containing x.
func (h *histogramShape) below(x float64) float64 {
	var acc float64
	for _, b := range h.bins {
		switch {
		case x >= b.Upper:
			acc += b.Count
		case x > b.Lower:
			acc += b.Count * (x - b.Lower) / (b.Upper - b.Lower)
		}
	}
	return acc / h.total
}

type normalShape struct {
	mean float64
	std  float64
}

func (n normalShape) below(x float64) float64 {
	return 0.5 * math.Erfc(-(x-n.mean)/(n.std*math.Sqrt2))
}

type exponentialShape struct {
	mean float64
}

func (e exponentialShape) below(x float64) float64 {
	if x <= 0 {
		return 0
	}
	return 1 - math.Exp(-x/e.mean)
}
