// Package simulation recomputes a bounded set of derived metrics under
// what-if column modifiers. It never changes the baseline it is given.
package simulation

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/kiranshivaraju/insightgate/internal/config"
	"github.com/kiranshivaraju/insightgate/pkg/models"
)

var (
	// ErrNoScenario is returned when Simulate is called without any entries.
	ErrNoScenario = errors.New("no scenario")
	// ErrFactorOutOfRange is returned for a non-finite factor or one outside the configured bounds.
	ErrFactorOutOfRange = errors.New("modification factor out of range")
	// ErrEmptyColumn is returned for an entry without a target column.
	ErrEmptyColumn = errors.New("scenario entry has no target column")
)

// Scenario is an ordered set of column modifiers with at most one entry per
// column. The zero value is not usable; use NewScenario.
type Scenario struct {
	entries []models.ScenarioEntry
	min     float64
	max     float64
}

// NewScenario returns an empty scenario bounded by th.FactorMin and th.FactorMax.
func NewScenario(th config.Thresholds) *Scenario {
	return &Scenario{min: th.FactorMin, max: th.FactorMax}
}

// Set adds a modifier for column, replacing any existing modifier for the
// same column in place. Factors never stack.
func (s *Scenario) Set(column string, factor float64) error {
	col := strings.TrimSpace(column)
	if err := checkEntry(col, factor, s.min, s.max); err != nil {
		return err
	}
	for i := range s.entries {
		if sameColumn(s.entries[i].TargetColumn, col) {
			s.entries[i].ModificationFactor = factor
			return nil
		}
	}
	s.entries = append(s.entries, models.ScenarioEntry{TargetColumn: col, ModificationFactor: factor})
	return nil
}

// Remove drops the modifier for column and reports whether one existed.
func (s *Scenario) Remove(column string) bool {
	for i := range s.entries {
		if sameColumn(s.entries[i].TargetColumn, column) {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Reset discards every modifier.
func (s *Scenario) Reset() {
	s.entries = nil
}

// Len returns the number of modifiers.
func (s *Scenario) Len() int {
	return len(s.entries)
}

// Entries returns a copy of the modifiers in insertion order.
func (s *Scenario) Entries() []models.ScenarioEntry {
	return append([]models.ScenarioEntry{}, s.entries...)
}

func checkEntry(column string, factor, lo, hi float64) error {
	if column == "" {
		return ErrEmptyColumn
	}
	if math.IsNaN(factor) || math.IsInf(factor, 0) || factor < lo || factor > hi {
		return fmt.Errorf("%w: %s=%v not in [%v, %v]", ErrFactorOutOfRange, column, factor, lo, hi)
	}
	return nil
}

func sameColumn(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// normalize validates entries and collapses repeats of a column, keeping the
// last factor at the position the column first appeared.
func normalize(entries []models.ScenarioEntry, th config.Thresholds) ([]models.ScenarioEntry, error) {
	s := NewScenario(th)
	for _, e := range entries {
		if err := s.Set(e.TargetColumn, e.ModificationFactor); err != nil {
			return nil, err
		}
	}
	return s.entries, nil
}
