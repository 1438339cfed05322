package gaussian

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Sort columns, numbered as in the results table.
const (
	ColumnGibbsKJ      = 2
	ColumnLowestFreq   = 3
	ColumnGibbsHartree = 4
	ColumnNuclear      = 5
	ColumnSCF          = 6
	ColumnZPE          = 7
	ColumnCopyrights   = 10
)

var sortKeys = map[int]func(Result) float64{
	ColumnGibbsKJ:      func(r Result) float64 { return r.GibbsKJ },
	ColumnLowestFreq:   func(r Result) float64 { return r.LowestFreq },
	ColumnGibbsHartree: func(r Result) float64 { return r.GibbsHartree },
	ColumnNuclear:      func(r Result) float64 { return r.Nuclear },
	ColumnSCF:          func(r Result) float64 { return r.SCF },
	ColumnZPE:          func(r Result) float64 { return r.ZPE },
	ColumnCopyrights:   func(r Result) float64 { return float64(r.Copyrights) },
}

// ValidColumn reports whether column can be sorted on.
func ValidColumn(column int) bool {
	_, ok := sortKeys[column]
	return ok
}

// SortResults orders results ascending by column, keeping input order
// for ties.
func SortResults(results []Result, column int) error {
	key, ok := sortKeys[column]
	if !ok {
		return fmt.Errorf("invalid sort column %d (valid: 2-7, 10)", column)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return key(results[i]) < key(results[j])
	})
	return nil
}

// RelativeEnergies returns each result's Gibbs free energy in kJ/mol
// relative to the lowest one.
func RelativeEnergies(results []Result) []float64 {
	if len(results) == 0 {
		return nil
	}
	g := make([]float64, len(results))
	for i, r := range results {
		g[i] = r.GibbsKJ
	}
	floats.AddConst(-floats.Min(g), g)
	return g
}
