package gaussian

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// HartreeToEV converts Hartree to electron volts.
const HartreeToEV = 27.211396641308

// HighLevel is a single-point energy from a high-level calculation
// combined with the thermal corrections of the low-level frequency job it
// was run on. Energies are in Hartree unless the name says otherwise.
type HighLevel struct {
	Name            string   `json:"name" yaml:"name"`
	EHigh           float64  `json:"e_high" yaml:"e_high"`
	ELow            float64  `json:"e_low" yaml:"e_low"`
	ZPE             float64  `json:"zpe" yaml:"zpe"`
	ThermalOnly     float64  `json:"thermal_only" yaml:"thermal_only"`
	TS              float64  `json:"ts" yaml:"ts"`
	Enthalpy        float64  `json:"enthalpy" yaml:"enthalpy"`
	Gibbs           float64  `json:"gibbs" yaml:"gibbs"`
	GibbsKJ         float64  `json:"gibbs_kj_mol" yaml:"gibbs_kj_mol"`
	GibbsEV         float64  `json:"gibbs_ev" yaml:"gibbs_ev"`
	PhaseCorrection float64  `json:"phase_correction" yaml:"phase_correction"`
	LowestFreq      float64  `json:"lowest_frequency" yaml:"lowest_frequency"`
	Temperature     float64  `json:"temperature" yaml:"temperature"`
	Status          RunState `json:"status" yaml:"status"`
	PhaseCorrected  bool     `json:"phase_corrected" yaml:"phase_corrected"`
}

// CombineHighLevel builds H = E_high + TC_H and G = E_high + TC_G from the
// parsed high-level log and its low-level parent. The phase correction
// applies when the high-level job ran in solvent, at the parent's
// temperature. concM of zero means DefaultConcentration.
func CombineHighLevel(high, low Result, concM float64) HighLevel {
	if concM <= 0 {
		concM = DefaultConcentration
	}

	h := HighLevel{
		Name:        high.Name,
		EHigh:       high.SinglePoint,
		ELow:        low.Reference,
		ZPE:         low.ZPE,
		ThermalOnly: low.EnergyCorr - low.ZPE,
		TS:          low.EnthalpyCorr - low.GibbsCorr,
		Enthalpy:    high.SinglePoint + low.EnthalpyCorr,
		Gibbs:       high.SinglePoint + low.GibbsCorr,
		LowestFreq:  low.LowestFreq,
		Temperature: low.Temperature,
		Status:      high.Status,
	}
	if high.PhaseCorrected {
		h.PhaseCorrection = PhaseCorrection(h.Temperature, concM)
		h.Gibbs += h.PhaseCorrection
		h.PhaseCorrected = true
	}
	h.GibbsKJ = h.Gibbs * HartreeToKJ
	h.GibbsEV = h.Gibbs * HartreeToEV
	return h
}

// parentExtensions are tried when the parent log is not named like the
// high-level one.
var parentExtensions = []string{".log", ".out"}

// ParentLog returns the low-level log for the high-level log at path: the
// file of the same name one directory up, or the same job stem with a
// .log or .out extension, plain or compressed.
func ParentLog(path string) (string, error) {
	dir := filepath.Dir(filepath.Dir(path))
	candidates := []string{filepath.Join(dir, filepath.Base(path))}

	stem := filepath.Join(dir, filepath.Base(JobStem(path)))
	for _, ext := range parentExtensions {
		for _, z := range []string{"", ".gz", ".zst"} {
			candidates = append(candidates, stem+ext+z)
		}
	}

	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.Mode().IsRegular() {
			return c, nil
		}
	}
	return "", fmt.Errorf("no parent log for %s in %s: %w", filepath.Base(path), dir, fs.ErrNotExist)
}

// SortHighLevel orders results by Gibbs free energy, lowest first.
func SortHighLevel(results []HighLevel) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Gibbs < results[j].Gibbs
	})
}
