// Package gaussian reads Gaussian output logs and writes Gaussian input
// decks.
package gaussian

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/jamesainslie/qcsweep/pkg/qcsweep/logging"
)

var logger = logging.Get("gaussian")

// Physical constants for the standard-state phase correction.
const (
	GasConstant   = 8.314462618 // J/(mol K)
	StdPressure   = 101325      // Pa
	HartreeToKJ   = 2625.5002
	jmolToHartree = 0.0003808798033989866 / 1000 // (J/mol) -> Hartree

	DefaultTemperature   = 298.15 // K
	DefaultConcentration = 1.0    // mol/L
)

// tailLines is how many trailing lines are kept for termination checks.
const tailLines = 100

// RunState is the termination state found at the end of a log.
type RunState string

const (
	StateDone   RunState = "DONE"
	StateUndone RunState = "UNDONE"
	StateError  RunState = "ERROR"
)

// ParseOptions controls thermochemistry post-processing.
type ParseOptions struct {
	// Temperature in K used when the log reports none, or always when
	// FixedTemperature is set. Zero means DefaultTemperature.
	Temperature float64

	// FixedTemperature ignores the temperature printed in the log.
	FixedTemperature bool

	// ConcentrationM is the standard-state concentration in mol/L for the
	// phase correction. Zero means DefaultConcentration.
	ConcentrationM float64
}

func (o ParseOptions) withDefaults() ParseOptions {
	if o.Temperature <= 0 {
		o.Temperature = DefaultTemperature
	}
	if o.ConcentrationM <= 0 {
		o.ConcentrationM = DefaultConcentration
	}
	return o
}

// Result holds the energies extracted from one log. Energies are in
// Hartree unless the name says otherwise.
type Result struct {
	Name           string   `json:"name" yaml:"name"`
	GibbsKJ        float64  `json:"gibbs_kj_mol" yaml:"gibbs_kj_mol"`
	LowestFreq     float64  `json:"lowest_frequency" yaml:"lowest_frequency"`
	GibbsHartree   float64  `json:"gibbs_hartree" yaml:"gibbs_hartree"`
	Nuclear        float64  `json:"nuclear_repulsion" yaml:"nuclear_repulsion"`
	SCF            float64  `json:"scf" yaml:"scf"`
	ZPE            float64  `json:"zpe" yaml:"zpe"`
	GibbsCorr      float64  `json:"gibbs_correction" yaml:"gibbs_correction"`
	EnthalpyCorr   float64  `json:"enthalpy_correction" yaml:"enthalpy_correction"`
	EnergyCorr     float64  `json:"energy_correction" yaml:"energy_correction"`
	SinglePoint    float64  `json:"single_point" yaml:"single_point"`
	Reference      float64  `json:"reference" yaml:"reference"`
	EZPE           float64  `json:"e_zpe" yaml:"e_zpe"`
	Temperature    float64  `json:"temperature" yaml:"temperature"`
	Status         RunState `json:"status" yaml:"status"`
	PhaseCorrected bool     `json:"phase_corrected" yaml:"phase_corrected"`
	Copyrights     int      `json:"copyright_count" yaml:"copyright_count"`
	NormalTerms    int      `json:"normal_terminations" yaml:"normal_terminations"`
	ErrorTerms     int      `json:"error_terminations" yaml:"error_terminations"`
}

// PhaseCorrection returns the free-energy change in Hartree for moving
// from the 1 atm gas standard state to concentration concM (mol/L) at
// temperature t (K).
func PhaseCorrection(t, concM float64) float64 {
	c := concM * 1000 // mol/m3
	return GasConstant * t * math.Log(c*GasConstant*t/StdPressure) * jmolToHartree
}

var (
	scfPattern  = regexp.MustCompile(`SCF Done.*?=\s+(-?\d+\.\d+)`)
	freqPattern = regexp.MustCompile(`Frequencies\s+--\s+(.*)`)
)

// parser accumulates values line by line.
type parser struct {
	name     string
	opts     ParseOptions
	warnings []string

	scf, scfPCM, scfCIS float64
	scfCLR              float64
	zpe, tcg, etg, ezpe float64
	tch, tce            float64
	nuclear             float64
	temp                float64
	negFreqs, posFreqs  []float64
	phase               bool
	copyrights          int
	normal, errorTerms  int

	tail []string
	next int
}

// Parse extracts energies from a Gaussian log read from r. Malformed
// values are reported as warnings and leave the field at zero. A parse
// always runs to the end of r; shutdown is honoured between files.
func Parse(r io.Reader, name string, opts ParseOptions) (Result, []string, error) {
	opts = opts.withDefaults()
	p := &parser{name: name, opts: opts, temp: opts.Temperature, tail: make([]string, 0, tailLines)}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		p.remember(line)
		p.line(line, lineNo)
	}
	if err := sc.Err(); err != nil {
		return Result{}, p.warnings, fmt.Errorf("reading %s: %w", name, err)
	}

	res := p.result()
	logger.Debug("parsed log", "file", name, "lines", lineNo, "status", res.Status, "warnings", len(p.warnings))
	return res, p.warnings, nil
}

func (p *parser) remember(line string) {
	if len(p.tail) < tailLines {
		p.tail = append(p.tail, line)
		return
	}
	p.tail[p.next] = line
	p.next = (p.next + 1) % tailLines
}

// tailInOrder returns the kept lines oldest first.
func (p *parser) tailInOrder() []string {
	if len(p.tail) < tailLines {
		return p.tail
	}
	out := make([]string, 0, tailLines)
	out = append(out, p.tail[p.next:]...)
	return append(out, p.tail[:p.next]...)
}

func (p *parser) line(line string, n int) {
	if strings.Contains(line, "Copyright") {
		p.copyrights++
	}
	if strings.Contains(line, "Normal termination") {
		p.normal++
	}
	if strings.Contains(line, "Error termination") {
		p.errorTerms++
	}

	switch {
	case strings.Contains(line, "SCF Done"):
		if m := scfPattern.FindStringSubmatch(line); m != nil {
			if v, ok := p.number(m[1], "SCF energy", n); ok {
				p.scf = v
			}
		}
	case strings.Contains(line, "Total Energy, E(CIS"):
		p.after(line, "=", "CIS energy", n, &p.scfCIS)
	case strings.Contains(line, "After PCM corrections, the energy is"):
		p.after(line, "the energy is", "PCM corrected energy", n, &p.scfPCM)
	case strings.Contains(line, "Total energy after correction"):
		p.after(line, "=", "CLR corrected energy", n, &p.scfCLR)
	case strings.Contains(line, "Thermal correction to Enthalpy"):
		p.after(line, "=", "enthalpy correction", n, &p.tch)
	case strings.Contains(line, "Thermal correction to Energy"):
		p.after(line, "=", "energy correction", n, &p.tce)
	case strings.Contains(line, "Zero-point correction"):
		p.after(line, "=", "zero-point correction", n, &p.zpe)
	case strings.Contains(line, "Thermal correction to Gibbs Free Energy"):
		p.after(line, "=", "Gibbs correction", n, &p.tcg)
	case strings.Contains(line, "Sum of electronic and thermal Free Energies"):
		p.after(line, "=", "Gibbs free energy", n, &p.etg)
	case strings.Contains(line, "Sum of electronic and zero-point Energies"):
		p.after(line, "=", "zero-point energy", n, &p.ezpe)
	case strings.Contains(line, "nuclear repulsion energy"):
		p.after(line, "nuclear repulsion energy", "nuclear repulsion energy", n, &p.nuclear)
	case strings.Contains(line, "Frequencies"):
		if m := freqPattern.FindStringSubmatch(line); m != nil {
			p.frequencies(m[1], n)
		}
	case strings.Contains(line, "Kelvin.  Pressure"):
		if !p.opts.FixedTemperature {
			p.temperature(line, n)
		}
	case strings.Contains(line, "scrf"):
		p.phase = true
	}
}

// after parses the first number following marker into dst.
func (p *parser) after(line, marker, what string, n int, dst *float64) {
	i := strings.Index(line, marker)
	if i < 0 {
		return
	}
	fields := strings.Fields(line[i+len(marker):])
	if len(fields) == 0 {
		return
	}
	if v, ok := p.number(fields[0], what, n); ok {
		*dst = v
	}
}

func (p *parser) frequencies(list string, n int) {
	for _, f := range strings.Fields(list) {
		v, ok := p.number(f, "frequency", n)
		if !ok {
			continue
		}
		if v < 0 {
			p.negFreqs = append(p.negFreqs, v)
		} else {
			p.posFreqs = append(p.posFreqs, v)
		}
	}
}

func (p *parser) temperature(line string, n int) {
	start := strings.Index(line, "Temperature")
	end := strings.Index(line, "Kelvin")
	if start < 0 || end < 0 || start >= end {
		return
	}
	s := strings.TrimSpace(line[start+len("Temperature") : end])
	if s == "" {
		return
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.warnf("line %d: could not parse temperature %q, using %.2f K", n, s, DefaultTemperature)
		p.temp = DefaultTemperature
		return
	}
	p.temp = v
}

func (p *parser) number(s, what string, n int) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "."), 64)
	if err != nil {
		p.warnf("line %d: could not parse %s from %q", n, what, s)
		return 0, false
	}
	return v, true
}

func (p *parser) warnf(format string, args ...interface{}) {
	p.warnings = append(p.warnings, p.name+": "+fmt.Sprintf(format, args...))
}

func (p *parser) result() Result {
	scf := p.scf
	switch {
	case p.scfPCM != 0:
		scf = p.scfPCM
	case p.scfCIS != 0:
		scf = p.scfCIS
	}

	// A high-level single point prefers the equilibrium PCM energy, then
	// the corrected linear-response energy, then the excited state.
	single := p.scf
	switch {
	case p.scfPCM != 0:
		single = p.scfPCM
	case p.scfCLR != 0:
		single = p.scfCLR
	case p.scfCIS != 0:
		single = p.scfCIS
	}
	ref := p.scf
	if p.scfCIS != 0 {
		ref = p.scfCIS
	}

	var lf float64
	switch {
	case len(p.negFreqs) > 0:
		lf = p.negFreqs[len(p.negFreqs)-1]
	case len(p.posFreqs) > 0:
		lf = p.posFreqs[0]
		for _, f := range p.posFreqs[1:] {
			lf = min(lf, f)
		}
	}

	gibbs := p.etg
	if p.phase && p.etg != 0 {
		gibbs += PhaseCorrection(p.temp, p.opts.ConcentrationM)
	}

	return Result{
		Name:           p.name,
		GibbsKJ:        gibbs * HartreeToKJ,
		LowestFreq:     lf,
		GibbsHartree:   gibbs,
		Nuclear:        p.nuclear,
		SCF:            scf,
		ZPE:            p.zpe,
		GibbsCorr:      p.tcg,
		EnthalpyCorr:   p.tch,
		EnergyCorr:     p.tce,
		SinglePoint:    single,
		Reference:      ref,
		EZPE:           p.ezpe,
		Temperature:    p.temp,
		Status:         terminationState(p.tailInOrder()),
		PhaseCorrected: p.phase,
		Copyrights:     p.copyrights,
		NormalTerms:    p.normal,
		ErrorTerms:     p.errorTerms,
	}
}

// terminationState returns the first termination marker among the last
// lines of a log, or StateUndone.
func terminationState(lines []string) RunState {
	for _, l := range lines {
		switch {
		case strings.Contains(l, "Normal termination"):
			return StateDone
		case strings.Contains(l, "Error termination"):
			return StateError
		}
	}
	return StateUndone
}
