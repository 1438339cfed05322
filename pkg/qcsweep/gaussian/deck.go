package gaussian

import (
	"fmt"
	"strings"
)

// CalcType names a kind of input deck.
type CalcType string

const (
	CalcSP      CalcType = "sp"
	CalcOptFreq CalcType = "opt_freq"
	CalcTSFreq  CalcType = "ts_freq"
)

// ParseCalcType validates a calculation type name.
func ParseCalcType(s string) (CalcType, error) {
	switch ct := CalcType(strings.ToLower(strings.TrimSpace(s))); ct {
	case CalcSP, CalcOptFreq, CalcTSFreq:
		return ct, nil
	}
	return "", fmt.Errorf("unknown calculation type %q (want sp, opt_freq or ts_freq)", s)
}

var titles = map[CalcType]string{
	CalcSP:      "Title: Normal single point calculation",
	CalcOptFreq: "Title: Geometrical optimization and frequency calculation",
	CalcTSFreq:  "Title: transition state search and frequency calculation",
}

// Deck describes the input files to generate.
type Deck struct {
	Calc         CalcType
	Functional   string
	Basis        string
	Charge       int
	Multiplicity int
	Solvent      string
	SolventModel string
	Memory       string
	NProc        int
	PrintLevel   string
	Extra        string

	// ScfMaxCycle and OptMaxCycles fall back to 500/300 when zero.
	ScfMaxCycle  int
	OptMaxCycles int
}

func (d Deck) validate() error {
	if _, err := ParseCalcType(string(d.Calc)); err != nil {
		return err
	}
	if d.Functional == "" || d.Basis == "" {
		return fmt.Errorf("functional and basis are required")
	}
	if d.Multiplicity < 1 {
		return fmt.Errorf("multiplicity must be at least 1 (got %d)", d.Multiplicity)
	}
	return nil
}

// Route returns the route line, e.g.
// "# opt(maxcycles=300) freq scf(maxcycle=500,xqc) B3LYP/6-31G(d)".
func (d Deck) Route() string {
	scf := d.ScfMaxCycle
	if scf <= 0 {
		scf = 500
		if d.Calc == CalcTSFreq {
			scf = 300
		}
	}
	opt := d.OptMaxCycles
	if opt <= 0 {
		opt = 300
	}

	var b strings.Builder
	switch d.PrintLevel {
	case "":
		b.WriteString("#")
	case "N", "P", "T":
		b.WriteString("#" + d.PrintLevel)
	default:
		b.WriteString("#" + d.PrintLevel + " ")
	}

	method := d.Functional + "/" + d.Basis
	switch d.Calc {
	case CalcSP:
		fmt.Fprintf(&b, " scf(maxcycle=%d,xqc) %s", scf, method)
	case CalcOptFreq:
		fmt.Fprintf(&b, " opt(maxcycles=%d) freq scf(maxcycle=%d,xqc) %s", opt, scf, method)
	case CalcTSFreq:
		fmt.Fprintf(&b, " opt(maxcycles=%d,ts,noeigen,calcfc) freq scf(maxcycle=%d,xqc) %s", opt, scf, method)
	}

	if d.Solvent != "" {
		model := d.SolventModel
		if model == "" {
			model = "smd"
		}
		fmt.Fprintf(&b, " scrf=(%s,solvent=%s)", model, d.Solvent)
	}
	if d.Extra != "" {
		b.WriteString(" " + d.Extra)
	}
	return b.String()
}

// Render returns the input deck for the molecule called name.
func (d Deck) Render(name string, g Geometry) (string, error) {
	if err := d.validate(); err != nil {
		return "", err
	}
	if len(g.Atoms) == 0 {
		return "", fmt.Errorf("%s: geometry has no atoms", name)
	}

	var b strings.Builder
	if d.NProc > 0 {
		fmt.Fprintf(&b, "%%nprocshared=%d\n", d.NProc)
	}
	if d.Memory != "" {
		fmt.Fprintf(&b, "%%mem=%s\n", d.Memory)
	}
	fmt.Fprintf(&b, "%%chk=%s.chk\n", name)
	b.WriteString(d.Route())
	b.WriteString("\n\n")
	b.WriteString(titles[d.Calc])
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%d %d\n", d.Charge, d.Multiplicity)
	for _, a := range g.Atoms {
		fmt.Fprintf(&b, "%-2s %14.8f %14.8f %14.8f\n", a.Symbol, a.X, a.Y, a.Z)
	}
	b.WriteString("\n")
	return b.String(), nil
}
