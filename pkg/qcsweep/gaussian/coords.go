package gaussian

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrNoOrientation is returned when a log has no complete orientation block.
var ErrNoOrientation = errors.New("no orientation section found")

// symbols indexes element symbols by atomic number.
var symbols = [...]string{
	"", "H", "He", "Li", "Be", "B", "C", "N", "O", "F", "Ne", "Na", "Mg", "Al", "Si", "P", "S",
	"Cl", "Ar", "K", "Ca", "Sc", "Ti", "V", "Cr", "Mn", "Fe", "Co", "Ni", "Cu", "Zn", "Ga", "Ge", "As",
	"Se", "Br", "Kr", "Rb", "Sr", "Y", "Zr", "Nb", "Mo", "Tc", "Ru", "Rh", "Pd", "Ag", "Cd", "In", "Sn",
	"Sb", "Te", "I", "Xe", "Cs", "Ba", "La", "Ce", "Pr", "Nd", "Pm", "Sm", "Eu", "Gd", "Tb", "Dy", "Ho",
	"Er", "Tm", "Yb", "Lu", "Hf", "Ta", "W", "Re", "Os", "Ir", "Pt", "Au", "Hg", "Tl", "Pb", "Bi", "Po",
	"At", "Rn", "Fr", "Ra", "Ac", "Th", "Pa", "U", "Np", "Pu", "Am", "Cm", "Bk", "Cf", "Es", "Fm", "Md",
	"No", "Lr", "Rf", "Db", "Sg", "Bh", "Hs", "Mt", "Ds", "Rg", "Cn", "Nh", "Fl", "Mc", "Lv", "Ts", "Og",
}

// ElementSymbol returns the symbol for atomic number z, or "X".
func ElementSymbol(z int) string {
	if z < 1 || z >= len(symbols) {
		return "X"
	}
	return symbols[z]
}

// orientationHeader is the number of lines between an orientation marker
// and its first atom: a rule, two column headings and another rule.
const orientationHeader = 4

func isOrientation(line string) bool {
	return strings.Contains(line, "Standard orientation:") || strings.Contains(line, "Input orientation:")
}

// LastOrientation returns the geometry of the last complete "Standard
// orientation" or "Input orientation" block in a Gaussian log. A block cut
// off by the end of the log is ignored in favour of the one before it.
func LastOrientation(r io.Reader) (Geometry, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		last    []Atom
		current []Atom
		inBlock bool
		header  int
		lineNo  int
	)
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if isOrientation(line) {
			inBlock, header, current = true, orientationHeader, nil
			continue
		}
		if !inBlock {
			continue
		}
		if header > 0 {
			header--
			continue
		}
		if strings.Contains(line, "----") {
			inBlock = false
			if len(current) > 0 {
				last = current
			}
			continue
		}
		a, err := orientationRow(line)
		if err != nil {
			return Geometry{}, fmt.Errorf("line %d: %w", lineNo, err)
		}
		current = append(current, a)
	}
	if err := sc.Err(); err != nil {
		return Geometry{}, err
	}

	if len(last) == 0 {
		return Geometry{}, ErrNoOrientation
	}
	return Geometry{Atoms: last}, nil
}

// orientationRow parses "center atomic-number [type] x y z".
func orientationRow(line string) (Atom, error) {
	fields := strings.Fields(line)
	if len(fields) != 5 && len(fields) != 6 {
		return Atom{}, fmt.Errorf("malformed coordinate line %q", strings.TrimSpace(line))
	}
	z, err := strconv.Atoi(fields[1])
	if err != nil {
		return Atom{}, fmt.Errorf("malformed atomic number %q", fields[1])
	}

	coords := fields[len(fields)-3:]
	var xyz [3]float64
	for i, f := range coords {
		if xyz[i], err = strconv.ParseFloat(f, 64); err != nil {
			return Atom{}, fmt.Errorf("malformed coordinate %q", f)
		}
	}
	return Atom{Symbol: ElementSymbol(z), X: xyz[0], Y: xyz[1], Z: xyz[2]}, nil
}

// WriteXYZ writes g as a standard XYZ file.
func WriteXYZ(w io.Writer, g Geometry) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d\n%s\n", len(g.Atoms), g.Comment)
	for _, a := range g.Atoms {
		fmt.Fprintf(bw, "%-10s%20.10f%20.10f%20.10f\n", a.Symbol, a.X, a.Y, a.Z)
	}
	return bw.Flush()
}
