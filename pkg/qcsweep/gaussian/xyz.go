package gaussian

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Atom is one line of a Cartesian geometry.
type Atom struct {
	Symbol  string
	X, Y, Z float64
}

// Geometry is a molecule read from an XYZ file.
type Geometry struct {
	Comment string
	Atoms   []Atom
}

// ParseXYZ reads a standard XYZ file: an atom count, a comment line and
// one "symbol x y z" line per atom.
func ParseXYZ(r io.Reader) (Geometry, error) {
	sc := bufio.NewScanner(r)

	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return Geometry{}, err
	}
	if len(lines) < 3 {
		return Geometry{}, fmt.Errorf("xyz: need at least 3 lines, got %d", len(lines))
	}

	count, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil || count <= 0 {
		return Geometry{}, fmt.Errorf("xyz: invalid atom count %q", strings.TrimSpace(lines[0]))
	}

	g := Geometry{Comment: strings.TrimSpace(lines[1])}
	for i, l := range lines[2:] {
		fields := strings.Fields(l)
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 4 {
			return Geometry{}, fmt.Errorf("xyz: line %d: want symbol and 3 coordinates", i+3)
		}
		var xyz [3]float64
		for k := range xyz {
			if xyz[k], err = strconv.ParseFloat(fields[k+1], 64); err != nil {
				return Geometry{}, fmt.Errorf("xyz: line %d: %w", i+3, err)
			}
		}
		g.Atoms = append(g.Atoms, Atom{Symbol: fields[0], X: xyz[0], Y: xyz[1], Z: xyz[2]})
	}

	if len(g.Atoms) != count {
		return Geometry{}, fmt.Errorf("xyz: header says %d atoms, found %d", count, len(g.Atoms))
	}
	return g, nil
}
