package gaussian

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waterXYZ = `3
water
O    0.000000    0.000000    0.117300
H    0.000000    0.757200   -0.469200
H    0.000000   -0.757200   -0.469200
`

func TestParseXYZ(t *testing.T) {
	g, err := ParseXYZ(strings.NewReader(waterXYZ))
	require.NoError(t, err)

	assert.Equal(t, "water", g.Comment)
	require.Len(t, g.Atoms, 3)
	assert.Equal(t, "O", g.Atoms[0].Symbol)
	assert.InDelta(t, 0.7572, g.Atoms[1].Y, 1e-9)
}

func TestParseXYZErrors(t *testing.T) {
	tests := map[string]string{
		"too short":     "1\n",
		"bad count":     "x\ncomment\nH 0 0 0\n",
		"count differs": "2\ncomment\nH 0 0 0\n",
		"bad coord":     "1\ncomment\nH 0 zero 0\n",
		"missing coord": "1\ncomment\nH 0 0\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseXYZ(strings.NewReader(in))
			assert.Error(t, err)
		})
	}
}

func TestDeckRoute(t *testing.T) {
	d := Deck{Calc: CalcOptFreq, Functional: "B3LYP", Basis: "6-31G(d)", Multiplicity: 1}
	assert.Equal(t, "# opt(maxcycles=300) freq scf(maxcycle=500,xqc) B3LYP/6-31G(d)", d.Route())

	d.Calc = CalcTSFreq
	d.Solvent = "water"
	assert.Equal(t,
		"# opt(maxcycles=300,ts,noeigen,calcfc) freq scf(maxcycle=300,xqc) B3LYP/6-31G(d) scrf=(smd,solvent=water)",
		d.Route())

	d.Calc = CalcSP
	d.Solvent = ""
	d.PrintLevel = "P"
	d.ScfMaxCycle = 100
	assert.Equal(t, "#P scf(maxcycle=100,xqc) B3LYP/6-31G(d)", d.Route())
}

func TestDeckRender(t *testing.T) {
	g, err := ParseXYZ(strings.NewReader(waterXYZ))
	require.NoError(t, err)

	d := Deck{
		Calc: CalcSP, Functional: "M062X", Basis: "def2TZVP",
		Charge: 0, Multiplicity: 1, NProc: 8, Memory: "16GB",
	}
	out, err := d.Render("water", g)
	require.NoError(t, err)

	lines := strings.Split(out, "\n")
	assert.Equal(t, "%nprocshared=8", lines[0])
	assert.Equal(t, "%mem=16GB", lines[1])
	assert.Equal(t, "%chk=water.chk", lines[2])
	assert.Equal(t, "# scf(maxcycle=500,xqc) M062X/def2TZVP", lines[3])
	assert.Equal(t, "", lines[4])
	assert.Equal(t, "Title: Normal single point calculation", lines[5])
	assert.Equal(t, "0 1", lines[7])
	assert.True(t, strings.HasPrefix(lines[8], "O "))
	assert.True(t, strings.HasSuffix(out, "\n\n"), "deck must end with a blank line")
}

func TestDeckRenderValidates(t *testing.T) {
	g := Geometry{Atoms: []Atom{{Symbol: "H"}}}

	_, err := Deck{Calc: "irc", Functional: "B3LYP", Basis: "x", Multiplicity: 1}.Render("m", g)
	assert.Error(t, err)

	_, err = Deck{Calc: CalcSP, Basis: "x", Multiplicity: 1}.Render("m", g)
	assert.Error(t, err)

	_, err = Deck{Calc: CalcSP, Functional: "B3LYP", Basis: "x"}.Render("m", g)
	assert.Error(t, err)

	_, err = Deck{Calc: CalcSP, Functional: "B3LYP", Basis: "x", Multiplicity: 1}.Render("m", Geometry{})
	assert.Error(t, err)
}

func TestParseCalcType(t *testing.T) {
	ct, err := ParseCalcType(" OPT_FREQ ")
	require.NoError(t, err)
	assert.Equal(t, CalcOptFreq, ct)

	_, err = ParseCalcType("irc")
	assert.Error(t, err)
}
