/*
Copyright © 2025 the SFT authors.
This file is part of SFT.

SFT is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

SFT is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with SFT.  If not, see <http://www.gnu.org/licenses/>.
*/

package sft

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"
)

func TestUnsignedFlux(t *testing.T) {
	g := NewGrid(10, 20, true)
	nt, np := g.Shape()
	var want float64
	for i := 0; i < nt; i++ {
		want += float64(np) * math.Sin(g.Colatitude[i]) * g.DTheta * g.DPhi
	}
	want *= 6.955e10 * 6.955e10

	if have := UnsignedFlux(uniformField(g, 1), g); different(have, want, 1.e-12) {
		t.Errorf("have %g, want %g", have, want)
	}
	if have := UnsignedFlux(uniformField(g, -3), g); different(have, 3*want, 1.e-12) {
		t.Errorf("have %g, want %g", have, 3*want)
	}
	f := Dipole(g, 1)
	if UnsignedFlux(f, g) != UnsignedFlux(Dipole(g, -1), g) {
		t.Error("unsigned flux depends on the sign of the field")
	}

	wb := FluxWeber(2.e8)
	if wb.Value() != 2 || !wb.Dimensions().Matches(Weber) {
		t.Errorf("have %v", wb)
	}
}

func TestDipoleMoment(t *testing.T) {
	// B = cosθ is a pure axial dipole with unit moment.
	g := NewGrid(361, 36, false)
	nt, np := g.Shape()
	f := g.NewField()
	for i := 0; i < nt; i++ {
		for j := 0; j < np; j++ {
			f.Set(math.Cos(g.Colatitude[i]), i, j)
		}
	}
	if dm := DipoleMoment(f, g); different(dm, 1, 1.e-3) {
		t.Errorf("dipole moment = %g, want 1", dm)
	}
	if dm := DipoleMoment(uniformField(g, 1), g); absDifferent(dm, 0, 1.e-12) {
		t.Errorf("uniform field has dipole moment %g", dm)
	}
}

func TestPolarField(t *testing.T) {
	g := NewGrid(180, 360, true)
	n, s := PolarField(uniformField(g, 2), g, DefaultPolarLatitude)
	if different(n, 2, 1.e-12) || different(s, 2, 1.e-12) {
		t.Errorf("uniform field: %g, %g", n, s)
	}
	n, s = PolarField(Dipole(g, 1), g, DefaultPolarLatitude)
	if n <= 0 || s >= 0 || different(n, -s, 1.e-9) {
		t.Errorf("dipole: %g, %g", n, s)
	}
	fn, fs := PolarFlux(Dipole(g, 1), g, DefaultPolarLatitude)
	if fn <= 0 || different(fn, -fs, 1.e-9) {
		t.Errorf("dipole flux: %g, %g", fn, fs)
	}

	// The caps of a narrow band are empty.
	small := NewGrid(10, 20, true)
	n, s = PolarField(uniformField(small, 1), small, DefaultPolarLatitude)
	if !math.IsNaN(n) || !math.IsNaN(s) {
		t.Errorf("empty caps: %g, %g", n, s)
	}
	fn, fs = PolarFlux(uniformField(small, 1), small, DefaultPolarLatitude)
	if fn != 0 || fs != 0 {
		t.Errorf("empty caps: flux %g, %g", fn, fs)
	}
}

func TestButterfly(t *testing.T) {
	g := NewGrid(10, 20, true)
	nt, np := g.Shape()
	f := g.NewField()
	for i := 0; i < nt; i++ {
		for j := 0; j < np; j++ {
			f.Set(float64(i+j), i, j)
		}
	}
	b := Butterfly(f)
	if len(b) != nt {
		t.Fatalf("length %d", len(b))
	}
	for i, v := range b {
		if want := float64(i) + float64(np-1)/2; absDifferent(v, want, 1.e-12) {
			t.Errorf("row %d: %g, want %g", i, v, want)
		}
	}
}

func TestFluxDecayTime(t *testing.T) {
	const τ = 12.5
	days := []float64{0, 1, 2, 3, 5, 8}
	flux := make([]float64, len(days))
	for i, d := range days {
		flux[i] = 3.e22 * math.Exp(-d/τ)
	}
	have, err := FluxDecayTime(days, flux)
	if err != nil {
		t.Fatal(err)
	}
	if different(have, τ, 1.e-9) {
		t.Errorf("decay time %g, want %g", have, τ)
	}

	for _, test := range []struct {
		days, flux []float64
		want       error
	}{
		{[]float64{0, 1}, []float64{1}, ErrShapeMismatch},
		{[]float64{0}, []float64{1}, ErrNumericDegeneracy},
		{[]float64{0, 1}, []float64{1, 0}, ErrNumericDegeneracy},
		{[]float64{0, 1, 2}, []float64{1, 2, 3}, ErrNumericDegeneracy},
		{[]float64{0, 1, 2}, []float64{1, 1, 1}, ErrNumericDegeneracy},
	} {
		if _, err := FluxDecayTime(test.days, test.flux); !errors.Is(err, test.want) {
			t.Errorf("%v %v: want %v, have %v", test.days, test.flux, test.want, err)
		}
	}
}

// runHistory runs a 10-day pure diffusion simulation and returns
// its history.
func runHistory(t *testing.T, fullField bool) (*History, Grid) {
	g := NewGrid(10, 20, true)
	h := NewHistory(fullField, DefaultPolarLatitude)
	d := &Model{
		InitFuncs: []DomainManipulator{
			UseGrid(g),
			UseDiffusivity(testDiffusivity),
			UseProfiles(zeroProfile(g, Meridional), zeroProfile(g, Rotational)),
			UseInitialField(Dipole(g, 1)),
			h.Record(),
		},
		RunFuncs: []DomainManipulator{
			Integrate(),
			h.Record(),
			RunDays(10),
		},
	}
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	if err := d.Run(); err != nil {
		t.Fatal(err)
	}
	return h, g
}

func TestHistory(t *testing.T) {
	h, g := runHistory(t, true)
	nt, _ := g.Shape()
	if len(h.Days) != 11 || len(h.Fields) != 11 || len(h.Diagnostics) != 11 {
		t.Fatalf("%d days, %d fields, %d diagnostics", len(h.Days), len(h.Fields), len(h.Diagnostics))
	}
	for i, day := range h.Days {
		if day != i || h.Diagnostics[i].Day != i {
			t.Errorf("record %d is for day %d", i, day)
		}
	}
	if h.Fields[0] == h.Fields[1] || h.Fields[0].Elements[25] == h.Fields[10].Elements[25] {
		t.Error("recorded fields should be independent snapshots")
	}
	m := h.ButterflyMatrix()
	r, c := m.Dims()
	if r != 11 || c != nt {
		t.Errorf("butterfly matrix is %d×%d", r, c)
	}
	if m.At(4, 2) != h.Butterfly[4][2] {
		t.Errorf("butterfly matrix %g != %g", m.At(4, 2), h.Butterfly[4][2])
	}
	τ, err := h.FluxDecayTime()
	if err != nil {
		t.Fatal(err)
	}
	if τ < 10 {
		t.Errorf("flux decays too fast: %g days", τ)
	}

	if NewHistory(false, DefaultPolarLatitude).ButterflyMatrix() != nil {
		t.Error("empty history should have no butterfly matrix")
	}
}

func TestDiagnosticSeries(t *testing.T) {
	h, _ := runHistory(t, false)
	s, err := DiagnosticSeries(h, map[string]string{
		"flux_wb":  "unsigned_flux / 100000000",
		"combined": "abs(polar_flux_north) + exp(0) * log(1) + day",
	})
	if err != nil {
		t.Fatal(err)
	}
	wantNames := append(append([]string(nil), diagnosticNames...), "combined", "flux_wb")
	if strings.Join(s.Names, ",") != strings.Join(wantNames, ",") {
		t.Errorf("names %v, want %v", s.Names, wantNames)
	}
	if len(s.Rows) != len(h.Diagnostics) {
		t.Fatalf("%d rows", len(s.Rows))
	}
	wb := s.Column("flux_wb")
	combined := s.Column("combined")
	for i, d := range h.Diagnostics {
		if different(wb[i], d.UnsignedFlux/1.e8, 1.e-12) {
			t.Errorf("day %d: flux_wb %g", d.Day, wb[i])
		}
		if absDifferent(combined[i], math.Abs(d.PolarFluxNorth)+float64(d.Day), 1.e-9) {
			t.Errorf("day %d: combined %g", d.Day, combined[i])
		}
	}
	if s.Column("bogus") != nil {
		t.Error("missing column should be nil")
	}

	var buf bytes.Buffer
	if err := s.WriteCSV(&buf); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != len(s.Rows)+1 {
		t.Errorf("%d CSV lines", len(lines))
	}
	if lines[0] != strings.Join(wantNames, ",") {
		t.Errorf("CSV header %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "0,") {
		t.Errorf("first CSV row %q", lines[1])
	}
}

func TestDiagnosticSeriesErrors(t *testing.T) {
	h := NewHistory(false, DefaultPolarLatitude)
	for _, expr := range []map[string]string{
		{"day": "unsigned_flux"},
		{"x": "bogus_variable * 2"},
		{"x": "(unsigned_flux"},
	} {
		if _, err := DiagnosticSeries(h, expr); !errors.Is(err, ErrInvalidConfiguration) {
			t.Errorf("%v: want ErrInvalidConfiguration, have %v", expr, err)
		}
	}
}
