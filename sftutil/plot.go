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

package sftutil

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/ctessum/sparse"
	"github.com/spatialmodel/sft"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// butterflyGrid presents a butterfly diagram as a plotter.GridXYZ with
// days along X and latitude [degrees] increasing along Y. Values are
// clipped to ±max.
type butterflyGrid struct {
	m    *mat.Dense // [day][colatitude]
	days []int
	lat  []float64 // by colatitude row
	max  float64
}

func (b butterflyGrid) Dims() (c, r int) {
	days, lats := b.m.Dims()
	return days, lats
}

// row returns the colatitude row of Y index r.
func (b butterflyGrid) row(r int) int { return len(b.lat) - 1 - r }

func (b butterflyGrid) Z(c, r int) float64 {
	return math.Max(-b.max, math.Min(b.max, b.m.At(c, b.row(r))))
}

func (b butterflyGrid) X(c int) float64 { return float64(b.days[c]) }

func (b butterflyGrid) Y(r int) float64 { return b.lat[b.row(r)] }

// PlotButterfly writes to w a PNG image of the longitude-averaged field
// recorded in h as a function of day and latitude on grid g. The color
// scale spans ±maxField [G]; if maxField <= 0 the largest magnitude in
// h is used.
func PlotButterfly(w io.Writer, h *sft.History, g sft.Grid, maxField float64) error {
	m := h.ButterflyMatrix()
	if m == nil || len(h.Days) < 2 {
		return fmt.Errorf("sft: a butterfly diagram needs at least two days, have %d: %w",
			len(h.Days), sft.ErrInvalidConfiguration)
	}
	_, nt := m.Dims()
	if gnt, _ := g.Shape(); gnt != nt {
		return fmt.Errorf("sft: butterfly diagram has %d colatitudes but grid has %d: %w",
			nt, gnt, sft.ErrShapeMismatch)
	}
	if maxField <= 0 {
		maxField = math.Max(math.Abs(mat.Max(m)), math.Abs(mat.Min(m)))
		if maxField == 0 {
			maxField = 1
		}
	}
	lat := make([]float64, nt)
	for i := range lat {
		lat[i] = g.Latitude(i) * 180 / math.Pi
	}
	return writeHeatMap(w, butterflyGrid{m: m, days: h.Days, lat: lat, max: maxField}, maxField,
		fmt.Sprintf("Butterfly diagram (±%g G)", maxField), "Day", 8*vg.Inch, 4*vg.Inch)
}

// fieldGrid presents one day of the field as a plotter.GridXYZ with
// longitude [degrees] along X and latitude [degrees] increasing along Y.
// Values are clipped to ±max.
type fieldGrid struct {
	f   *sparse.DenseArray // [colatitude][longitude]
	lon []float64
	lat []float64 // by colatitude row
	max float64
}

func (fg fieldGrid) Dims() (c, r int) { return len(fg.lon), len(fg.lat) }

// row returns the colatitude row of Y index r.
func (fg fieldGrid) row(r int) int { return len(fg.lat) - 1 - r }

func (fg fieldGrid) Z(c, r int) float64 {
	return math.Max(-fg.max, math.Min(fg.max, fg.f.Get(fg.row(r), c)))
}

func (fg fieldGrid) X(c int) float64 { return fg.lon[c] }

func (fg fieldGrid) Y(r int) float64 { return fg.lat[fg.row(r)] }

// PlotField writes to w a PNG image of field f on grid g as a function of
// longitude and latitude. The color scale spans ±maxField [G]; if
// maxField <= 0 the largest magnitude in f is used.
func PlotField(w io.Writer, f *sparse.DenseArray, g sft.Grid, maxField float64) error {
	if err := g.CheckShape(f); err != nil {
		return fmt.Errorf("sft: plotting field: %w", err)
	}
	if nt, np := g.Shape(); nt < 2 || np < 2 {
		return fmt.Errorf("sft: a field plot needs at least two points in each direction, have [%d %d]: %w",
			nt, np, sft.ErrInvalidConfiguration)
	}
	if maxField <= 0 {
		maxField = math.Max(math.Abs(floats.Max(f.Elements)), math.Abs(floats.Min(f.Elements)))
		if maxField == 0 {
			maxField = 1
		}
	}
	lat := make([]float64, len(g.Colatitude))
	for i := range lat {
		lat[i] = g.Latitude(i) * 180 / math.Pi
	}
	lon := make([]float64, len(g.Longitude))
	for j, φ := range g.Longitude {
		lon[j] = φ * 180 / math.Pi
	}
	return writeHeatMap(w, fieldGrid{f: f, lon: lon, lat: lat, max: maxField}, maxField,
		fmt.Sprintf("Radial field (±%g G)", maxField), "Longitude [°]", 8*vg.Inch, 4*vg.Inch)
}

// writeHeatMap renders grid as a PNG heat map with a blue-red color scale
// spanning ±maxField and latitude along Y.
func writeHeatMap(w io.Writer, grid plotter.GridXYZ, maxField float64, title, xLabel string, width, height vg.Length) error {
	cm := moreland.SmoothBlueRed()
	cm.SetMin(-maxField)
	cm.SetMax(maxField)
	hm := plotter.NewHeatMap(grid, cm.Palette(255))
	hm.Min, hm.Max = -maxField, maxField

	p, err := plot.New()
	if err != nil {
		return fmt.Errorf("sft: creating plot: %v", err)
	}
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = "Latitude [°]"
	p.Add(hm)

	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("sft: rendering plot: %v", err)
	}
	if _, err = wt.WriteTo(w); err != nil {
		return fmt.Errorf("sft: writing plot: %v", err)
	}
	return nil
}

// dayField returns the field recorded in h for the given day.
func dayField(h *sft.History, day int) (*sparse.DenseArray, error) {
	if !h.FullField || len(h.Fields) == 0 {
		return nil, fmt.Errorf("sft: output does not contain the full field; rerun with OutputFullField: %w",
			sft.ErrInvalidConfiguration)
	}
	for i, d := range h.Days {
		if d == day && i < len(h.Fields) {
			return h.Fields[i], nil
		}
	}
	return nil, fmt.Errorf("sft: output does not contain day %d: %w", day, sft.ErrInvalidConfiguration)
}

// Plot reads the simulation output in outputFile and saves a plot of it
// to plotFile. If day < 0 the butterfly diagram is plotted as described
// for PlotButterfly; otherwise the field of that day is plotted as
// described for PlotField.
func Plot(outputFile, plotFile string, maxField float64, day int) error {
	in, err := os.Open(outputFile)
	if err != nil {
		return fmt.Errorf("sft: opening output file: %v", err)
	}
	defer in.Close()
	h, g, err := sft.ReadOutput(in)
	if err != nil {
		return err
	}
	var field *sparse.DenseArray
	if day >= 0 {
		if field, err = dayField(h, day); err != nil {
			return err
		}
	}
	f, err := os.Create(plotFile)
	if err != nil {
		return fmt.Errorf("sft: creating plot file: %v", err)
	}
	defer f.Close()
	if day < 0 {
		return PlotButterfly(f, h, g, maxField)
	}
	return PlotField(f, field, g, maxField)
}
