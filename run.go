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
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Integrate returns a function that advances the model field by one day
// in d.Step.StepsPerDay explicit sub-steps. In each sub-step the
// diffusion and advection rates of every interior cell are calculated
// from the field at the beginning of the sub-step, then the periodic
// longitude boundaries and the open colatitude boundaries are applied.
//
// The interior rows are divided among d.NumProcessors goroutines. Since
// every goroutine reads only from the field at the beginning of the
// sub-step and writes only to its own rows, the result does not depend on
// the number of processors.
func Integrate() DomainManipulator {
	var wg sync.WaitGroup
	return func(d *Model) error {
		if d.kernels == nil || d.next == nil {
			return fmt.Errorf("sft: Integrate called before Init: %w", ErrInvalidConfiguration)
		}
		nt, np := d.Grid.Shape()
		nprocs := d.nprocs()
		if nprocs > nt-2 {
			nprocs = nt - 2
		}
		Δt := d.Step.TimeStep
		for step := 0; step < d.Step.StepsPerDay; step++ {
			cur, next := d.Field.Elements, d.next.Elements
			wg.Add(nprocs)
			for pp := 0; pp < nprocs; pp++ {
				go func(pp int) {
					for i := 1 + pp; i < nt-1; i += nprocs {
						k := &d.kernels[i-1]
						north := cur[(i-1)*np : i*np]
						row := cur[i*np : (i+1)*np]
						south := cur[(i+1)*np : (i+2)*np]
						out := next[i*np : (i+1)*np]
						for j := 1; j < np-1; j++ {
							out[j] = row[j] + Δt*(k.diffusion(north, row, south, j)-k.advection(north, row, south, j))
						}
					}
					wg.Done()
				}(pp)
			}
			wg.Wait()
			applyBoundaries(next, nt, np)
			d.Field, d.next = d.next, d.Field
		}
		d.Day++
		return nil
	}
}

// applyBoundaries sets the ghost columns of the row-major field f to
// periodic copies of the interior and then copies the outermost interior
// rows into the polar boundary rows.
func applyBoundaries(f []float64, nt, np int) {
	for i := 0; i < nt; i++ {
		row := f[i*np : (i+1)*np]
		row[0] = row[np-2]
		row[np-1] = row[1]
	}
	copy(f[0:np], f[np:2*np])
	copy(f[(nt-1)*np:nt*np], f[(nt-2)*np:(nt-1)*np])
}

// RunDays returns a function that sets d.Done after it has been called
// numDays times. It should be placed after Integrate in d.RunFuncs.
// If numDays < 1 the returned function fails with an error wrapping
// ErrInvalidConfiguration the first time it is called.
func RunDays(numDays int) DomainManipulator {
	days := 0
	return func(d *Model) error {
		if numDays < 1 {
			return fmt.Errorf("sft: number of days must be at least 1, not %d: %w", numDays, ErrInvalidConfiguration)
		}
		days++
		if days >= numDays {
			d.Done = true
		}
		return nil
	}
}

// CheckFinite returns a function that returns an error wrapping
// ErrNumericDegeneracy if any cell of the field is NaN or infinite.
func CheckFinite() DomainManipulator {
	return func(d *Model) error {
		_, np := d.Grid.Shape()
		for ii, v := range d.Field.Elements {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("sft: field value %g at day %d, cell [%d %d]: %w",
					v, d.Day, ii/np, ii%np, ErrNumericDegeneracy)
			}
		}
		return nil
	}
}

// Log returns a function that writes a simulation status message for
// each day to l. The unsigned flux is reported both in Mx and, with its
// SI dimensions, in Wb.
func Log(l logrus.FieldLogger) DomainManipulator {
	startTime := time.Now()
	dayTime := time.Now()
	return func(d *Model) error {
		flux := UnsignedFlux(d.Field, d.Grid)
		wb := FluxWeber(flux)
		if err := wb.Check(Weber); err != nil {
			return fmt.Errorf("sft: logging unsigned flux: %w", err)
		}
		l.WithFields(logrus.Fields{
			"day":              d.Day,
			"walltime":         time.Since(startTime).String(),
			"Δwalltime":        time.Since(dayTime).String(),
			"timestep":         d.Step.TimeStep,
			"unsigned_flux":    flux,
			"unsigned_flux_wb": fmt.Sprintf("%.4g", wb),
		}).Info("simulated day")
		dayTime = time.Now()
		return nil
	}
}
