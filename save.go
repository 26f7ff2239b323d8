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
	"encoding/gob"
	"fmt"
	"io"

	"github.com/ctessum/sparse"
)

// checkpoint is the saved state of a simulation.
type checkpoint struct {
	Day   int
	Step  StepSize
	Grid  Grid
	Shape []int
	Field []float64
}

// Save returns a function that saves the current day, sub-step size,
// grid and field of the model to w so that the simulation can
// be resumed with Load.
func Save(w io.Writer) DomainManipulator {
	return func(d *Model) error {
		e := gob.NewEncoder(w)
		c := checkpoint{
			Day:   d.Day,
			Step:  d.Step,
			Grid:  d.Grid,
			Shape: d.Field.Shape,
			Field: d.Field.Elements,
		}
		if err := e.Encode(c); err != nil {
			return fmt.Errorf("sft: saving checkpoint: %v", err)
		}
		return nil
	}
}

// Load returns a function that loads the state of a previously Saved
// simulation into the model. Transport profiles and diffusivity are not
// saved and need to be set separately.
func Load(r io.Reader) DomainManipulator {
	return func(d *Model) error {
		dec := gob.NewDecoder(r)
		var c checkpoint
		if err := dec.Decode(&c); err != nil {
			return fmt.Errorf("sft: loading checkpoint: %v", err)
		}
		f := sparse.ZerosDense(c.Shape...)
		if len(f.Elements) != len(c.Field) {
			return fmt.Errorf("sft: loading checkpoint: %d values for shape %v: %w",
				len(c.Field), c.Shape, ErrShapeMismatch)
		}
		copy(f.Elements, c.Field)
		if err := c.Grid.CheckShape(f); err != nil {
			return fmt.Errorf("sft: loading checkpoint: %w", err)
		}
		d.Day, d.Step, d.Grid, d.Field = c.Day, c.Step, c.Grid, f
		return nil
	}
}
