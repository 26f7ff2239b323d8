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

// Package sft is a surface flux transport model. It evolves the radial
// magnetic field on the solar surface under differential rotation,
// meridional circulation and turbulent diffusion using an explicit
// finite-difference scheme on a uniform colatitude-longitude grid.
package sft

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/ctessum/sparse"
)

// Version gives the version number.
const Version = "0.1.0"

var (
	// ErrInvalidConfiguration is returned when a model option has an
	// unsupported value.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrNumericDegeneracy is returned when a calculation produces or
	// would produce non-finite values.
	ErrNumericDegeneracy = errors.New("numeric degeneracy")

	// ErrShapeMismatch is returned when a field or profile does not have
	// the shape of the grid it is used with.
	ErrShapeMismatch = errors.New("shape mismatch")
)

// Model holds the current state of a surface flux transport simulation.
type Model struct {
	// Grid is the computational grid.
	Grid Grid

	// Meridional and Rotation are the transport profiles. If they have not
	// been set by the end of initialization, the default
	// profiles are used.
	Meridional, Rotation *Profile

	// Diffusivity is the turbulent diffusivity [m²/s].
	Diffusivity float64

	// Step is the sub-step size. If it has not been set by the end of
	// initialization, it is calculated using DefaultCFL.
	Step StepSize

	// Bounds holds the stability limits Step was derived from.
	Bounds CFLBounds

	// Field is the radial magnetic field [G] at the beginning of the
	// current day. It is owned by the Model.
	Field *sparse.DenseArray

	// Day is the number of days that have been simulated.
	Day int

	// NumProcessors is the number of goroutines used to evaluate each
	// sub-step. If < 1, runtime.GOMAXPROCS(0) is used.
	NumProcessors int

	// InitFuncs are functions to be called in the given order
	// at the beginning of the simulation.
	InitFuncs []DomainManipulator

	// RunFuncs are functions to be called in the given order repeatedly
	// until "Done" is true. One of them must eventually set Done.
	RunFuncs []DomainManipulator

	// CleanupFuncs are functions to be called in the given order after
	// the simulation has completed.
	CleanupFuncs []DomainManipulator

	// Done specifies whether the simulation is finished.
	Done bool

	next    *sparse.DenseArray // sub-step write buffer
	kernels []rowKernel        // one per interior row
}

// DomainManipulator is a class of functions that operate on the entire model
// domain.
type DomainManipulator func(d *Model) error

// Init initializes the simulation by running d.InitFuncs and then checking
// that the grid, profiles and field are consistent.
func (d *Model) Init() error {
	for _, f := range d.InitFuncs {
		if err := f(d); err != nil {
			return err
		}
	}
	return d.prepare()
}

// Run carries out the simulation by running d.RunFuncs until d.Done is true.
func (d *Model) Run() error {
	for !d.Done {
		for _, f := range d.RunFuncs {
			if err := f(d); err != nil {
				return err
			}
		}
	}
	return nil
}

// Cleanup finishes the simulation by running d.CleanupFuncs.
func (d *Model) Cleanup() error {
	for _, f := range d.CleanupFuncs {
		if err := f(d); err != nil {
			return err
		}
	}
	return nil
}

// prepare fills in defaults, validates shapes, applies the boundary
// conditions to the initial field and precomputes the per-row stencil
// weights. It is the only place shapes are checked
// during a simulation.
func (d *Model) prepare() error {
	nt, np := d.Grid.Shape()
	if nt < 3 || np < 3 {
		return fmt.Errorf("sft: grid must have at least 3 points in each direction, has [%d %d]: %w",
			nt, np, ErrInvalidConfiguration)
	}
	if d.Meridional == nil {
		d.Meridional = MeridionalFlow(d.Grid, DefaultPeakSpeed)
	}
	if d.Rotation == nil {
		var err error
		if d.Rotation, err = DifferentialRotation(d.Grid, SolarRotation, Carrington, DefaultRotationPeriod); err != nil {
			return err
		}
	}
	if err := checkProfiles(d.Grid, d.Rotation, d.Meridional); err != nil {
		return err
	}
	if err := d.Grid.CheckShape(d.Field); err != nil {
		return fmt.Errorf("sft: initial field: %w", err)
	}
	if d.Diffusivity < 0 {
		return fmt.Errorf("sft: diffusivity must not be negative, is %g: %w",
			d.Diffusivity, ErrInvalidConfiguration)
	}
	if d.Step.StepsPerDay < 1 {
		if err := SetTimeStepCFL(DefaultCFL)(d); err != nil {
			return err
		}
	}
	// The boundary cells of the initial field are made consistent with the
	// interior so that day 0 already satisfies the boundary conditions.
	applyBoundaries(d.Field.Elements, nt, np)
	d.next = copyField(d.Field)
	d.kernels = newKernels(d.Grid, d.Diffusivity, d.Meridional, d.Rotation)
	return nil
}

func (d *Model) nprocs() int {
	if d.NumProcessors < 1 {
		return runtime.GOMAXPROCS(0)
	}
	return d.NumProcessors
}

// UseGrid sets the computational grid. The grid is copied.
func UseGrid(g Grid) DomainManipulator {
	return func(d *Model) error {
		d.Grid = g.Copy()
		return nil
	}
}

// UseProfiles sets the meridional flow and rotation profiles.
// They are checked against the grid when initialization finishes.
func UseProfiles(meridional, rotation *Profile) DomainManipulator {
	return func(d *Model) error {
		d.Meridional, d.Rotation = meridional, rotation
		return nil
	}
}

// UseInitialField sets the field at the beginning of the simulation.
// f is copied so that later changes to it do not affect the simulation,
// and the boundary conditions are applied to the copy.
func UseInitialField(f *sparse.DenseArray) DomainManipulator {
	return func(d *Model) error {
		if err := d.Grid.CheckShape(f); err != nil {
			return fmt.Errorf("sft: initial field: %w", err)
		}
		nt, np := d.Grid.Shape()
		d.Field = copyField(f)
		if nt >= 2 && np >= 2 {
			applyBoundaries(d.Field.Elements, nt, np)
		}
		return nil
	}
}

// UseDiffusivity sets the turbulent diffusivity [m²/s].
func UseDiffusivity(D float64) DomainManipulator {
	return func(d *Model) error {
		d.Diffusivity = D
		return nil
	}
}

// SetTimeStepCFL returns a function that sets the sub-step size from
// the stability limits of the model grid, diffusivity and profiles,
// where cfl is the Courant number. The grid, diffusivity and profiles
// must be set before it is called.
func SetTimeStepCFL(cfl float64) DomainManipulator {
	return func(d *Model) error {
		step, bounds, err := TimeStepForProfiles(d.Grid, d.Diffusivity, cfl, d.Meridional, d.Rotation)
		if err != nil {
			return err
		}
		d.Step, d.Bounds = step, bounds
		return nil
	}
}

// checkProfiles makes sure the profiles exist, are of the right kind and
// match the shape of g.
func checkProfiles(g Grid, rotation, meridional *Profile) error {
	for _, p := range []struct {
		p    *Profile
		kind ProfileKind
	}{{rotation, Rotational}, {meridional, Meridional}} {
		if p.p == nil {
			return fmt.Errorf("sft: missing %v profile: %w", p.kind, ErrInvalidConfiguration)
		}
		if p.p.Kind != p.kind {
			return fmt.Errorf("sft: %v profile used as %v profile: %w", p.p.Kind, p.kind, ErrInvalidConfiguration)
		}
		if err := g.CheckShape(p.p.Values); err != nil {
			return fmt.Errorf("sft: %v profile: %w", p.kind, err)
		}
	}
	return nil
}
