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
	"errors"
	"math"
	"testing"
)

func TestCalculateTimeStep(t *testing.T) {
	for _, test := range []struct {
		nTheta, nPhi int
		D, cfl       float64
	}{
		{10, 20, 2.5e8, DefaultCFL},
		{36, 72, 2.5e8, DefaultCFL},
		{180, 360, 2.5e8, DefaultCFL},
		{180, 360, 6.e8, 0.1},
		{90, 180, 0, 1},
	} {
		g := NewGrid(test.nTheta, test.nPhi, true)
		step, bounds, err := CalculateTimeStep(g, test.D, test.cfl)
		if err != nil {
			t.Errorf("%+v: %v", test, err)
			continue
		}
		if step.StepsPerDay < 1 {
			t.Errorf("%+v: %d steps per day", test, step.StepsPerDay)
		}
		if different(step.TimeStep*float64(step.StepsPerDay), SecondsPerDay, 1.e-12) {
			t.Errorf("%+v: %d steps of %g s do not make a day", test, step.StepsPerDay, step.TimeStep)
		}
		if !(bounds.Min() > 0) || math.IsInf(bounds.Min(), 0) {
			t.Errorf("%+v: bounds %v", test, bounds)
		}
	}
}

func TestCalculateTimeStepValue(t *testing.T) {
	step, _, err := CalculateTimeStep(NewGrid(180, 360, true), 2.5e8, DefaultCFL)
	if err != nil {
		t.Fatal(err)
	}
	if step.StepsPerDay != 75 || step.TimeStep != 1152 {
		t.Errorf("have %d steps of %g s, want 75 steps of 1152 s", step.StepsPerDay, step.TimeStep)
	}

	// A coarse grid needs less than one sub-step per day, which is
	// rounded up to one.
	step, _, err = CalculateTimeStep(NewGrid(10, 20, true), 2.5e8, DefaultCFL)
	if err != nil {
		t.Fatal(err)
	}
	if step.StepsPerDay != 1 || step.TimeStep != SecondsPerDay {
		t.Errorf("have %d steps of %g s, want 1 step of 86400 s", step.StepsPerDay, step.TimeStep)
	}
}

func TestTimeStepForProfiles(t *testing.T) {
	g := NewGrid(36, 72, true)
	slow, _, err := TimeStepForProfiles(g, 2.5e8, DefaultCFL, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	rot, err := DifferentialRotation(g, RigidRotation, "", 0.01)
	if err != nil {
		t.Fatal(err)
	}
	fast, bounds, err := TimeStepForProfiles(g, 2.5e8, DefaultCFL, nil, rot)
	if err != nil {
		t.Fatal(err)
	}
	if fast.StepsPerDay <= slow.StepsPerDay {
		t.Errorf("fast rotation should need more sub-steps: %d <= %d", fast.StepsPerDay, slow.StepsPerDay)
	}
	if m := bounds.Min(); m != bounds.RotationRate && m != bounds.RotationPhi && m != bounds.RotationTheta {
		t.Errorf("rotation should limit the step: %v", bounds)
	}

	// Without transport, diffusion is the only limit.
	still, bounds, err := TimeStepForProfiles(g, 2.5e8, DefaultCFL,
		zeroProfile(g, Meridional), zeroProfile(g, Rotational))
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsInf(bounds.RotationRate, 1) || !math.IsInf(bounds.RotationTheta, 1) {
		t.Errorf("rotation bounds should be unset: %v", bounds)
	}
	if still.StepsPerDay > slow.StepsPerDay {
		t.Errorf("%d sub-steps without transport, %d with", still.StepsPerDay, slow.StepsPerDay)
	}
}

func TestCalculateTimeStepErrors(t *testing.T) {
	g := NewGrid(36, 72, true)
	for _, cfl := range []float64{0, -0.4, math.NaN(), math.Inf(1)} {
		if _, _, err := CalculateTimeStep(g, 2.5e8, cfl); !errors.Is(err, ErrNumericDegeneracy) {
			t.Errorf("cfl %g: want ErrNumericDegeneracy, have %v", cfl, err)
		}
	}
	// sinθ vanishes at the poles.
	if _, _, err := CalculateTimeStep(NewGrid(36, 72, false), 2.5e8, DefaultCFL); !errors.Is(err, ErrNumericDegeneracy) {
		t.Errorf("grid with poles: want ErrNumericDegeneracy, have %v", err)
	}
}
