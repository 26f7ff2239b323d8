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
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/sft"
	"github.com/spatialmodel/sft/internal/hash"
	"github.com/spf13/cobra"
)

// Manifest records how a simulation was run.
type Manifest struct {
	Version  string
	RunHash  string
	Start    time.Time
	Finish   time.Time
	FirstDay int
	LastDay  int

	TimeStep       float64 // [s]
	StepsPerDay    int
	StabilityLimit float64 // [s]

	Config Config
}

// hashConfig returns an identifier that is the same for runs with the
// same settings.
func hashConfig(c *Config) string { return hash.Hash(c) }

// newLogger returns a logger that writes to w.
func newLogger(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.Out = w
	l.Formatter = &logrus.TextFormatter{DisableColors: true, FullTimestamp: true}
	return l
}

// TimeStep writes the stability limits and sub-step size for the grid,
// diffusivity and profiles specified by c to the output of cmd.
func TimeStep(cmd *cobra.Command, c *Config) error {
	g := c.NewGrid()
	meridional, rotation, err := c.Profiles(g)
	if err != nil {
		return err
	}
	step, bounds, err := sft.TimeStepForProfiles(g, c.Diffusivity, c.CFL, meridional, rotation)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Stability limits: %v\n", bounds)
	fmt.Fprintf(w, "Sub-step: %g s, %d per day\n", step.TimeStep, step.StepsPerDay)
	return nil
}

// Run runs a simulation as specified by c.
//
// cmd is the cobra.Command instance where Run is called from. Log messages
// are written to its output as well as to c.LogFile.
//
// The daily state is written to c.OutputFile and a Manifest is written
// next to it with a .toml extension. Diagnostics, a checkpoint and a
// butterfly diagram are written when c.DiagnosticsFile, c.CheckpointFile
// and c.PlotFile are set.
func Run(cmd *cobra.Command, c *Config) error {
	m := Manifest{
		Version: sft.Version,
		RunHash: hashConfig(c),
		Start:   time.Now(),
		Config:  *c,
	}

	logfile, err := os.Create(c.LogFile)
	if err != nil {
		return fmt.Errorf("sft: problem creating log file: %v", err)
	}
	defer logfile.Close()
	log := newLogger(io.MultiWriter(cmd.OutOrStdout(), logfile))
	log.WithField("run_hash", m.RunHash).Infof("SFT v%s", sft.Version)

	g := c.NewGrid()
	meridional, rotation, err := c.Profiles(g)
	if err != nil {
		return err
	}
	step, bounds, err := sft.TimeStepForProfiles(g, c.Diffusivity, c.CFL, meridional, rotation)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"timestep":      step.TimeStep,
		"steps_per_day": step.StepsPerDay,
	}).Infof("stability limits: %v", bounds)

	d := &sft.Model{
		NumProcessors: c.NumProcessors,
		InitFuncs: []sft.DomainManipulator{
			sft.UseGrid(g),
			sft.UseDiffusivity(c.Diffusivity),
			sft.UseProfiles(meridional, rotation),
			sft.SetTimeStepCFL(c.CFL),
		},
	}
	if c.Resume {
		f, err := os.Open(c.CheckpointFile)
		if err != nil {
			return fmt.Errorf("sft: opening checkpoint: %v", err)
		}
		defer f.Close()
		d.InitFuncs = append(d.InitFuncs, sft.Load(f))
		log.Infof("resuming from %s", c.CheckpointFile)
	} else {
		field, err := c.Field(g)
		if err != nil {
			return err
		}
		d.InitFuncs = append(d.InitFuncs, sft.UseInitialField(field))
	}

	out, err := os.Create(c.OutputFile)
	if err != nil {
		return fmt.Errorf("sft: problem creating output file: %v", err)
	}
	defer out.Close()
	o, err := sft.NewOutputter(out, g, step, c.NumDays, c.OutputFullField, c.PolarLatitude,
		map[string]string{"version": sft.Version, "run_hash": m.RunHash})
	if err != nil {
		return err
	}
	h := sft.NewHistory(false, c.PolarLatitude)

	d.InitFuncs = append(d.InitFuncs, h.Record(), o.Output())
	d.RunFuncs = []sft.DomainManipulator{
		sft.Integrate(),
		sft.CheckFinite(),
		h.Record(),
		o.Output(),
		sft.Log(log),
		sft.RunDays(c.NumDays),
	}
	d.CleanupFuncs = []sft.DomainManipulator{
		logDecayTime(log, h),
		saveCheckpoint(c.CheckpointFile),
		writeDiagnostics(c.DiagnosticsFile, h, c.DiagnosticExpressions),
		plotHistory(c.PlotFile, h, c.PlotMaxField),
	}

	if err := d.Init(); err != nil {
		return err
	}
	m.FirstDay = d.Day
	m.TimeStep, m.StepsPerDay, m.StabilityLimit = d.Step.TimeStep, d.Step.StepsPerDay, d.Bounds.Min()
	if err := d.Run(); err != nil {
		return err
	}
	if err := d.Cleanup(); err != nil {
		return err
	}
	m.LastDay = d.Day
	m.Finish = time.Now()
	if err := writeManifest(withExt(c.OutputFile, ".toml"), &m); err != nil {
		return err
	}
	log.WithField("walltime", m.Finish.Sub(m.Start).String()).Info("simulation complete")
	return nil
}

func logDecayTime(log logrus.FieldLogger, h *sft.History) sft.DomainManipulator {
	return func(d *sft.Model) error {
		if tau, err := h.FluxDecayTime(); err == nil {
			log.WithField("flux_decay_time", tau).Info("unsigned flux e-folding time [days]")
		}
		return nil
	}
}

// saveCheckpoint saves the model state to file, if file is not empty.
func saveCheckpoint(file string) sft.DomainManipulator {
	return func(d *sft.Model) error {
		if file == "" {
			return nil
		}
		f, err := os.Create(file)
		if err != nil {
			return fmt.Errorf("sft: creating checkpoint file: %v", err)
		}
		defer f.Close()
		return sft.Save(f)(d)
	}
}

// writeDiagnostics writes the recorded diagnostics and the given derived
// columns to file in CSV format, if file is not empty.
func writeDiagnostics(file string, h *sft.History, expressions map[string]string) sft.DomainManipulator {
	return func(d *sft.Model) error {
		if file == "" {
			return nil
		}
		s, err := sft.DiagnosticSeries(h, expressions)
		if err != nil {
			return err
		}
		f, err := os.Create(file)
		if err != nil {
			return fmt.Errorf("sft: creating diagnostics file: %v", err)
		}
		defer f.Close()
		return s.WriteCSV(f)
	}
}

// plotHistory writes a butterfly diagram of h to file, if file is not empty.
func plotHistory(file string, h *sft.History, maxField float64) sft.DomainManipulator {
	return func(d *sft.Model) error {
		if file == "" {
			return nil
		}
		f, err := os.Create(file)
		if err != nil {
			return fmt.Errorf("sft: creating plot file: %v", err)
		}
		defer f.Close()
		return PlotButterfly(f, h, d.Grid, maxField)
	}
}

func writeManifest(file string, m *Manifest) error {
	f, err := os.Create(file)
	if err != nil {
		return fmt.Errorf("sft: creating run manifest: %v", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(m); err != nil {
		return fmt.Errorf("sft: writing run manifest: %v", err)
	}
	return nil
}

// ReadManifest reads a run manifest written by Run.
func ReadManifest(file string) (*Manifest, error) {
	m := new(Manifest)
	if _, err := toml.DecodeFile(file, m); err != nil {
		return nil, fmt.Errorf("sft: reading run manifest: %v", err)
	}
	return m, nil
}
