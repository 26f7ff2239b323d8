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
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
	"github.com/lnashier/viper"
	"github.com/spatialmodel/sft"
	"github.com/spf13/cast"
)

// Config holds the settings for a simulation.
type Config struct {
	Grid           GridConfig
	Diffusivity    float64 // [m²/s]
	CFL            float64
	MeridionalFlow MeridionalFlowConfig
	Rotation       RotationConfig
	InitialField   InitialFieldConfig

	NumDays       int
	NumProcessors int

	OutputFile            string
	OutputFullField       bool
	DiagnosticsFile       string
	DiagnosticExpressions map[string]string
	PolarLatitude         float64 // [degrees]

	LogFile        string
	CheckpointFile string
	Resume         bool
	PlotFile       string
	PlotMaxField   float64 // [G]
}

// GridConfig specifies the computational grid.
type GridConfig struct {
	NTheta, NPhi int
	ExcludePoles bool
}

// MeridionalFlowConfig specifies the meridional circulation profile.
type MeridionalFlowConfig struct {
	PeakSpeed float64 // [m/s]
	Exponent  float64
}

// RotationConfig specifies the differential rotation profile.
type RotationConfig struct {
	Type   string
	Frame  string
	Period float64 // [days]
}

// InitialFieldConfig specifies the field at the beginning of the simulation.
type InitialFieldConfig struct {
	Type     string
	File     string
	Variable string
	Sign     float64
}

// LoadConfig reads the simulation settings from cfg and checks them.
// Environment variables in file paths are expanded.
func LoadConfig(cfg *viper.Viper) (*Config, error) {
	c := &Config{
		Grid: GridConfig{
			NTheta:       cfg.GetInt("Grid.NTheta"),
			NPhi:         cfg.GetInt("Grid.NPhi"),
			ExcludePoles: cfg.GetBool("Grid.ExcludePoles"),
		},
		Diffusivity: cfg.GetFloat64("Diffusivity"),
		CFL:         cfg.GetFloat64("CFL"),
		MeridionalFlow: MeridionalFlowConfig{
			PeakSpeed: cfg.GetFloat64("MeridionalFlow.PeakSpeed"),
			Exponent:  cfg.GetFloat64("MeridionalFlow.Exponent"),
		},
		Rotation: RotationConfig{
			Type:   cfg.GetString("Rotation.Type"),
			Frame:  cfg.GetString("Rotation.Frame"),
			Period: cfg.GetFloat64("Rotation.Period"),
		},
		InitialField: InitialFieldConfig{
			Type:     cfg.GetString("InitialField.Type"),
			File:     os.ExpandEnv(cfg.GetString("InitialField.File")),
			Variable: cfg.GetString("InitialField.Variable"),
			Sign:     cfg.GetFloat64("InitialField.Sign"),
		},
		NumDays:         cfg.GetInt("NumDays"),
		NumProcessors:   cfg.GetInt("NumProcessors"),
		OutputFullField: cfg.GetBool("OutputFullField"),
		DiagnosticsFile: os.ExpandEnv(cfg.GetString("DiagnosticsFile")),
		PolarLatitude:   cfg.GetFloat64("PolarLatitude"),
		CheckpointFile:  os.ExpandEnv(cfg.GetString("CheckpointFile")),
		Resume:          cfg.GetBool("Resume"),
		PlotFile:        os.ExpandEnv(cfg.GetString("PlotFile")),
		PlotMaxField:    cfg.GetFloat64("PlotMaxField"),
	}
	var err error
	if c.OutputFile, err = checkOutputFile(cfg.GetString("OutputFile")); err != nil {
		return nil, err
	}
	c.LogFile = checkLogFile(os.ExpandEnv(cfg.GetString("LogFile")), c.OutputFile)
	if c.DiagnosticExpressions, err = GetStringMapString("DiagnosticExpressions", cfg); err != nil {
		return nil, err
	}
	if err = c.check(); err != nil {
		return nil, err
	}
	return c, nil
}

// check makes sure the settings describe a runnable simulation.
func (c *Config) check() error {
	if c.Grid.NTheta < 3 || c.Grid.NPhi < 3 {
		return fmt.Errorf("sft: Grid.NTheta and Grid.NPhi must be at least 3, are %d and %d: %w",
			c.Grid.NTheta, c.Grid.NPhi, sft.ErrInvalidConfiguration)
	}
	if c.NumDays < 1 {
		return fmt.Errorf("sft: NumDays must be at least 1, is %d: %w", c.NumDays, sft.ErrInvalidConfiguration)
	}
	if c.Diffusivity < 0 {
		return fmt.Errorf("sft: Diffusivity must not be negative, is %g: %w", c.Diffusivity, sft.ErrInvalidConfiguration)
	}
	if _, err := sft.ParseRotation(c.Rotation.Type); err != nil {
		return err
	}
	t, err := sft.ParseFieldType(c.InitialField.Type)
	if err != nil {
		return err
	}
	if t == sft.MapField && c.InitialField.File == "" && !c.Resume {
		return fmt.Errorf("sft: InitialField.File must be set for map initial fields: %w", sft.ErrInvalidConfiguration)
	}
	if c.Resume && c.CheckpointFile == "" {
		return fmt.Errorf("sft: CheckpointFile must be set to resume a simulation: %w", sft.ErrInvalidConfiguration)
	}
	return nil
}

// NewGrid returns the computational grid.
func (c *Config) NewGrid() sft.Grid {
	return sft.NewGrid(c.Grid.NTheta, c.Grid.NPhi, c.Grid.ExcludePoles)
}

// Profiles returns the meridional flow and rotation profiles on grid g.
func (c *Config) Profiles(g sft.Grid) (meridional, rotation *sft.Profile, err error) {
	rot, err := sft.ParseRotation(c.Rotation.Type)
	if err != nil {
		return nil, nil, err
	}
	frame := sft.Carrington
	if rot == sft.SolarRotation {
		if frame, err = sft.ParseFrame(c.Rotation.Frame); err != nil {
			return nil, nil, err
		}
	}
	rotation, err = sft.DifferentialRotation(g, rot, frame, c.Rotation.Period)
	if err != nil {
		return nil, nil, err
	}
	meridional = sft.MeridionalFlowExponent(g, c.MeridionalFlow.PeakSpeed, c.MeridionalFlow.Exponent)
	return meridional, rotation, nil
}

// Field returns the flux-corrected initial field on grid g.
func (c *Config) Field(g sft.Grid) (*sparse.DenseArray, error) {
	t, err := sft.ParseFieldType(c.InitialField.Type)
	if err != nil {
		return nil, err
	}
	var rw cdf.ReaderWriterAt
	if t == sft.MapField {
		f, err := os.Open(c.InitialField.File)
		if err != nil {
			return nil, fmt.Errorf("sft: opening initial field: %v", err)
		}
		defer f.Close()
		rw = f
	}
	return sft.InitialField(g, t, c.InitialField.Sign, rw, c.InitialField.Variable)
}

// checkOutputFile expands any environment variables in f and makes sure
// the directory it is to be written in exists.
func checkOutputFile(f string) (string, error) {
	if f == "" {
		return "", fmt.Errorf(`sft: you need to specify an output file configuration variable (for example: OutputFile="output.nc"): %w`,
			sft.ErrInvalidConfiguration)
	}
	f = os.ExpandEnv(f)
	outdir := filepath.Dir(f)
	if _, err := os.Stat(outdir); err != nil {
		return f, fmt.Errorf("sft: the OutputFile directory doesn't exist: %v", err)
	}
	return f, nil
}

// checkLogFile fills in a default value for the log file path if one isn't
// specified.
func checkLogFile(logFile, outputFile string) string {
	if logFile == "" {
		logFile = withExt(outputFile, ".log")
	}
	return logFile
}

// withExt replaces the extension of file f with ext.
func withExt(f, ext string) string {
	return strings.TrimSuffix(f, filepath.Ext(f)) + ext
}

// GetStringMapString returns a map[string]string from a viper configuration,
// accounting for the fact that it might be a json object if it was set
// from a command line argument.
func GetStringMapString(varName string, cfg *viper.Viper) (map[string]string, error) {
	i := cfg.Get(varName)
	switch v := i.(type) {
	case nil:
		return map[string]string{}, nil
	case map[string]string:
		return v, nil
	case map[string]interface{}:
		return cast.ToStringMapStringE(v)
	case string:
		o := make(map[string]string)
		if strings.TrimSpace(v) == "" {
			return o, nil
		}
		d := json.NewDecoder(bytes.NewBufferString(v))
		if err := d.Decode(&o); err != nil {
			return nil, fmt.Errorf("sft: parsing %s: %v: %w", varName, err, sft.ErrInvalidConfiguration)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("sft: invalid type for %s: %#v: %w", varName, i, sft.ErrInvalidConfiguration)
	}
}
