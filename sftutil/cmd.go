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

// Package sftutil provides the command-line interface to the SFT model.
package sftutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/sft"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// modelFlags are the flag sets of the commands that need to know
	// how the model is configured.
	modelFlags := func() []*pflag.FlagSet {
		return []*pflag.FlagSet{runCmd.Flags(), timestepCmd.Flags()}
	}

	// Options are the configuration options available to SFT.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Grid.NTheta",
			usage: `
              Grid.NTheta specifies the number of colatitude divisions of
              the grid. If Grid.ExcludePoles is true the grid has
              Grid.NTheta+1 colatitude points.`,
			defaultVal: 180,
			flagsets:   modelFlags(),
		},
		{
			name: "Grid.NPhi",
			usage: `
              Grid.NPhi specifies the number of longitude divisions of
              the grid.`,
			defaultVal: 360,
			flagsets:   modelFlags(),
		},
		{
			name: "Grid.ExcludePoles",
			usage: `
              Grid.ExcludePoles specifies whether the grid stops short of
              the poles. Grids that include the poles have no stable time
              step.`,
			defaultVal: true,
			flagsets:   modelFlags(),
		},
		{
			name: "Diffusivity",
			usage: `
              Diffusivity specifies the turbulent diffusivity in m²/s. It is
              applied against the solar radius in m without rescaling.`,
			shorthand:  "d",
			defaultVal: 2.5e8,
			flagsets:   modelFlags(),
		},
		{
			name: "CFL",
			usage: `
              CFL specifies the Courant number used to choose the
              sub-step size.`,
			defaultVal: sft.DefaultCFL,
			flagsets:   modelFlags(),
		},
		{
			name: "MeridionalFlow.PeakSpeed",
			usage: `
              MeridionalFlow.PeakSpeed specifies the peak speed of the
              poleward meridional flow in m/s.`,
			defaultVal: sft.DefaultPeakSpeed,
			flagsets:   modelFlags(),
		},
		{
			name: "MeridionalFlow.Exponent",
			usage: `
              MeridionalFlow.Exponent specifies how strongly the meridional
              flow is concentrated toward the equator.`,
			defaultVal: sft.DefaultMeridionalExponent,
			flagsets:   modelFlags(),
		},
		{
			name: "Rotation.Type",
			usage: `
              Rotation.Type specifies the rotation profile; either 'solar'
              for observed differential rotation or 'rigid' for uniform
              rotation.`,
			defaultVal: string(sft.SolarRotation),
			flagsets:   modelFlags(),
		},
		{
			name: "Rotation.Frame",
			usage: `
              Rotation.Frame specifies the reference frame of solar
              rotation; either 'carrington' or 'synodic'.`,
			defaultVal: string(sft.Carrington),
			flagsets:   modelFlags(),
		},
		{
			name: "Rotation.Period",
			usage: `
              Rotation.Period specifies the rotation period in days for
              rigid rotation.`,
			defaultVal: sft.DefaultRotationPeriod,
			flagsets:   modelFlags(),
		},
		{
			name: "InitialField.Type",
			usage: `
              InitialField.Type specifies how the initial field is created;
              either 'dipole' for an axisymmetric polar field or 'map' to
              read a magnetogram from InitialField.File.`,
			defaultVal: string(sft.DipoleField),
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "InitialField.File",
			usage: `
              InitialField.File specifies the location of a NetCDF
              magnetogram in sine latitude and longitude. It can include
              environment variables.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "InitialField.Variable",
			usage: `
              InitialField.Variable specifies the name of the magnetogram
              variable in InitialField.File.`,
			defaultVal: "Br",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "InitialField.Sign",
			usage: `
              InitialField.Sign specifies the polarity of the dipole initial
              field. Positive values give a positive northern polar field.`,
			defaultVal: 1.0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "NumDays",
			usage: `
              NumDays specifies the number of days to simulate.`,
			shorthand:  "n",
			defaultVal: 365,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "NumProcessors",
			usage: `
              NumProcessors specifies the number of goroutines used for
              each sub-step. Values < 1 use all available processors.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile specifies the path to the desired NetCDF output
              location. It can include environment variables. The run
              manifest is written next to it with a .toml extension.`,
			shorthand:  "o",
			defaultVal: "sft.nc",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), plotCmd.Flags()},
		},
		{
			name: "OutputFullField",
			usage: `
              OutputFullField specifies whether the whole field is written
              to OutputFile for each day. If false only the butterfly
              profile and diagnostics are written.`,
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "DiagnosticsFile",
			usage: `
              DiagnosticsFile specifies the path to a CSV file where daily
              diagnostics will be written. If empty, no file is written.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "DiagnosticExpressions",
			usage: `
              DiagnosticExpressions specifies additional columns for
              DiagnosticsFile as expressions of the built-in diagnostics,
              for example {"asymmetry":"polar_field_north + polar_field_south"}.`,
			defaultVal: map[string]string{},
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "PolarLatitude",
			usage: `
              PolarLatitude specifies the latitude in degrees poleward of
              which polar field and flux diagnostics are calculated.`,
			defaultVal: 55.0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "LogFile",
			usage: `
              LogFile specifies the path to the desired logfile location. It
              can include environment variables. If LogFile is left blank,
              the logfile will be saved in the same location as the OutputFile.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "CheckpointFile",
			usage: `
              CheckpointFile specifies where the state of the simulation is
              saved when it finishes. If empty, no checkpoint is saved.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Resume",
			usage: `
              Resume specifies whether the simulation continues from
              CheckpointFile instead of starting from the initial field.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "PlotFile",
			usage: `
              PlotFile specifies the path to a PNG butterfly diagram. For
              'run' no plot is made if it is empty; for 'plot' it defaults
              to OutputFile with a .png extension.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), plotCmd.Flags()},
		},
		{
			name: "PlotMaxField",
			usage: `
              PlotMaxField specifies the field strength in G at the ends of
              the plot color scale. Values <= 0 use the largest magnitude in
              the plotted data.`,
			defaultVal: 10.0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), plotCmd.Flags()},
		},
		{
			name: "PlotDay",
			usage: `
              PlotDay specifies the day whose field 'plot' draws as a map
              of longitude and latitude. The output must have been written
              with OutputFullField. Values < 0 draw the butterfly diagram
              instead.`,
			defaultVal: -1,
			flagsets:   []*pflag.FlagSet{plotCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("SFT")
	Cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			case map[string]string:
				b := bytes.NewBuffer(nil)
				e := json.NewEncoder(b)
				e.Encode(option.defaultVal)
				s := string(b.Bytes())
				if option.shorthand == "" {
					set.String(option.name, s, option.usage)
				} else {
					set.StringP(option.name, option.shorthand, s, option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(runCmd)
	Root.AddCommand(timestepCmd)
	Root.AddCommand(plotCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(os.ExpandEnv(cfgpath))
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("sft: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "sft",
	Short: "A surface flux transport model.",
	Long: `SFT simulates the transport of the radial magnetic field over the solar
surface by differential rotation, meridional circulation and turbulent diffusion.
Use the subcommands specified below to access the model functionality.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'SFT_var' where 'var' is the
name of the variable to be set, with any '.' replaced by '_'. File paths are
additionally allowed to contain environment variables within them.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of SFT.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "SFT v%s\n", sft.Version)
	},
	DisableAutoGenTag: true,
}

// runCmd is a command that runs a simulation.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the model.",
	Long: `run runs an SFT simulation for NumDays days and writes the daily state
to OutputFile, along with a run manifest and, if requested, a diagnostics
table, a checkpoint and a butterfly diagram.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := LoadConfig(Cfg)
		if err != nil {
			return err
		}
		return Run(cmd, c)
	},
	DisableAutoGenTag: true,
}

// timestepCmd is a command that prints the sub-step size.
var timestepCmd = &cobra.Command{
	Use:   "timestep",
	Short: "Print the sub-step size.",
	Long: `timestep prints the stability limit of each transport process and
the resulting sub-step size for the configured grid, diffusivity and profiles.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := LoadConfig(Cfg)
		if err != nil {
			return err
		}
		return TimeStep(cmd, c)
	},
	DisableAutoGenTag: true,
}

// plotCmd is a command that plots a butterfly diagram or the field of
// one day.
var plotCmd = &cobra.Command{
	Use:   "plot",
	Short: "Plot a butterfly diagram or the field of one day.",
	Long: `plot reads the NetCDF file written by 'run' from OutputFile and
saves a butterfly diagram, or the field of day PlotDay if PlotDay >= 0, to
PlotFile in PNG format.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		outputFile, err := checkOutputFile(Cfg.GetString("OutputFile"))
		if err != nil {
			return err
		}
		plotFile := os.ExpandEnv(Cfg.GetString("PlotFile"))
		if plotFile == "" {
			plotFile = withExt(outputFile, ".png")
		}
		return Plot(outputFile, plotFile, Cfg.GetFloat64("PlotMaxField"), Cfg.GetInt("PlotDay"))
	},
	DisableAutoGenTag: true,
}
