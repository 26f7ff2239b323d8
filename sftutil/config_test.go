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
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kr/pretty"
	"github.com/lnashier/viper"
	"github.com/spatialmodel/sft"
)

// resetConfig sets every option back to its default value.
func resetConfig() {
	for _, option := range options {
		Cfg.Set(option.name, option.defaultVal)
	}
}

func tempDir(t *testing.T) string {
	dir, err := ioutil.TempDir("", "sftutil")
	if err != nil {
		t.Fatal(err)
	}
	return dir
}

func defaultConfig(dir string) Config {
	return Config{
		Grid:                  GridConfig{NTheta: 180, NPhi: 360, ExcludePoles: true},
		Diffusivity:           2.5e8,
		CFL:                   0.4,
		MeridionalFlow:        MeridionalFlowConfig{PeakSpeed: 15, Exponent: 2.33},
		Rotation:              RotationConfig{Type: "solar", Frame: "carrington", Period: 2},
		InitialField:          InitialFieldConfig{Type: "dipole", Variable: "Br", Sign: 1},
		NumDays:               365,
		OutputFile:            filepath.Join(dir, "sft.nc"),
		LogFile:               filepath.Join(dir, "sft.log"),
		OutputFullField:       true,
		DiagnosticExpressions: map[string]string{},
		PolarLatitude:         55,
		PlotMaxField:          10,
	}
}

func TestLoadConfig(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)
	resetConfig()
	Cfg.Set("OutputFile", filepath.Join(dir, "sft.nc"))

	c, err := LoadConfig(Cfg)
	if err != nil {
		t.Fatal(err)
	}
	want := defaultConfig(dir)
	if diff := pretty.Diff(want, *c); len(diff) > 0 {
		t.Errorf("config differs from defaults:\n%s", diff)
	}
}

func TestLoadConfigExpandEnv(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)
	resetConfig()
	os.Setenv("SFT_TEST_DIR", dir)
	defer os.Unsetenv("SFT_TEST_DIR")
	Cfg.Set("OutputFile", "${SFT_TEST_DIR}/run.nc")
	Cfg.Set("CheckpointFile", "${SFT_TEST_DIR}/run.gob")
	Cfg.Set("LogFile", "${SFT_TEST_DIR}/run.txt")

	c, err := LoadConfig(Cfg)
	if err != nil {
		t.Fatal(err)
	}
	for have, want := range map[string]string{
		c.OutputFile:     filepath.Join(dir, "run.nc"),
		c.CheckpointFile: filepath.Join(dir, "run.gob"),
		c.LogFile:        filepath.Join(dir, "run.txt"),
	} {
		if have != want {
			t.Errorf("have %s, want %s", have, want)
		}
	}
}

func TestLoadConfigErrors(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)
	for _, test := range []struct {
		name, key     string
		val           interface{}
		configuration bool // whether the error wraps ErrInvalidConfiguration
	}{
		{name: "small grid", key: "Grid.NTheta", val: 2, configuration: true},
		{name: "no days", key: "NumDays", val: 0, configuration: true},
		{name: "negative diffusivity", key: "Diffusivity", val: -1.0, configuration: true},
		{name: "rotation", key: "Rotation.Type", val: "wobbly", configuration: true},
		{name: "field type", key: "InitialField.Type", val: "random", configuration: true},
		{name: "map without file", key: "InitialField.Type", val: "map", configuration: true},
		{name: "resume without checkpoint", key: "Resume", val: true, configuration: true},
		{name: "expressions", key: "DiagnosticExpressions", val: `{"a": `, configuration: true},
		{name: "no output", key: "OutputFile", val: "", configuration: true},
		{name: "output dir", key: "OutputFile", val: filepath.Join(dir, "missing", "sft.nc")},
	} {
		t.Run(test.name, func(t *testing.T) {
			resetConfig()
			Cfg.Set("OutputFile", filepath.Join(dir, "sft.nc"))
			Cfg.Set(test.key, test.val)
			_, err := LoadConfig(Cfg)
			if err == nil {
				t.Fatal("expected an error")
			}
			if test.configuration && !errors.Is(err, sft.ErrInvalidConfiguration) {
				t.Errorf("want ErrInvalidConfiguration, have %v", err)
			}
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)
	file := filepath.Join(dir, "config.toml")
	err := ioutil.WriteFile(file, []byte(`
NumDays = 3
OutputFile = "`+filepath.Join(dir, "file.nc")+`"

[Grid]
NTheta = 18
NPhi = 36

[Rotation]
Type = "rigid"
Period = 27.0

[DiagnosticExpressions]
asymmetry = "polar_field_north + polar_field_south"
`), 0644)
	if err != nil {
		t.Fatal(err)
	}

	v := viper.New()
	for _, option := range options {
		v.SetDefault(option.name, option.defaultVal)
	}
	v.SetConfigFile(file)
	if err = v.ReadInConfig(); err != nil {
		t.Fatal(err)
	}
	c, err := LoadConfig(v)
	if err != nil {
		t.Fatal(err)
	}
	want := defaultConfig(dir)
	want.NumDays = 3
	want.OutputFile = filepath.Join(dir, "file.nc")
	want.LogFile = filepath.Join(dir, "file.log")
	want.Grid.NTheta, want.Grid.NPhi = 18, 36
	want.Rotation.Type, want.Rotation.Period = "rigid", 27
	want.DiagnosticExpressions = map[string]string{"asymmetry": "polar_field_north + polar_field_south"}
	if diff := pretty.Diff(want, *c); len(diff) > 0 {
		t.Errorf("config differs:\n%s", diff)
	}
}

func TestGetStringMapString(t *testing.T) {
	want := map[string]string{"a": "day + 1", "b": "abs(dipole_moment)"}
	for _, val := range []interface{}{
		want,
		map[string]interface{}{"a": "day + 1", "b": "abs(dipole_moment)"},
		`{"a": "day + 1", "b": "abs(dipole_moment)"}`,
	} {
		v := viper.New()
		v.Set("x", val)
		have, err := GetStringMapString("x", v)
		if err != nil {
			t.Fatal(err)
		}
		if diff := pretty.Diff(want, have); len(diff) > 0 {
			t.Errorf("%T: %s", val, diff)
		}
	}

	v := viper.New()
	v.Set("x", "")
	if have, err := GetStringMapString("x", v); err != nil || len(have) != 0 {
		t.Errorf("empty string: %v, %v", have, err)
	}
	v.Set("x", 3)
	if _, err := GetStringMapString("x", v); !errors.Is(err, sft.ErrInvalidConfiguration) {
		t.Errorf("want ErrInvalidConfiguration, have %v", err)
	}
}

func TestCheckLogFile(t *testing.T) {
	if have := checkLogFile("", "dir/out.nc"); have != "dir/out.log" {
		t.Errorf("have %s", have)
	}
	if have := checkLogFile("run.log", "dir/out.nc"); have != "run.log" {
		t.Errorf("have %s", have)
	}
}

func TestConfigProfiles(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)
	resetConfig()
	Cfg.Set("OutputFile", filepath.Join(dir, "sft.nc"))
	Cfg.Set("Grid.NTheta", 18)
	Cfg.Set("Grid.NPhi", 36)
	c, err := LoadConfig(Cfg)
	if err != nil {
		t.Fatal(err)
	}
	g := c.NewGrid()
	meridional, rotation, err := c.Profiles(g)
	if err != nil {
		t.Fatal(err)
	}
	if meridional.Kind != sft.Meridional || rotation.Kind != sft.Rotational {
		t.Errorf("profile kinds %v and %v", meridional.Kind, rotation.Kind)
	}
	if err := g.CheckShape(rotation.Values); err != nil {
		t.Error(err)
	}

	c.Rotation.Frame = "galactic"
	if _, _, err := c.Profiles(g); !errors.Is(err, sft.ErrInvalidConfiguration) {
		t.Errorf("want ErrInvalidConfiguration, have %v", err)
	}
	c.Rotation.Type = "rigid" // frame is ignored
	if _, _, err := c.Profiles(g); err != nil {
		t.Error(err)
	}

	f, err := c.Field(g)
	if err != nil {
		t.Fatal(err)
	}
	if err := g.CheckShape(f); err != nil {
		t.Error(err)
	}
}

func TestOptionUsage(t *testing.T) {
	want := map[string]string{
		"Diffusivity":  "m²/s",
		"PlotMaxField": "Values <= 0",
		"PlotDay":      "Values < 0",
	}
	for _, option := range options {
		if s, ok := want[option.name]; ok {
			if !strings.Contains(option.usage, s) {
				t.Errorf("%s usage %q does not contain %q", option.name, option.usage, s)
			}
			delete(want, option.name)
		}
	}
	for name := range want {
		t.Errorf("missing option %s", name)
	}
}
