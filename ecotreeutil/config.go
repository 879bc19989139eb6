/*
Copyright © 2024 the EcoTree authors.
This file is part of EcoTree.

EcoTree is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

EcoTree is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with EcoTree.  If not, see <http://www.gnu.org/licenses/>.
*/

package ecotreeutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ctessum/geom/proj"
	"github.com/go-playground/validator/v10"
	"github.com/lnashier/viper"
	"github.com/spatialmodel/ecotree"
	"github.com/spatialmodel/ecotree/inventory"
	"github.com/spf13/cast"
)

var validate = validator.New()

// GridConfig holds the configuration needed to read an inventory and
// set up the output grid.
type GridConfig struct {
	InventoryFile string `validate:"required"`
	Inventory     inventory.Config

	GridSize float64 `validate:"gt=0"`
	MaxCells int     `validate:"gt=0"`
	Boundary ecotree.BoundaryPolicy

	// OutputFile is the path of the output shapefile.
	OutputFile string `validate:"required"`

	// GridProj is the projection of the tree coordinates. WKT is
	// the WKT form of GridProj, or empty if it was given in Proj4 form.
	GridProj, WKT string
}

// RunConfig holds the configuration of a full model run.
type RunConfig struct {
	GridConfig

	Tables    inventory.TableFiles
	Ambient   ecotree.Ambient
	Constants *ecotree.Constants `validate:"required"`
	Strategy  ecotree.Strategy

	OutputVariables map[string]string `validate:"min=1"`

	// Optional outputs. Empty paths are skipped.
	NetCDFFile, MapDir, SummaryFile, CleanedInventoryFile, ResultsDB string

	LogFile string `validate:"required"`
}

// GridConfigFrom unmarshals a viper configuration for the grid command.
func GridConfigFrom(cfg *viper.Viper) (*GridConfig, error) {
	labels, err := GetStringMapString("HabitLabels", cfg)
	if err != nil {
		return nil, err
	}
	expanded := make(map[string]string, len(labels))
	for k, v := range labels {
		expanded[os.ExpandEnv(k)] = os.ExpandEnv(v)
	}
	boundary, err := ecotree.ParseBoundaryPolicy(cfg.GetString("Boundary"))
	if err != nil {
		return nil, err
	}
	outputFile, err := checkOutputFile(cfg.GetString("OutputFile"))
	if err != nil {
		return nil, err
	}
	gc := &GridConfig{
		InventoryFile: os.ExpandEnv(cfg.GetString("InventoryFile")),
		Inventory: inventory.Config{
			Columns: inventory.Columns{
				Species:       cfg.GetInt("InventoryColumns.Species"),
				TrunkHeight:   cfg.GetInt("InventoryColumns.TrunkHeight"),
				TotalHeight:   cfg.GetInt("InventoryColumns.TotalHeight"),
				CrownDiameter: cfg.GetInt("InventoryColumns.CrownDiameter"),
				LeafType:      cfg.GetInt("InventoryColumns.LeafType"),
				X:             cfg.GetInt("InventoryColumns.X"),
				Y:             cfg.GetInt("InventoryColumns.Y"),
			},
			Encoding:    cfg.GetString("InventoryEncoding"),
			HabitLabels: expanded,
		},
		GridSize:   cfg.GetFloat64("GridSize"),
		MaxCells:   cfg.GetInt("MaxCells"),
		Boundary:   boundary,
		OutputFile: outputFile,
		GridProj:   os.ExpandEnv(cfg.GetString("GridProj")),
	}
	if gc.WKT, err = checkGridProj(gc.GridProj); err != nil {
		return nil, err
	}
	if err := validate.Struct(gc); err != nil {
		return nil, configError(err)
	}
	return gc, nil
}

// RunConfigFrom unmarshals a viper configuration for a model run.
func RunConfigFrom(cfg *viper.Viper) (*RunConfig, error) {
	gc, err := GridConfigFrom(cfg)
	if err != nil {
		return nil, err
	}
	strategy, err := ecotree.ParseStrategy(cfg.GetString("Strategy"))
	if err != nil {
		return nil, err
	}
	consts, err := readConstants(os.ExpandEnv(cfg.GetString("ConstantsFile")))
	if err != nil {
		return nil, err
	}
	vars, err := GetStringMapString("OutputVariables", cfg)
	if err != nil {
		return nil, err
	}
	if vars, err = checkOutputVars(vars); err != nil {
		return nil, err
	}
	rc := &RunConfig{
		GridConfig: *gc,
		Tables: inventory.TableFiles{
			ConversionFactor: os.ExpandEnv(cfg.GetString("SpeciesTables.ConversionFactor")),
			EmissionFactors:  os.ExpandEnv(cfg.GetString("SpeciesTables.EmissionFactors")),
			Shading:          os.ExpandEnv(cfg.GetString("SpeciesTables.Shading")),
			MIR:              os.ExpandEnv(cfg.GetString("SpeciesTables.MIR")),
		},
		Ambient: ecotree.Ambient{
			PM10: cfg.GetFloat64("PM10"),
			O3:   cfg.GetFloat64("O3"),
		},
		Constants:            consts,
		Strategy:             strategy,
		OutputVariables:      vars,
		NetCDFFile:           os.ExpandEnv(cfg.GetString("NetCDFFile")),
		MapDir:               os.ExpandEnv(cfg.GetString("MapDir")),
		SummaryFile:          os.ExpandEnv(cfg.GetString("SummaryFile")),
		CleanedInventoryFile: os.ExpandEnv(cfg.GetString("CleanedInventoryFile")),
		ResultsDB:            os.ExpandEnv(cfg.GetString("ResultsDB")),
		LogFile:              checkLogFile(os.ExpandEnv(cfg.GetString("LogFile")), gc.OutputFile),
	}
	if rc.SummaryFile == "" {
		rc.SummaryFile = strings.TrimSuffix(gc.OutputFile, filepath.Ext(gc.OutputFile)) + ".txt"
	}
	if err := validate.Struct(rc); err != nil {
		return nil, configError(err)
	}
	return rc, nil
}

// TreeFrom unmarshals a viper configuration describing a single tree.
func TreeFrom(cfg *viper.Viper) (*ecotree.Tree, *ecotree.Constants, ecotree.Ambient, error) {
	var a ecotree.Ambient
	habit, err := ecotree.ParseLeafHabit(cfg.GetString("Habit"))
	if err != nil {
		return nil, nil, a, err
	}
	t, err := ecotree.NewTree(cfg.GetString("Species"), habit)
	if err != nil {
		return nil, nil, a, err
	}
	t.CrownHeight = cfg.GetFloat64("CrownHeight")
	t.CrownDiameter = cfg.GetFloat64("CrownDiameter")
	t.Shading = cfg.GetFloat64("Shading")
	t.ConversionFactor = cfg.GetFloat64("ConversionFactor")
	for name, dst := range map[string]*[3]float64{"EF": &t.EF, "MIR": &t.MIR} {
		v, err := toFloat64SliceE(cfg.Get(name))
		if err != nil {
			return nil, nil, a, fmt.Errorf("ecotreeutil: %s: %v", name, err)
		}
		if len(v) != len(dst) {
			return nil, nil, a, fmt.Errorf("ecotreeutil: %s needs %d values but has %d", name, len(dst), len(v))
		}
		copy(dst[:], v)
	}
	if err := t.Validate(); err != nil {
		return nil, nil, a, err
	}
	c, err := readConstants(os.ExpandEnv(cfg.GetString("ConstantsFile")))
	if err != nil {
		return nil, nil, a, err
	}
	a = ecotree.Ambient{PM10: cfg.GetFloat64("PM10"), O3: cfg.GetFloat64("O3")}
	if err := validate.Struct(a); err != nil {
		return nil, nil, a, configError(err)
	}
	return t, c, a, nil
}

// configError turns validation errors into a message naming the
// offending configuration variables.
func configError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("ecotreeutil: %v", err)
	}
	msgs := make([]string, len(verrs))
	for i, e := range verrs {
		if e.Param() != "" {
			msgs[i] = fmt.Sprintf("%s=%v fails '%s=%s'", e.Namespace(), e.Value(), e.Tag(), e.Param())
		} else {
			msgs[i] = fmt.Sprintf("%s=%v fails '%s'", e.Namespace(), e.Value(), e.Tag())
		}
	}
	return fmt.Errorf("ecotreeutil: invalid configuration: %s", strings.Join(msgs, "; "))
}

// readConstants returns the default model constants overridden by any
// values in the TOML file at path. An empty path gives the defaults.
func readConstants(path string) (*ecotree.Constants, error) {
	c := ecotree.DefaultConstants()
	if path == "" {
		return c, nil
	}
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return nil, fmt.Errorf("ecotreeutil: reading ConstantsFile: %v", err)
	}
	if u := md.Undecoded(); len(u) > 0 {
		return nil, fmt.Errorf("ecotreeutil: unknown constants in %s: %v", path, u)
	}
	if err := validate.Struct(c); err != nil {
		return nil, configError(err)
	}
	return c, c.Check()
}

// checkOutputVars removes end lines and expands environment
// variables in the output variables.
func checkOutputVars(vars map[string]string) (map[string]string, error) {
	if len(vars) == 0 {
		return nil, fmt.Errorf("there are no variables specified for output. Please fill in " +
			"the OutputVariables configuration and try again.")
	}
	o := make(map[string]string, len(vars))
	for k, v := range vars {
		v = strings.Replace(v, "\r\n", " ", -1)
		v = strings.Replace(v, "\n", " ", -1)
		o[os.ExpandEnv(k)] = os.ExpandEnv(v)
	}
	return o, nil
}

// checkOutputFile makes sure that the output file is specified and its
// directory exists, and expand any environment variables.
func checkOutputFile(f string) (string, error) {
	if f == "" {
		return "", fmt.Errorf(`you need to specify an output file configuration variable (for example: OutputFile="output.shp"`)
	}
	f = os.ExpandEnv(f)
	outdir := filepath.Dir(f)
	if _, err := os.Stat(outdir); err != nil {
		return f, fmt.Errorf("ecotreeutil: the OutputFile directory doesn't exist: %v", err)
	}
	return f, nil
}

// checkLogFile fills in a default value for the log file path if one isn't
// specified.
func checkLogFile(logFile, outputFile string) string {
	if logFile == "" {
		logFile = strings.TrimSuffix(outputFile, filepath.Ext(outputFile)) + ".log"
	}
	return logFile
}

// checkGridProj makes sure that the grid projection can be parsed and
// returns it if it is in WKT form.
func checkGridProj(gridProj string) (string, error) {
	if gridProj == "" {
		return "", nil
	}
	if _, err := proj.Parse(gridProj); err != nil {
		return "", fmt.Errorf("the following error occured while parsing the grid "+
			"projection (the GridProj variable): %v", err)
	}
	s := strings.TrimSpace(gridProj)
	if strings.HasPrefix(s, "PROJCS[") || strings.HasPrefix(s, "GEOGCS[") {
		return s, nil
	}
	return "", nil
}

// GetStringMapString returns a map[string]string from a viper configuration,
// accounting for the fact that it might be a json object if it was set
// from a command line argument.
func GetStringMapString(varName string, cfg *viper.Viper) (map[string]string, error) {
	i := cfg.Get(varName)
	switch v := i.(type) {
	case map[string]string:
		o := make(map[string]string, len(v))
		for k, vv := range v {
			o[k] = vv
		}
		return o, nil
	case map[string]interface{}:
		return cast.ToStringMapStringE(v)
	case string:
		if v == "" {
			return make(map[string]string), nil
		}
		d := json.NewDecoder(bytes.NewBufferString(v))
		o := make(map[string]string)
		if err := d.Decode(&o); err != nil {
			return nil, fmt.Errorf("ecotreeutil: parsing %s: %v", varName, err)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("ecotreeutil: invalid type for map variable %s: %#v", varName, i)
	}
}

// toFloat64SliceE converts a configuration value to a slice of numbers.
// Values set on the command line arrive as a string such as "[1,2,3]".
func toFloat64SliceE(i interface{}) ([]float64, error) {
	switch v := i.(type) {
	case []float64:
		return v, nil
	case []interface{}:
		o := make([]float64, len(v))
		for j, x := range v {
			f, err := cast.ToFloat64E(x)
			if err != nil {
				return nil, err
			}
			o[j] = f
		}
		return o, nil
	case string:
		s := strings.Trim(strings.TrimSpace(v), "[]")
		if s == "" {
			return nil, nil
		}
		parts := strings.Split(s, ",")
		o := make([]float64, len(parts))
		for j, p := range parts {
			f, err := cast.ToFloat64E(strings.TrimSpace(p))
			if err != nil {
				return nil, err
			}
			o[j] = f
		}
		return o, nil
	}
	return nil, fmt.Errorf("invalid type %T", i)
}
