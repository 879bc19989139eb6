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
	"strings"

	"github.com/joho/godotenv"
	"github.com/lnashier/viper"
	"github.com/spatialmodel/ecotree"
	"github.com/spatialmodel/ecotree/inventory"
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
	cols := inventory.DefaultColumns()

	// Options are the configuration options available to EcoTree.
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
			name: "InventoryFile",
			usage: `
              InventoryFile is the path to the tree inventory. Files ending
              in .xlsx are read from their first sheet; anything else is read
              as semicolon-delimited text with a header row.`,
			shorthand:  "i",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), gridCmd.Flags()},
		},
		{
			name: "InventoryEncoding",
			usage: `
              InventoryEncoding is the character encoding of a text inventory:
              utf-8, iso-8859-1 or windows-1252.`,
			defaultVal: "utf-8",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), gridCmd.Flags()},
		},
		{
			name: "InventoryColumns.Species",
			usage: `
              InventoryColumns.Species is the zero-based column holding the
              species name.`,
			defaultVal: cols.Species,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), gridCmd.Flags()},
		},
		{
			name: "InventoryColumns.TrunkHeight",
			usage: `
              InventoryColumns.TrunkHeight is the zero-based column holding the
              trunk height in meters.`,
			defaultVal: cols.TrunkHeight,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), gridCmd.Flags()},
		},
		{
			name: "InventoryColumns.TotalHeight",
			usage: `
              InventoryColumns.TotalHeight is the zero-based column holding the
              total tree height in meters.`,
			defaultVal: cols.TotalHeight,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), gridCmd.Flags()},
		},
		{
			name: "InventoryColumns.CrownDiameter",
			usage: `
              InventoryColumns.CrownDiameter is the zero-based column holding the
              crown diameter in meters.`,
			defaultVal: cols.CrownDiameter,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), gridCmd.Flags()},
		},
		{
			name: "InventoryColumns.LeafType",
			usage: `
              InventoryColumns.LeafType is the zero-based column holding the
              leaf type label. See HabitLabels.`,
			defaultVal: cols.LeafType,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), gridCmd.Flags()},
		},
		{
			name: "InventoryColumns.X",
			usage: `
              InventoryColumns.X is the zero-based column holding the easting.`,
			defaultVal: cols.X,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), gridCmd.Flags()},
		},
		{
			name: "InventoryColumns.Y",
			usage: `
              InventoryColumns.Y is the zero-based column holding the northing.`,
			defaultVal: cols.Y,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), gridCmd.Flags()},
		},
		{
			name: "HabitLabels",
			usage: `
              HabitLabels maps the leaf type labels used in the inventory to
              'evergreen' or 'deciduous'. Trees with other labels are skipped.
              It should be in the format: {"Label1":"habit1","Label2":"habit2"}.`,
			defaultVal: inventory.DefaultHabitLabels(),
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), gridCmd.Flags()},
		},
		{
			name: "SpeciesTables.ConversionFactor",
			usage: `
              SpeciesTables.ConversionFactor is the path to the table of leaf
              area to dry weight conversion factors [g/m²] by species.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "SpeciesTables.EmissionFactors",
			usage: `
              SpeciesTables.EmissionFactors is the path to the table of isoprene,
              monoterpene and sesquiterpene emission factors [μg/g/h] by species.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "SpeciesTables.Shading",
			usage: `
              SpeciesTables.Shading is the path to the table of shading
              coefficients by species.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "SpeciesTables.MIR",
			usage: `
              SpeciesTables.MIR is the path to the table of maximum incremental
              reactivities [g O3/g VOC] for isoprene, monoterpenes and
              sesquiterpenes.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "PM10",
			usage: `
              PM10 is the yearly mean ambient PM10 concentration [μg/m³].`,
			defaultVal: 15.2,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), treeCmd.Flags()},
		},
		{
			name: "O3",
			usage: `
              O3 is the ambient ozone concentration [μg/m³].`,
			defaultVal: 48.09,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), treeCmd.Flags()},
		},
		{
			name: "GridSize",
			usage: `
              GridSize is the edge length of the output grid cells [m].`,
			shorthand:  "g",
			defaultVal: ecotree.DefaultGridSize,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), gridCmd.Flags()},
		},
		{
			name: "MaxCells",
			usage: `
              MaxCells is the largest number of grid cells allowed. Runs whose
              trees span more cells stop with an error, which usually means a
              tree has a stray coordinate.`,
			defaultVal: ecotree.DefaultMaxCells,
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), gridCmd.Flags()},
		},
		{
			name: "Boundary",
			usage: `
              Boundary specifies how trees on a cell edge are counted.
              'inclusive' counts them in every cell they touch; 'halfopen'
              counts them only in the cell above and to the right.`,
			defaultVal: ecotree.Inclusive.String(),
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), gridCmd.Flags()},
		},
		{
			name: "Strategy",
			usage: `
              Strategy is the aggregation algorithm: 'scan' tests every tree
              against every cell, 'bucket' computes each tree once and adds it
              to the cells containing it. Both give identical results.`,
			defaultVal: ecotree.Bucket.String(),
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "ConstantsFile",
			usage: `
              ConstantsFile is the path to an optional TOML file overriding the
              model coefficients. Coefficients not in the file keep their
              default values.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), treeCmd.Flags()},
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile specifies the path to the desired output shapefile
              location. It can include environment variables.`,
			shorthand:  "o",
			defaultVal: "ecotree_output.shp",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), gridCmd.Flags()},
		},
		{
			name: "OutputVariables",
			usage: `
              OutputVariables specifies which model variables should be included
              in the output file. It can include environment variables. Available
              variables are OFP, PM10Dep, O3Removed, NetO3, NumTrees and CellArea.
              Expressions are also allowed, for example
              {"NetO3Dens":"NetO3 / CellArea", "NetO3Frac":"NetO3 / sum(NetO3)"}.`,
			defaultVal: ecotree.DefaultOutputVariables(),
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "GridProj",
			usage: `
              GridProj gives projection info for the tree coordinates in Proj4 or
              WKT format. If it is WKT it is written to a .prj file next to the
              output shapefile.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), gridCmd.Flags()},
		},
		{
			name: "NetCDFFile",
			usage: `
              NetCDFFile is the path of an optional netCDF copy of the output
              grids.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "MapDir",
			usage: `
              MapDir is the directory to write one PNG map per output grid to.
              No maps are written if it is empty.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "SummaryFile",
			usage: `
              SummaryFile is the path of the run summary. The default is the
              OutputFile path with a .txt extension.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "CleanedInventoryFile",
			usage: `
              CleanedInventoryFile is the path to write the trees actually used
              in the run to, with their coefficients. Nothing is written if it
              is empty.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "ResultsDB",
			usage: `
              ResultsDB is the path of a SQLite database that each run's
              totals and non-empty cells are appended to. Nothing is stored if
              it is empty.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "LogFile",
			usage: `
              LogFile is the path to the desired logfile location. It can
              include environment variables. If LogFile is left blank, the
              logfile will be saved in the same location as the OutputFile.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Species",
			usage: `
              Species is the species name of the tree.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{treeCmd.Flags()},
		},
		{
			name: "Habit",
			usage: `
              Habit is the leaf habit of the tree: evergreen or deciduous.`,
			defaultVal: "deciduous",
			flagsets:   []*pflag.FlagSet{treeCmd.Flags()},
		},
		{
			name: "CrownHeight",
			usage: `
              CrownHeight is the crown height of the tree [m].`,
			defaultVal: 8.0,
			flagsets:   []*pflag.FlagSet{treeCmd.Flags()},
		},
		{
			name: "CrownDiameter",
			usage: `
              CrownDiameter is the crown diameter of the tree [m].`,
			defaultVal: 5.0,
			flagsets:   []*pflag.FlagSet{treeCmd.Flags()},
		},
		{
			name: "Shading",
			usage: `
              Shading is the shading coefficient of the tree.`,
			defaultVal: 0.6,
			flagsets:   []*pflag.FlagSet{treeCmd.Flags()},
		},
		{
			name: "ConversionFactor",
			usage: `
              ConversionFactor is the leaf area to dry weight conversion
              factor of the tree [g/m²].`,
			defaultVal: 70.0,
			flagsets:   []*pflag.FlagSet{treeCmd.Flags()},
		},
		{
			name: "EF",
			usage: `
              EF are the isoprene, monoterpene and sesquiterpene emission
              factors of the tree [μg/g/h].`,
			defaultVal: []float64{0, 0, 0},
			flagsets:   []*pflag.FlagSet{treeCmd.Flags()},
		},
		{
			name: "MIR",
			usage: `
              MIR are the isoprene, monoterpene and sesquiterpene maximum
              incremental reactivities [g O3/g VOC].`,
			defaultVal: []float64{9.1, 3.2, 4.1},
			flagsets:   []*pflag.FlagSet{treeCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("ECOTREE")
	Cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch v := option.defaultVal.(type) {
			case string:
				set.StringP(option.name, option.shorthand, v, option.usage)
			case bool:
				set.BoolP(option.name, option.shorthand, v, option.usage)
			case int:
				set.IntP(option.name, option.shorthand, v, option.usage)
			case float64:
				set.Float64P(option.name, option.shorthand, v, option.usage)
			case []float64:
				set.Float64SliceP(option.name, option.shorthand, v, option.usage)
			case map[string]string:
				b := bytes.NewBuffer(nil)
				e := json.NewEncoder(b)
				e.Encode(v)
				set.StringP(option.name, option.shorthand, strings.TrimSpace(b.String()), option.usage)
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
	Root.AddCommand(gridCmd)
	Root.AddCommand(treeCmd)
}

// setConfig loads any .env file in the working directory into the
// environment and then reads in the configuration file, if there is one.
func setConfig() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ecotree: problem reading .env file: %v", err)
	}
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(os.ExpandEnv(cfgpath))
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("ecotree: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "ecotree",
	Short: "A model of the ecosystem services of urban trees.",
	Long: `EcoTree estimates the ozone-forming potential of biogenic emissions, the
stomatal ozone removal, the net ozone uptake and the PM10 deposition of the
trees in a city inventory and maps them onto a regular grid.
Use the subcommands specified below to access the model functionality.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'ECOTREE_var' where 'var' is the
name of the variable to be set, with '.' replaced by '_'. Environment variables
can also be set in a .env file in the working directory. Many configuration
variables are additionally allowed to contain environment variables within them.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cmd.Print(welcome)
		return setConfig()
	},
}

const welcome = `
------------------------------------------------
|                 Welcome to EcoTree            |
|      Ecosystem services of the urban forest  |
------------------------------------------------
`

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of EcoTree.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("EcoTree v%s\n", ecotree.Version)
	},
	DisableAutoGenTag: true,
}

// runCmd runs the full model.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the model.",
	Long: `run reads the tree inventory and the species tables, computes the
ecosystem services of every tree, aggregates them onto the output grid and
writes the results.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rc, err := RunConfigFrom(Cfg)
		if err != nil {
			return err
		}
		_, err = Run(cmd, rc)
		return err
	},
	DisableAutoGenTag: true,
}

// gridCmd creates the output grid without running the model.
var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Create the output grid.",
	Long: `grid reads the tree inventory, determines the extent of the output
grid and writes its cells to OutputFile without running the model.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		gc, err := GridConfigFrom(Cfg)
		if err != nil {
			return err
		}
		_, err = Grid(cmd, gc)
		return err
	},
	DisableAutoGenTag: true,
}

// treeCmd computes a single tree.
var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Compute the ecosystem services of a single tree.",
	Long: `tree computes the derived values of a single tree described by
command-line arguments and prints them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, c, a, err := TreeFrom(Cfg)
		if err != nil {
			return err
		}
		return PrintTree(cmd.OutOrStdout(), t, c, a)
	},
	DisableAutoGenTag: true,
}
