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
	"context"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/ctessum/geom/encoding/shp"
	"github.com/google/go-cmp/cmp"
	"github.com/spatialmodel/ecotree"
	"github.com/spatialmodel/ecotree/internal/resultsdb"
	"github.com/spatialmodel/ecotree/inventory"
)

const testTolerance = 1.e-10

func different(a, b, tolerance float64) bool {
	if 2*math.Abs(a-b)/math.Abs(a+b) > tolerance || math.IsNaN(a) || math.IsNaN(b) {
		return true
	}
	return false
}

// testConfig points the configuration at the test data and sends the
// outputs to a new temporary directory, which it returns.
func testConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ECOTREE_TEST_OUT", dir)
	Cfg.Set("config", "testdata/config.toml")
	if err := setConfig(); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestRunConfig(t *testing.T) {
	dir := testConfig(t)
	rc, err := RunConfigFrom(Cfg)
	if err != nil {
		t.Fatal(err)
	}
	wantCols := inventory.Columns{Species: 0, TrunkHeight: 1, TotalHeight: 2, CrownDiameter: 3, LeafType: 4, X: 5, Y: 6}
	if diff := cmp.Diff(wantCols, rc.Inventory.Columns); diff != "" {
		t.Errorf("columns (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]string{"Feuillus": "deciduous", "Conifères": "evergreen"}, rc.Inventory.HabitLabels); diff != "" {
		t.Errorf("habit labels (-want +got):\n%s", diff)
	}
	if rc.OutputFile != filepath.Join(dir, "trees.shp") {
		t.Errorf("output file: %s", rc.OutputFile)
	}
	if rc.LogFile != filepath.Join(dir, "trees.log") {
		t.Errorf("log file: %s", rc.LogFile)
	}
	if rc.SummaryFile != filepath.Join(dir, "trees.txt") {
		t.Errorf("summary file: %s", rc.SummaryFile)
	}
	if rc.OutputVariables["NetO3Frac"] != "NetO3 / sum(NetO3)" {
		t.Errorf("output variables: %v", rc.OutputVariables)
	}
	if rc.Ambient != (ecotree.Ambient{PM10: 20, O3: 60}) {
		t.Errorf("ambient: %+v", rc.Ambient)
	}
	if rc.Strategy != ecotree.Bucket || rc.Boundary != ecotree.Inclusive || rc.GridSize != 100 {
		t.Errorf("grid: %g %s %s", rc.GridSize, rc.Boundary, rc.Strategy)
	}
	if diff := cmp.Diff(ecotree.DefaultConstants(), rc.Constants); diff != "" {
		t.Errorf("constants (-want +got):\n%s", diff)
	}
}

func TestRun(t *testing.T) {
	dir := testConfig(t)
	rc, err := RunConfigFrom(Cfg)
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	runCmd.SetOutput(&out)
	d, err := Run(runCmd, rc)
	if err != nil {
		t.Fatal(err)
	}

	// The ginkgo has an unknown leaf type and the maple has no
	// emission factors.
	if len(d.Trees) != 3 {
		t.Fatalf("have %d trees, want 3", len(d.Trees))
	}
	if d.Grid.Rows != 2 || d.Grid.Cols != 2 {
		t.Fatalf("grid is %d×%d, want 2×2", d.Grid.Rows, d.Grid.Cols)
	}
	if d.Grid.X0 != 2600010 || d.Grid.Y0 != 1200010 {
		t.Errorf("origin: (%g, %g)", d.Grid.X0, d.Grid.Y0)
	}
	if diff := cmp.Diff([]float64{1, 1, 0, 1}, d.Results.NumTrees.Elements); diff != "" {
		t.Errorf("tree counts (-want +got):\n%s", diff)
	}
	for i, cell := range []int{0, 1, 3} {
		want := ecotree.Compute(d.Trees[i], d.Constants, d.Ambient)
		for _, m := range ecotree.Metrics() {
			have := d.Results.Grid(m).Elements[cell]
			if different(have, m.Value(&want)*m.Scale(), testTolerance) {
				t.Errorf("tree %d %s: have %g, want %g", i, m, have, m.Value(&want)*m.Scale())
			}
		}
	}

	for _, f := range []string{"trees.shp", "trees.dbf", "trees.log", "trees.txt", "trees.ncf",
		"cleaned.csv", "results.db", filepath.Join("maps", "NetO3.png")} {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			t.Error(err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "trees.prj")); err == nil {
		t.Error("no .prj should be written without GridProj")
	}

	log, err := os.ReadFile(filepath.Join(dir, "trees.log"))
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{"skipping tree with unknown leaf type", "genus=acer", "ecotree completed successfully"} {
		if !strings.Contains(string(log), s) {
			t.Errorf("log does not contain %q", s)
		}
	}
	if !strings.Contains(out.String(), "ecotree completed successfully") {
		t.Error("log is not written to the command output")
	}

	summary, err := os.ReadFile(filepath.Join(dir, "trees.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(summary), "2 rows × 2 columns") {
		t.Errorf("summary:\n%s", summary)
	}

	t.Run("shapefile", func(t *testing.T) {
		dec, err := shp.NewDecoder(filepath.Join(dir, "trees.shp"))
		if err != nil {
			t.Fatal(err)
		}
		defer dec.Close()
		var frac float64
		var n int
		for {
			_, fields, more := dec.DecodeRowFields("NetO3Frac", "NumTrees")
			if !more {
				break
			}
			f, err := strconv.ParseFloat(strings.TrimSpace(fields["NetO3Frac"]), 64)
			if err != nil {
				t.Fatal(err)
			}
			frac += f
			n++
		}
		if err := dec.Error(); err != nil {
			t.Fatal(err)
		}
		if n != 4 {
			t.Errorf("have %d cells, want 4", n)
		}
		if different(frac, 1, 1.e-6) {
			t.Errorf("NetO3Frac sums to %g, want 1", frac)
		}
	})

	t.Run("resultsdb", func(t *testing.T) {
		db, err := resultsdb.Open(filepath.Join(dir, "results.db"))
		if err != nil {
			t.Fatal(err)
		}
		defer db.Close()
		runs, err := db.Runs(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if len(runs) != 1 || runs[0].NumTrees != 3 || runs[0].Fingerprint == "" {
			t.Errorf("runs: %+v", runs)
		}
	})

	t.Run("cleaned", func(t *testing.T) {
		b, err := os.ReadFile(filepath.Join(dir, "cleaned.csv"))
		if err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(strings.TrimSpace(string(b)), "\n")
		if len(lines) != 4 { // header and three trees
			t.Errorf("cleaned inventory has %d lines, want 4", len(lines))
		}
	})
}

func TestRunStrategiesAgree(t *testing.T) {
	testConfig(t)
	rc, err := RunConfigFrom(Cfg)
	if err != nil {
		t.Fatal(err)
	}
	rc.NetCDFFile, rc.MapDir, rc.ResultsDB, rc.CleanedInventoryFile = "", "", "", ""
	runCmd.SetOutput(new(bytes.Buffer))
	results := make(map[ecotree.Strategy]*ecotree.Results)
	for _, s := range []ecotree.Strategy{ecotree.Scan, ecotree.Bucket} {
		rc.Strategy = s
		d, err := Run(runCmd, rc)
		if err != nil {
			t.Fatal(err)
		}
		results[s] = d.Results
	}
	for _, m := range ecotree.Metrics() {
		if diff := cmp.Diff(results[ecotree.Scan].Grid(m).Elements, results[ecotree.Bucket].Grid(m).Elements); diff != "" {
			t.Errorf("%s (-scan +bucket):\n%s", m, diff)
		}
	}
}

func TestGridCommand(t *testing.T) {
	dir := testConfig(t)
	gc, err := GridConfigFrom(Cfg)
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	gridCmd.SetOutput(&out)
	d, err := Grid(gridCmd, gc)
	if err != nil {
		t.Fatal(err)
	}
	// Without species tables, the maple is kept.
	if len(d.Trees) != 4 {
		t.Errorf("have %d trees, want 4", len(d.Trees))
	}
	if diff := cmp.Diff([]float64{1, 1, 1, 1}, d.Results.NumTrees.Elements); diff != "" {
		t.Errorf("tree counts (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(dir, "trees.shp")); err != nil {
		t.Error(err)
	}
	if !strings.Contains(out.String(), "4 trees on 2×2 grid") {
		t.Errorf("output:\n%s", out.String())
	}
}

func TestTreeCommand(t *testing.T) {
	var out bytes.Buffer
	Root.SetOutput(&out)
	Root.SetArgs([]string{"tree", "--Species=Quercus robur", "--Habit=deciduous",
		"--CrownHeight=8", "--CrownDiameter=5", "--Shading=0.6", "--ConversionFactor=70",
		"--EF=12,0.4,0", "--MIR=9.1,3.2,4.1", "--PM10=20", "--O3=60"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{"Welcome to EcoTree", "Quercus robur (deciduous)", "Net O3 uptake:"} {
		if !strings.Contains(out.String(), s) {
			t.Errorf("output does not contain %q:\n%s", s, out.String())
		}
	}

	tr, c, a, err := TreeFrom(Cfg)
	if err != nil {
		t.Fatal(err)
	}
	if tr.EF != [3]float64{12, 0.4, 0} || tr.LeafDays != 183 || a.O3 != 60 {
		t.Errorf("tree: %+v, ambient %+v", tr, a)
	}
	if diff := cmp.Diff(ecotree.DefaultConstants(), c); diff != "" {
		t.Errorf("constants (-want +got):\n%s", diff)
	}
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	Root.SetOutput(&out)
	Root.SetArgs([]string{"version"})
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "EcoTree v"+ecotree.Version) {
		t.Errorf("output: %s", out.String())
	}
}
