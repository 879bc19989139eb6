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

package inventory

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/spatialmodel/ecotree"
	"github.com/tealeg/xlsx"
	"golang.org/x/text/encoding/charmap"
)

type testRow struct {
	species            string
	trunk, total, diam string
	leaf               string
	x, y               string
}

func (r testRow) fields() []string {
	c := DefaultColumns()
	f := make([]string, c.Y+1)
	f[0] = "id"
	f[c.Species] = r.species
	f[c.TrunkHeight] = r.trunk
	f[c.TotalHeight] = r.total
	f[c.CrownDiameter] = r.diam
	f[c.LeafType] = r.leaf
	f[c.X] = r.x
	f[c.Y] = r.y
	return f
}

var testRows = []testRow{
	{"Pinus sylvestris", "2", "10", "4", "Conifères", "2500010.5", "1117010"},
	{"Quercus robur", "3", "15", "", "Feuillus", "2500150", "1117010"},
	{"Acer campestre", "1", "0", "6", "feuillus", "2500300", "1117200"},
	{"Ginkgo biloba", "1", "8", "3", "Gingko", "2500000", "1117000"},
}

func testCSV() string {
	var b strings.Builder
	b.WriteString(strings.Join(testRow{"species", "trunk", "total", "diam", "leaf", "x", "y"}.fields(), ";") + "\n")
	for _, r := range testRows {
		b.WriteString(strings.Join(r.fields(), ";") + "\n")
	}
	return b.String()
}

func quietConfig() (Config, *logtest.Hook) {
	l, hook := logtest.NewNullLogger()
	return Config{Columns: DefaultColumns(), Log: l}, hook
}

func checkRecords(t *testing.T, recs []*Record, rep *Report) {
	t.Helper()
	if len(recs) != 3 {
		t.Fatalf("have %d records, want 3", len(recs))
	}
	if rep.Rows != 4 {
		t.Errorf("rows: have %d, want 4", rep.Rows)
	}
	if diff := cmp.Diff(map[string]int{"Gingko": 1}, rep.UnknownHabit); diff != "" {
		t.Errorf("unknown habits (-want +got):\n%s", diff)
	}
	want := []*Record{
		{Row: 2, Species: "Pinus sylvestris", CrownHeight: 8, CrownDiameter: 4, Habit: ecotree.Evergreen, X: 2500010.5, Y: 1117010},
		{Row: 3, Species: "Quercus robur", CrownHeight: 12, CrownDiameter: 5, Habit: ecotree.Deciduous, X: 2500150, Y: 1117010},
		{Row: 4, Species: "Acer campestre", CrownHeight: 10, CrownDiameter: 6, Habit: ecotree.Deciduous, X: 2500300, Y: 1117200},
	}
	if diff := cmp.Diff(want, recs); diff != "" {
		t.Errorf("records (-want +got):\n%s", diff)
	}
	if rep.FilledHeight != 1 || rep.FilledDiameter != 1 {
		t.Errorf("filled: height %d, diameter %d", rep.FilledHeight, rep.FilledDiameter)
	}
}

func TestReadTrees(t *testing.T) {
	cfg, hook := quietConfig()
	recs, rep, err := ReadTrees(strings.NewReader(testCSV()), cfg)
	if err != nil {
		t.Fatal(err)
	}
	checkRecords(t, recs, rep)
	if len(hook.Entries) != 1 || hook.LastEntry().Level != logrus.WarnLevel {
		t.Errorf("want one warning, got %d entries", len(hook.Entries))
	}
}

func TestReadTreesLatin1(t *testing.T) {
	enc, err := charmap.ISO8859_1.NewEncoder().String(testCSV())
	if err != nil {
		t.Fatal(err)
	}
	cfg, _ := quietConfig()
	cfg.Encoding = "iso-8859-1"
	recs, rep, err := ReadTrees(strings.NewReader(enc), cfg)
	if err != nil {
		t.Fatal(err)
	}
	checkRecords(t, recs, rep)

	// Read as UTF-8, the evergreen label is not recognized.
	cfg.Encoding = ""
	recs, _, err = ReadTrees(strings.NewReader(enc), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Errorf("have %d records, want 2", len(recs))
	}
}

func TestReadTreesXLSX(t *testing.T) {
	f := xlsx.NewFile()
	s, err := f.AddSheet("trees")
	if err != nil {
		t.Fatal(err)
	}
	for _, line := range strings.Split(strings.TrimSpace(testCSV()), "\n") {
		row := s.AddRow()
		for _, v := range strings.Split(line, ";") {
			row.AddCell().Value = v
		}
	}
	fileName := filepath.Join(t.TempDir(), "trees.xlsx")
	if err := f.Save(fileName); err != nil {
		t.Fatal(err)
	}
	cfg, _ := quietConfig()
	recs, rep, err := ReadFile(fileName, cfg)
	if err != nil {
		t.Fatal(err)
	}
	checkRecords(t, recs, rep)
}

func TestReadTreesErrors(t *testing.T) {
	cfg, _ := quietConfig()
	bad := testRow{"Pinus", "2", "ten", "4", "Conifères", "1", "1"}
	in := "header\n" + strings.Join(bad.fields(), ";") + "\n"
	if _, _, err := ReadTrees(strings.NewReader(in), cfg); err == nil || !strings.Contains(err.Error(), "row 2") {
		t.Errorf("want error naming row 2, got %v", err)
	}

	short := "header\nPinus;1;2\n"
	if _, _, err := ReadTrees(strings.NewReader(short), cfg); err == nil {
		t.Error("want error for short row")
	}

	none := testRow{"Pinus", "0", "0", "0", "Conifères", "1", "1"}
	in = "header\n" + strings.Join(none.fields(), ";") + "\n"
	if _, _, err := ReadTrees(strings.NewReader(in), cfg); !errors.Is(err, ErrNoMeasurements) {
		t.Errorf("want ErrNoMeasurements, got %v", err)
	}

	cfg.Encoding = "ebcdic"
	if _, _, err := ReadTrees(strings.NewReader(testCSV()), cfg); err == nil {
		t.Error("want error for unsupported encoding")
	}

	cfg.Encoding = ""
	cfg.HabitLabels = map[string]string{"Feuillus": "semi-deciduous"}
	if _, _, err := ReadTrees(strings.NewReader(testCSV()), cfg); !errors.Is(err, ecotree.ErrUnknownLeafHabit) {
		t.Errorf("want ErrUnknownLeafHabit, got %v", err)
	}

	cfg.HabitLabels = nil
	cfg.Columns.X = -1
	if _, _, err := ReadTrees(strings.NewReader(testCSV()), cfg); err == nil || !strings.Contains(err.Error(), "column positions") {
		t.Errorf("want error for negative column, got %v", err)
	}
}

func TestWriteCleaned(t *testing.T) {
	tr, err := ecotree.NewTree("Pinus sylvestris", ecotree.Evergreen)
	if err != nil {
		t.Fatal(err)
	}
	tr.CrownHeight, tr.CrownDiameter = 8, 4
	var buf bytes.Buffer
	if err := WriteCleaned(&buf, []*ecotree.Tree{tr}); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("have %d lines, want 2", len(lines))
	}
	if !strings.HasPrefix(lines[1], "Pinus sylvestris;evergreen;8;4;0;0;0;0;365;16.896;") {
		t.Errorf("row: %q", lines[1])
	}
}
