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

// Package inventory reads city tree inventories and species coefficient
// tables and turns them into trees ready for the ecotree model.
package inventory

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/ecotree"
	"github.com/tealeg/xlsx"
	"golang.org/x/text/encoding/charmap"
	"gonum.org/v1/gonum/stat"
)

// Columns holds the zero-based positions of the inventory fields.
type Columns struct {
	Species       int `mapstructure:"Species" validate:"gte=0"`
	TrunkHeight   int `mapstructure:"TrunkHeight" validate:"gte=0"`
	TotalHeight   int `mapstructure:"TotalHeight" validate:"gte=0"`
	CrownDiameter int `mapstructure:"CrownDiameter" validate:"gte=0"`
	LeafType      int `mapstructure:"LeafType" validate:"gte=0"`
	X             int `mapstructure:"X" validate:"gte=0"`
	Y             int `mapstructure:"Y" validate:"gte=0"`
}

// DefaultColumns returns the column layout of the Geneva city tree
// inventory export.
func DefaultColumns() Columns {
	return Columns{
		Species:       1,
		TrunkHeight:   8,
		TotalHeight:   9,
		CrownDiameter: 10,
		LeafType:      22,
		X:             28,
		Y:             29,
	}
}

func (c Columns) all() []int {
	return []int{c.Species, c.TrunkHeight, c.TotalHeight, c.CrownDiameter, c.LeafType, c.X, c.Y}
}

func (c Columns) max() int {
	m := 0
	for _, v := range c.all() {
		if v > m {
			m = v
		}
	}
	return m
}

// check returns an error if any column position is negative.
func (c Columns) check() error {
	for _, v := range c.all() {
		if v < 0 {
			return fmt.Errorf("inventory: column positions must be >= 0; got %+v", c)
		}
	}
	return nil
}

// DefaultHabitLabels returns the leaf-type labels used in the Geneva
// inventory.
func DefaultHabitLabels() map[string]string {
	return map[string]string{
		"Feuillus":  "deciduous",
		"Conifères": "evergreen",
	}
}

// Config specifies how an inventory file is read.
type Config struct {
	Columns Columns

	// Encoding is the character encoding of text inventories:
	// "utf-8" (default), "iso-8859-1" or "windows-1252".
	Encoding string

	// HabitLabels maps leaf-type labels in the inventory to
	// "evergreen" or "deciduous". Matching is case-insensitive.
	HabitLabels map[string]string

	// Log receives warnings about skipped rows. If nil, the
	// standard logrus logger is used.
	Log logrus.FieldLogger
}

// Record is a single tree read from an inventory.
type Record struct {
	// Row is the one-based row number in the inventory, counting the
	// header.
	Row int

	Species       string
	CrownHeight   float64 // m
	CrownDiameter float64 // m
	Habit         ecotree.LeafHabit
	X, Y          float64
}

// Genus returns the first word of the species name, in lower case.
func (r *Record) Genus() string { return genus(r.Species) }

// Tree returns a tree with the record's species, habit, crown and
// position. Its species coefficients are left at zero.
func (r *Record) Tree() (*ecotree.Tree, error) {
	t, err := ecotree.NewTree(r.Species, r.Habit)
	if err != nil {
		return nil, fmt.Errorf("inventory: row %d: %w", r.Row, err)
	}
	t.CrownHeight = r.CrownHeight
	t.CrownDiameter = r.CrownDiameter
	t.X, t.Y = r.X, r.Y
	return t, nil
}

func genus(species string) string {
	f := strings.Fields(species)
	if len(f) == 0 {
		return ""
	}
	return strings.ToLower(f[0])
}

// Report summarizes what happened to the rows of an inventory.
type Report struct {
	Rows int

	// UnknownHabit is the number of rows skipped because their
	// leaf type was not recognized, by label.
	UnknownHabit map[string]int

	// FilledHeight and FilledDiameter are the number of rows whose
	// missing crown height or diameter was replaced by the mean.
	FilledHeight, FilledDiameter int
	MeanHeight, MeanDiameter     float64

	// MissingCoefficients is the number of records dropped because
	// their genus is missing from a species table, by genus.
	MissingCoefficients map[string]int

	Kept int
}

// Skipped returns the total number of rows that did not become trees.
func (r *Report) Skipped() int {
	n := 0
	for _, v := range r.UnknownHabit {
		n += v
	}
	for _, v := range r.MissingCoefficients {
		n += v
	}
	return n
}

func (c *Config) log() logrus.FieldLogger {
	if c.Log == nil {
		return logrus.StandardLogger()
	}
	return c.Log
}

func (c *Config) decoder(r io.Reader) (io.Reader, error) {
	switch strings.ToLower(strings.Replace(c.Encoding, "_", "-", -1)) {
	case "", "utf-8", "utf8":
		return r, nil
	case "iso-8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1.NewDecoder().Reader(r), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(r), nil
	}
	return nil, fmt.Errorf("inventory: unsupported encoding %q", c.Encoding)
}

func (c *Config) habits() (map[string]ecotree.LeafHabit, error) {
	labels := c.HabitLabels
	if len(labels) == 0 {
		labels = DefaultHabitLabels()
	}
	o := make(map[string]ecotree.LeafHabit, len(labels))
	for label, name := range labels {
		h, err := ecotree.ParseLeafHabit(name)
		if err != nil {
			return nil, fmt.Errorf("inventory: habit label %q: %w", label, err)
		}
		o[strings.ToLower(strings.TrimSpace(label))] = h
	}
	return o, nil
}

// ErrNoMeasurements is returned when no inventory row has a crown
// height or diameter to compute a mean from.
var ErrNoMeasurements = errors.New("inventory: no trees with measured crown dimensions")

// ReadTrees reads a semicolon-delimited inventory with a header row.
// Rows with an unrecognized leaf type are skipped. Missing crown heights
// and diameters are replaced by the mean of the measured values.
func ReadTrees(r io.Reader, cfg Config) ([]*Record, *Report, error) {
	dr, err := cfg.decoder(r)
	if err != nil {
		return nil, nil, err
	}
	cr := csv.NewReader(dr)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("inventory: reading inventory: %v", err)
	}
	return parseRows(rows, cfg)
}

// ReadTreesXLSX reads an inventory from the first sheet of an Excel
// file, using the same layout as ReadTrees.
func ReadTreesXLSX(fileName string, cfg Config) ([]*Record, *Report, error) {
	f, err := xlsx.OpenFile(fileName)
	if err != nil {
		return nil, nil, fmt.Errorf("inventory: opening %s: %v", fileName, err)
	}
	if len(f.Sheets) == 0 {
		return nil, nil, fmt.Errorf("inventory: %s has no sheets", fileName)
	}
	s := f.Sheets[0]
	rows := make([][]string, s.MaxRow)
	for i := range rows {
		rows[i] = make([]string, s.MaxCol)
		for j := range rows[i] {
			rows[i][j] = s.Cell(i, j).Value
		}
	}
	return parseRows(rows, cfg)
}

// ReadFile reads an inventory file, choosing the reader by extension.
func ReadFile(fileName string, cfg Config) ([]*Record, *Report, error) {
	if strings.EqualFold(filepath.Ext(fileName), ".xlsx") {
		return ReadTreesXLSX(fileName, cfg)
	}
	f, err := os.Open(fileName)
	if err != nil {
		return nil, nil, fmt.Errorf("inventory: %v", err)
	}
	defer f.Close()
	return ReadTrees(f, cfg)
}

func parseRows(rows [][]string, cfg Config) ([]*Record, *Report, error) {
	if err := cfg.Columns.check(); err != nil {
		return nil, nil, err
	}
	habits, err := cfg.habits()
	if err != nil {
		return nil, nil, err
	}
	rep := &Report{
		UnknownHabit:        make(map[string]int),
		MissingCoefficients: make(map[string]int),
	}
	log := cfg.log()
	c := cfg.Columns
	var recs []*Record
	for i, row := range rows {
		if i == 0 || isBlank(row) { // header
			continue
		}
		rep.Rows++
		line := i + 1
		if len(row) <= c.max() {
			return nil, nil, fmt.Errorf("inventory: row %d has %d fields but needs at least %d", line, len(row), c.max()+1)
		}
		label := strings.TrimSpace(row[c.LeafType])
		h, ok := habits[strings.ToLower(label)]
		if !ok {
			rep.UnknownHabit[label]++
			log.WithFields(logrus.Fields{"row": line, "leaf type": label}).Warn("skipping tree with unknown leaf type")
			continue
		}
		var v [5]float64
		for k, col := range []int{c.TrunkHeight, c.TotalHeight, c.CrownDiameter, c.X, c.Y} {
			if v[k], err = parseFloat(row[col]); err != nil {
				return nil, nil, fmt.Errorf("inventory: row %d column %d: %v", line, col, err)
			}
		}
		rec := &Record{
			Row:           line,
			Species:       strings.TrimSpace(row[c.Species]),
			CrownHeight:   v[1] - v[0],
			CrownDiameter: v[2],
			Habit:         h,
			X:             v[3],
			Y:             v[4],
		}
		if v[1] <= 0 || rec.CrownHeight < 0 {
			rec.CrownHeight = 0
		}
		recs = append(recs, rec)
	}
	if err := fillMissing(recs, rep); err != nil {
		return nil, nil, err
	}
	return recs, rep, nil
}

// fillMissing replaces zero crown heights and diameters with the mean
// of the non-zero values.
func fillMissing(recs []*Record, rep *Report) error {
	if len(recs) == 0 {
		return nil
	}
	var h, d []float64
	for _, r := range recs {
		if r.CrownHeight > 0 {
			h = append(h, r.CrownHeight)
		}
		if r.CrownDiameter > 0 {
			d = append(d, r.CrownDiameter)
		}
	}
	if len(h) == 0 || len(d) == 0 {
		return ErrNoMeasurements
	}
	rep.MeanHeight = stat.Mean(h, nil)
	rep.MeanDiameter = stat.Mean(d, nil)
	for _, r := range recs {
		if r.CrownHeight <= 0 {
			r.CrownHeight = rep.MeanHeight
			rep.FilledHeight++
		}
		if r.CrownDiameter <= 0 {
			r.CrownDiameter = rep.MeanDiameter
			rep.FilledDiameter++
		}
	}
	return nil
}

// parseFloat parses a number that may use a decimal comma. Empty
// fields are zero.
func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
}

func isBlank(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
