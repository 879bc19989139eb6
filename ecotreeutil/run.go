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
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/ecotree"
	"github.com/spatialmodel/ecotree/internal/hash"
	"github.com/spatialmodel/ecotree/internal/resultsdb"
	"github.com/spatialmodel/ecotree/inventory"
	"github.com/spf13/cobra"
)

// newLogger returns a logger writing plain text to w.
func newLogger(w io.Writer) *logrus.Logger {
	log := logrus.New()
	log.Out = w
	log.Formatter = &logrus.TextFormatter{DisableColors: true, FullTimestamp: true}
	log.Level = logrus.InfoLevel
	return log
}

// readRecords reads the inventory and logs what happened to its rows.
func readRecords(gc *GridConfig, log logrus.FieldLogger) ([]*inventory.Record, *inventory.Report, error) {
	log.WithField("file", gc.InventoryFile).Info("reading tree inventory")
	cfg := gc.Inventory
	cfg.Log = log
	recs, rep, err := inventory.ReadFile(gc.InventoryFile, cfg)
	if err != nil {
		return nil, nil, err
	}
	var unknown int
	for _, n := range rep.UnknownHabit {
		unknown += n
	}
	log.WithFields(logrus.Fields{
		"rows":            rep.Rows,
		"unknown habit":   unknown,
		"filled height":   rep.FilledHeight,
		"filled diameter": rep.FilledDiameter,
	}).Info("read tree inventory")
	return recs, rep, nil
}

// Run runs the model. CobraCommand is the command Run is called from;
// log messages are written to its output and to rc.LogFile. The
// completed domain is returned.
func Run(CobraCommand *cobra.Command, rc *RunConfig) (*ecotree.Domain, error) {
	startTime := time.Now()

	logfile, err := os.Create(rc.LogFile)
	if err != nil {
		return nil, fmt.Errorf("ecotreeutil: problem creating log file: %v", err)
	}
	defer logfile.Close()
	mw := io.MultiWriter(CobraCommand.OutOrStdout(), logfile)
	log := newLogger(mw)

	o, err := ecotree.NewOutputter(rc.OutputFile, rc.WKT, rc.OutputVariables, nil)
	if err != nil {
		return nil, err
	}
	log.Info("parsed output variable expressions")

	recs, rep, err := readRecords(&rc.GridConfig, log)
	if err != nil {
		return nil, err
	}
	tables, err := inventory.ReadTables(rc.Tables)
	if err != nil {
		return nil, err
	}
	trees, err := tables.Apply(recs, rep)
	if err != nil {
		return nil, err
	}
	for g, n := range rep.MissingCoefficients {
		log.WithFields(logrus.Fields{"genus": g, "trees": n}).Warn("skipping trees with no species coefficients")
	}
	log.WithFields(logrus.Fields{"trees": rep.Kept, "skipped": rep.Skipped()}).Info("built trees")

	if rc.CleanedInventoryFile != "" {
		if err := writeCleaned(rc.CleanedInventoryFile, trees); err != nil {
			return nil, err
		}
	}

	fingerprint := hash.Fingerprint(trees, rc.Constants, rc.Ambient, rc.GridSize, rc.Boundary)

	d := &ecotree.Domain{
		Trees:     trees,
		Constants: rc.Constants,
		Ambient:   rc.Ambient,
		InitFuncs: []ecotree.DomainManipulator{
			ecotree.ValidateTrees(),
			ecotree.NormalizeCoordinates(),
			ecotree.BuildGrid(rc.GridSize, rc.Boundary, rc.MaxCells),
			ecotree.Log(mw),
		},
		RunFuncs: []ecotree.DomainManipulator{
			ecotree.AggregateTrees(rc.Strategy),
			ecotree.Log(mw),
		},
		CleanupFuncs: []ecotree.DomainManipulator{o.Output()},
	}

	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	summary, err := os.Create(rc.SummaryFile)
	if err != nil {
		return nil, fmt.Errorf("ecotreeutil: problem creating summary file: %v", err)
	}
	closers = append(closers, summary)
	d.CleanupFuncs = append(d.CleanupFuncs, ecotree.WriteSummary(summary))

	if rc.NetCDFFile != "" {
		f, err := os.Create(rc.NetCDFFile)
		if err != nil {
			return nil, fmt.Errorf("ecotreeutil: problem creating netCDF file: %v", err)
		}
		closers = append(closers, f)
		d.CleanupFuncs = append(d.CleanupFuncs, ecotree.WriteNetCDF(f))
	}
	if rc.MapDir != "" {
		d.CleanupFuncs = append(d.CleanupFuncs, ecotree.WriteMaps(rc.MapDir))
	}
	if rc.ResultsDB != "" {
		db, err := resultsdb.Open(rc.ResultsDB)
		if err != nil {
			return nil, err
		}
		closers = append(closers, db)
		d.CleanupFuncs = append(d.CleanupFuncs, db.Store(context.Background(), fingerprint, func(id string) {
			log.WithFields(logrus.Fields{"run": id, "fingerprint": fingerprint}).Info("stored results")
		}))
	}

	if err = d.Init(); err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"rows":     d.Grid.Rows,
		"cols":     d.Grid.Cols,
		"strategy": rc.Strategy,
	}).Info("created grid")
	if err = d.Run(); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"trees":   len(d.Trees),
		"elapsed": time.Since(startTime).Round(time.Millisecond),
	}).Info("ecotree completed successfully")
	return d, nil
}

func writeCleaned(fileName string, trees []*ecotree.Tree) error {
	f, err := os.Create(fileName)
	if err != nil {
		return fmt.Errorf("ecotreeutil: problem creating cleaned inventory file: %v", err)
	}
	if err := inventory.WriteCleaned(f, trees); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Grid reads the inventory and writes the cells of the output grid to
// gc.OutputFile, with the number of trees and the area of each cell.
// The model itself is not run.
func Grid(CobraCommand *cobra.Command, gc *GridConfig) (*ecotree.Domain, error) {
	log := newLogger(CobraCommand.OutOrStdout())
	recs, _, err := readRecords(gc, log)
	if err != nil {
		return nil, err
	}
	trees := make([]*ecotree.Tree, len(recs))
	for i, r := range recs {
		if trees[i], err = r.Tree(); err != nil {
			return nil, err
		}
	}
	o, err := ecotree.NewOutputter(gc.OutputFile, gc.WKT, map[string]string{
		ecotree.NumTreesName: ecotree.NumTreesName,
		ecotree.CellAreaName: ecotree.CellAreaName,
	}, nil)
	if err != nil {
		return nil, err
	}
	d := &ecotree.Domain{
		Trees: trees,
		InitFuncs: []ecotree.DomainManipulator{
			ecotree.ValidateTrees(),
			ecotree.NormalizeCoordinates(),
			ecotree.BuildGrid(gc.GridSize, gc.Boundary, gc.MaxCells),
		},
		RunFuncs:     []ecotree.DomainManipulator{ecotree.CountTrees()},
		CleanupFuncs: []ecotree.DomainManipulator{o.Output(), ecotree.Log(CobraCommand.OutOrStdout())},
	}
	if err = d.Init(); err != nil {
		return nil, err
	}
	if err = d.Run(); err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"rows": d.Grid.Rows,
		"cols": d.Grid.Cols,
		"x0":   d.Grid.X0,
		"y0":   d.Grid.Y0,
		"file": gc.OutputFile,
	}).Info("wrote grid")
	return d, nil
}

// PrintTree computes the derived values of t and writes them to w.
func PrintTree(w io.Writer, t *ecotree.Tree, c *ecotree.Constants, a ecotree.Ambient) error {
	d := ecotree.Compute(t, c, a)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Species:\t%s (%s)\n", t.Species, t.Habit)
	for _, v := range []struct {
		name, units string
		v           float64
	}{
		{"Leaf area", "m²", d.LeafArea},
		{"Leaf dry weight", "g", d.LeafDryWeight},
		{"OFP (hourly)", "μg/h", d.OFPHourly},
		{"OFP (yearly)", "μg/y", d.OFPYearly},
		{"PM10 deposition", "kg/y", d.PM10Yearly},
		{"Stomatal O3 flux", "nmol/m²/s", d.O3Instantaneous},
		{"Stomatal O3 uptake", "mol/m²/y", d.O3Yearly},
		{"Potential O3 removal", "mol/m²/y", d.O3RemovalYearly},
		{"O3 removed", "g/y", d.O3RemovedMassYearly},
		{"Net O3 uptake", "g/y", d.O3NetUptakeYearly},
	} {
		fmt.Fprintf(tw, "%s:\t%.6g\t%s\n", v.name, v.v, v.units)
	}
	return tw.Flush()
}
