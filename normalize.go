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

package ecotree

// Normalize shifts every tree's position so that the smallest X and Y
// across the set become zero, storing the result in GridX and GridY.
// It returns the minimum raw coordinates.
func Normalize(trees []*Tree) (minX, minY float64, err error) {
	if len(trees) == 0 {
		return 0, 0, ErrNoTrees
	}
	minX, minY = trees[0].X, trees[0].Y
	for _, t := range trees[1:] {
		if t.X < minX {
			minX = t.X
		}
		if t.Y < minY {
			minY = t.Y
		}
	}
	for _, t := range trees {
		t.GridX = t.X - minX
		t.GridY = t.Y - minY
	}
	return minX, minY, nil
}

// NormalizeCoordinates returns a function that normalizes the domain's
// tree positions and records the origin.
func NormalizeCoordinates() DomainManipulator {
	return func(d *Domain) error {
		var err error
		d.X0, d.Y0, err = Normalize(d.Trees)
		return err
	}
}
