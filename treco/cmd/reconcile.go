// Copyright © 2022-2024 the treco authors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package cmd

import (
	"fmt"
	"math"
	"sort"

	"github.com/twotwotwo/sorts"
)

// Reconciler reassigns read counts over a ReportTree so that every
// assignable read ends up on a taxon backed by a reference genome.
// It must own exclusive write access to the tree for its duration;
// the catalog is only read.
type Reconciler struct {
	catalog        *GenomeCatalog
	reassignStrain bool

	// bookkeeping for output, not authoritative for the tree
	reassigned map[uint32]interface{} // taxa whose count was changed by reassignment
	moved      uint64                 // reads lifted from genome-less strains
}

func newReconciler(catalog *GenomeCatalog, reassignStrain bool) *Reconciler {
	return &Reconciler{
		catalog:        catalog,
		reassignStrain: reassignStrain,
		reassigned:     make(map[uint32]interface{}, 256),
	}
}

// Reconcile runs the two reassignment passes over every top-level
// species subtree and checks read-count conservation per subtree.
func (r *Reconciler) Reconcile(tree *ReportTree) error {
	for _, sp := range tree.Species {
		before := sp.SubtreeReads()

		if r.reassignStrain {
			if err := r.liftUnresolvedStrains(sp); err != nil {
				return err
			}
		}
		if err := r.spreadReads(sp); err != nil {
			return err
		}

		if after := sp.SubtreeReads(); after != before {
			return fmt.Errorf("read conservation broken for %s (taxid %d): %d reads before reassignment, %d after",
				sp.Name, sp.Taxid, before, after)
		}
	}
	return nil
}

// liftUnresolvedStrains is the bottom-up pass: reads sitting on a
// strain with no usable genome are moved to its immediate parent.
// Children are fully resolved before the node itself.
func (r *Reconciler) liftUnresolvedStrains(t *Taxon) error {
	for _, c := range t.Children {
		if err := r.liftUnresolvedStrains(c); err != nil {
			return err
		}
	}
	if t.Parent == nil || t.ReadsRooted == 0 {
		return nil
	}
	rec, err := r.catalog.resolveGenome(t.Taxid)
	if err != nil {
		return err
	}
	if rec != nil {
		return nil
	}
	r.moved += t.ReadsRooted
	t.Parent.ReadsRooted += t.ReadsRooted
	t.ReadsRooted = 0
	r.reassigned[t.Parent.Taxid] = nil
	return nil
}

// spreadReads is the top-down pass: reads held by a node with
// read-bearing children are apportioned to those children in
// proportion to their current counts. It recurses into every child, so
// strains that themselves have child strains are treated identically.
func (r *Reconciler) spreadReads(t *Taxon) error {
	if t.ReadsRooted > 0 {
		kids := make([]*Taxon, 0, len(t.Children))
		for _, c := range t.Children {
			if c.ReadsRooted > 0 {
				kids = append(kids, c)
			}
		}

		if len(kids) > 0 {
			taxids := make([]uint32, len(kids))
			weights := make([]uint64, len(kids))
			for i, k := range kids {
				taxids[i] = k.Taxid
				weights[i] = k.ReadsRooted
			}
			shares := apportionReads(t.ReadsRooted, taxids, weights)
			for i, k := range kids {
				k.ReadsRooted += shares[i]
				r.reassigned[k.Taxid] = nil
			}
			t.ReadsRooted = 0
		} else {
			// no read-bearing children: with a genome the reads are
			// already attributable, without one they are unassignable.
			// Either way they stay in place, Collect reports both.
			if _, err := r.catalog.resolveGenome(t.Taxid); err != nil {
				return err
			}
		}
	}

	for _, c := range t.Children {
		if err := r.spreadReads(c); err != nil {
			return err
		}
	}
	return nil
}

// apportionReads splits total into integer shares proportional to
// weights, rounding half away from zero. The rounding residue is then
// repaired one unit at a time, visiting items by descending weight and
// ascending taxid, so that the shares sum to exactly total.
func apportionReads(total uint64, taxids []uint32, weights []uint64) []uint64 {
	shares := make([]uint64, len(weights))

	var sumW uint64
	for _, w := range weights {
		sumW += w
	}
	if sumW == 0 {
		return shares
	}

	var sumR uint64
	for i, w := range weights {
		shares[i] = uint64(math.Floor(float64(total)*float64(w)/float64(sumW) + 0.5))
		sumR += shares[i]
	}
	if sumR == total {
		return shares
	}

	order := make([]int, len(weights))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if weights[a] != weights[b] {
			return weights[a] > weights[b]
		}
		return taxids[a] < taxids[b]
	})

	for sumR != total {
		for _, i := range order {
			if sumR == total {
				break
			}
			if sumR > total {
				if shares[i] > 0 {
					shares[i]--
					sumR--
				}
			} else {
				shares[i]++
				sumR++
			}
		}
	}

	return shares
}

// ProfileRow is one line of the final abundance table: a taxon backed
// by a reference genome with a nonzero reconciled read count.
type ProfileRow struct {
	Reads        uint64
	Taxid        uint32
	OrganismName string
	RefFile      string
	GenomeLength uint64

	Accession  string
	FtpPath    string
	Reassigned bool // count includes reads moved from or through other taxa
}

// UnassignedRow is one taxon holding reads with no path to any genome.
type UnassignedRow struct {
	Taxid uint32
	Reads uint64
	Name  string
}

// ProfileRows sorts by read count descending, taxid ascending.
type ProfileRows []*ProfileRow

func (p ProfileRows) Len() int { return len(p) }
func (p ProfileRows) Less(i, j int) bool {
	if p[i].Reads != p[j].Reads {
		return p[i].Reads > p[j].Reads
	}
	return p[i].Taxid < p[j].Taxid
}
func (p ProfileRows) Swap(i, j int) { p[i], p[j] = p[j], p[i] }

// Collect walks the reconciled tree and splits read-bearing taxa into
// genome-backed profile rows and unassignable leftovers. Reads are
// never dropped: everything ends up in one of the two tables.
func (r *Reconciler) Collect(tree *ReportTree) ([]*ProfileRow, []*UnassignedRow, error) {
	rows := make([]*ProfileRow, 0, len(tree.Taxa))
	missing := make([]*UnassignedRow, 0, 16)

	var walk func(t *Taxon) error
	walk = func(t *Taxon) error {
		if t.ReadsRooted > 0 {
			rec, err := r.catalog.resolveGenome(t.Taxid)
			if err != nil {
				return err
			}
			if rec == nil {
				missing = append(missing, &UnassignedRow{
					Taxid: t.Taxid,
					Reads: t.ReadsRooted,
					Name:  t.Name,
				})
			} else {
				_, reassigned := r.reassigned[t.Taxid]
				rows = append(rows, &ProfileRow{
					Reads:        t.ReadsRooted,
					Taxid:        t.Taxid,
					OrganismName: rec.OrganismName,
					RefFile:      refFileName(rec),
					Accession:    rec.Accession,
					FtpPath:      rec.FtpPath,
					Reassigned:   reassigned,
				})
			}
		}
		for _, c := range t.Children {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}

	for _, sp := range tree.Species {
		if err := walk(sp); err != nil {
			return nil, nil, err
		}
	}

	sorts.Quicksort(ProfileRows(rows))
	sort.Slice(missing, func(i, j int) bool {
		if missing[i].Reads != missing[j].Reads {
			return missing[i].Reads > missing[j].Reads
		}
		return missing[i].Taxid < missing[j].Taxid
	})

	return rows, missing, nil
}
