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
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shenwei356/xopen"
)

// Taxon is one node (species or strain) of the classification tree.
// A Taxon with Parent == nil is a top-level species.
type Taxon struct {
	Taxid       uint32
	Name        string
	Rank        string // rank code from the report: S or -
	ReportLevel int    // indentation depth, only used while building the tree
	ReadsDirect uint64
	ReadsRooted uint64

	Children map[uint32]*Taxon
	Parent   *Taxon // non-owning back reference
}

func (t *Taxon) addChild(c *Taxon) {
	if t.Children == nil {
		t.Children = make(map[uint32]*Taxon, 4)
	}
	t.Children[c.Taxid] = c
	c.Parent = t
}

// SubtreeReads returns the sum of ReadsRooted over the subtree.
func (t *Taxon) SubtreeReads() uint64 {
	sum := t.ReadsRooted
	for _, c := range t.Children {
		sum += c.SubtreeReads()
	}
	return sum
}

// ReportTree is the outcome of parsing a classification report:
// the top-level species with their nested strains, an index of all
// kept taxa, and the reads that can never reach a species.
type ReportTree struct {
	Species []*Taxon
	Taxa    map[uint32]*Taxon

	ReadsAboveSpecies   uint64 // direct reads of lines at genus level or above
	ReadsSkippedDomains uint64 // clade reads of unselected domains
}

// rank codes above genus, all of which reset the current species state
var ranksAboveGenus = map[string]interface{}{
	"R": nil, "K": nil, "P": nil, "C": nil, "O": nil, "F": nil,
}

func parseReportFile(file string, domains map[string]interface{}) (*ReportTree, error) {
	fh, err := xopen.Ropen(file)
	if err != nil {
		return nil, fmt.Errorf("fail to read report %s: %s", file, err)
	}
	defer fh.Close()
	return parseReport(fh, domains)
}

// parseReport builds a ReportTree from a Kraken/Centrifuge-style report.
// Fields per line: percentage, readsRooted, readsDirect, rankCode,
// taxid, indented name. Two spaces of indentation per taxonomic level.
func parseReport(r io.Reader, domains map[string]interface{}) (*ReportTree, error) {
	tree := &ReportTree{
		Species: make([]*Taxon, 0, 256),
		Taxa:    make(map[uint32]*Taxon, 1024),
	}

	// ancestors of the current position, stack[0] is the top-level species
	stack := make([]*Taxon, 0, 8)

	genusLevel := -2 // indentation depth of the active genus line, -2 for none
	var skipDomain bool

	items := make([]string, 6)

	newTopSpecies := func(taxid uint32, name, rank string, level int, rooted, direct uint64) {
		t := &Taxon{
			Taxid:       taxid,
			Name:        name,
			Rank:        rank,
			ReportLevel: level,
			ReadsDirect: direct,
			ReadsRooted: rooted,
		}
		tree.Species = append(tree.Species, t)
		tree.Taxa[taxid] = t
		stack = append(stack[:0], t)
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, BufferSize), BufferSize)
	var lineNo int
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}

		stringSplitNByByte(line, '\t', 6, &items)
		if len(items) < 6 {
			return nil, fmt.Errorf("line %d: expected 6 tab-delimited fields, got %d", lineNo, len(items))
		}

		rooted, err := strconv.ParseUint(items[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid clade read count: %s", lineNo, items[1])
		}
		direct, err := strconv.ParseUint(items[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid direct read count: %s", lineNo, items[2])
		}
		rank := items[3]
		taxid64, err := strconv.ParseUint(items[4], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid taxid: %s", lineNo, items[4])
		}
		taxid := uint32(taxid64)

		name := strings.TrimLeft(items[5], " ")
		level := len(items[5]) - len(name)

		switch {
		case rank == "U": // unclassified, belongs to no domain
			continue
		case rank == "D":
			stack = stack[:0]
			genusLevel = -2
			if _, ok := domains[name]; !ok {
				skipDomain = true
				tree.ReadsSkippedDomains += rooted
				continue
			}
			skipDomain = false
			tree.ReadsAboveSpecies += direct
			continue
		}

		if skipDomain {
			continue
		}

		if _, ok := ranksAboveGenus[rank]; ok {
			stack = stack[:0]
			tree.ReadsAboveSpecies += direct
			continue
		}
		if rank == "G" {
			stack = stack[:0]
			genusLevel = level
			tree.ReadsAboveSpecies += direct
			continue
		}

		if rank != "S" && rank != "-" {
			return nil, fmt.Errorf("line %d: unexpected rank code %q below genus level", lineNo, rank)
		}

		// ascend to the ancestor this line is positioned under
		for len(stack) > 0 && level < stack[len(stack)-1].ReportLevel {
			stack = stack[:len(stack)-1]
		}

		if len(stack) == 0 {
			if level == genusLevel-2 || (level >= genusLevel && rank == "S") {
				newTopSpecies(taxid, name, rank, level, rooted, direct)
				continue
			}
			// an unranked group between genus and species:
			// its direct reads can never be attributed to a species
			tree.ReadsAboveSpecies += direct
			continue
		}

		// attach attaches a new node under parent, carving the child's
		// clade reads out of the parent so that counts stay disjoint:
		// every node holds only the reads not accounted by its children.
		attach := func(parent *Taxon) error {
			if rooted > parent.ReadsRooted {
				return fmt.Errorf("line %d: clade reads of %s (taxid %d, %d) exceed the reads left on its parent %s (taxid %d, %d)",
					lineNo, name, taxid, rooted, parent.Name, parent.Taxid, parent.ReadsRooted)
			}
			parent.ReadsRooted -= rooted
			t := &Taxon{
				Taxid:       taxid,
				Name:        name,
				Rank:        rank,
				ReportLevel: level,
				ReadsDirect: direct,
				ReadsRooted: rooted,
			}
			parent.addChild(t)
			tree.Taxa[taxid] = t
			stack = append(stack, t)
			return nil
		}

		cur := stack[len(stack)-1]
		switch level {
		case cur.ReportLevel: // sibling
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				newTopSpecies(taxid, name, rank, level, rooted, direct)
				continue
			}
			if err := attach(stack[len(stack)-1]); err != nil {
				return nil, err
			}
		case cur.ReportLevel + 2: // child
			if err := attach(cur); err != nil {
				return nil, err
			}
		default:
			// levels always move in steps of two per taxonomic level
			return nil, fmt.Errorf("line %d: unexpected indentation depth %d under %s (taxid %d, depth %d)",
				lineNo, level, cur.Name, cur.Taxid, cur.ReportLevel)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("fail to read report: %s", err)
	}

	return tree, nil
}

// TotalReads returns the sum of ReadsRooted over all top-level species
// subtrees.
func (tree *ReportTree) TotalReads() uint64 {
	var sum uint64
	for _, sp := range tree.Species {
		sum += sp.SubtreeReads()
	}
	return sum
}
