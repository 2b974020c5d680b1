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
	"strings"
	"testing"
)

var allDomains = map[string]interface{}{
	"Bacteria": nil, "Archaea": nil, "Eukaryota": nil, "Viruses": nil,
}

const testReport = `  5.00	500	500	U	0	unclassified
 95.00	9500	0	R	1	root
 85.00	8500	0	D	2	Bacteria
 85.00	8500	0	P	1224	  Proteobacteria
 85.00	8500	0	F	543	    Enterobacteriaceae
 85.00	8500	50	G	561	      Escherichia
  6.00	600	100	S	562	        Escherichia coli
  3.00	300	300	-	83333	          Escherichia coli K-12
  2.00	200	200	-	83334	          Escherichia coli O157
  4.00	400	400	S	28901	        Salmonella enterica
 10.00	1000	0	D	10239	Viruses
 10.00	1000	1000	S	10710	  Escherichia virus Lambda
`

func TestParseReport(t *testing.T) {
	tree, err := parseReport(strings.NewReader(testReport), allDomains)
	if err != nil {
		t.Fatal(err)
	}

	if len(tree.Species) != 3 {
		t.Fatalf("got %d top-level species, want 3", len(tree.Species))
	}

	ecoli := tree.Taxa[562]
	if ecoli == nil {
		t.Fatal("E. coli not in tree")
	}
	if ecoli.Parent != nil {
		t.Error("E. coli should be a top-level species")
	}
	if len(ecoli.Children) != 2 {
		t.Fatalf("got %d E. coli strains, want 2", len(ecoli.Children))
	}

	// the species keeps only the reads not accounted by its strains
	if ecoli.ReadsRooted != 100 {
		t.Errorf("E. coli holds %d reads, want 100", ecoli.ReadsRooted)
	}
	if k12 := tree.Taxa[83333]; k12.ReadsRooted != 300 || k12.Parent != ecoli {
		t.Errorf("unexpected K-12 node: %d reads", k12.ReadsRooted)
	}
	if o157 := tree.Taxa[83334]; o157.ReadsRooted != 200 || o157.Parent != ecoli {
		t.Errorf("unexpected O157 node: %d reads", o157.ReadsRooted)
	}
	if s := tree.Taxa[28901]; s.ReadsRooted != 400 || s.Parent != nil {
		t.Error("unexpected Salmonella node")
	}

	if tree.ReadsAboveSpecies != 50 {
		t.Errorf("got %d reads above species level, want 50", tree.ReadsAboveSpecies)
	}
	if tree.ReadsSkippedDomains != 0 {
		t.Errorf("got %d reads in unselected domains, want 0", tree.ReadsSkippedDomains)
	}
	if sum := tree.TotalReads(); sum != 2000 {
		t.Errorf("got %d total reads, want 2000", sum)
	}
}

func TestParseReportDomainFilter(t *testing.T) {
	tree, err := parseReport(strings.NewReader(testReport), map[string]interface{}{"Bacteria": nil})
	if err != nil {
		t.Fatal(err)
	}

	if len(tree.Species) != 2 {
		t.Fatalf("got %d top-level species, want 2", len(tree.Species))
	}
	if _, ok := tree.Taxa[10710]; ok {
		t.Error("viral species should have been skipped")
	}
	if tree.ReadsSkippedDomains != 1000 {
		t.Errorf("got %d reads in unselected domains, want 1000", tree.ReadsSkippedDomains)
	}
}

func TestParseReportUnrankedGroup(t *testing.T) {
	// an unranked group between genus and species: its direct reads are
	// stranded above species level, the species below it still loads
	report := ` 90.00	900	0	D	2	Bacteria
 90.00	900	0	G	561	  Escherichia
 90.00	900	30	-	191675	    unclassified Escherichia
 87.00	870	870	S	562	      Escherichia coli
`
	tree, err := parseReport(strings.NewReader(report), allDomains)
	if err != nil {
		t.Fatal(err)
	}
	if len(tree.Species) != 1 || tree.Species[0].Taxid != 562 {
		t.Fatal("species below the unranked group not found")
	}
	if tree.ReadsAboveSpecies != 30 {
		t.Errorf("got %d reads above species level, want 30", tree.ReadsAboveSpecies)
	}
}

func TestParseReportSpeciesAboveGenusLevel(t *testing.T) {
	// a species line one taxonomic level shallower than the active
	// genus starts a new top-level species; at that depth the
	// level >= genusLevel arm can not admit it
	report := ` 90.00	900	0	D	2	Bacteria
 90.00	900	0	F	543	  Enterobacteriaceae
 40.00	400	0	G	561	    Escherichia
 30.00	300	300	S	562	      Escherichia coli
 20.00	200	200	S	623	  Shigella flexneri
`
	tree, err := parseReport(strings.NewReader(report), allDomains)
	if err != nil {
		t.Fatal(err)
	}
	if len(tree.Species) != 2 {
		t.Fatalf("got %d top-level species, want 2", len(tree.Species))
	}
	sf := tree.Taxa[623]
	if sf == nil {
		t.Fatal("S. flexneri not in tree")
	}
	if sf.Parent != nil || len(sf.Children) != 0 {
		t.Error("S. flexneri should be a childless top-level species")
	}
	if sf.ReadsRooted != 200 {
		t.Errorf("S. flexneri holds %d reads, want 200", sf.ReadsRooted)
	}
	if ec := tree.Taxa[562]; ec.ReadsRooted != 300 {
		t.Errorf("E. coli holds %d reads, want 300", ec.ReadsRooted)
	}
}

func TestParseReportBadDepth(t *testing.T) {
	report := ` 90.00	900	0	D	2	Bacteria
 90.00	900	0	G	561	  Escherichia
 60.00	600	600	S	562	    Escherichia coli
 30.00	300	300	-	83333	            too deep
`
	if _, err := parseReport(strings.NewReader(report), allDomains); err == nil {
		t.Error("expected an indentation depth error")
	}
}

func TestParseReportBadRank(t *testing.T) {
	report := ` 90.00	900	0	D	2	Bacteria
 90.00	900	0	G	561	  Escherichia
 60.00	600	600	X	562	    Escherichia coli
`
	if _, err := parseReport(strings.NewReader(report), allDomains); err == nil {
		t.Error("expected an unknown rank code error")
	}
}

func TestParseReportCladeOverflow(t *testing.T) {
	// a strain claiming more clade reads than its species has left
	report := ` 90.00	900	0	D	2	Bacteria
 90.00	900	0	G	561	  Escherichia
 60.00	600	100	S	562	    Escherichia coli
 70.00	700	700	-	83333	      Escherichia coli K-12
`
	if _, err := parseReport(strings.NewReader(report), allDomains); err == nil {
		t.Error("expected a clade read count error")
	}
}
