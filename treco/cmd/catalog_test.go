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

func record(taxid, speciesTaxid uint32, acc, category string, level int, date string) *GenomeRecord {
	return &GenomeRecord{
		Taxid:         taxid,
		SpeciesTaxid:  speciesTaxid,
		Accession:     acc,
		OrganismName:  "org " + acc,
		AssemblyLevel: level,
		ReleaseDate:   date,
		Category:      category,
		FtpPath:       "https://example.org/" + acc,
	}
}

func TestCatalogSelectionPolicy(t *testing.T) {
	candidates := []*GenomeRecord{
		record(562, 562, "GCF_A", "na", 1, "20240101"),
		record(562, 562, "GCF_B", "representative genome", 4, "20190101"),
		record(562, 562, "GCF_C", "reference genome", 4, "20150101"),
	}

	// the outcome must not depend on input order
	orders := [][]int{{0, 1, 2}, {2, 1, 0}, {1, 2, 0}, {0, 2, 1}, {1, 0, 2}, {2, 0, 1}}
	for _, order := range orders {
		c := newGenomeCatalog()
		for _, i := range order {
			c.Add(candidates[i])
		}
		if got := c.Records[562].Accession; got != "GCF_C" {
			t.Errorf("order %v: elected %s, want GCF_C", order, got)
		}
	}
}

func TestCatalogTieBreaks(t *testing.T) {
	// same category: the more complete assembly wins
	c := newGenomeCatalog()
	c.Add(record(100, 100, "GCF_CONTIG", "na", 4, "20240101"))
	c.Add(record(100, 100, "GCF_COMPLETE", "na", 1, "20180101"))
	if got := c.Records[100].Accession; got != "GCF_COMPLETE" {
		t.Errorf("elected %s, want GCF_COMPLETE", got)
	}

	// same category and level: the later release date wins
	c = newGenomeCatalog()
	c.Add(record(200, 200, "GCF_OLD", "na", 2, "20190405"))
	c.Add(record(200, 200, "GCF_NEW", "na", 2, "20210203"))
	if got := c.Records[200].Accession; got != "GCF_NEW" {
		t.Errorf("elected %s, want GCF_NEW", got)
	}

	// full tie: the first-seen row stays
	c = newGenomeCatalog()
	c.Add(record(300, 300, "GCF_FIRST", "na", 3, "20200101"))
	c.Add(record(300, 300, "GCF_SECOND", "na", 3, "20200101"))
	if got := c.Records[300].Accession; got != "GCF_FIRST" {
		t.Errorf("elected %s, want GCF_FIRST", got)
	}
}

func TestCatalogSpeciesReference(t *testing.T) {
	c := newGenomeCatalog()
	c.Add(record(83333, 562, "GCF_K12", "reference genome", 1, "20140101"))
	c.Add(record(83334, 562, "GCF_O157", "na", 1, "20220101"))

	// the species itself has no record, it resolves via its best strain
	rec, err := c.resolveGenome(562)
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil || rec.Accession != "GCF_K12" {
		t.Fatalf("species 562 resolved to %v, want GCF_K12", rec)
	}

	// strains resolve to their own records
	rec, err = c.resolveGenome(83334)
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil || rec.Accession != "GCF_O157" {
		t.Fatalf("strain 83334 resolved to %v, want GCF_O157", rec)
	}

	// unknown taxid: no genome, no error
	rec, err = c.resolveGenome(999)
	if err != nil || rec != nil {
		t.Fatalf("unknown taxid resolved to %v, %v", rec, err)
	}
}

func TestParseAssemblySummaryRow(t *testing.T) {
	fields := make([]string, 23)
	fields[0] = "GCF_000005845.2"
	fields[4] = "reference genome"
	fields[5] = "511145"
	fields[6] = "562"
	fields[7] = "Escherichia coli str. K-12 substr. MG1655"
	fields[11] = "Complete Genome"
	fields[14] = "2013/09/26"
	fields[19] = "https://ftp.ncbi.nlm.nih.gov/genomes/all/GCF/000/005/845/GCF_000005845.2_ASM584v2"

	rec, err := parseAssemblySummaryRow(strings.Join(fields, "\t"))
	if err != nil {
		t.Fatal(err)
	}
	if rec.Taxid != 511145 || rec.SpeciesTaxid != 562 {
		t.Errorf("got taxids %d/%d", rec.Taxid, rec.SpeciesTaxid)
	}
	if rec.AssemblyLevel != 1 {
		t.Errorf("got assembly level %d, want 1", rec.AssemblyLevel)
	}
	if rec.ReleaseDate != "20130926" {
		t.Errorf("got release date %q, want 20130926", rec.ReleaseDate)
	}
	if got := refFileName(rec); got != "GCF_000005845.2_ASM584v2_genomic.fna.gz" {
		t.Errorf("got reference file name %q", got)
	}

	fields[11] = "Almost Complete"
	if _, err = parseAssemblySummaryRow(strings.Join(fields, "\t")); err == nil {
		t.Error("expected an unrecognized assembly level error")
	}

	if _, err = parseAssemblySummaryRow("too\tfew\tfields"); err == nil {
		t.Error("expected a field count error")
	}
}
