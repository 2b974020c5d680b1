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
	"strconv"
	"strings"

	"github.com/shenwei356/breader"
)

// GenomeRecord is one reference genome candidate from an NCBI assembly
// summary. At most one record is retained per taxid.
type GenomeRecord struct {
	Taxid        uint32
	SpeciesTaxid uint32
	Accession    string
	OrganismName string

	// 1 = Complete Genome, 2 = Chromosome, 3 = Scaffold, 4 = Contig
	AssemblyLevel int
	ReleaseDate   string // YYYYMMDD, lexicographic order is chronological
	Category      string // reference genome > representative genome > na
	FtpPath       string
}

var assemblyLevels = map[string]int{
	"Complete Genome": 1,
	"Chromosome":      2,
	"Scaffold":        3,
	"Contig":          4,
}

func categoryRank(category string) int {
	switch category {
	case "reference genome":
		return 3
	case "representative genome":
		return 2
	}
	return 1 // na
}

// compareRecords orders two candidates for the same taxon:
// category first, then the more complete assembly, then the later
// release date. >0 means a wins, <0 means b wins, 0 is a full tie.
func compareRecords(a, b *GenomeRecord) int {
	if d := categoryRank(a.Category) - categoryRank(b.Category); d != 0 {
		return d
	}
	if d := b.AssemblyLevel - a.AssemblyLevel; d != 0 {
		return d
	}
	return strings.Compare(a.ReleaseDate, b.ReleaseDate)
}

// GenomeCatalog holds the elected reference genome per taxid, plus the
// mapping from each species to the strain elected as its reference.
// Read-only once built.
type GenomeCatalog struct {
	Records    map[uint32]*GenomeRecord
	SpeciesRef map[uint32]uint32 // species taxid -> reference strain taxid

	speciesBest map[uint32]*GenomeRecord
}

func newGenomeCatalog() *GenomeCatalog {
	return &GenomeCatalog{
		Records:     make(map[uint32]*GenomeRecord, 1024),
		SpeciesRef:  make(map[uint32]uint32, 256),
		speciesBest: make(map[uint32]*GenomeRecord, 256),
	}
}

// Add applies the selection policy to one candidate row. The first row
// for a taxid always wins; later rows only replace it when strictly
// better. Full ties keep the first-seen row and are logged.
func (c *GenomeCatalog) Add(rec *GenomeRecord) {
	old, ok := c.Records[rec.Taxid]
	if !ok {
		c.Records[rec.Taxid] = rec
	} else {
		switch d := compareRecords(rec, old); {
		case d > 0:
			c.Records[rec.Taxid] = rec
		case d == 0:
			log.Warningf("duplicate genome candidates for taxid %d: keeping %s, ignoring %s",
				rec.Taxid, old.Accession, rec.Accession)
		}
	}

	best, ok := c.speciesBest[rec.SpeciesTaxid]
	if !ok || compareRecords(rec, best) > 0 {
		c.speciesBest[rec.SpeciesTaxid] = rec
		c.SpeciesRef[rec.SpeciesTaxid] = rec.Taxid
	}
}

// resolveGenome returns the genome backing a taxon: its own record, or
// the record of the reference strain elected for it as a species.
// A species-reference entry pointing at a missing record is a defect in
// catalog construction, not an input problem.
func (c *GenomeCatalog) resolveGenome(taxid uint32) (*GenomeRecord, error) {
	if rec, ok := c.Records[taxid]; ok {
		return rec, nil
	}
	ref, ok := c.SpeciesRef[taxid]
	if !ok {
		return nil, nil
	}
	rec, ok := c.Records[ref]
	if !ok {
		return nil, fmt.Errorf("species %d resolves to reference strain %d with no genome record", taxid, ref)
	}
	return rec, nil
}

// parseAssemblySummaryRow parses one data row of an NCBI assembly
// summary. Fields used (0-based): 0 accession, 4 refseq category,
// 5 taxid, 6 species taxid, 7 organism name, 11 assembly level,
// 14 release date, 19 FTP path.
func parseAssemblySummaryRow(line string) (*GenomeRecord, error) {
	items := strings.Split(line, "\t")
	if len(items) < 20 {
		return nil, fmt.Errorf("expected >= 20 tab-delimited fields, got %d: %s", len(items), line)
	}

	taxid, err := strconv.ParseUint(items[5], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid taxid %q for accession %s", items[5], items[0])
	}
	speciesTaxid, err := strconv.ParseUint(items[6], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid species taxid %q for accession %s", items[6], items[0])
	}

	level, ok := assemblyLevels[items[11]]
	if !ok {
		return nil, fmt.Errorf("unrecognized assembly level %q for accession %s", items[11], items[0])
	}

	return &GenomeRecord{
		Taxid:         uint32(taxid),
		SpeciesTaxid:  uint32(speciesTaxid),
		Accession:     items[0],
		OrganismName:  items[7],
		AssemblyLevel: level,
		ReleaseDate:   strings.ReplaceAll(items[14], "/", ""),
		Category:      items[4],
		FtpPath:       items[19],
	}, nil
}

// loadGenomeCatalog builds the catalog from assembly summary files,
// keeping only rows for taxa in the tree or strains of species in the
// tree. Rows are parsed in parallel chunks; the policy itself is
// order-independent aside from logged full ties.
func loadGenomeCatalog(opt *Options, files []string, tree *ReportTree) (*GenomeCatalog, error) {
	catalog := newGenomeCatalog()

	fn := func(line string) (interface{}, bool, error) {
		line = strings.TrimRight(line, "\r\n")
		if line == "" || line[0] == '#' {
			return nil, false, nil
		}
		rec, err := parseAssemblySummaryRow(line)
		if err != nil {
			return nil, false, err
		}
		if _, ok := tree.Taxa[rec.Taxid]; !ok {
			if _, ok = tree.Taxa[rec.SpeciesTaxid]; !ok {
				return nil, false, nil
			}
		}
		return rec, true, nil
	}

	var n int
	for _, file := range files {
		reader, err := breader.NewBufferedReader(file, opt.NumCPUs, 100, fn)
		if err != nil {
			return nil, fmt.Errorf("fail to read assembly summary %s: %s", file, err)
		}
		for chunk := range reader.Ch {
			if chunk.Err != nil {
				return nil, fmt.Errorf("fail to parse assembly summary %s: %s", file, chunk.Err)
			}
			for _, data := range chunk.Data {
				catalog.Add(data.(*GenomeRecord))
				n++
			}
		}
	}

	if opt.Verbose || opt.Log2File {
		log.Infof("  %d candidate rows kept, %d genomes elected, %d species reference strains",
			n, len(catalog.Records), len(catalog.SpeciesRef))
	}

	return catalog, nil
}
