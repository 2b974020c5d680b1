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
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shenwei356/breader"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Reconcile a classification report into a genome-backed abundance profile",
	Long: `Reconcile a classification report into a genome-backed abundance profile

Method:
  1. The Kraken/Centrifuge-style report is parsed into a tree of
     species and nested strains, restricted to the selected domains
     (-d/--domains). Reads on lines at genus level or above can never
     be attributed to a reference genome and are only counted.
  2. One reference genome is elected per taxon from NCBI assembly
     summaries (-a/--assembly-summary), preferring reference genomes
     over representative genomes over others, then more complete
     assemblies, then later release dates. The best candidate among a
     species and all of its strains becomes the species' reference
     strain.
  3. Reads are reassigned in two passes per species subtree:
       a) bottom-up, reads on strains without a usable genome move to
          their parent (disable with --no-reassign-strains);
       b) top-down, reads held by a node with read-bearing child
          strains are apportioned to those children in proportion to
          their observed abundance, with integer shares that sum
          exactly (largest-remainder repair).
     Read counts are conserved: reads with no path to any genome are
     reported in the unassigned table, never dropped.
  4. Final counts can be rescaled to an exact total (-N/--scale-total)
     for simulating a fixed number of reads.
  5. Genome lengths are taken from genomes present in -g/--genome-dir;
     missing ones are downloaded from NCBI when --download is given,
     otherwise their length is reported as 0 and can be filled in
     later with 'treco download'.

Output files (-o/--out-prefix):
  1. <prefix>.profile.tsv     reads, taxid, organism name, reference
                              file, genome length
  2. <prefix>.unassigned.tsv  taxid, reads, taxon name
  3. <prefix>.reads.tsv       taxid, final reads per genome-backed taxon
  4. <prefix>.treco.yml       run parameters and counters

Examples:
  1. Bacteria only, scaled to 10M reads:
       treco profile -d Bacteria -N 10000000 \
           -a assembly_summary_refseq.txt \
           -o sample report.tsv
  2. Fetching genomes along the way:
       treco profile -a assembly_summary.txt -g genomes/ --download \
           -o sample report.tsv
`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)

		var fhLog *os.File
		if opt.Log2File {
			fhLog = addLog(opt.LogFile, opt.Verbose)
		}
		timeStart := time.Now()
		defer func() {
			if opt.Verbose || opt.Log2File {
				log.Info()
				log.Infof("elapsed time: %s", time.Since(timeStart))
				log.Info()
			}
			if opt.Log2File {
				fhLog.Close()
			}
		}()

		var err error

		if len(args) != 1 {
			checkError(fmt.Errorf("exactly one classification report file is needed"))
		}
		reportFile := args[0]
		if isStdin(reportFile) && !detectStdin() {
			checkError(fmt.Errorf("stdin not detected"))
		}

		summaryFiles := getFlagStringSlice(cmd, "assembly-summary")
		if len(summaryFiles) == 0 {
			checkError(fmt.Errorf("flag -a/--assembly-summary needed"))
		}

		domainList := getFlagStringSlice(cmd, "domains")
		domains := make(map[string]interface{}, len(domainList))
		for _, d := range domainList {
			domains[d] = nil
		}

		noReassign := getFlagBool(cmd, "no-reassign-strains")
		scaleTotal := getFlagNonNegativeInt(cmd, "scale-total")

		genomeDir := getFlagString(cmd, "genome-dir")
		download := getFlagBool(cmd, "download")

		outPrefix := getFlagString(cmd, "out-prefix")
		if outPrefix == "" {
			checkError(fmt.Errorf("flag -o/--out-prefix needed"))
		}

		if opt.Verbose || opt.Log2File {
			log.Infof("treco v%s", VERSION)
			log.Info()
			log.Infof("selected domains: %s", domainList)
			log.Infof("strain reassignment: %v", !noReassign)
			if scaleTotal > 0 {
				log.Infof("scaling reads to: %d", scaleTotal)
			}
			log.Info()
		}

		// ---------------------------------------------------------------
		// classification report -> taxon tree

		if opt.Verbose || opt.Log2File {
			log.Infof("parsing classification report: %s", reportFile)
		}
		tree, err := parseReportFile(reportFile, domains)
		checkError(err)

		totalReads := tree.TotalReads()
		if opt.Verbose || opt.Log2File {
			log.Infof("  %d taxa in %d top-level species", len(tree.Taxa), len(tree.Species))
			log.Infof("  %d reads on species/strain taxa", totalReads)
			log.Infof("  %d reads above species level", tree.ReadsAboveSpecies)
			log.Infof("  %d reads in unselected domains", tree.ReadsSkippedDomains)
		}

		// ---------------------------------------------------------------
		// assembly summaries -> genome catalog

		if opt.Verbose || opt.Log2File {
			log.Infof("loading assembly summaries: %s", summaryFiles)
		}
		catalog, err := loadGenomeCatalog(opt, summaryFiles, tree)
		checkError(err)

		// ---------------------------------------------------------------
		// reassignment

		if opt.Verbose || opt.Log2File {
			log.Infof("reconciling read counts")
		}
		reconciler := newReconciler(catalog, !noReassign)
		checkError(reconciler.Reconcile(tree))

		rows, unassigned, err := reconciler.Collect(tree)
		checkError(err)

		var assignedReads, unassignedReads uint64
		for _, row := range rows {
			assignedReads += row.Reads
		}
		for _, u := range unassigned {
			unassignedReads += u.Reads
		}
		if assignedReads+unassignedReads != totalReads {
			checkError(fmt.Errorf("%d assigned + %d unassigned reads != %d total reads",
				assignedReads, unassignedReads, totalReads))
		}

		if opt.Verbose || opt.Log2File {
			log.Infof("  %d reads on %d genome-backed taxa", assignedReads, len(rows))
			log.Infof("  %d reads moved up from genome-less strains", reconciler.moved)
			log.Infof("  %d reads on %d taxa without any reference genome", unassignedReads, len(unassigned))
		}

		// ---------------------------------------------------------------
		// optional scaling

		if scaleTotal > 0 {
			checkError(scaleProfile(rows, uint64(scaleTotal)))

			// rescaling may round tiny taxa down to zero reads
			kept := rows[:0]
			for _, row := range rows {
				if row.Reads > 0 {
					kept = append(kept, row)
				}
			}
			if opt.Verbose || opt.Log2File {
				log.Infof("scaled reads of %d taxa to %d in total, %d taxa rounded away",
					len(rows), scaleTotal, len(rows)-len(kept))
			}
			rows = kept
		}

		// ---------------------------------------------------------------
		// genome lengths

		var source genomeSource
		if download {
			source, err = newHTTPSource(genomeDir, opt.NumCPUs, opt.Verbose)
		} else {
			source, err = newDirSource(genomeDir, opt.NumCPUs)
		}
		checkError(err)

		var missingLengths int
		for _, row := range rows {
			rec := &GenomeRecord{Taxid: row.Taxid, Accession: row.Accession, FtpPath: row.FtpPath}
			_, n, err := source.Fetch(rec)
			if err != nil {
				if download {
					checkError(err)
				}
				missingLengths++
				continue
			}
			row.GenomeLength = n
		}
		if missingLengths > 0 {
			log.Warningf("genome length unknown for %d of %d references, fill them in with 'treco download'",
				missingLengths, len(rows))
		}

		// ---------------------------------------------------------------
		// output

		writeProfile(opt, outPrefix+".profile.tsv", rows)
		writeUnassigned(opt, outPrefix+".unassigned.tsv", unassigned)
		writeLedger(opt, outPrefix+".reads.tsv", rows)

		info := ProfileInfo{
			Version:             VERSION,
			Report:              reportFile,
			AssemblySummaries:   summaryFiles,
			Domains:             domainList,
			StrainReassignment:  !noReassign,
			ScaleTotal:          scaleTotal,
			TotalReads:          totalReads,
			AssignedReads:       assignedReads,
			UnassignedReads:     unassignedReads,
			MovedReads:          reconciler.moved,
			ReadsAboveSpecies:   tree.ReadsAboveSpecies,
			ReadsSkippedDomains: tree.ReadsSkippedDomains,
			Taxa:                len(tree.Taxa),
			Genomes:             len(rows),
		}
		checkError(info.WriteTo(outPrefix + ".treco.yml"))

		if opt.Verbose || opt.Log2File {
			log.Infof("profile with %d references saved to %s.profile.tsv", len(rows), outPrefix)
		}
	},
}

// ProfileInfo is the run summary written beside the output tables.
type ProfileInfo struct {
	Version             string   `yaml:"version"`
	Report              string   `yaml:"report"`
	AssemblySummaries   []string `yaml:"assembly-summaries"`
	Domains             []string `yaml:"domains"`
	StrainReassignment  bool     `yaml:"strain-reassignment"`
	ScaleTotal          int      `yaml:"scale-total"`
	TotalReads          uint64   `yaml:"total-reads"`
	AssignedReads       uint64   `yaml:"assigned-reads"`
	UnassignedReads     uint64   `yaml:"unassigned-reads"`
	MovedReads          uint64   `yaml:"strain-reassigned-reads"`
	ReadsAboveSpecies   uint64   `yaml:"reads-above-species"`
	ReadsSkippedDomains uint64   `yaml:"reads-unselected-domains"`
	Taxa                int      `yaml:"taxa"`
	Genomes             int      `yaml:"genomes"`
}

// WriteTo writes the run summary as YAML.
func (i ProfileInfo) WriteTo(file string) error {
	data, err := yaml.Marshal(i)
	if err != nil {
		return fmt.Errorf("fail to marshal profile info: %s", err)
	}
	return os.WriteFile(file, data, 0644)
}

func writeProfile(opt *Options, file string, rows []*ProfileRow) {
	outfh, gw, w, err := outStream(file, gzipSuffix(file), opt.CompressionLevel)
	checkError(err)
	defer func() {
		outfh.Flush()
		if gw != nil {
			gw.Close()
		}
		w.Close()
	}()

	outfh.WriteString("#reads\ttaxid\torganism_name\treference_file\tgenome_length\n")
	for _, row := range rows {
		fmt.Fprintf(outfh, "%d\t%d\t%s\t%s\t%d\n",
			row.Reads, row.Taxid, row.OrganismName, row.RefFile, row.GenomeLength)
	}
}

func writeUnassigned(opt *Options, file string, rows []*UnassignedRow) {
	outfh, gw, w, err := outStream(file, gzipSuffix(file), opt.CompressionLevel)
	checkError(err)
	defer func() {
		outfh.Flush()
		if gw != nil {
			gw.Close()
		}
		w.Close()
	}()

	outfh.WriteString("#taxid\treads\tname\n")
	for _, row := range rows {
		fmt.Fprintf(outfh, "%d\t%d\t%s\n", row.Taxid, row.Reads, row.Name)
	}
}

func writeLedger(opt *Options, file string, rows []*ProfileRow) {
	outfh, gw, w, err := outStream(file, gzipSuffix(file), opt.CompressionLevel)
	checkError(err)
	defer func() {
		outfh.Flush()
		if gw != nil {
			gw.Close()
		}
		w.Close()
	}()

	outfh.WriteString("#taxid\treads\treassigned\n")
	for _, row := range rows {
		fmt.Fprintf(outfh, "%d\t%d\t%v\n", row.Taxid, row.Reads, row.Reassigned)
	}
}

// readProfileTable loads an abundance table written by writeProfile.
func readProfileTable(opt *Options, file string) ([]*ProfileRow, error) {
	fn := func(line string) (interface{}, bool, error) {
		line = strings.TrimRight(line, "\r\n")
		if line == "" || line[0] == '#' {
			return nil, false, nil
		}
		items := strings.Split(line, "\t")
		if len(items) < 5 {
			return nil, false, fmt.Errorf("expected 5 tab-delimited fields, got %d: %s", len(items), line)
		}
		reads, err := strconv.ParseUint(items[0], 10, 64)
		if err != nil {
			return nil, false, fmt.Errorf("invalid read count: %s", items[0])
		}
		taxid, err := strconv.ParseUint(items[1], 10, 32)
		if err != nil {
			return nil, false, fmt.Errorf("invalid taxid: %s", items[1])
		}
		length, err := strconv.ParseUint(items[4], 10, 64)
		if err != nil {
			return nil, false, fmt.Errorf("invalid genome length: %s", items[4])
		}
		return &ProfileRow{
			Reads:        reads,
			Taxid:        uint32(taxid),
			OrganismName: items[2],
			RefFile:      items[3],
			GenomeLength: length,
		}, true, nil
	}

	reader, err := breader.NewBufferedReader(file, opt.NumCPUs, 100, fn)
	if err != nil {
		return nil, fmt.Errorf("fail to read profile %s: %s", file, err)
	}
	rows := make([]*ProfileRow, 0, 256)
	for chunk := range reader.Ch {
		if chunk.Err != nil {
			return nil, fmt.Errorf("fail to parse profile %s: %s", file, chunk.Err)
		}
		for _, data := range chunk.Data {
			rows = append(rows, data.(*ProfileRow))
		}
	}
	return rows, nil
}

func init() {
	RootCmd.AddCommand(profileCmd)

	profileCmd.Flags().StringSliceP("assembly-summary", "a", []string{}, `NCBI assembly summary file(s), gzip supported`)
	profileCmd.Flags().StringSliceP("domains", "d", []string{"Bacteria", "Archaea", "Eukaryota", "Viruses"}, `domains to keep`)
	profileCmd.Flags().BoolP("no-reassign-strains", "", false, `leave reads on strains without a reference genome instead of moving them to their parent`)
	profileCmd.Flags().IntP("scale-total", "N", 0, `rescale read counts to this exact total, 0 for no scaling`)
	profileCmd.Flags().StringP("genome-dir", "g", defaultGenomeDir, `directory with <assembly>_genomic.fna.gz files`)
	profileCmd.Flags().BoolP("download", "", false, `download genomes missing from -g/--genome-dir from NCBI`)
	profileCmd.Flags().StringP("out-prefix", "o", "", `prefix of output files`)
}
