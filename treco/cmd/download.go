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
	"strings"
	"time"

	"github.com/shenwei356/breader"
	"github.com/spf13/cobra"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Fetch the reference genomes of a profile and fill in genome lengths",
	Long: `Fetch the reference genomes of a profile and fill in genome lengths

Genomes named in the profile are looked up in the assembly summaries,
downloaded into -g/--genome-dir unless already present, and their total
sequence length is written back into the genome length column.

Downloads are fail-fast: no retrying, a failed fetch aborts the run.

Examples:
  treco download -a assembly_summary_refseq.txt \
      -g genomes/ -i sample.profile.tsv -o sample.profile.tsv
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

		profileFile := getFlagString(cmd, "profile")
		if profileFile == "" {
			checkError(fmt.Errorf("flag -i/--profile needed"))
		}
		summaryFiles := getFlagStringSlice(cmd, "assembly-summary")
		if len(summaryFiles) == 0 {
			checkError(fmt.Errorf("flag -a/--assembly-summary needed"))
		}
		genomeDir := getFlagString(cmd, "genome-dir")
		outFile := getFlagString(cmd, "out-file")
		if outFile == "" {
			if isStdin(profileFile) {
				checkError(fmt.Errorf("flag -o/--out-file needed when reading the profile from stdin"))
			}
			outFile = profileFile
		}

		rows, err := readProfileTable(opt, profileFile)
		checkError(err)
		if opt.Verbose || opt.Log2File {
			log.Infof("%d references loaded from %s", len(rows), profileFile)
		}

		// map reference file names back to assembly summary rows
		wanted := make(map[string]interface{}, len(rows))
		for _, row := range rows {
			wanted[row.RefFile] = nil
		}
		records := make(map[string]*GenomeRecord, len(rows))

		fn := func(line string) (interface{}, bool, error) {
			line = strings.TrimRight(line, "\r\n")
			if line == "" || line[0] == '#' {
				return nil, false, nil
			}
			rec, err := parseAssemblySummaryRow(line)
			if err != nil {
				return nil, false, err
			}
			if _, ok := wanted[refFileName(rec)]; !ok {
				return nil, false, nil
			}
			return rec, true, nil
		}
		for _, file := range summaryFiles {
			reader, err := breader.NewBufferedReader(file, opt.NumCPUs, 100, fn)
			checkError(err)
			for chunk := range reader.Ch {
				checkError(chunk.Err)
				for _, data := range chunk.Data {
					rec := data.(*GenomeRecord)
					records[refFileName(rec)] = rec
				}
			}
		}

		source, err := newHTTPSource(genomeDir, opt.NumCPUs, opt.Verbose)
		checkError(err)

		for _, row := range rows {
			rec, ok := records[row.RefFile]
			if !ok {
				checkError(fmt.Errorf("reference %s of taxid %d not found in assembly summaries", row.RefFile, row.Taxid))
			}
			_, n, err := source.Fetch(rec)
			checkError(err)
			row.GenomeLength = n
		}

		writeProfile(opt, outFile, rows)
		if opt.Verbose || opt.Log2File {
			log.Infof("profile with genome lengths saved to %s", outFile)
		}
	},
}

func init() {
	RootCmd.AddCommand(downloadCmd)

	downloadCmd.Flags().StringP("profile", "i", "", `abundance profile written by 'treco profile'`)
	downloadCmd.Flags().StringSliceP("assembly-summary", "a", []string{}, `NCBI assembly summary file(s), gzip supported`)
	downloadCmd.Flags().StringP("genome-dir", "g", defaultGenomeDir, `directory to store <assembly>_genomic.fna.gz files`)
	downloadCmd.Flags().StringP("out-file", "o", "", `output profile, default: overwrite -i/--profile`)
}
