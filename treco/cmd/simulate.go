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
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulate benchmark reads with ART following an abundance profile",
	Long: `Simulate benchmark reads with ART following an abundance profile

For every reference in the profile, the genome is decompressed beside
the output directory and art_illumina is invoked to produce exactly the
reconciled number of reads. Genomes must be present in
-g/--genome-dir, see 'treco download'.

Requires art_illumina (https://www.niehs.nih.gov/research/resources/software/biostatistics/art/)
in $PATH, or its location given with --art.

Examples:
  treco simulate -i sample.profile.tsv -g genomes/ -O sample_reads/ \
      --paired -l 150 -m 400 -s 50
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
		genomeDir := getFlagString(cmd, "genome-dir")
		outDir := getFlagString(cmd, "out-dir")
		if outDir == "" {
			checkError(fmt.Errorf("flag -O/--out-dir needed"))
		}

		artBin := getFlagString(cmd, "art")
		readLen := getFlagPositiveInt(cmd, "read-len")
		paired := getFlagBool(cmd, "paired")
		meanFrag := getFlagPositiveInt(cmd, "frag-mean")
		sdFrag := getFlagPositiveInt(cmd, "frag-stdev")
		seed := getFlagInt(cmd, "seed")

		if _, err := exec.LookPath(artBin); err != nil {
			checkError(fmt.Errorf("ART binary not found: %s", artBin))
		}

		rows, err := readProfileTable(opt, profileFile)
		checkError(err)
		if opt.Verbose || opt.Log2File {
			log.Infof("simulating reads for %d references from %s", len(rows), profileFile)
		}

		source, err := newDirSource(genomeDir, opt.NumCPUs)
		checkError(err)

		makeOutDir(outDir)

		var wg sync.WaitGroup
		jobs := make(chan *ProfileRow, opt.NumCPUs)
		errs := make(chan error, len(rows))

		for i := 0; i < opt.NumCPUs; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for row := range jobs {
					errs <- simulateOne(opt, row, source, outDir, artBin, readLen, paired, meanFrag, sdFrag, seed)
				}
			}()
		}
		for _, row := range rows {
			jobs <- row
		}
		close(jobs)
		wg.Wait()
		close(errs)

		for err := range errs {
			checkError(err)
		}

		if opt.Verbose || opt.Log2File {
			log.Infof("simulated reads saved to %s", outDir)
		}
	},
}

// simulateOne runs art_illumina for a single reference genome.
func simulateOne(opt *Options, row *ProfileRow, source *dirSource, outDir, artBin string,
	readLen int, paired bool, meanFrag, sdFrag, seed int) error {

	gz, ok := source.index[row.RefFile]
	if !ok {
		return fmt.Errorf("genome %s of taxid %d not found in %s, run 'treco download' first",
			row.RefFile, row.Taxid, source.dir)
	}

	// ART reads plain FASTA only. The file name carries the taxid so
	// that two taxa backed by the same genome do not collide.
	fna := filepath.Join(outDir, fmt.Sprintf("taxid_%d_%s", row.Taxid, strings.TrimSuffix(row.RefFile, ".gz")))
	if err := decompressFile(gz, fna); err != nil {
		return err
	}
	defer os.Remove(fna)

	prefix := filepath.Join(outDir, fmt.Sprintf("taxid_%d_", row.Taxid))
	cmdArgs := []string{
		"-i", fna,
		"-l", strconv.Itoa(readLen),
		"-c", strconv.FormatUint(row.Reads, 10),
		"-o", prefix,
		"-na", // no SAM/ALN output
	}
	if paired {
		cmdArgs = append(cmdArgs,
			"-p",
			"-m", strconv.Itoa(meanFrag),
			"-s", strconv.Itoa(sdFrag),
		)
	}
	if seed > 0 {
		cmdArgs = append(cmdArgs, "-rs", strconv.Itoa(seed))
	}

	if opt.Verbose || opt.Log2File {
		log.Infof("  %s: %d reads from %s", row.OrganismName, row.Reads, row.RefFile)
	}

	var stderr bytes.Buffer
	command := exec.Command(artBin, cmdArgs...)
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		return fmt.Errorf("%s failed for taxid %d: %s\n%s", artBin, row.Taxid, err, stderr.String())
	}
	return nil
}

// decompressFile writes the decompressed content of a (possibly
// gzipped) file to dest.
func decompressFile(file, dest string) error {
	br, r, _, err := inStream(file)
	if err != nil {
		return err
	}
	defer r.Close()

	w, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("fail to write %s: %s", dest, err)
	}
	if _, err = io.Copy(w, br); err != nil {
		w.Close()
		return fmt.Errorf("fail to decompress %s: %s", file, err)
	}
	return w.Close()
}

func init() {
	RootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().StringP("profile", "i", "", `abundance profile written by 'treco profile'`)
	simulateCmd.Flags().StringP("genome-dir", "g", defaultGenomeDir, `directory with <assembly>_genomic.fna.gz files`)
	simulateCmd.Flags().StringP("out-dir", "O", "", `output directory for simulated reads`)
	simulateCmd.Flags().StringP("art", "", "art_illumina", `path of the art_illumina binary`)
	simulateCmd.Flags().IntP("read-len", "l", 150, `length of simulated reads`)
	simulateCmd.Flags().BoolP("paired", "p", false, `simulate paired-end reads`)
	simulateCmd.Flags().IntP("frag-mean", "m", 400, `mean fragment size for paired-end reads`)
	simulateCmd.Flags().IntP("frag-stdev", "s", 50, `standard deviation of fragment size for paired-end reads`)
	simulateCmd.Flags().IntP("seed", "", 0, `random seed passed to ART, 0 for none`)
}
