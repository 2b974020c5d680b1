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
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/vbauerster/mpb/v5"
	"github.com/vbauerster/mpb/v5/decor"
)

// defaultGenomeDir is used when no genome directory is given.
const defaultGenomeDir = "~/.treco/genomes"

// refFileName returns the file name of the gzipped genomic FASTA for a
// record, derived from the last element of its FTP path.
func refFileName(rec *GenomeRecord) string {
	return path.Base(rec.FtpPath) + "_genomic.fna.gz"
}

func refFileURL(rec *GenomeRecord) string {
	p := strings.Replace(rec.FtpPath, "ftp://", "https://", 1)
	return p + "/" + refFileName(rec)
}

// genomeSource resolves the genome behind a catalog record: a local
// path plus the total sequence length. Fetching is synchronous and
// fail-fast; retries belong to the caller, if anywhere.
type genomeSource interface {
	Fetch(rec *GenomeRecord) (string, uint64, error)
}

var reGenomeFile = regexp.MustCompile(`_genomic\.fna\.gz$`)

// dirSource serves genomes already present in a local directory.
type dirSource struct {
	dir   string
	index map[string]string // file name -> path
}

func newDirSource(dir string, threads int) (*dirSource, error) {
	dir, err := homedir.Expand(dir)
	if err != nil {
		return nil, err
	}
	s := &dirSource{dir: dir, index: make(map[string]string, 1024)}

	existed, err := os.Stat(dir)
	if err != nil || !existed.IsDir() {
		return s, nil // nothing cached yet
	}

	files, err := getFileListFromDir(dir, reGenomeFile, threads)
	if err != nil {
		return nil, fmt.Errorf("fail to scan genome directory %s: %s", dir, err)
	}
	for _, file := range files {
		s.index[filepath.Base(file)] = file
	}
	return s, nil
}

func (s *dirSource) Fetch(rec *GenomeRecord) (string, uint64, error) {
	file, ok := s.index[refFileName(rec)]
	if !ok {
		return "", 0, fmt.Errorf("genome of %s (taxid %d) not found in %s", rec.Accession, rec.Taxid, s.dir)
	}
	n, err := fastaLength(file)
	if err != nil {
		return "", 0, err
	}
	return file, n, nil
}

// httpSource downloads genomes missing from the local directory from
// their NCBI FTP path (rewritten to https), then serves them like
// dirSource. No retries: a failed download fails the run.
type httpSource struct {
	*dirSource
	client  *http.Client
	verbose bool
}

func newHTTPSource(dir string, threads int, verbose bool) (*httpSource, error) {
	ds, err := newDirSource(dir, threads)
	if err != nil {
		return nil, err
	}
	if err = os.MkdirAll(ds.dir, 0755); err != nil {
		return nil, fmt.Errorf("fail to create genome directory %s: %s", ds.dir, err)
	}
	return &httpSource{dirSource: ds, client: &http.Client{}, verbose: verbose}, nil
}

func (s *httpSource) Fetch(rec *GenomeRecord) (string, uint64, error) {
	name := refFileName(rec)
	if _, ok := s.index[name]; !ok {
		file := filepath.Join(s.dir, name)
		if err := s.download(refFileURL(rec), file, name); err != nil {
			return "", 0, err
		}
		s.index[name] = file
	}
	return s.dirSource.Fetch(rec)
}

func (s *httpSource) download(url, file, name string) error {
	resp, err := s.client.Get(url)
	if err != nil {
		return fmt.Errorf("fail to download %s: %s", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fail to download %s: %s", url, resp.Status)
	}

	w, err := os.Create(file + ".tmp")
	if err != nil {
		return fmt.Errorf("fail to write %s: %s", file, err)
	}

	var r io.Reader = resp.Body
	var pbs *mpb.Progress
	if s.verbose {
		pbs = mpb.New(mpb.WithWidth(40), mpb.WithOutput(os.Stderr))
		bar := pbs.AddBar(resp.ContentLength,
			mpb.BarStyle("[=>-]<+"),
			mpb.PrependDecorators(
				decor.Name(name+" ", decor.WC{W: len(name) + 1, C: decor.DidentRight}),
				decor.CountersKibiByte("% .1f / % .1f"),
			),
			mpb.AppendDecorators(decor.Percentage(decor.WC{W: 5})),
			mpb.BarRemoveOnComplete(),
		)
		r = bar.ProxyReader(resp.Body)
	}

	_, err = io.Copy(w, r)
	w.Close()
	if pbs != nil {
		pbs.Wait()
	}
	if err != nil {
		os.Remove(file + ".tmp")
		return fmt.Errorf("fail to download %s: %s", url, err)
	}
	return os.Rename(file+".tmp", file)
}

// fastaLength returns the total sequence length of a (possibly
// gzipped) FASTA file.
func fastaLength(file string) (uint64, error) {
	reader, err := fastx.NewDefaultReader(file)
	if err != nil {
		return 0, fmt.Errorf("fail to read genome %s: %s", file, err)
	}

	var n uint64
	var record *fastx.Record
	for {
		record, err = reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return 0, fmt.Errorf("fail to read genome %s: %s", file, err)
		}
		n += uint64(len(record.Seq.Seq))
	}
	return n, nil
}
