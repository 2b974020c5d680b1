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

import "testing"

func TestIsStdin(t *testing.T) {
	if !isStdin("-") {
		t.Error(`"-" should be treated as stdin`)
	}
	if isStdin("report.tsv") || isStdin("") {
		t.Error("regular file names are not stdin")
	}
}

func TestGzipSuffix(t *testing.T) {
	if !gzipSuffix("profile.tsv.gz") || !gzipSuffix("GENOME.FNA.GZ") {
		t.Error(".gz files should be detected case-insensitively")
	}
	if gzipSuffix("profile.tsv") {
		t.Error("plain files are not gzipped")
	}
}

func TestStringSplitNByByte(t *testing.T) {
	items := make([]string, 6)
	stringSplitNByByte("a\tb\tc\td\te\tf\tg", '\t', 6, &items)
	if len(items) != 6 || items[5] != "f\tg" {
		t.Errorf("got %q, want 6 fields with the tail unsplit", items)
	}

	stringSplitNByByte("a\tb", '\t', 6, &items)
	if len(items) != 2 || items[0] != "a" || items[1] != "b" {
		t.Errorf("got %q, want [a b]", items)
	}
}
