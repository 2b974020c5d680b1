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

func TestScaleProfile(t *testing.T) {
	rows := []*ProfileRow{
		{Taxid: 562, Reads: 105},
		{Taxid: 28901, Reads: 35},
	}
	if err := scaleProfile(rows, 1000000); err != nil {
		t.Fatal(err)
	}
	if rows[0].Reads != 750000 || rows[1].Reads != 250000 {
		t.Errorf("got %d and %d reads, want 750000 and 250000", rows[0].Reads, rows[1].Reads)
	}

	// exactness over awkward totals
	for total := uint64(1); total <= 500; total++ {
		rows := []*ProfileRow{
			{Taxid: 1, Reads: 7},
			{Taxid: 2, Reads: 3},
			{Taxid: 3, Reads: 2},
		}
		if err := scaleProfile(rows, total); err != nil {
			t.Fatal(err)
		}
		var sum uint64
		for _, row := range rows {
			sum += row.Reads
		}
		if sum != total {
			t.Fatalf("total %d: counts sum to %d", total, sum)
		}
	}
}

func TestScaleProfileDownscale(t *testing.T) {
	rows := []*ProfileRow{
		{Taxid: 1, Reads: 600},
		{Taxid: 2, Reads: 300},
		{Taxid: 3, Reads: 100},
	}
	if err := scaleProfile(rows, 10); err != nil {
		t.Fatal(err)
	}
	if rows[0].Reads != 6 || rows[1].Reads != 3 || rows[2].Reads != 1 {
		t.Errorf("got %d/%d/%d reads, want 6/3/1", rows[0].Reads, rows[1].Reads, rows[2].Reads)
	}
}

func TestScaleProfileEmpty(t *testing.T) {
	if err := scaleProfile(nil, 100); err == nil {
		t.Error("expected an error for an empty profile")
	}
}
