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

import "fmt"

// scaleProfile rescales the reconciled read counts to sum to exactly
// total, using the same proportional apportioning and residue repair
// as the reassignment pass. Only valid after reconciliation: rows must
// already be the final genome-backed counts.
func scaleProfile(rows []*ProfileRow, total uint64) error {
	if len(rows) == 0 {
		return fmt.Errorf("no genome-backed taxa to scale to %d reads", total)
	}

	taxids := make([]uint32, len(rows))
	weights := make([]uint64, len(rows))
	for i, row := range rows {
		taxids[i] = row.Taxid
		weights[i] = row.Reads
	}

	shares := apportionReads(total, taxids, weights)

	var sum uint64
	for i, row := range rows {
		row.Reads = shares[i]
		sum += shares[i]
	}
	if sum != total {
		return fmt.Errorf("scaled read counts sum to %d, want %d", sum, total)
	}
	return nil
}
