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

	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	prettytable "github.com/tatsushid/go-prettytable"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize an abundance profile",
	Long: `Summarize an abundance profile

Examples:
  treco stats sample.profile.tsv
`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)

		if len(args) == 0 {
			checkError(fmt.Errorf("at least one profile file is needed"))
		}

		for _, file := range args {
			rows, err := readProfileTable(opt, file)
			checkError(err)

			var totalReads, totalLength, minReads, maxReads uint64
			for i, row := range rows {
				totalReads += row.Reads
				totalLength += row.GenomeLength
				if i == 0 || row.Reads < minReads {
					minReads = row.Reads
				}
				if row.Reads > maxReads {
					maxReads = row.Reads
				}
			}
			var meanReads uint64
			if len(rows) > 0 {
				meanReads = totalReads / uint64(len(rows))
			}

			tbl, err := prettytable.NewTable(
				prettytable.Column{Header: "metric"},
				prettytable.Column{Header: "value", AlignRight: true},
			)
			checkError(err)
			tbl.Separator = "   "

			tbl.AddRow("file", file)
			tbl.AddRow("references", humanize.Comma(int64(len(rows))))
			tbl.AddRow("total reads", humanize.Comma(int64(totalReads)))
			tbl.AddRow("min reads", humanize.Comma(int64(minReads)))
			tbl.AddRow("mean reads", humanize.Comma(int64(meanReads)))
			tbl.AddRow("max reads", humanize.Comma(int64(maxReads)))
			tbl.AddRow("total genome length", humanize.Comma(int64(totalLength)))
			tbl.Print()
			fmt.Println()
		}
	},
}

func init() {
	RootCmd.AddCommand(statsCmd)
}
