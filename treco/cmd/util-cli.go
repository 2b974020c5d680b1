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
	"os"

	"github.com/shenwei356/go-logging"
	"github.com/shenwei356/util/cliutil"
	"github.com/spf13/cobra"
)

var log = logging.MustGetLogger("treco")

func checkError(err error) {
	if err != nil {
		log.Error(err)
		os.Exit(-1)
	}
}

func isStdin(file string) bool {
	return file == "-"
}

func getFlagString(cmd *cobra.Command, flag string) string {
	return cliutil.GetFlagString(cmd, flag)
}

func getFlagStringSlice(cmd *cobra.Command, flag string) []string {
	return cliutil.GetFlagStringSlice(cmd, flag)
}

func getFlagBool(cmd *cobra.Command, flag string) bool {
	return cliutil.GetFlagBool(cmd, flag)
}

func getFlagInt(cmd *cobra.Command, flag string) int {
	return cliutil.GetFlagInt(cmd, flag)
}

func getFlagPositiveInt(cmd *cobra.Command, flag string) int {
	return cliutil.GetFlagPositiveInt(cmd, flag)
}

func getFlagNonNegativeInt(cmd *cobra.Command, flag string) int {
	return cliutil.GetFlagNonNegativeInt(cmd, flag)
}
