// Copyright © 2023-2024 Wei Shen <shenwei356@gmail.com>
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
	"os"

	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/spf13/cobra"

	"github.com/malabz/Chimera/query"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "test whether sequences contain k-mers associated with given taxids",
	Long: `test whether sequences contain k-mers associated with given taxids

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)

		archivePath := getFlagString(cmd, "archive")
		if archivePath == "" {
			checkError(fmt.Errorf("flag -d/--archive is required"))
		}
		taxids := getFlagStringSlice(cmd, "taxid")
		if len(taxids) == 0 {
			checkError(fmt.Errorf("flag -t/--taxid is required (repeatable)"))
		}

		if len(args) == 0 {
			checkError(fmt.Errorf("at least one sequence file is required"))
		}

		idx, err := query.Load(archivePath)
		checkError(err)
		if opt.Verbose {
			log.Infof("loaded %s", idx)
		}

		for _, file := range args {
			reader, err := fastx.NewReader(nil, file, "")
			checkError(err)

			for {
				record, err := reader.Read()
				if err != nil {
					if err == io.EOF {
						break
					}
					checkError(err)
				}

				results, err := idx.ContainsAny(taxids, record.Seq.Seq)
				if err != nil && opt.Verbose {
					log.Warningf("%s: %s", record.Name, err)
				}
				for _, taxid := range taxids {
					fmt.Fprintf(os.Stdout, "%s\t%s\t%s\t%v\n", file, record.Name, taxid, results[taxid])
				}
			}
			reader.Close()
		}
	},
}

func init() {
	RootCmd.AddCommand(queryCmd)

	queryCmd.Flags().StringP("archive", "d", "", "archive file previously written by 'build'")
	queryCmd.Flags().StringSliceP("taxid", "t", nil, "taxid(s) to test membership against (repeatable)")
}
