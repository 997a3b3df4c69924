/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package output provides shared output utilities for grafo CLI commands.
package output

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/viper"

	"bennypowers.dev/grafo/build"
	"bennypowers.dev/grafo/fs"
)

// Logger writes package diagnostics to stderr. Debug lines appear only in
// verbose mode.
type Logger struct {
	Verbose bool
}

func (l Logger) Warning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "warning: "+format+"\n", args...)
}

func (l Logger) Debug(format string, args ...any) {
	if l.Verbose {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

// Write sends content to the file named by the global output flag, or to
// stdout when the flag is unset.
func Write(osfs fs.FileSystem, content string) error {
	if outputPath := viper.GetString("output"); outputPath != "" {
		return osfs.WriteFile(outputPath, []byte(content+"\n"), 0644)
	}
	fmt.Println(content)
	return nil
}

// BuildReport renders a build result as an aligned file listing with raw
// and compressed sizes.
func BuildReport(w io.Writer, result *build.Result) {
	widest := 0
	for _, f := range result.Files {
		if len(f.Name) > widest {
			widest = len(f.Name)
		}
	}
	for _, f := range result.Files {
		fmt.Fprintf(w, "  %-*s  %9s  gzip: %s\n",
			widest, f.Name, FormatSize(f.Size), FormatSize(f.GzipSize))
	}
	if result.ManifestPath != "" {
		fmt.Fprintf(w, "  manifest: %s\n", result.ManifestPath)
	}
}

// FormatSize renders a byte count the way build tools report transfer
// sizes.
func FormatSize(n int) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}
	return fmt.Sprintf("%.2f kB", float64(n)/1024)
}
