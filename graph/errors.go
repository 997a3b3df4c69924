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
package graph

import (
	"fmt"
	"strings"

	"bennypowers.dev/grafo/module"
)

// ResolutionError reports a static import specifier that could not be mapped
// to a module. Chain holds the import path from the nearest entrypoint to
// the importer, so callers can locate the offending source.
type ResolutionError struct {
	Specifier string
	Importer  module.ID
	Line      int
	Chain     []module.ID
	Err       error
}

func (e *ResolutionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cannot resolve %q imported by %s", e.Specifier, e.Importer)
	if e.Line > 0 {
		fmt.Fprintf(&b, ":%d", e.Line)
	}
	if len(e.Chain) > 0 {
		b.WriteString(" (via ")
		for i, id := range e.Chain {
			if i > 0 {
				b.WriteString(" -> ")
			}
			b.WriteString(id.String())
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// TransformError reports that the transform adapter failed to produce code
// for a module.
type TransformError struct {
	ID    module.ID
	Chain []module.ID
	Err   error
}

func (e *TransformError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cannot transform %s", e.ID)
	if len(e.Chain) > 0 {
		b.WriteString(" (via ")
		for i, id := range e.Chain {
			if i > 0 {
				b.WriteString(" -> ")
			}
			b.WriteString(id.String())
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *TransformError) Unwrap() error { return e.Err }
