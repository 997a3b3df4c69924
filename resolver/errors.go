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
package resolver

import (
	"fmt"
	"strings"
)

// NotFoundError reports a specifier that could not be mapped to a module.
// For static imports reachable from an entrypoint this is fatal; for dynamic
// imports the graph records it as a deferred load-time failure instead.
type NotFoundError struct {
	Specifier string
	Importer  string
	Tried     []string
}

func (e *NotFoundError) Error() string {
	if len(e.Tried) == 0 {
		return fmt.Sprintf("cannot resolve %q from %s", e.Specifier, e.Importer)
	}
	return fmt.Sprintf("cannot resolve %q from %s (tried %s)",
		e.Specifier, e.Importer, strings.Join(e.Tried, ", "))
}

// AmbiguousError reports a specifier that matched more than one candidate
// with equal precedence, e.g. an extensionless specifier backed by both a
// probed file and a directory index.
type AmbiguousError struct {
	Specifier  string
	Importer   string
	Candidates []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous specifier %q from %s: matches %s",
		e.Specifier, e.Importer, strings.Join(e.Candidates, " and "))
}
