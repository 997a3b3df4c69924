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

// Package fs provides the filesystem abstraction for grafo.
package fs

import (
	"io/fs"
	"os"
)

// FileSystem is the filesystem surface the engine works against. The graph,
// resolver and build pipeline never touch the os package directly so tests
// can run against an in-memory implementation with controlled mtimes.
type FileSystem interface {
	// ReadFile returns the contents of the named file.
	ReadFile(name string) ([]byte, error)
	// Stat describes the named file. Watchers poll it for mtime changes.
	Stat(name string) (fs.FileInfo, error)
	// Exists reports whether the named path exists.
	Exists(path string) bool
	// ReadDir lists the named directory.
	ReadDir(name string) ([]fs.DirEntry, error)

	// WriteFile writes build output, creating or truncating the file.
	WriteFile(name string, data []byte, perm fs.FileMode) error
	// MkdirAll creates the named directory and any missing parents.
	MkdirAll(path string, perm fs.FileMode) error
	// Remove deletes stale build output.
	Remove(name string) error
}

// OS implements FileSystem over the real filesystem.
type OS struct{}

// NewOS returns a FileSystem backed by the os package.
func NewOS() *OS {
	return &OS{}
}

func (*OS) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

func (*OS) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(name)
}

func (*OS) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (*OS) ReadDir(name string) ([]fs.DirEntry, error) {
	return os.ReadDir(name)
}

func (*OS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	return os.WriteFile(name, data, perm)
}

func (*OS) MkdirAll(path string, perm fs.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (*OS) Remove(name string) error {
	return os.Remove(name)
}
