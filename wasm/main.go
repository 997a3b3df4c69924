//go:build js && wasm

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

// Package main provides the WASM entry point for grafo.
package main

import (
	"encoding/json"
	"syscall/js"

	"bennypowers.dev/grafo/internal/mapfs"
	"bennypowers.dev/grafo/module"
	"bennypowers.dev/grafo/resolver"
)

// Version is the grafo WASM version.
const Version = "0.1.0"

func main() {
	// Create the grafo namespace object
	grafo := make(map[string]any)
	grafo["resolve"] = js.FuncOf(resolve)
	grafo["version"] = Version

	// Export to global scope
	js.Global().Set("grafo", js.ValueOf(grafo))

	// Keep the program running
	select {}
}

// resolve is the entry point for resolving import specifiers against an
// in-memory project tree.
// Arguments:
//   - files: object - Maps absolute paths to file contents, including any
//     node_modules package.json files the resolution should consult
//   - importer: string - Absolute path of the importing module
//   - specifier: string - The specifier as written in the importer,
//     optionally carrying a "?variant" suffix
//   - options: object (optional) - Resolution options
//     - conditions: string[] - Export condition priority
//
// Returns a Promise that resolves to a JSON string describing the
// resolved module.
func resolve(this js.Value, args []js.Value) any {
	// Create a new Promise
	handler := js.FuncOf(func(this js.Value, promiseArgs []js.Value) any {
		resolveFn := promiseArgs[0]
		reject := promiseArgs[1]

		go func() {
			result, err := doResolve(args)
			if err != nil {
				reject.Invoke(js.Global().Get("Error").New(err.Error()))
				return
			}
			resolveFn.Invoke(result)
		}()

		return nil
	})

	promise := js.Global().Get("Promise").New(handler)
	handler.Release()
	return promise
}

// resolution describes one resolved module for the JavaScript caller.
type resolution struct {
	Path    string `json:"path"`
	Variant string `json:"variant,omitempty"`
	Kind    string `json:"kind"`
	WebPath string `json:"webPath"`
}

// doResolve performs the actual resolution.
func doResolve(args []js.Value) (string, error) {
	if len(args) < 3 {
		return "", &jsError{message: "resolve requires files, importer and specifier arguments"}
	}

	// Build the in-memory project tree
	filesObj := args[0]
	if filesObj.Type() != js.TypeObject {
		return "", &jsError{message: "files must be an object mapping paths to contents"}
	}
	mfs := mapfs.New()
	keys := js.Global().Get("Object").Call("keys", filesObj)
	for i := range keys.Length() {
		p := keys.Index(i).String()
		mfs.AddFile(p, filesObj.Get(p).String(), 0o644)
	}

	importer := args[1].String()
	specifier := args[2].String()

	// Parse options
	opts := parseOptions(args)

	res := resolver.New(mfs, "/")
	if len(opts.conditions) > 0 {
		res = res.WithConditions(opts.conditions)
	}

	id, err := res.Resolve(specifier, importer)
	if err != nil {
		return "", &jsError{message: "failed to resolve " + specifier + ": " + err.Error()}
	}

	result := resolution{
		Path:    id.Path,
		Variant: id.Variant,
		Kind:    id.Kind().String(),
		WebPath: module.WebPath("/", id),
	}
	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", &jsError{message: "failed to serialize resolution: " + err.Error()}
	}

	return string(jsonBytes), nil
}

// resolveOptions holds parsed resolution options.
type resolveOptions struct {
	conditions []string
}

// parseOptions extracts options from the JavaScript arguments.
func parseOptions(args []js.Value) resolveOptions {
	opts := resolveOptions{}

	if len(args) < 4 || args[3].IsUndefined() || args[3].IsNull() {
		return opts
	}

	optionsObj := args[3]

	// Export conditions
	if conditionsVal := optionsObj.Get("conditions"); !conditionsVal.IsUndefined() && !conditionsVal.IsNull() {
		length := conditionsVal.Length()
		opts.conditions = make([]string, length)
		for i := range length {
			opts.conditions[i] = conditionsVal.Index(i).String()
		}
	}

	return opts
}

// jsError represents an error to be returned to JavaScript.
type jsError struct {
	message string
}

func (e *jsError) Error() string {
	return e.message
}
