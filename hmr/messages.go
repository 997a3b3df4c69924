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

// Package hmr turns recompute outcomes into ordered live-update messages
// and delivers them to connected browser sessions.
package hmr

import "encoding/json"

// Message types on the wire.
const (
	// TypeConnected greets a session with the current batch sequence, so a
	// reconnecting client can tell whether it missed batches.
	TypeConnected = "connected"
	// TypeReplace asks the session to hot-replace one module.
	TypeReplace = "replace"
	// TypeFullReload asks the session to reload the page.
	TypeFullReload = "full-reload"
	// TypeError surfaces a scoped rebuild failure without tearing the
	// session down.
	TypeError = "error"
)

// Message is one wire-level update. ModuleID is the module's web path, not
// its filesystem path. Every message carries the batch sequence number;
// sessions drop batches at or below the last one they applied.
type Message struct {
	Type       string `json:"type"`
	Seq        uint64 `json:"seq"`
	ModuleID   string `json:"moduleId,omitempty"`
	Code       string `json:"code,omitempty"`
	Generation uint64 `json:"generation,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Encode marshals the message for the socket.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}
