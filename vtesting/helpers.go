/*
   Velociraptor - Hunting Evil
   Copyright (C) 2019 Velocidex Innovations.

   This program is free software: you can redistribute it and/or modify
   it under the terms of the GNU Affero General Public License as published
   by the Free Software Foundation, either version 3 of the License, or
   (at your option) any later version.

   This program is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
   GNU Affero General Public License for more details.

   You should have received a copy of the GNU Affero General Public License
   along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
/* An internal package with test utilities.
 */

package vtesting

import (
	"runtime/debug"
	"testing"
	"time"
)

// Poll cb until it returns true, failing the test once the deadline
// passes.
func WaitUntil(deadline time.Duration, t testing.TB, cb func() bool) {
	t.Helper()

	start := time.Now()
	for time.Since(start) < deadline {
		if cb() {
			return
		}

		time.Sleep(50 * time.Millisecond)
	}

	t.Fatalf("Timed out after %v\n%s", deadline, debug.Stack())
}
