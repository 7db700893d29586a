// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"bytes"
	"fmt"
	"time"
)

// reportKey sorts lexically by time. 20 digits hold any int64.
func reportKey(t time.Time, runID string) []byte {
	return fmt.Appendf(append([]byte(nil), reportPrefix...), "%020d/%s", t.UnixNano(), runID)
}

func runKey(runID string) []byte {
	return append(append([]byte(nil), runPrefix...), runID...)
}

// runIDFromKey extracts the run ID from a report key.
func runIDFromKey(key []byte) string {
	rest, ok := bytes.CutPrefix(key, reportPrefix)
	if !ok {
		return ""
	}
	_, id, ok := bytes.Cut(rest, []byte("/"))
	if !ok {
		return ""
	}
	return string(id)
}

// seekLast returns a key past every key with prefix, for reverse iteration.
func seekLast(prefix []byte) []byte {
	return append(append([]byte(nil), prefix...), 0xFF)
}
