// Package steps implements the built-in workflow.Step types: persona
// requests, repository context scans, diff application, PM decision
// parsing, the analysis/review loop, sub-workflow delegation, and task
// dashboard updates.
package steps

import (
	"encoding/json"
	"time"
)

// decodeParams round-trips cfg.Params through JSON into a typed struct,
// grounded on the teacher's own payload-reshaping pattern of marshaling a
// generic map and unmarshaling it into the field set a step actually needs.
func decodeParams(raw map[string]any, out any) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// defaultPersonaTimeout is used when neither a step's params nor its
// injected default resolve to a positive timeout.
const defaultPersonaTimeout = 5 * time.Minute

// msToDuration converts a millisecond count to a time.Duration, treating a
// non-positive value as "no explicit timeout" (zero Duration).
func msToDuration(ms int) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
