package domain

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// decodeStringMap tolerates empty/malformed jsonb the way
// internal/jobs/runtime.Context.decodePayload tolerates a malformed job
// payload: never fail the caller, just fall back to an empty map.
func decodeStringMap(raw datatypes.JSON) map[string]string {
	if len(raw) == 0 {
		return map[string]string{}
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]string{}
	}
	return m
}
