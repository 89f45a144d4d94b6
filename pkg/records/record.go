package records

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Record is one raw audit record as returned by a content blob: a loosely
// structured key-value map. No schema is assumed beyond the fields the
// relevance predicates probe, and even those may be missing or mistyped.
type Record map[string]interface{}

// stringField returns a top-level field as a string, tolerating missing keys
// and non-string values.
func (r Record) stringField(key string) string {
	v, ok := r[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// numberField returns a top-level field as an integer. JSON decoding yields
// float64 for numbers; some tenants serialize the type code as a string.
func (r Record) numberField(key string) (int, bool) {
	v, ok := r[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

// Serialized returns the record as lowercase JSON text for the fallback
// containment check. Marshal failures degrade to an empty string rather
// than propagating.
func (r Record) Serialized() string {
	raw, err := json.Marshal(r)
	if err != nil {
		return ""
	}
	return strings.ToLower(string(raw))
}

// ID returns the record identifier when present, for log correlation only.
func (r Record) ID() string {
	return r.stringField("Id")
}
