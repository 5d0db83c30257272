package service

import (
	"fmt"
	"strings"
)

// Metadata keys that may carry reservation ids
const (
	metaReservationIDs = "reservation_ids"
	metaReservationID  = "reservation_id"
	metaCustomFields   = "custom_fields"
)

// ResolveReservationIDs returns the reservation ids a payment covers. Sources
// are tried in order and the first non-empty one wins: explicit ids, gateway
// metadata (reservation_ids, reservation_id, custom_fields), then fallback.
// The result is trimmed, de-duplicated and keeps first-seen order.
func ResolveReservationIDs(explicit []string, metadata map[string]any, fallback string) []string {
	if ids := normalizeIDs(explicit); len(ids) > 0 {
		return ids
	}

	if metadata != nil {
		for _, key := range []string{metaReservationIDs, metaReservationID} {
			if ids := normalizeIDs(flattenIDs(metadata[key])); len(ids) > 0 {
				return ids
			}
		}
		if ids := normalizeIDs(customFieldIDs(metadata[metaCustomFields])); len(ids) > 0 {
			return ids
		}
	}

	return normalizeIDs([]string{fallback})
}

// flattenIDs accepts a list, a string list or a comma-joined string
func flattenIDs(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return strings.Split(val, ",")
	case []string:
		return val
	case []any:
		var out []string
		for _, item := range val {
			out = append(out, flattenIDs(item)...)
		}
		return out
	case fmt.Stringer:
		return []string{val.String()}
	}
	return nil
}

// customFieldIDs reads custom_fields, which arrive as a comma-joined string,
// a map, or a list of {variable_name, value} objects
func customFieldIDs(v any) []string {
	switch val := v.(type) {
	case string:
		return flattenIDs(val)
	case map[string]any:
		for _, key := range []string{metaReservationIDs, metaReservationID} {
			if ids := flattenIDs(val[key]); len(ids) > 0 {
				return ids
			}
		}
	case []any:
		var out []string
		for _, item := range val {
			field, ok := item.(map[string]any)
			if !ok {
				out = append(out, flattenIDs(item)...)
				continue
			}
			name, _ := field["variable_name"].(string)
			if isReservationField(name) {
				out = append(out, flattenIDs(field["value"])...)
			}
		}
		return out
	}
	return nil
}

func isReservationField(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	return name == metaReservationIDs || name == metaReservationID
}

func normalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
