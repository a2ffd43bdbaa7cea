package inventory

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Host is a stored inventory record. The id is assigned at creation and never
// changes; every other field can be rewritten by later reports subject to the
// merge rules in the service layer.
type Host struct {
	ID          uuid.UUID `json:"id"`
	Account     string    `json:"account"`
	DisplayName string    `json:"display_name"`
	AnsibleHost string    `json:"ansible_host,omitempty"`

	CanonicalFacts

	// Facts maps a namespace to free-form attributes. Namespaces present in a
	// report replace the stored namespace wholesale.
	Facts map[string]map[string]any `json:"facts"`

	// Tags is the deduplicated structured tag set owned by this host.
	Tags []Tag `json:"tags"`

	// SystemProfile is opaque to the inventory; the profile consumer merges
	// partial updates into it top-level key by key.
	SystemProfile map[string]any `json:"system_profile"`

	Reporter string `json:"reporter"`

	StaleTimestamp        time.Time `json:"stale_timestamp"`
	StaleWarningTimestamp time.Time `json:"stale_warning_timestamp"`
	CulledTimestamp       time.Time `json:"culled_timestamp"`

	CreatedOn  time.Time `json:"created"`
	ModifiedOn time.Time `json:"updated"`
}

// Window returns the stored staleness window.
func (h Host) Window() StalenessWindow {
	return StalenessWindow{
		Stale:        h.StaleTimestamp,
		StaleWarning: h.StaleWarningTimestamp,
		Culled:       h.CulledTimestamp,
	}
}

// setWindow stamps a freshly computed window onto the host.
func (h *Host) setWindow(w StalenessWindow) {
	h.StaleTimestamp = w.Stale
	h.StaleWarningTimestamp = w.StaleWarning
	h.CulledTimestamp = w.Culled
}

// Clone deep-copies the host so an event snapshot cannot be altered by later
// mutation of the stored record.
func (h Host) Clone() Host {
	out := h
	out.CanonicalFacts = h.CanonicalFacts.clone()
	out.Tags = slices.Clone(h.Tags)
	out.SystemProfile = cloneAnyMap(h.SystemProfile)
	if h.Facts != nil {
		out.Facts = make(map[string]map[string]any, len(h.Facts))
		for ns, kv := range h.Facts {
			out.Facts[ns] = cloneAnyMap(kv)
		}
	}
	return out
}

// cloneAnyMap copies the map recursively. Decoded JSON nests maps and slices
// arbitrarily deep, and a shallow copy would leave those shared.
func cloneAnyMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = cloneAnyValue(v)
	}
	return out
}

func cloneAnyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneAnyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneAnyValue(e)
		}
		return out
	default:
		return v
	}
}
