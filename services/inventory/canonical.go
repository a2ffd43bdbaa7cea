package inventory

import (
	"slices"
	"strings"

	"github.com/google/uuid"
)

// CanonicalFacts holds the identifying facts of a host report. Every field is
// optional; an empty string or empty slice means the fact is absent. A report
// must carry at least one present fact to be accepted.
type CanonicalFacts struct {
	InsightsID            string   `json:"insights_id,omitempty"`
	RHELMachineID         string   `json:"rhel_machine_id,omitempty"`
	SubscriptionManagerID string   `json:"subscription_manager_id,omitempty"`
	SatelliteID           string   `json:"satellite_id,omitempty"`
	BIOSUUID              string   `json:"bios_uuid,omitempty"`
	FQDN                  string   `json:"fqdn,omitempty"`
	IPAddresses           []string `json:"ip_addresses,omitempty"`
	MACAddresses          []string `json:"mac_addresses,omitempty"`
	ExternalID            string   `json:"external_id,omitempty"`
}

// normalizeUUID canonicalizes a UUID-shaped fact so comparisons are case and
// hyphen insensitive. Values that do not parse as UUIDs are lowercased with
// hyphens stripped, which preserves the same comparison semantics.
func normalizeUUID(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if u, err := uuid.Parse(s); err == nil {
		return u.String()
	}
	return strings.ToLower(strings.ReplaceAll(s, "-", ""))
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, strings.ToLower(v))
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Normalized returns a copy with empty values dropped and UUID-shaped fields
// canonicalized. All comparison, merging, and storage happens on normalized
// fact sets.
func (cf CanonicalFacts) Normalized() CanonicalFacts {
	return CanonicalFacts{
		InsightsID:            normalizeUUID(cf.InsightsID),
		RHELMachineID:         normalizeUUID(cf.RHELMachineID),
		SubscriptionManagerID: normalizeUUID(cf.SubscriptionManagerID),
		SatelliteID:           normalizeUUID(cf.SatelliteID),
		BIOSUUID:              normalizeUUID(cf.BIOSUUID),
		FQDN:                  strings.ToLower(strings.TrimSpace(cf.FQDN)),
		IPAddresses:           normalizeList(cf.IPAddresses),
		MACAddresses:          normalizeList(cf.MACAddresses),
		ExternalID:            strings.TrimSpace(cf.ExternalID),
	}
}

// Empty reports whether no fact is present.
func (cf CanonicalFacts) Empty() bool {
	return cf.InsightsID == "" &&
		cf.RHELMachineID == "" &&
		cf.SubscriptionManagerID == "" &&
		cf.SatelliteID == "" &&
		cf.BIOSUUID == "" &&
		cf.FQDN == "" &&
		len(cf.IPAddresses) == 0 &&
		len(cf.MACAddresses) == 0 &&
		cf.ExternalID == ""
}

// SharesAny reports whether the two fact sets agree on at least one present
// fact. Any single field in common is sufficient; both sides must already be
// normalized.
func (cf CanonicalFacts) SharesAny(other CanonicalFacts) bool {
	scalar := func(a, b string) bool { return a != "" && a == b }

	if scalar(cf.InsightsID, other.InsightsID) ||
		scalar(cf.RHELMachineID, other.RHELMachineID) ||
		scalar(cf.SubscriptionManagerID, other.SubscriptionManagerID) ||
		scalar(cf.SatelliteID, other.SatelliteID) ||
		scalar(cf.BIOSUUID, other.BIOSUUID) ||
		scalar(cf.FQDN, other.FQDN) ||
		scalar(cf.ExternalID, other.ExternalID) {
		return true
	}

	for _, ip := range cf.IPAddresses {
		if slices.Contains(other.IPAddresses, ip) {
			return true
		}
	}
	for _, mac := range cf.MACAddresses {
		if slices.Contains(other.MACAddresses, mac) {
			return true
		}
	}
	return false
}

// Merge overwrites every fact that is present in incoming and leaves absent
// facts untouched. A fact, once learned, is never erased by a report that
// omits it.
func (cf *CanonicalFacts) Merge(incoming CanonicalFacts) {
	if incoming.InsightsID != "" {
		cf.InsightsID = incoming.InsightsID
	}
	if incoming.RHELMachineID != "" {
		cf.RHELMachineID = incoming.RHELMachineID
	}
	if incoming.SubscriptionManagerID != "" {
		cf.SubscriptionManagerID = incoming.SubscriptionManagerID
	}
	if incoming.SatelliteID != "" {
		cf.SatelliteID = incoming.SatelliteID
	}
	if incoming.BIOSUUID != "" {
		cf.BIOSUUID = incoming.BIOSUUID
	}
	if incoming.FQDN != "" {
		cf.FQDN = incoming.FQDN
	}
	if len(incoming.IPAddresses) > 0 {
		cf.IPAddresses = slices.Clone(incoming.IPAddresses)
	}
	if len(incoming.MACAddresses) > 0 {
		cf.MACAddresses = slices.Clone(incoming.MACAddresses)
	}
	if incoming.ExternalID != "" {
		cf.ExternalID = incoming.ExternalID
	}
}

func (cf CanonicalFacts) clone() CanonicalFacts {
	out := cf
	out.IPAddresses = slices.Clone(cf.IPAddresses)
	out.MACAddresses = slices.Clone(cf.MACAddresses)
	return out
}
