package inventory

import (
	"reflect"
	"testing"
)

func TestCanonicalFactsNormalized(t *testing.T) {
	in := CanonicalFacts{
		InsightsID:   "A53BBAFE-2DE4-4A3E-8DDF-6A41B8FB5A9A",
		BIOSUUID:     "  not-a-uuid-VALUE  ",
		FQDN:         "  Host-1.Example.COM ",
		IPAddresses:  []string{" 10.0.0.1 ", "", "FE80::1"},
		MACAddresses: []string{},
		ExternalID:   " ext-1 ",
	}

	got := in.Normalized()
	want := CanonicalFacts{
		InsightsID:  "a53bbafe-2de4-4a3e-8ddf-6a41b8fb5a9a",
		BIOSUUID:    "notauuidvalue",
		FQDN:        "host-1.example.com",
		IPAddresses: []string{"10.0.0.1", "fe80::1"},
		ExternalID:  "ext-1",
	}

	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Normalized() = %+v, want %+v", got, want)
	}
}

func TestNormalizeUUIDEquivalence(t *testing.T) {
	variants := []string{
		"a53bbafe-2de4-4a3e-8ddf-6a41b8fb5a9a",
		"A53BBAFE-2DE4-4A3E-8DDF-6A41B8FB5A9A",
		"a53bbafe2de44a3e8ddf6a41b8fb5a9a",
	}

	want := normalizeUUID(variants[0])
	for _, v := range variants[1:] {
		if got := normalizeUUID(v); got != want {
			t.Fatalf("normalizeUUID(%q) = %q, want %q", v, got, want)
		}
	}
}

func TestCanonicalFactsEmpty(t *testing.T) {
	if !(CanonicalFacts{}).Empty() {
		t.Fatal("zero value should be empty")
	}
	if (CanonicalFacts{FQDN: "a"}).Empty() {
		t.Fatal("fqdn present, should not be empty")
	}
	if (CanonicalFacts{IPAddresses: []string{"10.0.0.1"}}).Empty() {
		t.Fatal("ip present, should not be empty")
	}
}

func TestSharesAny(t *testing.T) {
	tests := []struct {
		name string
		a, b CanonicalFacts
		want bool
	}{
		{
			name: "same fqdn",
			a:    CanonicalFacts{FQDN: "a.example.com", InsightsID: "x"},
			b:    CanonicalFacts{FQDN: "a.example.com"},
			want: true,
		},
		{
			name: "ip intersection",
			a:    CanonicalFacts{IPAddresses: []string{"10.0.0.1", "10.0.0.2"}},
			b:    CanonicalFacts{IPAddresses: []string{"10.0.0.2", "10.0.0.3"}},
			want: true,
		},
		{
			name: "mac intersection",
			a:    CanonicalFacts{MACAddresses: []string{"aa:bb"}},
			b:    CanonicalFacts{MACAddresses: []string{"aa:bb"}},
			want: true,
		},
		{
			name: "no overlap",
			a:    CanonicalFacts{FQDN: "a.example.com", IPAddresses: []string{"10.0.0.1"}},
			b:    CanonicalFacts{FQDN: "b.example.com", IPAddresses: []string{"10.0.0.9"}},
			want: false,
		},
		{
			name: "absent fields never match",
			a:    CanonicalFacts{FQDN: "a.example.com"},
			b:    CanonicalFacts{InsightsID: "x"},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.SharesAny(tt.b); got != tt.want {
				t.Fatalf("SharesAny = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCanonicalFactsMerge(t *testing.T) {
	stored := CanonicalFacts{
		InsightsID:  "old-insights",
		FQDN:        "old.example.com",
		IPAddresses: []string{"10.0.0.1"},
	}
	incoming := CanonicalFacts{
		FQDN:         "new.example.com",
		MACAddresses: []string{"aa:bb"},
	}

	stored.Merge(incoming)

	want := CanonicalFacts{
		InsightsID:   "old-insights",
		FQDN:         "new.example.com",
		IPAddresses:  []string{"10.0.0.1"},
		MACAddresses: []string{"aa:bb"},
	}
	if !reflect.DeepEqual(stored, want) {
		t.Fatalf("Merge = %+v, want %+v", stored, want)
	}
}

func TestMergeNeverErases(t *testing.T) {
	stored := CanonicalFacts{
		InsightsID:   "keep",
		BIOSUUID:     "keep",
		FQDN:         "keep.example.com",
		IPAddresses:  []string{"10.0.0.1"},
		MACAddresses: []string{"aa:bb"},
		ExternalID:   "keep",
	}
	before := stored.clone()

	stored.Merge(CanonicalFacts{})

	if !reflect.DeepEqual(stored, before) {
		t.Fatalf("empty merge changed facts: %+v, want %+v", stored, before)
	}
}
