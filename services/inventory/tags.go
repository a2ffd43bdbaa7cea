package inventory

import "regexp"

// Tag is the structured form of a host tag. Namespace and Value are optional;
// an empty string means absent. A host owns at most one tag per
// (namespace, key, value) triple.
type Tag struct {
	Namespace string `json:"namespace,omitempty"`
	Key       string `json:"key"`
	Value     string `json:"value,omitempty"`
}

// NestedTags is the aggregate nested form: namespace -> key -> values.
type NestedTags map[string]map[string][]string

// Tag strings are restricted to word-character runs on each side of the
// separators. Anything else is rejected rather than guessed at.
var (
	nsKeyValuePattern = regexp.MustCompile(`^(\w+)/(\w+)=(\w+)$`)
	nsKeyPattern      = regexp.MustCompile(`^(\w+)/(\w+)$`)
	keyValuePattern   = regexp.MustCompile(`^(\w+)=(\w+)$`)
	keyPattern        = regexp.MustCompile(`^\w+$`)
)

// ParseTag converts the string form of a tag into its structured form. The
// first matching shape wins: NS/key=value, then NS/key, then key=value, then
// a bare key.
func ParseTag(s string) (Tag, error) {
	if m := nsKeyValuePattern.FindStringSubmatch(s); m != nil {
		return Tag{Namespace: m[1], Key: m[2], Value: m[3]}, nil
	}
	if m := nsKeyPattern.FindStringSubmatch(s); m != nil {
		return Tag{Namespace: m[1], Key: m[2]}, nil
	}
	if m := keyValuePattern.FindStringSubmatch(s); m != nil {
		return Tag{Key: m[1], Value: m[2]}, nil
	}
	if keyPattern.MatchString(s) {
		return Tag{Key: s}, nil
	}
	return Tag{}, &TagFormatError{Input: s, Reason: errUnparseableTag}
}

// TagFromNested converts a single-tag nested mapping into its structured
// form. The mapping must hold exactly one namespace and one key, and at most
// one value; an empty value list yields an absent value.
func TagFromNested(nested NestedTags) (Tag, error) {
	if len(nested) != 1 {
		return Tag{}, ErrTooManyKeys
	}
	for namespace, keys := range nested {
		if len(keys) != 1 {
			return Tag{}, ErrTooManyKeys
		}
		for key, values := range keys {
			switch len(values) {
			case 0:
				return Tag{Namespace: namespace, Key: key}, nil
			case 1:
				return Tag{Namespace: namespace, Key: key, Value: values[0]}, nil
			default:
				return Tag{}, ErrTooManyValues
			}
		}
	}
	return Tag{}, ErrTooManyKeys
}

// Validate rejects structured tags without a key. A namespace or value cannot
// stand alone; such a tag would not survive the string round trip.
func (t Tag) Validate() error {
	if t.Key == "" {
		return &TagFormatError{Input: t.String(), Reason: errTagMissingKey}
	}
	return nil
}

// String renders the tag in its string form, omitting absent parts so the
// structured form round-trips exactly.
func (t Tag) String() string {
	s := t.Key
	if t.Namespace != "" {
		s = t.Namespace + "/" + s
	}
	if t.Value != "" {
		s += "=" + t.Value
	}
	return s
}

// Nested renders the tag in its single-tag nested form. An absent value maps
// to an empty value list.
func (t Tag) Nested() NestedTags {
	values := []string{}
	if t.Value != "" {
		values = append(values, t.Value)
	}
	return NestedTags{t.Namespace: {t.Key: values}}
}

// NestTags combines structured tags into one nested mapping. Tags sharing a
// (namespace, key) accumulate every value in insertion order; duplicates are
// kept. Tags without a value contribute the key with an empty value list.
func NestTags(tags []Tag) NestedTags {
	nested := NestedTags{}
	for _, t := range tags {
		keys, ok := nested[t.Namespace]
		if !ok {
			keys = map[string][]string{}
			nested[t.Namespace] = keys
		}
		if t.Value == "" {
			if _, seen := keys[t.Key]; !seen {
				keys[t.Key] = []string{}
			}
			continue
		}
		keys[t.Key] = append(keys[t.Key], t.Value)
	}
	return nested
}

// DedupeTags collapses duplicate (namespace, key, value) triples, keeping the
// first occurrence order. Host tag sets are stored deduplicated.
func DedupeTags(tags []Tag) []Tag {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[Tag]struct{}, len(tags))
	out := make([]Tag, 0, len(tags))
	for _, t := range tags {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
