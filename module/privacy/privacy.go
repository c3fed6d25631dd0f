package privacy

import (
	"github.com/ApparyllisOrg/SimplyPluralApi-sub000/data/store"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Privacy is the tagged union of the two document privacy models. A
// document carries exactly one: bucket mode when a bucket set is
// present (even an empty one), legacy private/preventTrusted otherwise.
// FromDoc is the only place the discriminator is read.
type Privacy struct {
	BucketMode bool
	Buckets    []string

	Private        bool
	PreventTrusted bool
}

// FromDoc reads the privacy-relevant attributes off a loose document.
func FromDoc(doc store.M) Privacy {
	if raw, ok := doc["buckets"]; ok && raw != nil {
		return Privacy{BucketMode: true, Buckets: toStrings(raw)}
	}
	return Privacy{
		Private:        boolField(doc, "private"),
		PreventTrusted: boolField(doc, "preventTrusted"),
	}
}

// FullyPrivate documents are owner-only under either reading of the
// legacy model.
func (p Privacy) FullyPrivate() bool {
	return !p.BucketMode && p.Private && p.PreventTrusted
}

// Unrestricted reports a document with no sharing restriction at all.
func (p Privacy) Unrestricted() bool {
	return !p.BucketMode && !p.Private
}

// Intersects reports whether the friend's assigned buckets overlap the
// document's bucket tags.
func (p Privacy) Intersects(friendBuckets []string) bool {
	for _, b := range p.Buckets {
		for _, f := range friendBuckets {
			if b == f {
				return true
			}
		}
	}
	return false
}

func boolField(doc store.M, key string) bool {
	v, _ := doc[key].(bool)
	return v
}

func toStrings(raw any) []string {
	switch vals := raw.(type) {
	case []string:
		return vals
	case []any:
		return anysToStrings(vals)
	case primitive.A:
		return anysToStrings(vals)
	}
	return nil
}

func anysToStrings(vals []any) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
