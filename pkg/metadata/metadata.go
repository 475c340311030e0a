// Package metadata defines the opaque value tree attached to vectors and
// the capability the core uses to filter by it. The core never constructs
// or inspects a Matcher's internals — per spec.md §4.6/§9, metadata is
// "a tagged tree of {null, bool, number, string, array, object}" and the
// filter predicate arrives from outside as a Matcher.
package metadata

import "encoding/json"

// Value is a JSON-like scalar or container: nil, bool, float64, string,
// []Value or map[string]Value. It is deliberately untyped (any) so the
// core carries no dependency on a particular JSON or schema library.
type Value = any

// Doc is a metadata document: the top-level object attached to a vector.
// A nil Doc means "no metadata."
type Doc map[string]Value

// Matcher is the capability the collection's search path consumes. The
// core only ever calls Matches; it is implemented by whatever filter DSL
// the external transport layer builds (out of scope per spec.md §1).
type Matcher interface {
	Matches(doc Doc) bool
}

// MatcherFunc adapts a plain function to Matcher.
type MatcherFunc func(Doc) bool

func (f MatcherFunc) Matches(doc Doc) bool { return f(doc) }

// Always is a Matcher that accepts every document, used when no filter
// was supplied.
var Always Matcher = MatcherFunc(func(Doc) bool { return true })

// Marshal serializes a Doc for WAL/snapshot payloads. Metadata is opaque
// to the core but still has to cross the wire, so JSON is the one
// concession: it round-trips the {null,bool,number,string,array,object}
// shape exactly and every component in the pack already depends on
// encoding/json for something.
func Marshal(doc Doc) ([]byte, error) {
	if doc == nil {
		return nil, nil
	}
	return json.Marshal(doc)
}

// Unmarshal is the inverse of Marshal. Empty input yields a nil Doc.
func Unmarshal(data []byte) (Doc, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var doc Doc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
