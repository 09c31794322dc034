// Package docstore defines the document store contract the session engine
// depends on. Backends live under internal/infra.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"
)

// FieldID is the key under which backends expose the store-assigned id.
const FieldID = "id"

// ErrNotFound is returned by Update when no document has the given id.
var ErrNotFound = errors.New("document not found")

// Document is a schemaless record. Values are JSON-like: strings, numbers,
// bools, nil, time.Time, []any and map[string]any.
type Document map[string]any

// ID returns the store-assigned id, or an empty string.
func (d Document) ID() string {
	id, _ := d[FieldID].(string)
	return id
}

// Filter is an equality predicate on a top-level field.
type Filter struct {
	Field string
	Value any
}

// Eq builds an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// ChangeFunc receives the full current set of matching documents.
type ChangeFunc func(docs []Document)

// Unsubscribe releases a subscription. It is safe to call more than once.
type Unsubscribe func()

// Store is the minimal document store surface: equality queries, inserts,
// shallow updates and live subscriptions. No cross-document transactions.
type Store interface {
	Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
	Insert(ctx context.Context, collection string, doc Document) (string, error)
	Update(ctx context.Context, collection, id string, patch Document) error
	Subscribe(ctx context.Context, collection string, filters []Filter, onChange ChangeFunc) (Unsubscribe, error)
}

// Matches reports whether doc satisfies every filter.
func Matches(doc Document, filters []Filter) bool {
	for _, f := range filters {
		v, ok := doc[f.Field]
		if !ok || !equal(v, f.Value) {
			return false
		}
	}
	return true
}

func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	if reflect.TypeOf(a).Comparable() && reflect.TypeOf(b).Comparable() && a == b {
		return true
	}
	// JSON round trips turn every number into float64.
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// Clone deep-copies a document so callers never alias store state.
func Clone(doc Document) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Document:
		return Clone(t)
	case map[string]any:
		return map[string]any(Clone(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case *int:
		if t == nil {
			return nil
		}
		n := *t
		return &n
	case *time.Time:
		if t == nil {
			return nil
		}
		tm := *t
		return &tm
	default:
		return v
	}
}
