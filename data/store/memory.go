package store

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore implements Store on plain maps. It exists for tests and
// local runs without a mongo instance; documents round-trip through
// bson so typed models decode exactly as they would off the driver.
//
// Filter support covers what this codebase issues: top-level equality
// plus $lte, $ne, $in and $exists. Updates support $set, $setOnInsert
// and $pull.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]M
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]M)}
}

func toDoc(v any) (M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeDoc(m M, out any) error {
	raw, err := bson.Marshal(m)
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, out)
}

// norm flattens bson scalar variants so equality and range checks see
// one representation per value class.
func norm(v any) any {
	switch t := v.(type) {
	case primitive.DateTime:
		return float64(t.Time().UnixMilli())
	case time.Time:
		return float64(t.UnixMilli())
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case float64:
		return t
	case primitive.A:
		return []any(t)
	}
	return v
}

func eq(a, b any) bool {
	return reflect.DeepEqual(norm(a), norm(b))
}

func lte(a, b any) bool {
	af, aok := norm(a).(float64)
	bf, bok := norm(b).(float64)
	if aok && bok {
		return af <= bf
	}
	return false
}

func matchField(val any, cond any) bool {
	condMap, ok := cond.(M)
	if !ok || !hasOperator(condMap) {
		return eq(val, cond)
	}
	for op, arg := range condMap {
		switch op {
		case "$lte":
			if !lte(val, arg) {
				return false
			}
		case "$ne":
			if eq(val, arg) {
				return false
			}
		case "$exists":
			want, _ := arg.(bool)
			if (val != nil) != want {
				return false
			}
		case "$in":
			if !inList(val, arg) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func hasOperator(m M) bool {
	for k := range m {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}
	return false
}

func inList(val any, arg any) bool {
	items, ok := norm(arg).([]any)
	if !ok {
		if ss, sok := arg.([]string); sok {
			for _, s := range ss {
				if eq(val, s) {
					return true
				}
			}
		}
		return false
	}
	for _, it := range items {
		if eq(val, it) {
			return true
		}
	}
	return false
}

func match(doc M, filter M) bool {
	for k, cond := range filter {
		if !matchField(doc[k], cond) {
			return false
		}
	}
	return true
}

func applyUpdate(doc M, update M, isInsert bool) {
	for op, arg := range update {
		fields, ok := arg.(M)
		if !ok {
			continue
		}
		switch op {
		case "$set":
			for k, v := range fields {
				doc[k] = v
			}
		case "$setOnInsert":
			if isInsert {
				for k, v := range fields {
					doc[k] = v
				}
			}
		case "$pull":
			for k, v := range fields {
				// Absent or non-array fields are left untouched.
				if _, ok := norm(doc[k]).([]any); ok {
					doc[k] = pullFrom(doc[k], v)
				}
			}
		}
	}
}

func pullFrom(field any, v any) any {
	items, ok := norm(field).([]any)
	if !ok {
		return field
	}
	out := make([]any, 0, len(items))
	for _, it := range items {
		if !eq(it, v) {
			out = append(out, it)
		}
	}
	return out
}

func (s *MemoryStore) FindOne(ctx context.Context, collection string, filter M, out any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, doc := range s.data[collection] {
		if match(doc, filter) {
			return decodeDoc(doc, out)
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) Find(ctx context.Context, collection string, filter M, out any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	outv := reflect.ValueOf(out)
	if outv.Kind() != reflect.Ptr || outv.Elem().Kind() != reflect.Slice {
		return errors.New("memory store: Find out must be a pointer to slice")
	}
	slice := outv.Elem()
	slice.Set(reflect.MakeSlice(slice.Type(), 0, 0))
	for _, doc := range s.data[collection] {
		if !match(doc, filter) {
			continue
		}
		elem := reflect.New(slice.Type().Elem())
		if err := decodeDoc(doc, elem.Interface()); err != nil {
			return err
		}
		slice.Set(reflect.Append(slice, elem.Elem()))
	}
	return nil
}

func (s *MemoryStore) InsertOne(ctx context.Context, collection string, doc any) error {
	m, err := toDoc(doc)
	if err != nil {
		return err
	}
	if _, ok := m["_id"]; !ok {
		m["_id"] = primitive.NewObjectID()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[collection] = append(s.data[collection], m)
	return nil
}

func (s *MemoryStore) UpdateOne(ctx context.Context, collection string, filter M, update M) error {
	return s.update(collection, filter, update, false, false)
}

func (s *MemoryStore) UpdateMany(ctx context.Context, collection string, filter M, update M) error {
	return s.update(collection, filter, update, true, false)
}

func (s *MemoryStore) Upsert(ctx context.Context, collection string, filter M, update M) error {
	return s.update(collection, filter, update, false, true)
}

func (s *MemoryStore) update(collection string, filter M, update M, many, upsert bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := false
	for _, doc := range s.data[collection] {
		if !match(doc, filter) {
			continue
		}
		applyUpdate(doc, update, false)
		matched = true
		if !many {
			break
		}
	}
	if !matched && upsert {
		doc := M{"_id": primitive.NewObjectID()}
		for k, v := range filter {
			if cm, ok := v.(M); ok && hasOperator(cm) {
				continue
			}
			doc[k] = v
		}
		applyUpdate(doc, update, true)
		s.data[collection] = append(s.data[collection], doc)
	}
	return nil
}

func (s *MemoryStore) DeleteOne(ctx context.Context, collection string, filter M) error {
	return s.delete(collection, filter, false)
}

func (s *MemoryStore) DeleteMany(ctx context.Context, collection string, filter M) error {
	return s.delete(collection, filter, true)
}

func (s *MemoryStore) delete(collection string, filter M, many bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make([]M, 0, len(s.data[collection]))
	deleted := false
	for _, doc := range s.data[collection] {
		if match(doc, filter) && (many || !deleted) {
			deleted = true
			continue
		}
		kept = append(kept, doc)
	}
	s.data[collection] = kept
	return nil
}

// Count is a test convenience, not part of the Store contract.
func (s *MemoryStore) Count(collection string, filter M) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, doc := range s.data[collection] {
		if match(doc, filter) {
			n++
		}
	}
	return n
}
