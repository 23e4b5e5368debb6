package core

import (
	"strings"
	"time"
)

// KeyDateLayout is the day-only layout used for the date part of a Key.
const KeyDateLayout = "2006-01-02"

// Key is the composite identity of a work-log fact: one member, one project,
// one work type, one calendar day. Comparison is exact and case-sensitive.
type Key struct {
	Date     string // YYYY-MM-DD
	Member   string
	Project  string
	WorkType string
}

// NewKey builds a Key, truncating date to its calendar day.
func NewKey(date time.Time, member, project, workType string) Key {
	return Key{
		Date:     date.Format(KeyDateLayout),
		Member:   member,
		Project:  project,
		WorkType: workType,
	}
}

// String renders the key as date|member|project|work-type.
func (k Key) String() string {
	return strings.Join([]string{k.Date, k.Member, k.Project, k.WorkType}, "|")
}

// Day parses the date part back to a time at midnight UTC.
func (k Key) Day() (time.Time, error) {
	return time.Parse(KeyDateLayout, k.Date)
}

// KeySet is a set of composite keys.
// The zero value is not usable; use NewKeySet.
type KeySet map[Key]struct{}

// NewKeySet creates a set containing keys.
func NewKeySet(keys ...Key) KeySet {
	s := make(KeySet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Has reports whether k is in the set.
func (s KeySet) Has(k Key) bool {
	_, ok := s[k]
	return ok
}

// Add inserts k and reports whether it was newly added.
// A false return means k was already seen.
func (s KeySet) Add(k Key) bool {
	if _, ok := s[k]; ok {
		return false
	}
	s[k] = struct{}{}
	return true
}

// Len returns the number of keys in the set.
func (s KeySet) Len() int { return len(s) }

// batchDeduper rejects repeats of a composite key within one import.
// The first occurrence wins.
type batchDeduper struct {
	seen KeySet
}

func newBatchDeduper() *batchDeduper {
	return &batchDeduper{seen: NewKeySet()}
}

// admit returns true if rec is the first record with its key.
func (d *batchDeduper) admit(rec Record) bool {
	return d.seen.Add(rec.Key())
}

// partitionByStore splits accepted records into those to insert and those
// whose key is already persisted, preserving relative order.
func partitionByStore(accepted []Record, existing KeySet) (insert []Record, duplicates []Rejected) {
	insert = make([]Record, 0, len(accepted))
	for _, rec := range accepted {
		if existing.Has(rec.Key()) {
			duplicates = append(duplicates, Rejected{
				Position: rec.Position,
				Reason:   ReasonDuplicateInDB,
				Fields:   rec.Raw,
			})
			continue
		}
		insert = append(insert, rec)
	}
	return insert, duplicates
}
