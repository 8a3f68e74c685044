package bytecode

// maxLoad is the load factor that triggers a rehash. Count is compared
// against capacity before every insert.
const maxLoad = 0.75

// Entry is a single hash table bucket.
//
// Three states are possible:
//   - empty:     key == nil, value is nil
//   - live:      key != nil
//   - tombstone: key == nil, value is true
//
// Tombstones are left behind by Delete so probe chains stay intact;
// they count toward the load factor and are reusable by Set.
type Entry struct {
	Key   *ObjString
	Value Value
}

// Table is an open-addressing hash table with linear probing, keyed by
// interned strings. It backs both the heap's string interning and the
// VM's global variables. The table never owns its keys; key lifetime
// belongs to the heap's object list.
type Table struct {
	// count is the number of live entries plus tombstones.
	count   int
	entries []Entry
}

// NewTable returns an empty table. Buckets are allocated lazily on the
// first insert.
func NewTable() *Table {
	return &Table{}
}

// Count returns the number of live entries plus tombstones.
func (t *Table) Count() int { return t.count }

// Capacity returns the current bucket count.
func (t *Table) Capacity() int { return len(t.entries) }

func growCapacity(capacity int) int {
	if capacity < 8 {
		return 8
	}
	return capacity * 2
}

// findEntry locates the bucket for key: the live entry holding it, or
// the bucket an insert should use. The first tombstone seen on the
// probe is remembered and preferred for insertion, but a live match
// further along the chain still wins.
func findEntry(entries []Entry, key *ObjString) *Entry {
	index := key.Hash % uint32(len(entries))
	var tombstone *Entry

	for {
		entry := &entries[index]

		if entry.Key == nil {
			if entry.Value.IsNil() {
				// Empty bucket: the key is not present.
				if tombstone != nil {
					return tombstone
				}
				return entry
			}
			if tombstone == nil {
				tombstone = entry
			}
		} else if entry.Key == key {
			return entry
		}

		index = (index + 1) % uint32(len(entries))
	}
}

// adjustCapacity rehashes every live entry into a bucket array of the
// given capacity. Tombstones are dropped, so count is recomputed.
func (t *Table) adjustCapacity(capacity int) {
	entries := make([]Entry, capacity)

	t.count = 0
	for i := range t.entries {
		entry := &t.entries[i]
		if entry.Key == nil {
			continue
		}

		dest := findEntry(entries, entry.Key)
		dest.Key = entry.Key
		dest.Value = entry.Value
		t.count++
	}

	t.entries = entries
}

// Set inserts or updates key. It reports whether the key was absent
// from the table before the call.
func (t *Table) Set(key *ObjString, value Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*maxLoad {
		t.adjustCapacity(growCapacity(len(t.entries)))
	}

	entry := findEntry(t.entries, key)
	isNewKey := entry.Key == nil

	// A reused tombstone is already included in count.
	if isNewKey && entry.Value.IsNil() {
		t.count++
	}

	entry.Key = key
	entry.Value = value

	return isNewKey
}

// Get returns the value stored for key.
func (t *Table) Get(key *ObjString) (Value, bool) {
	if t.count == 0 {
		return NilVal(), false
	}

	entry := findEntry(t.entries, key)
	if entry.Key == nil {
		return NilVal(), false
	}

	return entry.Value, true
}

// Delete removes key by turning its bucket into a tombstone, keeping
// the probe chain through it alive. It reports whether the key had
// been present.
func (t *Table) Delete(key *ObjString) bool {
	if t.count == 0 {
		return false
	}

	entry := findEntry(t.entries, key)
	if entry.Key == nil {
		return false
	}

	entry.Key = nil
	entry.Value = BoolVal(true)

	return true
}

// AddAll copies every live entry of from into t.
func (t *Table) AddAll(from *Table) {
	for i := range from.entries {
		entry := &from.entries[i]
		if entry.Key != nil {
			t.Set(entry.Key, entry.Value)
		}
	}
}

// FindString is the interning probe: it looks a string up by contents
// rather than by reference. Length and hash are compared before bytes.
// Tombstones are skipped; an empty bucket ends the probe.
func (t *Table) FindString(chars string, hash uint32) *ObjString {
	if t.count == 0 {
		return nil
	}

	index := hash % uint32(len(t.entries))
	for {
		entry := &t.entries[index]

		if entry.Key == nil {
			if entry.Value.IsNil() {
				return nil
			}
		} else if len(entry.Key.Chars) == len(chars) &&
			entry.Key.Hash == hash &&
			entry.Key.Chars == chars {
			return entry.Key
		}

		index = (index + 1) % uint32(len(t.entries))
	}
}

// Reset empties the table, dropping its buckets.
func (t *Table) Reset() {
	t.count = 0
	t.entries = nil
}
