// Package normalize implements the Schema Normalizer: it streams a raw
// delimited file, drops rows failing the configured validity predicate, and
// reshapes the survivors into a set of dimension tables plus one fact table
// ready for bulk loading.
//
// Surrogate ids are dense, 1-based, and assigned in first-seen order, so a
// rerun over the same input with the same configuration reproduces the exact
// same tables.
package normalize

import "strings"

// keySep separates natural-key parts when building lookup keys. Unit
// separator is safe for real-world attribute values.
const keySep = "\x1f"

// dimBuilder collects the distinct natural keys of one dimension in
// first-seen order and assigns each a dense 1-based surrogate id.
type dimBuilder struct {
	ids  map[string]int64
	rows [][]any // materialized dimension rows, index = id-1
}

func newDimBuilder() *dimBuilder {
	return &dimBuilder{ids: make(map[string]int64)}
}

// getOrAssign returns the surrogate id for the natural key, assigning the
// next dense id and materializing 'row' on first sight. The id is prepended
// to the stored row by the caller via the placeholder at index 0.
func (b *dimBuilder) getOrAssign(key string, row []any) int64 {
	if id, ok := b.ids[key]; ok {
		return id
	}
	id := int64(len(b.rows) + 1)
	b.ids[key] = id
	row[0] = id
	b.rows = append(b.rows, row)
	return id
}

func (b *dimBuilder) size() int { return len(b.rows) }

// naturalKey joins the already-cleaned key parts into a single map key.
func naturalKey(parts []string) string {
	return strings.Join(parts, keySep)
}
