package gosearchcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// keyFields is the canonical shape hashed into a key. encoding/json writes map
// keys in sorted order, so the serialization does not depend on the order in
// which filters were supplied.
func keyFields(n Query) map[string]any {
	return map[string]any{
		"cat":            n.Categories,
		"paged":          n.Page,
		"post_type":      n.PostTypes,
		"posts_per_page": n.PerPage,
		"s":              n.Search,
		"tax":            n.Taxonomies,
	}
}

// Key derives the cache key for q within group.
// Format: <group>:search_<hex sha256(canonical JSON)>
//
// q is normalized first, so callers may pass raw queries.
func Key(group string, q Query) string {
	n, _ := Normalize(q)
	return deriveKey(group, n)
}

func deriveKey(group string, n Query) string {
	// only maps, slices, strings and ints; Marshal cannot fail
	canonical, _ := json.Marshal(keyFields(n))
	sum := sha256.Sum256(canonical)
	return group + ":search_" + hex.EncodeToString(sum[:])
}
