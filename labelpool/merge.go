package labelpool

// Merge appends ids to pool, dropping any id already present in pool or
// earlier in ids. The position of an id is fixed the first time it
// appears; pool is not modified.
func Merge(pool, ids []string) []string {
	out := make([]string, 0, len(pool)+len(ids))
	seen := make(map[string]struct{}, len(pool)+len(ids))
	for _, list := range [][]string{pool, ids} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
