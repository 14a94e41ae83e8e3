package cache

// index maps a label (tag or dependency) to the set of keys carrying it.
// Indices are derived from entry metadata and are only touched under the
// cache write lock, together with the entry store they mirror.
type index map[string]map[string]struct{}

func newIndex() index {
	return make(index)
}

func (ix index) add(label, key string) {
	keys, ok := ix[label]
	if !ok {
		keys = make(map[string]struct{})
		ix[label] = keys
	}
	keys[key] = struct{}{}
}

// remove drops the key from the label's set and removes the set itself
// when it empties, so no label dangles after its last member is gone
func (ix index) remove(label, key string) {
	keys, ok := ix[label]
	if !ok {
		return
	}
	delete(keys, key)
	if len(keys) == 0 {
		delete(ix, label)
	}
}

// collect unions the key sets of the given labels, deduplicated
func (ix index) collect(labels []string) []string {
	seen := make(map[string]struct{})
	var keys []string
	for _, label := range labels {
		for key := range ix[label] {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	return keys
}
