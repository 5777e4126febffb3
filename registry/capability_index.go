package registry

import "strings"

// capabilityIndex accelerates FindByCapability lookups. Capability strings
// are recognized in both flat form ("search") and structured dotted form
// ("tools.web.search", spec §3) without the caller distinguishing between
// them: an exact match on the index always wins, and a query is additionally
// treated as a category/domain prefix so "tools.web" matches every
// capability nested under it.
type capabilityIndex struct {
	// exact maps a full capability string to the set of component IDs that
	// declare it verbatim.
	exact map[string]map[string]struct{}

	// prefixes maps a dotted prefix (every strict ancestor of a structured
	// capability, e.g. "tools" and "tools.web" for "tools.web.search") to
	// the set of component IDs holding a capability under that prefix.
	prefixes map[string]map[string]struct{}
}

func newCapabilityIndex() *capabilityIndex {
	return &capabilityIndex{
		exact:    make(map[string]map[string]struct{}),
		prefixes: make(map[string]map[string]struct{}),
	}
}

func (idx *capabilityIndex) add(id string, capabilities []string) {
	for _, cap := range capabilities {
		idx.addOne(id, cap)
	}
}

func (idx *capabilityIndex) addOne(id, cap string) {
	if idx.exact[cap] == nil {
		idx.exact[cap] = make(map[string]struct{})
	}
	idx.exact[cap][id] = struct{}{}

	parts := strings.Split(cap, ".")
	for i := 1; i < len(parts); i++ {
		prefix := strings.Join(parts[:i], ".")
		if idx.prefixes[prefix] == nil {
			idx.prefixes[prefix] = make(map[string]struct{})
		}
		idx.prefixes[prefix][id] = struct{}{}
	}
}

func (idx *capabilityIndex) remove(id string, capabilities []string) {
	for _, cap := range capabilities {
		if set, ok := idx.exact[cap]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(idx.exact, cap)
			}
		}
		parts := strings.Split(cap, ".")
		for i := 1; i < len(parts); i++ {
			prefix := strings.Join(parts[:i], ".")
			if set, ok := idx.prefixes[prefix]; ok {
				delete(set, id)
				if len(set) == 0 {
					delete(idx.prefixes, prefix)
				}
			}
		}
	}
}

// find returns the set of component IDs whose capability set contains cap
// exactly, or nests something under cap as a structured prefix.
func (idx *capabilityIndex) find(cap string) map[string]struct{} {
	result := make(map[string]struct{})
	for id := range idx.exact[cap] {
		result[id] = struct{}{}
	}
	for id := range idx.prefixes[cap] {
		result[id] = struct{}{}
	}
	return result
}
