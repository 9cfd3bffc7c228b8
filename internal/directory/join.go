package directory

import (
	"log/slog"
	"maps"
)

type joinKey struct {
	attribute string
	value     string
}

// ResolveJoins resolves attribute values that reference other directory
// entries. Each distinct (attribute, value) pair is fetched at most once
// per run; cache hits hand out copies since callers may mutate the
// sub-attribute maps. A failed nested fetch drops the value with a warning
// instead of aborting the run.
func ResolveJoins(s Searcher, entries []Entry, joins map[string]Query) {
	if len(joins) == 0 {
		return
	}

	cache := make(map[joinKey]map[string][]string)
	for i := range entries {
		entry := &entries[i]
		for attribute, values := range entry.Attributes {
			join, ok := joins[attribute]
			if !ok {
				continue
			}
			resolved := make([]Value, 0, len(values))
			for _, value := range values {
				sub, ok := resolveValue(s, cache, attribute, value.Raw, join)
				if !ok {
					continue
				}
				resolved = append(resolved, Value{Raw: value.Raw, Sub: sub})
			}
			entry.Attributes[attribute] = resolved
		}
	}
}

func resolveValue(s Searcher, cache map[joinKey]map[string][]string, attribute, value string, join Query) (map[string][]string, bool) {
	key := joinKey{attribute: attribute, value: value}
	if sub, hit := cache[key]; hit {
		copied := make(map[string][]string, len(sub))
		maps.Copy(copied, sub)
		return copied, true
	}

	sub := map[string][]string{"dn": {value}}

	// Without attributes to fetch, the join only tags the value as a DN.
	if len(join.Attributes) == 0 {
		cache[key] = sub
		return sub, true
	}

	join.Base = value
	subEntries, err := Fetch(s, join)
	if err != nil {
		slog.Warn("Ignoring unresolvable join value.", "value", value, "err", err)
		return nil, false
	}
	if len(subEntries) == 0 {
		slog.Warn("Ignoring unresolvable join value.", "value", value, "err", "no entry found")
		return nil, false
	}
	for name, values := range subEntries[0].Attributes {
		if name == "dn" {
			continue
		}
		raws := make([]string, 0, len(values))
		for _, v := range values {
			raws = append(raws, v.Raw)
		}
		sub[name] = raws
	}
	cache[key] = sub
	return sub, true
}
