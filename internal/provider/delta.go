package provider

// Delta computes the values to add and remove to turn oldValues into
// newValues. Both results are deduplicated and keep input order.
func Delta(oldValues, newValues []string) (add, remove []string) {
	oldSet := make(map[string]bool, len(oldValues))
	for _, v := range oldValues {
		oldSet[v] = true
	}
	newSet := make(map[string]bool, len(newValues))
	for _, v := range newValues {
		newSet[v] = true
	}

	added := make(map[string]bool)
	for _, v := range newValues {
		if !oldSet[v] && !added[v] {
			add = append(add, v)
			added[v] = true
		}
	}
	removed := make(map[string]bool)
	for _, v := range oldValues {
		if !newSet[v] && !removed[v] {
			remove = append(remove, v)
			removed[v] = true
		}
	}
	return add, remove
}

// Compact drops blank values and duplicates, keeping first occurrences.
func Compact(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// HasInbox reports whether labels contain an inbox membership marker.
func HasInbox(labels []string) bool {
	for _, l := range labels {
		if l == LabelInbox || l == LabelInboxName {
			return true
		}
	}
	return false
}
