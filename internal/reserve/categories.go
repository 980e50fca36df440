package reserve

import "sort"

// TopCategories returns the n categories with the highest counts, ordered by
// descending count with ties broken alphabetically.
func TopCategories(counts map[string]int, n int) []string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}

	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})

	if n > len(names) {
		n = len(names)
	}
	return names[:n]
}
