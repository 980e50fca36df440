package utils

// ChunkStrings splits ids into groups of at most size. DynamoDB-style batched
// lookups cap the number of keys per request, so callers chunk before fanning
// out.
func ChunkStrings(ids []string, size int) [][]string {
	var batches [][]string
	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[i:end])
	}
	return batches
}
