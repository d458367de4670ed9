package upstream

// chunks partitions ids into fixed-size batches, preserving order. The last
// batch may be short. Consumers stop iterating once an early-stop condition
// (accumulated results >= limit) fires.
func chunks(ids []string, size int) [][]string {
	if size <= 0 || len(ids) == 0 {
		return nil
	}
	out := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}
