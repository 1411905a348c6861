package embedding

// meanPool averages the token rows of hidden (tokens x dims, row-major) whose mask is 1.
// With no unmasked token the result is the zero vector.
func meanPool(hidden []float32, mask []int64, dims int) []float32 {
	out := make([]float32, dims)
	var n float32
	for t, m := range mask {
		if m == 0 || (t+1)*dims > len(hidden) {
			continue
		}
		row := hidden[t*dims : (t+1)*dims]
		for d, v := range row {
			out[d] += v
		}
		n++
	}
	if n < 1 {
		n = 1
	}
	for d := range out {
		out[d] /= n
	}
	return out
}
