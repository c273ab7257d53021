package logits

// TopK writes the indices and values of the k largest elements of x into
// idx and val, ordered from largest to smallest. Ties keep index order, so the
// result is fully determined by the input values. It returns the number of
// entries written, min(k, len(x)). This is an O(V*K) insertion, which suits
// the small k used by beam search.
func TopK(x []float32, k int, idx []int, val []float32) int {
	k = min(k, len(x))
	if k <= 0 {
		return 0
	}
	n := 0
	for i, v := range x {
		pos := n
		for pos > 0 && val[pos-1] < v {
			pos--
		}
		if pos >= k {
			continue
		}
		end := min(n, k-1)
		copy(idx[pos+1:end+1], idx[pos:end])
		copy(val[pos+1:end+1], val[pos:end])
		idx[pos] = i
		val[pos] = v
		if n < k {
			n++
		}
	}
	return n
}

// Argmax returns the index of the maximum value in the slice, preferring the
// lowest index on ties. It panics on an empty slice.
func Argmax(x []float32) int {
	if len(x) == 0 {
		panic("argmax: empty slice")
	}
	bestI := 0
	bestV := x[0]
	for i := 1; i < len(x); i++ {
		if x[i] > bestV {
			bestV = x[i]
			bestI = i
		}
	}
	return bestI
}
