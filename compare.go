package lstore

type Comparator func(a, b Value) int

// ValueComparator orders null before every present value and present
// values numerically.
func ValueComparator(a, b Value) int {
	switch {
	case !a.valid && !b.valid:
		return 0
	case !a.valid:
		return -1
	case !b.valid:
		return 1
	case a.n < b.n:
		return -1
	case a.n > b.n:
		return 1
	}
	return 0
}
