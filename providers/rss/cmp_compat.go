package rss

// cmpOr returns the first of its arguments that is not the zero value, or
// the zero value if there is none. It mirrors cmp.Or from Go 1.22, which
// the local Go 1.21 toolchain does not provide.
func cmpOr[T comparable](vals ...T) T {
	var zero T
	for _, v := range vals {
		if v != zero {
			return v
		}
	}
	return zero
}
