package poll

// Resolve returns the first non-empty value, typically in the order header,
// endpoint option, default.
func Resolve(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ResolveInt returns the first non-zero value
func ResolveInt(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
