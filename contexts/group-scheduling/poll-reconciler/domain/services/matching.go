package services

// FindColumn locates the attendance column for an option label: exact,
// case-sensitive comparison against the headers scanned left to right, first
// match wins. The bool result is false when no header matches, which callers
// treat as a skip rather than an error so polls can carry auxiliary labels
// with no attendance column.
func FindColumn(label string, headers []string) (int, bool) {
	for i, header := range headers {
		if header == label {
			return i, true
		}
	}
	return 0, false
}
