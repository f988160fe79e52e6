package registration

import "strconv"

// parseInt64 converts a device's string-typed numeric field to int64 for
// JSON bodies that expect a bare number. Device records are always
// fabricated internally with numeric strings, so a parse failure here
// would indicate a Fabricator defect, not bad input; it degrades to 0
// rather than panicking.
func parseInt64(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
