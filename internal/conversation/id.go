// Package conversation derives canonical conversation identifiers.
// A conversation is not a stored entity: two users map to exactly one
// id regardless of which side initiates.
package conversation

// DeriveID returns the canonical key for the pair of participant ids:
// the lexicographically smaller id first, joined with an underscore.
func DeriveID(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "_" + b
}
