package cache

// KeyEligibility returns the cache key for a user's pricing eligibility.
func KeyEligibility(userID string) string {
	return "eligibility:" + userID
}
