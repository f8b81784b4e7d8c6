package main

// shortID truncates a position ID for table display, tolerating IDs
// shorter than 8 characters
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
