package model

// Truncate shortens a message to at most limit bytes, marking the cut with an
// ellipsis. Used everywhere an external message (API body, error text) is
// stored or displayed.
func Truncate(message string, limit int) string {
	if limit <= 3 || len(message) <= limit {
		return message
	}

	return message[:limit-3] + "..."
}
