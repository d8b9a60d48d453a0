package handler

import "strconv"

// formatUploadLimit renders a byte limit for error messages, rounding up
// to whole KB below one MB.
func formatUploadLimit(bytes int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
	)
	switch {
	case bytes <= 0:
		return "0B"
	case bytes < mb:
		return strconv.FormatInt((bytes+kb-1)/kb, 10) + "KB"
	default:
		return strconv.FormatInt(bytes/mb, 10) + "MB"
	}
}
