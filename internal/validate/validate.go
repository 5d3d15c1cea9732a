// Package validate holds request field rules shared by the HTTP handlers.
// Each check returns a user-facing message, or "" when the value is valid.
package validate

import "fmt"

const (
	MaxTitleLength       = 500
	MaxDescriptionLength = 5000
)

var contentTypes = map[string]bool{
	"video/mp4":       true,
	"video/webm":      true,
	"video/quicktime": true,
}

var visibilities = map[string]bool{
	"PUBLIC":   true,
	"UNLISTED": true,
	"PRIVATE":  true,
}

func checkLen(value string, max int, field string) string {
	if len(value) > max {
		return fmt.Sprintf("%s must be %d characters or fewer", field, max)
	}
	return ""
}

func Title(s string) string {
	if s == "" {
		return "title is required"
	}
	return checkLen(s, MaxTitleLength, "title")
}

func Description(s string) string { return checkLen(s, MaxDescriptionLength, "description") }

func ContentType(s string) string {
	if !contentTypes[s] {
		return "only video/mp4, video/webm and video/quicktime uploads are supported"
	}
	return ""
}

func Visibility(s string) string {
	if !visibilities[s] {
		return "visibility must be PUBLIC, UNLISTED or PRIVATE"
	}
	return ""
}
