package schema

import (
	"strings"
	"unicode"
)

// TagName is the struct tag read by the registry
const TagName = "orm"

type fieldTag struct {
	skip        bool
	name        string
	column      string
	annotations []Annotation
}

// parseTag reads an orm tag such as `orm:"has_many,fetch,column=addr_id"`.
// Bare words become annotations; key=value pairs become annotations with
// one argument, and name/column also override the defaults.
func parseTag(tag string) fieldTag {
	var ft fieldTag
	if tag == "-" {
		ft.skip = true
		return ft
	}

	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, hasValue := strings.Cut(part, "=")
		key = strings.TrimSpace(key)
		if !hasValue {
			ft.annotations = append(ft.annotations, Annotation{Name: key})
			continue
		}
		value = strings.TrimSpace(value)
		switch key {
		case "name":
			ft.name = value
		case "column":
			ft.column = value
		}
		ft.annotations = append(ft.annotations, Annotation{Name: key, Args: []string{value}})
	}
	return ft
}

// lowerCamel converts a Go field name to its path segment form:
// FirstName -> firstName, ID -> id, URLPath -> urlPath
func lowerCamel(s string) string {
	runes := []rune(s)
	n := 0
	for n < len(runes) && unicode.IsUpper(runes[n]) {
		n++
	}
	switch {
	case n == 0:
		return s
	case n == len(runes):
		return strings.ToLower(s)
	case n > 1:
		n--
	}
	for i := 0; i < n; i++ {
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}

// SnakeCase converts a name to snake_case
func SnakeCase(s string) string {
	var result []rune
	runes := []rune(s)

	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			if unicode.IsLower(prev) || unicode.IsDigit(prev) {
				result = append(result, '_')
			} else if i+1 < len(runes) && unicode.IsLower(runes[i+1]) {
				result = append(result, '_')
			}
		}
		result = append(result, unicode.ToLower(r))
	}
	return string(result)
}

// Pluralize adds simple English pluralization
func Pluralize(s string) string {
	switch {
	case strings.HasSuffix(s, "s"), strings.HasSuffix(s, "x"), strings.HasSuffix(s, "z"):
		return s + "es"
	case strings.HasSuffix(s, "y") && len(s) > 1 && !strings.ContainsRune("aeiou", rune(s[len(s)-2])):
		return s[:len(s)-1] + "ies"
	default:
		return s + "s"
	}
}
