// Copyright 2026 The wirej Authors.
// Licensed under Apache 2.0, see LICENCE file for details.

package schema

import (
	"regexp"
	"strings"
	"unicode"
)

var camelBoundaryRx = regexp.MustCompile(`([a-z])([A-Z])`)

// SnakeCase converts a camelCase or PascalCase name to snake_case. An
// underscore is only inserted where a lower case letter is followed by an
// upper case one, so "userID" becomes "user_id" and "HTTPPort" becomes
// "httpport".
func SnakeCase(name string) string {
	return strings.ToLower(camelBoundaryRx.ReplaceAllString(name, "${1}_${2}"))
}

// lowerCamel lowers the leading upper case run of a Go identifier:
// "FirstName" becomes "firstName", "ID" becomes "id" and "HTTPPort" becomes
// "httpPort".
func lowerCamel(name string) string {
	runes := []rune(name)
	for i := 0; i < len(runes) && unicode.IsUpper(runes[i]); i++ {
		// Keep the last capital of a run when it starts the next word.
		if i > 0 && i+1 < len(runes) && unicode.IsLower(runes[i+1]) {
			break
		}
		runes[i] = unicode.ToLower(runes[i])
	}
	return string(runes)
}
