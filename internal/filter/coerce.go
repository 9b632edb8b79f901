// Copyright 2026 The wirej Authors.
// Licensed under Apache 2.0, see LICENCE file for details.

package filter

import (
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

// kind is the type a filter value was coerced to.
type kind int

const (
	kindString kind = iota
	kindBool
	kindNull
	kindDate
	kindDecimal
	kindDateTime
)

var dateOnlyRx = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// dateTimeLayouts are the ISO 8601 forms accepted for date-time values.
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
}

// coerce converts the raw text of a filter value. The first matching rule
// wins: boolean, null, date, decimal number, date-time, and finally the raw
// string.
func coerce(raw string) (any, kind) {
	switch raw {
	case "true":
		return true, kindBool
	case "false":
		return false, kindBool
	case "null":
		return nil, kindNull
	}
	if dateOnlyRx.MatchString(raw) {
		if t, err := time.Parse(time.DateOnly, raw); err == nil {
			return t, kindDate
		}
	}
	if d, err := decimal.NewFromString(raw); err == nil {
		return d, kindDecimal
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, kindDateTime
		}
	}
	return raw, kindString
}
