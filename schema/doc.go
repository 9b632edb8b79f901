// Copyright 2026 The wirej Authors.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package schema describes the entities and composite arguments used by wirej.

An Entity lists the fields of a Go struct together with the name used to refer
to them in filter and sort expressions and their optional column alias. The
descriptor is built once, when operations are registered, and is then used to
resolve filter fields to columns and to expand composite arguments into named
query parameters without inspecting the type again.

Field names come from the `json` tag when present, otherwise from the Go field
name with a lower case first letter. Column aliases come from the `db` tag:

	type User struct {
		ID        int64  `db:"id"`
		Status    string `db:"status_code"`
		FirstName string
	}

Here the filter field "status" resolves to the column "status_code", and an
expanded User binds the parameters "id", "status_code" and "first_name".
*/
package schema
