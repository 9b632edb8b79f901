/*
Wirej runs SQL kept in template files. Templates use named placeholders, are
extended at run time with filters, sorting and pagination supplied by the
caller, and are exposed as named operations whose arguments are bound to the
placeholders by name.

# Templates

A template is the text of one SQL statement, stored under a key such as
"User/findById.sql". Keys are resolved by a templates.Source: templates.Dir
reads a directory, templates.NewFS reads an fs.FS such as an embed.FS and
templates.Map holds templates in memory. Parsed templates are kept in a
bounded cache which can be invalidated with DB.Invalidate, or automatically
when the files change with templates.Watch.

Placeholders are written as a colon followed by a name:

	SELECT * FROM users WHERE id = :id AND created > :since

Placeholders inside quoted strings, quoted identifiers and comments are
ignored, and so are PostgreSQL casts such as "created::date". When the
statement is run every placeholder is replaced by the positional marker of
the SQL dialect ("?" or "$n") and bound to the value set for its name. A
placeholder without a value is bound to NULL, or is an error if the DB was
created with WithStrictPlaceholders.

Some names are reserved:

	:filters          replaced by the compiled filter expression
	:sorting          replaced by the compiled sort expression
	:search           bound to the search term of the filters, as "%term%"
	:pageSize         bound to the page size
	:initialPosition  bound to the offset of the first row of the page

# Filters and sorting

Filters are written in a small query language. Atoms have the form
field<op>value where op is one of ==, !=, >=, >, <=, <, =in= and =out=.
Atoms separated by "," are combined with OR, and groups separated by ";" are
combined with AND:

	status==active,status==pending;age>=18;created==2024-01-02;id=in=1|2|3

compiles to

	(status = :filter_value_1 OR status = :filter_value_2) AND (age >= :filter_value_3)
	AND (DATE(created) = :filter_value_4) AND (id IN (:filter_value_5, :filter_value_6, :filter_value_7))

Values are converted to booleans, NULL, dates, decimal numbers or date-times
when they have that form, and are otherwise bound as strings. Atoms that
cannot be compiled are dropped. Field names are resolved to columns with the
entity of the operation, see package schema.

Sort expressions list field==ASC or field==DESC terms separated by ";".

If the template reads "WHERE :filters" the compiled expression replaces the
placeholder as is, and "1 = 1" is used if there are no filters. Otherwise
the expression is prefixed with "WHERE" or "AND" depending on whether the
template has a WHERE clause already.

# Statements

A Statement is created from a template with DB.Statement, has its parameters
set with SetParameter and is run once with one of Result, ResultList,
SingleValue, SingleValueList, Execute, or AddBatch followed by ExecuteBatch.
Every run releases the connection and any prepared statement, even when it
fails. A statement that is not run must be closed with Close.

# Repositories

A Repository dispatches calls by operation name. An Operation names its
template, declares its parameters and the shape of its result:

	repo, err := wirej.NewRepository(db,
		wirej.NewOperation("findByStatus", "User/findByStatus.sql").
			WithParams(wirej.ValueParam("status"), wirej.FiltersParam("filters"), wirej.PaginationParam("page")).
			Returning(wirej.Many(userEntity)),
	)
	users, err := wirej.Call[[]User](ctx, repo, "findByStatus", "active", filters, page)

Operations whose name starts with "get" or "find" fetch rows, operations
whose name contains "count" fetch a single value, and other operations are
executed. Arguments are bound under the snake_case form of their parameter
name, or its alias. Struct arguments are expanded into one parameter per
field, and batch operations run their statement once per element of their
list arguments.

Operations can also be declared in a YAML configuration file loaded with
LoadConfig and opened with Open.
*/
package wirej
