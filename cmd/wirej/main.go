// Copyright 2026 The wirej Authors.
// Licensed under Apache 2.0, see LICENCE file for details.

// wirej checks template directories and shows the SQL compiled from filter
// and sort expressions.
//
//	wirej check -c wirej.yaml
//	wirej compile -d postgres -f 'status==active,age>=18' -s 'id==DESC'
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/Gergilcan/wirej"
	"github.com/Gergilcan/wirej/connector"
	"github.com/Gergilcan/wirej/dialect"
	"github.com/Gergilcan/wirej/internal/filter"
	"github.com/Gergilcan/wirej/schema"
	"github.com/Gergilcan/wirej/templates"
)

const usage = `usage: wirej <command> [flags]

commands:
  check    parse every template of the configured directory
  compile  print the SQL compiled from filter and sort expressions
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command in args and returns the exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	var err error
	switch args[0] {
	case "check":
		err = check(ctx, args[1:], stdout, stderr)
	case "compile":
		err = compile(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n%s", args[0], usage)
		return 2
	}
	switch {
	case errors.Is(err, pflag.ErrHelp):
		return 0
	case err != nil:
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

// check parses every template below the configured directory and the
// templates of the configured operations. Unless offline, the database is
// opened and pinged first.
func check(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("check", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.StringP("config", "c", "wirej.yaml", "configuration file")
	offline := fs.Bool("offline", false, "do not connect to the database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unrecognized args: %s", strings.Join(fs.Args(), " "))
	}

	cfg, err := wirej.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if cfg.Templates.Dir == "" {
		return fmt.Errorf("no templates directory in %s", *configPath)
	}
	logger, err := cfg.Log.NewLogger(stderr)
	if err != nil {
		return err
	}

	var sqldb *sql.DB
	var driver string
	if *offline {
		// sql.Open does not connect.
		if driver, err = cfg.Database.DriverName(); err != nil {
			return err
		}
		sqldb, err = sql.Open(driver, "")
	} else {
		sqldb, driver, err = connector.Open(ctx, cfg.Database)
	}
	if err != nil {
		return err
	}
	defer sqldb.Close()

	source := templates.Dir(cfg.Templates.Dir)
	db, err := wirej.NewDB(sqldb, driver, source, wirej.WithLogger(logger))
	if err != nil {
		return err
	}
	keys, err := source.Keys()
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, k := range keys {
		seen[k] = true
	}
	for _, op := range cfg.Operations {
		if !seen[op.Template] {
			keys = append(keys, op.Template)
			seen[op.Template] = true
		}
	}
	return checkTemplates(keys, db.Placeholders, stdout)
}

// checkTemplates reports the placeholders of every template in keys. It
// fails if any template cannot be loaded.
func checkTemplates(keys []string, placeholders func(string) ([]string, error), stdout io.Writer) error {
	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	failed := 0
	for _, key := range keys {
		names, err := placeholders(key)
		if err != nil {
			failed++
			fmt.Fprintf(w, "FAIL\t%s\t%v\n", key, err)
			continue
		}
		fmt.Fprintf(w, "ok\t%s\t%s\n", key, strings.Join(names, " "))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d templates failed", failed, len(keys))
	}
	return nil
}

// compile prints the clauses and parameters compiled from a filter and a
// sort expression.
func compile(args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("compile", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	driver := fs.StringP("dialect", "d", "sqlite", "SQL dialect: sqlite, postgres or mysql")
	filters := fs.StringP("filters", "f", "", "filter expression")
	sorting := fs.StringP("sort", "s", "", "sort expression")
	columns := fs.StringToStringP("column", "C", nil, "field=column mappings")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unrecognized args: %s", strings.Join(fs.Args(), " "))
	}
	d, ok := dialect.ForDriver(*driver)
	if !ok {
		return fmt.Errorf("unknown dialect %q", *driver)
	}

	var entity *schema.Entity
	if len(*columns) > 0 {
		fields := make([]schema.Field, 0, len(*columns))
		for name, column := range *columns {
			fields = append(fields, schema.Field{Name: name, Alias: column})
		}
		entity = schema.New("cli", fields...)
	}

	c := filter.NewCompiler(d)
	frag := c.Compile(*filters, entity)
	fmt.Fprintf(stdout, "where: %s\n", renderMarkers(frag.SQL(), frag.Params, d))
	fmt.Fprintf(stdout, "order: %s\n", c.CompileSort(*sorting, entity))
	for i, p := range frag.Params {
		fmt.Fprintf(stdout, "%s %s = %v (%T)\n", d.Placeholder(i+1), p.Name, p.Value, p.Value)
	}
	for _, atom := range frag.Dropped {
		fmt.Fprintf(stdout, "dropped: %s\n", atom)
	}
	return nil
}

// renderMarkers replaces the named parameters of a compiled clause with the
// positional markers of d.
func renderMarkers(clause string, params []filter.Param, d dialect.Dialect) string {
	// Longer names first so that filter_value_1 does not match the prefix
	// of filter_value_10.
	for i := len(params) - 1; i >= 0; i-- {
		clause = strings.ReplaceAll(clause, ":"+params[i].Name, d.Placeholder(i+1))
	}
	return clause
}
