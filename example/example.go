// Copyright 2026 The wirej Authors.
// Licensed under Apache 2.0, see LICENCE file for details.

// example runs a small repository on an in-memory SQLite database with
// templates embedded in the binary.
package main

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Gergilcan/wirej"
	"github.com/Gergilcan/wirej/schema"
	"github.com/Gergilcan/wirej/templates"
)

//go:embed queries
var queries embed.FS

type Person struct {
	Name     string
	Height   int    `db:"height_cm"`
	HomeTown string `db:"home_town"`
}

type Place struct {
	Name       string `db:"town_name"`
	Population int
}

var (
	personEntity = schema.MustOf[Person]()
	placeEntity  = schema.MustOf[Place]()
)

const createTables = `
CREATE TABLE people (
	id integer PRIMARY KEY AUTOINCREMENT,
	name text,
	height_cm integer,
	home_town text
);
CREATE TABLE location (
	town_name text,
	population integer
);`

func operations() []*wirej.Operation {
	return []*wirej.Operation{
		wirej.NewOperation("savePeople", "Person/insert.sql").
			WithParams(wirej.EntityParam("people", personEntity)).
			InBatch(),
		wirej.NewOperation("savePlaces", "Place/insert.sql").
			WithParams(wirej.EntityParam("places", placeEntity)).
			InBatch(),
		wirej.NewOperation("findTallerThan", "Person/findTallerThan.sql").
			WithParams(wirej.EntityParam("person", personEntity), wirej.FiltersParam("filters")).
			Returning(wirej.Many(personEntity)),
		wirej.NewOperation("findTallCities", "Place/findTallCities.sql").
			WithParams(wirej.ValueParam("heightCm")).
			Returning(wirej.Many(placeEntity)),
		wirej.NewOperation("countPeople", "Person/count.sql").
			WithParams(wirej.FiltersParam("filters")).
			ForEntity(personEntity),
		wirej.NewOperation("getNames", "Person/names.sql").
			Returning(wirej.Scalars[string]()),
	}
}

func example(ctx context.Context, logger *slog.Logger) error {
	sqldb, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return err
	}
	defer sqldb.Close()
	sqldb.SetMaxOpenConns(1)
	if _, err := sqldb.ExecContext(ctx, createTables); err != nil {
		return err
	}

	fsys, err := fs.Sub(queries, "queries")
	if err != nil {
		return err
	}
	db, err := wirej.NewDB(sqldb, "sqlite3", templates.NewFS(fsys), wirej.WithLogger(logger))
	if err != nil {
		return err
	}
	repo, err := wirej.NewRepository(db, operations()...)
	if err != nil {
		return err
	}
	defer repo.Close()
	if err := repo.Validate(ctx); err != nil {
		return err
	}

	people := []Person{{"Jim", 150, "Kabul"}, {"Saba", 162, "Berlin"}, {"Dave", 169, "Brasília"}, {"Sophie", 174, "Berlin"}, {"Kiri", 168, "Cape Town"}}
	places := []Place{{"Kabul", 13000000}, {"Berlin", 3677472}, {"Brasília", 3039444}, {"Cape Town", 4710000}}
	if err := repo.Exec(ctx, "savePeople", people); err != nil {
		return err
	}
	if err := repo.Exec(ctx, "savePlaces", places); err != nil {
		return err
	}

	// Find people taller than Jim, tallest first.
	jim := people[0]
	taller, err := wirej.Call[[]Person](ctx, repo, "findTallerThan", jim, &wirej.Filters{Sort: "height==DESC"})
	if err != nil {
		return err
	}
	for _, p := range taller {
		fmt.Printf("%s is taller than %s.\n", p.Name, jim.Name)
	}

	// Find the people of Berlin taller than Jim.
	berliners, err := wirej.Call[[]Person](ctx, repo, "findTallerThan", jim, wirej.NewFilters("homeTown==Berlin"))
	if err != nil {
		return err
	}
	fmt.Printf("People of Berlin taller than Jim: %v\n", berliners)

	cities, err := wirej.Call[[]Place](ctx, repo, "findTallCities", jim.Height)
	if err != nil {
		return err
	}
	fmt.Printf("Cities with people taller than Jim: %v\n", cities)

	n, err := wirej.Call[int64](ctx, repo, "countPeople", wirej.NewFilters("height>=165;homeTown=out=Kabul|Berlin"))
	if err != nil {
		return err
	}
	fmt.Printf("%d people outside Kabul and Berlin are 165cm or more.\n", n)

	names, err := wirej.Call[[]string](ctx, repo, "getNames")
	if err != nil {
		return err
	}
	fmt.Printf("By height: %v\n", names)
	return nil
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	if err := example(context.Background(), logger); err != nil {
		logger.Error("example failed", "error", err)
		os.Exit(1)
	}
}
