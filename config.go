// Copyright 2026 The wirej Authors.
// Licensed under Apache 2.0, see LICENCE file for details.

package wirej

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/Gergilcan/wirej/connector"
	"github.com/Gergilcan/wirej/schema"
	"github.com/Gergilcan/wirej/templates"
)

// Config is the configuration of a repository opened with Open.
type Config struct {
	Database           connector.Config  `yaml:"database"`
	Templates          TemplatesConfig   `yaml:"templates"`
	Log                LogConfig         `yaml:"log"`
	StrictPlaceholders bool              `yaml:"strict_placeholders"`
	Operations         []OperationConfig `yaml:"operations"`
}

// TemplatesConfig locates the template files.
type TemplatesConfig struct {
	// Dir is the directory template keys are relative to.
	Dir       string `yaml:"dir"`
	CacheSize int    `yaml:"cache_size"`
	// Watch evicts cached templates when their file changes.
	Watch bool `yaml:"watch"`
}

// LogConfig configures the logger built by NewLogger.
type LogConfig struct {
	// Level is one of debug, info, warn or error. The default is info.
	Level string `yaml:"level"`
	// Format is text or json. The default is text.
	Format string `yaml:"format"`
}

// OperationConfig declares an operation in a configuration file.
type OperationConfig struct {
	Name     string `yaml:"name"`
	Template string `yaml:"template"`
	Batch    bool   `yaml:"batch"`
	// Entity names a registered entity. It is the result entity of one and
	// many results and resolves filter fields.
	Entity string `yaml:"entity"`
	// Result is one of void, one, many, scalar or scalars.
	Result string `yaml:"result"`
	// Type is the element type of scalar results: int, int64, float64,
	// string, bool, time, decimal or bytes.
	Type   string        `yaml:"type"`
	Params []ParamConfig `yaml:"params"`
}

// ParamConfig declares an operation argument in a configuration file.
type ParamConfig struct {
	Name  string `yaml:"name"`
	Alias string `yaml:"alias"`
	// Kind is value, filters or pagination. The default is value.
	Kind string `yaml:"kind"`
	// Entity names the registered entity expanding composite values.
	Entity string `yaml:"entity"`
}

// LoadConfig reads the YAML configuration file path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot load config: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("cannot load config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig parses a YAML configuration. Unknown keys are errors.
func ParseConfig(data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	cfg := &Config{}
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}
	return cfg, nil
}

// NewLogger returns a logger writing to w as configured.
func (c LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if c.Level != "" {
		if err := level.UnmarshalText([]byte(c.Level)); err != nil {
			return nil, fmt.Errorf("cannot create logger: %w", err)
		}
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(c.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("cannot create logger: unknown format %q", c.Format)
}

var scalarTypes = map[string]reflect.Type{
	"int":     reflect.TypeFor[int](),
	"int64":   reflect.TypeFor[int64](),
	"float64": reflect.TypeFor[float64](),
	"string":  reflect.TypeFor[string](),
	"bool":    reflect.TypeFor[bool](),
	"time":    reflect.TypeFor[time.Time](),
	"decimal": reflect.TypeFor[decimal.Decimal](),
	"bytes":   reflect.TypeFor[[]byte](),
}

var paramKinds = map[string]ParamKind{
	"":           ParamValue,
	"value":      ParamValue,
	"filters":    ParamFilters,
	"pagination": ParamPagination,
}

// operation builds the operation declared by c, looking entities up by
// name.
func (c OperationConfig) operation(entities map[string]*schema.Entity) (*Operation, error) {
	lookup := func(name string) (*schema.Entity, error) {
		if name == "" {
			return nil, nil
		}
		e, ok := entities[name]
		if !ok {
			return nil, fmt.Errorf("operation %s: unknown entity %q", c.Name, name)
		}
		return e, nil
	}

	entity, err := lookup(c.Entity)
	if err != nil {
		return nil, err
	}
	op := NewOperation(c.Name, c.Template).ForEntity(entity)
	op.Batch = c.Batch

	for _, pc := range c.Params {
		kind, ok := paramKinds[strings.ToLower(pc.Kind)]
		if !ok {
			return nil, fmt.Errorf("operation %s: parameter %s: unknown kind %q", c.Name, pc.Name, pc.Kind)
		}
		pe, err := lookup(pc.Entity)
		if err != nil {
			return nil, err
		}
		op.WithParams(Param{Name: pc.Name, Alias: pc.Alias, Kind: kind, Entity: pe})
	}

	scalar := func() (reflect.Type, error) {
		if c.Type == "" {
			return reflect.TypeFor[int64](), nil
		}
		t, ok := scalarTypes[c.Type]
		if !ok {
			return nil, fmt.Errorf("operation %s: unknown scalar type %q", c.Name, c.Type)
		}
		return t, nil
	}
	switch strings.ToLower(c.Result) {
	case "", "void":
	case "one":
		op.Returning(One(entity))
	case "many":
		op.Returning(Many(entity))
	case "scalar", "scalars":
		t, err := scalar()
		if err != nil {
			return nil, err
		}
		kind := ResultScalar
		if strings.ToLower(c.Result) == "scalars" {
			kind = ResultScalars
		}
		op.Returning(ResultShape{Kind: kind, Type: t})
	default:
		return nil, fmt.Errorf("operation %s: unknown result %q", c.Name, c.Result)
	}
	return op, nil
}

// RegisterConfig registers operations declared in a configuration file.
// The entities they name must have been registered with RegisterEntity.
func (r *Repository) RegisterConfig(configs []OperationConfig) error {
	r.mu.RLock()
	entities := make(map[string]*schema.Entity, len(r.entityByName))
	for name, e := range r.entityByName {
		entities[name] = e
	}
	r.mu.RUnlock()

	ops := make([]*Operation, 0, len(configs))
	for _, c := range configs {
		op, err := c.operation(entities)
		if err != nil {
			return fmt.Errorf("cannot register operation: %w", err)
		}
		ops = append(ops, op)
	}
	return r.Register(ops...)
}

// Open opens the database and the templates described by cfg and returns a
// repository with the configured operations. entities are registered before
// the operations so that they can be named in cfg. Close the repository to
// release the database and stop watching templates.
func Open(ctx context.Context, cfg *Config, entities ...*schema.Entity) (repo *Repository, err error) {
	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		return nil, err
	}
	if cfg.Templates.Dir == "" {
		return nil, fmt.Errorf("cannot open repository: no templates directory")
	}

	sqldb, driver, err := connector.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	var closers []io.Closer
	closers = append(closers, sqldb)
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i].Close()
			}
		}
	}()

	db, err := NewDB(sqldb, driver, templates.Dir(cfg.Templates.Dir),
		WithLogger(logger),
		WithStrictPlaceholders(cfg.StrictPlaceholders),
		WithCacheSize(cfg.Templates.CacheSize),
	)
	if err != nil {
		return nil, err
	}
	if cfg.Templates.Watch {
		w, err := templates.Watch(ctx, cfg.Templates.Dir, logger, db.Invalidate)
		if err != nil {
			return nil, fmt.Errorf("cannot open repository: %w", err)
		}
		closers = append(closers, w)
	}

	repo, err = NewRepository(db)
	if err != nil {
		return nil, err
	}
	repo.RegisterEntity(entities...)
	if err := repo.RegisterConfig(cfg.Operations); err != nil {
		return nil, err
	}
	repo.closers = closers
	logger.Info("repository opened", "driver", driver, "operations", len(cfg.Operations), "templates", cfg.Templates.Dir)
	return repo, nil
}
