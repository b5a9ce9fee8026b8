package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/alamotechllc/semsync/pkg/engine"
)

// Loader reads desired-state documents. Every format is unified with the
// built-in CUE schema, decoded into engine.DesiredState and checked with
// struct validation.
type Loader struct {
	ctx      *cue.Context
	schemas  *SchemaRegistry
	starlark *StarlarkEvaluator
	validate *validator.Validate
	readFile func(string) ([]byte, error)
	logger   zerolog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLoaderLogger sets the loader's logger.
func WithLoaderLogger(logger zerolog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger.With().Str("component", "config").Logger()
	}
}

// WithStarlarkTimeout bounds script evaluation.
func WithStarlarkTimeout(d time.Duration) LoaderOption {
	return func(l *Loader) {
		l.starlark = NewStarlarkEvaluator(d)
	}
}

// NewLoader creates a loader.
func NewLoader(opts ...LoaderOption) *Loader {
	ctx := cuecontext.New()
	l := &Loader{
		ctx:      ctx,
		schemas:  NewSchemaRegistry(ctx),
		starlark: NewStarlarkEvaluator(30 * time.Second),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		readFile: os.ReadFile,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Schemas returns the loader's schema registry.
func (l *Loader) Schemas() *SchemaRegistry {
	return l.schemas
}

// Load reads the desired state at path. The format follows the extension.
// private_key_file entries are read relative to the file's directory.
func (l *Loader) Load(ctx context.Context, path string) (*engine.DesiredState, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := l.readFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	state, err := l.Parse(ctx, path, format, data)
	if err != nil {
		return nil, err
	}
	if err := l.resolveKeyFiles(state, filepath.Dir(path)); err != nil {
		return nil, err
	}

	l.logger.Debug().
		Str("file", path).
		Str("format", string(format)).
		Int("keys", len(state.Keys)).
		Int("repositories", len(state.Repositories)).
		Int("inventories", len(state.Inventories)).
		Int("templates", len(state.Templates)).
		Msg("Loaded desired state")
	return state, nil
}

// Parse decodes one document. filename is used in error positions and as
// the Starlark module name.
func (l *Loader) Parse(ctx context.Context, filename string, format Format, data []byte) (*engine.DesiredState, error) {
	val, err := l.value(ctx, filename, format, data)
	if err != nil {
		return nil, err
	}

	unified, err := l.schemas.Apply("desired", val)
	if err != nil {
		return nil, convertCUEErrors(filename, err)
	}
	raw, err := unified.MarshalJSON()
	if err != nil {
		return nil, convertCUEErrors(filename, err)
	}

	var state engine.DesiredState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filename, err)
	}

	var errs ValidationErrors
	if err := l.validate.Struct(&state); err != nil {
		errs = append(errs, convertValidatorErrors(filename, err)...)
	}
	errs = append(errs, checkUnique(filename, &state)...)
	if len(errs) > 0 {
		return nil, errs
	}
	return &state, nil
}

// value turns a document into a CUE value.
func (l *Loader) value(ctx context.Context, filename string, format Format, data []byte) (cue.Value, error) {
	switch format {
	case FormatYAML:
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return cue.Value{}, ValidationErrors{{File: filename, Message: err.Error()}}
		}
		return l.encode(filename, doc)

	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		var doc any
		if err := dec.Decode(&doc); err != nil {
			return cue.Value{}, ValidationErrors{{File: filename, Message: err.Error()}}
		}
		return l.encode(filename, normalizeNumbers(doc))

	case FormatCUE:
		val := l.ctx.CompileBytes(data, cue.Filename(filename))
		if err := val.Err(); err != nil {
			return cue.Value{}, convertCUEErrors(filename, err)
		}
		return val, nil

	case FormatStarlark:
		res, err := l.starlark.Evaluate(ctx, filename, string(data), nil)
		if err != nil {
			return cue.Value{}, err
		}
		doc, ok := res.Output["desired"]
		if !ok {
			return cue.Value{}, ValidationErrors{{File: filename, Message: "script must set a global named desired"}}
		}
		return l.encode(filename, doc)

	default:
		return cue.Value{}, fmt.Errorf("unsupported format %q", format)
	}
}

func (l *Loader) encode(filename string, doc any) (cue.Value, error) {
	if _, ok := doc.(map[string]any); !ok {
		return cue.Value{}, ValidationErrors{{File: filename, Message: fmt.Sprintf("document must be a mapping, got %T", doc)}}
	}
	val := l.ctx.Encode(doc)
	if err := val.Err(); err != nil {
		return cue.Value{}, convertCUEErrors(filename, err)
	}
	return val, nil
}

// normalizeNumbers turns json.Number into int64 where possible so that
// ids are integers to the schema.
func normalizeNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case []any:
		for i := range val {
			val[i] = normalizeNumbers(val[i])
		}
	case map[string]any:
		for k := range val {
			val[k] = normalizeNumbers(val[k])
		}
	}
	return v
}

func (l *Loader) resolveKeyFiles(state *engine.DesiredState, baseDir string) error {
	for i := range state.Keys {
		key := &state.Keys[i]
		if key.PrivateKeyFile == "" {
			continue
		}
		if key.PrivateKey != "" {
			return fmt.Errorf("key %q: private_key and private_key_file are mutually exclusive", key.Name)
		}
		path := key.PrivateKeyFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		data, err := l.readFile(path)
		if err != nil {
			return fmt.Errorf("key %q: %w", key.Name, err)
		}
		key.PrivateKey = string(data)
	}
	return nil
}

// EvaluateVars runs a vars script and returns its extra_vars global, which
// must be a dict. input is visible to the script as globals.
func (l *Loader) EvaluateVars(ctx context.Context, path string, input map[string]any) (map[string]any, error) {
	data, err := l.readFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	res, err := l.starlark.Evaluate(ctx, path, string(data), input)
	if err != nil {
		return nil, err
	}
	for _, line := range res.Printed {
		l.logger.Info().Str("script", path).Msg(line)
	}

	raw, ok := res.Output["extra_vars"]
	if !ok {
		return nil, fmt.Errorf("%s: script must set a global named extra_vars", path)
	}
	vars, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: extra_vars must be a dict, got %T", path, raw)
	}
	return vars, nil
}

// convertCUEErrors keeps positions that point into filename; positions in
// the schema itself are dropped.
func convertCUEErrors(filename string, err error) ValidationErrors {
	var out ValidationErrors
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		ve := ValidationError{
			File:    filename,
			Path:    strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
		}
		for _, pos := range cueerrors.Positions(e) {
			if pos.Filename() == filename {
				ve.Line = pos.Line()
				ve.Column = pos.Column()
				break
			}
		}
		out = append(out, ve)
	}
	if len(out) == 0 {
		out = append(out, ValidationError{File: filename, Message: err.Error()})
	}
	return out
}

func convertValidatorErrors(filename string, err error) ValidationErrors {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return ValidationErrors{{File: filename, Message: err.Error()}}
	}
	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg := "failed " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		out = append(out, ValidationError{File: filename, Path: fe.Namespace(), Message: msg})
	}
	return out
}

// checkUnique reports names declared twice within one kind.
func checkUnique(filename string, state *engine.DesiredState) ValidationErrors {
	var out ValidationErrors
	check := func(kind string, names []string) {
		seen := make(map[string]bool, len(names))
		for _, name := range names {
			if seen[name] {
				out = append(out, ValidationError{File: filename, Path: kind, Message: fmt.Sprintf("duplicate name %q", name)})
			}
			seen[name] = true
		}
	}
	check("keys", names(state.Keys, func(s engine.KeySpec) string { return s.Name }))
	check("repositories", names(state.Repositories, func(s engine.RepositorySpec) string { return s.Name }))
	check("inventories", names(state.Inventories, func(s engine.InventorySpec) string { return s.Name }))
	check("secrets", names(state.Secrets, func(s engine.SecretSpec) string { return s.Name }))
	check("environments", names(state.Environments, func(s engine.EnvironmentSpec) string { return s.Name }))
	check("templates", names(state.Templates, func(s engine.TemplateSpec) string { return s.Name }))
	return out
}

func names[T any](items []T, name func(T) string) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = name(item)
	}
	return out
}
