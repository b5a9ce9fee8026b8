package config

import (
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry holds named CUE definitions that loaded documents are
// unified with before decoding.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a registry holding the built-in desired-state
// schema under the name "desired".
func NewSchemaRegistry(ctx *cue.Context) *SchemaRegistry {
	if ctx == nil {
		ctx = cuecontext.New()
	}
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}
	if err := sr.RegisterSchema("desired", builtinDesiredSchema, "#DesiredState"); err != nil {
		panic(fmt.Sprintf("built-in desired-state schema: %v", err))
	}
	return sr
}

// RegisterSchema compiles source and stores the definition found at path
// (for example "#DesiredState") under name.
func (sr *SchemaRegistry) RegisterSchema(name, source, path string) error {
	val := sr.ctx.CompileString(source, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	def := val.LookupPath(cue.ParsePath(path))
	if !def.Exists() {
		return fmt.Errorf("schema %s has no definition %s", name, path)
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.schemas[name] = def
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// Apply unifies val with the named schema and checks the result is
// concrete. The unified value carries schema defaults.
func (sr *SchemaRegistry) Apply(schemaName string, val cue.Value) (cue.Value, error) {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return cue.Value{}, fmt.Errorf("schema %s not found", schemaName)
	}
	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return cue.Value{}, err
	}
	return unified, nil
}

// ListSchemas returns all registered schema names, sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// builtinDesiredSchema mirrors engine.DesiredState. Definitions are closed,
// so a misspelled field is an error rather than silently ignored.
const builtinDesiredSchema = `
#Name: string & =~"^[^\\s].*$"

// A reference is a name, a positive id, or an object holding one of them.
#Ref: #Name | (int & >0) | {name: #Name} | {id: int & >0}

#DesiredState: {
	project: {
		id?:          int & >0
		name?:        #Name
		description?: string
	}
	keys?:         [...#Key]
	repositories?: [...#Repository]
	inventories?:  [...#Inventory]
	secrets?:      [...#Secret]
	environments?: [...#Environment]
	templates?:    [...#Template]
}

#Key: {
	name:              #Name
	type?:             "ssh" | "login_password" | "none"
	private_key?:      string
	public_key?:       string
	private_key_file?: string
}

#Repository: {
	name:        #Name
	git_url:     string & !=""
	git_branch?: string
	key:         #Ref
}

#Inventory: {
	name:       #Name
	type?:      "static" | "static-yaml" | "file" | "dynamic"
	inventory?: string
	key?:       #Ref
}

#Secret: {
	name:         #Name
	value?:       string
	description?: string
}

#Environment: {
	name:  #Name
	vars?: {...}
	env?:  {[string]: string}
}

#SurveyVar: {
	name:           #Name
	title?:         string
	description?:   string
	type?:          string
	required?:      bool
	default_value?: string
	choices?: [...{
		value:  string
		label?: string
	}]
}

#Argument: {
	name:         #Name
	description?: string
	type?:        string
	required?:    bool
	default?:     _
}

#Template: {
	name:         #Name
	description?: string
	playbook:     string & !=""
	inventory:    #Ref
	repository:   #Ref
	key?:         #Ref
	environment?: #Ref
	app_id?:      int & >0
	app?:         string
	survey_vars?: [...#SurveyVar]
	survey_mode?: "merge" | "replace"
	arguments?:   [...#Argument]
}
`
