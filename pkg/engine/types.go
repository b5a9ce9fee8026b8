package engine

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/alamotechllc/semsync/pkg/semaphore"
	"gopkg.in/yaml.v3"
)

// Resource kinds, in reconcile order.
const (
	KindProject     = "project"
	KindKey         = "key"
	KindRepository  = "repository"
	KindInventory   = "inventory"
	KindSecret      = "secret"
	KindEnvironment = "environment"
	KindTemplate    = "template"
	KindApp         = "app"
)

// SurveyMode selects how survey variables of an existing template are reconciled.
type SurveyMode string

const (
	// SurveyModeMerge appends desired variables whose names are missing and
	// leaves every existing entry alone.
	SurveyModeMerge SurveyMode = "merge"

	// SurveyModeReplace replaces the list when the ordered names differ.
	SurveyModeReplace SurveyMode = "replace"
)

// DesiredState is the declared content of one project.
type DesiredState struct {
	// Project identifies the project by id or by name.
	Project ProjectSpec `json:"project" yaml:"project" validate:"required"`

	// Keys are SSH keys, reconciled first.
	Keys []KeySpec `json:"keys,omitempty" yaml:"keys,omitempty" validate:"dive"`

	// Repositories reference keys.
	Repositories []RepositorySpec `json:"repositories,omitempty" yaml:"repositories,omitempty" validate:"dive"`

	// Inventories optionally reference keys.
	Inventories []InventorySpec `json:"inventories,omitempty" yaml:"inventories,omitempty" validate:"dive"`

	// Secrets are independent of every other kind.
	Secrets []SecretSpec `json:"secrets,omitempty" yaml:"secrets,omitempty" validate:"dive"`

	// Environments hold extra variables referenced by templates.
	Environments []EnvironmentSpec `json:"environments,omitempty" yaml:"environments,omitempty" validate:"dive"`

	// Templates reference inventories, repositories, keys and environments.
	Templates []TemplateSpec `json:"templates,omitempty" yaml:"templates,omitempty" validate:"dive"`
}

// ProjectSpec identifies the project. An explicit ID is used without a lookup.
type ProjectSpec struct {
	ID          int    `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty" validate:"required_without=ID"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// KeySpec declares an SSH key. PublicKey is derived from PrivateKey when
// empty.
type KeySpec struct {
	Name       string `json:"name" yaml:"name" validate:"required"`
	Type       string `json:"type,omitempty" yaml:"type,omitempty" validate:"omitempty,oneof=ssh login_password none"`
	PrivateKey string `json:"private_key,omitempty" yaml:"private_key,omitempty"`
	PublicKey  string `json:"public_key,omitempty" yaml:"public_key,omitempty"`

	// PrivateKeyFile is read by the loader into PrivateKey.
	PrivateKeyFile string `json:"private_key_file,omitempty" yaml:"private_key_file,omitempty"`
}

// RepositorySpec declares a git repository. Key is required.
type RepositorySpec struct {
	Name      string `json:"name" yaml:"name" validate:"required"`
	GitURL    string `json:"git_url" yaml:"git_url" validate:"required"`
	GitBranch string `json:"git_branch,omitempty" yaml:"git_branch,omitempty"`
	Key       Ref    `json:"key" yaml:"key"`
}

// InventorySpec declares an inventory. Key is optional.
type InventorySpec struct {
	Name      string `json:"name" yaml:"name" validate:"required"`
	Type      string `json:"type,omitempty" yaml:"type,omitempty" validate:"omitempty,oneof=static static-yaml file dynamic"`
	Inventory string `json:"inventory,omitempty" yaml:"inventory,omitempty"`
	Key       Ref    `json:"key,omitempty" yaml:"key,omitempty"`
}

// SecretSpec declares a secret. Values are write-only on the server and are
// never compared.
type SecretSpec struct {
	Name        string `json:"name" yaml:"name" validate:"required"`
	Value       string `json:"value" yaml:"value"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// EnvironmentSpec declares extra variables and process environment.
type EnvironmentSpec struct {
	Name string            `json:"name" yaml:"name" validate:"required"`
	Vars map[string]any    `json:"vars,omitempty" yaml:"vars,omitempty"`
	Env  map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

// TemplateSpec declares a template.
type TemplateSpec struct {
	Name        string `json:"name" yaml:"name" validate:"required"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Playbook    string `json:"playbook" yaml:"playbook" validate:"required"`

	Inventory   Ref `json:"inventory" yaml:"inventory"`
	Repository  Ref `json:"repository" yaml:"repository"`
	Key         Ref `json:"key,omitempty" yaml:"key,omitempty"`
	Environment Ref `json:"environment,omitempty" yaml:"environment,omitempty"`

	AppID *int   `json:"app_id,omitempty" yaml:"app_id,omitempty"`
	App   string `json:"app,omitempty" yaml:"app,omitempty"`

	SurveyVars []semaphore.SurveyVar `json:"survey_vars,omitempty" yaml:"survey_vars,omitempty" validate:"dive"`
	SurveyMode SurveyMode            `json:"survey_mode,omitempty" yaml:"survey_mode,omitempty" validate:"omitempty,oneof=merge replace"`
	Arguments  []semaphore.Argument  `json:"arguments,omitempty" yaml:"arguments,omitempty"`
}

// Ref points at another resource by name or by id. In files a ref is
// written as a name ("core"), an id (7) or a mapping ({name: core} / {id: 7}).
type Ref struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	ID   int    `json:"id,omitempty" yaml:"id,omitempty"`
}

// ByName returns a name reference.
func ByName(name string) Ref { return Ref{Name: name} }

// ByID returns an id reference.
func ByID(id int) Ref { return Ref{ID: id} }

// IsZero reports whether the ref is unset.
func (r Ref) IsZero() bool { return r.Name == "" && r.ID <= 0 }

func (r Ref) String() string {
	if r.ID > 0 {
		return "#" + strconv.Itoa(r.ID)
	}
	return r.Name
}

// UnmarshalYAML accepts a scalar name or id, or a mapping.
func (r *Ref) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		if node.ShortTag() == "!!int" {
			id, err := strconv.Atoi(node.Value)
			if err != nil {
				return fmt.Errorf("ref id %q: %w", node.Value, err)
			}
			*r = Ref{ID: id}
			return nil
		}
		*r = Ref{Name: node.Value}
		return nil
	}
	type plain Ref
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*r = Ref(p)
	return nil
}

// UnmarshalJSON accepts a string name, a number id, or an object.
func (r *Ref) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*r = Ref{Name: name}
		return nil
	}
	var id int
	if err := json.Unmarshal(data, &id); err == nil {
		*r = Ref{ID: id}
		return nil
	}
	type plain Ref
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("ref must be a name, an id or an object: %w", err)
	}
	*r = Ref(p)
	return nil
}
