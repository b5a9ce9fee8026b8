package semaphore

import (
	"encoding/json"
	"time"
)

// Project is the root scope of every other record.
type Project struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// SSHKey is a credential used by repositories and inventories.
type SSHKey struct {
	ID         int    `json:"id"`
	ProjectID  int    `json:"project_id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	PrivateKey string `json:"private_key,omitempty"`
	PublicKey  string `json:"public_key,omitempty"`
}

// Repository is a git source of playbooks.
type Repository struct {
	ID        int    `json:"id"`
	ProjectID int    `json:"project_id"`
	Name      string `json:"name"`
	GitURL    string `json:"git_url"`
	GitBranch string `json:"git_branch,omitempty"`
	SSHKeyID  int    `json:"ssh_key_id"`
}

// Inventory is an Ansible inventory definition.
type Inventory struct {
	ID        int    `json:"id"`
	ProjectID int    `json:"project_id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Inventory string `json:"inventory"`
	SSHKeyID  int    `json:"ssh_key_id,omitempty"`
}

// Secret is a named project secret. The server never returns Value.
type Secret struct {
	ID          int    `json:"id"`
	ProjectID   int    `json:"project_id"`
	Name        string `json:"name"`
	Value       string `json:"value,omitempty"`
	Description string `json:"description,omitempty"`
}

// Environment holds extra variables and process environment for templates.
type Environment struct {
	ID        int    `json:"id"`
	ProjectID int    `json:"project_id"`
	Name      string `json:"name"`
	JSON      string `json:"json"`
	Env       string `json:"env,omitempty"`
}

// Template is a runnable playbook definition.
type Template struct {
	ID            int        `json:"id"`
	ProjectID     int        `json:"project_id"`
	Name          string     `json:"name"`
	Description   string     `json:"description,omitempty"`
	Playbook      string     `json:"playbook"`
	InventoryID   int        `json:"inventory_id"`
	RepositoryID  int        `json:"repository_id"`
	KeyID         int        `json:"key_id,omitempty"`
	EnvironmentID *int       `json:"environment_id,omitempty"`
	AppID         *int       `json:"app_id,omitempty"`
	App           string     `json:"app,omitempty"`
	SurveyVars    SurveyVars `json:"survey_vars"`
	Arguments     Arguments  `json:"arguments"`
}

// SurveyChoice is one option of an enumerated survey variable.
type SurveyChoice struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// SurveyVar is one input prompted for when a template is run. Name is unique
// within a template. Fields the server sends that are not modeled here are
// kept and written back unchanged.
type SurveyVar struct {
	Name         string         `json:"name" yaml:"name" validate:"required"`
	Title        string         `json:"title,omitempty" yaml:"title,omitempty"`
	Description  string         `json:"description,omitempty" yaml:"description,omitempty"`
	Type         string         `json:"type,omitempty" yaml:"type,omitempty"`
	Required     bool           `json:"required" yaml:"required,omitempty"`
	DefaultValue string         `json:"default_value,omitempty" yaml:"default_value,omitempty"`
	Choices      []SurveyChoice `json:"choices,omitempty" yaml:"choices,omitempty"`

	// raw is the server encoding and known is the encoding of the modeled
	// fields at decode time; raw is re-emitted while known still matches.
	raw   json.RawMessage
	known []byte
}

// Argument is a command-line argument definition attached to a template.
type Argument struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Type        string `json:"type,omitempty" yaml:"type,omitempty"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Default     any    `json:"default,omitempty" yaml:"default,omitempty"`
}

// Task is one execution of a template.
type Task struct {
	ID         int        `json:"id"`
	ProjectID  int        `json:"project_id"`
	TemplateID int        `json:"template_id"`
	Status     string     `json:"status"`
	Message    string     `json:"message,omitempty"`
	Debug      bool       `json:"debug"`
	DryRun     bool       `json:"dry_run"`
	Playbook   string     `json:"playbook,omitempty"`
	ExtraVars  ExtraVars  `json:"extra_vars,omitempty"`
	Created    *time.Time `json:"created,omitempty"`
	Start      *time.Time `json:"start,omitempty"`
	End        *time.Time `json:"end,omitempty"`
}

// TaskHandle identifies a task started by RunTemplate.
type TaskHandle struct {
	ID         int    `json:"id"`
	TemplateID int    `json:"template_id,omitempty"`
	Status     string `json:"status,omitempty"`
}

// UnmarshalJSON accepts both {"id": n} and {"task_id": n}.
func (h *TaskHandle) UnmarshalJSON(data []byte) error {
	var payload struct {
		ID         int    `json:"id"`
		TaskID     int    `json:"task_id"`
		TemplateID int    `json:"template_id"`
		Status     string `json:"status"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	h.ID = payload.ID
	if h.ID == 0 {
		h.ID = payload.TaskID
	}
	h.TemplateID = payload.TemplateID
	h.Status = payload.Status
	return nil
}

// ResourceName returns the record name.
func (p Project) ResourceName() string { return p.Name }

// ResourceName returns the record name.
func (k SSHKey) ResourceName() string { return k.Name }

// ResourceName returns the record name.
func (r Repository) ResourceName() string { return r.Name }

// ResourceName returns the record name.
func (i Inventory) ResourceName() string { return i.Name }

// ResourceName returns the record name.
func (s Secret) ResourceName() string { return s.Name }

// ResourceName returns the record name.
func (e Environment) ResourceName() string { return e.Name }

// ResourceName returns the record name.
func (t Template) ResourceName() string { return t.Name }

// String returns a pointer to s, for sparse updates.
func String(s string) *string { return &s }

// Int returns a pointer to i, for sparse updates.
func Int(i int) *int { return &i }

// Bool returns a pointer to b, for sparse updates.
func Bool(b bool) *bool { return &b }

// ProjectUpdate changes only the fields that are set.
type ProjectUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// SSHKeyUpdate changes only the fields that are set. Setting PrivateKey
// rotates the key.
type SSHKeyUpdate struct {
	Name       *string `json:"name,omitempty"`
	PrivateKey *string `json:"private_key,omitempty"`
	PublicKey  *string `json:"public_key,omitempty"`
}

// RepositoryUpdate changes only the fields that are set.
type RepositoryUpdate struct {
	Name      *string `json:"name,omitempty"`
	GitURL    *string `json:"git_url,omitempty"`
	GitBranch *string `json:"git_branch,omitempty"`
	SSHKeyID  *int    `json:"ssh_key_id,omitempty"`
}

// InventoryUpdate changes only the fields that are set.
type InventoryUpdate struct {
	Name      *string `json:"name,omitempty"`
	Type      *string `json:"type,omitempty"`
	Inventory *string `json:"inventory,omitempty"`
	SSHKeyID  *int    `json:"ssh_key_id,omitempty"`
}

// SecretUpdate changes only the fields that are set.
type SecretUpdate struct {
	Name        *string `json:"name,omitempty"`
	Value       *string `json:"value,omitempty"`
	Description *string `json:"description,omitempty"`
}

// TemplateUpdate changes only the fields that are set. A nil SurveyVars or
// Arguments leaves the server list alone; a non-nil one replaces it.
type TemplateUpdate struct {
	Name          *string
	Description   *string
	Playbook      *string
	InventoryID   *int
	RepositoryID  *int
	KeyID         *int
	EnvironmentID *int
	AppID         *int
	App           *string
	SurveyVars    []SurveyVar
	Arguments     []Argument
}

// IsEmpty reports whether the update would change nothing.
func (u TemplateUpdate) IsEmpty() bool {
	return u.Name == nil && u.Description == nil && u.Playbook == nil &&
		u.InventoryID == nil && u.RepositoryID == nil && u.KeyID == nil &&
		u.EnvironmentID == nil && u.AppID == nil && u.App == nil &&
		u.SurveyVars == nil && u.Arguments == nil
}
