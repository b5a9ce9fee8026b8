package semaphore

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Semaphore stores survey_vars, arguments and task variables as JSON text. Requests carry
// them as a JSON string inside the JSON body; responses carry either that
// string or a plain array. Everything outside this file works on the
// structured slices.

// SurveyVars is the decoded survey variable list of a template.
type SurveyVars []SurveyVar

// UnmarshalJSON accepts an array, a string holding an array, or null.
func (s *SurveyVars) UnmarshalJSON(data []byte) error {
	var vars []SurveyVar
	if err := decodeEmbedded(data, &vars); err != nil {
		return fmt.Errorf("survey_vars: %w", err)
	}
	*s = vars
	return nil
}

// Names returns the variable names in order.
func (s SurveyVars) Names() []string {
	names := make([]string, len(s))
	for i, v := range s {
		names[i] = v.Name
	}
	return names
}

// Arguments is the decoded argument list of a template.
type Arguments []Argument

// UnmarshalJSON accepts an array, a string holding an array, or null.
func (a *Arguments) UnmarshalJSON(data []byte) error {
	var args []Argument
	if err := decodeEmbedded(data, &args); err != nil {
		return fmt.Errorf("arguments: %w", err)
	}
	*a = args
	return nil
}

// ExtraVars are the variables a task was started with.
type ExtraVars map[string]any

// UnmarshalJSON accepts an object, a string holding an object, or null.
func (e *ExtraVars) UnmarshalJSON(data []byte) error {
	var vars map[string]any
	if err := decodeEmbedded(data, &vars); err != nil {
		return fmt.Errorf("extra_vars: %w", err)
	}
	*e = vars
	return nil
}

// UnmarshalJSON reads the task variables from extra_vars or, as the server
// stores them, from the environment text. Environment text that is not a
// JSON object is ignored.
func (t *Task) UnmarshalJSON(data []byte) error {
	type plain Task
	var payload struct {
		plain
		Environment json.RawMessage `json:"environment"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	*t = Task(payload.plain)
	if t.ExtraVars == nil && len(payload.Environment) > 0 {
		var vars ExtraVars
		if err := vars.UnmarshalJSON(payload.Environment); err == nil {
			t.ExtraVars = vars
		}
	}
	return nil
}

func decodeEmbedded(data []byte, out any) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		if text == "" || text == "null" {
			return nil
		}
		data = []byte(text)
	}
	return json.Unmarshal(data, out)
}

// encodedList marshals a slice as a JSON string containing its JSON array.
type encodedList[T any] []T

func (e encodedList[T]) MarshalJSON() ([]byte, error) {
	items := []T(e)
	if items == nil {
		items = []T{}
	}
	inner, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(inner))
}

// surveyVarJSON mirrors the modeled SurveyVar fields.
type surveyVarJSON struct {
	Name         string         `json:"name"`
	Title        string         `json:"title,omitempty"`
	Description  string         `json:"description,omitempty"`
	Type         string         `json:"type,omitempty"`
	Required     bool           `json:"required"`
	DefaultValue string         `json:"default_value,omitempty"`
	Choices      []SurveyChoice `json:"choices,omitempty"`
}

func (v SurveyVar) modeled() surveyVarJSON {
	return surveyVarJSON{
		Name:         v.Name,
		Title:        v.Title,
		Description:  v.Description,
		Type:         v.Type,
		Required:     v.Required,
		DefaultValue: v.DefaultValue,
		Choices:      v.Choices,
	}
}

// UnmarshalJSON keeps the original encoding so that unchanged entries are
// written back byte for byte, including fields this package does not model.
func (v *SurveyVar) UnmarshalJSON(data []byte) error {
	var m surveyVarJSON
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*v = SurveyVar{
		Name:         m.Name,
		Title:        m.Title,
		Description:  m.Description,
		Type:         m.Type,
		Required:     m.Required,
		DefaultValue: m.DefaultValue,
		Choices:      m.Choices,
	}
	known, err := json.Marshal(m)
	if err != nil {
		return err
	}
	v.raw = append(json.RawMessage(nil), bytes.TrimSpace(data)...)
	v.known = known
	return nil
}

// MarshalJSON emits the original server encoding while the modeled fields
// are unchanged, and otherwise overlays them on the original object.
func (v SurveyVar) MarshalJSON() ([]byte, error) {
	current, err := json.Marshal(v.modeled())
	if err != nil {
		return nil, err
	}
	if v.raw == nil {
		return current, nil
	}
	if bytes.Equal(current, v.known) {
		return v.raw, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(v.raw, &merged); err != nil {
		return current, nil
	}
	for _, field := range []string{"title", "description", "type", "default_value", "choices"} {
		delete(merged, field)
	}
	var overlay map[string]json.RawMessage
	if err := json.Unmarshal(current, &overlay); err != nil {
		return nil, err
	}
	for k, val := range overlay {
		merged[k] = val
	}
	return json.Marshal(merged)
}

type templateBody struct {
	ID            int                    `json:"id,omitempty"`
	ProjectID     int                    `json:"project_id"`
	Name          string                 `json:"name"`
	Description   string                 `json:"description,omitempty"`
	Playbook      string                 `json:"playbook"`
	InventoryID   int                    `json:"inventory_id"`
	RepositoryID  int                    `json:"repository_id"`
	KeyID         int                    `json:"key_id,omitempty"`
	EnvironmentID *int                   `json:"environment_id,omitempty"`
	AppID         *int                   `json:"app_id,omitempty"`
	App           string                 `json:"app,omitempty"`
	SurveyVars    encodedList[SurveyVar] `json:"survey_vars"`
	Arguments     encodedList[Argument]  `json:"arguments"`
}

func newTemplateBody(projectID int, t *Template) templateBody {
	return templateBody{
		ProjectID:     projectID,
		Name:          t.Name,
		Description:   t.Description,
		Playbook:      t.Playbook,
		InventoryID:   t.InventoryID,
		RepositoryID:  t.RepositoryID,
		KeyID:         t.KeyID,
		EnvironmentID: t.EnvironmentID,
		AppID:         t.AppID,
		App:           t.App,
		SurveyVars:    encodedList[SurveyVar](t.SurveyVars),
		Arguments:     encodedList[Argument](t.Arguments),
	}
}

type templateUpdateBody struct {
	ID            int                     `json:"id"`
	ProjectID     int                     `json:"project_id"`
	Name          *string                 `json:"name,omitempty"`
	Description   *string                 `json:"description,omitempty"`
	Playbook      *string                 `json:"playbook,omitempty"`
	InventoryID   *int                    `json:"inventory_id,omitempty"`
	RepositoryID  *int                    `json:"repository_id,omitempty"`
	KeyID         *int                    `json:"key_id,omitempty"`
	EnvironmentID *int                    `json:"environment_id,omitempty"`
	AppID         *int                    `json:"app_id,omitempty"`
	App           *string                 `json:"app,omitempty"`
	SurveyVars    *encodedList[SurveyVar] `json:"survey_vars,omitempty"`
	Arguments     *encodedList[Argument]  `json:"arguments,omitempty"`
}

func newTemplateUpdateBody(projectID, templateID int, u TemplateUpdate) templateUpdateBody {
	body := templateUpdateBody{
		ID:            templateID,
		ProjectID:     projectID,
		Name:          u.Name,
		Description:   u.Description,
		Playbook:      u.Playbook,
		InventoryID:   u.InventoryID,
		RepositoryID:  u.RepositoryID,
		KeyID:         u.KeyID,
		EnvironmentID: u.EnvironmentID,
		AppID:         u.AppID,
		App:           u.App,
	}
	if u.SurveyVars != nil {
		vars := encodedList[SurveyVar](u.SurveyVars)
		body.SurveyVars = &vars
	}
	if u.Arguments != nil {
		args := encodedList[Argument](u.Arguments)
		body.Arguments = &args
	}
	return body
}
