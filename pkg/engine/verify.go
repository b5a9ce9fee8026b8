package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/alamotechllc/semsync/pkg/semaphore"
)

// Verify checks, without writing, that the server holds what desired
// declares and that every reference on the server points at an existing
// record. Request failures are returned as the error; everything else is a
// Finding.
func (e *Engine) Verify(ctx context.Context, desired *DesiredState) ([]Finding, error) {
	if desired == nil {
		return nil, errors.New("desired state is required")
	}
	r := e.newRun(ctx)
	ctx, span := e.startSpan(ctx, "engine.verify")
	r.ctx = ctx

	err := r.resolveProject(desired.Project, false)
	if err == nil && r.projectID == 0 {
		endSpan(span, nil)
		return []Finding{{
			Severity: SeverityError,
			Kind:     KindProject,
			Name:     projectLabel(desired.Project),
			Message:  "project not found",
		}}, nil
	}
	if err == nil {
		err = r.prefetch(true)
	}
	endSpan(span, err)
	if err != nil {
		return nil, err
	}

	v := &verifier{run: r}
	for _, spec := range desired.Keys {
		v.key(spec)
	}
	for _, spec := range desired.Repositories {
		v.repository(spec)
	}
	for _, spec := range desired.Inventories {
		v.inventory(spec)
	}
	for _, spec := range desired.Secrets {
		if !exists(r.secrets, spec.Name) {
			v.add(SeverityError, KindSecret, spec.Name, "secret not found")
		}
	}
	for _, spec := range desired.Environments {
		if !exists(r.environments, spec.Name) {
			v.add(SeverityError, KindEnvironment, spec.Name, "environment not found")
		}
	}
	for _, spec := range desired.Templates {
		v.template(spec)
	}

	r.log.Info().Int("findings", len(v.findings)).Msg("Verify completed")
	return v.findings, nil
}

type verifier struct {
	*run
	findings []Finding
}

func (v *verifier) add(sev Severity, kind, name, format string, args ...any) {
	v.findings = append(v.findings, Finding{
		Severity: sev,
		Kind:     kind,
		Name:     name,
		Message:  fmt.Sprintf(format, args...),
	})
}

func exists[T semaphore.Named](items []T, name string) bool {
	_, ok := semaphore.FindByName(items, name)
	return ok
}

func keyExists(keys []semaphore.SSHKey, id int) bool {
	for _, k := range keys {
		if k.ID == id {
			return true
		}
	}
	return false
}

func (v *verifier) key(spec KeySpec) {
	existing, ok := semaphore.FindByName(v.keys, spec.Name)
	if !ok {
		v.add(SeverityError, KindKey, spec.Name, "key not found")
		return
	}
	if existing.PublicKey == "" {
		return
	}
	spec, err := keyMaterial(spec)
	if err != nil {
		v.add(SeverityWarning, KindKey, spec.Name, "%v", err)
		return
	}
	if spec.PublicKey == "" {
		return
	}
	want, err := Fingerprint(spec.PublicKey)
	if err != nil {
		v.add(SeverityWarning, KindKey, spec.Name, "desired public key: %v", err)
		return
	}
	have, err := Fingerprint(existing.PublicKey)
	if err != nil {
		v.add(SeverityWarning, KindKey, spec.Name, "server public key: %v", err)
		return
	}
	if want != have {
		v.add(SeverityWarning, KindKey, spec.Name, "fingerprint %s differs from desired %s", have, want)
	}
}

func (v *verifier) repository(spec RepositorySpec) {
	existing, ok := semaphore.FindByName(v.repositories, spec.Name)
	if !ok {
		v.add(SeverityError, KindRepository, spec.Name, "repository not found")
		return
	}
	if existing.SSHKeyID <= 0 {
		v.add(SeverityError, KindRepository, spec.Name, "repository has no ssh key")
	} else if !keyExists(v.keys, existing.SSHKeyID) {
		v.add(SeverityError, KindRepository, spec.Name, "ssh key %d does not exist", existing.SSHKeyID)
	}
	if spec.GitURL != "" && spec.GitURL != existing.GitURL {
		v.add(SeverityWarning, KindRepository, spec.Name, "git_url is %q, desired %q", existing.GitURL, spec.GitURL)
	}
}

func (v *verifier) inventory(spec InventorySpec) {
	existing, ok := semaphore.FindByName(v.inventories, spec.Name)
	if !ok {
		v.add(SeverityError, KindInventory, spec.Name, "inventory not found")
		return
	}
	switch {
	case existing.SSHKeyID <= 0 && !spec.Key.IsZero():
		v.add(SeverityError, KindInventory, spec.Name, "inventory has no ssh key")
	case existing.SSHKeyID <= 0:
		v.add(SeverityWarning, KindInventory, spec.Name, "inventory has no ssh key")
	case !keyExists(v.keys, existing.SSHKeyID):
		v.add(SeverityError, KindInventory, spec.Name, "ssh key %d does not exist", existing.SSHKeyID)
	}
}

func (v *verifier) template(spec TemplateSpec) {
	existing, ok := semaphore.FindByName(v.templates, spec.Name)
	if !ok {
		v.add(SeverityError, KindTemplate, spec.Name, "template not found")
		return
	}

	if !hasID(v.inventories, existing.InventoryID, func(x semaphore.Inventory) int { return x.ID }) {
		v.add(SeverityError, KindTemplate, spec.Name, "inventory %d does not exist", existing.InventoryID)
	}
	if !hasID(v.repositories, existing.RepositoryID, func(x semaphore.Repository) int { return x.ID }) {
		v.add(SeverityError, KindTemplate, spec.Name, "repository %d does not exist", existing.RepositoryID)
	}
	if existing.KeyID > 0 && !keyExists(v.keys, existing.KeyID) {
		v.add(SeverityError, KindTemplate, spec.Name, "key %d does not exist", existing.KeyID)
	}
	if existing.EnvironmentID != nil && *existing.EnvironmentID > 0 &&
		!hasID(v.environments, *existing.EnvironmentID, func(x semaphore.Environment) int { return x.ID }) {
		v.add(SeverityError, KindTemplate, spec.Name, "environment %d does not exist", *existing.EnvironmentID)
	}

	if refs, err := v.resolveTemplateRefs(spec); err == nil {
		if refs.inventory > 0 && refs.inventory != existing.InventoryID {
			v.add(SeverityWarning, KindTemplate, spec.Name, "inventory_id is %d, desired %d", existing.InventoryID, refs.inventory)
		}
		if refs.repository > 0 && refs.repository != existing.RepositoryID {
			v.add(SeverityWarning, KindTemplate, spec.Name, "repository_id is %d, desired %d", existing.RepositoryID, refs.repository)
		}
	}

	have := make(map[string]bool, len(existing.SurveyVars))
	for _, sv := range existing.SurveyVars {
		have[sv.Name] = true
	}
	for _, sv := range spec.SurveyVars {
		if have[sv.Name] {
			continue
		}
		sev := SeverityWarning
		if sv.Required {
			sev = SeverityError
		}
		v.add(sev, KindTemplate, spec.Name, "survey variable %q missing", sv.Name)
	}

	if v.opts.RequireAppID && existing.AppID == nil {
		v.add(SeverityError, KindTemplate, spec.Name, "app_id is not set")
	}
}

func hasID[T any](items []T, id int, idOf func(T) int) bool {
	for _, item := range items {
		if idOf(item) == id {
			return true
		}
	}
	return false
}
