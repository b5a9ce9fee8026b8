// Package policy checks desired state against Open Policy Agent (Rego)
// policies before it is reconciled.
//
// Every policy is a Rego v1 module with a deny set. The engine evaluates
// the deny rule of each enabled policy with this input:
//
//	{
//	  "desired":   <the desired state, using the file field names>,
//	  "operation": "validate" | "plan" | "apply" | ...
//	}
//
// A deny entry is either a string message or an object with message and
// optional kind, name and severity. Severity defaults to the policy's own.
// Any violation with error severity makes the result not allowed, which
// stops apply before a request is sent.
//
// Five policies are built in: secret-values, repository-url, survey-vars,
// inventory-content and local-references. More are loaded with
// Engine.LoadPolicies from .rego files, JSON policy definitions, or
// directories of either:
//
//	# Playbooks live under playbooks/.
//	# severity: error
//	package site.playbooks
//
//	deny contains msg if {
//		some tmpl in input.desired.templates
//		not startswith(tmpl.playbook, "playbooks/")
//		msg := sprintf("template %q playbook is outside playbooks/", [tmpl.name])
//	}
//
// A .rego policy is named after its file. The leading comment block is its
// description and may carry a severity line.
//
// Loader.Watch reloads policy files when they change.
package policy
