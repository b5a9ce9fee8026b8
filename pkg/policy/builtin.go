package policy

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		secretValuesPolicy(),
		repositoryURLPolicy(),
		surveyVarsPolicy(),
		inventoryContentPolicy(),
		localReferencesPolicy(),
	}
}

// secretValuesPolicy rejects secrets declared without a value.
func secretValuesPolicy() Policy {
	return Policy{
		Name:        "secret-values",
		Description: "Secrets must carry a non-empty value",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package semsync.policies.secrets

deny contains violation if {
	some secret in input.desired.secrets
	object.get(secret, "value", "") == ""
	violation := {
		"kind": "secret",
		"name": secret.name,
		"message": sprintf("secret %q has an empty value", [secret.name]),
	}
}
`,
	}
}

// repositoryURLPolicy restricts git URLs to schemes the server can clone.
func repositoryURLPolicy() Policy {
	return Policy{
		Name:        "repository-url",
		Description: "Repository git_url must use https, ssh, git@ or file; plain http is a warning",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package semsync.policies.repositories

allowed_prefixes := ["https://", "http://", "ssh://", "git@", "file://"]

valid_url(url) if {
	some prefix in allowed_prefixes
	startswith(url, prefix)
}

deny contains violation if {
	some repo in input.desired.repositories
	not valid_url(repo.git_url)
	violation := {
		"kind": "repository",
		"name": repo.name,
		"message": sprintf("repository %q git_url %q must start with one of %v", [repo.name, repo.git_url, allowed_prefixes]),
	}
}

deny contains violation if {
	some repo in input.desired.repositories
	startswith(repo.git_url, "http://")
	violation := {
		"kind": "repository",
		"name": repo.name,
		"severity": "warning",
		"message": sprintf("repository %q is fetched over plain http", [repo.name]),
	}
}
`,
	}
}

// surveyVarsPolicy checks survey variable names and enum choices.
func surveyVarsPolicy() Policy {
	return Policy{
		Name:        "survey-vars",
		Description: "Survey variable names are unique per template and enum variables offer their default",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package semsync.policies.survey

deny contains violation if {
	some tmpl in input.desired.templates
	some i, a in tmpl.survey_vars
	some j, b in tmpl.survey_vars
	i < j
	a.name == b.name
	violation := {
		"kind": "template",
		"name": tmpl.name,
		"message": sprintf("survey variable %q is declared more than once", [a.name]),
	}
}

deny contains violation if {
	some tmpl in input.desired.templates
	some sv in tmpl.survey_vars
	sv.type == "enum"
	count(object.get(sv, "choices", [])) == 0
	violation := {
		"kind": "template",
		"name": tmpl.name,
		"message": sprintf("enum survey variable %q has no choices", [sv.name]),
	}
}

deny contains violation if {
	some tmpl in input.desired.templates
	some sv in tmpl.survey_vars
	sv.type == "enum"
	default_value := object.get(sv, "default_value", "")
	default_value != ""
	choices := {c.value | some c in object.get(sv, "choices", [])}
	not default_value in choices
	violation := {
		"kind": "template",
		"name": tmpl.name,
		"severity": "warning",
		"message": sprintf("survey variable %q default %q is not one of its choices", [sv.name, default_value]),
	}
}
`,
	}
}

// inventoryContentPolicy warns about static inventories with no hosts.
func inventoryContentPolicy() Policy {
	return Policy{
		Name:        "inventory-content",
		Description: "Static inventories should list at least one host",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package semsync.policies.inventories

static_types := {"static", "static-yaml"}

deny contains violation if {
	some inv in input.desired.inventories
	object.get(inv, "type", "static") in static_types
	trim_space(object.get(inv, "inventory", "")) == ""
	violation := {
		"kind": "inventory",
		"name": inv.name,
		"message": sprintf("static inventory %q has no content", [inv.name]),
	}
}
`,
	}
}

// localReferencesPolicy flags name references to resources the document
// does not declare; those must already exist on the server.
func localReferencesPolicy() Policy {
	return Policy{
		Name:        "local-references",
		Description: "References by name should point at resources declared in the same document",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package semsync.policies.references

template_refs := {"inventory": "inventories", "repository": "repositories", "key": "keys", "environment": "environments"}

declared(collection, name) if {
	some item in object.get(input.desired, collection, [])
	item.name == name
}

deny contains violation if {
	some tmpl in input.desired.templates
	some field, collection in template_refs
	name := object.get(object.get(tmpl, field, {}), "name", "")
	name != ""
	not declared(collection, name)
	violation := {
		"kind": "template",
		"name": tmpl.name,
		"message": sprintf("%s %q is not declared here and must already exist on the server", [field, name]),
	}
}

key_holders := {"repositories": "repository", "inventories": "inventory"}

deny contains violation if {
	some collection, kind in key_holders
	some item in object.get(input.desired, collection, [])
	name := object.get(object.get(item, "key", {}), "name", "")
	name != ""
	not declared("keys", name)
	violation := {
		"kind": kind,
		"name": item.name,
		"message": sprintf("key %q is not declared here and must already exist on the server", [name]),
	}
}
`,
	}
}
