package semaphore

import "context"

// Named is implemented by every record that can be looked up by name.
type Named interface {
	ResourceName() string
}

// FindByName scans items in order and returns the first whose name matches.
func FindByName[T Named](items []T, name string) (T, bool) {
	for _, item := range items {
		if item.ResourceName() == name {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// CountByName returns how many items carry name.
func CountByName[T Named](items []T, name string) int {
	n := 0
	for _, item := range items {
		if item.ResourceName() == name {
			n++
		}
	}
	return n
}

// Lookup resolves records by name. The API has no name filter, so every
// lookup lists the collection and scans it. With Strict set, a name matching
// more than one record is an *AmbiguousNameError; otherwise the first match
// in server order wins.
type Lookup struct {
	client *Client
	Strict bool
}

// NewLookup returns a Lookup backed by c.
func NewLookup(c *Client, strict bool) *Lookup {
	return &Lookup{client: c, Strict: strict}
}

// Pick applies the lookup's tie-break rules to an already listed collection.
// It returns nil when no item matches.
func Pick[T Named](items []T, collection, name string, strict bool) (*T, error) {
	item, ok := FindByName(items, name)
	if !ok {
		return nil, nil
	}
	if strict {
		if n := CountByName(items, name); n > 1 {
			return nil, &AmbiguousNameError{Collection: collection, Name: name, Count: n}
		}
	}
	return &item, nil
}

func find[T Named](ctx context.Context, l *Lookup, collection, name string, list func(context.Context) ([]T, error)) (*T, error) {
	items, err := list(ctx)
	if err != nil {
		return nil, err
	}
	return Pick(items, collection, name, l.Strict)
}

// FindProject looks up a project by name.
func (l *Lookup) FindProject(ctx context.Context, name string) (*Project, error) {
	return find(ctx, l, "projects", name, l.client.ListProjects)
}

// FindKey looks up an SSH key by name.
func (l *Lookup) FindKey(ctx context.Context, projectID int, name string) (*SSHKey, error) {
	return find(ctx, l, "keys", name, func(ctx context.Context) ([]SSHKey, error) {
		return l.client.ListKeys(ctx, projectID)
	})
}

// FindRepository looks up a repository by name.
func (l *Lookup) FindRepository(ctx context.Context, projectID int, name string) (*Repository, error) {
	return find(ctx, l, "repositories", name, func(ctx context.Context) ([]Repository, error) {
		return l.client.ListRepositories(ctx, projectID)
	})
}

// FindInventory looks up an inventory by name.
func (l *Lookup) FindInventory(ctx context.Context, projectID int, name string) (*Inventory, error) {
	return find(ctx, l, "inventories", name, func(ctx context.Context) ([]Inventory, error) {
		return l.client.ListInventories(ctx, projectID)
	})
}

// FindSecret looks up a secret by name.
func (l *Lookup) FindSecret(ctx context.Context, projectID int, name string) (*Secret, error) {
	return find(ctx, l, "secrets", name, func(ctx context.Context) ([]Secret, error) {
		return l.client.ListSecrets(ctx, projectID)
	})
}

// FindEnvironment looks up an environment by name.
func (l *Lookup) FindEnvironment(ctx context.Context, projectID int, name string) (*Environment, error) {
	return find(ctx, l, "environments", name, func(ctx context.Context) ([]Environment, error) {
		return l.client.ListEnvironments(ctx, projectID)
	})
}

// FindTemplate looks up a template by name.
func (l *Lookup) FindTemplate(ctx context.Context, projectID int, name string) (*Template, error) {
	return find(ctx, l, "templates", name, func(ctx context.Context) ([]Template, error) {
		return l.client.ListTemplates(ctx, projectID)
	})
}
