package semaphore

import (
	"context"
	"fmt"
)

// Projects

// ListProjects returns every project visible to the session.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	return listOf[Project](ctx, c, "/projects", nil)
}

// GetProject returns one project.
func (c *Client) GetProject(ctx context.Context, projectID int) (*Project, error) {
	return getOne[Project](ctx, c, projectPath(projectID))
}

// CreateProject creates a project.
func (c *Client) CreateProject(ctx context.Context, name, description string) (*Project, error) {
	body := struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}{name, description}
	return createOne[Project](ctx, c, "/projects", body)
}

// UpdateProject applies a sparse update.
func (c *Client) UpdateProject(ctx context.Context, projectID int, u ProjectUpdate) error {
	body := struct {
		ID int `json:"id"`
		ProjectUpdate
	}{projectID, u}
	_, err := c.put(ctx, projectPath(projectID), body)
	return err
}

// DeleteProject deletes a project.
func (c *Client) DeleteProject(ctx context.Context, projectID int) (bool, error) {
	return c.remove(ctx, projectPath(projectID))
}

// SSH keys

// ListKeys returns the project's keys.
func (c *Client) ListKeys(ctx context.Context, projectID int) ([]SSHKey, error) {
	return listOf[SSHKey](ctx, c, projectPath(projectID, "keys"), nil)
}

// GetKey returns one key.
func (c *Client) GetKey(ctx context.Context, projectID, keyID int) (*SSHKey, error) {
	return getOne[SSHKey](ctx, c, projectPath(projectID, "keys", keyID))
}

// CreateKey creates an SSH key. Type defaults to "ssh".
func (c *Client) CreateKey(ctx context.Context, projectID int, key SSHKey) (*SSHKey, error) {
	if key.Type == "" {
		key.Type = "ssh"
	}
	body := struct {
		ProjectID  int    `json:"project_id"`
		Name       string `json:"name"`
		Type       string `json:"type"`
		PrivateKey string `json:"private_key"`
		PublicKey  string `json:"public_key,omitempty"`
	}{projectID, key.Name, key.Type, key.PrivateKey, key.PublicKey}
	return createOne[SSHKey](ctx, c, projectPath(projectID, "keys"), body)
}

// UpdateKey applies a sparse update, typically a rotation.
func (c *Client) UpdateKey(ctx context.Context, projectID, keyID int, u SSHKeyUpdate) error {
	body := struct {
		ID        int `json:"id"`
		ProjectID int `json:"project_id"`
		SSHKeyUpdate
	}{keyID, projectID, u}
	_, err := c.put(ctx, projectPath(projectID, "keys", keyID), body)
	return err
}

// DeleteKey deletes a key.
func (c *Client) DeleteKey(ctx context.Context, projectID, keyID int) (bool, error) {
	return c.remove(ctx, projectPath(projectID, "keys", keyID))
}

// Repositories

// ListRepositories returns the project's repositories.
func (c *Client) ListRepositories(ctx context.Context, projectID int) ([]Repository, error) {
	return listOf[Repository](ctx, c, projectPath(projectID, "repositories"), nil)
}

// GetRepository returns one repository.
func (c *Client) GetRepository(ctx context.Context, projectID, repoID int) (*Repository, error) {
	return getOne[Repository](ctx, c, projectPath(projectID, "repositories", repoID))
}

// CreateRepository creates a repository. A repository without a key is
// rejected before any request is sent.
func (c *Client) CreateRepository(ctx context.Context, projectID int, repo Repository) (*Repository, error) {
	if repo.SSHKeyID <= 0 {
		return nil, fmt.Errorf("%w: repository %q requires ssh_key_id", ErrPrecondition, repo.Name)
	}
	body := struct {
		ProjectID int    `json:"project_id"`
		Name      string `json:"name"`
		GitURL    string `json:"git_url"`
		GitBranch string `json:"git_branch,omitempty"`
		SSHKeyID  int    `json:"ssh_key_id"`
	}{projectID, repo.Name, repo.GitURL, repo.GitBranch, repo.SSHKeyID}
	return createOne[Repository](ctx, c, projectPath(projectID, "repositories"), body)
}

// UpdateRepository applies a sparse update.
func (c *Client) UpdateRepository(ctx context.Context, projectID, repoID int, u RepositoryUpdate) error {
	body := struct {
		ID        int `json:"id"`
		ProjectID int `json:"project_id"`
		RepositoryUpdate
	}{repoID, projectID, u}
	_, err := c.put(ctx, projectPath(projectID, "repositories", repoID), body)
	return err
}

// DeleteRepository deletes a repository.
func (c *Client) DeleteRepository(ctx context.Context, projectID, repoID int) (bool, error) {
	return c.remove(ctx, projectPath(projectID, "repositories", repoID))
}

// Inventories

// ListInventories returns the project's inventories.
func (c *Client) ListInventories(ctx context.Context, projectID int) ([]Inventory, error) {
	return listOf[Inventory](ctx, c, projectPath(projectID, "inventories"), nil)
}

// GetInventory returns one inventory.
func (c *Client) GetInventory(ctx context.Context, projectID, inventoryID int) (*Inventory, error) {
	return getOne[Inventory](ctx, c, projectPath(projectID, "inventories", inventoryID))
}

// CreateInventory creates an inventory. Type defaults to "static".
func (c *Client) CreateInventory(ctx context.Context, projectID int, inv Inventory) (*Inventory, error) {
	if inv.Type == "" {
		inv.Type = "static"
	}
	body := struct {
		ProjectID int    `json:"project_id"`
		Name      string `json:"name"`
		Type      string `json:"type"`
		Inventory string `json:"inventory"`
		SSHKeyID  int    `json:"ssh_key_id,omitempty"`
	}{projectID, inv.Name, inv.Type, inv.Inventory, inv.SSHKeyID}
	return createOne[Inventory](ctx, c, projectPath(projectID, "inventories"), body)
}

// UpdateInventory applies a sparse update.
func (c *Client) UpdateInventory(ctx context.Context, projectID, inventoryID int, u InventoryUpdate) error {
	body := struct {
		ID        int `json:"id"`
		ProjectID int `json:"project_id"`
		InventoryUpdate
	}{inventoryID, projectID, u}
	_, err := c.put(ctx, projectPath(projectID, "inventories", inventoryID), body)
	return err
}

// DeleteInventory deletes an inventory.
func (c *Client) DeleteInventory(ctx context.Context, projectID, inventoryID int) (bool, error) {
	return c.remove(ctx, projectPath(projectID, "inventories", inventoryID))
}

// Secrets

// ListSecrets returns the project's secrets. Values are not included.
func (c *Client) ListSecrets(ctx context.Context, projectID int) ([]Secret, error) {
	return listOf[Secret](ctx, c, projectPath(projectID, "secrets"), nil)
}

// CreateSecret creates a secret.
func (c *Client) CreateSecret(ctx context.Context, projectID int, secret Secret) (*Secret, error) {
	body := struct {
		ProjectID   int    `json:"project_id"`
		Name        string `json:"name"`
		Value       string `json:"value"`
		Description string `json:"description"`
	}{projectID, secret.Name, secret.Value, secret.Description}
	return createOne[Secret](ctx, c, projectPath(projectID, "secrets"), body)
}

// UpdateSecret applies a sparse update.
func (c *Client) UpdateSecret(ctx context.Context, projectID, secretID int, u SecretUpdate) error {
	body := struct {
		ID        int `json:"id"`
		ProjectID int `json:"project_id"`
		SecretUpdate
	}{secretID, projectID, u}
	_, err := c.put(ctx, projectPath(projectID, "secrets", secretID), body)
	return err
}

// DeleteSecret deletes a secret.
func (c *Client) DeleteSecret(ctx context.Context, projectID, secretID int) (bool, error) {
	return c.remove(ctx, projectPath(projectID, "secrets", secretID))
}

// Environments

// ListEnvironments returns the project's environments.
func (c *Client) ListEnvironments(ctx context.Context, projectID int) ([]Environment, error) {
	return listOf[Environment](ctx, c, projectPath(projectID, "environment"), nil)
}

// CreateEnvironment creates an environment. JSON defaults to "{}".
func (c *Client) CreateEnvironment(ctx context.Context, projectID int, env Environment) (*Environment, error) {
	if env.JSON == "" {
		env.JSON = "{}"
	}
	body := struct {
		ProjectID int    `json:"project_id"`
		Name      string `json:"name"`
		JSON      string `json:"json"`
		Env       string `json:"env,omitempty"`
	}{projectID, env.Name, env.JSON, env.Env}
	return createOne[Environment](ctx, c, projectPath(projectID, "environment"), body)
}

// DeleteEnvironment deletes an environment.
func (c *Client) DeleteEnvironment(ctx context.Context, projectID, envID int) (bool, error) {
	return c.remove(ctx, projectPath(projectID, "environment", envID))
}
