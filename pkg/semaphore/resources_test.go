package semaphore

import (
	"context"
	"testing"

	"github.com/alamotechllc/semsync/pkg/semaphore/semaphoretest"
)

func TestResourceLifecycle(t *testing.T) {
	srv := semaphoretest.NewServer("admin", "changeme", "token")
	defer srv.Close()
	c := newTokenClient(t, srv)
	ctx := context.Background()

	if c.Session().Mode() != AuthModeToken {
		t.Fatalf("Expected token mode, got %s", c.Session().Mode())
	}

	project, err := c.CreateProject(ctx, "network", "")
	if err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	if err := c.UpdateProject(ctx, project.ID, ProjectUpdate{Description: String("switches")}); err != nil {
		t.Fatalf("UpdateProject failed: %v", err)
	}
	got, err := c.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if got.Description != "switches" {
		t.Errorf("Expected description switches, got %q", got.Description)
	}

	key, err := c.CreateKey(ctx, project.ID, SSHKey{Name: "deploy", PrivateKey: "old"})
	if err != nil {
		t.Fatalf("CreateKey failed: %v", err)
	}
	if key.Type != "ssh" {
		t.Errorf("Expected default type ssh, got %q", key.Type)
	}
	if err := c.UpdateKey(ctx, project.ID, key.ID, SSHKeyUpdate{Name: String("deploy-2")}); err != nil {
		t.Fatalf("UpdateKey failed: %v", err)
	}
	gotKey, err := c.GetKey(ctx, project.ID, key.ID)
	if err != nil {
		t.Fatalf("GetKey failed: %v", err)
	}
	if gotKey.Name != "deploy-2" || gotKey.PrivateKey != "" {
		t.Errorf("Expected renamed key without private part, got %+v", gotKey)
	}

	repo, err := c.CreateRepository(ctx, project.ID, Repository{Name: "playbooks", GitURL: "https://git.example.com/p.git", SSHKeyID: key.ID})
	if err != nil {
		t.Fatalf("CreateRepository failed: %v", err)
	}
	if err := c.UpdateRepository(ctx, project.ID, repo.ID, RepositoryUpdate{GitBranch: String("main")}); err != nil {
		t.Fatalf("UpdateRepository failed: %v", err)
	}
	gotRepo, err := c.GetRepository(ctx, project.ID, repo.ID)
	if err != nil {
		t.Fatalf("GetRepository failed: %v", err)
	}
	if gotRepo.GitBranch != "main" {
		t.Errorf("Expected branch main, got %q", gotRepo.GitBranch)
	}

	inv, err := c.CreateInventory(ctx, project.ID, Inventory{Name: "switches", Inventory: "[switches]\nsw-01"})
	if err != nil {
		t.Fatalf("CreateInventory failed: %v", err)
	}
	if err := c.UpdateInventory(ctx, project.ID, inv.ID, InventoryUpdate{SSHKeyID: Int(key.ID)}); err != nil {
		t.Fatalf("UpdateInventory failed: %v", err)
	}
	gotInv, err := c.GetInventory(ctx, project.ID, inv.ID)
	if err != nil {
		t.Fatalf("GetInventory failed: %v", err)
	}
	if gotInv.Type != "static" || gotInv.SSHKeyID != key.ID {
		t.Errorf("Expected static inventory with key %d, got %+v", key.ID, gotInv)
	}

	secret, err := c.CreateSecret(ctx, project.ID, Secret{Name: "enable", Value: "s3cret"})
	if err != nil {
		t.Fatalf("CreateSecret failed: %v", err)
	}
	if err := c.UpdateSecret(ctx, project.ID, secret.ID, SecretUpdate{Value: String("rotated")}); err != nil {
		t.Fatalf("UpdateSecret failed: %v", err)
	}
	update := srv.Requests("PUT", "/project/")
	if body := update[len(update)-1].JSON(); body["value"] != "rotated" || body["name"] != nil {
		t.Errorf("Expected sparse secret update, got %v", body)
	}
	secrets, err := c.ListSecrets(ctx, project.ID)
	if err != nil {
		t.Fatalf("ListSecrets failed: %v", err)
	}
	if len(secrets) != 1 || secrets[0].Value != "" {
		t.Errorf("Expected one secret without value, got %+v", secrets)
	}

	for _, del := range []func() (bool, error){
		func() (bool, error) { return c.DeleteSecret(ctx, project.ID, secret.ID) },
		func() (bool, error) { return c.DeleteInventory(ctx, project.ID, inv.ID) },
		func() (bool, error) { return c.DeleteRepository(ctx, project.ID, repo.ID) },
		func() (bool, error) { return c.DeleteKey(ctx, project.ID, key.ID) },
		func() (bool, error) { return c.DeleteProject(ctx, project.ID) },
	} {
		ok, err := del()
		if err != nil || !ok {
			t.Fatalf("Expected delete to succeed, got %v, %v", ok, err)
		}
	}
	if _, err := c.GetProject(ctx, project.ID); !IsNotFound(err) {
		t.Errorf("Expected not found after delete, got %v", err)
	}
}
