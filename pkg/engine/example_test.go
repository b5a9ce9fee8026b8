package engine_test

import (
	"context"
	"fmt"

	"github.com/alamotechllc/semsync/pkg/engine"
	"github.com/alamotechllc/semsync/pkg/semaphore"
	"github.com/alamotechllc/semsync/pkg/semaphore/semaphoretest"
)

func ExampleMergeSurveyVars() {
	existing := []semaphore.SurveyVar{
		{Name: "switch_name", Title: "Switch name", DefaultValue: "sw-01"},
	}
	desired := []semaphore.SurveyVar{
		{Name: "switch_name", Title: "ignored"},
		{Name: "port_interface", Title: "Port"},
	}

	merged, added := engine.MergeSurveyVars(existing, desired)
	for _, v := range merged {
		fmt.Printf("%s (%s)\n", v.Name, v.Title)
	}
	fmt.Println("added:", added)
	// Output:
	// switch_name (Switch name)
	// port_interface (Port)
	// added: [port_interface]
}

// Example_reconcile shows a run against an in-memory server: the key,
// repository and template are created, and a second run reuses them.
func Example_reconcile() {
	srv := semaphoretest.NewServer("admin", "changeme", "token")
	defer srv.Close()
	pid := srv.AddProject("network")
	srv.Seed(pid, "inventories", map[string]any{"id": 7, "name": "switches", "type": "static"})

	client, err := semaphore.New(srv.URL, semaphore.NewTokenSession("token"))
	if err != nil {
		fmt.Println(err)
		return
	}

	desired := &engine.DesiredState{
		Project: engine.ProjectSpec{Name: "network"},
		Keys:    []engine.KeySpec{{Name: "deploy", Type: "none"}},
		Repositories: []engine.RepositorySpec{
			{Name: "playbooks", GitURL: "https://git.example.com/playbooks.git", Key: engine.ByName("deploy")},
		},
		Templates: []engine.TemplateSpec{{
			Name:       "configure-switch",
			Playbook:   "switch.yml",
			Inventory:  engine.ByID(7),
			Repository: engine.ByName("playbooks"),
		}},
	}

	eng := engine.New(client, engine.Options{})
	for i := 0; i < 2; i++ {
		report, err := eng.Reconcile(context.Background(), desired)
		if err != nil {
			fmt.Println(err)
			return
		}
		for _, o := range report.Outcomes {
			fmt.Printf("%s %s: %s\n", o.Kind, o.Name, o.Action)
		}
	}
	// Output:
	// project network: reused
	// key deploy: created
	// repository playbooks: created
	// template configure-switch: created
	// project network: reused
	// key deploy: reused
	// repository playbooks: reused
	// template configure-switch: reused
}
