package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/alamotechllc/semsync/pkg/engine"
	"github.com/alamotechllc/semsync/pkg/policy"
	"github.com/alamotechllc/semsync/pkg/semaphore"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer, header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(header)
	return tw
}

func (c *cli) printReport(w io.Writer, report *engine.Report) error {
	if c.jsonOutput {
		return printJSON(w, report)
	}
	tw := newTable(w, table.Row{"Kind", "Name", "ID", "Action", "Detail"})
	for _, o := range report.Outcomes {
		detail := strings.Join(o.Changes, ", ")
		if o.Err != nil {
			detail = o.Err.Error()
		}
		id := ""
		if o.ID > 0 {
			id = fmt.Sprint(o.ID)
		}
		tw.AppendRow(table.Row{o.Kind, o.Name, id, o.Action, detail})
	}
	tw.Render()
	fmt.Fprintln(w, report)
	return nil
}

func (c *cli) printViolations(w io.Writer, result *policy.Result) error {
	if c.jsonOutput {
		return printJSON(w, result)
	}
	if len(result.Violations) == 0 {
		fmt.Fprintf(w, "%d policies passed\n", len(result.EvaluatedPolicies))
		return nil
	}
	tw := newTable(w, table.Row{"Severity", "Policy", "Kind", "Name", "Message"})
	for _, v := range result.Violations {
		tw.AppendRow(table.Row{v.Severity, v.Policy, v.Kind, v.Name, v.Message})
	}
	tw.Render()
	return nil
}

func (c *cli) printFindings(w io.Writer, findings []engine.Finding) error {
	if c.jsonOutput {
		if findings == nil {
			findings = []engine.Finding{}
		}
		return printJSON(w, findings)
	}
	if len(findings) == 0 {
		fmt.Fprintln(w, "No findings")
		return nil
	}
	tw := newTable(w, table.Row{"Severity", "Kind", "Name", "Message"})
	for _, f := range findings {
		tw.AppendRow(table.Row{f.Severity, f.Kind, f.Name, f.Message})
	}
	tw.Render()
	return nil
}

func (c *cli) printSnapshot(w io.Writer, s *engine.Snapshot) error {
	if c.jsonOutput {
		return printJSON(w, s)
	}
	fmt.Fprintf(w, "Project: %s (#%d)\n", s.Project.Name, s.Project.ID)

	tw := newTable(w, table.Row{"Kind", "ID", "Name", "Detail"})
	for _, k := range s.Keys {
		tw.AppendRow(table.Row{engine.KindKey, k.ID, k.Name, k.Type})
	}
	for _, r := range s.Repositories {
		tw.AppendRow(table.Row{engine.KindRepository, r.ID, r.Name, r.GitURL})
	}
	for _, inv := range s.Inventories {
		tw.AppendRow(table.Row{engine.KindInventory, inv.ID, inv.Name, inv.Type})
	}
	for _, sec := range s.Secrets {
		tw.AppendRow(table.Row{engine.KindSecret, sec.ID, sec.Name, ""})
	}
	for _, env := range s.Environments {
		tw.AppendRow(table.Row{engine.KindEnvironment, env.ID, env.Name, ""})
	}
	for _, t := range s.Templates {
		tw.AppendRow(table.Row{engine.KindTemplate, t.ID, t.Name, t.Playbook})
	}
	tw.Render()

	if len(s.Tasks) > 0 {
		fmt.Fprintln(w, "Recent tasks:")
		return c.printTasks(w, s.Tasks)
	}
	return nil
}

func (c *cli) printTasks(w io.Writer, tasks []semaphore.Task) error {
	if c.jsonOutput {
		if tasks == nil {
			tasks = []semaphore.Task{}
		}
		return printJSON(w, tasks)
	}
	tw := newTable(w, table.Row{"ID", "Template", "Status", "Created", "Vars", "Message"})
	for _, t := range tasks {
		created := ""
		if t.Created != nil {
			created = t.Created.Local().Format("2006-01-02 15:04:05")
		}
		vars := ""
		if len(t.ExtraVars) > 0 {
			vars = fmt.Sprint(map[string]any(t.ExtraVars))
		}
		tw.AppendRow(table.Row{t.ID, t.TemplateID, t.Status, created, vars, t.Message})
	}
	tw.Render()
	return nil
}
