package cmd

import (
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List every task of the build graph",
	Args:  cobra.NoArgs,
	RunE:  runTasks,
}

func init() {
	rootCmd.AddCommand(tasksCmd)
}

func runTasks(cmd *cobra.Command, args []string) error {
	g := siteGraph()
	title := cases.Title(language.English)

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"Task", "Depends on", "Kind", "Description"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT})

	for _, name := range g.Names() {
		node, _ := g.Node(name)
		deps := "-"
		if len(node.Deps) > 0 {
			deps = strings.Join(node.Deps, ", ")
		}
		table.Append([]string{name, deps, title.String(node.Kind()), node.Description})
	}

	table.Render()
	return nil
}
