package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered servers",
	Run: func(cmd *cobra.Command, args []string) {
		_, st, _ := openStore()

		defs, err := st.ListDefinitions()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to list servers: %v\n", err)
			os.Exit(1)
		}
		if len(defs) == 0 {
			fmt.Println("no servers registered")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tKIND\tSTATUS\tAUTOSTART\tAUTORESTART\tDIR\tID")
		for _, d := range defs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%v\t%s\t%s\n",
				d.Name, d.Kind, d.Status, d.AutoStart, d.AutoRestart, d.Dir, d.ID)
		}
		_ = w.Flush()
	},
}
