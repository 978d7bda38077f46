package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newBrandsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "brands",
		Short: "List configured brand profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			brands, err := loadBrands(cmd)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), brands)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tAGENT\tPHONE\tFIELDS")
			for _, b := range brands {
				names := make([]string, 0, len(b.Fields))
				for _, f := range b.Fields {
					name := f.Name + ":" + f.Kind
					if f.Required {
						name += "*"
					}
					names = append(names, name)
				}
				phone := "-"
				if b.FromNumber != "" {
					phone = b.FromNumber
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", b.ID, b.Name, b.AgentID, phone, strings.Join(names, ","))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "output-json", false, "Print brands as JSON")
	return cmd
}
