package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sitereport/sitereport/internal/config"
	"github.com/sitereport/sitereport/internal/handler/dto"
)

// newClientsCmd lists the registry. It reads only the clients file, so it
// works without database or upstream credentials.
func newClientsCmd() *cobra.Command {
	var (
		file       string
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "clients",
		Short: "List configured clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := config.LoadClients(file)
			if err != nil {
				return err
			}
			return runClients(cmd, reg.All(), jsonOutput)
		},
	}
	cmd.Flags().StringVar(&file, "clients-file", defaultClientsFile(), "Client registry TOML (env CLIENTS_FILE)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func defaultClientsFile() string {
	if f := os.Getenv("CLIENTS_FILE"); f != "" {
		return f
	}
	return "clients.toml"
}

func runClients(cmd *cobra.Command, clients []config.Client, jsonOutput bool) error {
	if jsonOutput {
		resp := dto.ClientListResponse{Data: make([]dto.ClientResponse, 0, len(clients))}
		for _, c := range clients {
			resp.Data = append(resp.Data, dto.ToClientResponse(c))
		}
		return writeJSON(cmd.OutOrStdout(), resp)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDOMAIN\tTIMEZONE\tPERFORMANCE URLS")
	for _, c := range clients {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.ID, c.Domain, c.TimezoneName(), strings.Join(c.PerformanceURLs, ","))
	}
	return tw.Flush()
}
