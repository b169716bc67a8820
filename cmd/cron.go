package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/clawgate/internal/cron"
	"github.com/nextlevelbuilder/clawgate/pkg/protocol"
)

func cronCmd() *cobra.Command {
	var gatewayURL string

	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Manage scheduled jobs",
	}
	cmd.PersistentFlags().StringVar(&gatewayURL, "gateway", "", "gateway websocket URL (default: from config)")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dialGateway(gatewayURL)
			if err != nil {
				return err
			}
			defer client.close()

			result, err := client.call(protocol.MethodCronList, nil)
			if err != nil {
				return err
			}
			var payload struct {
				Jobs []*cron.Job `json:"jobs"`
			}
			if err := json.Unmarshal(result, &payload); err != nil {
				return err
			}
			if len(payload.Jobs) == 0 {
				fmt.Println("No cron jobs.")
				return nil
			}
			for _, j := range payload.Jobs {
				state := "disabled"
				if j.Enabled {
					state = "enabled"
				}
				next := "-"
				if j.NextExecutionAt != nil {
					next = j.NextExecutionAt.Format(time.RFC3339)
				}
				fmt.Printf("%s  %-20s  %-16s  %s  next=%s  runs=%d  failures=%d\n",
					j.ID, j.Name, j.CronExpression, state, next, j.ExecutionCount, j.FailureCount)
				if j.LastError != "" {
					fmt.Printf("    last error: %s\n", j.LastError)
				}
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "run <job-id>",
		Short: "Run a job immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dialGateway(gatewayURL)
			if err != nil {
				return err
			}
			defer client.close()

			if _, err := client.call(protocol.MethodCronRun, map[string]string{"id": args[0]}); err != nil {
				return err
			}
			fmt.Println("started")
			return nil
		},
	})

	return cmd
}
