package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Manage tenants and their shards",
}

var tenantCreateCmd = &cobra.Command{
	Use:   "create [tenant-id]",
	Short: "Create a tenant and schedule its shards",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		shardCount, _ := cmd.Flags().GetInt("shard-count")
		mode, _ := cmd.Flags().GetString("placement")
		secondaries, _ := cmd.Flags().GetInt("secondaries")

		body := map[string]any{
			"tenant_id":   args[0],
			"shard_count": shardCount,
		}
		if mode != "" {
			body["placement"] = map[string]any{"mode": mode, "secondaries": secondaries}
		}

		c := clientFor(cmd)
		resp, err := c.do("POST", "/tenant", body)
		if err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

var tenantLocateCmd = &cobra.Command{
	Use:   "locate [tenant-id]",
	Short: "Show the current placement of a tenant's shards",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := clientFor(cmd)
		resp, err := c.do("GET", fmt.Sprintf("/tenant/%s/locate", args[0]), nil)
		if err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

var tenantMigrateCmd = &cobra.Command{
	Use:   "migrate [tenant-shard-id] [node-id]",
	Short: "Migrate a tenant shard to a different node",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := clientFor(cmd)
		resp, err := c.do("PUT", fmt.Sprintf("/tenant/%s/migrate", args[0]), map[string]any{"node_id": args[1]})
		if err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

func init() {
	tenantCreateCmd.Flags().Int("shard-count", 1, "number of shards to allocate")
	tenantCreateCmd.Flags().String("placement", "", "placement mode: single or double")
	tenantCreateCmd.Flags().Int("secondaries", 0, "secondary copy count for double placement")

	tenantCmd.AddCommand(tenantCreateCmd)
	tenantCmd.AddCommand(tenantLocateCmd)
	tenantCmd.AddCommand(tenantMigrateCmd)
}
