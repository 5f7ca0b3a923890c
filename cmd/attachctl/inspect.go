package main

import (
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [tenant-shard-id]",
	Short: "Show the attached node in a shard's current intent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := clientFor(cmd)
		resp, err := c.do("POST", "/inspect", map[string]any{"tenant_shard_id": args[0]})
		if err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}
