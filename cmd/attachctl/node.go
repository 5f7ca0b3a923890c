package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Manage page servers known to the control plane",
}

var nodeRegisterCmd = &cobra.Command{
	Use:   "register [node-id] [listen-addr...]",
	Short: "Register a page server",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := clientFor(cmd)
		resp, err := c.do("POST", "/node", map[string]any{
			"node_id":      args[0],
			"listen_addrs": args[1:],
		})
		if err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

var nodeConfigureCmd = &cobra.Command{
	Use:   "configure [node-id]",
	Short: "Update a page server's availability and scheduling policy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		availability, _ := cmd.Flags().GetString("availability")
		scheduling, _ := cmd.Flags().GetString("scheduling")

		body := map[string]any{"node_id": args[0]}
		if availability != "" {
			body["availability"] = availability
		}
		if scheduling != "" {
			body["scheduling"] = scheduling
		}

		c := clientFor(cmd)
		resp, err := c.do("PUT", fmt.Sprintf("/node/%s/config", args[0]), body)
		if err != nil {
			return err
		}
		printJSON(resp)
		return nil
	},
}

func init() {
	nodeConfigureCmd.Flags().String("availability", "", "active or offline")
	nodeConfigureCmd.Flags().String("scheduling", "", "active, filling, pause or draining")

	nodeCmd.AddCommand(nodeRegisterCmd)
	nodeCmd.AddCommand(nodeConfigureCmd)
}
