package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "attachctl",
	Short: "attachctl is the operator CLI for the attachment control plane",
}

func init() {
	rootCmd.PersistentFlags().String("server", "http://localhost:6440", "attachd base URL")

	rootCmd.AddCommand(nodeCmd)
	rootCmd.AddCommand(tenantCmd)
	rootCmd.AddCommand(inspectCmd)
}

// apiClient issues JSON requests against a running attachd and pretty-prints
// the response body.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func clientFor(cmd *cobra.Command) *apiClient {
	server, _ := cmd.Flags().GetString("server")
	return &apiClient{baseURL: server, http: http.DefaultClient}
}

func (c *apiClient) do(method, path string, body any) (map[string]any, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if resp.ContentLength != 0 {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return out, fmt.Errorf("%s %s: status %d: %v", method, path, resp.StatusCode, out["error"])
	}
	return out, nil
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode output: %v\n", err)
		return
	}
	fmt.Println(string(data))
}
