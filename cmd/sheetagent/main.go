// Command sheetagent is a terminal harness for the agent API, useful for
// poking at a running server without the spreadsheet frontend.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sheetagent",
		Short: "Talk to a running sheetagent server",
	}
	root.PersistentFlags().String("server", "http://localhost:5001", "agent server base URL")
	_ = viper.BindPFlag("server", root.PersistentFlags().Lookup("server"))
	_ = viper.BindEnv("server", "SHEETAGENT_SERVER")

	root.AddCommand(
		newGetCmd("health", "Check server health", "/api/health"),
		newGetCmd("tools", "List the tools exposed to the model", "/api/tools"),
		newGetCmd("explain", "Show the framework explanation", "/api/explain"),
		newQueryCmd("chat", "Run a query through the agent loop", "/api/chat"),
		newQueryCmd("table", "Run a query and extract a structured table", "/api/process-table"),
	)
	return root
}

func newGetCmd(name, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd.OutOrStdout(), http.MethodGet, path, nil)
		},
	}
}

func newQueryCmd(name, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <query>",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"query": strings.Join(args, " ")}
			return call(cmd.OutOrStdout(), http.MethodPost, path, body)
		},
	}
}

func call(out io.Writer, method, path string, body any) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(buf)
	}
	url := strings.TrimRight(viper.GetString("server"), "/") + path
	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 10 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, url)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		raw = pretty.Bytes()
	}
	fmt.Fprintln(out, string(raw))
	if resp.StatusCode >= 400 {
		return errors.Errorf("server returned %d", resp.StatusCode)
	}
	return nil
}
