// Copyright 2026 BrightClass
// SPDX-License-Identifier: Apache-2.0

// Package main implements the brightctl CLI for operating the BrightClass
// LLM orchestrator: inspecting backend health, sending test completions and
// scaffolding configuration.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"brightclass/platform/config"
	"brightclass/platform/llm"
)

var version = "1.0.0"

func main() {
	var serverURL string

	rootCmd := &cobra.Command{
		Use:     "brightctl",
		Short:   "BrightClass orchestrator CLI",
		Long:    `brightctl inspects and exercises a running BrightClass LLM orchestrator.`,
		Version: version,
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server",
		envOr("BRIGHTCLASS_SERVER", "http://localhost:8080"), "orchestrator base URL")

	rootCmd.AddCommand(backendsCmd(&serverURL))
	rootCmd.AddCommand(completeCmd(&serverURL))
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// backendsCmd lists every registered backend with its health record.
func backendsCmd(serverURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List backends and their health",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Get(*serverURL + "/api/v1/backends")
			if err != nil {
				return fmt.Errorf("reaching orchestrator: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("orchestrator returned %s", resp.Status)
			}

			var records map[string]llm.HealthRecord
			if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
				return fmt.Errorf("decoding response: %w", err)
			}

			names := make([]string, 0, len(records))
			for name := range records {
				names = append(names, name)
			}
			sort.Strings(names)

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-24s %-10s %10s %10s %12s\n",
				"BACKEND", "STATUS", "REQUESTS", "ERR RATE", "AVG LATENCY")
			for _, name := range names {
				r := records[name]
				fmt.Fprintf(w, "%-24s %-10s %10d %9.1f%% %12s\n",
					name, r.Status, r.TotalRequests, r.ErrorRate*100, r.AvgLatency.Round(time.Millisecond))
			}
			return nil
		},
	}
}

// completeCmd sends one completion through the orchestrator.
func completeCmd(serverURL *string) *cobra.Command {
	var task, model, system string
	var maxTokens int
	var stream bool

	cmd := &cobra.Command{
		Use:   "complete [prompt]",
		Short: "Send a completion request",
		Long: `Send a completion through the orchestrator. The prompt is read from
the argument, or from stdin when omitted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := readPrompt(args)
			if err != nil {
				return err
			}

			body := map[string]any{
				"task":   task,
				"prompt": prompt,
			}
			if system != "" {
				body["context"] = map[string]string{"system": system}
			}
			opts := map[string]any{}
			if model != "" {
				opts["model"] = model
			}
			if maxTokens > 0 {
				opts["max_tokens"] = maxTokens
			}
			if len(opts) > 0 {
				body["options"] = opts
			}

			payload, err := json.Marshal(body)
			if err != nil {
				return err
			}

			path := "/api/v1/completions"
			if stream {
				path = "/api/v1/completions/stream"
			}
			resp, err := http.Post(*serverURL+path, "application/json", bytes.NewReader(payload))
			if err != nil {
				return fmt.Errorf("reaching orchestrator: %w", err)
			}
			defer resp.Body.Close()

			if stream {
				return printStream(cmd, resp)
			}
			return printCompletion(cmd, resp)
		},
	}

	cmd.Flags().StringVar(&task, "task", "tutoring", "task category")
	cmd.Flags().StringVar(&model, "model", "", "model override")
	cmd.Flags().StringVar(&system, "system", "", "system prompt")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "max output tokens")
	cmd.Flags().BoolVar(&stream, "stream", false, "stream the response")
	return cmd
}

func readPrompt(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	data, err := bufio.NewReader(os.Stdin).ReadString(0)
	if err != nil && data == "" {
		return "", fmt.Errorf("reading prompt from stdin: %w", err)
	}
	prompt := strings.TrimSpace(data)
	if prompt == "" {
		return "", fmt.Errorf("empty prompt")
	}
	return prompt, nil
}

func printCompletion(cmd *cobra.Command, resp *http.Response) error {
	var parsed struct {
		Content string    `json:"content"`
		Backend string    `json:"backend"`
		Model   string    `json:"model"`
		Usage   llm.Usage `json:"usage"`
		Error   string    `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("orchestrator returned %s: %s", resp.Status, parsed.Error)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, parsed.Content)
	fmt.Fprintf(cmd.ErrOrStderr(), "\n[%s/%s: %d tokens, $%.6f]\n",
		parsed.Backend, parsed.Model, parsed.Usage.TotalTokens, parsed.Usage.CostUSD)
	return nil
}

// printStream renders the SSE stream, writing partial content as it arrives.
func printStream(cmd *cobra.Command, resp *http.Response) error {
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("orchestrator returned %s", resp.Status)
	}

	w := cmd.OutOrStdout()
	scanner := bufio.NewScanner(resp.Body)
	var event string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data := strings.TrimPrefix(line, "data: ")
			switch event {
			case "partial":
				var partial struct {
					Content string `json:"content"`
				}
				if json.Unmarshal([]byte(data), &partial) == nil {
					fmt.Fprint(w, partial.Content)
				}
			case "error":
				fmt.Fprintln(w)
				return fmt.Errorf("stream error: %s", data)
			case "done":
				fmt.Fprintln(w)
				return nil
			}
		}
	}
	fmt.Fprintln(w)
	return scanner.Err()
}

// configCmd prints a starter configuration file.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print an example configuration file",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), config.ExampleConfig())
		},
	}
}
