package busterctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type Options struct {
	BaseURL        string
	APIKey         string
	OrganizationID string
	UserID         string
	Timeout        time.Duration
	HTTPClient     *http.Client
	Stdout         io.Writer
	Stderr         io.Writer
}

// requestError marks failures after the command line was accepted; they exit
// with 1 instead of the usage code 2.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }

type client struct {
	baseURL        string
	apiKey         string
	organizationID string
	userID         string
	http           *http.Client
	stdout         io.Writer
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	c := &client{stdout: stdout}
	var timeout time.Duration

	root := &cobra.Command{
		Use:           "busterctl",
		Short:         "Operate the Buster query API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			c.http = defaults.HTTPClient
			if c.http == nil {
				c.http = &http.Client{Timeout: timeout}
			}
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			return errors.New("a command is required")
		},
	}
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetContext(ctx)

	flags := root.PersistentFlags()
	flags.StringVar(&c.baseURL, "base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "Buster API base URL")
	flags.StringVar(&c.apiKey, "api-key", defaults.APIKey, "API key for authenticated requests")
	flags.StringVar(&c.organizationID, "organization-id", defaults.OrganizationID, "Organization ID header (used when auth is disabled)")
	flags.StringVar(&c.userID, "user-id", defaults.UserID, "User ID header (used when auth is disabled)")
	flags.DurationVar(&timeout, "timeout", durationOr(defaults.Timeout, 10*time.Second), "HTTP timeout (e.g. 10s)")

	root.AddCommand(
		simpleCommand(c, "health", "GET /v1/health", http.MethodGet, "/v1/health"),
		simpleCommand(c, "ready", "GET /v1/ready", http.MethodGet, "/v1/ready"),
		simpleCommand(c, "data-sources", "GET /v1/data-sources", http.MethodGet, "/v1/data-sources"),
		testCommand(c),
		statementCommand(c, "query", "Run a read-only statement", "query"),
		statementCommand(c, "write", "Create or drop a view", "write"),
		statementCommand(c, "export", "Export a result to object storage as Parquet", "export"),
		runSQLCommand(c),
		generateCommand(c),
	)

	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(stderr, err.Error())
		var reqErr *requestError
		if errors.As(err, &reqErr) {
			return 1
		}
		_, _ = fmt.Fprintln(stderr)
		_, _ = fmt.Fprint(stderr, root.UsageString())
		return 2
	}
	return 0
}

func simpleCommand(c *client, use, short, method, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.call(cmd.Context(), method, path, nil)
		},
	}
}

func testCommand(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "test <data-source-id>",
		Short: "Test the connection of a stored data source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.call(cmd.Context(), http.MethodPost, "/v1/data-sources/"+args[0]+"/test", nil)
		},
	}
}

func statementCommand(c *client, use, short, action string) *cobra.Command {
	var (
		limit int
		typed bool
	)
	cmd := &cobra.Command{
		Use:   use + " <data-source-id> <sql>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"sql": args[1]}
			if limit > 0 {
				body["row_limit"] = limit
			}
			if typed {
				body["typed"] = true
			}
			return c.call(cmd.Context(), http.MethodPost, "/v1/data-sources/"+args[0]+"/"+action, body)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Row limit (capped by the server)")
	if action == "query" {
		cmd.Flags().BoolVar(&typed, "typed", false, "Return cells with their type tags")
	}
	return cmd
}

func runSQLCommand(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "run-sql <data-source-id> <sql>",
		Short: "Run a modeling statement and print data with column metadata",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.call(cmd.Context(), http.MethodPost, "/v1/sql/run", map[string]any{
				"data_source_id": args[0],
				"sql":            args[1],
			})
		},
	}
}

func generateCommand(c *client) *cobra.Command {
	var datasets []string
	cmd := &cobra.Command{
		Use:   "generate <data-source-id> <prompt>",
		Short: "Generate SQL from a natural language prompt",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.call(cmd.Context(), http.MethodPost, "/v1/sql/generate", map[string]any{
				"data_source_id": args[0],
				"prompt":         args[1],
				"datasets":       datasets,
			})
		},
	}
	cmd.Flags().StringSliceVar(&datasets, "dataset", nil, "Dataset to sample for context (repeatable)")
	return cmd
}

func (c *client) call(ctx context.Context, method, path string, payload any) error {
	endpoint := strings.TrimRight(c.baseURL, "/") + path
	code, responseBody, err := c.doRequest(ctx, method, endpoint, payload)
	if err != nil {
		return &requestError{err: fmt.Errorf("request failed: %w", err)}
	}
	if code >= 400 {
		return &requestError{err: fmt.Errorf("http %d: %s", code, strings.TrimSpace(string(responseBody)))}
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(c.stdout, pretty)
		return nil
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(c.stdout, string(responseBody))
	}
	return nil
}

func (c *client) doRequest(ctx context.Context, method, url string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := strings.TrimSpace(c.apiKey); key != "" {
		req.Header.Set("X-API-Key", key)
	}
	if organizationID := strings.TrimSpace(c.organizationID); organizationID != "" {
		req.Header.Set("X-Organization-ID", organizationID)
	}
	if userID := strings.TrimSpace(c.userID); userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
