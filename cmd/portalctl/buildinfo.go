package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hsportal/portal/internal/buildinfo"
	"github.com/hsportal/portal/internal/infra"
)

func newBuildInfoCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build-info",
		Short: "Record or show the deployed commit",
	}

	var sha, message string
	record := &cobra.Command{
		Use:   "record",
		Short: "Record a deployed commit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(sha) == "" {
				return errors.New("--sha is required")
			}
			if opts.server != "" {
				return postBuildInfo(cmd.Context(), opts, sha, message)
			}
			return withRepository(cmd.Context(), func(repo buildinfo.Repository) error {
				info, err := repo.Record(cmd.Context(), sha, message)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "recorded build %d (%s)\n", info.ID, info.SHA)
				return nil
			})
		},
	}
	record.Flags().StringVar(&sha, "sha", "", "commit sha")
	record.Flags().StringVar(&message, "message", "", "commit message")

	latest := &cobra.Command{
		Use:   "latest",
		Short: "Print the latest recorded build as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var info buildinfo.Info
			if opts.server != "" {
				if err := getJSON(cmd.Context(), opts, "/api/build-info", &info); err != nil {
					return err
				}
			} else if err := withRepository(cmd.Context(), func(repo buildinfo.Repository) error {
				var err error
				info, err = repo.Latest(cmd.Context())
				return err
			}); err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}

	cmd.AddCommand(record, latest)
	return cmd
}

func withRepository(ctx context.Context, fn func(buildinfo.Repository) error) error {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		return errors.New("either --server or DATABASE_URL is required")
	}
	pool, err := infra.NewPostgresPool(ctx, url)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(buildinfo.NewPostgresRepository(pool))
}

// postBuildInfo uses the sha as idempotency key so CI retries record once.
func postBuildInfo(ctx context.Context, opts *options, sha, message string) error {
	body, err := json.Marshal(map[string]string{"sha": sha, "message": message})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(opts.server, "/")+"/api/build-info", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", sha)

	resp, err := opts.client().Do(req)
	if err != nil {
		return fmt.Errorf("post build info: %w", err)
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func getJSON(ctx context.Context, opts *options, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(opts.server, "/")+path, nil)
	if err != nil {
		return err
	}
	resp, err := opts.client().Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	var e struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		return fmt.Errorf("server answered %d: %s", resp.StatusCode, e.Error)
	}
	return fmt.Errorf("server answered %d", resp.StatusCode)
}
