package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type clientOpts struct {
	addr      string
	adminUser string
	adminPass string
	timeout   time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &clientOpts{}
	root := &cobra.Command{
		Use:           "resumectl",
		Short:         "Client for the resume ingestion and query API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.addr, "addr", envOr("RESUME_RAG_ADDR", "http://localhost:8080"), "API base URL")
	root.PersistentFlags().StringVar(&opts.adminUser, "admin-user", os.Getenv("RESUME_RAG_ADMIN_USER"), "admin username for destructive operations")
	root.PersistentFlags().StringVar(&opts.adminPass, "admin-pass", os.Getenv("RESUME_RAG_ADMIN_PASS"), "admin password for destructive operations")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "request timeout")

	root.AddCommand(
		newIngestCmd(opts),
		newStatusCmd(opts),
		newListCmd(opts),
		newGetCmd(opts),
		newDeleteCmd(opts),
		newQueryCmd(opts),
		newRankCmd(opts),
		newStatsCmd(opts),
	)
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (o *clientOpts) httpClient() *http.Client {
	return &http.Client{Timeout: o.timeout}
}

func (o *clientOpts) do(req *http.Request) (int, []byte, error) {
	resp, err := o.httpClient().Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

// printJSON re-indents a JSON response for the terminal.
func printJSON(out io.Writer, body []byte) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		fmt.Fprintln(out, string(body))
		return
	}
	fmt.Fprintln(out, buf.String())
}

func apiErr(status int, body []byte) error {
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		return fmt.Errorf("%s (%d): %s", env.Error.Code, status, env.Error.Message)
	}
	return fmt.Errorf("unexpected status %d: %s", status, strings.TrimSpace(string(body)))
}

func newIngestCmd(opts *clientOpts) *cobra.Command {
	var (
		force bool
		wait  bool
	)
	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Upload one or more resume files for ingestion",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				jobID, err := uploadOne(cmd, opts, path, force)
				if err != nil {
					return err
				}
				if wait && jobID != "" {
					if err := waitForJob(cmd, opts, jobID); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "re-ingest even if the content is already indexed")
	cmd.Flags().BoolVar(&wait, "wait", false, "poll until each ingest job reaches a terminal state")
	return cmd
}

func uploadOne(cmd *cobra.Command, opts *clientOpts, path string, force bool) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("resume", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(content); err != nil {
		return "", err
	}
	if force {
		if err := mw.WriteField("force_update", "true"); err != nil {
			return "", err
		}
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, opts.addr+"/v1/resumes", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	status, body, err := opts.do(req)
	if err != nil {
		return "", err
	}
	if status != http.StatusAccepted && status != http.StatusOK {
		return "", apiErr(status, body)
	}
	var resp struct {
		ResumeID string `json:"resume_id"`
		JobID    string `json:"job_id"`
		Status   string `json:"status"`
		Skipped  bool   `json:"skipped"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	if resp.Skipped {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: already indexed as %s\n", path, resp.ResumeID)
		return "", nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: resume %s, job %s (%s)\n", path, resp.ResumeID, resp.JobID, resp.Status)
	return resp.JobID, nil
}

func waitForJob(cmd *cobra.Command, opts *clientOpts, jobID string) error {
	for {
		select {
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		case <-time.After(2 * time.Second):
		}
		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, opts.addr+"/v1/jobs/"+jobID, nil)
		if err != nil {
			return err
		}
		status, body, err := opts.do(req)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return apiErr(status, body)
		}
		var resp struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return err
		}
		switch resp.Status {
		case "completed":
			fmt.Fprintf(cmd.OutOrStdout(), "job %s completed\n", jobID)
			return nil
		case "failed":
			return fmt.Errorf("job %s failed: %s", jobID, resp.Error)
		}
	}
}

func newStatusCmd(opts *clientOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the status of an ingest job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint(cmd, opts, "/v1/jobs/"+args[0])
		},
	}
}

func newListCmd(opts *clientOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List ingested resumes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return getAndPrint(cmd, opts, "/v1/resumes")
		},
	}
}

func newGetCmd(opts *clientOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "get <resume-id>",
		Short: "Show one resume's profile and metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint(cmd, opts, "/v1/resumes/"+args[0])
		},
	}
}

func newDeleteCmd(opts *clientOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <resume-id>",
		Short: "Delete a resume and its indexed chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodDelete, opts.addr+"/v1/resumes/"+args[0], nil)
			if err != nil {
				return err
			}
			if opts.adminUser != "" {
				req.SetBasicAuth(opts.adminUser, opts.adminPass)
			}
			status, body, err := opts.do(req)
			if err != nil {
				return err
			}
			if status != http.StatusNoContent {
				return apiErr(status, body)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func newQueryCmd(opts *clientOpts) *cobra.Command {
	var (
		resumeID   string
		fileFormat string
		topK       int
	)
	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Ask a question over the resume corpus",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]any{"question": args[0]}
			if resumeID != "" {
				payload["resume_id"] = resumeID
			}
			if fileFormat != "" {
				payload["file_format"] = fileFormat
			}
			if topK > 0 {
				payload["top_k"] = topK
			}
			return postAndPrint(cmd, opts, "/v1/query", payload)
		},
	}
	cmd.Flags().StringVar(&resumeID, "resume", "", "restrict the search to one resume id")
	cmd.Flags().StringVar(&fileFormat, "format", "", "restrict the search to one file format (pdf, docx, txt)")
	cmd.Flags().IntVar(&topK, "top-k", 0, "number of chunks to retrieve")
	return cmd
}

func newRankCmd(opts *clientOpts) *cobra.Command {
	var maxResumes int
	cmd := &cobra.Command{
		Use:   "rank <query>",
		Short: "Rank candidates against a hiring query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]any{"query": args[0]}
			if maxResumes > 0 {
				payload["max_resumes"] = maxResumes
			}
			return postAndPrint(cmd, opts, "/v1/rank", payload)
		},
	}
	cmd.Flags().IntVar(&maxResumes, "max", 0, "maximum candidates to return (1-10)")
	return cmd
}

func newStatsCmd(opts *clientOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show corpus statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return getAndPrint(cmd, opts, "/v1/stats")
		},
	}
}

func getAndPrint(cmd *cobra.Command, opts *clientOpts, path string) error {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, opts.addr+path, nil)
	if err != nil {
		return err
	}
	status, body, err := opts.do(req)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return apiErr(status, body)
	}
	printJSON(cmd.OutOrStdout(), body)
	return nil
}

func postAndPrint(cmd *cobra.Command, opts *clientOpts, path string, payload map[string]any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, opts.addr+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	status, body, err := opts.do(req)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return apiErr(status, body)
	}
	printJSON(cmd.OutOrStdout(), body)
	return nil
}
