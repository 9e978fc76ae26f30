package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"trpc.group/trpc-go/trpc-a2a-go/protocol"

	"github.com/tuannvm/otrs-connector/internal/actions"
	"github.com/tuannvm/otrs-connector/internal/common"
	"github.com/tuannvm/otrs-connector/internal/models"
	"github.com/tuannvm/otrs-connector/internal/otrs"
	"github.com/tuannvm/otrs-connector/internal/platform"
	"github.com/tuannvm/otrs-connector/internal/snapshot"
)

func credentials(cmd *cobra.Command) models.Credentials {
	creds := models.Credentials{BaseURL: cfg.OTRSBaseURL, User: cfg.OTRSUser, Password: cfg.OTRSPassword}
	if v, _ := cmd.Flags().GetString("base-url"); v != "" {
		creds.BaseURL = v
	}
	if v, _ := cmd.Flags().GetString("user"); v != "" {
		creds.User = v
	}
	if v, _ := cmd.Flags().GetString("password"); v != "" {
		creds.Password = v
	}
	return creds
}

func stepConfig(cmd *cobra.Command) models.StepConfig {
	creds := credentials(cmd)
	return models.StepConfig{BaseURL: creds.BaseURL, User: creds.User, Password: creds.Password}
}

func platformStorage() platform.Storage {
	if cfg.PlatformAPIURI == "" {
		return nil
	}
	return platform.NewStorageClient(cfg.PlatformAPIURI, cfg.PlatformAPIUsername, cfg.PlatformAPIKey, nil)
}

func newClient(cmd *cobra.Command) (*otrs.Client, error) {
	opts := []otrs.Option{otrs.WithTimeout(cfg.HTTPTimeout)}
	if storage := platformStorage(); storage != nil {
		opts = append(opts, otrs.WithStorage(storage))
	}
	return otrs.NewClient(credentials(cmd), opts...)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runVerify(cmd *cobra.Command) error {
	creds := credentials(cmd)
	if err := otrs.Verify(cmd.Context(), creds, otrs.WithTimeout(cfg.HTTPTimeout)); err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}
	fmt.Printf("Credentials for %s at %s are valid\n", creds.User, creds.BaseURL)
	return nil
}

func runGetTicket(cmd *cobra.Command, rawID string) error {
	id, err := models.ParseID(rawID)
	if err != nil {
		return err
	}
	client, err := newClient(cmd)
	if err != nil {
		return err
	}

	attachments, _ := cmd.Flags().GetBool("attachments")
	ticket, err := client.GetTicket(cmd.Context(), id, otrs.GetFilters{
		AllArticles:   true,
		DynamicFields: true,
		Attachments:   attachments,
	})
	if err != nil {
		return err
	}
	if attachments {
		if err := client.UploadAttachmentsToPlatform(cmd.Context(), ticket); err != nil {
			return err
		}
	}
	return printJSON(ticket)
}

func runSearch(cmd *cobra.Command) error {
	created, _ := cmd.Flags().GetString("created-after")
	changed, _ := cmd.Flags().GetString("changed-after")
	queues, _ := cmd.Flags().GetString("queues")
	limit, _ := cmd.Flags().GetInt("limit")

	if created == "" && changed == "" {
		return fmt.Errorf("one of --created-after or --changed-after is required")
	}
	filters := otrs.SearchFilters{
		TicketCreateTimeNewerDate: created,
		TicketChangeTimeNewerDate: changed,
		SortBy:                    otrs.SortKeys{"TicketNumber"},
		OrderBy:                   otrs.SortKeys{"Up"},
		Limit:                     limit,
		Queues:                    platform.ParseCsvInput(queues),
	}
	for _, date := range []string{created, changed} {
		if date != "" && !otrs.IsValidDate(date) {
			return fmt.Errorf("invalid date %q, expected %s", date, otrs.TimeLayout)
		}
	}

	client, err := newClient(cmd)
	if err != nil {
		return err
	}
	ids, err := client.SearchTickets(cmd.Context(), filters)
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	if len(ids) == 0 {
		fmt.Fprintln(os.Stderr, "No tickets found")
	}
	return nil
}

func runPoll(cmd *cobra.Command, function string) error {
	if !actions.IsTrigger(function) {
		return fmt.Errorf("%s is not a polling trigger", function)
	}
	start, _ := cmd.Flags().GetString("start")
	snap, _ := cmd.Flags().GetString("snapshot")
	limit, _ := cmd.Flags().GetInt("limit")
	queues, _ := cmd.Flags().GetString("queues")
	articles, _ := cmd.Flags().GetString("articles")
	attachments, _ := cmd.Flags().GetBool("attachments")

	stepCfg := stepConfig(cmd)
	stepCfg.StartDateTime = start
	stepCfg.Queues = queues
	stepCfg.IncludeArticles = models.ArticleDetail(articles)
	stepCfg.IncludeAttachments = attachments
	if limit > 0 {
		stepCfg.Limit = models.FlexString(fmt.Sprint(limit))
	}

	inv := platform.Invocation{Function: function, Cfg: stepCfg}
	if snap != "" {
		inv.Snapshot = json.RawMessage(snap)
	}

	registry := actions.NewRegistry(actions.NewClientFactory(platformStorage(), cfg.HTTPTimeout))
	rec := &platform.Recorder{Forward: func(ctx context.Context, msg platform.Message) error {
		fmt.Println(string(msg.Body))
		return nil
	}}
	err := registry.Invoke(cmd.Context(), inv, rec)

	if cursor, ok := rec.Snapshot(); ok {
		data, _ := json.Marshal(cursor)
		fmt.Fprintf(os.Stderr, "snapshot: %s\n", data)
	}
	fmt.Fprintf(os.Stderr, "%d tickets emitted\n", len(rec.Data()))
	return err
}

func runInvoke(cmd *cobra.Command, function string) error {
	agentURL, _ := cmd.Flags().GetString("agent-url")
	if agentURL == "" {
		agentURL = cfg.AgentURL
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	inv := platform.Invocation{Function: function}
	for flag, target := range map[string]*json.RawMessage{"body": &inv.Body, "snapshot": &inv.Snapshot} {
		if v, _ := cmd.Flags().GetString(flag); v != "" {
			if !json.Valid([]byte(v)) {
				return fmt.Errorf("--%s is not valid JSON", flag)
			}
			*target = json.RawMessage(v)
		}
	}
	if v, _ := cmd.Flags().GetString("cfg"); v != "" {
		if err := json.Unmarshal([]byte(v), &inv.Cfg); err != nil {
			return fmt.Errorf("--cfg: %w", err)
		}
	}

	a2aClient, err := common.SetupA2AClient(cfg, agentURL)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	task, err := common.SendInvocation(ctx, a2aClient, inv)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Task %s sent to %s\n", task.ID, agentURL)

	for !isTerminal(task.Status.State) {
		select {
		case <-ctx.Done():
			return fmt.Errorf("task %s did not finish: %w", task.ID, ctx.Err())
		case <-time.After(time.Second):
		}
		task, err = a2aClient.GetTasks(ctx, protocol.TaskQueryParams{ID: task.ID})
		if err != nil {
			return fmt.Errorf("failed to get task: %w", err)
		}
	}

	data, err := common.ArtifactData(task.Artifacts, "data")
	if err != nil {
		return err
	}
	for _, d := range data {
		fmt.Println(string(d))
	}
	if snaps, _ := common.ArtifactData(task.Artifacts, "snapshot"); len(snaps) > 0 {
		fmt.Fprintf(os.Stderr, "snapshot: %s\n", snaps[len(snaps)-1])
	}

	status := statusText(task.Status.Message)
	if task.Status.State == "failed" {
		return fmt.Errorf("task %s failed: %s", task.ID, status)
	}
	fmt.Fprintf(os.Stderr, "Task %s %s: %s\n", task.ID, task.Status.State, status)
	return nil
}

func isTerminal(state protocol.TaskState) bool {
	switch state {
	case "completed", "failed", "canceled":
		return true
	}
	return false
}

func statusText(msg *protocol.Message) string {
	if msg == nil {
		return ""
	}
	var texts []string
	for _, part := range msg.Parts {
		if textPart, ok := part.(*protocol.TextPart); ok {
			texts = append(texts, textPart.Text)
		}
	}
	return strings.Join(texts, " ")
}

func runRuns(cmd *cobra.Command, job string, limit int) error {
	store, err := snapshot.NewSQLite(cfg.SnapshotDBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(cmd.Context(), job, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Printf("No runs recorded for %s\n", job)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tDURATION\tEMITTED\tSNAPSHOT\tERROR")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			run.StartedAt.Local().Format(time.DateTime),
			run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond),
			run.Emitted,
			string(run.Snapshot),
			run.Error,
		)
	}
	return w.Flush()
}
