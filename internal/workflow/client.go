// Package workflow implements the remote workflow operations: execution
// status, logs and cancellation, project management, archive upload and
// selective flow runs.
//
// Responses are returned as decoded JSON objects without local
// interpretation. Server-reported errors are surfaced as
// errdefs.ErrRemoteOperation with the server text verbatim.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/mattjoyce/azkit/internal/errdefs"
	"github.com/mattjoyce/azkit/internal/log"
	"github.com/mattjoyce/azkit/internal/session"
)

const (
	executorEndpoint = "executor"
	managerEndpoint  = "manager"

	// DefaultLogLimit is the log page size used when none is given.
	DefaultLogLimit = 50000

	// ConcurrentSkip refuses a run while the same flow is already running.
	ConcurrentSkip = "skip"
	// ConcurrentAllow permits overlapping runs of the same flow.
	ConcurrentAllow = "concurrent"
)

// Client issues workflow operations through a Dispatcher.
type Client struct {
	dispatcher Dispatcher
	logger     *slog.Logger
}

// New returns a Client. A nil logger uses the workflow component logger.
func New(d Dispatcher, logger *slog.Logger) *Client {
	if logger == nil {
		logger = log.WithComponent("workflow")
	}
	return &Client{dispatcher: d, logger: logger}
}

// RunRequest selects a flow and, optionally, a subset of its jobs to run.
type RunRequest struct {
	Project string
	Flow    string
	// Jobs limits the run to these nodes. Empty runs the whole flow.
	Jobs []string
	// Block skips the run if the flow is already executing.
	Block bool
}

// ExecutionStatus fetches the state of an execution.
func (c *Client) ExecutionStatus(ctx context.Context, execID int) (map[string]any, error) {
	return c.getJSON(ctx, executorEndpoint, url.Values{
		"ajax":   {"fetchexecflow"},
		"execid": {strconv.Itoa(execID)},
	})
}

// JobLogs fetches a page of a job's log. limit <= 0 uses DefaultLogLimit.
func (c *Client) JobLogs(ctx context.Context, execID int, job string, offset, limit int) (map[string]any, error) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	return c.getJSON(ctx, executorEndpoint, url.Values{
		"ajax":   {"fetchExecJobLogs"},
		"execid": {strconv.Itoa(execID)},
		"jobId":  {job},
		"offset": {strconv.Itoa(offset)},
		"length": {strconv.Itoa(limit)},
	})
}

// WorkflowInfo fetches the job graph of a flow.
//
// The remote service answers unknown flows with a non-JSON page, so a body
// that does not decode is reported as *errdefs.FlowNotFoundError.
func (c *Client) WorkflowInfo(ctx context.Context, project, flow string) (map[string]any, error) {
	resp, err := c.dispatcher.Dispatch(ctx, session.Request{
		Method:   http.MethodGet,
		Endpoint: managerEndpoint,
		Query: url.Values{
			"ajax":    {"fetchflowjobs"},
			"project": {project},
			"flow":    {flow},
		},
	})
	if err != nil {
		return nil, err
	}

	var out map[string]any
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, &errdefs.FlowNotFoundError{Project: project, Flow: flow, Err: err}
	}
	if msg, ok := out["error"]; ok {
		return nil, errdefs.Remote(fmt.Sprint(msg))
	}
	return out, nil
}

// FlowNodes returns the sorted node ids of a flow.
func (c *Client) FlowNodes(ctx context.Context, project, flow string) ([]string, error) {
	info, err := c.WorkflowInfo(ctx, project, flow)
	if err != nil {
		return nil, err
	}
	return nodeIDs(info)
}

// CancelExecution cancels a running execution.
func (c *Client) CancelExecution(ctx context.Context, execID int) (map[string]any, error) {
	resp, err := c.dispatcher.Dispatch(ctx, session.Request{
		Method:   http.MethodGet,
		Endpoint: executorEndpoint,
		Query: url.Values{
			"ajax":   {"cancelFlow"},
			"execid": {strconv.Itoa(execID)},
		},
	})
	if err != nil {
		return nil, err
	}

	var out map[string]any
	if err := resp.JSON(&out); err != nil {
		return nil, err
	}
	if msg, ok := out["error"]; ok {
		return nil, fmt.Errorf("%w: execution %d is not running: %v", errdefs.ErrRemoteOperation, execID, msg)
	}
	c.logger.Info("execution cancelled", "exec_id", execID)
	return out, nil
}

// CreateProject creates an empty project.
func (c *Client) CreateProject(ctx context.Context, name, description string) (map[string]any, error) {
	out, err := c.postJSON(ctx, session.Request{
		Method:   http.MethodPost,
		Endpoint: managerEndpoint,
		Form: url.Values{
			"action":      {"create"},
			"name":        {name},
			"description": {description},
		},
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("project created", "project", name)
	return out, nil
}

// DeleteProject deletes a project.
//
// The delete endpoint reports failures only in free text, so success is
// recognised by the confirmation sentence the server emits. A server that
// rewords it will make every delete look like a failure.
func (c *Client) DeleteProject(ctx context.Context, name string) error {
	resp, err := c.dispatcher.Dispatch(ctx, session.Request{
		Method:   http.MethodGet,
		Endpoint: managerEndpoint,
		Query: url.Values{
			"project": {name},
			"delete":  {"true"},
		},
	})
	if err != nil {
		return err
	}
	if !strings.Contains(resp.Text(), deleteConfirmation(name)) {
		return errdefs.Remote(fmt.Sprintf("delete of project %q failed; check permissions and existence", name))
	}
	c.logger.Info("project deleted", "project", name)
	return nil
}

func deleteConfirmation(name string) string {
	return fmt.Sprintf("Project '%s' was successfully deleted", name)
}

// UploadProject uploads the archive at archivePath to project. The archive
// must exist locally; nothing is sent otherwise.
func (c *Client) UploadProject(ctx context.Context, project, archivePath string) (map[string]any, error) {
	if _, err := os.Stat(archivePath); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: unable to find archive at %q", errdefs.ErrMissingResource, archivePath)
		}
		return nil, fmt.Errorf("stat archive: %w", err)
	}

	out, err := c.postJSON(ctx, session.Request{
		Method:   http.MethodPost,
		Endpoint: managerEndpoint,
		Form: url.Values{
			"ajax":    {"upload"},
			"project": {project},
		},
		File: &session.Upload{
			Field:       "file",
			FileName:    "file.zip",
			ContentType: "application/zip",
			Path:        archivePath,
		},
		UseBody: true,
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("project uploaded", "project", project, "archive", archivePath)
	return out, nil
}

// RunWorkflow submits an execution of req.Flow.
//
// When req.Jobs is set, the flow's node set is fetched first. Requested
// names that are not nodes fail with *errdefs.MissingJobsError before
// anything is submitted; every other node is disabled.
func (c *Client) RunWorkflow(ctx context.Context, req RunRequest) (map[string]any, error) {
	disabled := []string{}
	if len(req.Jobs) > 0 {
		nodes, err := c.FlowNodes(ctx, req.Project, req.Flow)
		if err != nil {
			return nil, err
		}
		var missing []string
		disabled, missing = DisabledNodes(nodes, req.Jobs)
		if len(missing) > 0 {
			return nil, &errdefs.MissingJobsError{Flow: req.Flow, Names: missing}
		}
	}

	encoded, err := json.Marshal(disabled)
	if err != nil {
		return nil, fmt.Errorf("encode disabled nodes: %w", err)
	}
	option := ConcurrentAllow
	if req.Block {
		option = ConcurrentSkip
	}

	out, err := c.postJSON(ctx, session.Request{
		Method:   http.MethodPost,
		Endpoint: executorEndpoint,
		Form: url.Values{
			"ajax":             {"executeFlow"},
			"project":          {req.Project},
			"flow":             {req.Flow},
			"disabled":         {string(encoded)},
			"concurrentOption": {option},
		},
		UseBody: true,
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("flow submitted", "project", req.Project, "flow", req.Flow, "disabled", len(disabled), "concurrent_option", option)
	return out, nil
}

// DisabledNodes splits a run selection against the full node set. disabled
// holds the nodes not requested; missing holds requested names that are not
// nodes. Both are sorted and free of duplicates.
func DisabledNodes(all, requested []string) (disabled, missing []string) {
	want := make(map[string]bool, len(requested))
	for _, name := range requested {
		want[name] = true
	}
	have := make(map[string]bool, len(all))
	for _, node := range all {
		have[node] = true
	}

	disabled = []string{}
	for node := range have {
		if !want[node] {
			disabled = append(disabled, node)
		}
	}
	for name := range want {
		if !have[name] {
			missing = append(missing, name)
		}
	}
	sort.Strings(disabled)
	sort.Strings(missing)
	return disabled, missing
}

func (c *Client) getJSON(ctx context.Context, endpoint string, query url.Values) (map[string]any, error) {
	return c.postJSON(ctx, session.Request{Method: http.MethodGet, Endpoint: endpoint, Query: query})
}

func (c *Client) postJSON(ctx context.Context, req session.Request) (map[string]any, error) {
	resp, err := c.dispatcher.Dispatch(ctx, req)
	if err != nil {
		return nil, err
	}
	return session.ExtractJSON(resp)
}

func nodeIDs(info map[string]any) ([]string, error) {
	raw, ok := info["nodes"].([]any)
	if !ok {
		return nil, errdefs.Remote("flow info carried no node list")
	}
	ids := make([]string, 0, len(raw))
	for _, n := range raw {
		node, ok := n.(map[string]any)
		if !ok {
			return nil, errdefs.Remote("flow info node is not an object")
		}
		id, ok := node["id"].(string)
		if !ok {
			return nil, errdefs.Remote("flow info node has no id")
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
