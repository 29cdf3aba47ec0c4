package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jo-hoe/promptrank/internal/workflow"
)

// ComfyClient talks to a ComfyUI server: jobs are queued over HTTP and followed on
// the server's event socket.
type ComfyClient struct {
	base      *url.URL
	outputDir string
	http      *http.Client
	dialer    *websocket.Dialer
}

func NewComfyClient(address, outputDir string) (*ComfyClient, error) {
	if address == "" {
		return nil, fmt.Errorf("comfyui renderer needs an address")
	}
	base, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("invalid comfyui address %q: %w", address, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("comfyui address must be http or https, got %q", address)
	}
	return &ComfyClient{
		base:      base,
		outputDir: outputDir,
		http:      &http.Client{Timeout: 30 * time.Second},
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}, nil
}

type promptRequest struct {
	Prompt   workflow.Graph `json:"prompt"`
	ClientID string         `json:"client_id"`
}

type promptResponse struct {
	PromptID   string         `json:"prompt_id"`
	Error      any            `json:"error,omitempty"`
	NodeErrors map[string]any `json:"node_errors,omitempty"`
}

type socketMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type socketData struct {
	PromptID         string  `json:"prompt_id"`
	Node             *string `json:"node"`
	Value            int     `json:"value"`
	Max              int     `json:"max"`
	ExceptionMessage string  `json:"exception_message"`
	NodeID           string  `json:"node_id"`
}

type historyImage struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

type historyEntry struct {
	Outputs map[string]struct {
		Images []historyImage `json:"images"`
	} `json:"outputs"`
}

func (c *ComfyClient) Render(ctx context.Context, job workflow.Job, onEvent func(Event)) (Task, error) {
	emit := func(t Task, e Event) {
		if onEvent != nil {
			e.TaskID = t.ID
			e.State = t.State
			onEvent(e)
		}
	}
	var task Task

	clientID := uuid.NewString()
	conn, _, err := c.dialer.DialContext(ctx, c.socketURL(clientID), nil)
	if err != nil {
		task.fail(err.Error())
		emit(task, Event{Message: task.Reason})
		return task, fmt.Errorf("failed to connect to comfyui: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()
	// Closing the socket unblocks the read loop when ctx ends.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	promptID, err := c.submit(ctx, prepareGraph(job), clientID)
	if err != nil {
		task.fail(err.Error())
		emit(task, Event{Message: task.Reason})
		return task, err
	}
	task.ID = promptID
	_ = task.moveTo(Queued)
	emit(task, Event{Message: "queued"})
	slog.Debug("comfyui: prompt queued", "promptID", promptID, "kind", job.Kind)

	reason, err := c.follow(ctx, conn, &task, emit)
	if err != nil {
		task.fail(err.Error())
		emit(task, Event{Message: task.Reason})
		return task, err
	}
	if reason != "" {
		task.fail(reason)
		emit(task, Event{Message: reason})
		return task, nil
	}

	outputs, err := c.outputs(ctx, promptID)
	if err != nil {
		task.fail(err.Error())
		emit(task, Event{Message: task.Reason})
		return task, err
	}
	if err := task.complete(outputs); err != nil {
		return task, err
	}
	emit(task, Event{Message: fmt.Sprintf("%d output(s)", len(outputs))})
	return task, nil
}

// follow reads socket events for task until the prompt finished. A non-empty reason
// means the renderer reported an execution error.
func (c *ComfyClient) follow(ctx context.Context, conn *websocket.Conn, task *Task, emit func(Task, Event)) (string, error) {
	for {
		kind, raw, err := conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", fmt.Errorf("render of %s aborted: %w", task.ID, ctxErr)
			}
			return "", fmt.Errorf("comfyui socket closed: %w", err)
		}
		// Binary frames carry live previews.
		if kind != websocket.TextMessage {
			continue
		}

		var msg socketMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			slog.Warn("comfyui: undecodable socket message", "error", err)
			continue
		}
		var data socketData
		if len(msg.Data) > 0 {
			_ = json.Unmarshal(msg.Data, &data)
		}
		if data.PromptID != "" && data.PromptID != task.ID {
			continue
		}

		switch msg.Type {
		case "execution_start":
			if task.State == Queued {
				_ = task.moveTo(Running)
				emit(*task, Event{Message: "running"})
			}
		case "progress":
			if task.State == Queued {
				_ = task.moveTo(Running)
			}
			emit(*task, Event{Message: "progress", Progress: data.Value, Max: data.Max})
		case "executing":
			if data.PromptID == task.ID && data.Node == nil {
				return "", nil
			}
		case "execution_success":
			return "", nil
		case "execution_error":
			return fmt.Sprintf("node %s: %s", data.NodeID, data.ExceptionMessage), nil
		case "execution_interrupted":
			return "interrupted", nil
		}
	}
}

func (c *ComfyClient) submit(ctx context.Context, graph workflow.Graph, clientID string) (string, error) {
	body, err := json.Marshal(promptRequest{Prompt: graph, ClientID: clientID})
	if err != nil {
		return "", fmt.Errorf("failed to encode prompt: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("prompt"), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to queue prompt: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read prompt response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("comfyui rejected prompt (%d): %s", resp.StatusCode, bytes.TrimSpace(raw))
	}
	var out promptResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("failed to decode prompt response: %w", err)
	}
	if out.PromptID == "" {
		return "", fmt.Errorf("comfyui returned no prompt id")
	}
	return out.PromptID, nil
}

func (c *ComfyClient) outputs(ctx context.Context, promptID string) ([]Output, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("history", promptID), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history of %s: %w", promptID, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("comfyui history of %s returned %d", promptID, resp.StatusCode)
	}

	var history map[string]historyEntry
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return nil, fmt.Errorf("failed to decode history of %s: %w", promptID, err)
	}
	entry, ok := history[promptID]
	if !ok {
		return nil, fmt.Errorf("comfyui has no history for %s", promptID)
	}

	nodes := make([]string, 0, len(entry.Outputs))
	for id := range entry.Outputs {
		nodes = append(nodes, id)
	}
	slices.Sort(nodes)

	var outputs []Output
	for _, id := range nodes {
		for _, img := range entry.Outputs[id].Images {
			// Previews land in the temp folder and are never kept.
			if img.Type != "output" {
				continue
			}
			ref := path.Join(img.Subfolder, img.Filename)
			out := Output{Ref: ref}
			if c.outputDir != "" {
				out.Path = filepath.Join(c.outputDir, filepath.FromSlash(ref))
			}
			outputs = append(outputs, out)
		}
	}
	return outputs, nil
}

func (c *ComfyClient) endpoint(elem ...string) string {
	return c.base.JoinPath(elem...).String()
}

func (c *ComfyClient) socketURL(clientID string) string {
	u := c.base.JoinPath("ws")
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.RawQuery = url.Values{"clientId": {clientID}}.Encode()
	return u.String()
}

// prepareGraph points upscale inputs at the renderer's output folder, where earlier
// renders live.
func prepareGraph(job workflow.Job) workflow.Graph {
	if job.InputImageRef == "" {
		return job.Payload
	}
	g := job.Payload.Clone()
	annotated := job.InputImageRef + " [output]"
	for _, n := range g {
		for k, v := range n.Inputs {
			if s, ok := v.(string); ok && s == job.InputImageRef {
				n.Inputs[k] = annotated
			}
		}
	}
	return g
}
