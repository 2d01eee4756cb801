package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/marktoda/astrotask/internal/audit"
	"github.com/marktoda/astrotask/internal/tracking"
	"github.com/marktoda/astrotask/internal/types"
)

const (
	defaultModel   = "claude-3-5-haiku-20241022"
	maxRetries     = 3
	initialBackoff = 1 * time.Second
)

// ErrAPIKeyRequired is returned when an API key is needed but not provided.
var ErrAPIKeyRequired = errors.New("generator: API key required")

// Anthropic is a TaskGenerator that asks a Claude model to decompose
// free text into a task tree, grounded on the teacher's
// internal/compact.HaikuClient (same retry/backoff posture, same
// audit-on-call behavior, generalized from "summarize a closed issue"
// to "propose a task breakdown").
type Anthropic struct {
	client         anthropic.Client
	model          anthropic.Model
	promptTemplate *template.Template
	maxRetries     int
	initialBackoff time.Duration
	auditEnabled   bool
	auditActor     string
}

// NewAnthropic builds a client. ANTHROPIC_API_KEY takes precedence over
// an explicitly supplied apiKey.
func NewAnthropic(apiKey string, auditEnabled bool, auditActor string) (*Anthropic, error) {
	if envKey := os.Getenv("ANTHROPIC_API_KEY"); envKey != "" {
		apiKey = envKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: set ANTHROPIC_API_KEY or pass one explicitly", ErrAPIKeyRequired)
	}

	tmpl, err := template.New("decompose").Parse(decomposePromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing generator prompt template: %w", err)
	}

	return &Anthropic{
		client:         anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:          defaultModel,
		promptTemplate: tmpl,
		maxRetries:     maxRetries,
		initialBackoff: initialBackoff,
		auditEnabled:   auditEnabled,
		auditActor:     auditActor,
	}, nil
}

// genNode is the shape the model is instructed to emit: a task plus its
// own temporary id (scoped to one Generate call), its dependencies by
// that same id, and its nested children.
type genNode struct {
	TempID        string    `json:"tempId"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	PriorityScore int       `json:"priorityScore"`
	DependsOn     []string  `json:"dependsOn"`
	Children      []genNode `json:"children"`
}

// Generate renders input.Content into a prompt, calls the model, and
// builds a tracking.Tree plus tracking.Graph from its JSON response.
// Every returned node carries a temporary id; the caller flushes the
// tree first, applies the resulting id mappings to the graph, then
// flushes the graph (spec §4.4's "ID remapping", §4.7).
func (a *Anthropic) Generate(ctx context.Context, input Input) (Output, error) {
	meta, body := splitFrontMatter(input.Content)
	input.Content = body

	prompt, err := a.renderPrompt(input)
	if err != nil {
		return Output{}, fmt.Errorf("rendering generator prompt: %w", err)
	}

	raw, callErr := a.callWithRetry(ctx, prompt)
	if a.auditEnabled {
		entry := &audit.Entry{
			Actor:    a.auditActor,
			TaskID:   input.ParentTaskID,
			Model:    string(a.model),
			Prompt:   prompt,
			Response: raw,
		}
		if callErr != nil {
			entry.Error = callErr.Error()
		}
		_, _ = audit.Append(entry)
	}
	if callErr != nil {
		return Output{}, fmt.Errorf("%w", callErr)
	}

	var nodes []genNode
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &nodes); err != nil {
		return Output{}, fmt.Errorf("parsing generator response: %w", err)
	}
	applyFrontMatterDefaults(nodes, meta)

	anchorID := input.ParentTaskID
	if anchorID == "" {
		anchorID = types.ProjectRootID
	}
	anchor := tracking.FromTask(types.Task{ID: anchorID})
	graph := tracking.NewGraph(nil)
	llmToInternal := map[string]string{}

	var attach func(parent *tracking.Tree, n genNode)
	attach = func(parent *tracking.Tree, n genNode) {
		child := parent.AddChild(types.TaskDraft{
			Title:         n.Title,
			Description:   n.Description,
			PriorityScore: n.PriorityScore,
		})
		if n.TempID != "" {
			llmToInternal[n.TempID] = child.ID()
		}
		for _, c := range n.Children {
			attach(child, c)
		}
	}
	for _, n := range nodes {
		attach(anchor, n)
	}

	for _, n := range flatten(nodes) {
		dependent, ok := llmToInternal[n.TempID]
		if !ok {
			continue
		}
		for _, dep := range n.DependsOn {
			if dependency, ok := llmToInternal[dep]; ok {
				graph.WithDependency(dependent, dependency)
			}
		}
	}

	return Output{Tree: anchor, Graph: graph}, nil
}

// applyFrontMatterDefaults fills in a priority floor the model left
// unset and, for a single top-level node, lets the PRD author's
// front-matter title win over the model's own phrasing.
func applyFrontMatterDefaults(nodes []genNode, meta frontMatter) {
	if meta.Title != "" && len(nodes) == 1 {
		nodes[0].Title = meta.Title
	}
	if meta.PriorityScore == 0 {
		return
	}
	var apply func(ns []genNode)
	apply = func(ns []genNode) {
		for i := range ns {
			if ns[i].PriorityScore == 0 {
				ns[i].PriorityScore = meta.PriorityScore
			}
			apply(ns[i].Children)
		}
	}
	apply(nodes)
}

func flatten(nodes []genNode) []genNode {
	var out []genNode
	for _, n := range nodes {
		out = append(out, n)
		out = append(out, flatten(n.Children)...)
	}
	return out
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

func (a *Anthropic) callWithRetry(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := a.initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		message, err := a.client.Messages.New(ctx, params)
		if err == nil {
			if len(message.Content) > 0 && message.Content[0].Type == "text" {
				return message.Content[0].Text, nil
			}
			return "", fmt.Errorf("unexpected response: no text content block")
		}

		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !isRetryable(err) {
			return "", fmt.Errorf("non-retryable generator error: %w", err)
		}
	}
	return "", fmt.Errorf("generator failed after %d attempts: %w", a.maxRetries+1, lastErr)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}

func (a *Anthropic) renderPrompt(input Input) (string, error) {
	var sb strings.Builder
	data := struct {
		Content       string
		ExistingTasks []types.Task
	}{Content: input.Content, ExistingTasks: input.ExistingTasks}
	if err := a.promptTemplate.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}

const decomposePromptTemplate = `You are decomposing a piece of project content into a tree of actionable tasks.

**Content:**
{{.Content}}

{{if .ExistingTasks}}**Existing tasks already tracked (avoid duplicating these):**
{{range .ExistingTasks}}- {{.Title}}
{{end}}{{end}}

Respond with ONLY a JSON array (no prose, no code fence) of task nodes matching exactly this shape:

[{"tempId": "t1", "title": "...", "description": "...", "priorityScore": 50, "dependsOn": ["t2"], "children": [...]}]

Every node must have a unique tempId scoped to this response. dependsOn lists the tempIds of tasks that must complete first. children nests subtasks under their parent.`
