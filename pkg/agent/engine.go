// Package agent answers queries by planning a bounded sequence of tool
// calls over the vector store and synthesizing an answer from the evidence
// they return. The planner is deterministic; every run produces a trace of
// the steps taken.
package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/quarryhq/quarry/pkg/utils"
)

// DefaultMaxSteps bounds a run when the request does not set its own limit.
const DefaultMaxSteps = 5

// passageLimit caps how much of a chunk is quoted in a synthesized answer.
const passageLimit = 400

// Request describes one agentic query.
type Request struct {
	Query      string
	Collection string
	TopK       int
	FileID     string
	MaxSteps   int
}

// Step records one tool invocation in the trace.
type Step struct {
	Tool   string `json:"tool"`
	Input  string `json:"input"`
	Output string `json:"output,omitempty"`
	Err    string `json:"error,omitempty"`
}

// Outcome is the result of a run. Truncated marks a run stopped by the
// step budget; Cancelled marks one stopped by the caller's context. Both
// still carry the answer synthesized from whatever evidence was gathered.
type Outcome struct {
	Answer    string `json:"answer"`
	Steps     []Step `json:"steps"`
	Truncated bool   `json:"truncated"`
	Cancelled bool   `json:"cancelled"`
}

// Engine executes the plan produced by a policy against a tool registry.
type Engine struct {
	registry *Registry
	policy   Policy
	logger   *zap.Logger
	maxSteps int
}

// NewEngine creates an engine. A nil policy falls back to the default
// rule-based planner.
func NewEngine(registry *Registry, policy Policy, logger *zap.Logger, maxSteps int) (*Engine, error) {
	if registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if policy == nil {
		policy = NewRulePolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}

	return &Engine{
		registry: registry,
		policy:   policy,
		logger:   logger,
		maxSteps: maxSteps,
	}, nil
}

// Run plans and executes tool calls until the policy is satisfied, the
// step budget runs out, or the context is cancelled. It returns
// ErrExecution only when the very first step fails before any evidence
// exists; later failures are recorded in the trace and synthesis proceeds
// with what was gathered.
func (e *Engine) Run(ctx context.Context, req Request) (*Outcome, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrEmptyQuery
	}

	maxSteps := req.MaxSteps
	if maxSteps <= 0 {
		maxSteps = e.maxSteps
	}

	log := e.logger.With(zap.String("collection", req.Collection))
	log.Debug("starting agentic run", zap.String("query", utils.Truncate(req.Query, 120)))

	outcome := &Outcome{}
	var evidence []Output

	for {
		if err := ctx.Err(); err != nil {
			outcome.Cancelled = true
			break
		}

		action, ok := e.policy.Next(req, evidence)
		if !ok {
			break
		}

		if len(outcome.Steps) >= maxSteps {
			outcome.Truncated = true
			break
		}

		step := Step{Tool: action.Tool, Input: describeInput(action.Input)}

		tool := e.registry.Get(action.Tool)
		if tool == nil {
			err := fmt.Errorf("%w: %s", ErrUnknownTool, action.Tool)
			if len(evidence) == 0 {
				return nil, fmt.Errorf("%w: %v", ErrExecution, err)
			}
			step.Err = err.Error()
			outcome.Steps = append(outcome.Steps, step)
			break
		}

		output, err := tool.Run(ctx, action.Input)
		if err != nil {
			step.Err = err.Error()
			outcome.Steps = append(outcome.Steps, step)

			if ctx.Err() != nil {
				outcome.Cancelled = true
				break
			}
			if len(evidence) == 0 {
				return nil, fmt.Errorf("%w: %s: %v", ErrExecution, action.Tool, err)
			}
			break
		}

		output.Tool = action.Tool
		step.Output = output.Summary
		outcome.Steps = append(outcome.Steps, step)
		evidence = append(evidence, output)

		log.Debug("tool step completed",
			zap.String("tool", action.Tool),
			zap.String("summary", output.Summary),
		)
	}

	outcome.Answer = synthesize(evidence)
	return outcome, nil
}

func describeInput(input Input) string {
	parts := []string{fmt.Sprintf("query=%q", utils.Truncate(input.Query, 80))}
	if input.FileID != "" {
		parts = append(parts, "file_id="+input.FileID)
	}
	if input.TopK > 0 {
		parts = append(parts, fmt.Sprintf("top_k=%d", input.TopK))
	}
	return strings.Join(parts, " ")
}

// synthesize builds an extractive answer from gathered evidence: aggregate
// facts first, then the best matching passages.
func synthesize(evidence []Output) string {
	var parts []string

	for _, output := range evidence {
		switch output.Tool {
		case ToolCountAggregate:
			parts = append(parts, fmt.Sprintf(
				"The collection holds %d documents across %d chunks.",
				output.Documents, output.Chunks,
			))
		case ToolListFiles:
			if len(output.FileIDs) == 0 {
				parts = append(parts, "The collection holds no documents.")
			} else {
				parts = append(parts, fmt.Sprintf(
					"The collection holds %d documents: %s.",
					len(output.FileIDs), strings.Join(output.FileIDs, ", "),
				))
			}
		case ToolSimilaritySearch, ToolFilterLookup:
			if len(output.Hits) == 0 {
				parts = append(parts, "No matching passages were found.")
				continue
			}
			var passages []string
			for _, hit := range output.Hits {
				passages = append(passages, fmt.Sprintf(
					"- %s (file %s, chunk %d, score %.3f)",
					utils.Truncate(strings.TrimSpace(hit.Text), passageLimit),
					hit.FileID, hit.Index, hit.Score,
				))
			}
			parts = append(parts, fmt.Sprintf(
				"Most relevant passages:\n%s", strings.Join(passages, "\n"),
			))
		}
	}

	if len(parts) == 0 {
		return "No evidence was gathered for this query."
	}
	return strings.Join(parts, "\n\n")
}
