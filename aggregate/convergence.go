package aggregate

import (
	"context"
	"sort"
	"strings"

	"github.com/hupe1980/gtllm/core"
	"github.com/hupe1980/gtllm/gateway"
	"github.com/hupe1980/gtllm/logging"
	"github.com/hupe1980/gtllm/scheduler"
)

// ConvergencePolicy decides whether a collaborative round's proposals agree.
// proposals maps agent ID to proposal text. On convergence the second return
// value is the agreed answer.
type ConvergencePolicy interface {
	Converged(ctx context.Context, question string, proposals map[string]string) (bool, string, error)
}

// ExactMatch declares convergence when every proposal is identical after
// trimming surrounding whitespace. It is the default policy: cheap, strict
// and free of extra model calls.
type ExactMatch struct{}

var _ ConvergencePolicy = ExactMatch{}

// Converged implements ConvergencePolicy.
func (ExactMatch) Converged(_ context.Context, _ string, proposals map[string]string) (bool, string, error) {
	var agreed string
	first := true
	for _, text := range proposals {
		text = strings.TrimSpace(text)
		if text == "" {
			return false, "", nil
		}
		if first {
			agreed, first = text, false
			continue
		}
		if text != agreed {
			return false, "", nil
		}
	}
	if first {
		return false, "", nil
	}
	return true, agreed, nil
}

// JudgeOptions configure a JudgePolicy.
type JudgeOptions struct {
	// Template overrides the built-in convergence prompt.
	Template string
	// Params are the sampling parameters for judge calls.
	Params gateway.Params
	// Logger records judge decisions. Defaults to NoOp.
	Logger logging.Logger
}

// JudgePolicy asks a dedicated judge agent whether the proposals express the
// same answer in substance, tolerating wording differences that defeat
// ExactMatch. A judge failure is reported as an error, never as agreement.
type JudgePolicy struct {
	invoker  gateway.Invoker
	judge    core.Agent
	template string
	params   gateway.Params
	logger   logging.Logger
}

var _ ConvergencePolicy = (*JudgePolicy)(nil)

// NewJudgePolicy creates a judge-based convergence policy.
func NewJudgePolicy(invoker gateway.Invoker, judge core.Agent, optFns ...func(o *JudgeOptions)) *JudgePolicy {
	opts := JudgeOptions{Template: scheduler.DefaultTemplates().ConvergenceJudge}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &JudgePolicy{
		invoker:  invoker,
		judge:    judge,
		template: opts.Template,
		params:   opts.Params,
		logger:   logging.OrNoOp(opts.Logger),
	}
}

// Converged implements ConvergencePolicy.
func (p *JudgePolicy) Converged(ctx context.Context, question string, proposals map[string]string) (bool, string, error) {
	ids := make([]string, 0, len(proposals))
	for id := range proposals {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var block strings.Builder
	for i, id := range ids {
		if i > 0 {
			block.WriteString("\n\n")
		}
		block.WriteString("Proposal ")
		block.WriteString(string(rune('A' + i)))
		block.WriteString(":\n")
		block.WriteString(proposals[id])
	}

	prompt := scheduler.Render(p.template, map[string]string{
		"user_question": question,
		"proposals":     block.String(),
	})

	completion, err := p.invoker.Invoke(ctx, p.judge,
		[]core.Message{core.NewMessage(core.AuthorUser, prompt, 0)}, p.params)
	if err != nil {
		return false, "", err
	}

	verdict := strings.ToUpper(strings.TrimSpace(completion.Text))
	agreed := strings.HasPrefix(verdict, "YES")
	p.logger.Debug("convergence judge verdict=%q agreed=%t", truncate(completion.Text, 40), agreed)
	if !agreed {
		return false, "", nil
	}
	// The proposals agree in substance; adopt the first one in stable order
	// as the joint answer.
	return true, strings.TrimSpace(proposals[ids[0]]), nil
}
