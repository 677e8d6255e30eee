package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEvaluator(model *fakeModel) *Evaluator {
	return NewEvaluator(model, NewPromptManager(""), nil)
}

func TestEvaluatorScoresCompleteness(t *testing.T) {
	model := newFakeModel()
	model.on("report_evaluation", callWith(evalArgs(0.85, "", "missing shipping cost")))

	eval, err := newTestEvaluator(model).Evaluate(context.Background(), "run-1",
		"find the total price", []string{"Step 1: navigate ok"}, "the item costs $20")
	require.NoError(t, err)

	assert.Equal(t, 0.85, eval.Completeness)
	assert.Equal(t, []string{"missing shipping cost"}, eval.Gaps)
}

func TestEvaluatorClampsAndTruncates(t *testing.T) {
	model := newFakeModel()
	model.on("report_evaluation", callWith(evalArgs(1.8, "refined query",
		"g1", "g2", "g3", "g4", "g5", "g6", "g7")))

	eval, err := newTestEvaluator(model).Evaluate(context.Background(), "run-1",
		"objective", nil, "candidate")
	require.NoError(t, err)

	assert.Equal(t, 1.0, eval.Completeness)
	assert.Len(t, eval.Gaps, 5)
	assert.Equal(t, "refined query", eval.OptimizedQuery)
}

func TestEvaluatorProviderError(t *testing.T) {
	model := newFakeModel()
	model.on("report_evaluation", failWith("rate limited"))

	_, err := newTestEvaluator(model).Evaluate(context.Background(), "run-1", "objective", nil, "candidate")

	var evalErr *EvaluationProviderError
	require.ErrorAs(t, err, &evalErr)
}

func TestEvaluatorProseReply(t *testing.T) {
	model := newFakeModel()
	model.on("report_evaluation", proseReply())

	_, err := newTestEvaluator(model).Evaluate(context.Background(), "run-1", "objective", nil, "candidate")

	var evalErr *EvaluationProviderError
	require.ErrorAs(t, err, &evalErr)
}
