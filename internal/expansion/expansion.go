// Package expansion drives the iterative synonym search. Each iteration asks
// the model for candidates not yet in the set; the loop stops when an
// iteration adds nothing, a call fails, or the iteration budget runs out.
package expansion

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/valpere/synsetran/internal/dedup"
	"github.com/valpere/synsetran/internal/invoke"
	"github.com/valpere/synsetran/internal/schema"
)

const DefaultMaxIterations = 5

// Record is the outcome of one expansion run.
type Record struct {
	// ExpandedSynonyms holds every candidate in first-seen order, seed first.
	ExpandedSynonyms []string `json:"expanded_synonyms"`
	// Rationale maps a candidate to the model's justification for it.
	Rationale map[string]string `json:"rationale"`
	// IterationsRun counts model calls actually made, failed ones included.
	IterationsRun int `json:"iterations_run"`
	// Provenance maps a candidate to the iteration that produced it; seed
	// candidates have 0.
	Provenance map[string]int `json:"synonym_provenance"`
	// Converged is true when the final iteration added no new candidate.
	Converged bool `json:"converged"`
	// Sizes is the candidate count after each iteration.
	Sizes []int `json:"sizes"`
}

// Caller is the slice of invoke.Service the controller needs.
type Caller interface {
	Call(ctx context.Context, prompt string, stage schema.Stage) invoke.StageCall
}

// Renderer builds the expansion prompt from the current candidates.
type Renderer func(candidates []string, iteration int) string

type Controller struct {
	caller        Caller
	maxIterations int
	logger        *zap.Logger
}

func New(caller Caller, maxIterations int, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{caller: caller, maxIterations: maxIterations, logger: logger}
}

// MaxIterations is the iteration budget of one Run.
func (c *Controller) MaxIterations() int {
	return c.maxIterations
}

// IterationKey is the state key of an expansion iteration.
func IterationKey(iteration int) schema.Stage {
	return schema.Stage(string(schema.StageSynonymExpansion) + "#" + strconv.Itoa(iteration))
}

// Run expands seed. The returned calls are in iteration order, one per
// executed iteration.
func (c *Controller) Run(ctx context.Context, seed []string, render Renderer) (Record, []invoke.StageCall) {
	set := newCandidateSet()
	for _, w := range seed {
		set.add(w, 0)
	}

	rec := Record{Rationale: map[string]string{}}
	var calls []invoke.StageCall

	for iteration := 1; iteration <= c.maxIterations; iteration++ {
		call := c.caller.Call(ctx, render(set.words(), iteration), IterationKey(iteration))
		calls = append(calls, call)
		rec.IterationsRun = iteration

		if call.Failed() {
			c.logger.Warn("expansion stopped on failed call", zap.Int("iteration", iteration))
			rec.Sizes = append(rec.Sizes, set.size())
			break
		}

		added := 0
		for _, w := range call.Payload.Strings("expanded_synonyms") {
			if set.add(w, iteration) {
				added++
			}
		}
		for word, why := range call.Payload.StringMap("rationale") {
			word = strings.TrimSpace(word)
			if _, known := rec.Rationale[word]; word != "" && !known {
				rec.Rationale[word] = strings.TrimSpace(why)
			}
		}
		rec.Sizes = append(rec.Sizes, set.size())

		c.logger.Debug("expansion iteration",
			zap.Int("iteration", iteration),
			zap.Int("added", added),
			zap.Int("total", set.size()),
		)

		if added == 0 {
			rec.Converged = true
			break
		}
	}

	rec.ExpandedSynonyms = set.words()
	rec.Provenance = set.provenance
	return rec, calls
}

type candidateSet struct {
	order      []string
	keys       map[string]struct{}
	provenance map[string]int
}

func newCandidateSet() *candidateSet {
	return &candidateSet{keys: map[string]struct{}{}, provenance: map[string]int{}}
}

// add reports whether w was genuinely new.
func (s *candidateSet) add(w string, iteration int) bool {
	w = strings.TrimSpace(w)
	k := dedup.Key(w)
	if k == "" {
		return false
	}
	if _, ok := s.keys[k]; ok {
		return false
	}
	s.keys[k] = struct{}{}
	s.order = append(s.order, w)
	s.provenance[w] = iteration
	return true
}

func (s *candidateSet) words() []string {
	return append([]string{}, s.order...)
}

func (s *candidateSet) size() int {
	return len(s.order)
}
