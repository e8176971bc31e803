// Package transform applies block and tree rules to a content tree.
//
// A Transformer never mutates the tree it is given: Apply clones the input,
// rewrites the copy and returns it, so a fatal error leaves the caller with
// the original tree and no half-rewritten one.
package transform

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/blockshift/internal/logging"
	"github.com/mesh-intelligence/blockshift/pkg/types"
)

// ParsePolicy decides what happens when a rule cannot parse a sub-field.
type ParsePolicy string

const (
	// ParseFail stops the batch on the first parse failure.
	ParseFail ParsePolicy = "fail"
	// ParseSkip leaves the block unchanged and logs it, like a malformed block.
	ParseSkip ParsePolicy = "skip"
)

// ParseParsePolicy validates a policy name. Empty selects ParseFail.
func ParseParsePolicy(s string) (ParsePolicy, error) {
	switch ParsePolicy(s) {
	case "", ParseFail:
		return ParseFail, nil
	case ParseSkip:
		return ParseSkip, nil
	}
	return ParseFail, fmt.Errorf("unknown parse error policy %q (want fail or skip)", s)
}

// Skip describes a block left unchanged because a rule rejected it.
type Skip struct {
	Rule    string `json:"rule,omitempty"`
	Type    string `json:"type,omitempty"`
	BlockID string `json:"block_id,omitempty"`
	Index   int    `json:"index"`
	Reason  string `json:"reason"`
}

// Result is the outcome of one Apply call.
type Result struct {
	Tree            types.ContentTree
	Changed         int
	AlreadyMigrated int
	Skipped         []Skip
	// Lossy is set when a lossy rule was asked to go backwards and left its
	// content as it was.
	Lossy bool
}

// Modified reports whether the returned tree differs from the input.
func (r Result) Modified() bool {
	return r.Changed > 0
}

// Option configures a Transformer.
type Option func(*Transformer)

// WithLogger sets the logger used for skipped blocks.
func WithLogger(l *zap.Logger) Option {
	return func(t *Transformer) { t.log = logging.OrNop(l) }
}

// WithParsePolicy sets the parse failure policy.
func WithParsePolicy(p ParsePolicy) Option {
	return func(t *Transformer) { t.policy = p }
}

// WithTreeRules appends tree rules, run after block rules in the given order.
func WithTreeRules(rules ...types.TreeRule) Option {
	return func(t *Transformer) { t.trees = append(t.trees, rules...) }
}

// Transformer rewrites the blocks claimed by its rules.
type Transformer struct {
	byType map[string]types.BlockRule
	trees  []types.TreeRule
	policy ParsePolicy
	log    *zap.Logger
}

// New builds a Transformer. Each block type may be claimed by one rule only.
func New(rules []types.BlockRule, opts ...Option) (*Transformer, error) {
	t := &Transformer{
		byType: make(map[string]types.BlockRule),
		policy: ParseFail,
		log:    zap.NewNop(),
	}
	for _, r := range rules {
		for _, typ := range r.BlockTypes() {
			if prev, ok := t.byType[typ]; ok {
				return nil, fmt.Errorf("%w: %q by %s and %s", types.ErrDuplicateRule, typ, prev.Name(), r.Name())
			}
			t.byType[typ] = r
		}
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// With returns a copy of t whose log entries carry the given fields.
func (t *Transformer) With(fields ...zap.Field) *Transformer {
	cp := *t
	cp.log = t.log.With(fields...)
	return &cp
}

// Targets reports whether any block rule claims typ.
func (t *Transformer) Targets(typ string) bool {
	_, ok := t.byType[typ]
	return ok
}

// Empty reports whether the transformer has no rules at all.
func (t *Transformer) Empty() bool {
	return len(t.byType) == 0 && len(t.trees) == 0
}

// Apply rewrites every claimed block of tree in direction dir, then runs the
// tree rules. Blocks no rule claims are copied through unchanged.
func (t *Transformer) Apply(tree types.ContentTree, dir types.Direction) (Result, error) {
	res := Result{Tree: make(types.ContentTree, 0, len(tree))}

	for i, block := range tree {
		if block.Malformed() {
			res.Tree = append(res.Tree, block.Clone())
			continue
		}
		rule, ok := t.byType[block.Type]
		if !ok {
			res.Tree = append(res.Tree, block.Clone())
			continue
		}

		out := block.Clone()
		if dir == types.Backwards && rule.Reversibility() == types.Lossy {
			res.Lossy = true
			res.Tree = append(res.Tree, out)
			continue
		}

		var (
			value any
			err   error
		)
		if dir == types.Forwards {
			value, err = rule.Forwards(out.Value)
		} else {
			value, err = rule.Backwards(out.Value)
		}
		if err != nil {
			if skipErr := t.handle(&res, rule.Name(), block, i, err); skipErr != nil {
				return Result{}, skipErr
			}
			res.Tree = append(res.Tree, block.Clone())
			continue
		}
		if !types.EqualValues(block.Value, value) {
			res.Changed++
		}
		out.Value = value
		res.Tree = append(res.Tree, out)
	}

	for _, rule := range t.trees {
		if dir == types.Backwards && rule.Reversibility() == types.Lossy {
			res.Lossy = true
			continue
		}
		var (
			next types.ContentTree
			err  error
		)
		in := res.Tree.Clone()
		if dir == types.Forwards {
			next, err = rule.Forwards(in)
		} else {
			next, err = rule.Backwards(in)
		}
		switch {
		case err == nil:
			if !next.Equal(res.Tree) {
				res.Changed++
			}
			res.Tree = next
		case errors.Is(err, types.ErrAlreadyMigrated):
			res.AlreadyMigrated++
		default:
			return Result{}, fmt.Errorf("tree rule %s: %w", rule.Name(), err)
		}
	}

	return res, nil
}

// handle classifies a block rule error. It returns nil when the block is to
// be kept unchanged and the batch continues.
func (t *Transformer) handle(res *Result, rule string, block types.Block, index int, err error) error {
	switch {
	case errors.Is(err, types.ErrAlreadyMigrated):
		res.AlreadyMigrated++
		return nil
	case errors.Is(err, types.ErrMalformedBlock),
		errors.Is(err, types.ErrParse) && t.policy == ParseSkip:
		res.Skipped = append(res.Skipped, Skip{
			Rule:    rule,
			Type:    block.Type,
			BlockID: block.ID,
			Index:   index,
			Reason:  err.Error(),
		})
		t.log.Warn("skipping block",
			zap.String("rule", rule),
			zap.String("block_type", block.Type),
			zap.String("block_id", block.ID),
			zap.Int("index", index),
			zap.Error(err),
		)
		return nil
	default:
		return fmt.Errorf("rule %s on block %d (%s): %w", rule, index, block.Type, err)
	}
}
