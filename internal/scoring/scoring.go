// Package scoring turns one round of revealed ingredient selections into
// per-player scores.
//
//	score_i = uniqueness_i^alpha * (beta + contribution_i)
//
// Uniqueness gates the score: a player who submits the group average scores
// zero. Contribution (marginal effect on pizza quality) scales it, and beta is
// the floor for being unique without helping the recipe.
package scoring

import (
	"errors"
	"fmt"

	"example.com/degenpizza/internal/fixedpoint"
	"example.com/degenpizza/internal/recipe"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Params are the scoring constants. They are fixed when a coordinator is
// built.
type Params struct {
	Alpha *uint256.Int `json:"alpha"`
	Beta  *uint256.Int `json:"beta"`
}

var ErrInvalidParams = errors.New("invalid scoring params")

func DefaultParams() Params {
	return Params{
		Alpha: fixedpoint.One(),
		Beta:  fixedpoint.FromBps(3000),
	}
}

func (p Params) Validate() error {
	if p.Alpha == nil || p.Beta == nil {
		return fmt.Errorf("%w: alpha and beta are required", ErrInvalidParams)
	}
	if p.Alpha.Sign() <= 0 {
		return fmt.Errorf("%w: alpha must be positive, got %s", ErrInvalidParams, fixedpoint.Format(p.Alpha))
	}
	if p.Beta.Sign() < 0 {
		return fmt.Errorf("%w: beta must not be negative, got %s", ErrInvalidParams, fixedpoint.Format(p.Beta))
	}
	return nil
}

// Entry is one revealed player's contribution to the round.
type Entry struct {
	Player common.Address
	Counts recipe.Counts
}

type PlayerScore struct {
	Player       common.Address `json:"player"`
	Uniqueness   *uint256.Int   `json:"uniqueness"`
	Contribution *uint256.Int   `json:"contribution"`
	Score        *uint256.Int   `json:"score"`
}

// Result is the outcome of one round. Players follows the order of the
// entries passed to Score.
type Result struct {
	Quality *uint256.Int  `json:"quality"`
	Pool    recipe.Counts `json:"pool"`
	Players []PlayerScore `json:"players"`
}

// Score runs the full round computation. An empty entry list is valid and
// yields zero quality and no player scores.
func Score(p Params, target recipe.Recipe, entries []Entry) (Result, error) {
	vectors := make([]recipe.Counts, len(entries))
	var pool recipe.Counts
	for i, e := range entries {
		vectors[i] = e.Counts
		pool = pool.Add(e.Counts)
	}

	quality, err := Quality(pool, target)
	if err != nil {
		return Result{}, fmt.Errorf("quality: %w", err)
	}
	uniq, err := Uniqueness(vectors)
	if err != nil {
		return Result{}, fmt.Errorf("uniqueness: %w", err)
	}
	contrib, err := Contribution(vectors, target)
	if err != nil {
		return Result{}, fmt.Errorf("contribution: %w", err)
	}

	res := Result{Quality: quality, Pool: pool, Players: make([]PlayerScore, len(entries))}
	for i, e := range entries {
		s, err := combine(p, uniq[i], contrib[i])
		if err != nil {
			return Result{}, fmt.Errorf("score %s: %w", e.Player.Hex(), err)
		}
		res.Players[i] = PlayerScore{
			Player:       e.Player,
			Uniqueness:   uniq[i],
			Contribution: contrib[i],
			Score:        s,
		}
	}
	return res, nil
}

func combine(p Params, uniq, contrib *uint256.Int) (*uint256.Int, error) {
	gate, err := fixedpoint.PowWad(uniq, p.Alpha)
	if err != nil {
		return nil, err
	}
	mult, err := fixedpoint.SAdd(p.Beta, contrib)
	if err != nil {
		return nil, err
	}
	s, err := fixedpoint.SMulWad(gate, mult)
	if err != nil {
		return nil, err
	}
	if fixedpoint.IsNegative(s) {
		return new(uint256.Int), nil
	}
	return s, nil
}

var minusFive = fixedpoint.FromInt64(-5)

// Quality is exp(-5 * d) where d is the Euclidean distance between the pool's
// proportions and the target recipe. An empty pool has quality zero.
func Quality(pool recipe.Counts, target recipe.Recipe) (*uint256.Int, error) {
	total := pool.Total()
	if total == 0 {
		return new(uint256.Int), nil
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}

	totalWad := uint256.NewInt(total)
	sumSq := new(uint256.Int)
	for j := range pool {
		prop := fixedpoint.FromUint64(pool[j])
		prop.Div(prop, totalWad)
		if err := addSquare(sumSq, prop, target[j]); err != nil {
			return nil, err
		}
	}
	dist, err := fixedpoint.SqrtWad(sumSq)
	if err != nil {
		return nil, err
	}
	exponent, err := fixedpoint.SMulWad(minusFive, dist)
	if err != nil {
		return nil, err
	}
	q, err := fixedpoint.ExpWad(exponent)
	if err != nil {
		return nil, err
	}
	if fixedpoint.IsNegative(q) {
		return new(uint256.Int), nil
	}
	return q, nil
}

// Uniqueness measures how far each vector is from the group average,
// normalised by the largest such distance. A lone vector gets the neutral
// 0.5; if every vector equals the average all get zero.
func Uniqueness(vectors []recipe.Counts) ([]*uint256.Int, error) {
	n := len(vectors)
	switch n {
	case 0:
		return nil, nil
	case 1:
		return []*uint256.Int{fixedpoint.Half()}, nil
	}

	var sum recipe.Counts
	for _, v := range vectors {
		sum = sum.Add(v)
	}
	var avg [recipe.Categories]*uint256.Int
	for j := range sum {
		avg[j] = fixedpoint.FromUint64(sum[j])
		avg[j].Div(avg[j], uint256.NewInt(uint64(n)))
	}

	raw := make([]*uint256.Int, n)
	maxDist := new(uint256.Int)
	for i, v := range vectors {
		sumSq := new(uint256.Int)
		for j := range v {
			if err := addSquare(sumSq, fixedpoint.FromUint64(v[j]), avg[j]); err != nil {
				return nil, err
			}
		}
		d, err := fixedpoint.SqrtWad(sumSq)
		if err != nil {
			return nil, err
		}
		raw[i] = d
		if d.Gt(maxDist) {
			maxDist = d
		}
	}

	out := make([]*uint256.Int, n)
	for i, d := range raw {
		if maxDist.IsZero() {
			out[i] = new(uint256.Int)
			continue
		}
		u, err := fixedpoint.DivWad(d, maxDist)
		if err != nil {
			return nil, err
		}
		out[i] = u
	}
	return out, nil
}

// Contribution is the leave-one-out quality delta of each vector, min-max
// normalised to [0, 1]. When every delta is equal each player gets 0.5.
func Contribution(vectors []recipe.Counts, target recipe.Recipe) ([]*uint256.Int, error) {
	n := len(vectors)
	if n == 0 {
		return nil, nil
	}
	var pool recipe.Counts
	for _, v := range vectors {
		pool = pool.Add(v)
	}
	qAll, err := Quality(pool, target)
	if err != nil {
		return nil, err
	}

	deltas := make([]*uint256.Int, n)
	var lo, hi *uint256.Int
	for i, v := range vectors {
		qWithout, err := Quality(pool.Sub(v), target)
		if err != nil {
			return nil, err
		}
		d, err := fixedpoint.SSub(qAll, qWithout)
		if err != nil {
			return nil, err
		}
		deltas[i] = d
		if lo == nil || d.Slt(lo) {
			lo = d
		}
		if hi == nil || d.Sgt(hi) {
			hi = d
		}
	}

	out := make([]*uint256.Int, n)
	if lo.Eq(hi) {
		for i := range out {
			out[i] = fixedpoint.Half()
		}
		return out, nil
	}
	span, err := fixedpoint.SSub(hi, lo)
	if err != nil {
		return nil, err
	}
	for i, d := range deltas {
		off, err := fixedpoint.SSub(d, lo)
		if err != nil {
			return nil, err
		}
		c, err := fixedpoint.DivWad(off, span)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

// addSquare adds (a-b)^2 to acc in place.
func addSquare(acc, a, b *uint256.Int) error {
	d, err := fixedpoint.SSub(a, b)
	if err != nil {
		return err
	}
	sq, err := fixedpoint.SMulWad(d, d)
	if err != nil {
		return err
	}
	if _, overflow := acc.AddOverflow(acc, sq); overflow {
		return fixedpoint.ErrOverflow
	}
	return nil
}
