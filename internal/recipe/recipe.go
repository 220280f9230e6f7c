package recipe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"example.com/degenpizza/internal/fixedpoint"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

// Recipe is the target proportion of each category, in WAD, summing to 1.
type Recipe [Categories]*uint256.Int

var ErrInvalidRecipe = errors.New("invalid recipe")

const totalBps = 10_000

// FromBps builds a recipe from basis points that sum to 10000.
func FromBps(bps [Categories]uint64) (Recipe, error) {
	var sum uint64
	var r Recipe
	for j, b := range bps {
		sum += b
		r[j] = fixedpoint.FromBps(b)
	}
	if sum != totalBps {
		return Recipe{}, fmt.Errorf("%w: basis points sum to %d", ErrInvalidRecipe, sum)
	}
	return r, nil
}

// MustFromBps is FromBps for constant recipes.
func MustFromBps(bps [Categories]uint64) Recipe {
	r, err := FromBps(bps)
	if err != nil {
		panic(err)
	}
	return r
}

// Validate checks that every entry is set and the entries sum to exactly 1 WAD.
func (r Recipe) Validate() error {
	sum := new(uint256.Int)
	for j, v := range r {
		if v == nil {
			return fmt.Errorf("%w: entry %d missing", ErrInvalidRecipe, j)
		}
		sum.Add(sum, v)
	}
	if !sum.Eq(fixedpoint.One()) {
		return fmt.Errorf("%w: sums to %s", ErrInvalidRecipe, fixedpoint.Format(sum))
	}
	return nil
}

func (r Recipe) Clone() Recipe {
	var c Recipe
	for j, v := range r {
		if v != nil {
			c[j] = new(uint256.Int).Set(v)
		}
	}
	return c
}

// Source hands out the target recipe for a game. final selects the recipe of
// the last round.
type Source interface {
	Recipe(game uint64, final bool) Recipe
}

// Fixed is a Source that always returns the same recipe.
type Fixed Recipe

func (f Fixed) Recipe(uint64, bool) Recipe { return Recipe(f).Clone() }

// DefaultBps is used when generation keeps failing its constraints.
var DefaultBps = [Categories]uint64{3000, 2500, 1800, 1300, 800, 600}

const (
	minShareBps   = 500
	minTopThree   = 4000
	cleanStepBps  = 2000
	cleanEpsilon  = 50
	maxGenAttempt = 1024
)

// Generator derives recipes deterministically from a seed, so anyone holding
// the seed can recompute the recipe of any game.
type Generator struct {
	seed common.Hash
}

func NewGenerator(seed common.Hash) *Generator {
	return &Generator{seed: seed}
}

func (g *Generator) Recipe(game uint64, final bool) Recipe {
	label := "main"
	if final {
		label = "final"
	}
	s := &stream{seed: g.seed, game: game, label: label}
	for attempt := 0; attempt < maxGenAttempt; attempt++ {
		if bps, ok := candidate(s); ok {
			return MustFromBps(bps)
		}
	}
	return MustFromBps(DefaultBps)
}

// candidate draws six weights and keeps them only if the resulting shares
// are sorted descending, each at least 5%, the top three at least 40%, and
// none sits on a multiple of 20% (those would be reachable exactly with five
// units).
func candidate(s *stream) ([Categories]uint64, bool) {
	var raw [Categories]uint64
	var total uint64
	for j := range raw {
		raw[j] = uint64(s.next()>>32) + 1
		total += raw[j]
	}
	sort.Slice(raw[:], func(a, b int) bool { return raw[a] > raw[b] })

	var bps [Categories]uint64
	var sum uint64
	for j, v := range raw {
		bps[j] = (2*v*totalBps + total) / (2 * total)
		sum += bps[j]
	}
	if sum > totalBps && bps[0] < sum-totalBps {
		return bps, false
	}
	bps[0] = bps[0] + totalBps - sum

	for j := range bps {
		if bps[j] < minShareBps {
			return bps, false
		}
		if j > 0 && bps[j] > bps[j-1] {
			return bps, false
		}
		for mult := uint64(cleanStepBps); mult <= totalBps; mult += cleanStepBps {
			if absDiff(bps[j], mult) < cleanEpsilon {
				return bps, false
			}
		}
	}
	if bps[0]+bps[1]+bps[2] < minTopThree {
		return bps, false
	}
	return bps, true
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

// stream is a Keccak-256 counter-mode byte stream.
type stream struct {
	seed    common.Hash
	game    uint64
	label   string
	counter uint64
	buf     []byte
}

func (s *stream) next() uint64 {
	if len(s.buf) < 8 {
		h := sha3.NewLegacyKeccak256()
		var n [8]byte
		h.Write(s.seed[:])
		binary.BigEndian.PutUint64(n[:], s.game)
		h.Write(n[:])
		h.Write([]byte(s.label))
		binary.BigEndian.PutUint64(n[:], s.counter)
		h.Write(n[:])
		s.counter++
		s.buf = h.Sum(nil)
	}
	v := binary.BigEndian.Uint64(s.buf[:8])
	s.buf = s.buf[8:]
	return v
}
