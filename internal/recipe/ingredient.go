package recipe

import (
	"errors"
	"fmt"
	"strings"
)

// Ingredient is one pizza ingredient category. Empty only marks an unused
// selection slot and is never valid in a reveal.
type Ingredient uint8

const (
	Empty Ingredient = iota
	Dough
	Sauce
	Cheese
	Pepperoni
	Basil
	Anchovy
)

const (
	// Categories is the number of real ingredient categories.
	Categories = 6
	// Slots is the number of ingredient units every player submits.
	Slots = 5
)

var ingredientNames = map[Ingredient]string{
	Empty:     "empty",
	Dough:     "dough",
	Sauce:     "sauce",
	Cheese:    "cheese",
	Pepperoni: "pepperoni",
	Basil:     "basil",
	Anchovy:   "anchovy",
}

var (
	ErrUnknownIngredient = errors.New("unknown ingredient")
	ErrEmptySlot         = errors.New("empty ingredient slot")
	ErrUnsorted          = errors.New("ingredients not sorted")
)

func (i Ingredient) String() string {
	if s, ok := ingredientNames[i]; ok {
		return s
	}
	return fmt.Sprintf("ingredient(%d)", uint8(i))
}

// Index returns the 0-based category index of a non-empty ingredient.
func (i Ingredient) Index() int { return int(i) - 1 }

func (i Ingredient) valid() bool { return i >= Dough && i <= Anchovy }

// ParseIngredient accepts a category name (case-insensitive) or its number.
func ParseIngredient(s string) (Ingredient, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for ing, name := range ingredientNames {
		if name == s || fmt.Sprint(uint8(ing)) == s {
			return ing, nil
		}
	}
	return Empty, fmt.Errorf("%w: %q", ErrUnknownIngredient, s)
}

func (i Ingredient) MarshalText() ([]byte, error) {
	if i != Empty && !i.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownIngredient, uint8(i))
	}
	return []byte(i.String()), nil
}

func (i *Ingredient) UnmarshalText(b []byte) error {
	v, err := ParseIngredient(string(b))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

// Selection is one player's five ingredient units, in non-decreasing order.
type Selection [Slots]Ingredient

// Validate enforces the canonical form: every slot is a real ingredient and
// slots never decrease.
func (s Selection) Validate() error {
	for i, ing := range s {
		if ing == Empty {
			return fmt.Errorf("slot %d: %w", i, ErrEmptySlot)
		}
		if !ing.valid() {
			return fmt.Errorf("slot %d: %w: %d", i, ErrUnknownIngredient, uint8(ing))
		}
		if i > 0 && s[i-1] > ing {
			return fmt.Errorf("slot %d (%s) after %s: %w", i, ing, s[i-1], ErrUnsorted)
		}
	}
	return nil
}

// Counts returns how many slots fall into each category. Empty slots are
// ignored.
func (s Selection) Counts() Counts {
	var c Counts
	for _, ing := range s {
		if ing.valid() {
			c[ing.Index()]++
		}
	}
	return c
}

// Counts is a per-category unit count, indexed by Ingredient.Index().
type Counts [Categories]uint64

func (c Counts) Total() uint64 {
	var n uint64
	for _, v := range c {
		n += v
	}
	return n
}

func (c Counts) Add(o Counts) Counts {
	for j := range c {
		c[j] += o[j]
	}
	return c
}

// Sub returns c-o. The caller guarantees o <= c element-wise.
func (c Counts) Sub(o Counts) Counts {
	for j := range c {
		c[j] -= o[j]
	}
	return c
}
