// Package attendance converts between packed attendance bitmaps and sparse
// sets of ticket indices.
//
// Bit b of word w marks ticket index w*256 + b + 1 as attended. Words are
// unsigned 256-bit integers carried as *big.Int.
package attendance

import (
	"fmt"
	"math/big"
	"math/bits"
	"sort"
)

// WordBits is the width of one attendance word.
const WordBits = 256

var wordLimit = new(big.Int).Lsh(big.NewInt(1), WordBits)

// IndexError reports a set bit that names a ticket that was never issued.
type IndexError struct {
	Index      uint64
	Registered uint64
}

func (e *IndexError) Error() string {
	if e.Index == 0 {
		return "attendance index 0 does not name a ticket"
	}
	return fmt.Sprintf("attendance bit for ticket %d exceeds %d registrations", e.Index, e.Registered)
}

// WordError reports a word that does not fit in 256 unsigned bits.
type WordError struct {
	Position int
}

func (e *WordError) Error() string {
	return fmt.Sprintf("attendance word %d is not an unsigned 256-bit value", e.Position)
}

// Set is a sorted list of distinct ticket indices.
type Set []uint64

// Len returns the number of indices in the set.
func (s Set) Len() int { return len(s) }

// Contains reports whether index is in the set.
func (s Set) Contains(index uint64) bool {
	i := sort.Search(len(s), func(i int) bool { return s[i] >= index })
	return i < len(s) && s[i] == index
}

// Decode walks every set bit of words and returns the attended indices.
// Any set bit naming an index above registered rejects the whole input.
// A nil or empty words slice decodes to an empty set.
func Decode(words []*big.Int, registered uint64) (Set, error) {
	set := Set{}
	for w, word := range words {
		if word == nil || word.Sign() == 0 {
			continue
		}
		if word.Sign() < 0 || word.Cmp(wordLimit) >= 0 {
			return nil, &WordError{Position: w}
		}
		base := uint64(w) * WordBits
		for limb, value := range word.Bits() {
			x := uint(value)
			for x != 0 {
				bit := uint64(limb*bits.UintSize + bits.TrailingZeros(x))
				index := base + bit + 1
				if index > registered {
					return nil, &IndexError{Index: index, Registered: registered}
				}
				set = append(set, index)
				x &= x - 1
			}
		}
	}
	return set, nil
}

// FromIndices validates a sparse list of ticket indices against registered
// and returns them as a Set. Duplicates collapse; a zero index or one above
// registered rejects the whole list.
func FromIndices(indices []uint64, registered uint64) (Set, error) {
	set := make(Set, 0, len(indices))
	for _, index := range indices {
		if index == 0 || index > registered {
			return nil, &IndexError{Index: index, Registered: registered}
		}
		set = append(set, index)
	}
	sort.Slice(set, func(i, j int) bool { return set[i] < set[j] })
	out := set[:0]
	for i, index := range set {
		if i > 0 && index == set[i-1] {
			continue
		}
		out = append(out, index)
	}
	return out, nil
}

// Encode packs indices into the minimum number of words covering the
// highest index. Zero indices are ignored. Callers bound indices first,
// see FromIndices.
func Encode(indices []uint64) []*big.Int {
	var highest uint64
	for _, index := range indices {
		if index > highest {
			highest = index
		}
	}
	if highest == 0 {
		return []*big.Int{}
	}
	words := make([]*big.Int, WordsFor(highest))
	for i := range words {
		words[i] = new(big.Int)
	}
	for _, index := range indices {
		if index == 0 {
			continue
		}
		position := index - 1
		word := words[position/WordBits]
		word.SetBit(word, int(position%WordBits), 1)
	}
	return words
}

// WordsFor returns how many words are needed to address registered tickets.
func WordsFor(registered uint64) int {
	n := registered / WordBits
	if registered%WordBits != 0 {
		n++
	}
	return int(n)
}
