package controlnumber

import "sort"

// Pool holds control numbers freed by member deletion, kept sorted so the
// oldest day and lowest sequence is always handed out first.
type Pool struct {
	numbers []string
}

// NewPool copies numbers into a sorted pool. Empty strings are dropped.
func NewPool(numbers []string) *Pool {
	p := &Pool{numbers: make([]string, 0, len(numbers))}
	for _, n := range numbers {
		if n != "" {
			p.numbers = append(p.numbers, n)
		}
	}
	sort.Strings(p.numbers)
	return p
}

// Free returns a number to the pool. It reports false for an empty number,
// which callers use for members that never held one.
func (p *Pool) Free(number string) bool {
	if number == "" {
		return false
	}
	i := sort.SearchStrings(p.numbers, number)
	p.numbers = append(p.numbers, "")
	copy(p.numbers[i+1:], p.numbers[i:])
	p.numbers[i] = number
	return true
}

// Take removes and returns the lowest-sorted number.
func (p *Pool) Take() (string, bool) {
	if len(p.numbers) == 0 {
		return "", false
	}
	n := p.numbers[0]
	p.numbers = p.numbers[1:]
	return n, true
}

// Remove drops every occurrence of number and reports how many were removed.
func (p *Pool) Remove(number string) int {
	kept := p.numbers[:0]
	removed := 0
	for _, n := range p.numbers {
		if n == number {
			removed++
			continue
		}
		kept = append(kept, n)
	}
	p.numbers = kept
	return removed
}

func (p *Pool) Len() int { return len(p.numbers) }

// Numbers returns a copy of the pool contents in sorted order.
func (p *Pool) Numbers() []string {
	out := make([]string, len(p.numbers))
	copy(out, p.numbers)
	return out
}
