// Package controlnumber issues member control numbers of the form
// CN-MM-DD-NNN and recycles numbers freed by deleted members.
package controlnumber

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// MaxSequence is the highest sequence that fits the three-digit field.
const MaxSequence = 999

var (
	ErrSequenceExhausted = errors.New("control number sequence exhausted for the day")
	ErrInvalidFormat     = errors.New("invalid control number format")
)

var pattern = regexp.MustCompile(`^CN-(\d{2})-(\d{2})-(\d{3})$`)

// Source reports where an allocated number came from.
type Source string

const (
	SourceRecycled Source = "recycled"
	SourceMinted   Source = "minted"
)

// Format renders the control number for the given date and sequence.
func Format(day time.Time, seq int) string {
	return fmt.Sprintf("CN-%02d-%02d-%03d", int(day.Month()), day.Day(), seq)
}

// Validate checks that number has the CN-MM-DD-NNN shape.
func Validate(number string) error {
	if !pattern.MatchString(number) {
		return fmt.Errorf("%w: %q", ErrInvalidFormat, number)
	}
	return nil
}

// Allocator hands out control numbers. Dates are taken in the configured
// location so the MM-DD part matches the administrator's calendar day.
type Allocator struct {
	loc *time.Location
	now func() time.Time
}

func NewAllocator(loc *time.Location) *Allocator {
	if loc == nil {
		loc = time.Local
	}
	return &Allocator{loc: loc, now: time.Now}
}

// WithClock replaces the time source. Used by tests and the CLI.
func (a *Allocator) WithClock(now func() time.Time) *Allocator {
	a.now = now
	return a
}

// Today returns the current date in the allocator's location.
func (a *Allocator) Today() time.Time {
	return a.now().In(a.loc)
}

// Allocate takes the lowest recycled number when the pool is non-empty.
// Recycled numbers are not checked against taken: pool entries are freed and
// unassigned by construction. Otherwise a number is minted for today.
func (a *Allocator) Allocate(pool *Pool, taken []string) (string, Source, error) {
	if n, ok := pool.Take(); ok {
		return n, SourceRecycled, nil
	}
	n, err := a.Mint(taken)
	if err != nil {
		return "", "", err
	}
	return n, SourceMinted, nil
}

// Mint returns the first CN-MM-DD-NNN for today that no current member holds.
func (a *Allocator) Mint(taken []string) (string, error) {
	day := a.Today()
	held := make(map[string]struct{}, len(taken))
	for _, t := range taken {
		held[t] = struct{}{}
	}
	for seq := 1; seq <= MaxSequence; seq++ {
		candidate := Format(day, seq)
		if _, ok := held[candidate]; !ok {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrSequenceExhausted, day.Format("01-02"))
}
