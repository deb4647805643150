package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ID is an opaque record identifier. Older records written by the web client
// carry numeric ids, so decoding accepts both JSON strings and numbers.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

type YearLevel string

const (
	YearLevelFirst  YearLevel = "1st Year"
	YearLevelSecond YearLevel = "2nd Year"
	YearLevelThird  YearLevel = "3rd Year"
	YearLevelFourth YearLevel = "4th Year"
)

// YearLevels lists the enumeration in display order.
var YearLevels = []YearLevel{YearLevelFirst, YearLevelSecond, YearLevelThird, YearLevelFourth}

func (y YearLevel) Valid() bool {
	for _, l := range YearLevels {
		if y == l {
			return true
		}
	}
	return false
}

// DefaultMembershipFee is prefilled on registration forms.
const DefaultMembershipFee = 20.0

type Member struct {
	ID               ID        `json:"id"`
	Name             string    `json:"name"`
	StudentNumber    string    `json:"studentNumber"`
	YearLevel        YearLevel `json:"schoolYear"`
	MembershipFee    float64   `json:"membershipFee"`
	ControlNumber    string    `json:"controlNumber"`
	RegistrationDate string    `json:"registrationDate"`
}

var ErrMalformedRecord = errors.New("malformed record")

// Validate checks the fields every stored member must carry. Year level is not
// checked here because imported rosters may hold free-form values.
func (m *Member) Validate() error {
	switch {
	case m.ID == "":
		return fmt.Errorf("%w: member id is empty", ErrMalformedRecord)
	case strings.TrimSpace(m.Name) == "":
		return fmt.Errorf("%w: member %s has no name", ErrMalformedRecord, m.ID)
	case m.MembershipFee < 0:
		return fmt.Errorf("%w: member %s has a negative fee", ErrMalformedRecord, m.ID)
	}
	return nil
}

// Roster is the whole-collection view of the member list and the recycled
// control-number pool. Both are persisted as complete values on every change.
type Roster struct {
	Members  []Member
	Recycled []string
}

// MemberFilter narrows roster listings. Search is a case-insensitive
// substring match over name, student number and control number.
type MemberFilter struct {
	Search    string
	YearLevel YearLevel
}

func (f MemberFilter) Matches(m *Member) bool {
	if f.YearLevel != "" && m.YearLevel != f.YearLevel {
		return false
	}
	if f.Search == "" {
		return true
	}
	q := strings.ToLower(f.Search)
	return strings.Contains(strings.ToLower(m.Name), q) ||
		strings.Contains(strings.ToLower(m.StudentNumber), q) ||
		strings.Contains(strings.ToLower(m.ControlNumber), q)
}

type Stats struct {
	TotalMembers int               `json:"total_members"`
	TotalRevenue float64           `json:"total_revenue"`
	YearCounts   map[YearLevel]int `json:"year_counts"`
}
