// Package rostercsv reads and writes the member roster as CSV.
package rostercsv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"membership-backend/internal/domain"
)

// Header is the first line of every export.
var Header = []string{"Control Number", "Name", "Student Number", "Year Level", "Fee", "Date"}

const minFields = 6

// Filename is the download name for an export made on day.
func Filename(day time.Time) string {
	return fmt.Sprintf("membership_data_%s.csv", day.Format("2006-01-02"))
}

// Write emits the header followed by one row per member.
func Write(w io.Writer, members []domain.Member) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, m := range members {
		row := []string{
			m.ControlNumber,
			m.Name,
			m.StudentNumber,
			string(m.YearLevel),
			strconv.FormatFloat(m.MembershipFee, 'f', -1, 64),
			m.RegistrationDate,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Result is what Read recovered from a file.
type Result struct {
	Members []domain.Member
	Skipped int
}

// Read parses an export. The first line is taken as the header and ignored.
// Lines with fewer than six values or without a name are skipped. A fee that
// does not parse becomes zero. Every member gets a fresh id from newID.
func Read(r io.Reader, newID func() domain.ID) (*Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	res := &Result{}
	first := true
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		if first {
			first = false
			continue
		}
		if len(rec) < minFields || strings.TrimSpace(rec[1]) == "" {
			res.Skipped++
			continue
		}
		res.Members = append(res.Members, domain.Member{
			ID:               newID(),
			ControlNumber:    rec[0],
			Name:             rec[1],
			StudentNumber:    rec[2],
			YearLevel:        domain.YearLevel(rec[3]),
			MembershipFee:    parseFee(rec[4]),
			RegistrationDate: rec[5],
		})
	}
	return res, nil
}

func parseFee(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < 0 {
		return 0
	}
	return f
}
