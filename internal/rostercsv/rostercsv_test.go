package rostercsv

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"membership-backend/internal/domain"
)

func sequentialIDs() func() domain.ID {
	n := 0
	return func() domain.ID {
		n++
		return domain.ID(fmt.Sprintf("id-%d", n))
	}
}

func TestRoundTrip_QuotedNames(t *testing.T) {
	members := []domain.Member{
		{ID: "x", ControlNumber: "CN-06-01-001", Name: `Dela Cruz, Juan "JD"`, StudentNumber: "2021-0001",
			YearLevel: domain.YearLevelFirst, MembershipFee: 20, RegistrationDate: "2024-06-01"},
		{ID: "y", ControlNumber: "CN-06-01-002", Name: "Ana\nMaria", StudentNumber: "2021-0002",
			YearLevel: domain.YearLevelFourth, MembershipFee: 25.5, RegistrationDate: "2024-06-01"},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, members))
	assert.True(t, strings.HasPrefix(buf.String(), "Control Number,Name,Student Number,Year Level,Fee,Date\n"))
	assert.Contains(t, buf.String(), `"Dela Cruz, Juan ""JD"""`)

	res, err := Read(&buf, sequentialIDs())
	require.NoError(t, err)
	require.Len(t, res.Members, 2)
	assert.Zero(t, res.Skipped)
	for i, m := range res.Members {
		want := members[i]
		want.ID = domain.ID(fmt.Sprintf("id-%d", i+1))
		assert.Equal(t, want, m)
	}
}

func TestWrite_FeeFormatting(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, []domain.Member{{Name: "A", MembershipFee: 20}, {Name: "B", MembershipFee: 12.75}}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, ",A,,,20,", lines[1])
	assert.Equal(t, ",B,,,12.75,", lines[2])
}

func TestRead_SkipsShortAndBadRows(t *testing.T) {
	input := "Control Number,Name,Student Number,Year Level,Fee,Date\n" +
		"CN-06-01-001,Ana,1,1st Year,abc,2024-06-01\n" +
		"CN-06-01-002,Ben,2,2nd Year\n" +
		"\n" +
		"CN-06-01-003,,3,3rd Year,20,2024-06-01\n" +
		"CN-06-01-004,Cy,4,4th Year,30,2024-06-02,extra\n"

	res, err := Read(strings.NewReader(input), sequentialIDs())
	require.NoError(t, err)
	require.Len(t, res.Members, 2)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, "Ana", res.Members[0].Name)
	assert.Zero(t, res.Members[0].MembershipFee)
	assert.Equal(t, "Cy", res.Members[1].Name)
	assert.Equal(t, 30.0, res.Members[1].MembershipFee)
}

func TestRead_HeaderOnly(t *testing.T) {
	res, err := Read(strings.NewReader("Control Number,Name,Student Number,Year Level,Fee,Date\n"), sequentialIDs())
	require.NoError(t, err)
	assert.Empty(t, res.Members)
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "membership_data_2024-06-15.csv", Filename(time.Date(2024, 6, 15, 23, 0, 0, 0, time.UTC)))
}
