package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/marketplace/internal/domain"
	"github.com/timmy/marketplace/internal/repository"
)

func TestSummaryStatus(t *testing.T) {
	testCases := []struct {
		name    string
		results []RowResult
		fatal   error
		want    domain.JobStatus
	}{
		{name: "no rows", want: domain.JobStatusFailed},
		{name: "all rows ok", results: []RowResult{{Line: 2}, {Line: 3}}, want: domain.JobStatusCompleted},
		{name: "one row failed", results: []RowResult{{Line: 2}, {Line: 3, Err: errors.New("boom")}}, want: domain.JobStatusFailed},
		{name: "fatal", results: []RowResult{{Line: 2}}, fatal: errors.New("disk full"), want: domain.JobStatusFailed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var s Summary
			for _, res := range tc.results {
				s.Add(res)
			}
			if tc.fatal != nil {
				s.Abort(tc.fatal)
			}
			assert.Equal(t, tc.want, s.Status())
			assert.Equal(t, s.Total, s.Successful+s.Failed)
		})
	}
}

func TestSummaryAbortDiscardsSuccesses(t *testing.T) {
	var s Summary
	s.Add(RowResult{Line: 2})
	s.Add(RowResult{Line: 3})
	s.Add(RowResult{Line: 4, Err: errors.New("bad")})
	s.Abort(errors.New("commit failed"))

	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 0, s.Successful)
	assert.Equal(t, 3, s.Failed)
}

func TestSummaryWrapsPlainErrors(t *testing.T) {
	var s Summary
	s.Add(RowResult{Line: 5, Err: errors.New("constraint")})

	require.Len(t, s.RowErrors, 1)
	assert.Equal(t, 5, s.RowErrors[0].Line)
	assert.Equal(t, "row 5: constraint", s.RowErrors[0].Error())
}

func TestAuditLogLifecycle(t *testing.T) {
	db := newTestDB(t)
	audit := NewAuditLog(repository.NewImportJobRepository(db), 2)
	ctx := context.Background()

	job, err := audit.Create(ctx, "", "products.csv", 7)
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, domain.JobStatusInProgress, job.Status)

	var s Summary
	s.Add(RowResult{Line: 2})
	for line := 3; line <= 6; line++ {
		s.Add(RowResult{Line: line, Err: fmt.Errorf("%w: bad", domain.ErrMalformedRow)})
	}
	require.NoError(t, audit.Finalize(ctx, job, &s))

	stored, err := audit.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, stored.Status)
	assert.Equal(t, 5, stored.TotalRows)
	assert.Equal(t, 1, stored.SuccessfulRows)
	assert.Equal(t, 4, stored.FailedRows)
	lines := strings.Split(stored.ErrorDetail, "\n")
	assert.Equal(t, []string{
		"row 3: malformed row: bad",
		"row 4: malformed row: bad",
		"... and 2 more row errors",
	}, lines)

	err = audit.Finalize(ctx, job, &Summary{Total: 1, Successful: 1})
	assert.ErrorIs(t, err, domain.ErrJobFinalized)

	stored, err = audit.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, stored.Status)
}

func TestAuditLogStale(t *testing.T) {
	db := newTestDB(t)
	audit := NewAuditLog(repository.NewImportJobRepository(db), 0)
	ctx := context.Background()

	crashed, err := audit.Create(ctx, "crashed", "products.csv", 7)
	require.NoError(t, err)
	_, err = audit.Create(ctx, "other-file", "other.csv", 7)
	require.NoError(t, err)
	current, err := audit.Create(ctx, "current", "products.csv", 7)
	require.NoError(t, err)

	stale, err := audit.Stale(ctx, current)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, crashed.ID, stale[0].ID)
}

func TestAuditLogGetUnknown(t *testing.T) {
	audit := NewAuditLog(repository.NewImportJobRepository(newTestDB(t)), 0)

	_, err := audit.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}
