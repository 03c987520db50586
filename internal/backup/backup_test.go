package backup

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/Rrens/chatvault/internal/domain"
	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
)

func TestArchiveName(t *testing.T) {
	ts := time.Date(2024, 3, 9, 23, 30, 0, 0, time.FixedZone("UTC-2", -2*3600))
	assert.Equal(t, "backup-2024-03-10.json", ArchiveName(ts))
	assert.NotEqual(t, CanonicalName, ArchiveName(ts))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unauthorized", &googleapi.Error{Code: http.StatusUnauthorized}, domain.ErrAuthExpired},
		{"forbidden", &googleapi.Error{Code: http.StatusForbidden}, domain.ErrAuthExpired},
		{"not found", &googleapi.Error{Code: http.StatusNotFound}, domain.ErrNotFound},
		{"rate limited", &googleapi.Error{Code: http.StatusTooManyRequests}, domain.ErrNetworkFailure},
		{"server error", &googleapi.Error{Code: http.StatusBadGateway}, domain.ErrNetworkFailure},
		{"wrapped api error", fmt.Errorf("failed to list: %w", &googleapi.Error{Code: 401}), domain.ErrAuthExpired},
		{"timeout", context.DeadlineExceeded, domain.ErrNetworkFailure},
		{"unknown", errors.New("connection reset"), domain.ErrNetworkFailure},
		{"already classified", fmt.Errorf("x: %w", domain.ErrNoBackup), domain.ErrNoBackup},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}

	assert.NoError(t, Classify(nil))
}
