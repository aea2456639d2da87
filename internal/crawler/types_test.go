package crawler

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClassifyCode(t *testing.T) {
	t.Parallel()

	cases := map[int]StatusClass{
		0:   StatusUnknown,
		-1:  StatusUnknown,
		101: Status1xx,
		200: Status2xx,
		304: Status3xx,
		404: Status4xx,
		503: Status5xx,
		999: StatusClass("9xx"),
	}
	for code, want := range cases {
		require.Equal(t, want, ClassifyCode(code), "code %d", code)
	}
	require.Equal(t, StatusUnknown, ClassifyStatus(nil))
}

func TestStatusProgress(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0, Status{}.ProgressPercent())
	require.Equal(t, 50, Status{TotalTasks: 10, CompletedTasks: 5}.ProgressPercent())
	require.Equal(t, 100, Status{TotalTasks: 2, CompletedTasks: 3}.ProgressPercent())
	require.Equal(t, 1500*time.Millisecond, Status{DurationMs: 1500}.Duration())
	require.True(t, Status{Paused: true}.Active())
	require.False(t, Status{}.Active())
}

func TestCrawlConfigValidate(t *testing.T) {
	t.Parallel()

	cfg := DefaultCrawlConfig()
	err := cfg.Validate()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "seedUrl", verr.Field)
	require.ErrorIs(t, err, ErrValidation)

	cfg.SeedURL = "https://example.com"
	require.NoError(t, cfg.Validate())

	cfg.Threads = 0
	require.ErrorIs(t, cfg.Validate(), ErrValidation)
}

func TestErrorTaxonomy(t *testing.T) {
	t.Parallel()

	terr := &TransitionError{From: "running", Command: "start"}
	require.ErrorIs(t, terr, ErrInvalidTransition)
	require.Contains(t, terr.Error(), "running")

	cause := errors.New("dial tcp: refused")
	nerr := &NetworkError{Op: "status", Err: cause}
	require.ErrorIs(t, nerr, cause)

	perr := &PollCycleError{Seq: 4, Err: nerr}
	var asNet *NetworkError
	require.ErrorAs(t, perr, &asNet)
}
