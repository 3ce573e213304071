package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/hybrid-qa-engine/internal/core/domain"
)

func TestClassifyCommon(t *testing.T) {
	cases := map[string]struct {
		err     error
		want    ErrorClassification
		settled bool
	}{
		"canceled":     {err: fmt.Errorf("call: %w", context.Canceled), want: Ignored, settled: true},
		"deadline":     {err: context.DeadlineExceeded, want: Ignored, settled: true},
		"circuit open": {err: gobreaker.ErrOpenState, want: Transient, settled: true},
		"half open":    {err: gobreaker.ErrTooManyRequests, want: Transient, settled: true},
		"other":        {err: errors.New("boom"), settled: false},
	}
	for name, tc := range cases {
		got, settled := ClassifyCommon(tc.err)
		if settled != tc.settled {
			t.Fatalf("%s: settled = %v, want %v", name, settled, tc.settled)
		}
		if settled && got != tc.want {
			t.Fatalf("%s: got %+v, want %+v", name, got, tc.want)
		}
	}
}

func TestWrapTemporary(t *testing.T) {
	errFlaky := errors.New("flaky")
	classify := func(err error) ErrorClassification {
		if errors.Is(err, errFlaky) {
			return Transient
		}
		return Permanent
	}

	if err := WrapTemporary("op", errFlaky, classify); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("retryable error must become ErrTemporary, got %v", err)
	}
	if err := WrapTemporary("op", gobreaker.ErrOpenState, classify); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("open circuit must become ErrTemporary, got %v", err)
	}
	permanent := errors.New("bad request")
	if err := WrapTemporary("op", permanent, classify); err != permanent {
		t.Fatalf("permanent error must pass through, got %v", err)
	}
	if err := WrapTemporary("op", nil, classify); err != nil {
		t.Fatalf("nil must stay nil, got %v", err)
	}
}
