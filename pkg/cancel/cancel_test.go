package cancel

import (
	"context"
	"testing"
	"time"
)

func TestPollUncancelled(t *testing.T) {
	if err := Poll(context.Background()); err != nil {
		t.Fatalf("Poll(Background()) = %v, want nil", err)
	}
}

func TestWithTimeoutReason(t *testing.T) {
	ctx, cancelFn := WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelFn()

	<-ctx.Done()
	if err := Poll(ctx); err == nil {
		t.Fatal("Poll after deadline = nil, want error")
	}
	if got := ReasonOf(ctx); got != ReasonTimeout {
		t.Fatalf("ReasonOf = %v, want ReasonTimeout", got)
	}
}

func TestInterruptTrigger(t *testing.T) {
	it := NewInterrupt(context.Background())
	ctx := it.Context()

	if err := Poll(ctx); err != nil {
		t.Fatalf("Poll before Trigger = %v, want nil", err)
	}
	if it.Fired() {
		t.Fatal("Fired() = true before Trigger")
	}

	it.Trigger()
	it.Trigger() // must be idempotent

	if !it.Fired() {
		t.Fatal("Fired() = false after Trigger")
	}
	if err := Poll(ctx); err == nil {
		t.Fatal("Poll after Trigger = nil, want error")
	}
	if got := ReasonOf(ctx); got != ReasonInterrupt {
		t.Fatalf("ReasonOf = %v, want ReasonInterrupt", got)
	}
}

func TestChildInheritsParentReason(t *testing.T) {
	parent := NewInterrupt(context.Background())
	child, cancelChild := WithTimeout(parent.Context(), time.Hour)
	defer cancelChild()

	parent.Trigger()
	<-child.Done()

	if got := ReasonOf(child); got != ReasonInterrupt {
		t.Fatalf("ReasonOf(child) = %v, want ReasonInterrupt (inherited from parent)", got)
	}
}

func TestWithOSErrorTransientDoesNotCancel(t *testing.T) {
	transient := true
	ctx, report := WithOSError(context.Background(), func(error) bool { return transient })

	report(context.DeadlineExceeded)
	if err := Poll(ctx); err != nil {
		t.Fatalf("Poll after transient-classified error = %v, want nil", err)
	}

	transient = false
	report(context.DeadlineExceeded)
	if err := Poll(ctx); err == nil {
		t.Fatal("Poll after fatal-classified error = nil, want error")
	}
	if got := ReasonOf(ctx); got != ReasonOSError {
		t.Fatalf("ReasonOf = %v, want ReasonOSError", got)
	}
}

func TestBlocking(t *testing.T) {
	ctx, cancelFn := Blocking(context.Background())
	cancelFn()
	if got := ReasonOf(ctx); got != ReasonBlocking {
		t.Fatalf("ReasonOf = %v, want ReasonBlocking", got)
	}
}
