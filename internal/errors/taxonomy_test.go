package errors

import (
	"errors"
	"testing"
)

func TestKind_Retryable(t *testing.T) {
	retryable := []Kind{KindTransient, KindTimeout, KindStalled, KindInfrastructure}
	for _, k := range retryable {
		if !k.Retryable() {
			t.Errorf("expected %s to be retryable", k)
		}
	}
	notRetryable := []Kind{KindValidation, KindTerminal, KindFatal}
	for _, k := range notRetryable {
		if k.Retryable() {
			t.Errorf("expected %s to not be retryable", k)
		}
	}
}

func TestJobError_ErrorMessage(t *testing.T) {
	withCause := NewTransientError("downstream call failed", errors.New("connection reset"))
	want := "transient: downstream call failed: connection reset"
	if withCause.Error() != want {
		t.Errorf("expected %q, got %q", want, withCause.Error())
	}

	noCause := NewValidationError("bad payload")
	want = "validation: bad payload"
	if noCause.Error() != want {
		t.Errorf("expected %q, got %q", want, noCause.Error())
	}
}

func TestJobError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	je := NewInfrastructureError("redis down", cause)
	if errors.Unwrap(je) != cause {
		t.Error("expected Unwrap to return the wrapped cause")
	}
}

func TestAsJobError_PassesThroughJobError(t *testing.T) {
	je := NewTimeoutError("handler exceeded deadline")
	got := AsJobError(je)
	if got != je {
		t.Error("expected AsJobError to return the same instance for an existing JobError")
	}
}

func TestAsJobError_ClassifiesUnknownErrorAsTransient(t *testing.T) {
	got := AsJobError(errors.New("some library error"))
	if got.Kind != KindTransient {
		t.Errorf("expected unclassified errors to default to transient, got %s", got.Kind)
	}
}

func TestAsJobError_NilReturnsNil(t *testing.T) {
	if AsJobError(nil) != nil {
		t.Error("expected AsJobError(nil) to return nil")
	}
}

func TestNewFatalError_WrapsPanicError(t *testing.T) {
	pe := &PanicError{Value: "boom"}
	je := NewFatalError(pe)
	if je.Kind != KindFatal {
		t.Errorf("expected kind fatal, got %s", je.Kind)
	}
	if errors.Unwrap(je) != error(pe) {
		t.Error("expected the fatal error to unwrap to the panic error")
	}
}
