package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"validation", Validation("op", "missing field"), KindValidation},
		{"not found", NotFound("op", "no such blob"), KindNotFound},
		{"dependency", Dependency("op", "index down", errors.New("dial")), KindDependency},
		{"wrapped", fmt.Errorf("outer: %w", Validation("op", "bad")), KindValidation},
		{"plain", errors.New("boom"), KindDependency},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := KindOf(tc.err); got != tc.want {
				t.Errorf("KindOf = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMessage_HidesDependencyCause(t *testing.T) {
	t.Parallel()

	err := Dependency("rag.upsert", "", errors.New("rpc error: secret host 10.0.0.7"))
	if got := Message(err); got != "rag.upsert failed" {
		t.Errorf("Message = %q, want %q", got, "rag.upsert failed")
	}
	if got := Message(errors.New("x")); got != "internal error" {
		t.Errorf("Message(plain) = %q", got)
	}
}

func TestError_UnwrapsCause(t *testing.T) {
	t.Parallel()

	cause := fmt.Errorf("search: %w", ErrDegraded)
	err := Dependency("retrieval", "search failed", cause)
	if !errors.Is(err, ErrDegraded) {
		t.Error("expected errors.Is(err, ErrDegraded)")
	}
}
