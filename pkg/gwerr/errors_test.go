package gwerr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNewWrapsCauseForLogsOnly(t *testing.T) {
	cause := errors.New("401 Incorrect API key provided: sk-secret")
	err := New(KindProviderAuth, cause)

	if !strings.Contains(err.Error(), "sk-secret") {
		t.Error("log-facing Error() should include the cause")
	}
	if strings.Contains(UserMessage(err), "sk-secret") {
		t.Error("user message must never include the cause")
	}
	if UserMessage(err) != "invalid credential, contact administrator" {
		t.Errorf("user message = %q", UserMessage(err))
	}
	if !errors.Is(err, cause) {
		t.Error("cause should unwrap")
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(New(KindRateLimited, nil)); got != KindRateLimited {
		t.Errorf("KindOf = %s", got)
	}
	if got := KindOf(fmt.Errorf("wrapped: %w", New(KindValidation, nil))); got != KindValidation {
		t.Errorf("KindOf through wrapping = %s", got)
	}
	if got := KindOf(errors.New("plain")); got != KindProvider {
		t.Errorf("KindOf for unclassified = %s", got)
	}
}

func TestNewfCustomMessage(t *testing.T) {
	err := Newf(KindValidation, "message %d: unknown role %q", 2, "wizard")
	if UserMessage(err) != `message 2: unknown role "wizard"` {
		t.Errorf("message = %q", UserMessage(err))
	}
}
