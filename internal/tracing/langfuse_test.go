package tracing

import "testing"

func TestSetup_DisabledWithoutKeys(t *testing.T) {
	t.Setenv("LANGFUSE_PUBLIC_KEY", "")
	t.Setenv("LANGFUSE_SECRET_KEY", "sk-only")

	handler, flush, ok := Setup()
	if ok || handler != nil || flush != nil {
		t.Errorf("expected tracing disabled, got ok=%v handler=%v", ok, handler)
	}
}

func TestInstall_NoopFlushWhenDisabled(t *testing.T) {
	t.Setenv("LANGFUSE_PUBLIC_KEY", "")
	t.Setenv("LANGFUSE_SECRET_KEY", "")

	flush, ok := Install()
	if ok {
		t.Fatal("expected Install to report disabled")
	}
	flush()
}
