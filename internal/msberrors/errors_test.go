package msberrors

import "testing"

func TestToPublic_DerivesScreamingSnakeCaseErrorCode(t *testing.T) {
	err := &SandboxCreationError{Template: "python", Flavor: "small", Cause: errBoom}
	pub := ToPublic(err, "SandboxCreationError")

	if pub.ErrorCode != "SANDBOX_CREATION_ERROR" {
		t.Fatalf("got error code %q", pub.ErrorCode)
	}
	if pub.Category != CategorySandboxCreate {
		t.Fatalf("got category %q", pub.Category)
	}
	if pub.Message == "" {
		t.Fatal("expected a non-empty message")
	}
}

func TestResourceLimitError_ContextCarriesAxis(t *testing.T) {
	err := &ResourceLimitError{ResourceType: "memory", Current: 4096, Limit: 2048}
	ctx := err.Context()
	if ctx["resource_type"] != "memory" {
		t.Fatalf("unexpected context: %+v", ctx)
	}
}

func TestCodeExecutionError_RecoverySuggestionsVaryByType(t *testing.T) {
	timeoutErr := &CodeExecutionError{ErrorType: ExecErrorTimeout}
	compileErr := &CodeExecutionError{ErrorType: ExecErrorCompilation}

	if timeoutErr.RecoverySuggestions()[0] == compileErr.RecoverySuggestions()[0] {
		t.Fatal("expected distinct recovery guidance for timeout vs compilation errors")
	}
}

type testErr struct{ msg string }

func (e *testErr) Error() string { return e.msg }

var errBoom = &testErr{msg: "boom"}
