package analyzer

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/c360/filestream/errors"
)

// mockAnalyzer implements the Analyzer interface for testing.
type mockAnalyzer struct {
	Base
	name string
}

// Mock factory function
func createMockAnalyzer(rawArgs json.RawMessage, deps Dependencies) (Analyzer, error) {
	args := make(map[string]any)
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return nil, err
		}
	}

	name, _ := args["name"].(string)
	if name == "" {
		name = "mock"
	}

	return &mockAnalyzer{Base: NewBase(deps), name: name}, nil
}

// Factory that always fails
func failingFactory(_ json.RawMessage, _ Dependencies) (Analyzer, error) {
	return nil, fmt.Errorf("factory failure")
}

func TestNewRegistry(t *testing.T) {
	registry := NewRegistry()

	if registry == nil {
		t.Fatal("NewRegistry returned nil")
	}

	if len(registry.Types()) != 0 {
		t.Error("registry should start empty")
	}
}

func TestRegister(t *testing.T) {
	registry := NewRegistry()

	err := registry.Register(Registration{
		Name:        "mock",
		Description: "Mock analyzer for testing",
		Version:     "1.0.0",
		Factory:     createMockAnalyzer,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	reg, ok := registry.Lookup("mock")
	if !ok {
		t.Fatal("Lookup failed after Register")
	}
	if reg.Name != "mock" {
		t.Errorf("expected name 'mock', got %q", reg.Name)
	}
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	registry := NewRegistry()

	reg := Registration{Name: "mock", Factory: createMockAnalyzer}
	if err := registry.Register(reg); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}

	err := registry.Register(reg)
	if err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	if !stderrors.Is(err, errors.ErrAlreadyRegistered) {
		t.Errorf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	registry := NewRegistry()

	if err := registry.Register(Registration{Name: "", Factory: createMockAnalyzer}); err == nil {
		t.Error("expected empty name to be rejected")
	}
	if err := registry.Register(Registration{Name: "no-factory"}); err == nil {
		t.Error("expected nil factory to be rejected")
	}
}

func TestInstantiate(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(Registration{Name: "mock", Factory: createMockAnalyzer}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	a, err := registry.Instantiate("mock", json.RawMessage(`{"name":"instance-1"}`), Dependencies{})
	if err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}

	mock, ok := a.(*mockAnalyzer)
	if !ok {
		t.Fatalf("expected *mockAnalyzer, got %T", a)
	}
	if mock.name != "instance-1" {
		t.Errorf("expected name 'instance-1', got %q", mock.name)
	}
}

func TestInstantiateUnknownType(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Instantiate("bogus", nil, Dependencies{})
	if err == nil {
		t.Fatal("expected unknown type to fail")
	}
	if !stderrors.Is(err, errors.ErrUnknownAnalyzer) {
		t.Errorf("expected ErrUnknownAnalyzer, got %v", err)
	}
}

func TestInstantiatePropagatesFactoryFailure(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(Registration{Name: "failing", Factory: failingFactory}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	_, err := registry.Instantiate("failing", nil, Dependencies{})
	if err == nil {
		t.Fatal("expected factory failure to propagate")
	}
	if stderrors.Is(err, errors.ErrUnknownAnalyzer) {
		t.Error("factory failure should not be classified as unknown type")
	}
}

func TestTypesSorted(t *testing.T) {
	registry := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := registry.Register(Registration{Name: name, Factory: createMockAnalyzer}); err != nil {
			t.Fatalf("Register(%q) failed: %v", name, err)
		}
	}

	types := registry.Types()
	want := []string{"alpha", "mid", "zeta"}
	if len(types) != len(want) {
		t.Fatalf("expected %d types, got %d", len(want), len(types))
	}
	for i, name := range want {
		if types[i] != name {
			t.Errorf("types[%d] = %q, want %q", i, types[i], name)
		}
	}
}

func TestVerdictString(t *testing.T) {
	if Continue.String() != "continue" {
		t.Errorf("Continue.String() = %q", Continue.String())
	}
	if Detach.String() != "detach" {
		t.Errorf("Detach.String() = %q", Detach.String())
	}
	if Verdict(42).String() != "unknown" {
		t.Errorf("Verdict(42).String() = %q", Verdict(42).String())
	}
}

func TestBaseDefaults(t *testing.T) {
	b := NewBase(Dependencies{})

	if b.Logger() == nil {
		t.Error("Base logger should fall back to default")
	}
	if b.Events() == nil {
		t.Error("Base emitter should fall back to Discard")
	}

	if v := b.DeliverChunk(0, []byte("abc"), true); v != Continue {
		t.Errorf("default DeliverChunk verdict = %v", v)
	}
	if b.BytesSeen() != 3 {
		t.Errorf("BytesSeen = %d, want 3", b.BytesSeen())
	}
	if v := b.Undelivered(0, 5); v != Continue {
		t.Errorf("default Undelivered verdict = %v", v)
	}
}
