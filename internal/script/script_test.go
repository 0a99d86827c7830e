package script

import (
	"errors"
	"testing"
)

func TestNullEvaluatorAlwaysFaults(t *testing.T) {
	var e NullEvaluator
	if _, err := e.Call("anything"); !errors.Is(err, ErrScriptFault) {
		t.Fatalf("err = %v, want ErrScriptFault", err)
	}
}

func TestTableEvaluatorCallsRegisteredFunc(t *testing.T) {
	e := NewTableEvaluator()
	e.Register("double", func(args ...Value) (Value, error) {
		return Number(args[0].Num * 2), nil
	})
	v, err := e.Call("double", Number(21))
	if err != nil {
		t.Fatal(err)
	}
	if v.Num != 42 {
		t.Fatalf("v.Num = %v, want 42", v.Num)
	}
}

func TestTableEvaluatorUnregisteredFuncFaults(t *testing.T) {
	e := NewTableEvaluator()
	if _, err := e.Call("missing"); !errors.Is(err, ErrScriptFault) {
		t.Fatalf("err = %v, want ErrScriptFault", err)
	}
}

func TestRegistryDefaultsToNull(t *testing.T) {
	r := NewRegistry()
	if r.Current().Name() != "null" {
		t.Fatalf("Current().Name() = %q, want null", r.Current().Name())
	}
}

func TestRegistrySetCurrentSwitchesEvaluator(t *testing.T) {
	r := NewRegistry()
	r.Register(NewTableEvaluator())
	if err := r.SetCurrent("table"); err != nil {
		t.Fatal(err)
	}
	if r.Current().Name() != "table" {
		t.Fatalf("Current().Name() = %q, want table", r.Current().Name())
	}
}

func TestRegistrySetCurrentUnknownFails(t *testing.T) {
	r := NewRegistry()
	if err := r.SetCurrent("nonexistent"); err == nil {
		t.Fatal("expected an error selecting an unregistered evaluator")
	}
}
