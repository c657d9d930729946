package toolkit

import (
	"context"
	"errors"
	"testing"
)

type noopTool struct {
	name string
	cost int
}

func (t noopTool) Name() string                                             { return t.name }
func (t noopTool) Description() string                                      { return "test tool" }
func (t noopTool) Cost() int                                                { return t.cost }
func (t noopTool) NewParams() Params                                        { return &SaveContextParams{} }
func (t noopTool) Handler(ctx context.Context, p Params) (*HandlerResult, error) {
	return &HandlerResult{}, nil
}

func TestRegistry_Register_RejectsDuplicateName(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(PartitionInternal, noopTool{name: "echo"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := r.Register(PartitionExternal, noopTool{name: "echo"})
	var dup *ErrDuplicateTool
	if !errors.As(err, &dup) {
		t.Fatalf("expected *ErrDuplicateTool, got %T: %v", err, err)
	}
}

func TestRegistry_Register_RejectsNegativeCost(t *testing.T) {
	r := NewRegistry()
	err := r.Register(PartitionInternal, noopTool{name: "costly", cost: -1})
	var badCost *ErrInvalidToolCost
	if !errors.As(err, &badCost) {
		t.Fatalf("expected *ErrInvalidToolCost, got %T: %v", err, err)
	}
}

func TestRegistry_Declarations_SortedAndStable(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(PartitionInternal, noopTool{name: "zeta"})
	r.MustRegister(PartitionInternal, noopTool{name: "alpha"})

	first := r.Declarations()
	second := r.Declarations()
	if len(first) != 2 || first[0].Name != "alpha" || first[1].Name != "zeta" {
		t.Fatalf("expected sorted [alpha, zeta], got %+v", first)
	}
	if string(first[0].Parameters) != string(second[0].Parameters) {
		t.Fatal("Declarations() not byte-identical across calls on an unchanged registry")
	}
}

func TestRegistry_Names_PartitionsInternalAndExternal(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(PartitionInternal, noopTool{name: "search"})
	r.MustRegister(PartitionExternal, noopTool{name: "crm-lookup"})

	internal, external := r.Names()
	if len(internal) != 1 || internal[0] != "search" {
		t.Fatalf("internal = %v, want [search]", internal)
	}
	if len(external) != 1 || external[0] != "crm-lookup" {
		t.Fatalf("external = %v, want [crm-lookup]", external)
	}
}
