package tools

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/BaSui01/taskforce/types"
)

// Operation is a single callable tool operation. It may return a structured
// failure as a Result-error, or fail outright with an error (or even panic);
// the Dispatcher turns both into a Result-error.
type Operation func(ctx context.Context, args json.RawMessage) (types.Result, error)

// OperationSpec declares one operation of a provider.
type OperationSpec struct {
	Name        string
	Description string
	Schema      *types.JSONSchema
	Handler     Operation
}

// OperationTable is the pre-built operation-name -> operation dispatch table.
type OperationTable struct {
	ops map[string]OperationSpec
}

// NewOperationTable builds a table; a later spec with the same name wins.
func NewOperationTable(specs ...OperationSpec) OperationTable {
	ops := make(map[string]OperationSpec, len(specs))
	for _, spec := range specs {
		if spec.Name == "" || spec.Handler == nil {
			continue
		}
		ops[spec.Name] = spec
	}
	return OperationTable{ops: ops}
}

// Lookup finds an operation by exact name.
func (t OperationTable) Lookup(name string) (OperationSpec, bool) {
	spec, ok := t.ops[name]
	return spec, ok
}

// Len returns the number of operations.
func (t OperationTable) Len() int { return len(t.ops) }

// Names returns the sorted operation names.
func (t OperationTable) Names() []string {
	names := make([]string, 0, len(t.ops))
	for name := range t.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schemas returns the function declarations for every operation, sorted by
// name. Operations without properties get a placeholder parameter.
func (t OperationTable) Schemas() []types.ToolSchema {
	out := make([]types.ToolSchema, 0, len(t.ops))
	for _, name := range t.Names() {
		spec := t.ops[name]
		params, err := spec.Schema.EnsureParameter().ToJSON()
		if err != nil {
			continue
		}
		out = append(out, types.ToolSchema{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  params,
		})
	}
	return out
}

// Provider is a named component exposing callable operations.
type Provider interface {
	Name() string
	Operations() OperationTable
}

// StaticProvider is a Provider whose operations are fixed at construction.
type StaticProvider struct {
	name  string
	table OperationTable
}

// NewProvider creates a StaticProvider.
func NewProvider(name string, specs ...OperationSpec) *StaticProvider {
	return &StaticProvider{name: name, table: NewOperationTable(specs...)}
}

// Name implements Provider.
func (p *StaticProvider) Name() string { return p.name }

// Operations implements Provider.
func (p *StaticProvider) Operations() OperationTable { return p.table }
