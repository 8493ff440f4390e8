package schema

import (
	"sort"
	"strings"

	"github.com/saiset-co/sai-graphql-cache/types"
)

// Resolver walks an executable document against the schema registry
// and reports every concrete object type the document can return.
// Interfaces and unions never appear in the result, they are expanded
// to their member types at the point of selection.
type Resolver struct {
	registry *Registry
}

func NewResolver(registry *Registry) (*Resolver, error) {
	if registry == nil {
		return nil, types.ErrSchemaNotLoaded
	}
	return &Resolver{registry: registry}, nil
}

func (r *Resolver) ResolveTypes(queryText string) ([]string, error) {
	if strings.TrimSpace(queryText) == "" {
		return nil, types.ErrQueryTextEmpty
	}

	doc, err := ParseQuery(queryText)
	if err != nil {
		return nil, types.Errorf(types.ErrQuerySyntax, "query parse: %v", err)
	}

	fragments := make(map[string]*FragmentDef)
	for _, def := range doc.Definitions {
		if def.Fragment != nil {
			fragments[def.Fragment.Name] = def.Fragment
		}
	}

	walk := &walker{
		registry:  r.registry,
		fragments: fragments,
		found:     make(map[string]struct{}),
		visiting:  make(map[string]struct{}),
	}

	for _, def := range doc.Definitions {
		if def.Operation == nil {
			continue
		}

		operation := def.Operation.Type
		if operation == "" {
			operation = "query"
		}

		rootType, ok := r.registry.RootType(operation)
		if !ok {
			return nil, types.Errorf(types.ErrTypeUnknown, "no root type for %s operation", operation)
		}

		walk.record(rootType)
		if err := walk.selectionSet(def.Operation.Selections, rootType); err != nil {
			return nil, err
		}
	}

	result := make([]string, 0, len(walk.found))
	for name := range walk.found {
		result = append(result, name)
	}
	sort.Strings(result)

	return result, nil
}

type walker struct {
	registry  *Registry
	fragments map[string]*FragmentDef
	found     map[string]struct{}
	visiting  map[string]struct{}
}

func (w *walker) selectionSet(set *SelectionSet, contextType string) error {
	if set == nil {
		return nil
	}

	for _, sel := range set.Selections {
		switch {
		case sel.Field != nil:
			if err := w.field(sel.Field, contextType); err != nil {
				return err
			}
		case sel.Fragment != nil && sel.Fragment.Inline != nil:
			if err := w.inlineFragment(sel.Fragment.Inline, contextType); err != nil {
				return err
			}
		case sel.Fragment != nil && sel.Fragment.Spread != nil:
			if err := w.fragmentSpread(sel.Fragment.Spread); err != nil {
				return err
			}
		}
	}

	return nil
}

func (w *walker) field(field *Field, contextType string) error {
	// Introspection fields like __typename never map to schema types.
	if strings.HasPrefix(field.Name, "__") {
		return nil
	}

	fieldType, ok := w.registry.FieldType(contextType, field.Name)
	if !ok {
		// Unknown field on this context. The executor will reject the
		// query anyway, nothing to record here.
		return nil
	}

	w.record(fieldType)

	if field.Selections != nil {
		return w.selectionSet(field.Selections, fieldType)
	}

	return nil
}

func (w *walker) inlineFragment(frag *InlineFragment, contextType string) error {
	condition := frag.TypeCondition
	if condition == "" {
		condition = contextType
	} else {
		w.record(condition)
	}

	return w.selectionSet(frag.Selections, condition)
}

func (w *walker) fragmentSpread(spread *FragmentSpread) error {
	frag, ok := w.fragments[spread.Name]
	if !ok {
		return types.Errorf(types.ErrFragmentUnknown, "fragment: %s", spread.Name)
	}

	// Fragments referencing each other in a cycle would loop forever,
	// a fragment already on the walk stack is skipped.
	if _, active := w.visiting[spread.Name]; active {
		return nil
	}
	w.visiting[spread.Name] = struct{}{}
	defer delete(w.visiting, spread.Name)

	w.record(frag.TypeCondition)
	return w.selectionSet(frag.Selections, frag.TypeCondition)
}

// record adds the concrete expansion of typeName to the result set.
// Object types are recorded directly, abstract types contribute their
// members, scalars, enums and inputs contribute nothing.
func (w *walker) record(typeName string) {
	if w.registry.IsAbstract(typeName) {
		for _, member := range w.registry.ConcreteTypes(typeName) {
			w.found[member] = struct{}{}
		}
		return
	}

	if w.registry.IsObject(typeName) {
		w.found[typeName] = struct{}{}
	}
}
