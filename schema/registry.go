package schema

import (
	"os"
	"sort"
	"strings"

	"github.com/saiset-co/sai-graphql-cache/types"
)

var builtinScalars = map[string]struct{}{
	"ID":      {},
	"String":  {},
	"Int":     {},
	"Float":   {},
	"Boolean": {},
}

type objectType struct {
	name   string
	fields map[string]string
}

type interfaceType struct {
	name    string
	fields  map[string]string
	members []string
}

// Registry holds the type system extracted from a schema definition
// document. It answers the questions the type resolver asks: what is
// the declared type of a field, which concrete types make up an
// abstract one, and which object type serves each root operation.
type Registry struct {
	objects    map[string]*objectType
	interfaces map[string]*interfaceType
	unions     map[string][]string
	enums      map[string]struct{}
	inputs     map[string]struct{}
	scalars    map[string]struct{}
	roots      map[string]string
}

// NewRegistry builds a registry from schema definition source text.
func NewRegistry(source string) (*Registry, error) {
	if strings.TrimSpace(source) == "" {
		return nil, types.ErrSchemaNotLoaded
	}

	doc, err := ParseSchema(source)
	if err != nil {
		return nil, types.Errorf(types.ErrQuerySyntax, "schema parse: %v", err)
	}

	r := &Registry{
		objects:    make(map[string]*objectType),
		interfaces: make(map[string]*interfaceType),
		unions:     make(map[string][]string),
		enums:      make(map[string]struct{}),
		inputs:     make(map[string]struct{}),
		scalars:    make(map[string]struct{}),
		roots:      make(map[string]string),
	}

	for name := range builtinScalars {
		r.scalars[name] = struct{}{}
	}

	for _, def := range doc.Definitions {
		switch {
		case def.Schema != nil:
			for _, root := range def.Schema.Roots {
				r.roots[root.Operation] = root.Type
			}
		case def.Scalar != nil:
			r.scalars[def.Scalar.Name] = struct{}{}
		case def.Object != nil:
			obj := &objectType{
				name:   def.Object.Name,
				fields: fieldTypes(def.Object.Fields),
			}
			r.objects[obj.name] = obj
			for _, ifaceName := range def.Object.Implements {
				iface := r.ensureInterface(ifaceName)
				iface.members = append(iface.members, obj.name)
			}
		case def.Interface != nil:
			iface := r.ensureInterface(def.Interface.Name)
			iface.fields = fieldTypes(def.Interface.Fields)
		case def.Union != nil:
			r.unions[def.Union.Name] = def.Union.Members
		case def.Enum != nil:
			r.enums[def.Enum.Name] = struct{}{}
		case def.Input != nil:
			r.inputs[def.Input.Name] = struct{}{}
		}
	}

	for op, fallback := range map[string]string{
		"query":        "Query",
		"mutation":     "Mutation",
		"subscription": "Subscription",
	} {
		if _, declared := r.roots[op]; declared {
			continue
		}
		if _, exists := r.objects[fallback]; exists {
			r.roots[op] = fallback
		}
	}

	for _, iface := range r.interfaces {
		sort.Strings(iface.members)
	}
	for _, members := range r.unions {
		sort.Strings(members)
	}

	return r, nil
}

// LoadRegistry builds a registry from a schema definition file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.WrapError(err, "failed to read schema file")
	}
	return NewRegistry(string(data))
}

func (r *Registry) ensureInterface(name string) *interfaceType {
	if iface, exists := r.interfaces[name]; exists {
		return iface
	}
	iface := &interfaceType{name: name, fields: make(map[string]string)}
	r.interfaces[name] = iface
	return iface
}

func fieldTypes(fields []*FieldDef) map[string]string {
	out := make(map[string]string, len(fields))
	for _, field := range fields {
		out[field.Name] = field.Type.BaseName()
	}
	return out
}

// RootType returns the object type serving the given operation kind
// (query, mutation or subscription).
func (r *Registry) RootType(operation string) (string, bool) {
	name, ok := r.roots[strings.ToLower(operation)]
	return name, ok
}

// FieldType returns the declared base type of a field selected on the
// given type. Fields are looked up on object types and on interfaces,
// abstract contexts only carry the fields the interface declares.
func (r *Registry) FieldType(onType, field string) (string, bool) {
	if obj, ok := r.objects[onType]; ok {
		if typeName, exists := obj.fields[field]; exists {
			return typeName, true
		}
		return "", false
	}

	if iface, ok := r.interfaces[onType]; ok {
		if typeName, exists := iface.fields[field]; exists {
			return typeName, true
		}
	}

	return "", false
}

// ConcreteTypes expands a type name to the object types it can stand
// for: the members of an interface or union, or the type itself when
// it is already an object.
func (r *Registry) ConcreteTypes(name string) []string {
	if iface, ok := r.interfaces[name]; ok {
		return iface.members
	}
	if members, ok := r.unions[name]; ok {
		return members
	}
	if _, ok := r.objects[name]; ok {
		return []string{name}
	}
	return nil
}

func (r *Registry) IsObject(name string) bool {
	_, ok := r.objects[name]
	return ok
}

func (r *Registry) IsAbstract(name string) bool {
	if _, ok := r.interfaces[name]; ok {
		return true
	}
	_, ok := r.unions[name]
	return ok
}

// TypeNames returns every object type in the schema, sorted.
func (r *Registry) TypeNames() []string {
	names := make([]string, 0, len(r.objects))
	for name := range r.objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
