package types

// TypeResolver computes the set of concrete result types a query's shape can
// yield, given the currently loaded schema. Abstract types (interfaces and
// unions) are expanded to their concrete members; the abstract name itself is
// never part of the result.
type TypeResolver interface {
	ResolveTypes(queryText string) ([]string, error)
}

// SchemaRegistry answers the type questions the resolver's traversal needs.
type SchemaRegistry interface {
	RootType(operation string) (string, bool)
	FieldType(typeName, fieldName string) (string, bool)
	ConcreteTypes(typeName string) []string
	IsObject(typeName string) bool
	IsAbstract(typeName string) bool
}
