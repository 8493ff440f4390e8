package schema

import (
	"github.com/alecthomas/participle/v2"
)

// QueryDocument is a parsed executable document: one or more
// operations plus any fragment definitions they reference.
type QueryDocument struct {
	Definitions []*ExecutableDefinition `parser:"@@+"`
}

type ExecutableDefinition struct {
	Fragment  *FragmentDef `parser:"  @@"`
	Operation *Operation   `parser:"| @@"`
}

type FragmentDef struct {
	Name          string        `parser:"\"fragment\" @Ident"`
	TypeCondition string        `parser:"\"on\" @Ident"`
	Directives    []*Directive  `parser:"@@*"`
	Selections    *SelectionSet `parser:"@@"`
}

type Operation struct {
	Type       string        `parser:"@(\"query\" | \"mutation\" | \"subscription\")?"`
	Name       string        `parser:"@Ident?"`
	Variables  []*VariableDef `parser:"(\"(\" @@+ \")\")?"`
	Directives []*Directive  `parser:"@@*"`
	Selections *SelectionSet `parser:"@@"`
}

type VariableDef struct {
	Name       string       `parser:"\"$\" @Ident \":\""`
	Type       *TypeRef     `parser:"@@"`
	Default    *Value       `parser:"(\"=\" @@)?"`
	Directives []*Directive `parser:"@@*"`
}

type SelectionSet struct {
	Selections []*Selection `parser:"\"{\" @@+ \"}\""`
}

type Selection struct {
	Fragment *FragmentRef `parser:"  \"...\" @@"`
	Field    *Field       `parser:"| @@"`
}

type FragmentRef struct {
	Inline *InlineFragment `parser:"  @@"`
	Spread *FragmentSpread `parser:"| @@"`
}

type InlineFragment struct {
	TypeCondition string        `parser:"(\"on\" @Ident)?"`
	Directives    []*Directive  `parser:"@@*"`
	Selections    *SelectionSet `parser:"@@"`
}

type FragmentSpread struct {
	Name       string       `parser:"@Ident"`
	Directives []*Directive `parser:"@@*"`
}

type Field struct {
	Alias      string        `parser:"(@Ident \":\")?"`
	Name       string        `parser:"@Ident"`
	Arguments  []*Argument   `parser:"(\"(\" @@+ \")\")?"`
	Directives []*Directive  `parser:"@@*"`
	Selections *SelectionSet `parser:"@@?"`
}

var queryParser = participle.MustBuild[QueryDocument](parserOptions...)

// ParseQuery parses an executable document.
func ParseQuery(source string) (*QueryDocument, error) {
	return queryParser.ParseString("", source)
}
