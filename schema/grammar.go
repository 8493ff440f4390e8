// Package schema parses GraphQL schema definitions and executable
// documents, and resolves which concrete object types a query can
// return. The grammars cover the subset of the language the type
// resolver needs; argument and directive values are consumed but
// never evaluated.
package schema

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var graphqlLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `#[^\n]*`},
	{Name: "BlockString", Pattern: `"""[\s\S]*?"""`},
	{Name: "String", Pattern: `"(\\.|[^"\\])*"`},
	{Name: "Number", Pattern: `-?\d+(\.\d+)?`},
	{Name: "Spread", Pattern: `\.\.\.`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Punct", Pattern: `[!$&():=@\[\]{}|]`},
	{Name: "Comma", Pattern: `,`},
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
})

var parserOptions = []participle.Option{
	participle.Lexer(graphqlLexer),
	participle.Elide("Comment", "Comma", "Whitespace"),
	participle.UseLookahead(2),
}

// Document is a parsed schema definition file.
type Document struct {
	Definitions []*Definition `parser:"@@*"`
}

type Definition struct {
	Schema    *SchemaDef    `parser:"  @@"`
	Scalar    *ScalarDef    `parser:"| @@"`
	Object    *ObjectDef    `parser:"| @@"`
	Interface *InterfaceDef `parser:"| @@"`
	Union     *UnionDef     `parser:"| @@"`
	Enum      *EnumDef      `parser:"| @@"`
	Input     *InputDef     `parser:"| @@"`
}

type SchemaDef struct {
	Directives []*Directive     `parser:"\"schema\" @@*"`
	Roots      []*RootOperation `parser:"\"{\" @@+ \"}\""`
}

type RootOperation struct {
	Operation string `parser:"@(\"query\" | \"mutation\" | \"subscription\") \":\""`
	Type      string `parser:"@Ident"`
}

type ScalarDef struct {
	Description *string      `parser:"(@String | @BlockString)?"`
	Name        string       `parser:"\"scalar\" @Ident"`
	Directives  []*Directive `parser:"@@*"`
}

type ObjectDef struct {
	Description *string      `parser:"(@String | @BlockString)?"`
	Name        string       `parser:"\"type\" @Ident"`
	Implements  []string     `parser:"(\"implements\" \"&\"? @Ident (\"&\" @Ident)*)?"`
	Directives  []*Directive `parser:"@@*"`
	Fields      []*FieldDef  `parser:"(\"{\" @@+ \"}\")?"`
}

type InterfaceDef struct {
	Description *string      `parser:"(@String | @BlockString)?"`
	Name        string       `parser:"\"interface\" @Ident"`
	Implements  []string     `parser:"(\"implements\" \"&\"? @Ident (\"&\" @Ident)*)?"`
	Directives  []*Directive `parser:"@@*"`
	Fields      []*FieldDef  `parser:"(\"{\" @@+ \"}\")?"`
}

type UnionDef struct {
	Description *string      `parser:"(@String | @BlockString)?"`
	Name        string       `parser:"\"union\" @Ident"`
	Directives  []*Directive `parser:"@@*"`
	Members     []string     `parser:"(\"=\" \"|\"? @Ident (\"|\" @Ident)*)?"`
}

type EnumDef struct {
	Description *string         `parser:"(@String | @BlockString)?"`
	Name        string          `parser:"\"enum\" @Ident"`
	Directives  []*Directive    `parser:"@@*"`
	Values      []*EnumValueDef `parser:"(\"{\" @@+ \"}\")?"`
}

type EnumValueDef struct {
	Description *string      `parser:"(@String | @BlockString)?"`
	Name        string       `parser:"@Ident"`
	Directives  []*Directive `parser:"@@*"`
}

type InputDef struct {
	Description *string          `parser:"(@String | @BlockString)?"`
	Name        string           `parser:"\"input\" @Ident"`
	Directives  []*Directive     `parser:"@@*"`
	Fields      []*InputFieldDef `parser:"(\"{\" @@+ \"}\")?"`
}

type InputFieldDef struct {
	Description *string      `parser:"(@String | @BlockString)?"`
	Name        string       `parser:"@Ident \":\""`
	Type        *TypeRef     `parser:"@@"`
	Default     *Value       `parser:"(\"=\" @@)?"`
	Directives  []*Directive `parser:"@@*"`
}

type FieldDef struct {
	Description *string        `parser:"(@String | @BlockString)?"`
	Name        string         `parser:"@Ident"`
	Arguments   []*ArgumentDef `parser:"(\"(\" @@+ \")\")?"`
	Type        *TypeRef       `parser:"\":\" @@"`
	Directives  []*Directive   `parser:"@@*"`
}

type ArgumentDef struct {
	Description *string  `parser:"(@String | @BlockString)?"`
	Name        string   `parser:"@Ident \":\""`
	Type        *TypeRef `parser:"@@"`
	Default     *Value   `parser:"(\"=\" @@)?"`
}

type TypeRef struct {
	List    *TypeRef `parser:"( \"[\" @@ \"]\""`
	Named   string   `parser:"| @Ident )"`
	NonNull bool     `parser:"@\"!\"?"`
}

// BaseName unwraps list and non-null wrappers down to the named type.
func (t *TypeRef) BaseName() string {
	for t.List != nil {
		t = t.List
	}
	return t.Named
}

type Directive struct {
	Name      string      `parser:"\"@\" @Ident"`
	Arguments []*Argument `parser:"(\"(\" @@+ \")\")?"`
}

type Argument struct {
	Name  string `parser:"@Ident \":\""`
	Value *Value `parser:"@@"`
}

type Value struct {
	Variable *string        `parser:"  \"$\" @Ident"`
	Number   *float64       `parser:"| @Number"`
	String   *string        `parser:"| (@String | @BlockString)"`
	Bool     *string        `parser:"| @(\"true\" | \"false\")"`
	Null     bool           `parser:"| @\"null\""`
	Enum     *string        `parser:"| @Ident"`
	List     []*Value       `parser:"| \"[\" @@* \"]\""`
	Object   []*ObjectField `parser:"| \"{\" @@* \"}\""`
}

type ObjectField struct {
	Name  string `parser:"@Ident \":\""`
	Value *Value `parser:"@@"`
}

var schemaParser = participle.MustBuild[Document](parserOptions...)

// ParseSchema parses a schema definition document.
func ParseSchema(source string) (*Document, error) {
	return schemaParser.ParseString("", source)
}
