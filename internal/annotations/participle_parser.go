package annotations

import (
	stderrors "errors"
	"strings"
	"sync"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/toyz/loom/internal/errors"
)

// Marker is the prefix every annotation line starts with
const Marker = "//loom::"

// annotationGrammar is the root of a //loom:: line
type annotationGrammar struct {
	Kind    string           `parser:"Marker @Word"`
	Args    []string         `parser:"@(Word | String)*"`
	Options []*optionGrammar `parser:"@@*"`
}

// optionGrammar is a -Name or -Name=value parameter
type optionGrammar struct {
	Name  string  `parser:"@Option"`
	Value *string `parser:"( Equals @(Word | String) )?"`
}

var annotationLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Marker", Pattern: `//\s*loom::`},
	{Name: "Option", Pattern: `-[A-Za-z][A-Za-z0-9_]*`},
	{Name: "Equals", Pattern: `=`},
	{Name: "String", Pattern: `"(\\"|[^"])*"`},
	{Name: "Word", Pattern: `[^\s"=][^\s"]*`},
	{Name: "Whitespace", Pattern: `\s+`},
})

// ParticipleParser parses annotation lines with alecthomas/participle
type ParticipleParser struct {
	parser   *participle.Parser[annotationGrammar]
	registry AnnotationRegistry
}

// NewParticipleParser creates a new parser validating against registry
func NewParticipleParser(registry AnnotationRegistry) *ParticipleParser {
	parser := participle.MustBuild[annotationGrammar](
		participle.Lexer(annotationLexer),
		participle.Elide("Whitespace"),
		participle.Unquote("String"),
		participle.UseLookahead(2),
	)

	return &ParticipleParser{
		parser:   parser,
		registry: registry,
	}
}

var (
	defaultParser     *ParticipleParser
	defaultParserOnce sync.Once
)

// Parse parses a line with the built-in schemas
func Parse(line string) (*ParsedAnnotation, error) {
	defaultParserOnce.Do(func() {
		defaultParser = NewParticipleParser(DefaultRegistry())
	})
	return defaultParser.ParseAnnotation(line)
}

// IsAnnotation reports whether the line carries the annotation marker
func IsAnnotation(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "//") &&
		strings.HasPrefix(strings.TrimLeft(strings.TrimSpace(line)[2:], " \t"), "loom::")
}

// ParseAnnotation parses and validates one annotation line
func (p *ParticipleParser) ParseAnnotation(line string) (*ParsedAnnotation, error) {
	trimmed := strings.TrimSpace(line)
	if !IsAnnotation(trimmed) {
		return nil, errors.NewSyntaxError(line, "annotation must start with "+Marker).
			WithSuggestion("write annotations as " + Marker + "<kind> [args...] [-Option=value...]")
	}

	ast, err := p.parser.ParseString("", trimmed)
	if err != nil {
		var perr participle.Error
		if stderrors.As(err, &perr) {
			return nil, errors.NewSyntaxErrorWithToken(line, perr.Message(), tokenAt(trimmed, perr.Position().Offset), perr.Position().Column)
		}
		return nil, errors.NewSyntaxError(line, err.Error())
	}

	annotationType, err := ParseAnnotationType(ast.Kind)
	if err != nil {
		return nil, errors.NewSyntaxErrorWithToken(line, err.Error(), ast.Kind, 0).
			WithSuggestion("known kinds: component, service, controller, configuration, mapper, route, bean, listener, init")
	}

	parsed := &ParsedAnnotation{
		Type:       annotationType,
		Args:       ast.Args,
		Parameters: make(map[string]string, len(ast.Options)),
		Raw:        trimmed,
	}
	if parsed.Args == nil {
		parsed.Args = []string{}
	}

	for _, option := range ast.Options {
		name := strings.TrimPrefix(option.Name, "-")
		if _, dup := parsed.Parameters[name]; dup {
			return nil, errors.NewSyntaxErrorWithToken(line, "parameter given more than once", option.Name, 0)
		}
		value := ""
		if option.Value != nil {
			value = *option.Value
		}
		parsed.Parameters[name] = value
	}

	if p.registry != nil {
		if err := p.registry.Validate(parsed); err != nil {
			return nil, errors.NewSyntaxError(line, err.Error())
		}
	}
	return parsed, nil
}

func tokenAt(s string, offset int) string {
	if offset < 0 || offset >= len(s) {
		return ""
	}
	rest := s[offset:]
	if end := strings.IndexAny(rest, " \t"); end >= 0 {
		return rest[:end]
	}
	return rest
}
