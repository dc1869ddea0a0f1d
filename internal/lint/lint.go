// Package lint checks loom declarations in Go sources without running them.
//
// It finds every loom.Component, loom.Interface and loom.Mapper call,
// validates the annotation literals passed to them and builds the route
// table the application would compile at boot, reporting duplicate exact
// routes before the program ever starts.
package lint

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/toyz/loom/internal/annotations"
	"github.com/toyz/loom/internal/errors"
	"github.com/toyz/loom/internal/routing"
	"github.com/toyz/loom/internal/utils"
)

// ImportPath is the package whose declaration calls are inspected
const ImportPath = "github.com/toyz/loom/pkg/loom"

// Severity ranks a finding
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

// String returns the severity label
func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Finding is one problem at a source position
type Finding struct {
	Pos       token.Position
	Severity  Severity
	Component string
	Message   string
}

// String formats the finding as file:line:col: severity: message
func (f Finding) String() string {
	if f.Component == "" {
		return fmt.Sprintf("%s: %s: %s", f.Pos, f.Severity, f.Message)
	}
	return fmt.Sprintf("%s: %s: %s: %s", f.Pos, f.Severity, f.Component, f.Message)
}

// Route is one entry of the static route table
type Route struct {
	Verb      string
	Template  string
	Handler   string
	Component string
	Kind      routing.Kind
	Pos       token.Position
}

// Key returns verb + template, the key used by the route registry
func (r Route) Key() string {
	return r.Verb + r.Template
}

// Report is the outcome of one lint run
type Report struct {
	Module       string
	Files        int
	Declarations int
	Findings     []Finding
	Routes       []Route
}

// Errors counts error findings
func (r *Report) Errors() int {
	return r.count(SeverityError)
}

// Warnings counts warning findings
func (r *Report) Warnings() int {
	return r.count(SeverityWarning)
}

func (r *Report) count(severity Severity) int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity == severity {
			n++
		}
	}
	return n
}

// Linter walks sources and accumulates a Report
type Linter struct {
	logger logrus.FieldLogger
	fset   *token.FileSet
	report *Report
	routes *routing.Registry
	seen   map[string]Route
}

// New creates a linter. logger may be nil.
func New(logger logrus.FieldLogger) *Linter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Linter{
		logger: logger,
		fset:   token.NewFileSet(),
		report: &Report{},
		routes: routing.NewRegistry(),
		seen:   make(map[string]Route),
	}
}

// Run expands patterns (see utils.ExpandGoPatterns), lints every file and
// returns the report. The error is non-nil only when sources cannot be read
// or parsed; annotation problems are findings.
func Run(logger logrus.FieldLogger, patterns ...string) (*Report, error) {
	l := New(logger)

	files, err := utils.ExpandGoPatterns(patterns)
	if err != nil {
		return nil, err
	}
	if len(files) > 0 {
		if goMod, err := utils.FindGoModFile(filepath.Dir(files[0])); err == nil {
			if module, err := utils.ParseModuleName(goMod); err == nil {
				l.report.Module = module
			}
		}
	}

	for _, file := range files {
		if err := l.File(file, nil); err != nil {
			return nil, err
		}
	}
	return l.Report(), nil
}

// File lints one source file. src follows go/parser.ParseFile: when nil the
// file is read from disk.
func (l *Linter) File(filename string, src any) error {
	file, err := parser.ParseFile(l.fset, filename, src, parser.SkipObjectResolution)
	if err != nil {
		return errors.Wrapf(errors.SyntaxErrorCode, err, "cannot parse %s", filename)
	}
	l.report.Files++

	qualifier, ok := loomQualifier(file)
	if !ok {
		return nil
	}

	ast.Inspect(file, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		if decl, ok := l.declaration(call, qualifier); ok {
			l.check(decl)
		}
		return true
	})
	return nil
}

// Report returns the accumulated report
func (l *Linter) Report() *Report {
	return l.report
}

// loomQualifier returns the local name of the loom package in file: the
// import name, or "" when file belongs to package loom itself
func loomQualifier(file *ast.File) (string, bool) {
	if file.Name.Name == "loom" {
		return "", true
	}
	for _, spec := range file.Imports {
		path, err := strconv.Unquote(spec.Path.Value)
		if err != nil || path != ImportPath {
			continue
		}
		if spec.Name == nil {
			return "loom", true
		}
		if spec.Name.Name == "_" || spec.Name.Name == "." {
			return "", spec.Name.Name == "."
		}
		return spec.Name.Name, true
	}
	return "", false
}

type declKind int

const (
	componentDecl declKind = iota
	interfaceDecl
	mapperDecl
)

type annotationLine struct {
	text string
	pos  token.Position
}

type declaration struct {
	kind      declKind
	component string
	pos       token.Position
	lines     []annotationLine
}

// declaration recognizes Component[T](...), Interface[I](...) and Mapper[I]()
func (l *Linter) declaration(call *ast.CallExpr, qualifier string) (*declaration, bool) {
	var fun, index ast.Expr
	switch f := call.Fun.(type) {
	case *ast.IndexExpr:
		fun, index = f.X, f.Index
	case *ast.IndexListExpr:
		if len(f.Indices) != 1 {
			return nil, false
		}
		fun, index = f.X, f.Indices[0]
	default:
		return nil, false
	}

	var name string
	switch f := fun.(type) {
	case *ast.Ident:
		if qualifier != "" {
			return nil, false
		}
		name = f.Name
	case *ast.SelectorExpr:
		pkg, ok := f.X.(*ast.Ident)
		if !ok || qualifier == "" || pkg.Name != qualifier {
			return nil, false
		}
		name = f.Sel.Name
	default:
		return nil, false
	}

	decl := &declaration{
		component: types.ExprString(index),
		pos:       l.fset.Position(call.Pos()),
	}
	switch name {
	case "Component":
		decl.kind = componentDecl
	case "Interface":
		decl.kind = interfaceDecl
	case "Mapper":
		decl.kind = mapperDecl
		decl.lines = append(decl.lines, annotationLine{text: "//loom::mapper", pos: decl.pos})
		return decl, true
	default:
		return nil, false
	}

	for _, arg := range call.Args {
		pos := l.fset.Position(arg.Pos())
		lit, ok := arg.(*ast.BasicLit)
		if !ok || lit.Kind != token.STRING {
			l.addf(pos, SeverityWarning, decl.component, "annotation %s is not a string literal and cannot be checked", types.ExprString(arg))
			continue
		}
		text, err := strconv.Unquote(lit.Value)
		if err != nil {
			l.addf(pos, SeverityError, decl.component, "cannot unquote annotation: %v", err)
			continue
		}
		decl.lines = append(decl.lines, annotationLine{text: text, pos: pos})
	}
	return decl, true
}

type parsedLine struct {
	annotationLine
	parsed *annotations.ParsedAnnotation
}

// check applies the rules the descriptor enforces at registration that can
// be decided from source alone
func (l *Linter) check(decl *declaration) {
	l.report.Declarations++
	l.logger.WithFields(logrus.Fields{
		"component": decl.component,
		"position":  decl.pos.String(),
	}).Debug("checking declaration")

	var (
		controller, configuration, mapper bool
		prefix                            string
		routes, beans, listeners, inits   []parsedLine
	)

	for _, line := range decl.lines {
		parsed, err := annotations.Parse(line.text)
		if err != nil {
			l.addf(line.pos, SeverityError, decl.component, "malformed annotation %q: %v", line.text, err)
			continue
		}
		pl := parsedLine{annotationLine: line, parsed: parsed}
		switch parsed.Type {
		case annotations.ControllerAnnotation:
			controller = true
			prefix = parsed.GetString("Prefix")
		case annotations.ConfigurationAnnotation:
			configuration = true
		case annotations.MapperAnnotation:
			mapper = true
		case annotations.RouteAnnotation:
			routes = append(routes, pl)
		case annotations.BeanAnnotation:
			beans = append(beans, pl)
		case annotations.ListenerAnnotation:
			listeners = append(listeners, pl)
		case annotations.InitAnnotation:
			inits = append(inits, pl)
		}
	}

	if len(inits) > 1 {
		l.addf(inits[1].pos, SeverityError, decl.component, "more than one //loom::init annotation")
	}

	if decl.kind != componentDecl {
		if len(routes)+len(beans)+len(listeners)+len(inits) > 0 {
			l.addf(decl.pos, SeverityError, decl.component, "interfaces cannot declare routes, beans, listeners or init hooks")
		}
		return
	}
	if mapper {
		l.addf(decl.pos, SeverityError, decl.component, "mappers must be declared on interface types")
	}

	if configuration && controller {
		if len(routes) > 0 {
			l.addf(decl.pos, SeverityError, decl.component, "a configuration cannot also be a controller with routes")
			return
		}
		l.addf(decl.pos, SeverityWarning, decl.component, "declared as both configuration and controller; treated as a configuration")
	}
	if len(beans) > 0 && !configuration {
		l.addf(beans[0].pos, SeverityError, decl.component, "bean methods can only be declared on configurations")
	}
	if len(routes) > 0 && !controller {
		l.addf(routes[0].pos, SeverityError, decl.component, "routes can only be declared on controllers")
		return
	}

	for _, route := range routes {
		l.checkRoute(decl.component, prefix, route)
	}
}

func (l *Linter) checkRoute(component, prefix string, line parsedLine) {
	verb := line.parsed.Args[0]
	handler := line.parsed.GetString("Handler")
	reference := component + "." + handler

	templates := line.parsed.Args[1:]
	if len(templates) == 0 {
		templates = []string{""}
	}

	placeholders := -1
	var full []string
	for _, template := range templates {
		joined := routing.Join(prefix, template)
		parsed, err := routing.ParseTemplate(joined)
		if err != nil {
			l.addf(line.pos, SeverityError, component, "invalid template: %v", err)
			return
		}
		if placeholders >= 0 && placeholders != len(parsed.Placeholders) {
			l.addf(line.pos, SeverityError, component, "all templates of route %s must have the same number of placeholders", handler)
			return
		}
		placeholders = len(parsed.Placeholders)
		full = append(full, joined)
	}

	for _, template := range full {
		route := Route{
			Verb:      strings.ToUpper(verb),
			Template:  template,
			Handler:   reference,
			Component: component,
			Pos:       line.pos,
		}

		entry, err := l.routes.Register(routing.Spec{Verb: route.Verb, Template: template, Handler: reference})
		if err != nil {
			if errors.IsCode(err, errors.AmbiguousMappingErrorCode) {
				first := l.seen[route.Key()]
				l.addf(line.pos, SeverityError, component, "route %s is already mapped to %s at %s", route.Key(), first.Handler, first.Pos)
				continue
			}
			l.addf(line.pos, SeverityError, component, "cannot register route %s: %v", route.Key(), err)
			continue
		}
		route.Kind = entry.Kind

		if first, dup := l.seen[route.Key()]; dup && route.Kind == routing.PatternRoute {
			l.addf(line.pos, SeverityWarning, component, "pattern route %s is also mapped to %s at %s; the first registration wins", route.Key(), first.Handler, first.Pos)
		} else {
			l.seen[route.Key()] = route
		}
		l.report.Routes = append(l.report.Routes, route)
	}
}

func (l *Linter) addf(pos token.Position, severity Severity, component, format string, args ...any) {
	finding := Finding{
		Pos:       pos,
		Severity:  severity,
		Component: component,
		Message:   fmt.Sprintf(format, args...),
	}
	l.report.Findings = append(l.report.Findings, finding)
	l.logger.WithField("position", pos.String()).Debug(finding.Message)
}
