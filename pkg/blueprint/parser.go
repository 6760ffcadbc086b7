package blueprint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/guardrails/pkg/engine"
)

// Format is a blueprint file encoding.
type Format string

// Supported formats.
const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatCUE  Format = "cue"
)

// extensions lists the file extensions probed for a blueprint id, in order.
var extensions = []string{".yaml", ".yml", ".json", ".cue"}

// FormatFor returns the format implied by a file extension.
func FormatFor(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".json":
		return FormatJSON, true
	case ".cue":
		return FormatCUE, true
	default:
		return "", false
	}
}

// ParseError is a blueprint error with its source location, when known.
type ParseError struct {
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

func (e ParseError) Error() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", e.Line, e.Column)
		}
		b.WriteString(": ")
	}
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// ParseErrors collects every error found in one blueprint.
type ParseErrors []ParseError

func (e ParseErrors) Error() string {
	msgs := make([]string, len(e))
	for i, pe := range e {
		msgs[i] = pe.Error()
	}
	return strings.Join(msgs, "; ")
}

// Parser decodes blueprint files into component graphs. CUE blueprints are
// unified with a schema before decoding, so type errors carry positions.
type Parser struct {
	// mu guards ctx; a cue.Context is not safe for concurrent use.
	mu        sync.Mutex
	ctx       *cue.Context
	schema    cue.Value
	validator *validator.Validate
}

// NewParser creates a parser.
func NewParser() *Parser {
	ctx := cuecontext.New()
	return &Parser{
		ctx:       ctx,
		schema:    ctx.CompileString(schemaSource, cue.Filename("blueprint.schema.cue")).LookupPath(cue.ParsePath("#Blueprint")),
		validator: validator.New(),
	}
}

// ParseFile reads and parses the blueprint at path. When the blueprint does
// not name itself, its id is the file name without extension.
func (p *Parser) ParseFile(path string) (*engine.ComponentGraph, error) {
	format, ok := FormatFor(path)
	if !ok {
		return nil, fmt.Errorf("unsupported blueprint file extension: %s", filepath.Ext(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read blueprint file: %w", err)
	}

	graph, err := p.Parse(data, format, path)
	if err != nil {
		return nil, err
	}
	if graph.BlueprintID == "" {
		graph.BlueprintID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return graph, nil
}

// Parse decodes data in the given format. name labels errors.
func (p *Parser) Parse(data []byte, format Format, name string) (*engine.ComponentGraph, error) {
	var (
		graph *engine.ComponentGraph
		err   error
	)

	switch format {
	case FormatYAML:
		graph, err = parseYAML(data)
	case FormatJSON:
		graph, err = parseJSON(data)
	case FormatCUE:
		graph, err = p.parseCUE(data, name)
	default:
		return nil, fmt.Errorf("unsupported blueprint format: %s", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse blueprint %s: %w", name, err)
	}

	if err := p.validate(graph, name); err != nil {
		return nil, fmt.Errorf("invalid blueprint %s: %w", name, err)
	}
	return graph, nil
}

func parseYAML(data []byte) (*engine.ComponentGraph, error) {
	var graph engine.ComponentGraph
	if err := yaml.Unmarshal(data, &graph); err != nil {
		return nil, err
	}
	return &graph, nil
}

func parseJSON(data []byte) (*engine.ComponentGraph, error) {
	var graph engine.ComponentGraph
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&graph); err != nil {
		return nil, err
	}
	normalizeNumbers(graph.Components)
	return &graph, nil
}

// normalizeNumbers turns json.Number property values into int64 or float64.
func normalizeNumbers(components []engine.Component) {
	for i := range components {
		for k, v := range components[i].Properties {
			components[i].Properties[k] = normalizeValue(v)
		}
	}
}

func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]interface{}:
		for k, inner := range t {
			t[k] = normalizeValue(inner)
		}
		return t
	case []interface{}:
		for i, inner := range t {
			t[i] = normalizeValue(inner)
		}
		return t
	default:
		return v
	}
}

// parseCUE compiles data, unifies it with the blueprint schema and decodes
// the components. Components may be a list or a struct keyed by id.
func (p *Parser) parseCUE(data []byte, name string) (*engine.ComponentGraph, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	val := p.ctx.CompileBytes(data, cue.Filename(name))
	if err := val.Err(); err != nil {
		return nil, convertCUEErrors(err)
	}

	if root := val.LookupPath(cue.ParsePath("blueprint")); root.Exists() {
		val = root
	}

	val = val.Unify(p.schema)
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return nil, convertCUEErrors(err)
	}

	graph := &engine.ComponentGraph{}
	var errs ParseErrors

	for _, field := range []struct {
		path string
		dst  *string
	}{
		{"blueprintId", &graph.BlueprintID},
		{"name", &graph.Name},
	} {
		if v := val.LookupPath(cue.ParsePath(field.path)); v.Exists() {
			if err := v.Decode(field.dst); err != nil {
				errs = append(errs, ParseError{File: name, Path: field.path, Message: err.Error()})
			}
		}
	}

	components := val.LookupPath(cue.ParsePath("components"))
	switch components.IncompleteKind() {
	case cue.StructKind:
		iter, err := components.Fields()
		if err != nil {
			return nil, convertCUEErrors(err)
		}
		for iter.Next() {
			key := iter.Selector().Unquoted()
			var c engine.Component
			if err := iter.Value().Decode(&c); err != nil {
				errs = append(errs, ParseError{File: name, Path: "components." + key, Message: err.Error()})
				continue
			}
			if c.ID == "" {
				c.ID = key
			}
			graph.Components = append(graph.Components, c)
		}

	case cue.ListKind:
		if err := components.Decode(&graph.Components); err != nil {
			errs = append(errs, ParseError{File: name, Path: "components", Message: err.Error()})
		}
	}

	if v := val.LookupPath(cue.ParsePath("connections")); v.Exists() {
		if err := v.Decode(&graph.Connections); err != nil {
			errs = append(errs, ParseError{File: name, Path: "connections", Message: err.Error()})
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return graph, nil
}

// validate runs struct validation and reports every failing field.
func (p *Parser) validate(graph *engine.ComponentGraph, name string) error {
	err := p.validator.Struct(graph)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	errs := make(ParseErrors, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, ParseError{
			File:    name,
			Path:    strings.TrimPrefix(fe.Namespace(), "ComponentGraph."),
			Message: fmt.Sprintf("failed on the '%s' rule", fe.Tag()),
		})
	}
	return errs
}

// convertCUEErrors flattens a CUE error into positioned parse errors.
func convertCUEErrors(err error) ParseErrors {
	var out ParseErrors
	for _, e := range errors.Errors(err) {
		pe := ParseError{Message: errors.Details(e, nil)}
		if pos := errors.Positions(e); len(pos) > 0 {
			pe.File = pos[0].Filename()
			pe.Line = pos[0].Line()
			pe.Column = pos[0].Column()
		}
		if path := e.Path(); len(path) > 0 {
			pe.Path = strings.Join(path, ".")
		}
		out = append(out, pe)
	}
	return out
}
