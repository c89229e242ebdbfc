// Package template implements the small prompt-template language used by
// the prompt builders: {{path}} substitution with dotted lookup,
// {{#if}}/{{else}}/{{/if}} conditionals, {{#each}} iteration over slices
// ({{this}}) and maps ({{@key}}/{{this}}), and {{JSON.stringify path}}.
//
// Templates are parsed once into a node tree and evaluated per render.
// Rendering never fails: unresolvable paths produce the empty string, and
// any internal error falls back to returning the raw template text.
package template

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
)

// Template is a parsed, reusable template.
type Template struct {
	raw   string
	nodes []node
}

// Parse compiles a template. The error reports the first malformed tag.
func Parse(raw string) (*Template, error) {
	p := &parser{tokens: tokenize(raw)}
	nodes, err := p.parseNodes("")
	if err != nil {
		return nil, err
	}
	return &Template{raw: raw, nodes: nodes}, nil
}

// Render evaluates the template against a variable bag. It never panics;
// the worst case result is the unexpanded template text.
func (t *Template) Render(vars map[string]any) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = t.raw
		}
	}()
	var sb strings.Builder
	sc := &scope{vars: vars}
	for _, n := range t.nodes {
		n.render(&sb, sc)
	}
	return sb.String()
}

// Render is the one-shot convenience used by the prompt builders.
// Parse failures degrade to the raw text.
func Render(raw string, vars map[string]any) string {
	t, err := Parse(raw)
	if err != nil {
		return raw
	}
	return t.Render(vars)
}

// ----------------------------------------------------
// tokens

type token struct {
	text  string
	isTag bool
}

func tokenize(raw string) []token {
	var tokens []token
	for len(raw) > 0 {
		open := strings.Index(raw, "{{")
		if open < 0 {
			tokens = append(tokens, token{text: raw})
			break
		}
		closeIdx := strings.Index(raw[open:], "}}")
		if closeIdx < 0 {
			tokens = append(tokens, token{text: raw})
			break
		}
		if open > 0 {
			tokens = append(tokens, token{text: raw[:open]})
		}
		tag := strings.TrimSpace(raw[open+2 : open+closeIdx])
		tokens = append(tokens, token{text: tag, isTag: true})
		raw = raw[open+closeIdx+2:]
	}
	return tokens
}

// ----------------------------------------------------
// parser

type parser struct {
	tokens []token
	pos    int
}

// parseNodes consumes tokens until the closing tag of the enclosing block
// ("" at top level). The closing/else token is left for the caller.
func (p *parser) parseNodes(until string) ([]node, error) {
	var nodes []node
	for p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]
		if !tok.isTag {
			p.pos++
			nodes = append(nodes, textNode(tok.text))
			continue
		}
		tag := tok.text
		switch {
		case tag == "/if" || tag == "/each" || tag == "else":
			if until == "" {
				return nil, fmt.Errorf("unexpected {{%s}}", tag)
			}
			return nodes, nil
		case strings.HasPrefix(tag, "#if "):
			p.pos++
			n, err := p.parseIf(strings.TrimSpace(tag[4:]))
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
		case strings.HasPrefix(tag, "#each "):
			p.pos++
			body, err := p.parseNodes("each")
			if err != nil {
				return nil, err
			}
			if err := p.expect("/each"); err != nil {
				return nil, err
			}
			nodes = append(nodes, &eachNode{path: strings.TrimSpace(tag[6:]), body: body})
		case strings.HasPrefix(tag, "JSON.stringify "):
			p.pos++
			nodes = append(nodes, &jsonNode{path: strings.TrimSpace(tag[15:])})
		default:
			p.pos++
			nodes = append(nodes, &varNode{path: tag})
		}
	}
	if until != "" {
		return nil, fmt.Errorf("unclosed {{#%s}}", until)
	}
	return nodes, nil
}

func (p *parser) parseIf(path string) (node, error) {
	then, err := p.parseNodes("if")
	if err != nil {
		return nil, err
	}
	n := &ifNode{path: path, then: then}
	if p.pos < len(p.tokens) && p.tokens[p.pos].isTag && p.tokens[p.pos].text == "else" {
		p.pos++
		n.els, err = p.parseNodes("if")
		if err != nil {
			return nil, err
		}
	}
	return n, p.expect("/if")
}

func (p *parser) expect(tag string) error {
	if p.pos >= len(p.tokens) || !p.tokens[p.pos].isTag || p.tokens[p.pos].text != tag {
		return fmt.Errorf("expected {{%s}}", tag)
	}
	p.pos++
	return nil
}

// ----------------------------------------------------
// nodes

type node interface {
	render(sb *strings.Builder, sc *scope)
}

type textNode string

func (n textNode) render(sb *strings.Builder, _ *scope) {
	sb.WriteString(string(n))
}

type varNode struct{ path string }

func (n *varNode) render(sb *strings.Builder, sc *scope) {
	sb.WriteString(stringify(sc.lookup(n.path)))
}

type jsonNode struct{ path string }

func (n *jsonNode) render(sb *strings.Builder, sc *scope) {
	v := sc.lookup(n.path)
	if v == nil {
		return
	}
	if s, err := sonic.MarshalString(v); err == nil {
		sb.WriteString(s)
	}
}

type ifNode struct {
	path string
	then []node
	els  []node
}

func (n *ifNode) render(sb *strings.Builder, sc *scope) {
	branch := n.els
	if truthy(sc.lookup(n.path)) {
		branch = n.then
	}
	for _, c := range branch {
		c.render(sb, sc)
	}
}

type eachNode struct {
	path string
	body []node
}

func (n *eachNode) render(sb *strings.Builder, sc *scope) {
	v := reflect.ValueOf(sc.lookup(n.path))
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			inner := &scope{vars: sc.vars, this: v.Index(i).Interface(), inEach: true}
			for _, c := range n.body {
				c.render(sb, inner)
			}
		}
	case reflect.Map:
		keys := make([]string, 0, v.Len())
		byKey := make(map[string]reflect.Value, v.Len())
		for _, k := range v.MapKeys() {
			ks := stringify(k.Interface())
			keys = append(keys, ks)
			byKey[ks] = v.MapIndex(k)
		}
		sort.Strings(keys) // deterministic renders
		for _, k := range keys {
			inner := &scope{vars: sc.vars, this: byKey[k].Interface(), key: k, inEach: true}
			for _, c := range n.body {
				c.render(sb, inner)
			}
		}
	}
}

// ----------------------------------------------------
// scope and lookup

type scope struct {
	vars   map[string]any
	this   any
	key    string
	inEach bool
}

// lookup resolves a dotted path. "this" and "@key" bind to the innermost
// {{#each}} frame; anything else resolves from the variable bag. A miss at
// any segment yields nil.
func (sc *scope) lookup(path string) any {
	if path == "@key" {
		return sc.key
	}
	if path == "this" {
		return sc.this
	}
	segments := strings.Split(path, ".")
	if sc.inEach && segments[0] == "this" {
		return resolve(sc.this, segments[1:])
	}
	return resolve(sc.vars, segments)
}

func resolve(v any, segments []string) any {
	for _, seg := range segments {
		if v == nil {
			return nil
		}
		rv := reflect.ValueOf(v)
		for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
			if rv.IsNil() {
				return nil
			}
			rv = rv.Elem()
		}
		switch rv.Kind() {
		case reflect.Map:
			mv := rv.MapIndex(reflect.ValueOf(seg))
			if !mv.IsValid() {
				return nil
			}
			v = mv.Interface()
		case reflect.Struct:
			fv := rv.FieldByName(seg)
			if !fv.IsValid() || !fv.CanInterface() {
				return nil
			}
			v = fv.Interface()
		default:
			return nil
		}
	}
	return v
}

func truthy(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		return rv.Len() > 0
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
