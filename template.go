package docmap

import (
	"fmt"
	"strings"
)

// Template expression delimiters. A template is dynamic when it contains at
// least one well formed #{...} segment; everything else is literal text.
const (
	exprPrefix = "#{"
	exprSuffix = '}'
)

// segment is one parsed slice of a template: either literal text or a
// compiled expression.
type segment struct {
	text    string
	source  string
	program CompiledExpression
}

func (s segment) dynamic() bool {
	return s.program != nil
}

// compiledTemplate is the parse-once form of a template string. Immutable
// after construction, safe to share across resolutions.
type compiledTemplate struct {
	source   string
	segments []segment
	literal  bool
	needsID  bool
}

// compileTemplate splits source on #{...} markers and hands each expression
// body to engine. Templates without markers produce a single literal
// segment and are never evaluated.
func compileTemplate(source string, engine Engine) (*compiledTemplate, error) {
	compiled := &compiledTemplate{source: source}

	rest := source
	for {
		start := strings.Index(rest, exprPrefix)
		if start < 0 {
			if rest != "" {
				compiled.segments = append(compiled.segments, segment{text: rest})
			}
			break
		}
		if start > 0 {
			compiled.segments = append(compiled.segments, segment{text: rest[:start]})
		}

		body, consumed, err := scanExpression(rest[start:])
		if err != nil {
			return nil, wrapExpressionError(engineName(engine), source, "", err)
		}
		if strings.TrimSpace(body) == "" {
			return nil, wrapExpressionError(engineName(engine), source, "", fmt.Errorf("empty expression segment"))
		}

		program, err := engine.Compile(body)
		if err != nil {
			return nil, wrapExpressionError(engineName(engine), source, body, err)
		}
		compiled.segments = append(compiled.segments, segment{source: body, program: program})
		if referencesVariable(body, "id") {
			compiled.needsID = true
		}

		rest = rest[start+consumed:]
	}

	compiled.literal = true
	for _, seg := range compiled.segments {
		if seg.dynamic() {
			compiled.literal = false
			break
		}
	}
	return compiled, nil
}

// scanExpression consumes a #{...} segment at the start of input, tracking
// nested braces and quoted strings, and returns the expression body plus the
// number of bytes consumed including both markers.
func scanExpression(input string) (string, int, error) {
	depth := 0
	var quote byte
	for i := len(exprPrefix); i < len(input); i++ {
		ch := input[i]
		if quote != 0 {
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"':
			quote = ch
		case '{':
			depth++
		case exprSuffix:
			if depth == 0 {
				return input[len(exprPrefix):i], i + 1, nil
			}
			depth--
		}
	}
	return "", 0, fmt.Errorf("unterminated expression segment")
}

// referencesVariable reports whether expr mentions name as a standalone
// top-level identifier. Dotted access such as entity.id does not count; the
// id channel belongs to the supplier, not to entity properties.
func referencesVariable(expr, name string) bool {
	var quote byte
	for i := 0; i < len(expr); i++ {
		ch := expr[i]
		if quote != 0 {
			if ch == quote {
				quote = 0
			}
			continue
		}
		if ch == '\'' || ch == '"' {
			quote = ch
			continue
		}
		if !identByte(ch) {
			continue
		}
		start := i
		for i < len(expr) && identByte(expr[i]) {
			i++
		}
		word := expr[start:i]
		if word != name {
			continue
		}
		if start > 0 && expr[start-1] == '.' {
			continue
		}
		return true
	}
	return false
}

func identByte(ch byte) bool {
	return ch == '_' ||
		(ch >= 'a' && ch <= 'z') ||
		(ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9')
}
