package ir

import "strings"

// Condition is an opaque guard or invariant expression together with its
// structural signature. The expression is never evaluated.
type Condition struct {
	Expr string `json:"expr"`
	// Refs are the head identifiers of attribute/relationship paths, in
	// first-occurrence order: "line_items.count > 0" yields [line_items].
	Refs []string `json:"refs,omitempty"`
	// Calls are free function calls such as "now()" or "sum(x)".
	Calls []string `json:"calls,omitempty"`
}

// NewCondition extracts the structural signature of expr.
func NewCondition(expr string) Condition {
	refs, calls := signature(expr)
	return Condition{Expr: expr, Refs: refs, Calls: calls}
}

// NewConditions wraps each expression with NewCondition.
func NewConditions(exprs []string) []Condition {
	if len(exprs) == 0 {
		return nil
	}
	out := make([]Condition, len(exprs))
	for i, e := range exprs {
		out[i] = NewCondition(e)
	}
	return out
}

var keywords = map[string]struct{}{
	"and": {}, "or": {}, "not": {}, "in": {}, "is": {}, "if": {}, "then": {},
	"else": {}, "for": {}, "each": {}, "where": {}, "implies": {}, "true": {},
	"false": {}, "null": {}, "nil": {}, "none": {}, "self": {}, "this": {},
	"now": {}, "today": {}, "exists": {}, "forall": {}, "lambda": {},
}

type token struct {
	text      string
	afterDot  bool
	callParen bool
	// prev is the punctuation directly before the token: '(', ',', ')'
	// or 0 for anything else.
	prev byte
}

// signature scans expr and splits identifiers into path heads and free
// calls. Identifiers bound by "for x in", "lambda x:" or an arrow
// parameter list ("(x =>", ", x =>", "(a, b) =>") are local and excluded,
// as are keywords, literals and member segments after a dot. An arrow with
// no parameter position before it is an implication and binds nothing.
func signature(expr string) (refs, calls []string) {
	toks := scan(expr)

	bound := make(map[string]struct{})
	for i, t := range toks {
		switch {
		case (t.text == "for" || t.text == "lambda" || t.text == "forall" || t.text == "exists") && i+1 < len(toks):
			bound[toks[i+1].text] = struct{}{}
		case t.text == "=>" || t.text == "->":
			for _, p := range arrowParams(toks[:i], t.prev == ')') {
				bound[p] = struct{}{}
			}
		}
	}

	seenRef := make(map[string]struct{})
	seenCall := make(map[string]struct{})
	for _, t := range toks {
		if !isIdent(t.text) || t.afterDot {
			continue
		}
		if _, kw := keywords[strings.ToLower(t.text)]; kw {
			continue
		}
		if _, ok := bound[t.text]; ok {
			continue
		}
		if t.callParen {
			if _, ok := seenCall[t.text]; !ok {
				seenCall[t.text] = struct{}{}
				calls = append(calls, t.text)
			}
			continue
		}
		if _, ok := seenRef[t.text]; !ok {
			seenRef[t.text] = struct{}{}
			refs = append(refs, t.text)
		}
	}
	return refs, calls
}

// arrowParams returns the parameters of an arrow whose left-hand tokens
// are before. A parenthesized list is walked back through its commas; a
// single parameter must itself open a call argument or follow a comma.
func arrowParams(before []token, parenthesized bool) []string {
	if len(before) == 0 {
		return nil
	}
	last := before[len(before)-1]
	if !parenthesized {
		if last.prev == '(' || last.prev == ',' {
			return []string{last.text}
		}
		return nil
	}
	var params []string
	for i := len(before) - 1; i >= 0; i-- {
		params = append(params, before[i].text)
		if before[i].prev != ',' {
			break
		}
	}
	return params
}

// scan tokenizes identifiers and the arrow operators; everything else
// (operators, numbers, string literals) is dropped.
func scan(s string) []token {
	var out []token
	prevDot := false
	var punct byte
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			j := i + 1
			for j < len(s) && s[j] != c {
				if s[j] == '\\' {
					j++
				}
				j++
			}
			i = j + 1
			prevDot = false
			punct = 0
		case isIdentStart(c):
			j := i
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			k := j
			for k < len(s) && (s[k] == ' ' || s[k] == '\t') {
				k++
			}
			out = append(out, token{
				text:      s[i:j],
				afterDot:  prevDot,
				callParen: k < len(s) && s[k] == '(',
				prev:      punct,
			})
			i = j
			prevDot = false
			punct = 0
		case c >= '0' && c <= '9':
			j := i
			for j < len(s) && (isIdentPart(s[j]) || s[j] == '.') {
				j++
			}
			i = j
			prevDot = false
			punct = 0
		case c == '.':
			prevDot = true
			punct = 0
			i++
		case (c == '=' || c == '-') && i+1 < len(s) && s[i+1] == '>':
			out = append(out, token{text: s[i : i+2], prev: punct})
			i += 2
			prevDot = false
			punct = 0
		case c == ' ' || c == '\t' || c == '\n':
			i++
		default:
			prevDot = false
			punct = 0
			if c == '(' || c == ',' || c == ')' {
				punct = c
			}
			i++
		}
	}
	return out
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isIdent(s string) bool {
	return s != "" && isIdentStart(s[0])
}
