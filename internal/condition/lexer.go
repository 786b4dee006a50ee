package condition

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type lexKind int

const (
	lexEOF lexKind = iota
	lexNumber
	lexIdent
	lexAnd
	lexOr
	lexNot
	lexLParen
	lexRParen
	lexGT
	lexGE
	lexLT
	lexLE
	lexEQ
	lexNE
)

type lexeme struct {
	kind   lexKind
	text   string
	number float64
}

func isIdentStart(r byte) bool {
	return r == '_' || unicode.IsLetter(rune(r))
}

func isIdentPart(r byte) bool {
	return r == '_' || r == '.' || unicode.IsLetter(rune(r)) || unicode.IsDigit(rune(r))
}

func lex(source string) ([]lexeme, error) {
	var out []lexeme
	i := 0
	for i < len(source) {
		c := source[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			out = append(out, lexeme{kind: lexLParen, text: "("})
			i++
		case c == ')':
			out = append(out, lexeme{kind: lexRParen, text: ")"})
			i++
		case c == '>':
			if i+1 < len(source) && source[i+1] == '=' {
				out = append(out, lexeme{kind: lexGE, text: ">="})
				i += 2
			} else {
				out = append(out, lexeme{kind: lexGT, text: ">"})
				i++
			}
		case c == '<':
			if i+1 < len(source) && source[i+1] == '=' {
				out = append(out, lexeme{kind: lexLE, text: "<="})
				i += 2
			} else {
				out = append(out, lexeme{kind: lexLT, text: "<"})
				i++
			}
		case c == '=':
			if i+1 < len(source) && source[i+1] == '=' {
				out = append(out, lexeme{kind: lexEQ, text: "=="})
				i += 2
			} else {
				return nil, fmt.Errorf("unexpected %q (use == for equality)", "=")
			}
		case c == '!':
			if i+1 < len(source) && source[i+1] == '=' {
				out = append(out, lexeme{kind: lexNE, text: "!="})
				i += 2
			} else {
				return nil, fmt.Errorf("unexpected %q", "!")
			}
		case unicode.IsDigit(rune(c)):
			j := i + 1
			for j < len(source) && (unicode.IsDigit(rune(source[j])) || source[j] == '.') {
				j++
			}
			text := source[i:j]
			n, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("bad number %q", text)
			}
			out = append(out, lexeme{kind: lexNumber, text: text, number: n})
			i = j
		case isIdentStart(c):
			j := i + 1
			for j < len(source) && isIdentPart(source[j]) {
				j++
			}
			text := source[i:j]
			switch strings.ToUpper(text) {
			case "AND":
				out = append(out, lexeme{kind: lexAnd, text: text})
			case "OR":
				out = append(out, lexeme{kind: lexOr, text: text})
			case "NOT":
				out = append(out, lexeme{kind: lexNot, text: text})
			default:
				out = append(out, lexeme{kind: lexIdent, text: text})
			}
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q", string(c))
		}
	}
	return out, nil
}
