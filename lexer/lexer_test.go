package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBasicTokens(t *testing.T) {
	l := New(`let x = 1 + 2; print x;`)
	var got []TokenType
	for {
		tok := l.NextToken()
		got = append(got, tok.Type)
		if tok.Type == EOF {
			break
		}
	}
	want := []TokenType{LET, IDENT, ASSIGN, INT, PLUS, INT, SEMI, PRINT, IDENT, SEMI, EOF}
	assert.Equal(t, want, got)
}

func TestStringEscape(t *testing.T) {
	l := New(`"a\nb"`)
	tok := l.NextToken()
	assert.Equal(t, STRING, tok.Type)
	assert.Equal(t, "a\nb", tok.Lit)
}

func TestClassReceiverSyntax(t *testing.T) {
	l := New(`func (self: mod::Class) f()`)
	var got []TokenType
	for i := 0; i < 10; i++ {
		tok := l.NextToken()
		got = append(got, tok.Type)
		if tok.Type == EOF {
			break
		}
	}
	assert.Equal(t, []TokenType{FUNC, LPAREN, IDENT, COLON, IDENT, COLONCOLON, IDENT, RPAREN, IDENT, LPAREN}, got)
}
