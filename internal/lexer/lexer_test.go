package lexer

import (
	"testing"

	"github.com/xirelogy/go-zscript/internal/token"
)

func TestLexerBasicTokens(t *testing.T) {
	input := `
var add = function(a, b = 2) {
  var c = a + b;
  if (c >= 10 && a != b) {
    return c;
  }
  c += 1; c <<= 2; x === y; n <=> m;
};
`

	tests := []token.Token{
		{Type: token.Var, Literal: "var"},
		{Type: token.Ident, Literal: "add"},
		{Type: token.Assign, Literal: "="},
		{Type: token.Function, Literal: "function"},
		{Type: token.LParen, Literal: "("},
		{Type: token.Ident, Literal: "a"},
		{Type: token.Comma, Literal: ","},
		{Type: token.Ident, Literal: "b"},
		{Type: token.Assign, Literal: "="},
		{Type: token.Integer, Literal: "2"},
		{Type: token.RParen, Literal: ")"},
		{Type: token.LBrace, Literal: "{"},
		{Type: token.Var, Literal: "var"},
		{Type: token.Ident, Literal: "c"},
		{Type: token.Assign, Literal: "="},
		{Type: token.Ident, Literal: "a"},
		{Type: token.Plus, Literal: "+"},
		{Type: token.Ident, Literal: "b"},
		{Type: token.Semicolon, Literal: ";"},
		{Type: token.If, Literal: "if"},
		{Type: token.LParen, Literal: "("},
		{Type: token.Ident, Literal: "c"},
		{Type: token.GreaterEqual, Literal: ">="},
		{Type: token.Integer, Literal: "10"},
		{Type: token.AndAnd, Literal: "&&"},
		{Type: token.Ident, Literal: "a"},
		{Type: token.NotEqual, Literal: "!="},
		{Type: token.Ident, Literal: "b"},
		{Type: token.RParen, Literal: ")"},
		{Type: token.LBrace, Literal: "{"},
		{Type: token.Return, Literal: "return"},
		{Type: token.Ident, Literal: "c"},
		{Type: token.Semicolon, Literal: ";"},
		{Type: token.RBrace, Literal: "}"},
		{Type: token.Ident, Literal: "c"},
		{Type: token.PlusEq, Literal: "+="},
		{Type: token.Integer, Literal: "1"},
		{Type: token.Semicolon, Literal: ";"},
		{Type: token.Ident, Literal: "c"},
		{Type: token.LShiftEq, Literal: "<<="},
		{Type: token.Integer, Literal: "2"},
		{Type: token.Semicolon, Literal: ";"},
		{Type: token.Ident, Literal: "x"},
		{Type: token.StrictEqual, Literal: "==="},
		{Type: token.Ident, Literal: "y"},
		{Type: token.Semicolon, Literal: ";"},
		{Type: token.Ident, Literal: "n"},
		{Type: token.Compare, Literal: "<=>"},
		{Type: token.Ident, Literal: "m"},
		{Type: token.Semicolon, Literal: ";"},
		{Type: token.RBrace, Literal: "}"},
		{Type: token.Semicolon, Literal: ";"},
		{Type: token.EOF},
	}

	l := New(input)
	for i, expected := range tests {
		tok := l.NextToken()
		if tok.Type != expected.Type || tok.Literal != expected.Literal {
			t.Fatalf("token %d: expected %v %q, got %v %q", i, expected.Type, expected.Literal, tok.Type, tok.Literal)
		}
	}
}

func TestLexerEllipsis(t *testing.T) {
	l := New(`(a, rest...) ... x.y`)
	want := []token.Type{
		token.LParen, token.Ident, token.Comma, token.Ident, token.Ellipsis, token.RParen,
		token.Ellipsis, token.Ident, token.Dot, token.Ident, token.EOF,
	}
	for i, w := range want {
		if tok := l.NextToken(); tok.Type != w {
			t.Fatalf("token %d: expected %v, got %v %q", i, w, tok.Type, tok.Literal)
		}
	}
}

func TestLexerNumbers(t *testing.T) {
	cases := []struct {
		src   string
		typ   token.Type
		i     int64
		f     float64
		isErr bool
	}{
		{src: "42", typ: token.Integer, i: 42},
		{src: "0x1F", typ: token.Integer, i: 31},
		{src: "0b101", typ: token.Integer, i: 5},
		{src: "0h17", typ: token.Integer, i: 15},
		{src: "3.5", typ: token.Float, f: 3.5},
		{src: ".25", typ: token.Float, f: 0.25},
		{src: "1e3", typ: token.Float, f: 1000},
		{src: "2.5e-1", typ: token.Float, f: 0.25},
		{src: "1E+2", typ: token.Float, f: 100},
		{src: "1e", isErr: true},
		{src: "1e+", isErr: true},
		{src: "1ex", isErr: true},
		{src: "1.2.3", isErr: true},
		{src: "0x", isErr: true},
		{src: "0b102", isErr: true},
	}
	for _, tc := range cases {
		tok := New(tc.src).NextToken()
		if tc.isErr {
			if tok.Type != token.Illegal {
				t.Fatalf("%s: expected lex error, got %v %q", tc.src, tok.Type, tok.Literal)
			}
			continue
		}
		if tok.Type != tc.typ {
			t.Fatalf("%s: expected %v, got %v (%q)", tc.src, tc.typ, tok.Type, tok.Literal)
		}
		if tc.typ == token.Integer && tok.Int != tc.i {
			t.Fatalf("%s: expected %d, got %d", tc.src, tc.i, tok.Int)
		}
		if tc.typ == token.Float && tok.Float != tc.f {
			t.Fatalf("%s: expected %v, got %v", tc.src, tc.f, tok.Float)
		}
	}
}

func TestLexerStrings(t *testing.T) {
	cases := []struct {
		src   string
		typ   token.Type
		want  string
		isErr bool
	}{
		{src: `"a\tb\n"`, typ: token.String, want: "a\tb\n"},
		{src: `"say \"hi\""`, typ: token.String, want: `say "hi"`},
		{src: "\"\"\"line1\nline2\"\"\"", typ: token.String, want: "line1\nline2"},
		{src: "'''multi\n'line'\n'''", typ: token.String, want: "multi\n'line'\n"},
		{src: "```raw \\n stays```", typ: token.String, want: `raw \n stays`},
		{src: `'a'`, typ: token.Char, want: "a"},
		{src: `'\n'`, typ: token.Char, want: "\n"},
		{src: `"unterminated`, isErr: true},
		{src: "\"new\nline\"", isErr: true},
		{src: "\"\"\"open", isErr: true},
		{src: "```open", isErr: true},
		{src: `'ab'`, isErr: true},
	}
	for _, tc := range cases {
		tok := New(tc.src).NextToken()
		if tc.isErr {
			if tok.Type != token.Illegal {
				t.Fatalf("%q: expected lex error, got %v %q", tc.src, tok.Type, tok.Literal)
			}
			continue
		}
		if tok.Type != tc.typ || tok.Literal != tc.want {
			t.Fatalf("%q: expected %v %q, got %v %q", tc.src, tc.typ, tc.want, tok.Type, tok.Literal)
		}
	}
	if tok := New(`'\n'`).NextToken(); tok.Int != '\n' {
		t.Fatalf("expected char code %d, got %d", '\n', tok.Int)
	}
}

func TestLexerPeekAndSkipBalanced(t *testing.T) {
	l := New("(a, (b)) => a; rest")
	if tok := l.NextToken(); tok.Type != token.LParen {
		t.Fatalf("expected (, got %v", tok.Type)
	}
	s := l.Snapshot()
	if !l.SkipBalanced(token.LParen, token.RParen) {
		t.Fatalf("expected balanced skip")
	}
	if tok := l.Peek(); tok.Type != token.Arrow {
		t.Fatalf("expected => after balanced parens, got %v", tok.Type)
	}
	l.Restore(s)
	if tok := l.NextToken(); tok.Type != token.Ident || tok.Literal != "a" {
		t.Fatalf("restore failed, got %v %q", tok.Type, tok.Literal)
	}
	if tok := l.LexUntil(token.Semicolon); tok.Type != token.Semicolon {
		t.Fatalf("expected ;, got %v", tok.Type)
	}
	if tok := l.NextToken(); tok.Literal != "rest" {
		t.Fatalf("expected rest, got %q", tok.Literal)
	}
}

func TestLexerPositions(t *testing.T) {
	l := New("var x;\n  // comment\n  /* block */ y")
	l.NextToken()
	l.NextToken()
	l.NextToken()
	tok := l.NextToken()
	if tok.Literal != "y" || tok.Pos.Line != 3 || tok.Pos.Column != 15 {
		t.Fatalf("unexpected position %+v for %q", tok.Pos, tok.Literal)
	}
	if tok := New("/* open").NextToken(); tok.Type != token.Illegal {
		t.Fatalf("expected unterminated comment error")
	}
}
