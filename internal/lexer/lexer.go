package lexer

import (
	"strconv"
	"strings"

	"github.com/xirelogy/go-zscript/internal/token"
)

// Lexer converts source text into a stream of tokens.
type Lexer struct {
	input   string
	pos     int  // current position in bytes
	readPos int  // next read position
	ch      byte // current char
	line    int
	column  int
}

// State is a cheap copy of the lexer cursor used for lookahead.
type State struct {
	pos     int
	readPos int
	ch      byte
	line    int
	column  int
}

// New creates a lexer for the provided source text.
func New(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
	}
	l.readChar()
	return l
}

// Snapshot captures the current cursor.
func (l *Lexer) Snapshot() State {
	return State{pos: l.pos, readPos: l.readPos, ch: l.ch, line: l.line, column: l.column}
}

// Restore rewinds the cursor to a snapshot.
func (l *Lexer) Restore(s State) {
	l.pos = s.pos
	l.readPos = s.readPos
	l.ch = s.ch
	l.line = s.line
	l.column = s.column
}

// Peek returns the next token without consuming it.
func (l *Lexer) Peek() token.Token {
	s := l.Snapshot()
	tok := l.NextToken()
	l.Restore(s)
	return tok
}

// LexUntil consumes tokens until one of type t (returned) or EOF/Illegal.
func (l *Lexer) LexUntil(t token.Type) token.Token {
	for {
		tok := l.NextToken()
		if tok.Type == t || tok.Type == token.EOF || tok.Type == token.Illegal {
			return tok
		}
	}
}

// SkipBalanced consumes tokens up to and including the close token that balances an
// already consumed open token. It reports false on EOF or a lex error.
func (l *Lexer) SkipBalanced(open, close token.Type) bool {
	depth := 1
	for depth > 0 {
		tok := l.NextToken()
		switch tok.Type {
		case open:
			depth++
		case close:
			depth--
		case token.EOF, token.Illegal:
			return false
		}
	}
	return true
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() token.Token {
	for {
		l.skipWhitespace()

		if l.ch == 0 {
			return l.makeToken(token.EOF, "")
		}

		if l.ch == '/' {
			if l.peekChar() == '/' {
				l.skipLineComment()
				continue
			}
			if l.peekChar() == '*' {
				if !l.skipBlockComment() {
					return l.illegal(l.makeToken(token.Illegal, ""), "unterminated block comment")
				}
				continue
			}
		}
		break
	}

	switch l.ch {
	case '=':
		if l.peekChar() == '=' {
			if l.peekAt(2) == '=' {
				return l.operator(token.StrictEqual, 3)
			}
			return l.operator(token.Equal, 2)
		}
		if l.peekChar() == '>' {
			return l.operator(token.Arrow, 2)
		}
		return l.operator(token.Assign, 1)
	case '+':
		switch l.peekChar() {
		case '+':
			return l.operator(token.Incr, 2)
		case '=':
			return l.operator(token.PlusEq, 2)
		}
		return l.operator(token.Plus, 1)
	case '-':
		switch l.peekChar() {
		case '-':
			return l.operator(token.Decr, 2)
		case '=':
			return l.operator(token.MinusEq, 2)
		}
		return l.operator(token.Minus, 1)
	case '*':
		if l.peekChar() == '*' {
			return l.operator(token.Exp, 2)
		}
		if l.peekChar() == '=' {
			return l.operator(token.StarEq, 2)
		}
		return l.operator(token.Star, 1)
	case '/':
		if l.peekChar() == '=' {
			return l.operator(token.SlashEq, 2)
		}
		return l.operator(token.Slash, 1)
	case '%':
		if l.peekChar() == '=' {
			return l.operator(token.PercentEq, 2)
		}
		return l.operator(token.Percent, 1)
	case '!':
		if l.peekChar() == '=' {
			return l.operator(token.NotEqual, 2)
		}
		return l.operator(token.Bang, 1)
	case '~':
		return l.operator(token.Tilde, 1)
	case '^':
		if l.peekChar() == '=' {
			return l.operator(token.CaretEq, 2)
		}
		return l.operator(token.Caret, 1)
	case '<':
		switch l.peekChar() {
		case '=':
			if l.peekAt(2) == '>' {
				return l.operator(token.Compare, 3)
			}
			return l.operator(token.LessEqual, 2)
		case '<':
			if l.peekAt(2) == '=' {
				return l.operator(token.LShiftEq, 3)
			}
			return l.operator(token.LShift, 2)
		}
		return l.operator(token.Less, 1)
	case '>':
		switch l.peekChar() {
		case '=':
			return l.operator(token.GreaterEqual, 2)
		case '>':
			if l.peekAt(2) == '=' {
				return l.operator(token.RShiftEq, 3)
			}
			return l.operator(token.RShift, 2)
		}
		return l.operator(token.Greater, 1)
	case '&':
		switch l.peekChar() {
		case '&':
			return l.operator(token.AndAnd, 2)
		case '=':
			return l.operator(token.AmpEq, 2)
		}
		return l.operator(token.Amp, 1)
	case '|':
		switch l.peekChar() {
		case '|':
			return l.operator(token.OrOr, 2)
		case '=':
			return l.operator(token.PipeEq, 2)
		}
		return l.operator(token.Pipe, 1)
	case '?':
		return l.operator(token.Question, 1)
	case '.':
		if isDigit(l.peekChar()) {
			return l.readNumber()
		}
		if l.peekChar() == '.' && l.peekAt(2) == '.' {
			return l.operator(token.Ellipsis, 3)
		}
		return l.operator(token.Dot, 1)
	case ',':
		return l.operator(token.Comma, 1)
	case ':':
		return l.operator(token.Colon, 1)
	case ';':
		return l.operator(token.Semicolon, 1)
	case '(':
		return l.operator(token.LParen, 1)
	case ')':
		return l.operator(token.RParen, 1)
	case '[':
		return l.operator(token.LBracket, 1)
	case ']':
		return l.operator(token.RBracket, 1)
	case '{':
		return l.operator(token.LBrace, 1)
	case '}':
		return l.operator(token.RBrace, 1)
	case '"':
		if l.peekChar() == '"' && l.peekAt(2) == '"' {
			return l.readMultiLineString('"')
		}
		return l.readString()
	case '\'':
		if l.peekChar() == '\'' && l.peekAt(2) == '\'' {
			return l.readMultiLineString('\'')
		}
		return l.readCharLiteral()
	case '`':
		if l.peekChar() == '`' && l.peekAt(2) == '`' {
			return l.readRawString()
		}
	}

	if isLetter(l.ch) {
		return l.readIdentifier()
	}
	if isDigit(l.ch) {
		return l.readNumber()
	}

	tok := l.makeToken(token.Illegal, string(l.ch))
	l.readChar()
	return l.illegal(tok, "unexpected character "+strconv.Quote(tok.Literal))
}

func (l *Lexer) makeToken(t token.Type, lit string) token.Token {
	return token.Token{
		Type:    t,
		Literal: lit,
		Pos: token.Position{
			Offset: l.pos,
			Line:   l.line,
			Column: l.column,
		},
	}
}

func (l *Lexer) operator(t token.Type, width int) token.Token {
	tok := l.makeToken(t, l.input[l.pos:l.pos+width])
	for i := 0; i < width; i++ {
		l.readChar()
	}
	return tok
}

// illegal turns tok into an error token whose literal is the message.
func (l *Lexer) illegal(tok token.Token, msg string) token.Token {
	tok.Type = token.Illegal
	tok.Literal = msg
	return tok
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\r' || l.ch == '\n' {
		l.readChar()
	}
}

func (l *Lexer) skipLineComment() {
	for l.ch != 0 && l.ch != '\n' {
		l.readChar()
	}
}

func (l *Lexer) skipBlockComment() bool {
	l.readChar() // consume '/'
	l.readChar() // consume '*'
	for {
		if l.ch == 0 {
			return false
		}
		if l.ch == '*' && l.peekChar() == '/' {
			l.readChar() // '*'
			l.readChar() // '/'
			return true
		}
		l.readChar()
	}
}

func (l *Lexer) readIdentifier() token.Token {
	start := l.makeToken(token.Ident, "")
	begin := l.pos
	for isLetter(l.ch) || isDigit(l.ch) || l.ch >= 0x80 {
		l.readChar()
	}
	lit := l.input[begin:l.pos]
	start.Type = token.LookupIdent(lit)
	start.Literal = lit
	return start
}

func (l *Lexer) readNumber() token.Token {
	start := l.makeToken(token.Integer, "")
	begin := l.pos

	if l.ch == '0' {
		switch l.peekChar() {
		case 'x', 'X':
			return l.readRadix(start, 16, isHexDigit)
		case 'b':
			return l.readRadix(start, 2, func(c byte) bool { return c == '0' || c == '1' })
		case 'h':
			return l.readRadix(start, 8, func(c byte) bool { return c >= '0' && c <= '7' })
		}
	}

	isFloat := false
	for {
		if isDigit(l.ch) {
			l.readChar()
			continue
		}
		if l.ch == '.' && isDigit(l.peekChar()) {
			if isFloat {
				return l.illegal(start, "malformed number: multiple dots")
			}
			isFloat = true
			l.readChar()
			continue
		}
		if l.ch == 'e' || l.ch == 'E' {
			isFloat = true
			l.readChar()
			if l.ch == '+' || l.ch == '-' {
				l.readChar()
			}
			if !isDigit(l.ch) {
				return l.illegal(start, "malformed number: invalid exponent")
			}
			for isDigit(l.ch) {
				l.readChar()
			}
			if l.ch == '.' && isDigit(l.peekChar()) {
				return l.illegal(start, "malformed number: fractional exponent")
			}
		}
		break
	}

	lit := l.input[begin:l.pos]
	start.Literal = lit
	if isFloat {
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return l.illegal(start, "malformed number: "+lit)
		}
		start.Type = token.Float
		start.Float = f
		return start
	}
	n, err := strconv.ParseInt(lit, 10, 64)
	if err != nil {
		return l.illegal(start, "integer out of range: "+lit)
	}
	start.Int = n
	return start
}

func (l *Lexer) readRadix(start token.Token, base int, valid func(byte) bool) token.Token {
	l.readChar() // '0'
	l.readChar() // radix marker
	begin := l.pos
	for valid(l.ch) {
		l.readChar()
	}
	digits := l.input[begin:l.pos]
	start.Literal = l.input[start.Pos.Offset:l.pos]
	if digits == "" || isDigit(l.ch) || isLetter(l.ch) {
		return l.illegal(start, "malformed number: "+start.Literal)
	}
	n, err := strconv.ParseUint(digits, base, 64)
	if err != nil {
		return l.illegal(start, "integer out of range: "+start.Literal)
	}
	start.Int = int64(n)
	return start
}

func (l *Lexer) readString() token.Token {
	start := l.makeToken(token.String, "")
	var sb strings.Builder

	for {
		l.readChar()
		switch l.ch {
		case 0:
			return l.illegal(start, "unterminated string")
		case '\n':
			return l.illegal(start, "newline in string")
		case '"':
			l.readChar()
			start.Literal = sb.String()
			return start
		case '\\':
			l.readChar()
			if !l.writeEscape(&sb) {
				return l.illegal(start, "unterminated string")
			}
		default:
			sb.WriteByte(l.ch)
		}
	}
}

// readMultiLineString reads a triple-quoted literal with escapes; quote is
// either double or single quote.
func (l *Lexer) readMultiLineString(quote byte) token.Token {
	start := l.makeToken(token.String, "")
	var sb strings.Builder
	l.readChar()
	l.readChar()
	for {
		l.readChar()
		switch {
		case l.ch == 0:
			return l.illegal(start, "unterminated multi-line string")
		case l.ch == quote && l.peekChar() == quote && l.peekAt(2) == quote:
			l.readChar()
			l.readChar()
			l.readChar()
			start.Literal = sb.String()
			return start
		case l.ch == '\\':
			l.readChar()
			if !l.writeEscape(&sb) {
				return l.illegal(start, "unterminated multi-line string")
			}
		default:
			sb.WriteByte(l.ch)
		}
	}
}

// readRawString reads a triple-backtick raw literal verbatim.
func (l *Lexer) readRawString() token.Token {
	start := l.makeToken(token.String, "")
	l.readChar()
	l.readChar()
	l.readChar()
	begin := l.pos
	for {
		if l.ch == 0 {
			return l.illegal(start, "unterminated raw string")
		}
		if l.ch == '`' && l.peekChar() == '`' && l.peekAt(2) == '`' {
			start.Literal = l.input[begin:l.pos]
			l.readChar()
			l.readChar()
			l.readChar()
			return start
		}
		l.readChar()
	}
}

// readCharLiteral reads a single quoted character literal such as 'a' or '\n'.
func (l *Lexer) readCharLiteral() token.Token {
	start := l.makeToken(token.Char, "")
	l.readChar()
	var sb strings.Builder
	switch l.ch {
	case 0, '\n', '\'':
		return l.illegal(start, "malformed character literal")
	case '\\':
		l.readChar()
		if !l.writeEscape(&sb) {
			return l.illegal(start, "malformed character literal")
		}
	default:
		sb.WriteByte(l.ch)
		// consume the remaining bytes of a multi-byte rune
		for l.peekChar() >= 0x80 && l.peekChar() < 0xC0 {
			l.readChar()
			sb.WriteByte(l.ch)
		}
	}
	l.readChar()
	if l.ch != '\'' {
		return l.illegal(start, "malformed character literal")
	}
	l.readChar()
	runes := []rune(sb.String())
	start.Literal = sb.String()
	start.Int = int64(runes[0])
	return start
}

func (l *Lexer) writeEscape(sb *strings.Builder) bool {
	switch l.ch {
	case 0:
		return false
	case 'n':
		sb.WriteByte('\n')
	case 'r':
		sb.WriteByte('\r')
	case 't':
		sb.WriteByte('\t')
	case 'b':
		sb.WriteByte('\b')
	case 'f':
		sb.WriteByte('\f')
	case 'v':
		sb.WriteByte('\v')
	case '0':
		sb.WriteByte(0)
	default:
		sb.WriteByte(l.ch)
	}
	return true
}

func isLetter(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isHexDigit(ch byte) bool {
	return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

func (l *Lexer) peekChar() byte {
	return l.peekAt(1)
}

// peekAt returns the byte n positions after the current char.
func (l *Lexer) peekAt(n int) byte {
	i := l.pos + n
	if i >= len(l.input) {
		return 0
	}
	return l.input[i]
}

func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.pos = len(l.input)
		l.readPos = len(l.input) + 1
		l.ch = 0
		return
	}

	l.ch = l.input[l.readPos]
	l.pos = l.readPos
	l.readPos++

	if l.ch == '\n' {
		l.line++
		l.column = 0
	} else {
		l.column++
	}
}
