package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/xirelogy/go-zscript"
	"github.com/xirelogy/go-zscript/internal/lexer"
	"github.com/xirelogy/go-zscript/internal/token"
)

const (
	historyFile = ".zscript_history"
	promptMain  = "zs> "
	promptCont  = "... "
)

func repl(engine *zscript.Engine, stdout, stderr io.Writer) int {
	fmt.Fprintf(stdout, "%s REPL. Type :quit to exit.\n", appName)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	for {
		code, ok := readChunk(ln)
		if !ok {
			fmt.Fprintln(stdout)
			return 0
		}
		trimmed := strings.TrimSpace(code)
		switch {
		case trimmed == "":
			continue
		case strings.HasPrefix(trimmed, ":"):
			switch strings.ToLower(trimmed) {
			case ":quit", ":q":
				return 0
			case ":dis":
				_ = engine.Disassemble(stdout)
			default:
				fmt.Fprintln(stdout, "unknown command. Type :quit to exit.")
			}
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(code, "\n", " "))

		// Ctrl-C while a chunk runs cancels the chunk, not the session.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		res, err := engine.Eval(ctx, code)
		stop()
		if err != nil {
			fmt.Fprintln(stderr, err.Error())
			continue
		}
		printResult(engine, res, stdout, stderr)
	}
}

// readChunk keeps prompting while the input so far is incomplete.
func readChunk(ln *liner.State) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", true
		}
		if err != nil {
			return "", false
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		if !incomplete(b.String()) {
			return b.String(), true
		}
	}
}

// incomplete reports whether src has unclosed brackets or an unterminated
// string or comment.
func incomplete(src string) bool {
	l := lexer.New(src)
	depth := 0
	for {
		tok := l.NextToken()
		switch tok.Type {
		case token.EOF:
			return depth > 0
		case token.Illegal:
			return strings.HasPrefix(tok.Literal, "unterminated")
		case token.LParen, token.LBrace, token.LBracket:
			depth++
		case token.RParen, token.RBrace, token.RBracket:
			if depth == 0 {
				return false
			}
			depth--
		}
	}
}
