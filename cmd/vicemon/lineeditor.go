// =============================================================================
// lineeditor.go - Line Editor with Dual-Mode Operation
// =============================================================================
//
// The REPL reads input through a LineEditor that picks its input method
// from the terminal:
//
//   - Interactive mode: ergochat/readline with Emacs keybindings,
//     persistent history and Ctrl-R history search.
//   - Non-interactive mode: bufio.Scanner over stdin, with the prompt
//     printed manually. Used for piped input and under Emacs comint.
//
// =============================================================================

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ergochat/readline"
	"golang.org/x/term"
)

// historySize is the maximum number of history entries to retain.
const historySize = 500

// GO CONCEPT: Exported Names
// ---------------------------
// Capitalisation decides visibility. LineEditor, NewLineEditor and GetLine
// start with an upper-case letter and are exported; rl, scanner and
// getInteractiveLine are visible only inside package main. There are no
// public or private keywords.

// LineEditor wraps line editing with dual-mode operation.
type LineEditor struct {
	interactive bool

	// rl is nil in non-interactive mode.
	rl *readline.Instance

	// scanner is nil in interactive mode.
	scanner *bufio.Scanner

	// out receives the prompt in non-interactive mode.
	out io.Writer
}

// GO CONCEPT: Constructor Functions
// ---------------------------------
// Go has no constructors. By convention a function named NewT returns a
// ready-to-use *T, choosing field values the zero value cannot express.
// Here it also picks between two very different configurations and hands
// the simple one off to newScannerEditor, which tests call directly with
// an in-memory reader.

// NewLineEditor creates a LineEditor reading from stdin. History is kept
// in historyPath when the terminal is interactive.
//
// Emacs sets INSIDE_EMACS in its subprocesses and provides its own line
// editing, so the editor never goes interactive there.
func NewLineEditor(historyPath string) *LineEditor {
	isInteractive := term.IsTerminal(int(os.Stdin.Fd())) &&
		os.Getenv("INSIDE_EMACS") == ""

	if !isInteractive {
		return newScannerEditor(os.Stdin, os.Stdout)
	}

	rl, err := readline.NewFromConfig(&readline.Config{
		HistoryFile:  historyPath,
		HistoryLimit: historySize,
		// Lines are saved by hand so blank input stays out of history.
		DisableAutoSaveHistory: true,
		Prompt:                 "",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: readline init failed (%v), using basic input\n", err)
		return newScannerEditor(os.Stdin, os.Stdout)
	}

	return &LineEditor{
		interactive: true,
		rl:          rl,
	}
}

func newScannerEditor(in io.Reader, out io.Writer) *LineEditor {
	return &LineEditor{
		interactive: false,
		scanner:     bufio.NewScanner(in),
		out:         out,
	}
}

// GetLine reads a line of input with the given prompt. It returns io.EOF
// on Ctrl-D, on Ctrl-C, and when piped input is exhausted.
func (le *LineEditor) GetLine(prompt string) (string, error) {
	if le.interactive {
		return le.getInteractiveLine(prompt)
	}
	return le.getNonInteractiveLine(prompt)
}

func (le *LineEditor) getInteractiveLine(prompt string) (string, error) {
	le.rl.SetPrompt(prompt)

	line, err := le.rl.Readline()
	if err != nil {
		if err == readline.ErrInterrupt {
			return "", io.EOF
		}
		return "", err
	}

	if trimmed := strings.TrimSpace(line); trimmed != "" {
		le.rl.SaveToHistory(trimmed)
	}
	return line, nil
}

// GO CONCEPT: bufio.Scanner
// -------------------------
// Scanner splits a stream into lines. Scan returns false at end of input
// or on a read error; Err tells the two apart by returning nil at EOF.
// Text returns the line without its trailing newline.
func (le *LineEditor) getNonInteractiveLine(prompt string) (string, error) {
	fmt.Fprint(le.out, prompt)

	if !le.scanner.Scan() {
		if err := le.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return le.scanner.Text(), nil
}

// Close saves history and releases the terminal. It is safe to call more
// than once.
func (le *LineEditor) Close() {
	if le.rl != nil {
		le.rl.Close()
		le.rl = nil
	}
}

// IsInteractive reports whether full line editing is active.
func (le *LineEditor) IsInteractive() bool {
	return le.interactive
}
