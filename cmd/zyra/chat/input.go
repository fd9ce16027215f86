package chatcmder

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
)

// lineReader reads one line of user input.
type lineReader interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

// scannerInput reads piped input. It never prints a prompt.
type scannerInput struct {
	scanner *bufio.Scanner
}

func newScannerInput(r io.Reader) *scannerInput {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &scannerInput{scanner: scanner}
}

func (s *scannerInput) ReadLine(string) (string, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return s.scanner.Text(), nil
}

func (s *scannerInput) Close() error {
	return nil
}

// linerInput is the terminal reader with line editing and input history
// kept next to the database.
type linerInput struct {
	line        *liner.State
	historyFile string
}

func newLinerInput(historyFile string) *linerInput {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	in := &linerInput{line: line, historyFile: historyFile}
	if f, err := os.Open(historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	return in
}

func (l *linerInput) ReadLine(prompt string) (string, error) {
	input, err := l.line.Prompt(prompt)
	if err != nil {
		if err == liner.ErrPromptAborted {
			return "", io.EOF
		}
		return "", err
	}

	if strings.TrimSpace(input) != "" {
		l.line.AppendHistory(input)
	}
	return input, nil
}

func (l *linerInput) Close() error {
	if err := os.MkdirAll(filepath.Dir(l.historyFile), 0o755); err == nil {
		if f, err := os.OpenFile(l.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
			_, _ = l.line.WriteHistory(f)
			f.Close()
		}
	}
	return l.line.Close()
}
