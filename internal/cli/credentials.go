package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// errEmptyKey is returned when an empty master key is entered on a prompt
// that cannot be cancelled.
var errEmptyKey = errors.New("master key must not be empty")

// PromptCredentials asks for the wallet master key on a terminal. When In
// is not a terminal the key is read as one line, which keeps the commands
// scriptable.
//
// An empty answer cancels the request when cancelling is allowed.
type PromptCredentials struct {
	In     io.Reader
	Out    io.Writer
	Prompt string

	lines *bufio.Reader
}

// RequestMasterKey implements vault.CredentialProvider.
func (p *PromptCredentials) RequestMasterKey(ctx context.Context, allowCancel bool) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prompt := p.Prompt
	if prompt == "" {
		prompt = "Wallet master key"
	}
	if allowCancel {
		prompt += " (empty to cancel)"
	}
	fmt.Fprintf(p.Out, "%s: ", prompt)

	key, err := p.read()
	if err != nil {
		return nil, fmt.Errorf("read master key: %w", err)
	}
	if len(key) == 0 {
		if allowCancel {
			return nil, nil
		}
		return nil, errEmptyKey
	}
	return key, nil
}

func (p *PromptCredentials) read() ([]byte, error) {
	if f, ok := p.In.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		key, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.Out)
		return key, err
	}

	if p.lines == nil {
		p.lines = bufio.NewReader(p.In)
	}
	line, err := p.lines.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}
