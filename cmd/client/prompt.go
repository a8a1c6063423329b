package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/harrylevesque/qrpay/internal/scan"
)

// prompter reads answers from stdin. PINs are read without echo when stdin is
// a terminal.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
	fd  int
	tty bool
}

func newPrompter() *prompter {
	fd := int(os.Stdin.Fd())
	p := newPrompterFrom(os.Stdin, os.Stdout)
	p.fd, p.tty = fd, term.IsTerminal(fd)
	return p
}

// newPrompterFrom reads plain lines from in, never from a terminal.
func newPrompterFrom(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out, fd: -1}
}

func (p *prompter) line(label string) (string, error) {
	fmt.Fprint(p.out, label)
	s, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && s != "") {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

func (p *prompter) secret(label string) (string, error) {
	if !p.tty {
		return p.line(label)
	}
	fmt.Fprint(p.out, label)
	b, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func (p *prompter) confirm(label string) bool {
	ans, err := p.line(label + " [y/N]: ")
	return err == nil && strings.EqualFold(ans, "y")
}

// valueOr returns v, or prompts for it when empty.
func (p *prompter) valueOr(v, label string) (string, error) {
	if v != "" {
		return v, nil
	}
	return p.line(label)
}

// scanSource reads a typed or pasted payload from the prompter's input.
func (p *prompter) scanSource() scan.Source {
	fmt.Fprint(p.out, "QR payload: ")
	return scan.NewLineSource(p.in)
}
