package parser

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/recall/internal/domain"
)

type field int

const (
	seeking field = iota
	question
	answer
	mnemonic
)

// Lines starting with one of these prefixes open a new field. A question
// prefix always starts a new card; "---" on its own line ends one.
var prefixes = []struct {
	prefix string
	field  field
}{
	{"Q:", question},
	{"A:", answer},
	{"M:", mnemonic},
}

const separator = "---"

// ParseFile reads a file from the given path and extracts all cards.
func ParseFile(path string) ([]domain.Card, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads from an io.Reader and extracts all cards. Only Question,
// Answer and Mnemonic are filled in; cards without a question are dropped.
func Parse(r io.Reader) ([]domain.Card, error) {
	p := &cardParser{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.line(scanner.Text())
	}
	p.finishCard()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return p.cards, nil
}

type cardParser struct {
	cards   []domain.Card
	current domain.Card
	state   field
	block   []string
}

func (p *cardParser) line(line string) {
	if line == separator {
		p.finishCard()
		return
	}

	for _, pf := range prefixes {
		if !strings.HasPrefix(line, pf.prefix) {
			continue
		}
		p.flushBlock()
		if pf.field == question && p.state != seeking {
			p.finishCard()
		}
		p.state = pf.field
		p.block = append(p.block, strings.TrimPrefix(line[len(pf.prefix):], " "))
		return
	}

	if p.state != seeking {
		p.block = append(p.block, line)
	}
}

// flushBlock stores the lines collected so far into the current field.
func (p *cardParser) flushBlock() {
	if len(p.block) == 0 {
		return
	}
	content := strings.TrimRight(strings.Join(p.block, "\n"), "\n")
	switch p.state {
	case question:
		p.current.Question = content
	case answer:
		p.current.Answer = content
	case mnemonic:
		p.current.Mnemonic = content
	}
	p.block = nil
}

func (p *cardParser) finishCard() {
	p.flushBlock()
	if p.current.Question != "" {
		p.cards = append(p.cards, p.current)
	}
	p.current = domain.Card{}
	p.state = seeking
}
