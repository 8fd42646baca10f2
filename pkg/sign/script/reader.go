// YHS Sign
// Copyright (c) 2025 The YHS Sign Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of YHS Sign.
//
// YHS Sign is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// YHS Sign is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with YHS Sign.  If not, see <http://www.gnu.org/licenses/>.

package script

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ZaparooProject/go-zapscript"
)

var (
	ErrUnexpectedEOF       = errors.New("unexpected end of script")
	ErrInvalidCmdName      = errors.New("invalid characters in command name")
	ErrInvalidAdvArgName   = errors.New("invalid characters in advanced arg name")
	ErrEmptyCmdName        = errors.New("command name is empty")
	ErrEmptyScript         = errors.New("script is empty")
	ErrUnmatchedQuote      = errors.New("unmatched quote")
	ErrUnmatchedExpression = errors.New("unmatched expression")
)

const (
	symCmdStart        = '*'
	symCmdSep          = '|'
	symEscapeSeq       = '^'
	symArgStart        = ':'
	symArgDoubleQuote  = '"'
	symArgSingleQuote  = '\''
	symAdvArgStart     = '?'
	symAdvArgSep       = '&'
	symAdvArgEq        = '='
	symExpressionStart = '['
	symExpressionEnd   = ']'

	// expressions are kept as private-use delimited tokens until evaluation
	tokExprStart = '\uE000'
	tokExprEnd   = '\uE001'
)

const eof = rune(0)

func isCmdName(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '.'
}

func isAdvArgName(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '_'
}

func isWhitespace(ch rune) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

// reader lexes ZapScript text into commands. Every command takes a single
// argument so sign text may contain commas.
type reader struct {
	r   *bufio.Reader
	pos int64
}

func newReader(value string) *reader {
	return &reader{r: bufio.NewReader(strings.NewReader(value))}
}

func (sr *reader) read() (rune, error) {
	ch, _, err := sr.r.ReadRune()
	if errors.Is(err, io.EOF) {
		return eof, nil
	} else if err != nil {
		return eof, fmt.Errorf("failed to read rune: %w", err)
	}
	sr.pos++
	return ch, nil
}

func (sr *reader) unread() error {
	if err := sr.r.UnreadRune(); err != nil {
		return fmt.Errorf("failed to unread rune: %w", err)
	}
	sr.pos--
	return nil
}

func (sr *reader) peek() (rune, error) {
	for n := utf8.UTFMax; n > 0; n-- {
		b, err := sr.r.Peek(n)
		if err == nil {
			r, _ := utf8.DecodeRune(b)
			if r == utf8.RuneError {
				return r, errors.New("rune error")
			}
			return r, nil
		}
	}
	return eof, nil
}

// endOfCmd consumes a "||" separator. A lone trailing "|" also ends the
// command.
func (sr *reader) endOfCmd(ch rune) (bool, error) {
	if ch != symCmdSep {
		return false, nil
	}
	next, err := sr.peek()
	if err != nil {
		return false, err
	}
	switch next {
	case eof:
		return true, nil
	case symCmdSep:
		if _, err := sr.read(); err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, nil
	}
}

func (sr *reader) parseEscapeSeq() (string, error) {
	ch, err := sr.read()
	if err != nil {
		return "", err
	}
	switch ch {
	case eof:
		return "", nil
	case 'n':
		return "\n", nil
	case 't':
		return "\t", nil
	default:
		return string(ch), nil
	}
}

func (sr *reader) parseQuoted(quote rune) (string, error) {
	var sb strings.Builder
	for {
		ch, err := sr.read()
		if err != nil {
			return sb.String(), err
		}
		switch ch {
		case eof:
			return sb.String(), ErrUnmatchedQuote
		case quote:
			return sb.String(), nil
		case symEscapeSeq:
			next, err := sr.parseEscapeSeq()
			if err != nil {
				return sb.String(), err
			}
			sb.WriteString(next)
		case symExpressionStart:
			e, err := sr.parseExpression()
			if err != nil {
				return sb.String(), err
			}
			sb.WriteString(e)
		default:
			sb.WriteRune(ch)
		}
	}
}

// parseExpression is called after a "[". A second "[" opens an expression
// running to "]]", otherwise the bracket is literal.
func (sr *reader) parseExpression() (string, error) {
	next, err := sr.read()
	if err != nil {
		return "", err
	}
	if next != symExpressionStart {
		if next != eof {
			if err := sr.unread(); err != nil {
				return "", err
			}
		}
		return string(symExpressionStart), nil
	}

	var sb strings.Builder
	sb.WriteRune(tokExprStart)
	for {
		ch, err := sr.read()
		if err != nil {
			return "", err
		} else if ch == eof {
			return "", ErrUnmatchedExpression
		}
		if ch == symExpressionEnd {
			next, err := sr.peek()
			if err != nil {
				return "", err
			}
			if next == symExpressionEnd {
				if _, err := sr.read(); err != nil {
					return "", err
				}
				sb.WriteRune(tokExprEnd)
				return sb.String(), nil
			}
		}
		sb.WriteRune(ch)
	}
}

func (sr *reader) parseAdvArgs() (advArgs map[string]string, remaining string, err error) {
	advArgs = make(map[string]string)
	inValue := false
	name := ""
	var value strings.Builder
	valueStart := int64(-1)
	buf := make([]rune, 0, 32)

	store := func() {
		if name != "" {
			advArgs[name] = strings.TrimSpace(value.String())
		}
		name = ""
		value.Reset()
	}

	for {
		ch, err := sr.read()
		if err != nil {
			return advArgs, string(buf), err
		} else if ch == eof {
			break
		}
		buf = append(buf, ch)

		if inValue {
			switch {
			case valueStart == sr.pos-1 && (ch == symArgDoubleQuote || ch == symArgSingleQuote):
				q, err := sr.parseQuoted(ch)
				if err != nil {
					return advArgs, string(buf), err
				}
				value.WriteString(q)
				continue
			case ch == symEscapeSeq:
				next, err := sr.parseEscapeSeq()
				if err != nil {
					return advArgs, string(buf), err
				}
				value.WriteString(next)
				continue
			}
		}

		eoc, err := sr.endOfCmd(ch)
		if err != nil {
			return advArgs, string(buf), err
		} else if eoc {
			break
		}

		switch {
		case ch == symAdvArgSep:
			store()
			inValue = false
		case ch == symAdvArgEq && !inValue:
			valueStart = sr.pos
			inValue = true
		case inValue && ch == symExpressionStart:
			e, err := sr.parseExpression()
			if err != nil {
				return advArgs, string(buf), err
			}
			value.WriteString(e)
		case inValue:
			value.WriteRune(ch)
		case !isAdvArgName(ch):
			return advArgs, string(buf), ErrInvalidAdvArgName
		default:
			name += string(ch)
		}
	}

	store()
	return advArgs, string(buf), nil
}

// parseArg reads one argument and any trailing advanced args. A "?" not
// followed by valid advanced args stays part of the argument.
func (sr *reader) parseArg(prefix string, onlyAdvArgs bool) (args []string, advArgs map[string]string, err error) {
	var arg strings.Builder
	arg.WriteString(prefix)
	argStart := sr.pos

loop:
	for {
		ch, err := sr.read()
		if err != nil {
			return nil, nil, err
		} else if ch == eof {
			break
		}

		switch {
		case argStart == sr.pos-1 && (ch == symArgDoubleQuote || ch == symArgSingleQuote):
			q, err := sr.parseQuoted(ch)
			if err != nil {
				return nil, nil, err
			}
			arg.Reset()
			arg.WriteString(q)
			continue
		case ch == symEscapeSeq:
			next, err := sr.parseEscapeSeq()
			if err != nil {
				return nil, nil, err
			} else if next == "" {
				arg.WriteRune(symEscapeSeq)
				continue
			}
			arg.WriteString(next)
			continue
		}

		eoc, err := sr.endOfCmd(ch)
		if err != nil {
			return nil, nil, err
		} else if eoc {
			break
		}

		switch ch {
		case symAdvArgStart:
			parsed, buf, err := sr.parseAdvArgs()
			if errors.Is(err, ErrInvalidAdvArgName) {
				arg.WriteRune(symAdvArgStart)
				arg.WriteString(buf)
				continue
			} else if err != nil {
				return nil, nil, err
			}
			advArgs = parsed
			break loop
		case symExpressionStart:
			e, err := sr.parseExpression()
			if err != nil {
				return nil, nil, err
			}
			arg.WriteString(e)
		default:
			arg.WriteRune(ch)
		}
	}

	if !onlyAdvArgs {
		args = []string{strings.TrimSpace(arg.String())}
	}
	return args, advArgs, nil
}

func (sr *reader) parseCommand() (zapscript.Command, string, error) {
	var cmd zapscript.Command
	var buf []rune

loop:
	for {
		ch, err := sr.read()
		if err != nil {
			return cmd, string(buf), err
		} else if ch == eof {
			break
		}
		buf = append(buf, ch)

		eoc, err := sr.endOfCmd(ch)
		if err != nil {
			return cmd, string(buf), err
		} else if eoc {
			break
		}

		switch {
		case isCmdName(ch):
			cmd.Name += string(ch)
		case ch == symArgStart || ch == symAdvArgStart:
			if cmd.Name == "" {
				break loop
			}
			onlyAdvArgs := ch == symAdvArgStart
			if onlyAdvArgs {
				if err := sr.unread(); err != nil {
					return cmd, string(buf), err
				}
			}
			args, advArgs, err := sr.parseArg("", onlyAdvArgs)
			if err != nil {
				return cmd, string(buf), err
			}
			cmd.Args = args
			if len(advArgs) > 0 {
				cmd.AdvArgs = zapscript.NewAdvArgs(advArgs)
			}
			break loop
		default:
			return cmd, string(buf), ErrInvalidCmdName
		}
	}

	if cmd.Name == "" {
		return cmd, string(buf), ErrEmptyCmdName
	}
	cmd.Name = strings.ToLower(cmd.Name)
	return cmd, string(buf), nil
}

// parse reads the whole script. Text that does not start with "**" is an
// implicit write command.
func (sr *reader) parse() (zapscript.Script, error) {
	var script zapscript.Script

	parseErr := func(err error) error {
		return fmt.Errorf("parse error at %d: %w", sr.pos, err)
	}

	implicitWrite := func(prefix string) error {
		args, advArgs, err := sr.parseArg(prefix, false)
		if err != nil {
			return parseErr(err)
		}
		cmd := zapscript.Command{Name: CmdWrite, Args: args}
		if len(advArgs) > 0 {
			cmd.AdvArgs = zapscript.NewAdvArgs(advArgs)
		}
		script.Cmds = append(script.Cmds, cmd)
		return nil
	}

	for {
		ch, err := sr.read()
		if err != nil {
			return script, err
		} else if ch == eof {
			break
		}

		switch {
		case isWhitespace(ch):
			continue
		case ch == symCmdStart:
			next, err := sr.peek()
			if err != nil {
				return script, parseErr(err)
			}
			switch next {
			case eof:
				return script, parseErr(ErrUnexpectedEOF)
			case symCmdStart:
				if _, err := sr.read(); err != nil {
					return script, parseErr(err)
				}
			default:
				if err := implicitWrite(string(symCmdStart)); err != nil {
					return script, err
				}
				continue
			}

			cmd, buf, err := sr.parseCommand()
			switch {
			case errors.Is(err, ErrInvalidCmdName):
				if err := implicitWrite("**" + buf); err != nil {
					return script, err
				}
			case err != nil:
				return script, parseErr(err)
			default:
				script.Cmds = append(script.Cmds, cmd)
			}
		default:
			if err := sr.unread(); err != nil {
				return script, parseErr(err)
			}
			if err := implicitWrite(""); err != nil {
				return script, err
			}
		}
	}

	if len(script.Cmds) == 0 {
		return script, ErrEmptyScript
	}
	return script, nil
}
