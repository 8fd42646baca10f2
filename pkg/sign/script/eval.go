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
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/expr-lang/expr"
)

var ErrBadExpressionReturn = errors.New("expression return type not supported")

// Env is the data available to [[...]] expressions in script arguments.
type Env struct {
	Time     string `expr:"time"`
	Date     string `expr:"date"`
	Weekday  string `expr:"weekday"`
	Hostname string `expr:"hostname"`
	Version  string `expr:"version"`
	Unix     int    `expr:"unix"`
}

// NewEnv builds an expression environment for the given moment.
func NewEnv(now time.Time, hostname, version string) Env {
	return Env{
		Time:     now.Format("15:04"),
		Date:     now.Format("2006-01-02"),
		Weekday:  now.Weekday().String(),
		Hostname: hostname,
		Version:  version,
		Unix:     int(now.Unix()),
	}
}

// evalArg replaces every expression token in arg with its evaluated value.
func evalArg(arg string, env Env) (string, error) {
	if !strings.ContainsRune(arg, tokExprStart) {
		return arg, nil
	}

	var out strings.Builder
	rest := arg
	for {
		start := strings.IndexRune(rest, tokExprStart)
		if start < 0 {
			out.WriteString(rest)
			return out.String(), nil
		}
		out.WriteString(rest[:start])
		rest = rest[start+len(string(tokExprStart)):]

		end := strings.IndexRune(rest, tokExprEnd)
		if end < 0 {
			return "", ErrUnmatchedExpression
		}
		value, err := evalExpression(rest[:end], env)
		if err != nil {
			return "", err
		}
		out.WriteString(value)
		rest = rest[end+len(string(tokExprEnd)):]
	}
}

func evalExpression(code string, env Env) (string, error) {
	output, err := expr.Eval(code, env)
	if err != nil {
		return "", fmt.Errorf("failed to evaluate expression %q: %w", code, err)
	}

	switch v := output.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("%w: %v (%T)", ErrBadExpressionReturn, v, v)
	}
}
