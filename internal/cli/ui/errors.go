package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Level is the severity of a message
type Level int

const (
	LevelError Level = iota
	LevelWarning
	LevelInfo
)

// Message is a formatted diagnostic
type Message struct {
	Level   Level
	Context string
	Problem string
	Detail  string
	// Suggestions are rendered as "Did you mean"
	Suggestions []string
	Hints       []string
	NoColor     bool
}

func (m Message) colors() (header, body *color.Color, symbol string) {
	switch m.Level {
	case LevelWarning:
		header, body, symbol = color.New(color.FgYellow, color.Bold), color.New(color.FgYellow), "!"
	case LevelInfo:
		header, body, symbol = color.New(color.FgCyan, color.Bold), color.New(color.FgCyan), "i"
	default:
		header, body, symbol = color.New(color.FgRed, color.Bold), color.New(color.FgRed), "x"
	}
	if m.NoColor {
		header.DisableColor()
		body.DisableColor()
	}
	return header, body, symbol
}

// Format renders a message
//
//	x UNKNOWN ENTITY: Persn
//	   No entity named 'Persn' is registered.
//
//	   Did you mean: Person?
//
//	   -> List entities: searchy entities
func Format(m Message) string {
	var b strings.Builder
	header, body, symbol := m.colors()

	if m.Context != "" {
		header.Fprintf(&b, "%s %s\n", symbol, strings.ToUpper(m.Context))
		if m.Problem != "" {
			body.Fprintf(&b, "   %s\n", m.Problem)
		}
	} else {
		header.Fprintf(&b, "%s %s\n", symbol, m.Problem)
	}

	if m.Detail != "" {
		b.WriteString("\n")
		body.Fprintf(&b, "   %s\n", m.Detail)
	}

	if len(m.Suggestions) > 0 {
		yellow := color.New(color.FgYellow)
		if m.NoColor {
			yellow.DisableColor()
		}
		b.WriteString("\n")
		yellow.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(m.Suggestions, ", "))
	}

	if len(m.Hints) > 0 {
		cyan := color.New(color.FgCyan)
		if m.NoColor {
			cyan.DisableColor()
		}
		b.WriteString("\n")
		for _, hint := range m.Hints {
			cyan.Fprintf(&b, "   -> %s\n", hint)
		}
	}
	return b.String()
}

// Write writes a formatted message
func Write(w io.Writer, m Message) {
	fmt.Fprint(w, Format(m))
}

// Success formats a success line
func Success(message string, noColor bool) string {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	return green.Sprintf("ok %s", message)
}

// UnknownEntity describes a search against an unregistered entity
func UnknownEntity(name string, known []string, noColor bool) Message {
	return Message{
		Context:     "unknown entity",
		Problem:     fmt.Sprintf("No entity named '%s' is registered.", name),
		Suggestions: Suggest(name, known, nil),
		Hints:       []string{"List entities: searchy entities"},
		NoColor:     noColor,
	}
}

// SearchFailure describes an expression that could not be compiled or run
func SearchFailure(code, message string, details map[string]any, noColor bool) Message {
	m := Message{
		Context: strings.ReplaceAll(code, "_", " "),
		Problem: message,
		Hints:   []string{"Show entity fields: searchy entities --fields <entity>"},
		NoColor: noColor,
	}
	if path, ok := details["path"].(string); ok && path != "" {
		m.Detail = fmt.Sprintf("at %s", path)
	}
	return m
}

// ConfigFailure describes an invalid configuration
func ConfigFailure(err error, noColor bool) Message {
	return Message{
		Context: "configuration error",
		Problem: err.Error(),
		Hints: []string{
			"Check searchy.yaml or SEARCHY_* environment variables",
			"Get help: searchy --help",
		},
		NoColor: noColor,
	}
}
