package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
)

const (
	ansiCodeReset     = "\033[0m"
	ansiCodeRed       = "\033[31m"
	ansiCodeGreen     = "\033[32m"
	ansiCodeYellow    = "\033[33m"
	ansiCodeBlue      = "\033[34m"
	ansiCodePurple    = "\033[35m"
	ansiCodeCyan      = "\033[36m"
	ansiCodeWhite     = "\033[37m"
	ansiCodeGray      = "\033[90m"
	ansiCodeBold      = "\033[1m"
	ansiCodeItalic    = "\033[3m"
	ansiCodeUnderline = "\033[4m"
)

const (
	ansiCodeDebug = ansiCodeCyan
	ansiCodeInfo  = ansiCodeGreen
	ansiCodeWarn  = ansiCodeYellow
	ansiCodeError = ansiCodeRed
)

//nolint:gochecknoglobals
var ansiCodeMap = map[slog.Level]string{
	slog.LevelDebug: ansiCodeDebug,
	slog.LevelInfo:  ansiCodeInfo,
	slog.LevelWarn:  ansiCodeWarn,
	slog.LevelError: ansiCodeError,
}

// ConsoleHandler implements slog.Handler to format log records with ansiCodes
// and human-readable output suitable for development environments.
// The member a record refers to is printed right after the level.
// Credential attributes are masked with RedactSecrets.
type ConsoleHandler struct {
	// Output is the destination for log output (typically os.Stdout or os.Stderr)
	Output io.Writer
	// Level is the minimum level for log records to be processed
	Level slog.Leveler
	// PkgLevels maps logger names to minimum log levels; the longest dotted prefix wins
	PkgLevels map[string]slog.Level

	attrs  []slog.Attr
	groups []string
}

var _ slog.Handler = (*ConsoleHandler)(nil)

// Handle implements slog.Handler by formatting the log record with ansiCodes,
// timestamps, and source file information.
func (h *ConsoleHandler) Handle(ctx context.Context, r slog.Record) error {
	attrs := make([]slog.Attr, 0, r.NumAttrs()+len(h.attrs))

	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)

		return true
	})

	attrs = append(attrs, h.attrs...)

	var (
		pkg    string
		member string
		rest   = make([]slog.Attr, 0, len(attrs))
	)

	for _, attr := range attrs {
		switch attr.Key {
		case "logger":
			pkg = attr.Value.String()
		case "member":
			if member == "" {
				member = attr.Value.String()
			}

			continue
		}

		rest = append(rest, attr)
	}

	level, ok := h.pkgLevel(pkg)
	if !ok {
		level = h.Level.Level()
	}

	if r.Level < level {
		return nil
	}

	var b strings.Builder

	b.WriteString(ansiCodeGray + r.Time.Format("15:04:05.000000") + ansiCodeReset)
	b.WriteString(" " + ansiCodeMap[r.Level] + "[" + r.Level.String() + "]" + ansiCodeReset)

	if member != "" {
		b.WriteString(" " + ansiCodeBold + "<" + member + ">" + ansiCodeReset)
	}

	b.WriteString(" " + r.Message)

	var prefix string

	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}

	if len(rest) > 0 {
		b.WriteString(" " + ansiCodeGray + "|" + ansiCodeReset)
		b.WriteString(h.renderAttrs(prefix, rest))
	}

	if r.PC != 0 {
		f, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		fn := strings.Split(f.Function, string(os.PathSeparator))

		b.WriteString("\n-> " + ansiCodeGray + fn[len(fn)-1] + "()")
		b.WriteString(" in " + ansiCodeUnderline + f.File + ":" + strconv.Itoa(f.Line) + ansiCodeReset)
	}

	fmt.Fprintln(h.Output, b.String())

	return nil
}

// pkgLevel returns the level configured for the longest dotted prefix of pkg.
// The empty key applies to every logger.
func (h *ConsoleHandler) pkgLevel(pkg string) (slog.Level, bool) {
	for key := pkg; ; {
		if level, ok := h.PkgLevels[key]; ok {
			return level, true
		}

		if key == "" {
			return 0, false
		}

		if i := strings.LastIndexByte(key, '.'); i >= 0 {
			key = key[:i]
		} else {
			key = ""
		}
	}
}

func (h *ConsoleHandler) renderAttrs(prefix string, attrs []slog.Attr) (out string) {
	for _, attr := range attrs {
		if attr.Value.Kind() == slog.KindGroup {
			out += h.renderAttrs(prefix+attr.Key+".", attr.Value.Group())

			continue
		}

		attr = RedactSecrets(nil, attr)

		out += " " + prefix + attr.Key
		out += "=" + ansiCodeGray + attr.Value.String() + ansiCodeReset
	}

	return
}

// WithAttrs implements slog.Handler.WithAttrs.
func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) Handler {
	return &ConsoleHandler{
		Output:    h.Output,
		Level:     h.Level,
		PkgLevels: h.PkgLevels,
		attrs:     append(h.attrs, attrs...),
		groups:    h.groups,
	}
}

// WithGroup implements slog.Handler.WithGroup.
func (h *ConsoleHandler) WithGroup(name string) Handler {
	return &ConsoleHandler{
		Output:    h.Output,
		Level:     h.Level,
		PkgLevels: h.PkgLevels,
		attrs:     h.attrs,
		groups:    append(h.groups, name),
	}
}

// Enabled implements slog.Handler.Enabled. A package filter may lower the
// level below Level, so the final decision is made in Handle.
func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	lowest := h.Level.Level()
	for _, pkgLevel := range h.PkgLevels {
		lowest = min(lowest, pkgLevel)
	}

	return lowest <= level
}
