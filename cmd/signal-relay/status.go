// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/signal-relay/lib/config"
	"github.com/bureau-foundation/signal-relay/lib/outbox"
)

// Column widths of the status table.
const (
	columnWidthRecipient = 18
	columnWidthName      = 28
	columnWidthKind      = 12
)

var (
	sectionStyle = lipgloss.NewStyle().Bold(true)
	headerStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	claimedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	faintStyle   = lipgloss.NewStyle().Faint(true)
)

// printStatus writes the queued and dead-lettered outbox entries to w.
// It reads the tree without claiming anything.
func printStatus(w io.Writer, cfg *config.Config, now time.Time) error {
	queued, err := outbox.List(cfg.OutboxDir())
	if err != nil {
		return fmt.Errorf("listing %s: %w", cfg.OutboxDir(), err)
	}
	failed, err := outbox.List(cfg.DeadLetterDir())
	if err != nil {
		return fmt.Errorf("listing %s: %w", cfg.DeadLetterDir(), err)
	}

	var builder strings.Builder
	writeSection(&builder, fmt.Sprintf("Outbox (%d)", len(queued)), queued, now)
	builder.WriteString("\n")
	writeSection(&builder, fmt.Sprintf("Failed (%d)", len(failed)), failed, now)

	_, err = io.WriteString(w, builder.String())
	return err
}

func writeSection(builder *strings.Builder, title string, entries []outbox.Entry, now time.Time) {
	builder.WriteString(sectionStyle.Render(title))
	builder.WriteString("\n")
	if len(entries) == 0 {
		builder.WriteString(faintStyle.Render("  (empty)"))
		builder.WriteString("\n")
		return
	}

	builder.WriteString("  ")
	builder.WriteString(headerStyle.Render(row("RECIPIENT", "ENTRY", "KIND", "STATE")))
	builder.WriteString("\n")
	for _, entry := range entries {
		kind := string(entry.Kind)
		if kind == "" {
			kind = "unknown"
		}
		state := "queued " + age(now, entry.ModTime)
		if entry.Claimed {
			state = claimedStyle.Render("claimed " + age(now, entry.ClaimedAt))
		}
		builder.WriteString("  ")
		builder.WriteString(row(entry.Client, entry.Name, kind, state))
		builder.WriteString("\n")
	}
}

func row(recipient, name, kind, state string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top,
		cell(recipient, columnWidthRecipient),
		cell(name, columnWidthName),
		cell(kind, columnWidthKind),
		state,
	)
}

// cell pads text to width, truncating with an ellipsis when it does not
// fit with one column of separation.
func cell(text string, width int) string {
	if lipgloss.Width(text) >= width {
		runes := []rune(text)
		if len(runes) > width-2 {
			text = string(runes[:width-2]) + "…"
		}
	}
	return lipgloss.NewStyle().Width(width).MaxWidth(width).Render(text)
}

// age renders how long ago t was, to the second.
func age(now, t time.Time) string {
	if t.IsZero() {
		return ""
	}
	elapsed := now.Sub(t).Truncate(time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed.String() + " ago"
}
