// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the colors and Lip Gloss styles shared by the chat
TUI and the plain CLI output.

# Color System (colors.go)

All colors are lipgloss.AdaptiveColor values, so they follow the terminal
background:

	Cyan    - user messages, prompts
	Purple  - assistant messages, selections
	Emerald - success, strong sources
	Amber   - disclaimers, documents in progress
	Rose    - errors, failed turns

ScoreColor maps a relevance percentage onto the palette.

# Theme System (theme.go)

	theme := styles.NewTheme(cfg.UI.Theme) // "auto", "dark" or "light"
	renderer, _ := glamour.NewTermRenderer(glamour.WithStandardStyle(theme.GlamourStyle()))

NewTheme pins lipgloss to the detected or configured background so adaptive
colors and glamour agree.

# Bars and Spinners (animations.go)

	styles.RenderProgressBar(10, source.RelevanceScore) // "########--"
	spin := spinner.New(spinner.WithSpinner(styles.LineSpinner.Spinner()))
*/
package styles
