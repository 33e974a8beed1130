// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"
	"testing"
	"time"
)

func TestSpinnerConfigs(t *testing.T) {
	for name, s := range map[string]SpinnerConfig{"line": LineSpinner, "dots": DotsSpinner} {
		t.Run(name, func(t *testing.T) {
			if len(s.Frames) == 0 {
				t.Error("spinner should have frames")
			}
			if s.Duration() != time.Second/time.Duration(s.FPS) {
				t.Errorf("Duration() = %v", s.Duration())
			}
			sp := s.Spinner()
			if len(sp.Frames) != len(s.Frames) || sp.FPS != s.Duration() {
				t.Errorf("Spinner() = %+v", sp)
			}
		})
	}

	if (SpinnerConfig{}).Duration() != time.Second {
		t.Error("zero FPS should fall back to one frame per second")
	}
}

func TestRenderProgressBar(t *testing.T) {
	tests := []struct {
		width   int
		percent float64
		want    string
	}{
		{10, 0, "----------"},
		{10, 100, "##########"},
		{10, 50, "#####-----"},
		{10, 87, "########:-"},
		{4, 150, "####"},
		{4, -5, "----"},
		{0, 50, ""},
	}
	for _, tt := range tests {
		got := RenderProgressBar(tt.width, tt.percent)
		if got != tt.want {
			t.Errorf("RenderProgressBar(%d, %v) = %q, want %q", tt.width, tt.percent, got, tt.want)
		}
		if tt.width > 0 && len(got) != tt.width {
			t.Errorf("RenderProgressBar(%d, %v) has length %d", tt.width, tt.percent, len(got))
		}
	}
}

func TestScoreColor(t *testing.T) {
	tests := []struct {
		percent float64
		want    string
	}{
		{92, Emerald.Dark},
		{60, Cyan.Dark},
		{30, Amber.Dark},
		{5, TextMuted.Dark},
	}
	for _, tt := range tests {
		if got := ScoreColor(tt.percent); got.Dark != tt.want {
			t.Errorf("ScoreColor(%v) = %s, want %s", tt.percent, got.Dark, tt.want)
		}
	}
}

func TestNewThemeModes(t *testing.T) {
	dark := NewTheme(ModeDark)
	if !dark.IsDark || dark.GlamourStyle() != "dark" {
		t.Errorf("dark theme: IsDark=%v glamour=%s", dark.IsDark, dark.GlamourStyle())
	}
	light := NewTheme(ModeLight)
	if light.IsDark || light.GlamourStyle() != "light" {
		t.Errorf("light theme: IsDark=%v glamour=%s", light.IsDark, light.GlamourStyle())
	}
}

func TestLayoutMode(t *testing.T) {
	theme := NewTheme(ModeDark)
	tests := []struct {
		width   int
		mode    LayoutMode
		sidebar int
	}{
		{40, LayoutNarrow, 0},
		{80, LayoutMedium, 24},
		{140, LayoutWide, 32},
	}
	for _, tt := range tests {
		theme.SetSize(tt.width, 30)
		if theme.GetLayoutMode() != tt.mode {
			t.Errorf("width %d: mode = %v, want %v", tt.width, theme.GetLayoutMode(), tt.mode)
		}
		if theme.SidebarWidth() != tt.sidebar {
			t.Errorf("width %d: sidebar = %d, want %d", tt.width, theme.SidebarWidth(), tt.sidebar)
		}
	}
}

func TestStatusRenderersIncludeIndicators(t *testing.T) {
	tests := []struct {
		got, indicator string
	}{
		{RenderSuccess("done"), StatusIndicators.Success},
		{RenderError("boom"), StatusIndicators.Error},
		{RenderWarning("careful"), StatusIndicators.Warning},
		{RenderInfo("fyi"), StatusIndicators.Info},
	}
	for _, tt := range tests {
		if !strings.Contains(tt.got, tt.indicator) {
			t.Errorf("%q missing indicator %q", tt.got, tt.indicator)
		}
	}
}
