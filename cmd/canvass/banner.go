package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	bannerRoadStyle    = lipgloss.NewStyle().Foreground(colorMuted)
	bannerPinStyle     = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	bannerTitleStyle   = lipgloss.NewStyle().Foreground(colorText).Bold(true)
	bannerTaglineStyle = lipgloss.NewStyle().Foreground(colorPrimaryDark).Italic(true)
	bannerVersionStyle = lipgloss.NewStyle().Foreground(colorMuted)
)

func renderBanner() string {
	road := bannerRoadStyle.Render("─ ─ ─")
	pin := bannerPinStyle.Render("◉")
	title := bannerTitleStyle.Render("CANVASS")

	lines := []string{
		"   " + pin + "       " + pin + "       " + pin,
		"   " + road + " " + road + " " + road,
		"         " + title,
	}
	return strings.Join(lines, "\n")
}

func renderBannerWithTagline() string {
	tagline := bannerTaglineStyle.Render("     every door, even offline")
	ver := bannerVersionStyle.Render("           " + version)
	return strings.Join([]string{renderBanner(), tagline, ver}, "\n")
}
