package tui

import "github.com/charmbracelet/lipgloss"

// palette 主题基础色 / Base colors a theme is derived from.
type palette struct {
	brand    lipgloss.Color
	user     lipgloss.Color
	fg       lipgloss.Color
	fgDim    lipgloss.Color
	muted    lipgloss.Color
	border   lipgloss.Color
	statusBg lipgloss.Color
	errorBg  lipgloss.Color
	onColor  lipgloss.Color

	// quota bands, ascending
	green  lipgloss.Color
	yellow lipgloss.Color
	orange lipgloss.Color
	red    lipgloss.Color
}

var darkPalette = palette{
	brand:    lipgloss.Color("#7C3AED"),
	user:     lipgloss.Color("#06B6D4"),
	fg:       lipgloss.Color("#E5E7EB"),
	fgDim:    lipgloss.Color("#9CA3AF"),
	muted:    lipgloss.Color("#6B7280"),
	border:   lipgloss.Color("#374151"),
	statusBg: lipgloss.Color("#111827"),
	errorBg:  lipgloss.Color("#7F1D1D"),
	onColor:  lipgloss.Color("#FFFFFF"),
	green:    lipgloss.Color("#22C55E"),
	yellow:   lipgloss.Color("#EAB308"),
	orange:   lipgloss.Color("#F97316"),
	red:      lipgloss.Color("#EF4444"),
}

var lightPalette = palette{
	brand:    lipgloss.Color("#6D28D9"),
	user:     lipgloss.Color("#0E7490"),
	fg:       lipgloss.Color("#111827"),
	fgDim:    lipgloss.Color("#4B5563"),
	muted:    lipgloss.Color("#6B7280"),
	border:   lipgloss.Color("#D1D5DB"),
	statusBg: lipgloss.Color("#E5E7EB"),
	errorBg:  lipgloss.Color("#B91C1C"),
	onColor:  lipgloss.Color("#FFFFFF"),
	green:    lipgloss.Color("#15803D"),
	yellow:   lipgloss.Color("#A16207"),
	orange:   lipgloss.Color("#C2410C"),
	red:      lipgloss.Color("#B91C1C"),
}

// Theme holds the styles of the chat client.
type Theme struct {
	Warning lipgloss.Color
	Danger  lipgloss.Color

	TitleStyle       lipgloss.Style
	ActiveTabStyle   lipgloss.Style
	StatusBarStyle   lipgloss.Style
	ErrorStatusStyle lipgloss.Style
	SidebarStyle     lipgloss.Style
	InputStyle       lipgloss.Style
	MutedStyle       lipgloss.Style
	UserStyle        lipgloss.Style
	NoticeStyle      lipgloss.Style

	// 配额色带 / Quota usage bands: <50, 50-75, 75-90, >=90.
	BandOKStyle     lipgloss.Style
	BandNoticeStyle lipgloss.Style
	BandWarnStyle   lipgloss.Style
	BandDangerStyle lipgloss.Style
}

// DefaultTheme picks the dark or light theme from the terminal background.
func DefaultTheme() Theme {
	if lipgloss.HasDarkBackground() {
		return DarkTheme()
	}
	return LightTheme()
}

func DarkTheme() Theme { return newTheme(darkPalette) }

func LightTheme() Theme { return newTheme(lightPalette) }

func newTheme(p palette) Theme {
	fg := func(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }
	return Theme{
		Warning: p.orange,
		Danger:  p.red,

		TitleStyle: fg(p.brand).Bold(true),
		ActiveTabStyle: lipgloss.NewStyle().
			Foreground(p.onColor).
			Background(p.brand).
			Padding(0, 2).
			Bold(true),
		StatusBarStyle:   fg(p.fgDim).Background(p.statusBg),
		ErrorStatusStyle: fg(p.onColor).Background(p.errorBg),
		SidebarStyle: fg(p.fg).
			BorderLeft(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(p.border),
		InputStyle: fg(p.fg).
			BorderTop(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(p.border),
		MutedStyle: fg(p.muted),
		UserStyle:  fg(p.user).Bold(true),
		NoticeStyle: fg(p.fg).
			BorderLeft(true).
			BorderStyle(lipgloss.ThickBorder()).
			Padding(0, 1),

		BandOKStyle:     fg(p.green),
		BandNoticeStyle: fg(p.yellow),
		BandWarnStyle:   fg(p.orange),
		BandDangerStyle: fg(p.red),
	}
}
