package colours

import "github.com/fatih/color"

// Color scheme for the CLI
var (
	Title   = color.New(color.FgCyan, color.Bold)
	Author  = color.New(color.FgMagenta) // chapter titles and voice names
	Prompt  = color.New(color.FgGreen, color.Bold)
	Error   = color.New(color.FgRed, color.Bold)
	Success = color.New(color.FgGreen)
	Info    = color.New(color.FgBlue)
	Warning = color.New(color.FgYellow)

	// Muted is for offsets and other detail next to read-aloud text.
	Muted = color.New(color.FgHiBlack)
	// Speech echoes text spoken by engines without audio.
	Speech = color.New(color.FgYellow, color.Italic)
)
