package main

import (
	"text/template"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	helpHeaderStyle = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	helpCmdStyle    = lipgloss.NewStyle().Foreground(colorPrimaryLight)
)

// commandGroups orders the root command listing. Commands not named here
// land under "Other Commands".
var commandGroups = []struct {
	id, title string
	commands  []string
}{
	{"records", "Field Work:", []string{"lead", "appt"}},
	{"account", "Account & Sync:", []string{"auth", "sync", "status"}},
	{"data", "Data:", []string{"export", "import", "profiles"}},
	{"tools", "Integrations:", []string{"serve", "mcp"}},
}

// envVars lists the settings that can come from the environment, shown
// under the root command's help.
var envVars = [][2]string{
	{"CANVASS_PROFILE", "local profile name"},
	{"CANVASS_DB_PATH", "local database path"},
	{"CANVASS_REMOTE_URL", "document server URL"},
	{"CANVASS_REMOTE_DIR", "file-backed document store"},
	{"CANVASS_API_KEY", "document server API key"},
	{"CANVASS_JWT_SECRET", "signs local session tokens"},
	{"CANVASS_PASSWORD", "password for auth commands"},
	{"CANVASS_SYNC_INTERVAL", "periodic sync interval (e.g. 5m)"},
}

var helpTemplateFuncs = template.FuncMap{
	"header": func(s string) string {
		if isTTY() {
			return helpHeaderStyle.Render(s)
		}
		return s
	},
	"cmd": func(s string) string {
		if isTTY() {
			return helpCmdStyle.Render(s)
		}
		return s
	},
	"muted": func(s string) string {
		if isTTY() {
			return mutedStyle.Render(s)
		}
		return s
	},
	"envVars": func() [][2]string { return envVars },
}

const helpTemplate = `{{with .Long}}{{. | trimTrailingWhitespaces}}

{{end}}{{if or .Runnable .HasSubCommands}}{{header "Usage:"}}
  {{cmd .CommandPath}}{{if .HasAvailableSubCommands}} {{muted "[command]"}}{{end}}{{if .HasAvailableFlags}} {{muted "[flags]"}}{{end}}

{{end}}{{if gt (len .Aliases) 0}}{{header "Aliases:"}}
  {{.NameAndAliases}}

{{end}}{{if .HasAvailableSubCommands}}{{$cmds := .Commands}}{{if eq (len .Groups) 0}}{{header "Commands:"}}
{{range $cmds}}{{if .IsAvailableCommand}}  {{cmd (rpad .Name .NamePadding)}} {{.Short}}
{{end}}{{end}}
{{else}}{{range $group := .Groups}}{{header .Title}}
{{range $cmds}}{{if (and (eq .GroupID $group.ID) .IsAvailableCommand)}}  {{cmd (rpad .Name .NamePadding)}} {{.Short}}
{{end}}{{end}}
{{end}}{{if not .AllChildCommandsHaveGroup}}{{header "Other Commands:"}}
{{range $cmds}}{{if (and (eq .GroupID "") .IsAvailableCommand)}}  {{cmd (rpad .Name .NamePadding)}} {{.Short}}
{{end}}{{end}}
{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}{{header "Flags:"}}
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}{{if .HasAvailableInheritedFlags}}{{header "Global Flags:"}}
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}{{if not .HasParent}}{{header "Environment:"}}
{{range envVars}}  {{cmd (rpad (index . 0) 22)}} {{index . 1}}
{{end}}
{{end}}{{if .HasAvailableSubCommands}}{{muted "Use"}} {{cmd (printf "%s [command] --help" .CommandPath)}} {{muted "for more information."}}
{{end}}`

// initHelp groups the root commands and installs the styled help template
// on every command.
func initHelp(root *cobra.Command) {
	for name, fn := range helpTemplateFuncs {
		cobra.AddTemplateFunc(name, fn)
	}

	byName := make(map[string]*cobra.Command)
	for _, c := range root.Commands() {
		byName[c.Name()] = c
	}
	for _, g := range commandGroups {
		root.AddGroup(&cobra.Group{ID: g.id, Title: g.title})
		for _, name := range g.commands {
			if c, ok := byName[name]; ok {
				c.GroupID = g.id
			}
		}
	}

	applyHelpTemplate(root)
}

func applyHelpTemplate(cmd *cobra.Command) {
	cmd.SetHelpTemplate(helpTemplate)
	for _, sub := range cmd.Commands() {
		applyHelpTemplate(sub)
	}
}
