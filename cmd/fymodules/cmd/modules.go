package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vapvarun/fymodules"
)

// NewListCommand creates the list command.
func NewListCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every module with its state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts.configPath, cmd.ErrOrStderr(), fymodules.AllowAll)
			if err != nil {
				return err
			}
			defer a.Close()

			modules, err := a.manager.ListModules(cmd.Context(), operator)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), modules)
			}
			return printModules(cmd.OutOrStdout(), modules)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

// NewEnableCommand creates the enable command.
func NewEnableCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "enable <module>",
		Short: "Enable a module",
		Long: `Enable turns a module on. Every module it depends on must already be
enabled. A module whose activation fails stays enabled and is reported as
quarantined.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return toggle(cmd, opts, args[0], true)
		},
	}
}

// NewDisableCommand creates the disable command.
func NewDisableCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "disable <module>",
		Short: "Disable a module",
		Long:  `Disable turns a module off. No enabled module may depend on it.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return toggle(cmd, opts, args[0], false)
		},
	}
}

func toggle(cmd *cobra.Command, opts *rootOptions, id string, enabled bool) error {
	a, err := newApp(cmd.Context(), opts.configPath, cmd.ErrOrStderr(), fymodules.AllowAll)
	if err != nil {
		return err
	}
	defer a.Close()

	var res fymodules.Result
	if enabled {
		res, err = a.manager.EnableModule(cmd.Context(), id, operator)
	} else {
		res, err = a.manager.DisableModule(cmd.Context(), id, operator)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	state := "disabled"
	if res.Enabled {
		state = "enabled"
	}
	switch {
	case !res.Changed:
		fmt.Fprintf(out, "%s is already %s\n", id, state)
	case res.Warning != nil:
		fmt.Fprintf(out, "%s enabled with errors: %s\n", id, res.Warning.Message)
	default:
		fmt.Fprintf(out, "%s %s\n", id, state)
	}
	return nil
}

// NewSettingsCommand creates the settings command.
func NewSettingsCommand(opts *rootOptions) *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "settings <module> [key=value ...]",
		Short: "Show or change module settings",
		Long: `Settings prints the resolved settings of a module. Given key=value pairs
it updates them; values are parsed as JSON when possible and as plain
strings otherwise. --reset restores every default.`,
		Example: `  fymodules settings hour-tracker
  fymodules settings hour-tracker target_hours=120 categories='["client","peer"]'
  fymodules settings hour-tracker --reset`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if reset && len(args) > 1 {
				return fmt.Errorf("--reset takes no key=value pairs")
			}
			values, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), opts.configPath, cmd.ErrOrStderr(), fymodules.AllowAll)
			if err != nil {
				return err
			}
			defer a.Close()

			id := args[0]
			var settings fymodules.Settings
			switch {
			case reset:
				settings, err = a.manager.ResetSettings(cmd.Context(), id, operator)
			case len(values) > 0:
				settings, err = a.manager.UpdateSettings(cmd.Context(), id, operator, values)
			default:
				var st fymodules.ModuleStatus
				st, err = a.manager.ModuleStatus(cmd.Context(), id, operator)
				settings = st.Settings
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), settings)
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "restore the default settings")
	return cmd
}

func parseAssignments(args []string) (map[string]any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	values := make(map[string]any, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid setting %q, expected key=value", arg)
		}
		values[key] = parseValue(raw)
	}
	return values, nil
}

func parseValue(raw string) any {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || dec.More() {
		return raw
	}
	return v
}

func printModules(w io.Writer, modules []fymodules.ModuleStatus) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATE\tDEPENDS ON\tNOTE")
	for _, m := range modules {
		state := "disabled"
		switch {
		case m.Errored():
			state = "errored"
		case m.Enabled:
			state = "enabled"
		}
		deps := strings.Join(m.Dependencies, ",")
		if deps == "" {
			deps = "-"
		}
		note := ""
		switch {
		case m.LastError != nil:
			note = m.LastError.Message
		case len(m.MissingDependencies) > 0 && !m.Enabled:
			note = "needs " + strings.Join(m.MissingDependencies, ", ")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", m.ID, m.DisplayName(), state, deps, note)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	_, err := buf.WriteTo(w)
	return err
}
