// Package cli maps argv onto a vochat command through a cobra command tree.
package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// Command names one top-level vochat action.
type Command string

const (
	CommandChat    Command = "chat"
	CommandAsk     Command = "ask"
	CommandDoctor  Command = "doctor"
	CommandDevices Command = "devices"
	CommandStatus  Command = "status"
	CommandListen  Command = "listen"
	CommandStop    Command = "stop"
	CommandSend    Command = "send"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

// Parsed is the resolved invocation.
type Parsed struct {
	Command    Command
	ConfigPath string
	EnvFile    string
	// Text is the message for ask and send.
	Text     string
	ShowHelp bool
	// Help holds rendered usage when ShowHelp is set.
	Help string
}

// Parse resolves args (without the program name). Any returned error is a usage error.
func Parse(args []string) (Parsed, error) {
	var parsed Parsed
	root := newRoot(&parsed)
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		return Parsed{}, err
	}
	return parsed, nil
}

// HelpText renders top-level usage.
func HelpText() string {
	parsed, err := Parse([]string{"--help"})
	if err != nil {
		return err.Error()
	}
	return parsed.Help
}

func newRoot(parsed *Parsed) *cobra.Command {
	var showVersion bool

	root := &cobra.Command{
		Use:   "vochat",
		Short: "Voice chat in the terminal",
		Long: `vochat listens to your microphone, sends what you say (or type) to a chat
backend, and reads the reply aloud.

Run without a command to open the widget.`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(*cobra.Command, []string) error {
			if showVersion {
				parsed.Command = CommandVersion
				return nil
			}
			parsed.Command = CommandChat
			return nil
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return err })
	root.SetHelpFunc(func(c *cobra.Command, _ []string) {
		parsed.Command = CommandHelp
		parsed.ShowHelp = true
		parsed.Help = renderHelp(c)
	})

	root.PersistentFlags().StringVar(&parsed.ConfigPath, "config", "", "config file path (default $XDG_CONFIG_HOME/vochat/config.jsonc)")
	root.PersistentFlags().StringVar(&parsed.EnvFile, "env-file", "", "dotenv file with API keys (default ./.env when present)")
	root.Flags().BoolVar(&showVersion, "version", false, "print version information")

	root.AddCommand(
		simple(parsed, CommandChat, "Open the voice chat widget"),
		withText(parsed, CommandAsk, "Send one message, print and speak the reply"),
		simple(parsed, CommandDoctor, "Run configuration and environment checks"),
		simple(parsed, CommandDevices, "List audio input sources"),
		simple(parsed, CommandStatus, "Print the running widget's activity"),
		simple(parsed, CommandListen, "Start listening in the running widget"),
		simple(parsed, CommandStop, "Stop listening in the running widget"),
		withText(parsed, CommandSend, "Send a message through the running widget"),
		simple(parsed, CommandVersion, "Print version information"),
	)
	return root
}

func simple(parsed *Parsed, command Command, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(command),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			parsed.Command = command
			return nil
		},
	}
}

func withText(parsed *Parsed, command Command, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(command) + " <text...>",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			text := strings.TrimSpace(strings.Join(args, " "))
			if text == "" {
				return fmt.Errorf("%s requires non-empty text", command)
			}
			parsed.Command = command
			parsed.Text = text
			return nil
		},
	}
}

func renderHelp(c *cobra.Command) string {
	var b strings.Builder
	if c.Long != "" {
		b.WriteString(c.Long)
		b.WriteString("\n\n")
	} else if c.Short != "" {
		b.WriteString(c.Short)
		b.WriteString("\n\n")
	}
	b.WriteString(c.UsageString())
	return b.String()
}
