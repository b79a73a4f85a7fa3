package cli

import (
	"sort"

	"github.com/spf13/cobra"
)

// addHelpCommands adds help and documentation commands.
func addHelpCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newCommandsCmd())
	rootCmd.AddCommand(newQuickstartCmd())
}

// commandCategories groups top-level commands for the listing.
var commandCategories = []struct {
	name     string
	commands []string
}{
	{"Calendar & Data", []string{"events", "prices", "signals"}},
	{"Analysis", []string{"stats", "predict", "classify", "release"}},
	{"Trading", []string{"monitor", "risk", "mode"}},
	{"Utility", []string{"config", "version", "commands", "quickstart"}},
}

func newCommandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List all commands by category",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			root := cmd.Root()

			if output.IsJSON() {
				out := make(map[string][]string)
				for _, cat := range commandCategories {
					out[cat.name] = cat.commands
				}
				return output.JSON(out)
			}

			output.Bold("Macro Trader Commands")
			output.Println()
			for _, cat := range commandCategories {
				output.Bold("%s", cat.name)
				for _, name := range cat.commands {
					sub, _, err := root.Find([]string{name})
					if err != nil || sub == root {
						continue
					}
					output.Printf("  %-12s %s\n", output.Cyan(name), sub.Short)
					children := make([]string, 0, len(sub.Commands()))
					for _, c := range sub.Commands() {
						children = append(children, c.Name())
					}
					sort.Strings(children)
					for _, c := range children {
						child, _, _ := sub.Find([]string{c})
						output.Printf("    %s %s\n", output.DimText(name+" "+c), child.Short)
					}
				}
				output.Println()
			}
			return nil
		},
	}
}

func newQuickstartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quickstart",
		Short: "New user guide",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			output.Bold("Macro Trader - Quick Start Guide")
			output.Println()

			steps := []struct {
				title string
				desc  string
				cmd   string
			}{
				{"Find your configuration", "config.toml is created with defaults on first run.", "trader config path"},
				{"Load calendar history", "Import past releases with forecast, previous and actual values.", "trader events import calendar.csv"},
				{"Load hourly prices", "Bars feed pip statistics, technicals and paper fills.", "trader prices import USDJPY H1 usdjpy_h1.csv"},
				{"Inspect an event", "Check how a release has resolved historically.", "trader stats \"Non-Farm Payrolls\" --currency USD"},
				{"Try a prediction", "Score an upcoming release and see the proposed signal.", "trader predict \"Non-Farm Payrolls\" -c USD --forecast 200 --previous 180"},
				{"Run the monitor", "Signals are logged in SIGNAL_ONLY mode.", "trader monitor"},
				{"Go directional", "Orders are placed after the risk guardian clears them.", "trader mode set directional"},
			}

			for i, s := range steps {
				output.Printf("%s Step %d: %s\n", output.Cyan(">"), i+1, output.BoldText(s.title))
				output.Printf("  %s\n", s.desc)
				output.Printf("  %s\n\n", output.DimText(s.cmd))
			}

			output.Bold("Important Notes")
			output.Printf("  %s Start with the paper broker and SIGNAL_ONLY mode\n", output.Yellow("!"))
			output.Printf("  %s Review [risk] limits in config.toml before going directional\n", output.Yellow("!"))
			output.Printf("  %s Keep gateway keys in .env next to config.toml\n", output.Yellow("!"))
			return nil
		},
	}
}
