package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/soyeahso/parley/internal/config"
	"github.com/soyeahso/parley/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show Parley status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Parley %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Fprintf(out, "Config:    %s\n", paths.Config)
			fmt.Fprintf(out, "Data:      %s\n", paths.Data)
			fmt.Fprintf(out, "Logs:      %s\n", paths.Logs)
			fmt.Fprintln(out)

			if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
				fmt.Fprintln(out, "Config:    not found (using defaults)")
			}
			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(out, "Config:    error loading: %v\n", err)
				return nil
			}

			fmt.Fprintf(out, "Server:    port=%d bind=%s\n", cfg.Server.Port, cfg.Server.Bind)

			providers := []string{cfg.LLM.Provider}
			for _, fb := range cfg.LLM.Fallbacks {
				providers = append(providers, fb.Provider)
			}
			model := cfg.LLM.Model
			if model == "" {
				model = "(provider default)"
			}
			fmt.Fprintf(out, "LLM:       %s model=%s\n", strings.Join(providers, " -> "), model)

			switch cfg.Store.Driver {
			case "sqlite":
				path := cfg.Store.Path
				if path == "" {
					path = paths.Database()
				}
				fmt.Fprintf(out, "Store:     sqlite path=%s\n", path)
			default:
				fmt.Fprintf(out, "Store:     %s\n", cfg.Store.Driver)
			}
			fmt.Fprintf(out, "Sessions:  retainEnded=%v defaults=%s/%s/%ds\n",
				cfg.Session.ShouldRetainEnded(),
				cfg.Practice.DefaultUserName,
				cfg.Practice.DefaultDifficulty,
				cfg.Practice.DefaultDurationSeconds)
			fmt.Fprintf(out, "Timeouts:  reply=%s suggestions=%s\n",
				cfg.Practice.GenerationTimeout(), cfg.Practice.SuggestionTimeout())

			if cfg.Telemetry.Enabled {
				dir := cfg.Telemetry.Dir
				if dir == "" {
					dir = paths.Logs
				}
				fmt.Fprintf(out, "Telemetry: enabled dir=%s\n", dir)
			} else {
				fmt.Fprintln(out, "Telemetry: disabled")
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s: %s\n", issue.Path, issue.Message)
				}
			}

			return nil
		},
	}

	return cmd
}
