package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"vkdump/pkg/auth"
	"vkdump/pkg/config"
	"vkdump/pkg/dumper"
	"vkdump/pkg/logger"
	"vkdump/pkg/vk"
)

var (
	// Dump command flags
	outputDir    string
	pageSize     int
	statsFrom    string
	includeStats bool
	accessToken  string
	tokenLabel   string
	maxRetries   int
	forceRestart bool
)

var dumpCmd = &cobra.Command{
	Use:   "dump <community>",
	Short: "Archive a community's content",
	Long: `Archive the content of a VK community.

The community can be given as a numeric id (123456, -123456 and
club123456 all work) or as a screen name (durov_fans).

The archive lands in <output>/club<ID>/ as one JSON file per entity.
Interrupted runs resume automatically; finished runs refetch listings
and pick up anything new, skipping everything already archived.`,
	Example: `  # Archive by screen name
  vkdump dump durov_fans

  # Archive by numeric id into a specific directory
  vkdump dump 123456 --output ~/archives

  # Include community statistics since a date (requires admin token)
  vkdump dump 123456 --stats-from 01/01/2020

  # Ignore the saved pagination position and sweep from the start
  vkdump dump 123456 --force-restart`,
	Args: cobra.ExactArgs(1),
	RunE: runDump,
}

func init() {
	rootCmd.AddCommand(dumpCmd)

	dumpCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory for archives (default: current directory)")
	dumpCmd.Flags().IntVar(&pageSize, "page-size", 0, "items per API page (default 100, max 1000)")
	dumpCmd.Flags().StringVar(&statsFrom, "stats-from", "", "fetch community statistics starting at DD/MM/YYYY")
	dumpCmd.Flags().BoolVar(&includeStats, "stats", false, "fetch community statistics (requires admin token)")
	dumpCmd.Flags().StringVar(&accessToken, "token", "", "VK access token (overrides stored tokens)")
	dumpCmd.Flags().StringVarP(&tokenLabel, "account", "a", "", "use a specific stored token")
	dumpCmd.Flags().IntVar(&maxRetries, "max-retries", 0, "maximum retry attempts for transient failures")
	dumpCmd.Flags().BoolVar(&forceRestart, "force-restart", false, "discard the saved pagination position")
}

func runDump(cmd *cobra.Command, args []string) error {
	identifier := normalizeIdentifier(args[0])

	flags := make(map[string]interface{})
	if accessToken != "" {
		flags["token"] = accessToken
	}
	if outputDir != "" {
		flags["output"] = outputDir
	}
	if pageSize > 0 {
		flags["page-size"] = pageSize
	}
	if statsFrom != "" {
		flags["stats-from"] = statsFrom
	}
	if maxRetries > 0 {
		flags["max-retries"] = maxRetries
	}
	if logLevel != "info" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if includeStats {
		cfg.Dump.IncludeStats = true
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	log := logger.GetLogger()
	log.WithField("version", version).Info("vkdump starting")

	if err := resolveToken(cfg, log); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := vk.NewClient(cfg, log)
	d := dumper.New(cfg, client, log)

	summary, err := d.Run(ctx, identifier, dumper.Options{ForceRestart: forceRestart})
	if err != nil {
		if ctx.Err() != nil {
			log.Warn("dump interrupted, run again to resume")
			return err
		}
		return err
	}

	summary.Log(log)
	return nil
}

// resolveToken fills cfg.API.AccessToken from the flag, configuration,
// or the stored token chain, in that order.
func resolveToken(cfg *config.Config, log logger.Logger) error {
	if cfg.API.AccessToken != "" {
		return nil
	}

	manager, err := auth.NewManager()
	if err != nil {
		return fmt.Errorf("failed to open token store: %w", err)
	}

	var token *auth.Token
	if tokenLabel != "" {
		token, err = manager.Retrieve(tokenLabel)
		if err != nil {
			return fmt.Errorf("no stored token %q, see 'vkdump auth list'", tokenLabel)
		}
	} else {
		token, err = manager.RetrieveDefault()
		if err != nil {
			return fmt.Errorf("no access token: store one with 'vkdump auth login', " +
				"set VKDUMP_ACCESS_TOKEN, or pass --token")
		}
	}

	cfg.API.AccessToken = token.AccessToken
	log.WithField("account", token.Label).Info("using stored token")
	return nil
}

// normalizeIdentifier strips the forms people paste: full URLs and the
// club/public prefixes all reduce to the bare id or screen name.
func normalizeIdentifier(arg string) string {
	id := strings.TrimSpace(arg)
	for _, prefix := range []string{"https://vk.com/", "http://vk.com/", "vk.com/"} {
		id = strings.TrimPrefix(id, prefix)
	}
	for _, prefix := range []string{"club", "public", "event"} {
		trimmed := strings.TrimPrefix(id, prefix)
		if trimmed != id && isDigits(trimmed) {
			return trimmed
		}
	}
	return id
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
