package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/lunarhue/sidekick/internal/config"
	"github.com/lunarhue/sidekick/internal/format"
	"github.com/lunarhue/sidekick/internal/prefs"
	"github.com/lunarhue/sidekick/internal/tools"
)

func statusCmd() *cobra.Command {
	var hoursBack int
	var includeProcessed bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the prioritized attention report from the local store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(hoursBack, includeProcessed)
		},
	}
	cmd.Flags().IntVar(&hoursBack, "hours", 24, "look-back window in hours")
	cmd.Flags().BoolVar(&includeProcessed, "all", false, "include items already handled this session")
	return cmd
}

func runStatus(hoursBack int, includeProcessed bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	client, err := newSlackClient(ctx, cfg)
	if err != nil {
		return err
	}

	resolver := format.NewResolver(st, entityCacheTTL(cfg))
	prefStore := prefs.NewStorage(config.ExpandHome(cfg.Storage.PreferencesDir))
	svc := tools.NewStatusService(st, resolver, prefStore, client.UserID(), cfg.Slack.LinkHost)

	report, err := svc.Compose(ctx, tools.ComposeOptions{
		HoursBack:        hoursBack,
		IncludeProcessed: includeProcessed,
	}, nil)
	if err != nil {
		return err
	}

	fmt.Printf("Status as of %s (last %dh)\n\n", report.GeneratedAt.Format(time.RFC822), hoursBack)
	if len(report.Items) == 0 {
		fmt.Println("Nothing needs your attention.")
	}
	for _, item := range report.Items {
		who := item.UserName
		if who == "" {
			who = item.UserID
		}
		line := fmt.Sprintf("[%s] %s — %s: %s", item.Priority, item.ChannelName, who, item.Text)
		fmt.Println(runewidth.Truncate(line, 120, "..."))
		if item.Reason != "" {
			fmt.Printf("         %s\n", item.Reason)
		}
	}
	if len(report.Reminders) > 0 {
		fmt.Printf("\nReminders (%d pending):\n", len(report.Reminders))
		for _, r := range report.Reminders {
			when := "no due time"
			if r.Time != nil {
				when = r.Time.Format(time.RFC822)
			}
			fmt.Printf("  - %s (%s)\n", runewidth.Truncate(r.Text, 100, "..."), when)
		}
	}
	return nil
}
