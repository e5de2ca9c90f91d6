package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/moodjournal/insight-api/internal/model"
	"github.com/moodjournal/insight-api/internal/quota"
)

var (
	quotaUser string
	quotaTier string
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Inspect and adjust per-user daily quotas",
}

var quotaShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show a user's tier and today's usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ledger, closeFn, err := openLedger(ctx)
		if err != nil {
			return err
		}
		defer closeFn()
		return runQuotaShow(ctx, cmd.OutOrStdout(), ledger, quotaUser)
	},
}

var quotaSetTierCmd = &cobra.Command{
	Use:   "set-tier",
	Short: "Set a user's subscription tier",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ledger, closeFn, err := openLedger(ctx)
		if err != nil {
			return err
		}
		defer closeFn()
		if err := runQuotaSetTier(ctx, ledger, quotaUser, quotaTier); err != nil {
			return err
		}
		return runQuotaShow(ctx, cmd.OutOrStdout(), ledger, quotaUser)
	},
}

func openLedger(ctx context.Context) (*quota.Ledger, func(), error) {
	if err := cfg.Validate("quota"); err != nil {
		return nil, nil, err
	}
	if !cfg.Quota.Enabled {
		return nil, nil, eris.New("quota: enforcement is disabled (quota.enabled=false)")
	}
	limits, err := quota.ParseLimits(cfg.Quota.Limits)
	if err != nil {
		return nil, nil, err
	}
	st, err := openStore(ctx, cfg.Quota)
	if err != nil {
		return nil, nil, err
	}
	if m, ok := st.(migrator); ok {
		if err := m.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, nil, eris.Wrap(err, "quota: migrate store")
		}
	}
	return quota.NewLedger(st, limits), func() { _ = st.Close() }, nil
}

func runQuotaShow(ctx context.Context, w io.Writer, ledger *quota.Ledger, userID string) error {
	if userID == "" {
		return eris.New("quota: --user is required")
	}
	rec, err := ledger.Store().Usage(ctx, userID, ledger.Day())
	if err != nil {
		return eris.Wrap(err, "quota: read usage")
	}
	tier := model.ParseTier(string(rec.Tier))
	limit := ledger.Limits().For(tier)
	remaining := limit - rec.CountToday
	if remaining < 0 {
		remaining = 0
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "user\t%s\n", userID)
	fmt.Fprintf(tw, "day\t%s\n", ledger.Day())
	fmt.Fprintf(tw, "tier\t%s\n", tier)
	fmt.Fprintf(tw, "count\t%d\n", rec.CountToday)
	fmt.Fprintf(tw, "limit\t%d\n", limit)
	fmt.Fprintf(tw, "remaining\t%d\n", remaining)
	return tw.Flush()
}

func runQuotaSetTier(ctx context.Context, ledger *quota.Ledger, userID, tier string) error {
	if userID == "" {
		return eris.New("quota: --user is required")
	}
	t := model.Tier(tier)
	if !t.Valid() {
		return eris.Errorf("quota: unknown tier %q (want free, plus or premium)", tier)
	}
	if err := ledger.Store().SetTier(ctx, userID, t); err != nil {
		return eris.Wrap(err, "quota: set tier")
	}
	return nil
}

func init() {
	quotaCmd.PersistentFlags().StringVar(&quotaUser, "user", "", "user id")
	quotaSetTierCmd.Flags().StringVar(&quotaTier, "tier", "", "free, plus or premium")
	_ = quotaSetTierCmd.MarkFlagRequired("tier")
	quotaCmd.AddCommand(quotaShowCmd, quotaSetTierCmd)
	rootCmd.AddCommand(quotaCmd)
}
