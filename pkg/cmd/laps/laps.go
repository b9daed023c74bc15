package laps

import (
	"context"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/mpapenbr/kartlog-telemetry-go/log"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/cmd/util"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/config"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/model"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/provider"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/telemetry/consistency"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/telemetry/selection"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/telemetry/view"
)

func NewLapsCmd() *cobra.Command {
	var sessionID int64
	cfg := config.Config{}
	cmd := &cobra.Command{
		Use:   "laps",
		Short: "lists the laps of a session with lap time statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("session") {
				cfg.SessionID = &sessionID
			}
			p, err := util.NewProvider(cmd.Context())
			if err != nil {
				return err
			}
			return listLaps(cmd.Context(), p, &cfg, cmd.OutOrStdout())
		},
	}
	cmd.Flags().Int64Var(&sessionID, "session", 0,
		"session to list (default is the most recent session)")
	cmd.Flags().BoolVar(&cfg.ValidOnly, "valid-only", true,
		"list only valid laps")
	return cmd
}

//nolint:whitespace // readability
func listLaps(
	ctx context.Context,
	p provider.Provider,
	cfg *config.Config,
	w io.Writer,
) error {
	logger := log.GetFromContext(ctx).Named("laps")
	var sessions []*model.Session
	if cfg.SessionID == nil {
		var err error
		if sessions, err = p.ListSessions(ctx); err != nil {
			return err
		}
	}
	sessionID, ok := selection.ResolveSession(cfg.SessionID, sessions)
	if !ok {
		return view.ErrNoSession
	}
	laps, err := p.ListLaps(ctx, sessionID, cfg.ValidOnly)
	if err != nil {
		logger.Error("could not load laps",
			log.Int64("session", sessionID), log.ErrorField(err))
		return err
	}
	laps = slices.Clone(laps)
	slices.SortStableFunc(laps, func(a, b *model.Lap) int {
		return int(a.LapNumber - b.LapNumber)
	})
	fastest := selection.FastestValid(laps)

	fmt.Fprintf(w, "Session %d\n\n", sessionID)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLAP\tTIME\tVALID\tTELEMETRY\t")
	for _, l := range laps {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\n",
			l.ID,
			l.LapNumber,
			l.LapTimeString(),
			yesNo(l.Valid),
			yesNo(l.HasDetailedTelemetry),
			lo.Ternary(fastest != nil && fastest.ID == l.ID, "fastest", ""))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	writeSummary(w, consistency.Summarize(laps))
	return nil
}

func writeSummary(w io.Writer, s consistency.Summary) {
	fmt.Fprintln(w)
	if s.TotalLaps == 0 {
		fmt.Fprintln(w, "No valid laps")
		return
	}
	best := model.Lap{LapTimeMs: s.BestLapTimeMs}
	avg := model.Lap{LapTimeMs: s.AverageLapTimeMs}
	fmt.Fprintf(w, "Laps:        %d\n", s.TotalLaps)
	fmt.Fprintf(w, "Best:        %s\n", best.LapTimeString())
	fmt.Fprintf(w, "Average:     %s\n", avg.LapTimeString())
	fmt.Fprintf(w, "Consistency: %.2f\n", s.ConsistencyScore)
	fmt.Fprintf(w, "Trend:       %s\n", s.Trend)
}

func yesNo(b bool) string {
	return lo.Ternary(b, "yes", "no")
}
