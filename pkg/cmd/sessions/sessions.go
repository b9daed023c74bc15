package sessions

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/mpapenbr/kartlog-telemetry-go/log"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/cmd/util"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/model"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/provider"
)

func NewSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "lists the sessions, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := util.NewProvider(cmd.Context())
			if err != nil {
				return err
			}
			return listSessions(cmd.Context(), p, cmd.OutOrStdout())
		},
	}
	return cmd
}

func listSessions(ctx context.Context, p provider.Provider, w io.Writer) error {
	logger := log.GetFromContext(ctx).Named("sessions")
	sessions, err := p.ListSessions(ctx)
	if err != nil {
		logger.Error("could not load sessions", log.ErrorField(err))
		return err
	}
	logger.Debug("got sessions", log.Int("count", len(sessions)))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTRACK\tTYPE\tLAPS\tBEST")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n",
			s.ID,
			s.SessionDate,
			s.DisplayName(),
			lo.Ternary(s.SessionType == "", "-", s.SessionType),
			lo.FromPtrOr(s.TotalLaps, 0),
			bestLap(s))
	}
	return tw.Flush()
}

func bestLap(s *model.Session) string {
	if s.BestLapTimeMs == nil {
		return "-"
	}
	l := model.Lap{LapTimeMs: *s.BestLapTimeMs}
	return l.LapTimeString()
}
