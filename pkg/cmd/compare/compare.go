package compare

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/ohler55/ojg/oj"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/mpapenbr/kartlog-telemetry-go/log"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/cmd/util"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/config"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/provider"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/telemetry/align"
	"github.com/mpapenbr/kartlog-telemetry-go/pkg/telemetry/view"
)

const (
	formatCSV  = "csv"
	formatJSON = "json"
)

func NewCompareCmd() *cobra.Command {
	var sessionID int64
	cfg := config.Config{}
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "prints the telemetry of the selected laps on a common distance grid",
		Long: `Opens the session, selects its fastest valid lap and toggles the laps
given by --lap. Up to five laps can be selected at the same time.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Format != formatCSV && cfg.Format != formatJSON {
				return fmt.Errorf("unsupported format %q", cfg.Format)
			}
			if !(cfg.Step >= align.MinStep) {
				return fmt.Errorf("step must be at least %v, got %v", align.MinStep, cfg.Step)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("session") {
				cfg.SessionID = &sessionID
			}
			p, err := util.NewProvider(cmd.Context())
			if err != nil {
				return err
			}
			return compareLaps(cmd.Context(), p, &cfg, cmd.OutOrStdout())
		},
	}
	cmd.Flags().Int64Var(&sessionID, "session", 0,
		"session to analyze (default is the most recent session)")
	cmd.Flags().Int64SliceVar(&cfg.LapIDs, "lap", []int64{},
		"lap id to toggle, may be repeated")
	cmd.Flags().Float64Var(&cfg.Step, "step", align.DefaultStep,
		"grid spacing in meters")
	cmd.Flags().StringVar(&cfg.Format, "format", formatCSV,
		"output format (csv, json)")
	cmd.Flags().BoolVar(&cfg.ValidOnly, "valid-only", true,
		"offer only valid laps for selection")
	return cmd
}

//nolint:whitespace // readability
func compareLaps(
	ctx context.Context,
	p provider.Provider,
	cfg *config.Config,
	w io.Writer,
) error {
	logger := log.GetFromContext(ctx).Named("compare")
	v := view.New(p,
		view.WithValidOnly(cfg.ValidOnly),
		view.WithStep(cfg.Step),
		view.WithLogger(logger.Named("view")))
	defer v.Close()

	changes := v.Subscribe()
	go func() {
		for c := range changes {
			logger.Debug("view changed",
				log.String("kind", c.Kind.String()),
				log.Int64("session", c.SessionID),
				log.Int64("lap", c.LapID))
		}
	}()

	if err := v.Open(ctx, cfg.SessionID); err != nil {
		return err
	}
	for _, id := range cfg.LapIDs {
		if !v.Toggle(id) {
			logger.Warn("lap not toggled (unknown or selection full)", log.Int64("lap", id))
		}
	}
	if err := v.Wait(ctx); err != nil {
		return err
	}

	series := v.Series()
	for _, s := range series {
		if !s.Available {
			logger.Warn("no telemetry for lap", log.Int64("lap", s.LapID))
		}
	}
	lapIDs := lo.FilterMap(series, func(s view.SeriesInfo, _ int) (int64, bool) {
		return s.LapID, s.Available
	})
	switch cfg.Format {
	case formatJSON:
		return writeJSON(w, v.State().SessionID, cfg.Step, series, v.Grid())
	default:
		return writeCSV(w, lapIDs, v.Grid())
	}
}

func writeCSV(w io.Writer, lapIDs []int64, rows []align.Row) error {
	cols := align.Columns(lapIDs)
	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return err
	}
	for i := range rows {
		flat := rows[i].Flatten()
		record := lo.Map(cols, func(c string, _ int) string {
			if v, ok := flat[c].(float64); ok {
				return strconv.FormatFloat(v, 'f', -1, 64)
			}
			return ""
		})
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

//nolint:whitespace // readability
func writeJSON(
	w io.Writer,
	sessionID int64,
	step float64,
	series []view.SeriesInfo,
	rows []align.Row,
) error {
	doc := map[string]any{
		"session_id": sessionID,
		"step":       step,
		"laps": lo.Map(series, func(s view.SeriesInfo, _ int) any {
			return map[string]any{
				"lap_id":     s.LapID,
				"lap_number": s.LapNumber,
				"color":      s.Color,
				"samples":    s.Samples,
				"available":  s.Available,
			}
		}),
		"rows": lo.Map(rows, func(r align.Row, _ int) any {
			return r.Flatten()
		}),
	}
	_, err := io.WriteString(w, oj.JSON(doc, &oj.Options{Indent: 2, Sort: true})+"\n")
	return err
}
