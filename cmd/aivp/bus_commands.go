package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"aivp/internal/bus"
	"aivp/internal/runtimedb"
)

type ackOutput struct {
	EventID  string       `json:"event_id"`
	AckState bus.AckState `json:"ack_state"`
	Applied  bool         `json:"applied"`
}

func newBusCommand(ctx *commandContext) *cobra.Command {
	busCmd := &cobra.Command{
		Use:   "bus",
		Short: "Persisted event bus operations",
	}
	busCmd.AddCommand(newBusPublishCommand(ctx))
	busCmd.AddCommand(newBusGetCommand(ctx))
	busCmd.AddCommand(newBusPendingCommand(ctx))
	busCmd.AddCommand(newBusAckCommand(ctx))
	busCmd.AddCommand(newBusStatsCommand(ctx))
	return busCmd
}

func (c *commandContext) openBus(cmd *cobra.Command) (*bus.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	return bus.Open(cmd.Context(), cfg.Paths.DBPath,
		bus.WithLogger(logger),
		bus.WithMigrationVersion(cfg.Storage.MigrationVersion),
	)
}

func newBusPublishCommand(ctx *commandContext) *cobra.Command {
	var (
		eventType     string
		source        string
		payloadRaw    string
		correlationID string
		eventID       string
	)
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Persist a new pending event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := parsePayload(payloadRaw)
			if err != nil {
				return err
			}
			env := bus.NewEnvelope(eventType, source, payload)
			env.CorrelationID = strings.TrimSpace(correlationID)
			if id := strings.TrimSpace(eventID); id != "" {
				env.EventID = id
			}
			if err := env.Validate(); err != nil {
				return err
			}

			store, err := ctx.openBus(cmd)
			if err != nil {
				return err
			}
			event, err := store.Publish(cmd.Context(), env)
			if err != nil {
				return err
			}
			return writeJSON(cmd, event)
		},
	}
	cmd.Flags().StringVar(&eventType, "type", "", "Event type (e.g. trigger.schedule)")
	cmd.Flags().StringVar(&source, "source", "", "Producer name")
	cmd.Flags().StringVar(&payloadRaw, "payload", "{}", "JSON object payload")
	cmd.Flags().StringVar(&correlationID, "correlation-id", "", "Correlation identifier")
	cmd.Flags().StringVar(&eventID, "event-id", "", "Explicit event id (default random UUID)")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func parsePayload(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}
	payload, err := bus.DecodePayload([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: payload must be a JSON object: %v", bus.ErrInvalidEnvelope, err)
	}
	return payload, nil
}

func newBusGetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "get <event-id>",
		Short: "Show a stored event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openBus(cmd)
			if err != nil {
				return err
			}
			event, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if event == nil {
				return fmt.Errorf("event %s not found", args[0])
			}
			return writeJSON(cmd, event)
		},
	}
}

func newBusPendingCommand(ctx *commandContext) *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List pending events, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("limit") {
				limit = cfg.Bus.ListLimit
			}
			store, err := ctx.openBus(cmd)
			if err != nil {
				return err
			}
			events, err := store.ListPending(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, events)
			}
			out := cmd.OutOrStdout()
			if len(events) == 0 {
				fmt.Fprintln(out, "No pending events")
				return nil
			}
			fmt.Fprint(out, pendingTable(events, time.Now()).render())
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum events to list (default from bus.list_limit)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	return cmd
}

func pendingTable(events []bus.PersistedEvent, now time.Time) tableView {
	rows := make([][]string, 0, len(events))
	for _, event := range events {
		rows = append(rows, []string{
			event.EventID,
			event.EventType,
			event.Source,
			event.CreatedAt.Format(runtimedb.TimestampLayout),
			formatAge(now, event.CreatedAt),
			valueOrDash(event.CorrelationID),
		})
	}
	return tableView{
		headers: []string{"Event ID", "Type", "Source", "Created", "Age", "Correlation"},
		rows:    rows,
		aligns:  []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	}
}

func newBusAckCommand(ctx *commandContext) *cobra.Command {
	var (
		nack     bool
		stateArg string
	)
	cmd := &cobra.Command{
		Use:   "ack <event-id>",
		Short: "Acknowledge a pending event (or reject it with --nack)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if nack {
				stateArg = string(bus.AckNacked)
			}
			state, err := bus.ParseAckState(stateArg)
			if err != nil {
				return err
			}
			store, err := ctx.openBus(cmd)
			if err != nil {
				return err
			}
			applied, err := store.Acknowledge(cmd.Context(), args[0], state)
			if err != nil {
				return err
			}
			code := exitOK
			if !applied {
				code = exitAckNotApplied
			}
			return writeJSONWithCode(cmd, ackOutput{EventID: args[0], AckState: state, Applied: applied}, code)
		},
	}
	cmd.Flags().StringVar(&stateArg, "state", string(bus.AckAcked), "Terminal state to apply (acked or nacked)")
	cmd.Flags().BoolVar(&nack, "nack", false, "Shorthand for --state nacked")
	return cmd
}

func newBusStatsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count events per ack state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openBus(cmd)
			if err != nil {
				return err
			}
			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, stats)
			}
			fmt.Fprint(cmd.OutOrStdout(), statsTable(stats).render())
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output JSON")
	return cmd
}

func statsTable(stats map[bus.AckState]int) tableView {
	rows := make([][]string, 0, len(bus.AckStates))
	total := 0
	for _, state := range bus.AckStates {
		count := stats[state]
		total += count
		rows = append(rows, []string{humanLabel(string(state)), strconv.Itoa(count)})
	}
	return tableView{
		headers: []string{"State", "Count"},
		rows:    rows,
		aligns:  []columnAlignment{alignLeft, alignRight},
		footer:  []string{"Total", strconv.Itoa(total)},
	}
}

func valueOrDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func formatAge(now, then time.Time) string {
	if then.IsZero() {
		return "-"
	}
	age := now.Sub(then).Truncate(time.Second)
	if age < 0 {
		age = 0
	}
	return age.String()
}
