package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmweis/zenoh-tailscale/internal/journal"
	"github.com/dmweis/zenoh-tailscale/internal/ui"
)

func statusCmd(o *runOptions) *cobra.Command {
	var (
		limit int
		plain bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the latest overlay session and recent lifecycle events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ui.ConfigureColor(os.Stdout, plain)

			path := o.statePath()
			if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintln(cmd.OutOrStdout(), ui.WarnMsg("No state journal at %s.", path))
				return nil
			}

			store, err := journal.Open(path)
			if err != nil {
				return err
			}
			defer store.Close()

			events, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return renderStatus(cmd.OutOrStdout(), events)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of events to show")
	cmd.Flags().BoolVar(&plain, "plain", false, "Disable colors")
	return cmd
}

// renderStatus prints the latest session-bearing event in detail, then the
// history table. events are newest first.
func renderStatus(w io.Writer, events []journal.Event) error {
	if len(events) == 0 {
		_, err := fmt.Fprintln(w, ui.WarnMsg("No session events recorded."))
		return err
	}

	latest := events[0]
	var b []byte
	b = fmt.Appendln(b, ui.InfoMsg("Last event: %s at %s", ui.EventKind(string(latest.Kind)), latest.At.Local().Format(time.RFC3339)))
	if ev, ok := lastSession(events); ok {
		b = fmt.Append(b, ui.KeyValues("  ",
			ui.KV("session", ui.Accent(orDash(ev.SelfID))),
			ui.KV("self", ui.List(ev.Snapshot.SelfAddrs)),
			ui.KV("peers", ui.List(ev.Snapshot.PeerIDs())),
			ui.KV("listen", ui.List(ev.Listen)),
			ui.KV("connect", ui.List(ev.Connect)),
		))
	}
	b = fmt.Appendln(b)

	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		rows = append(rows, []string{
			ev.At.Local().Format(time.DateTime),
			ui.EventKind(string(ev.Kind)),
			orDash(ev.SelfID),
			strconv.Itoa(len(ev.Snapshot.Peers)),
			strconv.Itoa(len(ev.Listen)),
			strconv.Itoa(len(ev.Connect)),
		})
	}
	b = fmt.Appendln(b, ui.Table([]string{"TIME", "KIND", "SESSION", "PEERS", "LISTEN", "CONNECT"}, rows))

	_, err := w.Write(b)
	return err
}

// lastSession returns the newest event that opened a session.
func lastSession(events []journal.Event) (journal.Event, bool) {
	for _, ev := range events {
		if ev.Kind != journal.KindStop {
			return ev, true
		}
	}
	return journal.Event{}, false
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
