package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dkeye/Broadcast/internal/app"
	"github.com/dkeye/Broadcast/internal/config"
)

const participantsTimeout = 5 * time.Second

func newParticipantsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "participants",
		Short: "List the participants currently joined to the relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.DecodeClient(v)
			if err != nil {
				return err
			}
			endpoint, err := participantsURL(cfg.ServerURL)
			if err != nil {
				return err
			}
			snap, err := fetchParticipants(cmd.Context(), endpoint)
			if err != nil {
				return err
			}
			renderParticipants(cmd.OutOrStdout(), snap)
			return nil
		},
	}
}

// participantsURL maps the signaling socket URL onto the HTTP listing route
// of the same server.
func participantsURL(signalURL string) (string, error) {
	u, err := url.Parse(signalURL)
	if err != nil {
		return "", fmt.Errorf("server url: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("server url: unsupported scheme %q", u.Scheme)
	}
	u.Path = "/api/participants"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

func fetchParticipants(ctx context.Context, endpoint string) (app.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, participantsTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return app.Snapshot{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return app.Snapshot{}, fmt.Errorf("failed to fetch participants: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return app.Snapshot{}, fmt.Errorf("participants: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var snap app.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return app.Snapshot{}, fmt.Errorf("participants: decode: %w", err)
	}
	return snap, nil
}

func renderParticipants(w io.Writer, snap app.Snapshot) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Socket", "Name", "Role"})
	for _, e := range snap.Participants {
		name, role := "", "spectator"
		if e.Participant != nil {
			name = e.Participant.Label
			if e.Participant.IsPresenter {
				role = "presenter"
			}
		}
		t.AppendRow(table.Row{e.SocketID, name, role})
	}
	t.AppendFooter(table.Row{"", "Total", len(snap.Participants)})
	t.SetStyle(table.StyleLight)
	t.Render()
}
