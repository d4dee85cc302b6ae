package cli

import (
	"fmt"
	"os/signal"
	"sync/atomic"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/seamchat/seam/internal/bridge"
	"github.com/seamchat/seam/internal/session"
)

func newTailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow a conversation timeline live",
		Args:  cobra.NoArgs,
		RunE:  runTail,
	}
	cmd.Flags().String("scope", "", "Conversation scope id")
	cmd.Flags().StringSlice("push-key", nil, "Push subscription keys (defaults to thread:<scope>)")
	_ = cmd.MarkFlagRequired("scope")
	return cmd
}

func runTail(cmd *cobra.Command, args []string) error {
	scopeID, _ := cmd.Flags().GetString("scope")
	pushKeys, _ := cmd.Flags().GetStringSlice("push-key")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	api, err := newAPIClient(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	transport, err := bridge.DialWS(ctx, cfg.Push.URL,
		bridge.WithHandshakeTimeout(cfg.Push.HandshakeTimeout))
	if err != nil {
		return fmt.Errorf("push transport: %w", err)
	}
	defer transport.Close()

	// Change notifications feed the view one at a time; a full buffer just
	// means a redraw is already due.
	changes := make(chan struct{}, 1)
	notify := func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	}
	var warn atomic.Value
	s := session.New(api, transport,
		session.WithPageSize(cfg.Timeline.PageSize),
		session.WithLocation(cfg.Location()),
		session.WithOnChange(notify),
		session.WithOnError(func(err error) {
			warn.Store(err.Error())
			notify()
		}),
	)
	defer s.Close()

	if err := s.Open(ctx, session.Scope{ID: scopeID, PushKeys: pushKeys}); err != nil {
		return err
	}

	model := newTailModel(scopeID, s, changes, transport.Done(), &warn)
	program := tea.NewProgram(model,
		tea.WithContext(ctx),
		tea.WithAltScreen(),
		tea.WithOutput(cmd.OutOrStdout()),
	)
	final, err := program.Run()
	if err != nil {
		// A delivered signal cancels the context and kills the program; that
		// is a clean shutdown, not a failure.
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	if m, ok := final.(*tailModel); ok && m.err != nil {
		return m.err
	}
	return nil
}
