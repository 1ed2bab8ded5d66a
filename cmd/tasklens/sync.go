package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/astromechza/tasklens-sync/pkg/docid"
	"github.com/astromechza/tasklens-sync/pkg/protocol"
	"github.com/astromechza/tasklens-sync/pkg/replica"
	"github.com/astromechza/tasklens-sync/pkg/seal"
	"github.com/astromechza/tasklens-sync/pkg/storage"
	"github.com/astromechza/tasklens-sync/pkg/syncclient"
)

const secretEnv = "TASKLENS_SECRET"

func syncCmd(ws *workspace) *cobra.Command {
	var (
		server, secret     string
		interval, duration time.Duration
	)
	cmd := &cobra.Command{
		Use:   "sync <url>",
		Short: "Keep a document in sync with other devices through a sync server",
		Long: "Connects to the server and exchanges encrypted changes until interrupted. Devices sharing the same secret\n" +
			"phrase join the same room. An unknown document is joined empty and filled from the room.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv(secretEnv)
			}
			if secret == "" {
				return fmt.Errorf("a --secret or $%s is required", secretEnv)
			}
			key, err := seal.DeriveKey(secret)
			if err != nil {
				return err
			}
			id, err := docid.ParseAny(args[0])
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			ds, closer, err := ws.open(ctx)
			if err != nil {
				return err
			}
			defer closer()
			s := &syncSession{ws: ws, ds: ds, key: key}
			if err := s.setup(ctx, id, server); err != nil {
				return err
			}
			return s.run(ctx, interval, cmd)
		},
	}
	cmd.Flags().StringVar(&server, "server", "ws://localhost:8080/sync", "websocket url of the sync server")
	cmd.Flags().StringVar(&secret, "secret", "", "secret phrase shared by your devices, defaults to $"+secretEnv)
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "how often local changes are pushed and saved")
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long; zero runs until interrupted")
	return cmd
}

type syncSession struct {
	ws  *workspace
	ds  *storage.DocStore
	key seal.Key

	replica    *replica.Replica
	checkpoint storage.Checkpoint
	client     *syncclient.Client
}

func (s *syncSession) setup(ctx context.Context, id docid.DocumentId, server string) error {
	raw, err := s.ds.LoadDocument(ctx, id)
	switch {
	case err == nil:
		if s.replica, err = replica.Load(id, raw); err != nil {
			return err
		}
	case errors.Is(err, storage.ErrNotFound):
		slog.Info("joining unknown document", "doc", id)
		if s.replica, err = replica.Join(id); err != nil {
			return err
		}
	default:
		return err
	}

	room := s.key.RoomKey()
	s.checkpoint, err = s.ds.LoadCheckpoint(ctx, id)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if s.checkpoint.ClientID == "" {
		s.checkpoint.ClientID = uuid.NewString()
	}
	if s.checkpoint.RoomKey != room {
		// sequences are only meaningful within one room
		s.checkpoint.RoomKey = room
		s.checkpoint.LastSequence = 0
	}

	s.client, err = syncclient.New(syncclient.Options{
		URL:          server,
		ClientID:     s.checkpoint.ClientID,
		RoomKey:      room,
		LastSequence: s.checkpoint.LastSequence,
		Logger:       slog.Default(),
	})
	if err != nil {
		return err
	}
	s.client.OnConnect(func(context.Context) error {
		sealed, err := s.key.Seal(s.replica.Save())
		if err != nil {
			return err
		}
		return s.client.Submit(sealed)
	})
	s.client.OnChange(func(m protocol.ChangeOccurred) error {
		plaintext, err := s.key.Open(m.Payload)
		if err != nil {
			return err
		}
		return s.replica.ApplyDelta(plaintext)
	})
	s.client.OnStateChange(func(state syncclient.State) {
		slog.Info("sync state changed", "state", state)
	})
	return nil
}

// push seals and queues any local changes made since the last push.
func (s *syncSession) push() error {
	delta, err := s.replica.Delta()
	if err != nil || delta == nil {
		return err
	}
	sealed, err := s.key.Seal(delta)
	if err != nil {
		return err
	}
	return s.client.Submit(sealed)
}

func (s *syncSession) persist(ctx context.Context) error {
	if err := s.ws.save(ctx, s.ds, s.replica); err != nil {
		return err
	}
	s.checkpoint.LastSequence = s.client.LastSequence()
	if err := s.ds.SaveCheckpoint(ctx, s.replica.ID(), s.checkpoint); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func (s *syncSession) run(ctx context.Context, interval time.Duration, cmd *cobra.Command) error {
	wg := new(sync.WaitGroup)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			slog.Error("sync stopped", "err", err)
		}
	}()

	t := time.NewTicker(interval)
	defer t.Stop()
loop:
	for {
		select {
		case <-t.C:
			if err := s.push(); err != nil {
				slog.Error("failed to push changes", "err", err)
			}
			if err := s.persist(ctx); err != nil {
				slog.Error("failed to persist", "err", err)
			}
		case <-ctx.Done():
			break loop
		}
	}
	wg.Wait()

	// the sync context is done, so persist with a fresh one
	if err := s.persist(context.Background()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "synced %s up to sequence %d\n", s.replica.ID().URL(), s.checkpoint.LastSequence)
	return nil
}
