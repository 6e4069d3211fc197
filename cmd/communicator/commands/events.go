package commands

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/weisyn/collection-sdk-go/server"
	"github.com/weisyn/collection-sdk-go/services/event"
)

// subscribeCmd 订阅合约事件，入库后逐条输出 JSON
func subscribeCmd(a *app) *cobra.Command {
	var dataDir string
	cmd := &cobra.Command{
		Use:       "subscribe <collection_created|token_minted>",
		Short:     "Listen for contract events (requires a websocket endpoint)",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(event.KindCollectionCreated), string(event.KindTokenMinted)},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := event.ParseKind(args[0])
			if err != nil {
				return err
			}

			events, err := a.events(dataDir)
			if err != nil {
				return err
			}
			defer events.Close()

			records, err := events.SubscribeEvents(cmd.Context(), kind)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for rec := range records {
				if err := enc.Encode(rec); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "badger directory for indexed events (default: in-memory)")
	return cmd
}

// serveCmd 持续入库两类事件并通过 HTTP 提供查询
func serveCmd(a *app) *cobra.Command {
	var (
		addr     string
		grpcAddr string
		dataDir  string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Index contract events and serve them over HTTP (requires a websocket endpoint)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := a.events(dataDir)
			if err != nil {
				return err
			}
			defer events.Close()

			srv := server.New(events, &server.Config{
				Addr:     addr,
				GRPCAddr: grpcAddr,
				Logger:   a.logger,
				Metrics:  a.metrics,
			})

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error { return events.Index(ctx) })
			g.Go(func() error { return srv.Run(ctx) })
			if err := g.Wait(); err != nil && !errors.Is(err, cmd.Context().Err()) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", server.DefaultConfig().Addr, "HTTP listen address")
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", "", "gRPC health listen address (disabled when empty)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "badger directory for indexed events (default: in-memory)")
	return cmd
}

func (a *app) events(dataDir string) (event.Service, error) {
	svc, err := event.NewService(a.client, a.sdk.Ref, &event.Config{
		Dir:     dataDir,
		Logger:  a.logger,
		Metrics: a.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("open event store: %w", err)
	}
	return svc, nil
}
