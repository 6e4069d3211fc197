package commands

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/weisyn/collection-sdk-go/provider"
)

// accountsCmd 列出已授权账户，不会弹出授权
func accountsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List authorized accounts without prompting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eth := provider.NewEth(a.sdk.Session.Provider())
			accounts, err := eth.Accounts(cmd.Context())
			if err != nil {
				return err
			}
			if len(accounts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No authorized account found.")
				return nil
			}
			for _, account := range accounts {
				fmt.Fprintln(cmd.OutOrStdout(), account.Hex())
			}
			return nil
		},
	}
}

// connectCmd 请求账户授权
func connectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Request account access from the wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), account.Hex())
			return nil
		},
	}
}

// connect 复用已授权账户，否则请求授权
func (a *app) connect(ctx context.Context) (common.Address, error) {
	view := a.sdk.Collections.Init(ctx)
	if view.Connected() {
		return *view.Account, nil
	}
	return a.sdk.Collections.Connect(ctx)
}
