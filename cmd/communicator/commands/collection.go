package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/weisyn/collection-sdk-go/services/collection"
)

// createCollectionCmd 创建集合并输出注册表回查到的集合地址
func createCollectionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create-collection <name> <symbol>",
		Short: "Create an NFT collection and resolve its address from the registry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := a.connect(ctx); err != nil {
				return err
			}

			svc := a.sdk.Collections
			if err := svc.SetField(collection.FieldName, args[0]); err != nil {
				return err
			}
			if err := svc.SetField(collection.FieldSymbol, args[1]); err != nil {
				return err
			}

			res, err := svc.CreateCollection(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Collection: %s\nTransaction: %s\n", res.Collection.Hex(), res.TxHash.Hex())
			return nil
		},
	}
}

// mintCmd 向已有集合铸造 Token
func mintCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mint <collection> <recipient> <tokenUri>",
		Short: "Mint a token into an existing collection",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := a.connect(ctx); err != nil {
				return err
			}

			svc := a.sdk.Collections
			fields := []struct {
				field collection.Field
				value string
			}{
				{collection.FieldCollectionAddress, args[0]},
				{collection.FieldRecipient, args[1]},
				{collection.FieldTokenURI, args[2]},
			}
			for _, f := range fields {
				if err := svc.SetField(f.field, f.value); err != nil {
					return err
				}
			}

			res, err := svc.MintToken(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if res.TokenID != nil {
				fmt.Fprintf(out, "Token: %s\n", res.TokenID)
			}
			fmt.Fprintf(out, "Transaction: %s\n", res.TxHash.Hex())
			return nil
		},
	}
}

// collectionsCmd 列出注册表中的全部集合
func collectionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "collections",
		Short: "List collections recorded in the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addrs, err := a.sdk.Registry.List(cmd.Context(), a.sdk.Ref)
			if err != nil {
				return err
			}
			if len(addrs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "There are no collections yet.")
				return nil
			}
			for i, addr := range addrs {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", i, addr.Hex())
			}
			return nil
		},
	}
}
