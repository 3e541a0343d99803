package main

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/kanbanhq/kanban/internal/config"
	"github.com/kanbanhq/kanban/internal/storage"
	"github.com/kanbanhq/kanban/internal/storage/sqlite"
	"github.com/kanbanhq/kanban/internal/types"
)

func keyHash(cfg *config.Config, key string) string {
	mac := hmac.New(sha256.New, []byte(cfg.Auth.Secret))
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

func newAPIKeyCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage issued API keys",
	}
	cmd.AddCommand(newAPIKeyCreateCmd(configPath), newAPIKeyListCmd(configPath), newAPIKeyRevokeCmd(configPath))
	return cmd
}

func newAPIKeyCreateCmd(configPath *string) *cobra.Command {
	var name string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue a new API key; the raw key is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.Secret == "" {
				return configErr(fmt.Errorf("API_KEY_SECRET must be set to issue keys"))
			}

			raw := make([]byte, 32)
			if _, err := rand.Read(raw); err != nil {
				return runtimeErr(err)
			}
			key := hex.EncodeToString(raw)

			rec := &types.APIKey{KeyHash: keyHash(cfg, key), Name: name}
			if ttl > 0 {
				expires := time.Now().UTC().Add(ttl)
				rec.ExpiresAt = &expires
			}

			ctx := cmd.Context()
			store, err := sqlite.New(ctx, cfg.Database.Path)
			if err != nil {
				return runtimeErr(err)
			}
			defer store.Close()
			err = store.RunInTransaction(ctx, func(tx storage.Tx) error {
				return tx.CreateAPIKey(ctx, rec)
			})
			if err != nil {
				return runtimeErr(err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "key %d (%s): %s\n", rec.ID, rec.Name, key)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "default", "key name")
	cmd.Flags().DurationVar(&ttl, "expires", 0, "lifetime (e.g. 720h); 0 means no expiry")
	return cmd
}

func newAPIKeyListCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List issued API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := sqlite.New(ctx, cfg.Database.Path)
			if err != nil {
				return runtimeErr(err)
			}
			defer store.Close()

			keys, err := store.ListAPIKeys(ctx)
			if err != nil {
				return runtimeErr(err)
			}
			for _, k := range keys {
				line := fmt.Sprintf("%d\t%s\tcreated %s", k.ID, k.Name, k.CreatedAt.Format(time.RFC3339))
				if k.LastUsedAt != nil {
					line += "\tlast used " + k.LastUsedAt.Format(time.RFC3339)
				}
				if k.ExpiresAt != nil {
					line += "\texpires " + k.ExpiresAt.Format(time.RFC3339)
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
}

func newAPIKeyRevokeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an issued API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return configErr(fmt.Errorf("invalid key id %q", args[0]))
			}
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := sqlite.New(ctx, cfg.Database.Path)
			if err != nil {
				return runtimeErr(err)
			}
			defer store.Close()

			err = store.RunInTransaction(ctx, func(tx storage.Tx) error {
				return tx.DeleteAPIKey(ctx, id)
			})
			if err != nil {
				return runtimeErr(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "key %d revoked\n", id)
			return nil
		},
	}
}
