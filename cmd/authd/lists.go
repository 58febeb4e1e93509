package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/StricklySoft/bedrock-auth/pkg/policy"
)

// withStore opens the policy store for the duration of fn.
func withStore(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, store *policy.RedisStore) error) error {
	cfg, err := opts.config()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.ShutdownGrace)
	defer cancel()
	store, err := policy.NewRedisStore(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(ctx, store)
}

type banOptions struct {
	ip      bool
	reason  string
	source  string
	expires time.Duration
}

func (o *banOptions) addFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.ip, "ip", false, "target is an IP address rather than a player name")
	fs.StringVarP(&o.reason, "reason", "r", "", "reason shown to the player")
	fs.StringVar(&o.source, "source", "authd", "who issued the ban")
	fs.DurationVar(&o.expires, "expires", 0, "ban duration, 0 for permanent")
}

func newBanCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ban",
		Short: "Manage name and IP bans",
	}

	var add banOptions
	addCmd := &cobra.Command{
		Use:   "add TARGET",
		Short: "Ban a player name or, with --ip, an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, opts, func(ctx context.Context, store *policy.RedisStore) error {
				entry := policy.BanEntry{
					Target:  args[0],
					Reason:  add.reason,
					Source:  add.source,
					Created: time.Now().UTC(),
				}
				if add.expires > 0 {
					exp := entry.Created.Add(add.expires)
					entry.Expires = &exp
				}
				if add.ip {
					return store.BanIP(ctx, entry)
				}
				return store.BanName(ctx, entry)
			})
		},
	}
	add.addFlags(addCmd.Flags())

	var removeIP bool
	removeCmd := &cobra.Command{
		Use:     "remove TARGET",
		Aliases: []string{"pardon"},
		Short:   "Lift a name ban or, with --ip, an address ban",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, opts, func(ctx context.Context, store *policy.RedisStore) error {
				var (
					removed bool
					err     error
				)
				if removeIP {
					removed, err = store.PardonIP(ctx, args[0])
				} else {
					removed, err = store.PardonName(ctx, args[0])
				}
				if err != nil {
					return err
				}
				if !removed {
					fmt.Fprintf(cmd.OutOrStdout(), "%s was not banned\n", args[0])
				}
				return nil
			})
		},
	}
	removeCmd.Flags().BoolVar(&removeIP, "ip", false, "target is an IP address")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List active bans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, opts, func(ctx context.Context, store *policy.RedisStore) error {
				names, ips, err := store.Bans(ctx)
				if err != nil {
					return err
				}
				return writeBans(cmd.OutOrStdout(), names, ips, time.Now())
			})
		},
	}

	cmd.AddCommand(addCmd, removeCmd, listCmd)
	return cmd
}

func writeBans(w io.Writer, names, ips []policy.BanEntry, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tTARGET\tREASON\tSOURCE\tEXPIRES")
	write := func(kind string, bans []policy.BanEntry) {
		sort.Slice(bans, func(i, j int) bool { return bans[i].Target < bans[j].Target })
		for _, b := range bans {
			if b.Expired(now) {
				continue
			}
			expires := "never"
			if b.Expires != nil {
				expires = b.Expires.Format(time.RFC3339)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", kind, b.Target, b.Reason, b.Source, expires)
		}
	}
	write("name", names)
	write("ip", ips)
	return tw.Flush()
}

func newWhitelistCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whitelist",
		Short: "Manage the whitelist",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add NAME...",
			Short: "Allow players to join while the whitelist is on",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd, opts, func(ctx context.Context, store *policy.RedisStore) error {
					return store.Whitelist(ctx, args...)
				})
			},
		},
		&cobra.Command{
			Use:   "remove NAME...",
			Short: "Remove players from the whitelist",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd, opts, func(ctx context.Context, store *policy.RedisStore) error {
					return store.Unwhitelist(ctx, args...)
				})
			},
		},
		&cobra.Command{
			Use:       "set on|off",
			Short:     "Turn whitelist enforcement on or off",
			Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
			ValidArgs: []string{"on", "off"},
			RunE: func(cmd *cobra.Command, args []string) error {
				return withStore(cmd, opts, func(ctx context.Context, store *policy.RedisStore) error {
					return store.SetWhitelistEnabled(ctx, args[0] == "on")
				})
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "Show the whitelist",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withStore(cmd, opts, func(ctx context.Context, store *policy.RedisStore) error {
					names, enabled, err := store.WhitelistMembers(ctx)
					if err != nil {
						return err
					}
					state := "off"
					if enabled {
						state = "on"
					}
					sort.Strings(names)
					fmt.Fprintf(cmd.OutOrStdout(), "whitelist: %s\n%s", state, strings.Join(append(names, ""), "\n"))
					return nil
				})
			},
		},
	)
	return cmd
}
