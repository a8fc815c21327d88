package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"crickbid/internal/auction"
	cl "crickbid/internal/cli"
	"crickbid/internal/config"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "cbk",
		Short:        "Cricket auction client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL")

	root.AddCommand(
		newUseCmd(),
		newWhoamiCmd(),
		newLogoutCmd(),
		newPoolCmd(&apiBase),
		newSessionsCmd(&apiBase),
		newJoinCmd(&apiBase),
		newLiveCmd(&apiBase),
		newBidCmd(&apiBase),
		newCloseCmd(&apiBase),
		newSquadCmd(&apiBase),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		if reason := cl.ReasonOf(err); reason != "" {
			printError(describeReason(reason, err))
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newClient(apiBase *string) (*cl.Client, cl.Identity, error) {
	id, err := cl.LoadIdentity()
	if err != nil {
		return nil, id, err
	}
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"), id), id, nil
}

// sessionArg reads the session id at args[i], falling back to the last session used.
func sessionArg(args []string, i int, id cl.Identity) (int64, error) {
	if len(args) > i {
		v, err := strconv.ParseInt(strings.TrimSpace(args[i]), 10, 64)
		if err != nil || v <= 0 {
			return 0, fmt.Errorf("invalid session id %q", args[i])
		}
		if v != id.LastSession {
			id.LastSession = v
			_ = cl.SaveIdentity(id)
		}
		return v, nil
	}
	if id.LastSession > 0 {
		return id.LastSession, nil
	}
	return 0, fmt.Errorf("session id is required")
}

func newUseCmd() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "use <user-id>",
		Short: "Set the identity used for requests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := cl.Identity{UserID: strings.TrimSpace(args[0]), AccessToken: strings.TrimSpace(token)}
			if err := cl.SaveIdentity(id); err != nil {
				return err
			}
			printSuccess("Now acting as " + id.UserID + ".")
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "bearer access token")
	return cmd
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the saved identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := cl.LoadIdentity()
			if err != nil {
				return err
			}
			auth := "header"
			if id.AccessToken != "" {
				auth = "token"
			}
			fmt.Printf("%s %s (%s)\n", accent.Sprint("user:"), id.UserID, auth)
			if id.LastSession > 0 {
				fmt.Printf("%s %d\n", accent.Sprint("session:"), id.LastSession)
			}
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearIdentity(); err != nil {
				return err
			}
			printSuccess("Identity cleared.")
			return nil
		},
	}
}

func newPoolCmd(apiBase *string) *cobra.Command {
	cmd := &cobra.Command{Use: "pool", Short: "Player pool"}

	importCmd := &cobra.Command{
		Use:   "import <file.json>",
		Short: "Upsert players from a JSON array",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var rows []auction.PoolImportRow
			if err := json.Unmarshal(raw, &rows); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			client, _, err := newClient(apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()
			out, err := client.ImportPool(ctx, rows)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Imported %d new, updated %d.", out.Inserted, out.Updated))
			return nil
		},
	}

	var skill, category, search string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List pool players",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newClient(apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			players, err := client.ListPool(ctx, skill, category, search)
			if err != nil {
				return err
			}
			renderPool(players)
			return nil
		},
	}
	listCmd.Flags().StringVar(&skill, "skill", "", "filter by skill")
	listCmd.Flags().StringVar(&category, "category", "", "filter by category")
	listCmd.Flags().StringVar(&search, "q", "", "name search")

	cmd.AddCommand(importCmd, listCmd)
	return cmd
}

func newSessionsCmd(apiBase *string) *cobra.Command {
	cmd := &cobra.Command{Use: "sessions", Short: "Auction sessions"}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := newClient(apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			sessions, err := client.ListSessions(ctx)
			if err != nil {
				return err
			}
			renderSessions(sessions)
			return nil
		},
	})

	var (
		maxSquad, minSquad, timer int
		wallet, increment         string
		attach                    bool
	)
	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := cl.CreateSessionRequest{
				Name:            strings.Join(args, " "),
				MaxSquadSize:    maxSquad,
				BidTimerSeconds: timer,
				AttachPool:      attach,
			}
			if cmd.Flags().Changed("min-squad") {
				req.MinSquadSize = &minSquad
			}
			if wallet != "" {
				v, err := decimal.NewFromString(wallet)
				if err != nil {
					return fmt.Errorf("invalid wallet: %w", err)
				}
				req.InitialWallet = &v
			}
			if increment != "" {
				v, err := decimal.NewFromString(increment)
				if err != nil {
					return fmt.Errorf("invalid increment: %w", err)
				}
				req.MinBidIncrement = &v
			}
			client, _, err := newClient(apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			sess, err := client.CreateSession(ctx, req)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Created session %d (%s).", sess.ID, sess.Slug))
			return nil
		},
	}
	createCmd.Flags().IntVar(&maxSquad, "max-squad", 0, "max squad size")
	createCmd.Flags().IntVar(&minSquad, "min-squad", 0, "min squad size to exit")
	createCmd.Flags().IntVar(&timer, "timer", 0, "bid timer in seconds")
	createCmd.Flags().StringVar(&wallet, "wallet", "", "initial wallet")
	createCmd.Flags().StringVar(&increment, "increment", "", "minimum bid increment")
	createCmd.Flags().BoolVar(&attach, "attach-pool", true, "attach all active pool players")

	cmd.AddCommand(createCmd)
	cmd.AddCommand(&cobra.Command{
		Use:   "show [session]",
		Short: "Show a session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, id, err := newClient(apiBase)
			if err != nil {
				return err
			}
			sessionID, err := sessionArg(args, 0, id)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			sess, err := client.GetSession(ctx, sessionID)
			if err != nil {
				return err
			}
			renderSessionDetail(sess)
			return nil
		},
	})

	for _, action := range []string{"start", "pause", "resume", "end", "complete"} {
		cmd.AddCommand(newSessionActionCmd(apiBase, action))
	}
	return cmd
}

func newSessionActionCmd(apiBase *string, action string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " [session]",
		Short: strings.ToUpper(action[:1]) + action[1:] + " a session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, id, err := newClient(apiBase)
			if err != nil {
				return err
			}
			sessionID, err := sessionArg(args, 0, id)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			switch action {
			case "start":
				res, err := client.StartSession(ctx, sessionID)
				if err != nil {
					return err
				}
				renderRound(res)
			case "resume":
				res, err := client.ResumeSession(ctx, sessionID)
				if err != nil {
					return err
				}
				renderRound(res)
			default:
				sess, err := client.SessionAction(ctx, sessionID, action)
				if err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("Session %d is %s.", sess.ID, sess.Status))
			}
			return nil
		},
	}
}

func newJoinCmd(apiBase *string) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "join [session]",
		Short: "Join a session as a bidder",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, id, err := newClient(apiBase)
			if err != nil {
				return err
			}
			sessionID, err := sessionArg(args, 0, id)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			p, err := client.Join(ctx, sessionID, name)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Joined session %d with %s to spend.", sessionID, formatMoney(p.CurrentBalance)))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}

func newLiveCmd(apiBase *string) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "live [session]",
		Short: "Show the live round",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, id, err := newClient(apiBase)
			if err != nil {
				return err
			}
			sessionID, err := sessionArg(args, 0, id)
			if err != nil {
				return err
			}
			for {
				ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
				state, err := client.Live(ctx, sessionID)
				cancel()
				if err != nil {
					return err
				}
				if watch {
					fmt.Print("\033[H\033[2J")
				}
				renderLive(state)
				if !watch || state.Status.Closed() {
					return nil
				}
				select {
				case <-cmd.Context().Done():
					return nil
				case <-time.After(time.Second):
				}
			}
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "refresh every second")
	return cmd
}

func newBidCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "bid [session] <amount>",
		Short: "Bid on the live player",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, id, err := newClient(apiBase)
			if err != nil {
				return err
			}
			amountArg := args[len(args)-1]
			sessionID, err := sessionArg(args[:len(args)-1], 0, id)
			if err != nil {
				return err
			}
			amount, err := decimal.NewFromString(strings.TrimSpace(amountArg))
			if err != nil {
				return fmt.Errorf("invalid amount %q", amountArg)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			state, err := client.Live(ctx, sessionID)
			if err != nil {
				return err
			}
			if state.Player == nil {
				printWarn("No live player right now.")
				return nil
			}
			res, err := client.Bid(ctx, sessionID, state.Player.ID, amount)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Bid %s on %s accepted. Next minimum %s.",
				formatMoney(res.Bid.Amount), state.Player.Name, formatMoney(res.MinimumBid)))
			return nil
		},
	}
}

func newCloseCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "close [session]",
		Short: "Close the live round now",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, id, err := newClient(apiBase)
			if err != nil {
				return err
			}
			sessionID, err := sessionArg(args, 0, id)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			state, err := client.Live(ctx, sessionID)
			if err != nil {
				return err
			}
			var expected *int64
			if state.Player != nil {
				expected = &state.Player.ID
			}
			res, err := client.CloseRound(ctx, sessionID, expected)
			if err != nil {
				return err
			}
			renderRound(res)
			return nil
		},
	}
}

func newSquadCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "squad [session] [user]",
		Short: "Show a squad",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, id, err := newClient(apiBase)
			if err != nil {
				return err
			}
			sessionID, err := sessionArg(args, 0, id)
			if err != nil {
				return err
			}
			user := ""
			if len(args) > 1 {
				user = args[1]
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			sq, err := client.Squad(ctx, sessionID, user)
			if err != nil {
				return err
			}
			renderSquad(sq)
			return nil
		},
	}
}
