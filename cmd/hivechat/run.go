package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"go-hivechat/internal/infrastructure/realtime"
	"go-hivechat/internal/pkg/auth"
	"go-hivechat/internal/pkg/chat/application"
	"go-hivechat/internal/pkg/chat/events"
	"go-hivechat/internal/session"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Open the chat session and read/send messages interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		authClient := auth.NewClient(cfg.ServerURL, auth.WithCredentialCache(cfg.CredentialCache))
		sess, err := session.New(cfg, authClient)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		defer sess.Close(context.Background())

		if err := sess.Start(ctx); err != nil {
			return err
		}

		// Print pushes and connectivity changes as they happen.
		unsubMsg := sess.Router.Subscribe(events.KindNewMessage, func(ev *events.Event) {
			fmt.Println(renderMessage(ctx, *ev.Message, sess.User.ID, sess.Users))
		})
		defer unsubMsg()
		unsubState := sess.OnConnectionState(func(st realtime.State) {
			fmt.Println(renderState(st))
		})
		defer unsubState()

		fmt.Printf("connected as %s (/list, /open <n>, /users <query>, /quit)\n", sess.User.Username)
		printConversations(sess)

		return inputLoop(ctx, sess)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// inputLoop reads commands and message text from stdin until EOF, /quit or
// cancellation.
func inputLoop(ctx context.Context, sess *session.Session) error {
	var active string // selected conversation id

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "":
				continue
			case line == "/quit":
				return nil
			case line == "/list":
				printConversations(sess)
			case strings.HasPrefix(line, "/open "):
				idx, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "/open ")))
				convs := sess.Store.Conversations()
				if err != nil || idx < 1 || idx > len(convs) {
					fmt.Println("usage: /open <n> (see /list)")
					continue
				}
				active = convs[idx-1].ID
				if _, _, err := sess.Gateway.LoadMessages(ctx, active, 1, 50); err != nil {
					fmt.Println(renderError(err))
				}
				for _, m := range sess.Store.Messages(active) {
					fmt.Println(renderMessage(ctx, m, sess.User.ID, sess.Users))
				}
			case strings.HasPrefix(line, "/users "):
				query := strings.TrimSpace(strings.TrimPrefix(line, "/users "))
				found, err := sess.Users.Search(ctx, query, 0)
				if err != nil {
					fmt.Println(renderError(err))
					continue
				}
				for _, p := range found {
					fmt.Println(renderProfile(p))
				}
			default:
				if active == "" {
					fmt.Println("no conversation open; use /open <n>")
					continue
				}
				sess.Gateway.SendTypingIndicator(ctx, active, false)
				if _, err := sess.Gateway.SendMessage(ctx, application.SendRequest{
					ConversationID: active,
					Content:        line,
				}); err != nil {
					fmt.Println(renderError(err))
				}
			}
		}
	}
}

func printConversations(sess *session.Session) {
	for i, c := range sess.Store.Conversations() {
		fmt.Println(renderConversation(i+1, c))
	}
}
