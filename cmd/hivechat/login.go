package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"go-hivechat/internal/pkg/auth"
)

var loginUsername string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate against the backend and store the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		reader := bufio.NewReader(os.Stdin)
		username := loginUsername
		if username == "" {
			fmt.Print("username: ")
			line, err := reader.ReadString('\n')
			if err != nil {
				return err
			}
			username = strings.TrimSpace(line)
		}
		fmt.Print("password: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		password := strings.TrimRight(line, "\r\n")

		client := auth.NewClient(cfg.ServerURL, auth.WithCredentialCache(cfg.CredentialCache))
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()

		sess, err := client.Login(ctx, auth.Credentials{Username: username, Password: password})
		if err != nil {
			return err
		}
		fmt.Printf("logged in as %s\n", sess.User.Username)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Drop the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client := auth.NewClient(cfg.ServerURL, auth.WithCredentialCache(cfg.CredentialCache))
		client.Logout(cmd.Context())
		fmt.Println("logged out")
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "account username")
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}
