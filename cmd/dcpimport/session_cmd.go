package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

type loginOptions struct {
	Username      string
	PasswordStdin bool
}

func newLoginCmd(g *globalOptions) *cobra.Command {
	var opts loginOptions

	cmd := &cobra.Command{
		Use:   "login --username <name> --password-stdin",
		Short: "Sign in and keep the session for later commands",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(opts.Username) == "" {
				return errors.New("--username is required")
			}
			if !opts.PasswordStdin {
				return errors.New("--password-stdin is required")
			}

			password, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && password == "" {
				return fmt.Errorf("failed to read password: %w", err)
			}
			password = strings.TrimRight(password, "\r\n")

			rt, err := g.open(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			user, err := rt.Auth.Login(cmd.Context(), opts.Username, password)
			if err != nil {
				return err
			}
			name := user.Name
			if name == "" {
				name = user.Username
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.Username, "username", "u", "", "account username")
	cmd.Flags().BoolVar(&opts.PasswordStdin, "password-stdin", false, "read the password from stdin")
	return cmd
}

func newLogoutCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := g.open(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.Auth.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}
