package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Exchange an identity assertion for a session token",
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the session and stop automatic sign-in",
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE:  runWhoami,
}

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	rec, err := e.sessions.Authenticate(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Signed in as %s (session valid until %s)\n", rec.Principal.Email, rec.ExpiresAt.Local().Format(time.RFC1123))
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	if err := e.sessions.Logout(); err != nil {
		return err
	}
	fmt.Println("Logged out.")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	rec, err := e.store.Load()
	if err != nil {
		return err
	}
	if rec == nil || rec.Expired(time.Now()) {
		fmt.Println("Not signed in.")
		return nil
	}
	fmt.Printf("%-10s %s\n", "ID", rec.Principal.ID)
	fmt.Printf("%-10s %s\n", "NAME", rec.Principal.DisplayName)
	fmt.Printf("%-10s %s\n", "EMAIL", rec.Principal.Email)
	fmt.Printf("%-10s %s\n", "SITE", rec.TargetID)
	fmt.Printf("%-10s %s\n", "EXPIRES", rec.ExpiresAt.Local().Format(time.RFC1123))
	return nil
}
