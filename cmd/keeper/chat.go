package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func chatCmd() *cobra.Command {
	var (
		sessionID  string
		playerName string
		module     string
		modelID    string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Play a session from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer app.db.Close()

			if modelID == "" {
				modelID = app.cfg.ModelID
			}

			if sessionID == "" {
				sess, err := app.manager.Create(ctx, playerName, module, modelID)
				if err != nil {
					return err
				}
				sessionID = sess.ID
				fmt.Printf("Session %s started. Type your message, or /quit to leave.\n\n", sessionID)
			} else {
				if _, err := app.db.Get(ctx, sessionID); err != nil {
					return fmt.Errorf("resuming session: %w", err)
				}
				fmt.Printf("Resumed session %s.\n\n", sessionID)
			}

			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					break
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "/quit" || line == "/exit" {
					break
				}

				answer, err := app.manager.HandleTurn(ctx, sessionID, line)
				if err != nil {
					fmt.Fprintln(os.Stderr, "Error:", err)
					continue
				}
				fmt.Printf("\n%s\n\n", answer)
			}
			return scanner.Err()
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "resume an existing session by ID")
	cmd.Flags().StringVar(&playerName, "player", "", "investigator name for a new session")
	cmd.Flags().StringVar(&module, "module", "", "scenario module name for a new session")
	cmd.Flags().StringVar(&modelID, "model", "", "model ID (defaults to KEEPER_MODEL)")
	return cmd
}
