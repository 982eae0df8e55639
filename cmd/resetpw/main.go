package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"helpmeout/internal/database"
	"helpmeout/internal/processor"
	"helpmeout/internal/recording"
)

const (
	// Default timeout for database operations
	defaultTimeout = 30 * time.Second
	// Default database directory path
	defaultDatabaseDir = "/database"
	// Default media directory path
	defaultMediaDir = "/media"
	databaseFile    = "helpmeout.db"
)

// passwordReader prompts for a secret without echoing it.
type passwordReader func(prompt string) ([]byte, error)

func readTerminalPassword(prompt string) ([]byte, error) {
	fmt.Print(prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	return password, err
}

// app carries the dependencies shared by every subcommand.
type app struct {
	databaseDir  string
	mediaDir     string
	readPassword passwordReader
}

func (a *app) openDatabase(ctx context.Context) (*database.Database, error) {
	dbPath := filepath.Join(a.databaseDir, databaseFile)
	db, err := database.New(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database (DATABASE_DIR=%s): %w", a.databaseDir, err)
	}
	return db, nil
}

// withDatabase opens the database, runs fn under a timeout and closes it.
func (a *app) withDatabase(cmd *cobra.Command, fn func(ctx context.Context, db *database.Database) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), defaultTimeout)
	defer cancel()

	db, err := a.openDatabase(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to close database: %v\n", closeErr)
		}
	}()

	return fn(ctx, db)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "resetpw",
		Short: "HelpMeOut account maintenance",
		Long: `Maintenance commands for HelpMeOut user accounts.

Environment:
  DATABASE_DIR - Path to database directory (default: ` + defaultDatabaseDir + `)
  MEDIA_DIR    - Path to media directory (default: ` + defaultMediaDir + `)`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&a.databaseDir, "database-dir", a.databaseDir, "database directory")
	root.PersistentFlags().StringVar(&a.mediaDir, "media-dir", a.mediaDir, "media directory")

	root.AddCommand(
		&cobra.Command{
			Use:   "reset <username>",
			Short: "Reset a user's password",
			Long: `Prompt for a new password and set it for the user. All of the
user's sessions are invalidated. Guest accounts become regular accounts.`,
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withDatabase(cmd, func(ctx context.Context, db *database.Database) error {
					return a.resetPassword(ctx, cmd.OutOrStdout(), db, args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show user, session and video counts",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.withDatabase(cmd, func(ctx context.Context, db *database.Database) error {
					return showStatus(ctx, cmd.OutOrStdout(), db)
				})
			},
		},
		&cobra.Command{
			Use:   "purge <username>",
			Short: "Permanently delete a user and their recordings",
			Long: `Remove the user row, sessions, videos and every file produced for
those videos. Works on soft-deleted accounts, releasing the username.`,
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withDatabase(cmd, func(ctx context.Context, db *database.Database) error {
					return a.purgeUser(ctx, cmd.OutOrStdout(), db, args[0])
				})
			},
		},
	)

	return root
}

func (a *app) resetPassword(ctx context.Context, out io.Writer, db *database.Database, username string) error {
	user, err := db.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("user %q not found", username)
		}
		return err
	}

	password, err := a.readPassword("New Password: ")
	if err != nil {
		return fmt.Errorf("error reading password: %w", err)
	}
	confirm, err := a.readPassword("Confirm Password: ")
	if err != nil {
		return fmt.Errorf("error reading password: %w", err)
	}

	if !bytes.Equal(password, confirm) {
		return errors.New("passwords do not match")
	}
	if err := database.ValidatePassword(string(password)); err != nil {
		return err
	}

	if err := db.SetPassword(ctx, user.ID, string(password)); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	fmt.Fprintf(out, "Password updated for %s.\n", user.Username)
	fmt.Fprintln(out, "All existing sessions have been invalidated.")
	return nil
}

func showStatus(ctx context.Context, out io.Writer, db *database.Database) error {
	stats, err := db.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read stats: %w", err)
	}

	fmt.Fprintf(out, "Users:           %d\n", stats.Users)
	fmt.Fprintf(out, "Active sessions: %d\n", stats.Sessions)
	for _, status := range []database.VideoStatus{
		database.VideoStatusProcessing,
		database.VideoStatusCompleted,
		database.VideoStatusFailed,
	} {
		fmt.Fprintf(out, "Videos %-10s %d\n", string(status)+":", stats.VideosByStatus[string(status)])
	}
	return nil
}

func (a *app) purgeUser(ctx context.Context, out io.Writer, db *database.Database, username string) error {
	videos, err := db.PurgeUser(ctx, username)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("user %q not found", username)
		}
		return err
	}

	store := recording.NewChunkStore(filepath.Join(a.mediaDir, "uploads"), 0)
	var errs []error
	for i := range videos {
		v := &videos[i]
		if err := processor.RemoveArtifacts(v); err != nil {
			errs = append(errs, err)
		}
		if err := store.RemoveFile(v.OriginalLocation); err != nil {
			errs = append(errs, err)
		}
		if err := store.RemoveAll(v.ID); err != nil {
			errs = append(errs, err)
		}
	}

	fmt.Fprintf(out, "Purged %s and %d videos.\n", database.NormalizeUsername(username), len(videos))
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("some files could not be removed: %w", err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{
		databaseDir:  getEnv("DATABASE_DIR", defaultDatabaseDir),
		mediaDir:     getEnv("MEDIA_DIR", defaultMediaDir),
		readPassword: readTerminalPassword,
	}

	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
