package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"expense-tracker/internal/accounts"
	"expense-tracker/internal/models"
	"expense-tracker/internal/storage"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const defaultDB = "expenses.db"

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	username string
	email    string
	password string
	db       string
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cmd := newCommand(stdin)
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd.Execute()
}

func newCommand(stdin io.Reader) *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "adduser --user <username> [--email <email>] [--password <password>] [--db <dsn>]",
		Short: "Create a verified expense tracker account",
		Long: `Create an account that can log in right away, without email verification.
The database is taken from --db, then DATABASE_URL or DB_PATH, then expenses.db.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.username == "" {
				fmt.Fprint(cmd.OutOrStdout(), cmd.UsageString())
				return fmt.Errorf("missing required flags: user")
			}
			if !cmd.Flags().Changed("db") {
				opts.db = dsnFromEnv(opts.db)
			}
			return addUser(cmd.Context(), opts, stdin, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.username, "user", "", "Username")
	cmd.Flags().StringVar(&opts.email, "email", "", "Email address (default <user>@localhost.localdomain)")
	cmd.Flags().StringVar(&opts.password, "password", "", "Password (optional, will prompt if omitted)")
	cmd.Flags().StringVar(&opts.db, "db", defaultDB, "SQLite path or postgres:// URL")
	return cmd
}

func dsnFromEnv(fallback string) string {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}
	if path := os.Getenv("DB_PATH"); path != "" {
		return path
	}
	return fallback
}

func addUser(ctx context.Context, opts options, stdin io.Reader, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	password := opts.password
	if password == "" {
		fmt.Fprint(stdout, "Password: ")
		var err error
		password, err = readPassword(stdin)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(stdout)
	}
	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("password cannot be empty")
	}

	email := opts.email
	if email == "" {
		email = opts.username + "@localhost.localdomain"
	}

	db, err := storage.NewDB(opts.db)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	svc := accounts.NewService(db, nil, accounts.Options{})
	user, err := svc.CreateVerifiedUser(ctx, opts.username, email, password)
	var ve *models.ValidationError
	switch {
	case errors.Is(err, models.ErrDuplicate):
		return fmt.Errorf("user %s or email %s already exists", opts.username, email)
	case errors.As(err, &ve):
		return ve
	case err != nil:
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Fprintf(stdout, "User %s created successfully with ID %d\n", user.Username, user.ID)
	return nil
}

func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		bytePassword, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(bytePassword), nil
	}

	// Pipes and tests.
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
