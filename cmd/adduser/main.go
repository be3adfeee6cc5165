package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"fintrack/internal/auth"
	"fintrack/internal/backend"
	"fintrack/internal/config"
	"fintrack/internal/core"
	"fintrack/internal/log"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/term"
)

func main() {
	_ = godotenv.Load()
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	env := config.Load()

	fs := flag.NewFlagSet("adduser", flag.ContinueOnError)
	fs.SetOutput(stderr)

	username := fs.String("user", "", "Username")
	passwordFlag := fs.String("password", "", "Password (optional, will prompt if omitted)")
	role := fs.String("role", string(core.RoleUser), "Role: user or admin")
	backendType := fs.String("backend", env.DataBackend, "Storage backend: "+strings.Join(backend.GetBackendTypeStrings(), ", "))
	dbPath := fs.String("db", "", "Database file for the sqlite and bolt backends (defaults to SQLITE_DB_PATH or BOLT_DB_PATH)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *username == "" {
		fmt.Fprintln(stdout, "Usage: adduser -user <username> [-password <password>] [-role user|admin] [-backend <type>] [-db <db_path>]")
		fs.PrintDefaults()
		return fmt.Errorf("missing required flags: user")
	}
	if !core.Role(*role).IsValid() {
		return fmt.Errorf("invalid role %q: must be user or admin", *role)
	}

	password := *passwordFlag
	if password == "" {
		fmt.Fprint(stdout, "Password: ")
		var err error
		password, err = readPassword(stdin)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(stdout)
	}

	hash, err := auth.HashPassword(password)
	if errors.Is(err, auth.ErrEmptyPassword) {
		return fmt.Errorf("password cannot be empty")
	}
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	cfg, err := backend.FromAppConfig(&config.Config{
		DataBackend:  *backendType,
		SQLiteDBPath: env.SQLiteDBPath,
		BoltDBPath:   env.BoltDBPath,
		MongoURI:     env.MongoURI,
		MongoDB:      env.MongoDB,
	})
	if err != nil {
		return err
	}
	if *dbPath != "" {
		cfg.SQLiteDBPath = *dbPath
		cfg.BoltDBPath = *dbPath
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res, err := backend.NewFactory(log.Discard()).CreateBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer res.Cleanup()

	if _, err := res.Store.GetUserByUsername(ctx, *username); err == nil {
		return fmt.Errorf("user %s already exists", *username)
	} else if !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("failed to look up user: %w", err)
	}

	now := time.Now().UTC()
	user := core.User{
		ID:           uuid.NewString(),
		Username:     *username,
		PasswordHash: hash,
		Role:         core.Role(*role),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := res.Store.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Fprintf(stdout, "User %s created successfully with ID %s and role %s\n", user.Username, user.ID, user.Role)
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

	// Fallback for non-terminal (e.g. tests, pipes)
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
