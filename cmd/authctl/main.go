// Command authctl signs in to the admin API and keeps the session on disk so
// later invocations reuse and renew it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go-admin-auth/internal/client"
	"go-admin-auth/internal/logger"
	"go-admin-auth/internal/model"
)

const usage = `usage: authctl [flags] <command> [args]

commands:
  login -email <email>      sign in (password from -password or ADMIN_AUTH_PASSWORD)
  me                        show the signed-in user
  users                     list users
  can <action> <resource>   check a permission
  logout                    drop the session

flags:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "authctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("authctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}

	server := fs.String("server", envOr("ADMIN_AUTH_URL", "http://localhost:8080"), "API base URL")
	session := fs.String("session", envOr("ADMIN_AUTH_SESSION", defaultSessionPath()), "session file")
	timeout := fs.Duration("timeout", 30*time.Second, "HTTP timeout")
	verbose := fs.Bool("v", false, "debug logging")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command")
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	log := logger.New(stderr, "pretty", level)

	c, err := client.New(client.Options{
		BaseURL: *server,
		Store:   client.NewFileStore(*session),
		Logger:  log,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	command, rest := fs.Arg(0), fs.Args()[1:]
	switch command {
	case "login":
		return login(ctx, c, rest, stdout, stderr)
	case "me":
		user, err := c.Me(ctx)
		if err != nil {
			return explain(err)
		}
		return printJSON(stdout, user)
	case "users":
		var users model.UserList
		if err := c.GetJSON(ctx, "/api/v1/users", &users); err != nil {
			return explain(err)
		}
		return printJSON(stdout, users)
	case "can":
		if len(rest) != 2 {
			return errors.New("usage: authctl can <action> <resource>")
		}
		query := url.Values{"action": {rest[0]}, "resource": {rest[1]}}
		var check model.PermissionCheck
		if err := c.GetJSON(ctx, "/api/v1/auth/permissions?"+query.Encode(), &check); err != nil {
			return explain(err)
		}
		return printJSON(stdout, check)
	case "logout":
		if err := c.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "logged out")
		return nil
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func login(ctx context.Context, c *client.Client, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(stderr)
	email := fs.String("email", "", "account email")
	password := fs.String("password", os.Getenv("ADMIN_AUTH_PASSWORD"), "account password")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*email) == "" || *password == "" {
		return errors.New("login requires -email and a password")
	}

	user, err := c.Login(ctx, *email, *password)
	if err != nil {
		return explain(err)
	}

	return printJSON(stdout, user)
}

func explain(err error) error {
	var apiErr *client.APIError
	switch {
	case errors.Is(err, client.ErrNotAuthenticated):
		return errors.New("not logged in, run: authctl login -email <email>")
	case errors.Is(err, client.ErrSessionExpired):
		return errors.New("session expired, run: authctl login -email <email>")
	case errors.As(err, &apiErr) && apiErr.RetryAfter > 0:
		return fmt.Errorf("%s (retry in %s)", apiErr.Message, apiErr.RetryAfter)
	case errors.As(err, &apiErr):
		return errors.New(apiErr.Message)
	default:
		return err
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".admin-auth-session.json"
	}
	return filepath.Join(dir, "admin-auth", "session.json")
}
