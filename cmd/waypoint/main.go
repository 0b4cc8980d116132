// Package main provides the entry point for the waypoint server.
//
// Usage:
//
//	waypoint [-config waypoint.yaml]             serve the API
//	waypoint migrate -config waypoint.yaml up    apply migrations (up, down, version, steps N)
//	waypoint token -config waypoint.yaml -user alice -roles editor
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/waypointgames/waypoint/internal/server"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) > 0 {
		switch args[0] {
		case "migrate":
			return runMigrate(args[1:], stdout)
		case "token":
			return runToken(args[1:], stdout)
		}
	}
	return runServe(args, stdout)
}

type serveOptions struct {
	configPath  string
	address     string
	showVersion bool
}

func parseServeFlags(args []string) (serveOptions, error) {
	opts := serveOptions{}
	fs := flag.NewFlagSet("waypoint", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "waypoint.yaml", "Path to configuration file")
	fs.StringVar(&opts.address, "address", "", "Listen address (overrides server.address)")
	fs.BoolVar(&opts.showVersion, "version", false, "Show version and exit")
	err := fs.Parse(args)
	return opts, err
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runServe(args []string, stdout io.Writer) error {
	opts, err := parseServeFlags(args)
	if err != nil {
		return err
	}
	if opts.showVersion {
		_, _ = fmt.Fprintf(stdout, "waypoint version %s\n", server.Version)
		return nil
	}

	p, err := server.NewWithConfig(opts.configPath, os.Stderr)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer func() { _ = p.Close() }()

	if opts.address != "" {
		p.Config().Server.Address = opts.address
	}

	ctx, stop := setupSignalHandler()
	defer stop()

	if err := p.Start(ctx); err != nil {
		return fmt.Errorf("starting platform: %w", err)
	}
	return p.Serve(ctx)
}

func runToken(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	configPath := fs.String("config", "waypoint.yaml", "Path to configuration file")
	user := fs.String("user", "", "Subject of the token")
	roles := fs.String("roles", "", "Comma-separated roles (editor, staff)")
	ttl := fs.Duration("ttl", 24*time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *user == "" {
		return errors.New("-user is required")
	}

	p, err := server.NewWithConfig(*configPath, io.Discard)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	issuer := p.TokenIssuer()
	if issuer == nil {
		return errors.New("auth.signing_key is not configured")
	}

	var roleList []string
	if *roles != "" {
		roleList = strings.Split(*roles, ",")
	}
	token, err := issuer.Issue(*user, roleList, *ttl)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(stdout, token)
	return nil
}
