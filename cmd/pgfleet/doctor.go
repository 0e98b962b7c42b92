package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	pgfleet "github.com/fleetdb/pgfleet"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

func runDoctor() error {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	configPath := fs.String("config", defaultServerConfigPath, "Path to server configuration file")
	regPath := fs.String("registry", "", "Path to registry file (defaults to PGFLEET_REGISTRY_PATH or .pgfleet/databases.json)")
	fs.Parse(os.Args[2:])

	path := *regPath
	if path == "" {
		path = registryPath()
	}
	useColor := term.IsTerminal(int(os.Stderr.Fd()))
	return doctor(os.Stderr, useColor, *configPath, path)
}

func doctor(w io.Writer, useColor bool, configPath, regPath string) error {
	allPassed := true

	// Check 1: server config parses (absence is fine, defaults apply)
	if data, err := os.ReadFile(configPath); err == nil {
		var config pgfleet.ServerConfig
		if err := json.Unmarshal(data, &config); err != nil {
			printCheck(w, useColor, false, fmt.Sprintf("Server config is valid JSON (%s): %v", configPath, err))
			allPassed = false
		} else {
			printCheck(w, useColor, true, fmt.Sprintf("Server config is valid JSON (%s)", configPath))
			allPassed = checkQueryConfig(w, useColor, config.Query) && allPassed
		}
	} else {
		printCheck(w, useColor, true, fmt.Sprintf("No server config at %s, defaults apply", configPath))
	}

	// Check 2: registry document loads (file or environment fallback)
	quiet := zerolog.New(io.Discard)
	store := pgfleet.NewStore(regPath, quiet)
	doc := store.Load()
	if _, err := os.Stat(store.Path()); err == nil {
		printCheck(w, useColor, true, fmt.Sprintf("Registry file readable (%s), %d database(s)", store.Path(), len(doc.Databases)))
	} else {
		printCheck(w, useColor, true, fmt.Sprintf("No registry file at %s, using environment fallback", store.Path()))
	}
	if doc.DefaultDatabase != "" {
		printCheck(w, useColor, true, fmt.Sprintf("Default database is %q", doc.DefaultDatabase))
	}

	// Check 3: every configured database answers a ping
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	registry := pgfleet.NewRegistry(nil, quiet)
	registry.ConnectAll(ctx, doc)
	defer registry.DisconnectAll()

	live := map[string]bool{}
	for _, id := range registry.ListIDs() {
		live[id] = true
	}
	for _, id := range doc.Order {
		spec := doc.Databases[id]
		target := fmt.Sprintf("%s (%s@%s:%d/%s)", id, spec.User, spec.Host, spec.Port, spec.Database)
		if live[id] {
			printCheck(w, useColor, true, "Connected "+target)
		} else {
			printCheck(w, useColor, false, "Cannot connect "+target)
			allPassed = false
		}
	}

	fmt.Fprintln(w)
	if allPassed {
		fmt.Fprintln(w, "All checks passed.")
	} else {
		fmt.Fprintln(w, "Fix the issues above and run 'pgfleet doctor' again.")
	}
	return nil
}

// checkQueryConfig verifies that configured regex patterns compile.
func checkQueryConfig(w io.Writer, useColor bool, config pgfleet.QueryConfig) bool {
	ok := true
	for i, rule := range config.TimeoutRules {
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			printCheck(w, useColor, false, fmt.Sprintf("timeout_rules[%d] regex compiles: %v", i, err))
			ok = false
		}
	}
	for i, rule := range config.ErrorPrompts {
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			printCheck(w, useColor, false, fmt.Sprintf("error_prompts[%d] regex compiles: %v", i, err))
			ok = false
		}
	}
	if ok {
		printCheck(w, useColor, true, "All regex patterns compile")
	}
	return ok
}

// printCheck prints a colored ✓ or ✗ check line.
func printCheck(w io.Writer, useColor bool, pass bool, msg string) {
	if pass {
		if useColor {
			fmt.Fprintf(w, "  \033[32m✓\033[0m %s\n", msg)
		} else {
			fmt.Fprintf(w, "  ✓ %s\n", msg)
		}
	} else {
		if useColor {
			fmt.Fprintf(w, "  \033[31m✗\033[0m %s\n", msg)
		} else {
			fmt.Fprintf(w, "  ✗ %s\n", msg)
		}
	}
}
