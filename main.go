// Copyright 2025 Ukweli Project
//
// UkweliDB Command-Line Front-End
// Thin CLI over the ledger façade. One operation per process invocation;
// exit codes: 0 success, 1 input error, 2 integrity failure, 3 I/O error.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ukweli/ukwelidb/pkg/config"
	"github.com/ukweli/ukwelidb/pkg/database"
	"github.com/ukweli/ukwelidb/pkg/ledger"
	"github.com/ukweli/ukwelidb/pkg/metrics"
	"github.com/ukweli/ukwelidb/pkg/record"
	"github.com/ukweli/ukwelidb/pkg/server"
)

const usage = `UkweliDB - tamper-evident, append-only ledger

Usage:
  ukwelidb init [--dir DIR] [--name NAME]
  ukwelidb user create <name> [--dir DIR]
  ukwelidb user add-role <name> <role> [--dir DIR]
  ukwelidb user list [--dir DIR]
  ukwelidb user show <name> [--dir DIR]
  ukwelidb record append <payload> --signers <n1,n2> [--workflow W --action A --entity E] [--dir DIR]
  ukwelidb record list [--dir DIR]
  ukwelidb record show <id> [--dir DIR]
  ukwelidb record verify [--dir DIR]
  ukwelidb record proof <id> [--dir DIR]
  ukwelidb workflow list [--dir DIR]
  ukwelidb workflow state <workflow> <entity> [--dir DIR]
  ukwelidb serve [--listen ADDR] [--dir DIR]
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cfg := config.Load()

	var err error
	switch os.Args[1] {
	case "init":
		err = cmdInit(cfg, os.Args[2:])
	case "user":
		err = cmdUser(cfg, os.Args[2:])
	case "record":
		err = cmdRecord(cfg, os.Args[2:])
	case "workflow":
		err = cmdWorkflow(cfg, os.Args[2:])
	case "serve":
		err = cmdServe(cfg, os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ledger.ExitCode(ledger.KindOf(err)))
	}
}

// dirFlag registers the shared --dir flag on a subcommand flag set.
func dirFlag(fs *flag.FlagSet, cfg *config.Config) *string {
	return fs.String("dir", cfg.DataDir, "database directory")
}

func nowMS() int64 {
	return time.Now().UTC().UnixMilli()
}

// openLedger opens the database with metrics and the optional mirror wired.
func openLedger(cfg *config.Config, dir string) (*ledger.Ledger, *metrics.Metrics, func(), error) {
	m := metrics.New()
	opts := []ledger.Option{ledger.WithMetrics(m)}
	cleanup := func() {}

	dbCfg, err := config.LoadDBConfig(dir)
	if err == nil && dbCfg.Mirror.Enabled {
		client, cerr := database.NewClient(dbCfg.Mirror.URL, cfg)
		if cerr != nil {
			log.Printf("[CLI] mirror unavailable: %v", cerr)
		} else {
			repo := database.NewRecordRepository(client)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if serr := repo.EnsureSchema(ctx); serr != nil {
				log.Printf("[CLI] mirror schema: %v", serr)
				client.Close()
			} else {
				opts = append(opts, ledger.WithMirror(repo))
				cleanup = func() { client.Close() }
			}
			cancel()
		}
	}

	l, err := ledger.Open(dir, opts...)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	return l, m, cleanup, nil
}

func cmdInit(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	dir := dirFlag(fs, cfg)
	name := fs.String("name", "ukwelidb", "database name")
	fs.Parse(args)

	l, err := ledger.Init(*dir, *name, nowMS())
	if err != nil {
		return err
	}
	defer l.Close()

	fmt.Printf("Initialized database %q in %s (chain length %d)\n", *name, *dir, l.Len())
	return nil
}

func cmdUser(cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("user requires a subcommand: create, add-role, list, show")
	}
	sub, rest := args[0], args[1:]

	switch sub {
	case "create":
		fs := flag.NewFlagSet("user create", flag.ExitOnError)
		dir := dirFlag(fs, cfg)
		if len(rest) < 1 || strings.HasPrefix(rest[0], "-") {
			return fmt.Errorf("user create requires a user name")
		}
		name := rest[0]
		fs.Parse(rest[1:])

		l, _, cleanup, err := openLedger(cfg, *dir)
		if err != nil {
			return err
		}
		defer cleanup()
		defer l.Close()

		rec, err := l.UserCreate(name, nowMS())
		if err != nil {
			return err
		}
		fmt.Printf("Created user %q (record %d)\n", name, rec.ID)
		return nil

	case "add-role":
		fs := flag.NewFlagSet("user add-role", flag.ExitOnError)
		dir := dirFlag(fs, cfg)
		if len(rest) < 2 {
			return fmt.Errorf("user add-role requires a user name and a role")
		}
		name, role := rest[0], rest[1]
		fs.Parse(rest[2:])

		l, _, cleanup, err := openLedger(cfg, *dir)
		if err != nil {
			return err
		}
		defer cleanup()
		defer l.Close()

		rec, err := l.UserAddRole(name, role, nowMS())
		if err != nil {
			return err
		}
		fmt.Printf("Granted role %q to %q (record %d)\n", role, name, rec.ID)
		return nil

	case "list":
		fs := flag.NewFlagSet("user list", flag.ExitOnError)
		dir := dirFlag(fs, cfg)
		fs.Parse(rest)

		l, _, cleanup, err := openLedger(cfg, *dir)
		if err != nil {
			return err
		}
		defer cleanup()
		defer l.Close()

		for _, u := range l.Users() {
			fmt.Printf("%s\t%x\t%s\n", u.Name, u.PublicKey, strings.Join(u.RoleList(), ","))
		}
		return nil

	case "show":
		fs := flag.NewFlagSet("user show", flag.ExitOnError)
		dir := dirFlag(fs, cfg)
		if len(rest) < 1 {
			return fmt.Errorf("user show requires a user name")
		}
		name := rest[0]
		fs.Parse(rest[1:])

		l, _, cleanup, err := openLedger(cfg, *dir)
		if err != nil {
			return err
		}
		defer cleanup()
		defer l.Close()

		u, err := l.User(name)
		if err != nil {
			return err
		}
		fmt.Printf("Name:       %s\n", u.Name)
		fmt.Printf("Public key: %x\n", u.PublicKey)
		fmt.Printf("Roles:      %s\n", strings.Join(u.RoleList(), ", "))
		return nil
	}
	return fmt.Errorf("unknown user subcommand %q", sub)
}

func cmdRecord(cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("record requires a subcommand: append, list, show, verify, proof")
	}
	sub, rest := args[0], args[1:]

	switch sub {
	case "append":
		fs := flag.NewFlagSet("record append", flag.ExitOnError)
		dir := dirFlag(fs, cfg)
		signers := fs.String("signers", "", "comma-separated signer names")
		workflowName := fs.String("workflow", "", "workflow name for a gated record")
		action := fs.String("action", "", "workflow action name")
		entity := fs.String("entity", "", "entity id")
		if len(rest) < 1 || strings.HasPrefix(rest[0], "-") {
			return fmt.Errorf("record append requires a payload")
		}
		payload := rest[0]
		fs.Parse(rest[1:])

		if *signers == "" {
			return fmt.Errorf("--signers is required")
		}
		var names []string
		for _, s := range strings.Split(*signers, ",") {
			if s = strings.TrimSpace(s); s != "" {
				names = append(names, s)
			}
		}

		p := &ledger.Proposal{
			Timestamp: nowMS(),
			Payload:   []byte(payload),
			EntityID:  *entity,
			Signers:   names,
		}
		if *workflowName != "" || *action != "" {
			if *workflowName == "" || *action == "" {
				return fmt.Errorf("--workflow and --action must be given together")
			}
			p.Workflow = &record.WorkflowRef{Name: *workflowName, Action: *action}
		}

		l, _, cleanup, err := openLedger(cfg, *dir)
		if err != nil {
			return err
		}
		defer cleanup()
		defer l.Close()

		rec, err := l.Append(p)
		if err != nil {
			return err
		}
		fmt.Printf("Appended record %d (hash %s)\n", rec.ID, rec.HashHex())
		return nil

	case "list":
		fs := flag.NewFlagSet("record list", flag.ExitOnError)
		dir := dirFlag(fs, cfg)
		fs.Parse(rest)

		l, _, cleanup, err := openLedger(cfg, *dir)
		if err != nil {
			return err
		}
		defer cleanup()
		defer l.Close()

		for _, rec := range l.Records() {
			wf := ""
			if rec.Workflow != nil {
				wf = fmt.Sprintf("%s/%s", rec.Workflow.Name, rec.Workflow.Action)
			}
			fmt.Printf("%d\t%s\t%s\t%s\t%s\n",
				rec.ID,
				time.UnixMilli(rec.Timestamp).UTC().Format(time.RFC3339),
				rec.EntityID, wf, rec.HashHex())
		}
		return nil

	case "show":
		fs := flag.NewFlagSet("record show", flag.ExitOnError)
		dir := dirFlag(fs, cfg)
		if len(rest) < 1 {
			return fmt.Errorf("record show requires a record id")
		}
		id, perr := strconv.ParseUint(rest[0], 10, 64)
		if perr != nil {
			return fmt.Errorf("invalid record id %q", rest[0])
		}
		fs.Parse(rest[1:])

		l, _, cleanup, err := openLedger(cfg, *dir)
		if err != nil {
			return err
		}
		defer cleanup()
		defer l.Close()

		rec, err := l.Record(id)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil

	case "proof":
		fs := flag.NewFlagSet("record proof", flag.ExitOnError)
		dir := dirFlag(fs, cfg)
		if len(rest) < 1 {
			return fmt.Errorf("record proof requires a record id")
		}
		id, perr := strconv.ParseUint(rest[0], 10, 64)
		if perr != nil {
			return fmt.Errorf("invalid record id %q", rest[0])
		}
		fs.Parse(rest[1:])

		l, _, cleanup, err := openLedger(cfg, *dir)
		if err != nil {
			return err
		}
		defer cleanup()
		defer l.Close()

		proof, err := l.InclusionProof(id)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(proof, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil

	case "verify":
		fs := flag.NewFlagSet("record verify", flag.ExitOnError)
		dir := dirFlag(fs, cfg)
		fs.Parse(rest)

		l, _, cleanup, err := openLedger(cfg, *dir)
		if err != nil {
			return err
		}
		defer cleanup()
		defer l.Close()

		report, err := l.Verify()
		if err != nil {
			return err
		}
		if report.OK {
			fmt.Printf("OK: %d records verified\n", report.Records)
			return nil
		}
		fmt.Printf("FAILED: %d break(s) in %d records\n", len(report.Breaks), report.Records)
		for _, b := range report.Breaks {
			fmt.Printf("  record %d: %s: %s\n", b.RecordID, b.Kind, b.Reason)
		}
		return fmt.Errorf("%w: %d break(s)", ledger.ErrVerifyFailed, len(report.Breaks))
	}
	return fmt.Errorf("unknown record subcommand %q", sub)
}

func cmdWorkflow(cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("workflow requires a subcommand: list, state")
	}
	sub, rest := args[0], args[1:]

	switch sub {
	case "list":
		fs := flag.NewFlagSet("workflow list", flag.ExitOnError)
		dir := dirFlag(fs, cfg)
		fs.Parse(rest)

		l, _, cleanup, err := openLedger(cfg, *dir)
		if err != nil {
			return err
		}
		defer cleanup()
		defer l.Close()

		for _, def := range l.Workflows() {
			fmt.Printf("%s@%s\tstates=%s\tterminal=%s\n",
				def.Name, def.Version,
				strings.Join(def.States, ","),
				strings.Join(def.TerminalList(), ","))
		}
		return nil

	case "state":
		fs := flag.NewFlagSet("workflow state", flag.ExitOnError)
		dir := dirFlag(fs, cfg)
		if len(rest) < 2 {
			return fmt.Errorf("workflow state requires a workflow name and an entity id")
		}
		workflowName, entity := rest[0], rest[1]
		fs.Parse(rest[2:])

		l, _, cleanup, err := openLedger(cfg, *dir)
		if err != nil {
			return err
		}
		defer cleanup()
		defer l.Close()

		state, err := l.CurrentState(workflowName, entity)
		if err != nil {
			return err
		}
		fmt.Printf("%s\n", state)
		return nil
	}
	return fmt.Errorf("unknown workflow subcommand %q", sub)
}

func cmdServe(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	dir := dirFlag(fs, cfg)
	listen := fs.String("listen", cfg.ListenAddr, "listen address")
	fs.Parse(args)

	l, m, cleanup, err := openLedger(cfg, *dir)
	if err != nil {
		return err
	}
	defer cleanup()
	defer l.Close()

	mux := server.NewMux(l, m)
	log.Printf("[Serve] database %q listening on %s", l.Name(), *listen)
	return http.ListenAndServe(*listen, mux)
}
