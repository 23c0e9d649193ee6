package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/bytedance/sonic"
	"github.com/gabriel-vasile/mimetype"

	"github.com/GriffinCanCode/sandbox-bridge/internal/bridge/dialog"
	"github.com/GriffinCanCode/sandbox-bridge/internal/client"
	"github.com/GriffinCanCode/sandbox-bridge/internal/domain/execution"
	"github.com/GriffinCanCode/sandbox-bridge/internal/shared/utils"
)

const usage = `usage: sandboxctl [-addr URL] [-timeout D] <command> [args]

commands:
  run <file|glob>...     run each script and print its output
  console [-mode M]      print the console view (all or lastOnly)
  mode <all|lastOnly>    set the default display mode
  clear                  remove every run
  status                 print the supervisor status
  recycle                replace the realm
  dialog                 print the presented dialog
  resolve <id> [value]   answer a dialog; -cancel dismisses it
`

func main() {
	log.SetFlags(0)
	log.SetPrefix("sandboxctl: ")

	addr := flag.String("addr", envOr("SANDBOX_ADDR", "http://localhost:8000"), "Bridge server base URL")
	timeout := flag.Duration("timeout", 30*time.Second, "Per-command timeout")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	c := client.New(*addr, client.DefaultOptions())
	if err := dispatch(ctx, c, flag.Arg(0), flag.Args()[1:]); err != nil {
		log.Fatal(err)
	}
}

func dispatch(ctx context.Context, c *client.Client, cmd string, args []string) error {
	switch cmd {
	case "run":
		return runScripts(ctx, c, args)
	case "console":
		fs := flag.NewFlagSet("console", flag.ExitOnError)
		mode := fs.String("mode", "", "Display mode override")
		fs.Parse(args)
		return printConsole(ctx, c, execution.DisplayMode(*mode))
	case "mode":
		if len(args) != 1 {
			return errors.New("mode takes one argument")
		}
		return c.SetMode(ctx, execution.DisplayMode(args[0]))
	case "clear":
		return c.Clear(ctx)
	case "status":
		st, err := c.Status(ctx)
		if err != nil {
			return err
		}
		printJSON(st)
		return nil
	case "recycle":
		st, err := c.Recycle(ctx)
		if err != nil {
			return err
		}
		printJSON(st)
		return nil
	case "dialog":
		d, err := c.CurrentDialog(ctx)
		if err != nil {
			return err
		}
		if d == nil {
			fmt.Println("no dialog")
			return nil
		}
		printJSON(d)
		return nil
	case "resolve":
		return resolve(ctx, c, args)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func runScripts(ctx context.Context, c *client.Client, patterns []string) error {
	files, err := expand(patterns)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("run: no scripts matched")
	}

	for _, path := range files {
		code, err := readScript(path)
		if err != nil {
			return err
		}

		run, err := c.Run(ctx, code)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		fmt.Printf("== %s (%s, %s)\n", path, run.ID, run.Status)
		for _, msg := range run.Messages {
			fmt.Println(msg.String())
		}
	}
	return nil
}

// expand resolves globs; a pattern with no match is kept as a literal path
func expand(patterns []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			matches = []string{pattern}
		}
		for _, m := range matches {
			m = filepath.Clean(m)
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	return files, nil
}

// readScript loads a file after checking it is text
func readScript(path string) (string, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	if !isText(mtype) {
		return "", fmt.Errorf("%s: not a script (%s)", path, mtype.String())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	code := string(data)
	if err := utils.ValidateCode(code); err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return code, nil
}

func isText(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is("text/plain") || m.Is("text/javascript") || m.Is("application/javascript") {
			return true
		}
	}
	return false
}

func printConsole(ctx context.Context, c *client.Client, mode execution.DisplayMode) error {
	mode, entries, err := c.Console(ctx, mode)
	if err != nil {
		return err
	}
	fmt.Printf("== console (%s, %d entries)\n", mode, len(entries))
	for _, e := range entries {
		fmt.Printf("[%s] %s\n", e.RunID, e.Message.String())
	}
	return nil
}

func resolve(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("resolve", flag.ExitOnError)
	cancel := fs.Bool("cancel", false, "Dismiss instead of answering")
	fs.Parse(args)
	if fs.NArg() < 1 {
		return errors.New("resolve needs a dialog id")
	}

	var ans dialog.Answer
	if !*cancel {
		ans.Confirmed = true
		if fs.NArg() > 1 {
			value := fs.Arg(1)
			ans.Value = &value
		}
	}
	return c.Resolve(ctx, fs.Arg(0), ans)
}

func printJSON(v any) {
	data, err := sonic.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Printf("encode: %v", err)
		return
	}
	fmt.Println(string(data))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
