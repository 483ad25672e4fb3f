package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"text/tabwriter"
	"time"

	"filedrop/internal/client"
)

const usage = `usage: filedrop <command> [flags] [args]

commands:
  login              exchange the admin password for a token
  upload <path>...   upload files; directories are zipped first
  ls                 list stored files
  info <name>        show metadata for one file
  get <name>         download a file
  rm <name>          delete a file

Every command accepts -server (or $FILEDROP_SERVER) and -token (or $FILEDROP_TOKEN).
`

type globals struct {
	server string
	token  string
}

func (g *globals) register(fs *flag.FlagSet) {
	fs.StringVar(&g.server, "server", envOr("FILEDROP_SERVER", "http://localhost:3000"), "server base URL")
	fs.StringVar(&g.token, "token", os.Getenv("FILEDROP_TOKEN"), "bearer token")
}

func (g *globals) client() *client.Client {
	return client.New(g.server, g.token, nil)
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string, args []string, out io.Writer) error {
	var g globals
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	g.register(fs)

	switch cmd {
	case "help", "-h", "-help", "--help":
		fmt.Fprint(out, usage)
		return nil

	case "login":
		password := fs.String("password", os.Getenv("FILEDROP_PASSWORD"), "admin password (or $FILEDROP_PASSWORD)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *password == "" {
			return errors.New("a password is required")
		}
		token, expires, err := g.client().Login(ctx, *password)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\n", token)
		fmt.Fprintf(os.Stderr, "token expires %s\n", expires.Local().Format(time.RFC1123))
		return nil

	case "upload":
		if err := fs.Parse(args); err != nil {
			return err
		}
		paths, err := client.ParseArgs(fs.Args())
		if err != nil {
			return err
		}
		c := g.client()
		for _, p := range paths {
			res, err := c.UploadPath(ctx, p)
			if err != nil {
				return fmt.Errorf("%s: %w", p.FullPath, err)
			}
			fmt.Fprintf(out, "✓ %s -> %s (%d bytes)\n", filepath.Base(p.FullPath), res.SavedAs, res.Size)
			if res.URL != "" {
				fmt.Fprintf(out, "  %s\n", res.URL)
			}
		}
		return nil

	case "ls":
		if err := fs.Parse(args); err != nil {
			return err
		}
		files, err := g.client().List(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tSIZE\tMODIFIED")
		for _, f := range files {
			fmt.Fprintf(tw, "%s\t%d\t%s\n", f.Filename, f.Size, f.Modified.Local().Format(time.DateTime))
		}
		return tw.Flush()

	case "info":
		name, err := parseName(fs, args)
		if err != nil {
			return err
		}
		f, err := g.client().Info(ctx, name)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "name:     %s\nsize:     %d\ncreated:  %s\nmodified: %s\nurl:      %s\n",
			f.Filename, f.Size, f.Created.Local().Format(time.DateTime), f.Modified.Local().Format(time.DateTime), f.URL)
		return nil

	case "get":
		output := fs.String("o", "", "output path (defaults to the file name, - for stdout)")
		name, err := parseName(fs, args)
		if err != nil {
			return err
		}
		return download(ctx, g.client(), name, *output, out)

	case "rm":
		name, err := parseName(fs, args)
		if err != nil {
			return err
		}
		if err := g.client().Delete(ctx, name); err != nil {
			return err
		}
		fmt.Fprintf(out, "deleted %s\n", name)
		return nil

	default:
		return fmt.Errorf("unknown command %q\n\n%s", cmd, usage)
	}
}

func parseName(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 {
		return "", &client.ValidationError{Arg: "<name>", Cause: "exactly one file name is required"}
	}
	return fs.Arg(0), nil
}

func download(ctx context.Context, c *client.Client, name, output string, stdout io.Writer) error {
	if output == "-" {
		_, err := c.Download(ctx, name, stdout)
		return err
	}
	if output == "" {
		output = filepath.Base(name)
	}

	f, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	n, err := c.Download(ctx, name, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(output)
		return err
	}
	fmt.Fprintf(os.Stderr, "saved %s (%d bytes)\n", output, n)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
