// Command logcli queries a durable log directory without running the server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/V4T54L/callwatch/internal/adapter/repository/file"
	"github.com/V4T54L/callwatch/internal/domain"
	"github.com/V4T54L/callwatch/internal/pkg/config"
	"github.com/V4T54L/callwatch/internal/pkg/logger"
	"github.com/V4T54L/callwatch/internal/usecase"
)

const usage = `usage: logcli [flags] <stats|recent|search|export|clean>

flags:
`

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "logcli:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	defaults, err := config.LoadFileStore()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	fs := flag.NewFlagSet("logcli", flag.ContinueOnError)
	dir := fs.String("dir", defaults.LogDir, "log directory (LOG_DIR)")
	kindFlag := fs.String("type", "all", "entry kind: all, api, flow or error")
	count := fs.Int("count", 10, "number of entries for recent")
	keyword := fs.String("keyword", "", "keyword for search")
	format := fs.String("format", usecase.FormatJSON, "export format: json or csv")
	out := fs.String("o", "", "write export to this file instead of stdout")
	retention := fs.Duration("retention", defaults.FileRetention, "file retention for clean (FILE_RETENTION)")
	level := fs.String("log-level", "warn", "log level")
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("exactly one command is required")
	}

	kind, err := domain.ParseKind(*kindFlag)
	if err != nil {
		return err
	}

	// The repository creates its directory; a query must not.
	info, err := os.Stat(*dir)
	if err != nil {
		return fmt.Errorf("log directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("log directory %s is not a directory", *dir)
	}

	log := logger.New(*level)
	repo, err := file.NewRepository(*dir, *retention, log)
	if err != nil {
		return err
	}
	defer repo.Close()
	svc := usecase.NewLogService(repo, log)

	switch cmd := fs.Arg(0); cmd {
	case "stats":
		stats, err := svc.GetStats(ctx)
		if err != nil {
			return err
		}
		return printJSON(stdout, stats)
	case "recent":
		entries, err := svc.GetRecent(ctx, kind, *count)
		if err != nil {
			return err
		}
		return printJSON(stdout, entries)
	case "search":
		entries, err := svc.Search(ctx, *keyword, kind)
		if err != nil {
			return err
		}
		return printJSON(stdout, entries)
	case "export":
		res, err := svc.Export(ctx, *format)
		if err != nil {
			return err
		}
		if *out == "" {
			_, err = stdout.Write(res.Body)
			return err
		}
		if err := os.WriteFile(*out, res.Body, 0o644); err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}
		log.Info("export written", "file", *out, "bytes", len(res.Body))
		return nil
	case "clean":
		removed, err := svc.Prune(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "removed %d file(s)\n", removed)
		return nil
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

