package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yourusername/toolshub/internal/pdf"
	"github.com/yourusername/toolshub/internal/storage"
	"github.com/yourusername/toolshub/internal/transform"
)

var runCmd = &cobra.Command{
	Use:   "run <tool> <file>...",
	Short: "Run one tool and write the result to disk",
	Long: `Run uploads the given PDF files to the tool's transform endpoint, prints
advisory progress while waiting and writes the artifact into --out.

Parameters are passed with --param name=value, for example:

  toolsctl run add-watermark report.pdf --param text=CONFIDENTIAL
  toolsctl run rotate-pdf report.pdf --param pages=1-3 --param angle=180`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		paramValues, _ := cmd.Flags().GetStringArray("param")
		params, err := parseParams(paramValues)
		if err != nil {
			return err
		}

		op := pdf.OperationType(args[0])
		if _, ok := pdf.Lookup(op); !ok {
			return fmt.Errorf("unknown tool %q (see `toolsctl list`)", args[0])
		}

		endpoint := viper.GetString("endpoint")
		if endpoint == "" {
			endpoint = viper.GetString(endpointKey(op))
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		path, err := runTool(ctx, runOptions{
			Operation: op,
			Files:     args[1:],
			Params:    params,
			Endpoint:  endpoint,
			OutDir:    viper.GetString("out"),
			Timeout:   viper.GetDuration("timeout"),
			Progress:  cmd.ErrOrStderr(),
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	runCmd.Flags().StringArray("param", nil, "tool parameter as name=value (repeatable)")
	runCmd.Flags().String("endpoint", "", "transform endpoint URL (default: the tool's configured endpoint)")
	runCmd.Flags().String("out", ".", "directory to write the result into")
	runCmd.Flags().Duration("timeout", 2*time.Minute, "request timeout")

	_ = viper.BindPFlag("endpoint", runCmd.Flags().Lookup("endpoint"))
	_ = viper.BindPFlag("out", runCmd.Flags().Lookup("out"))
	_ = viper.BindPFlag("timeout", runCmd.Flags().Lookup("timeout"))

	rootCmd.AddCommand(runCmd)
}

type runOptions struct {
	Operation pdf.OperationType
	Files     []string
	Params    map[string]string
	Endpoint  string
	OutDir    string
	Timeout   time.Duration
	Progress  io.Writer
}

// runTool は1回分の変換を実行し、書き出したファイルのパスを返します。
func runTool(ctx context.Context, opts runOptions) (string, error) {
	workDir, err := os.MkdirTemp("", "toolsctl-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(workDir)

	store, err := storage.NewLocal(workDir)
	if err != nil {
		return "", err
	}

	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	progress := opts.Progress
	if progress == nil {
		progress = io.Discard
	}
	ctrl, err := transform.NewController(opts.Operation, transform.Options{
		Endpoint: opts.Endpoint,
		Client:   transform.NewClient(&http.Client{}, logger),
		Storage:  store,
		Timeout:  opts.Timeout,
		Logger:   logger,
		Observer: progressPrinter(progress),
	})
	if err != nil {
		return "", err
	}
	defer ctrl.Close()

	sources := make([]transform.Source, 0, len(opts.Files))
	for _, name := range opts.Files {
		file, err := os.Open(name)
		if err != nil {
			return "", err
		}
		defer file.Close()
		sources = append(sources, transform.Source{Name: filepath.Base(name), Reader: file})
	}

	accepted, err := ctrl.SelectInput(ctx, sources...)
	if err != nil {
		return "", err
	}
	if !accepted {
		return "", errors.New("no PDF file was accepted")
	}
	for name, value := range opts.Params {
		ctrl.SetParameter(name, value)
	}

	if err := ctrl.Submit(ctx); err != nil {
		return "", err
	}
	if err := ctrl.Wait(ctx); err != nil {
		// Ctrl-C ではリクエストも取り消す
		ctrl.Reset()
		return "", err
	}

	snap := ctrl.Snapshot()
	if snap.Status == transform.StatusFailed && snap.Error != nil {
		return "", fmt.Errorf("%s: %s", snap.Error.Code, snap.Error.Message)
	}

	delivery, err := ctrl.Download()
	if err != nil {
		return "", err
	}
	defer delivery.Body.Close()

	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return "", err
	}
	outPath := filepath.Join(opts.OutDir, delivery.Filename)
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, delivery.Body); err != nil {
		_ = out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return outPath, nil
}

func progressPrinter(w io.Writer) transform.Observer {
	last := -1
	return func(snap transform.Snapshot) {
		if snap.JobID == "" || snap.Progress.Percent == last {
			return
		}
		last = snap.Progress.Percent
		fmt.Fprintf(w, "[%3d%%] %s\n", snap.Progress.Percent, snap.Status)
	}
}

// parseParams は name=value の並びをパラメータに変換します。同じ名前は後勝ちです。
func parseParams(values []string) (map[string]string, error) {
	params := make(map[string]string, len(values))
	for _, v := range values {
		name, value, ok := strings.Cut(v, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --param %q: expected name=value", v)
		}
		params[name] = value
	}
	return params, nil
}
