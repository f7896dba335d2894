package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nconklindev/conso2b/internal/config"
	"github.com/nconklindev/conso2b/internal/consolidate"
	"github.com/nconklindev/conso2b/internal/loader"
	"github.com/nconklindev/conso2b/internal/logging"
	"github.com/nconklindev/conso2b/internal/ui"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "conso2b",
		Short:         "Consolidate GSTR-2B exports into a single table",
		Long:          "conso2b merges selected sheets of many GSTR-2B CSV and Excel files into one table, tagging every row with its source file and sheet.",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUI(cmd)
		},
	}
	cmd.SetVersionTemplate(fmt.Sprintf("conso2b %s\ncommit: %s\nbuilt: %s\n", version, commit, date))

	f := cmd.PersistentFlags()
	f.String("config", "", "config file (default: ./conso2b.yaml or $HOME/.config/conso2b/conso2b.yaml)")
	f.String("env-file", ".env", "dotenv file read before environment variables")
	f.String("log-level", "info", "log level: debug, info, warn, error")
	f.String("log-format", "text", "log format: text, json")
	f.String("log-file", "", "write logs to this file")
	f.Int("workers", consolidate.DefaultWorkers, "pairs loaded in parallel")
	f.String("marker", "", "header marker text searched in the first rows")
	f.Int("scan-rows", 0, "rows scanned for the header marker")
	f.String("sentinel", "", "value written into missing cells")
	f.Bool("raw-values", false, "read spreadsheet cells without number formatting")

	cmd.AddCommand(newSheetsCmd(), newMergeCmd())
	return cmd
}

// app holds everything a command needs once configuration is resolved.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	loader *loader.Loader
	engine *consolidate.Engine
	closer io.Closer
}

func (a *app) Close() error {
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

// setup loads configuration and configures logging. fallback receives logs
// when no log file is configured.
func setup(cmd *cobra.Command, fallback io.Writer) (*app, error) {
	configFile, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")

	cfg, err := config.Load(config.Options{
		ConfigFile: configFile,
		EnvFile:    envFile,
		Flags:      cmd.Flags(),
	})
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	a := &app{cfg: cfg}

	w := fallback
	if cfg.Log.File != "" {
		f, err := logging.OpenFile(cfg.Log.File)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		a.closer = f
		w = f
	}
	a.logger = logging.Setup(w, cfg.Log.Level, cfg.Log.Format)

	a.loader = loader.New(cfg.LoaderOptions())

	engineOpts := cfg.EngineOptions()
	engineOpts.Logger = a.logger
	a.engine = consolidate.New(a.loader, engineOpts)

	return a, nil
}

func runUI(cmd *cobra.Command) error {
	// The alternate screen owns stdout; logs only go to a configured file.
	a, err := setup(cmd, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	a.logger.Info("starting ui", "version", version)

	model := ui.InitialModel(ui.Deps{
		Loader:    a.loader,
		Engine:    a.engine,
		ExportDir: a.cfg.ExportDir,
		Logger:    a.logger,
	})

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}
