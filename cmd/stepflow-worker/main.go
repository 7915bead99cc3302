// Command stepflow-worker runs a pool of job workers against a shared
// SQLite job store and task queue. Project files are expected under a
// configurable projects root; the built-in project-file workflow scans
// and checksums them, producing a feedback document on the job record.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/fieldworks/stepflow"
	"github.com/fieldworks/stepflow/internal/logutil"
	"github.com/fieldworks/stepflow/pkg/fileops"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "stepflow-worker",
	Short: "Process stepflow jobs from a shared SQLite queue",
	Long: `stepflow-worker pulls queued jobs from a SQLite database shared with
the enqueuing application, runs the workflow registered for each job type,
and writes the resulting feedback document back onto the job record.`,
	RunE: runWorker,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.Flags().String("db", "stepflow.db", "path to the SQLite database")
	rootCmd.Flags().Int("concurrency", 1, "number of concurrent workers")
	rootCmd.Flags().String("projects-root", "projects", "directory containing project files, one subdirectory per project")
	rootCmd.Flags().String("workdir-base", "", "base directory for per-run working roots (default: OS temp)")
	rootCmd.Flags().Bool("debug", false, "enable debug logging")

	_ = viper.BindPFlag("db", rootCmd.Flags().Lookup("db"))
	_ = viper.BindPFlag("concurrency", rootCmd.Flags().Lookup("concurrency"))
	_ = viper.BindPFlag("projects_root", rootCmd.Flags().Lookup("projects-root"))
	_ = viper.BindPFlag("workdir_base", rootCmd.Flags().Lookup("workdir-base"))
	_ = viper.BindPFlag("debug", rootCmd.Flags().Lookup("debug"))

	viper.SetEnvPrefix("STEPFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func runWorker(cmd *cobra.Command, args []string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}

	zapCfg := zap.NewProductionConfig()
	if viper.GetBool("debug") {
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := zapCfg.Build(logutil.NewRedaction())
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer logger.Sync()

	slogger := logutil.NewSlogBridge(logger)

	dsn := "file:" + viper.GetString("db") + "?_journal=WAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	bundle, err := stepflow.NewSQLiteBundle(db, stepflow.WorkerConfig{
		WorkDirBase: viper.GetString("workdir_base"),
		Observer:    stepflow.NewLoggingObserver(slogger),
		Logger:      slogger,
	})
	if err != nil {
		return fmt.Errorf("initialize worker bundle: %w", err)
	}

	projectsRoot := viper.GetString("projects_root")
	bundle.Worker.RegisterFactory(stepflow.JobTypeProcessFile, projectFileFactory(projectsRoot))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	concurrency := viper.GetInt("concurrency")
	if concurrency <= 0 {
		concurrency = 1
	}

	logger.Info("worker started",
		zap.String("db", viper.GetString("db")),
		zap.Int("concurrency", concurrency),
	)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer wg.Done()

			for {
				_, err := bundle.Worker.ProcessOne(ctx)
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return
					}
					logger.Error("job processing error", zap.Error(err))
				}
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()

	logger.Info("worker stopped")
	return nil
}

// projectFileFactory builds the workflow for process_projectfile jobs:
// scan the project directory and checksum every file, externalizing the
// listing and the file count.
func projectFileFactory(projectsRoot string) stepflow.WorkflowFactory {
	return func(job *stepflow.Job) (*stepflow.Workflow, error) {
		projectDir := filepath.Join(projectsRoot, job.ProjectID)

		return stepflow.New(string(job.Type), "1.0", "Process project file").
			Describe("Scan and checksum the files of one project.").
			Step("scan", "Scan project files", fileops.ListFilesOperation(),
				stepflow.Args{"dir": stepflow.Lit(projectDir)},
				stepflow.Returns("files", "count"),
				stepflow.Outputs("files", "count"),
			).
			Build()
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
