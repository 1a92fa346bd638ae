package gantry

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gantryci/gantry/pkg/artifacts"
	"github.com/gantryci/gantry/pkg/logging"
	"github.com/gantryci/gantry/pkg/models"
	"github.com/gantryci/gantry/pkg/pipeline"
	"github.com/gantryci/gantry/pkg/runner"
	"github.com/gantryci/gantry/pkg/store"
)

const (
	exitSucceeded = 0
	exitFailed    = 1
	exitCancelled = 2
)

var (
	pipelineFilePath string
	workingDir       string
	envVars          []string
	envFile          string
	storeKind        string
	artifactsDir     string
	s3Bucket         string
	s3Prefix         string
	defaultTimeout   time.Duration
	logFormat        string
	logLevel         string

	validate *validator.Validate = validator.New(validator.WithRequiredStructEnabled())
)

var rootCmd = &cobra.Command{
	Use:   "gantry",
	Short: "Gantry is a minimal CI pipeline runner",
	Long: `Gantry runs the steps of a pipeline file ( default gantry.yml ) in order,
stops at the first failing step, and always captures the declared artifacts
into a blob store, success or failure.`,

	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runPipeline())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&pipelineFilePath, "pipeline-file", "f", "gantry.yml", "Path to the pipeline file.")
	rootCmd.PersistentFlags().StringVarP(&workingDir, "working-dir", "C", "", "Working directory for steps and artifact sources. Defaults to the current directory.")
	rootCmd.PersistentFlags().StringArrayVarP(&envVars, "environment-variable", "e", make([]string, 0), "Environment variables. KEY=VALUE")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load additional environment variables from a dotenv file.")
	rootCmd.PersistentFlags().StringVar(&storeKind, "store", "dir", "Artifact store backend: dir or s3.")
	rootCmd.PersistentFlags().StringVar(&artifactsDir, "artifacts-dir", ".artifacts", "Directory for the dir artifact store.")
	rootCmd.PersistentFlags().StringVar(&s3Bucket, "s3-bucket", "", "Bucket for the s3 artifact store.")
	rootCmd.PersistentFlags().StringVar(&s3Prefix, "s3-prefix", "gantry", "Key prefix for the s3 artifact store.")
	rootCmd.PersistentFlags().DurationVar(&defaultTimeout, "timeout", time.Hour, "Default per-step timeout.")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", logging.Tint, "Log format: tint, text or json.")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error.")

	rootCmd.AddCommand(hookCmd)
	rootCmd.AddCommand(versionCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func runPipeline() int {
	if err := logging.Initialize(logFormat, logLevel); err != nil {
		log.Fatal(err)
	}

	p, err := loadPipeline(pipelineFilePath)
	if err != nil {
		log.Fatal(err)
	}

	env, err := buildEnv()
	if err != nil {
		log.Fatal(err)
	}

	blobs, err := buildStore()
	if err != nil {
		log.Fatal(err)
	}

	wd := workingDir
	if wd == "" {
		if wd, err = os.Getwd(); err != nil {
			log.Fatal(err)
		}
	}

	executor := pipeline.NewExecutor(pipeline.Config{
		Env:            env,
		DefaultTimeout: defaultTimeout,
		WorkingDir:     wd,
		Stdout:         os.Stdout,
		Stderr:         os.Stderr,
	}, &runner.DispatchLauncher{
		Shell:     runner.NewShellLauncher(),
		Container: runner.NewDockerLauncher(),
	}, artifacts.NewStoreCollector(blobs))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run := executor.Run(ctx, p)
	pipeline.WriteSummary(os.Stdout, run)

	switch run.Status() {
	case models.StatusSucceeded:
		return exitSucceeded
	case models.StatusCancelled:
		return exitCancelled
	default:
		return exitFailed
	}
}

func loadPipeline(path string) (models.Pipeline, error) {
	var p models.Pipeline

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return p, err
	}
	if err := yaml.Unmarshal(contents, &p); err != nil {
		return p, fmt.Errorf("could not parse pipeline file %s: %w", path, err)
	}
	if err := validate.Struct(p); err != nil {
		return p, fmt.Errorf("invalid pipeline file %s:\n%+v", path, err)
	}
	return p, nil
}

func buildEnv() ([]string, error) {
	env := make([]string, 0, len(envVars))

	if envFile != "" {
		fromFile, err := godotenv.Read(envFile)
		if err != nil {
			return nil, fmt.Errorf("could not read env file %s: %w", envFile, err)
		}
		for k, v := range fromFile {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	for _, v := range envVars {
		if key, _, ok := strings.Cut(v, "="); !ok || key == "" {
			return nil, fmt.Errorf("variables should be defined as KEY=VALUE: %s", v)
		}
		env = append(env, v)
	}
	return env, nil
}

func buildStore() (store.BlobStore, error) {
	switch storeKind {
	case "dir":
		return store.NewFileStore(artifactsDir)
	case "s3":
		if s3Bucket == "" {
			return nil, fmt.Errorf("the s3 store requires --s3-bucket")
		}
		return store.NewS3Store(context.Background(), s3Bucket, s3Prefix)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", storeKind)
	}
}
