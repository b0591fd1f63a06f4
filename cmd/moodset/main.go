package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/kikiluvv/moodset/internal/annotation"
	"github.com/kikiluvv/moodset/internal/config"
	"github.com/kikiluvv/moodset/internal/dataset"
	"github.com/kikiluvv/moodset/internal/features"
	"github.com/kikiluvv/moodset/internal/logging"
	"github.com/kikiluvv/moodset/internal/pipeline"
	"github.com/kikiluvv/moodset/pkg/util"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	cfgFile  string
	verbose  bool
	jsonLogs bool
	force    bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "moodset",
	Short: "moodset - emotion image feature dataset builder",
	Long: "Downloads crowd-annotated images, extracts texture, colour, affect and deep\n" +
		"embedding features, and stores them as a train/test dataset for a\n" +
		"positive/negative emotion classifier.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(logging.Options{Verbose: verbose, JSON: jsonLogs})

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		ctx := config.WithConfig(cmd.Context(), cfg)
		cmd.SetContext(ctx)

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./moodset.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "emit JSON log lines instead of console output")

	configInitCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(batchesCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

// ratioArgs accepts either no arguments or both ratio weights.
func ratioArgs(cmd *cobra.Command, args []string) error {
	if len(args) != 0 && len(args) != 2 {
		return fmt.Errorf("expected 0 or 2 arguments, got %d\nusage: %s", len(args), cmd.UseLine())
	}
	_, err := parseRatio(args)
	return err
}

func parseRatio(args []string) (dataset.Ratio, error) {
	if len(args) == 0 {
		return dataset.DefaultRatio, nil
	}
	train, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return dataset.Ratio{}, fmt.Errorf("invalid train ratio %q", args[0])
	}
	test, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return dataset.Ratio{}, fmt.Errorf("invalid test ratio %q", args[1])
	}
	r := dataset.Ratio{Train: train, Test: test}
	if _, err := r.TrainFraction(); err != nil {
		return dataset.Ratio{}, err
	}
	return r, nil
}

var buildCmd = &cobra.Command{
	Use:   "build [trainRatio testRatio]",
	Short: "Partition the annotations and extract features for every split",
	Args:  ratioArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		ratio, err := parseRatio(args)
		if err != nil {
			return err
		}

		pipe, err := pipeline.New(log.Logger, cfg)
		if err != nil {
			return err
		}
		defer pipe.Close()

		start := time.Now()
		summaries, err := pipe.Build(cmd.Context(), ratio)
		if errors.Is(err, pipeline.ErrNoDataset) {
			log.Error().
				Err(err).
				Str("hint", cfg.Dataset.ArchiveHint).
				Msgf("place the annotation folder at %s or the archive at %s", cfg.Dataset.Annotations, cfg.Dataset.Archive)
			return nil
		}

		for _, split := range cfg.Dataset.Splits {
			s, ok := summaries[split]
			if !ok {
				continue
			}
			log.Info().
				Str("split", split).
				Int("files", s.Files).
				Int("written", s.Written).
				Int("skipped", s.Skipped).
				Int("failed", s.Failed).
				Dur("elapsed", s.Elapsed).
				Msg("split complete")
		}
		if err != nil {
			return err
		}

		log.Info().Dur("elapsed", time.Since(start)).Msg("dataset build complete")
		return nil
	},
}

var batchesCmd = &cobra.Command{
	Use:   "batches [split]",
	Short: "Walk one epoch of mini-batches over a built split",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		split := "train"
		if len(args) == 1 {
			split = args[0]
		}
		logger := logging.WithComponent(log.Logger, "batches")

		store := dataset.NewStore(afero.NewOsFs(), cfg.Dataset.Root)
		files, err := store.List(split)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			logger.Warn().Str("split", split).Str("root", cfg.Dataset.Root).Msg("no feature vectors found, run build first")
			return nil
		}

		seed := cfg.Dataset.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		gen, err := dataset.NewGenerator(store, files, dataset.Options{
			BatchSize: cfg.Training.BatchSize,
			Shuffle:   cfg.Training.Shuffle,
			Width:     features.Width(cfg.Model.Classes),
			Rand:      rand.New(rand.NewSource(seed)),
		})
		if err != nil {
			return err
		}

		start := time.Now()
		var counts [2]int
		for i := 0; i < gen.Len(); i++ {
			if err := cmd.Context().Err(); err != nil {
				return err
			}
			b, err := gen.Batch(i)
			if err != nil {
				return err
			}
			rows, cols := b.Features.Dims()
			for _, l := range b.Labels {
				counts[l]++
			}
			logger.Debug().Int("batch", i).Int("rows", rows).Int("cols", cols).Ints("labels", b.Labels).Msg("batch loaded")
		}

		logger.Info().
			Str("split", split).
			Int("samples", gen.Samples()).
			Int("batches", gen.Len()).
			Int("batch_size", cfg.Training.BatchSize).
			Int("width", features.Width(cfg.Model.Classes)).
			Int(string(annotation.Positive), counts[annotation.Positive.Index()]).
			Int(string(annotation.Negative), counts[annotation.Negative.Index()]).
			Int("dropped", gen.Samples()-gen.Len()*cfg.Training.BatchSize).
			Dur("elapsed", time.Since(start)).
			Msg("epoch complete")
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config management commands",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := yaml.Marshal(config.FromContext(cmd.Context()))
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration to a file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "moodset.yaml"
		if len(args) == 1 {
			path = util.ExpandHome(args[0])
		}
		if util.FileExists(path) && !force {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		}
		if err := config.Default().Save(path); err != nil {
			return err
		}
		log.Info().Str("path", path).Msg("config written")
		return nil
	},
}
