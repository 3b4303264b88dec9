package run

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdetect/pdetect-go/internal/analysis"
	"github.com/pdetect/pdetect-go/internal/conf"
)

// Command creates a new cobra.Command for executing a detection run.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [path]",
		Short: "Run person detection over a classified image directory",
		Long:  "Provide a directory of classified images to run the configured detection model over all of them.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings.Input.Path = args[0]
			if err := settings.Validate(); err != nil {
				return err
			}

			// SIGINT or SIGTERM cancels the run at the next image boundary.
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			_, err := analysis.Execute(ctx, settings)
			return err
		},
	}

	setupFlags(cmd, settings)

	return cmd
}

// setupFlags defines flags specific to the run command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) {
	cmd.Flags().StringVarP(&settings.Detector.Type, "model", "m", viper.GetString("detector.type"), "Detection model: face, object, ollama")
	cmd.Flags().Float64VarP(&settings.Detector.ConfidenceThreshold, "confidence-threshold", "t", viper.GetFloat64("detector.confidencethreshold"), "Confidence threshold below which results are marked uncertain")
	cmd.Flags().StringVar(&settings.Detector.Face.ModelPath, "face-model", viper.GetString("detector.face.modelpath"), "Path to the DNN face detection model file")
	cmd.Flags().StringVar(&settings.Detector.Object.ModelPath, "object-model", viper.GetString("detector.object.modelpath"), "Path to the DNN object detection model file")
	cmd.Flags().StringVar(&settings.Detector.Object.ConfigPath, "object-config", viper.GetString("detector.object.configpath"), "Path to the object detection model config file")
	cmd.Flags().StringVar(&settings.Detector.Ollama.Host, "ollama-host", viper.GetString("detector.ollama.host"), "Ollama server URL")
	cmd.Flags().StringVar(&settings.Detector.Ollama.Model, "ollama-model", viper.GetString("detector.ollama.model"), "Ollama model tag")

	cmd.Flags().IntVar(&settings.Input.MaxImages, "max-images", viper.GetInt("input.maximages"), "Maximum number of images to process, 0 means all")
	cmd.Flags().IntVar(&settings.Input.MaxDepth, "max-depth", viper.GetInt("input.maxdepth"), "Maximum directory depth below the root, 0 means unlimited")
	cmd.Flags().StringSliceVar(&settings.Input.Classifications, "classifications", viper.GetStringSlice("input.classifications"), "Process only these classifications")

	cmd.Flags().StringVar(&settings.Output.SQLite.Path, "sqlite-path", viper.GetString("output.sqlite.path"), "Path to the SQLite database file")
	cmd.Flags().StringVar(&settings.Output.CSV.Path, "csv-dir", viper.GetString("output.csv.path"), "Directory for per-run CSV file pairs")

	var noRandomize, noDB, noCSV bool
	cmd.Flags().BoolVar(&noRandomize, "no-randomize", false, "Process images in directory walk order")
	cmd.Flags().BoolVar(&noDB, "no-db", false, "Disable the database sink")
	cmd.Flags().BoolVar(&noCSV, "no-csv", false, "Disable the CSV export sink")

	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		if noRandomize {
			settings.Input.Randomize = false
		}
		if noDB {
			settings.Output.SQLite.Enabled = false
			settings.Output.MySQL.Enabled = false
		}
		if noCSV {
			settings.Output.CSV.Enabled = false
		}
	}
}
