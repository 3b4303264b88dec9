package preview

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdetect/pdetect-go/internal/conf"
	"github.com/pdetect/pdetect-go/internal/dataload"
)

// Command creates a new cobra.Command for previewing corpus classifications.
func Command(settings *conf.Settings) *cobra.Command {
	var maxExamples int

	cmd := &cobra.Command{
		Use:   "preview [path]",
		Short: "Preview the classifications a directory would yield",
		Long:  "Walks the directory without running detection and prints each derived classification with image counts and example files.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings.Input.Path = args[0]

			loader := dataload.NewLoader(&settings.Input)
			summaries, err := loader.PreviewStructure(maxExamples)
			if err != nil {
				return fmt.Errorf("failed to preview directory: %w", err)
			}

			if len(summaries) == 0 {
				fmt.Println("No supported images found.")
				return nil
			}

			total := 0
			for _, s := range summaries {
				fmt.Printf("%s (%d images)\n", s.Label, s.Count)
				for _, example := range s.Examples {
					fmt.Printf("  %s\n", example)
				}
				total += s.Count
			}
			fmt.Printf("\n%d classifications, %d images total\n", len(summaries), total)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxExamples, "examples", 3, "Number of example files to list per classification")
	cmd.Flags().IntVar(&settings.Input.MaxDepth, "max-depth", viper.GetInt("input.maxdepth"), "Maximum directory depth below the root, 0 means unlimited")

	return cmd
}
