// Command mkv-subtitle-extractor downloads the subtitle tracks of a remote
// MKV file and writes them, together with any embedded fonts, to a directory.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	mkvsubs "github.com/cryguy/mkv-subtitle-extractor"
)

var (
	flagLanguages         []string
	flagHeaders           []string
	flagOut               string
	flagConcurrency       int
	flagAllowFullDownload bool
	flagVerbose           bool
)

func main() {
	root := &cobra.Command{
		Use:   "mkv-subtitle-extractor <url>",
		Short: "Extract subtitle tracks and fonts from a remote MKV over HTTP range requests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(cmd.Context(), args[0])
		},
	}

	root.Flags().StringSliceVar(&flagLanguages, "lang", nil, "language whitelist, e.g. --lang eng,spa (default: all)")
	root.Flags().StringArrayVar(&flagHeaders, "header", nil, "extra request header, Key: Value (repeatable)")
	root.Flags().StringVarP(&flagOut, "out", "o", ".", "output directory")
	root.Flags().IntVar(&flagConcurrency, "concurrency", 1, "worker pool size for block fetches")
	root.Flags().BoolVar(&flagAllowFullDownload, "allow-full-download", false, "fall back to downloading the whole file when the server has no range support")
	root.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable progress logging")

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, url string) error {
	logger := zap.NewNop()
	if flagVerbose {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			return err
		}
		defer func() {
			_ = logger.Sync()
		}()
	}

	headers, err := parseHeaderFlags(flagHeaders)
	if err != nil {
		return err
	}

	results, stats, err := mkvsubs.Extract(ctx, url, &mkvsubs.Options{
		AllowFullDownload: flagAllowFullDownload,
		Languages:         flagLanguages,
		Headers:           headers,
		Logger:            logger,
		Concurrency:       flagConcurrency,
	})
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Println("no subtitle tracks matched")
		fmt.Printf("downloaded %s in %d requests\n", formatBytes(stats.BytesDownloaded), stats.RequestCount)
		return nil
	}

	if err = os.MkdirAll(flagOut, 0o755); err != nil {
		return err
	}

	fontsWritten := false
	for _, result := range results {
		name := subtitleFileName(result)
		if err = os.WriteFile(filepath.Join(flagOut, name), result.Subtitle, 0o644); err != nil {
			return err
		}
		fmt.Printf("wrote %s (track %d", name, result.Metadata.TrackNumber)
		if result.Metadata.Language != "" {
			fmt.Printf(", %s", result.Metadata.Language)
		}
		fmt.Println(")")

		if !fontsWritten {
			for _, font := range result.Fonts {
				fontName := filepath.Base(font.Name)
				if fontName == "." || fontName == string(filepath.Separator) {
					continue
				}
				if err = os.WriteFile(filepath.Join(flagOut, fontName), font.Data, 0o644); err != nil {
					return err
				}
				fmt.Printf("wrote %s (font)\n", fontName)
			}
			fontsWritten = len(result.Fonts) > 0
		}
	}

	fmt.Printf("downloaded %s in %d requests\n", formatBytes(stats.BytesDownloaded), stats.RequestCount)
	return nil
}

// formatBytes renders a byte count in a human-friendly unit.
func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// subtitleFileName builds track3.eng.srt-style names.
func subtitleFileName(result mkvsubs.TrackResult) string {
	name := fmt.Sprintf("track%d", result.Metadata.TrackNumber)
	if result.Metadata.Language != "" {
		name += "." + result.Metadata.Language
	}
	return name + "." + string(result.Type)
}

// parseHeaderFlags turns "Key: Value" flags into a header map.
func parseHeaderFlags(flags []string) (map[string]string, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(flags))
	for _, flag := range flags {
		key, value, ok := strings.Cut(flag, ":")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("malformed header %q, want \"Key: Value\"", flag)
		}
		headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return headers, nil
}
