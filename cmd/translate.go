/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/valpere/pagetran/internal/config"
	"github.com/valpere/pagetran/internal/extractor"
	"github.com/valpere/pagetran/internal/markdown"
	"github.com/valpere/pagetran/internal/orchestrator"
	"github.com/valpere/pagetran/internal/scheduler"
)

var (
	inputFile   string
	outputFile  string
	pageURL     string
	mode        string
	inputFormat string
	quiet       bool
	noCache     bool
	noProfile   bool
)

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Translate an HTML or Markdown page to Vietnamese",
	Long: `Translate every visible text node of a page and write the translated HTML.

Modes:
  full    translate all chunks concurrently and apply each reply when it completes
  stream  apply lines as they arrive; abort when more than half of the chunks fail
  lazy    translate regions as a simulated scroll brings them near the viewport

Markdown input is rendered to HTML first. The page URL selects the domain profile
and is used for content-safety accounting.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		raw, err := os.ReadFile(inputFile)
		if err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}

		format := inputFormat
		if format == "" {
			format = formatOf(inputFile)
		}
		page := string(raw)
		if format == "md" {
			page = markdown.ToHTML(raw)
		}

		doc, err := extractor.ParseString(page, extractor.Options{})
		if err != nil {
			return err
		}

		if noCache {
			v.Set("cache.enabled", false)
		}
		if noProfile {
			v.Set("profile.enabled", false)
		}
		svc, err := openServices(ctx)
		if err != nil {
			return err
		}
		defer svc.Close()

		req := orchestrator.PageRequest{
			Document: doc,
			URL:      pageURL,
			Mode:     orchestrator.Mode(mode),
		}
		if !quiet {
			req.OnProgress = func(p scheduler.Progress) {
				fmt.Fprintf(os.Stderr, "\rProgress: %d/%d chunks (%d failed)", p.Completed+p.Failed, p.Total, p.Failed)
			}
		}
		if req.Mode == orchestrator.ModeLazy {
			req.Visible = simulateScroll(ctx, doc.Regions(), svc.cfg.Lazy)
		}

		result, err := svc.orchestrator().TranslatePage(ctx, req)
		if !quiet && result != nil && result.Progress.Total > 0 {
			fmt.Fprintln(os.Stderr)
		}
		if err != nil {
			return fmt.Errorf("translation failed: %w", err)
		}

		out, err := doc.HTML()
		if err != nil {
			return fmt.Errorf("failed to render document: %w", err)
		}
		if err := writeOutput(outputFile, out); err != nil {
			return err
		}

		if result.Restored {
			fmt.Fprintf(os.Stderr, "Document was already translated; original text restored\n")
			return nil
		}
		fmt.Fprintf(os.Stderr, "Session:  %s\n", result.SessionID)
		fmt.Fprintf(os.Stderr, "Style:    %s\n", result.Style.Type)
		fmt.Fprintf(os.Stderr, "Segments: %d in %d chunks\n", result.Segments, result.Chunks)
		if result.Missing > 0 {
			fmt.Fprintf(os.Stderr, "Missing:  %d segments left untranslated\n", result.Missing)
		}
		fmt.Fprintf(os.Stderr, "Successfully translated to Vietnamese in %s\n", result.Duration.Round(time.Millisecond))
		return nil
	},
}

// simulateScroll plays a reader scrolling down the page one viewport per
// ScrollInterval, emitting each region the first time it comes within the
// lookahead margin. A reader that stops early leaves the rest to the idle
// flush.
func simulateScroll(ctx context.Context, regions int, lazy config.LazyConfig) <-chan int {
	ch := make(chan int)
	go func() {
		defer close(ch)

		boxes := make([]scheduler.Box, regions)
		for i := range boxes {
			boxes[i] = scheduler.Box{Region: i, Top: i * lazy.RegionHeight, Height: lazy.RegionHeight}
		}
		steps := scheduler.ScrollSteps(boxes, lazy.ViewportHeight, lazy.Margin, lazy.ScrollDepth)

		var tick <-chan time.Time
		if lazy.ScrollInterval > 0 {
			ticker := time.NewTicker(lazy.ScrollInterval)
			defer ticker.Stop()
			tick = ticker.C
		}
		for i, fresh := range steps {
			if i > 0 && tick != nil {
				select {
				case <-tick:
				case <-ctx.Done():
					return
				}
			}
			for _, r := range fresh {
				select {
				case ch <- r:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return "md"
	default:
		return "html"
	}
}

// writeOutput writes to a file, or to stdout when path is empty or "-".
func writeOutput(path, content string) error {
	if path == "" || path == "-" {
		_, err := fmt.Fprint(os.Stdout, content)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(translateCmd)

	translateCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Input HTML or Markdown file (required)")
	translateCmd.Flags().StringVarP(&outputFile, "output", "o", "-", "Output file for the translated HTML")
	translateCmd.Flags().StringVarP(&pageURL, "url", "u", "", "Page URL, used for the domain profile and safety accounting")
	translateCmd.Flags().StringVarP(&mode, "mode", "m", "full", "Translation mode: full, stream or lazy")
	translateCmd.Flags().StringVarP(&inputFormat, "format", "f", "", "Input format: html or md (default from the file extension)")
	translateCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print progress")

	translateCmd.Flags().Int("concurrency", 10, "Maximum chunks in flight")
	translateCmd.Flags().Int("max-chunk-size", 3000, "Maximum chunk size in characters")
	translateCmd.Flags().String("style", "auto", "Style override: auto or a style type")
	translateCmd.Flags().BoolVar(&noCache, "no-cache", false, "Disable the translation cache")
	translateCmd.Flags().BoolVar(&noProfile, "no-profile", false, "Disable domain profile analysis")
	translateCmd.Flags().Int("scroll-depth", 0, "Lazy mode: viewports the simulated reader scrolls before stopping (0 reads to the bottom)")

	_ = v.BindPFlag("concurrency", translateCmd.Flags().Lookup("concurrency"))
	_ = v.BindPFlag("max_chunk_size", translateCmd.Flags().Lookup("max-chunk-size"))
	_ = v.BindPFlag("style_override", translateCmd.Flags().Lookup("style"))
	_ = v.BindPFlag("lazy.scroll_depth", translateCmd.Flags().Lookup("scroll-depth"))

	translateCmd.MarkFlagRequired("input")
}
