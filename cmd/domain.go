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
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	feedbackNegative bool
	feedbackComment  string
)

var domainCmd = &cobra.Command{
	Use:   "domain",
	Short: "Manage per-domain translation profiles",
	Long: `Inspect, analyze and tune the domain profiles that give each site its
translation context, learned vocabulary and feedback history.`,
}

var domainStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "List known domain profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		svc, err := openServices(ctx)
		if err != nil {
			return err
		}
		defer svc.Close()
		if err := svc.requireProfiles(); err != nil {
			return err
		}

		stats, err := svc.profiles.Stats(ctx)
		if err != nil {
			return fmt.Errorf("failed to read profiles: %w", err)
		}
		if stats.TotalDomains == 0 {
			fmt.Println("No domain profiles.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DOMAIN\tTYPE\tUSED\tTERMS\tFEEDBACK\tAGE (DAYS)")
		for _, d := range stats.Domains {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%+d\t%d\n",
				d.Domain, d.Type, d.UsageCount, d.VocabCount, d.FeedbackScore, d.AgeDays)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("\nTotal domains: %d, total usage: %d\n", stats.TotalDomains, stats.TotalUsage)
		return nil
	},
}

var domainShowCmd = &cobra.Command{
	Use:   "show <url>",
	Short: "Show the profile of a domain, analyzing it when missing or stale",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		svc, err := openServices(ctx)
		if err != nil {
			return err
		}
		defer svc.Close()
		if err := svc.requireProfiles(); err != nil {
			return err
		}

		p := svc.profiles.Get(ctx, args[0])
		fmt.Printf("Domain:     %s\n", p.Domain)
		fmt.Printf("Type:       %s\n", p.WebsiteType)
		fmt.Printf("Tone:       %s\n", p.ContentTone)
		fmt.Printf("Audience:   %s\n", p.Audience)
		fmt.Printf("Themes:     %s\n", strings.Join(p.Themes, ", "))
		fmt.Printf("Guidelines: %s\n", p.TranslationGuidelines)
		if p.RefinedGuidelines != "" {
			fmt.Printf("Refined:    %s\n", p.RefinedGuidelines)
		}
		fmt.Printf("Analyzed:   %s\n", p.AnalyzedAt.Format("2006-01-02 15:04"))
		if p.IsFallback {
			fmt.Println("\nAnalysis failed; the generic fallback profile is in use.")
		}
		return nil
	},
}

var domainVocabCmd = &cobra.Command{
	Use:   "vocab <url>",
	Short: "List the terms learned for a domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		svc, err := openServices(ctx)
		if err != nil {
			return err
		}
		defer svc.Close()
		if err := svc.requireProfiles(); err != nil {
			return err
		}

		vocab, err := svc.profiles.Vocabulary(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to read vocabulary: %w", err)
		}
		if len(vocab) == 0 {
			fmt.Println("No learned terms.")
			return nil
		}
		terms := make([]string, 0, len(vocab))
		for t := range vocab {
			terms = append(terms, t)
		}
		sort.Strings(terms)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TERM\tTRANSLATION")
		for _, t := range terms {
			fmt.Fprintf(w, "%s\t%s\n", t, vocab[t])
		}
		return w.Flush()
	},
}

var domainFeedbackCmd = &cobra.Command{
	Use:   "feedback <url>",
	Short: "Record positive (default) or negative feedback for a profiled domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		svc, err := openServices(ctx)
		if err != nil {
			return err
		}
		defer svc.Close()
		if err := svc.requireProfiles(); err != nil {
			return err
		}

		if err := svc.profiles.RecordFeedback(ctx, args[0], !feedbackNegative, feedbackComment); err != nil {
			return fmt.Errorf("failed to record feedback: %w", err)
		}
		fmt.Println("Feedback recorded.")
		return nil
	},
}

var domainGuidelinesCmd = &cobra.Command{
	Use:   "guidelines <url> <text>",
	Short: "Set refined translation guidelines for a profiled domain",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		svc, err := openServices(ctx)
		if err != nil {
			return err
		}
		defer svc.Close()
		if err := svc.requireProfiles(); err != nil {
			return err
		}

		text := strings.Join(args[1:], " ")
		if err := svc.profiles.UpdateRefinedGuidelines(ctx, args[0], text); err != nil {
			return fmt.Errorf("failed to update guidelines: %w", err)
		}
		fmt.Println("Guidelines updated.")
		return nil
	},
}

var domainClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all domain profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		svc, err := openServices(ctx)
		if err != nil {
			return err
		}
		defer svc.Close()
		if err := svc.requireProfiles(); err != nil {
			return err
		}

		if err := svc.profiles.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear profiles: %w", err)
		}
		fmt.Println("Domain profiles cleared.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(domainCmd)

	domainFeedbackCmd.Flags().BoolVar(&feedbackNegative, "negative", false, "Record negative feedback")
	domainFeedbackCmd.Flags().StringVar(&feedbackComment, "comment", "", "Optional feedback comment")

	domainCmd.AddCommand(domainStatsCmd)
	domainCmd.AddCommand(domainShowCmd)
	domainCmd.AddCommand(domainVocabCmd)
	domainCmd.AddCommand(domainFeedbackCmd)
	domainCmd.AddCommand(domainGuidelinesCmd)
	domainCmd.AddCommand(domainClearCmd)
}
