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
	"time"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the translation cache",
	Long:  `Inspect and clear the persisted chunk translation cache.`,
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show translation cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		svc, err := openServices(ctx)
		if err != nil {
			return err
		}
		defer svc.Close()
		if svc.cache == nil {
			fmt.Println("Translation cache is disabled.")
			return nil
		}

		stats := svc.cache.Stats()
		fmt.Printf("Entries:     %d / %d\n", stats.Entries, svc.cfg.Cache.MaxEntries)
		fmt.Printf("Created:     %s\n", stats.Created.Format("2006-01-02 15:04"))
		fmt.Printf("Age:         %s (expires after %s)\n", stats.Age.Round(time.Second), svc.cfg.Cache.MaxAge)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all entries from the translation cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		svc, err := openServices(ctx)
		if err != nil {
			return err
		}
		defer svc.Close()
		if svc.cache == nil {
			fmt.Println("Translation cache is disabled.")
			return nil
		}

		n := svc.cache.Stats().Entries
		if err := svc.cache.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
		fmt.Printf("Cleared %d entries from the translation cache.\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)

	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}
