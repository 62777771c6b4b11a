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

	"github.com/spf13/cobra"

	"github.com/valpere/pagetran/internal/style"
)

var styleCmd = &cobra.Command{
	Use:   "style",
	Short: "Show or persist the translation style override",
	Long: `The style is normally detected from each page. A persisted override
replaces detection for every page until it is reset to "auto".`,
}

var styleShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the persisted style override and the known styles",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		svc, err := openServices(ctx)
		if err != nil {
			return err
		}
		defer svc.Close()

		current, err := svc.prefs.StyleOverride(ctx)
		if err != nil {
			return fmt.Errorf("failed to read style override: %w", err)
		}
		if current == "" {
			current = "auto"
		}
		fmt.Printf("Current: %s\n\nStyles:\n", current)
		for _, t := range style.Types() {
			p, _ := style.Lookup(t)
			fmt.Printf("  %-10s %s\n", t, p.Name)
		}
		return nil
	},
}

var styleSetCmd = &cobra.Command{
	Use:   "set <style|auto>",
	Short: "Persist a style override, or auto to restore detection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if name != "auto" {
			if _, ok := style.Lookup(style.Type(name)); !ok {
				return fmt.Errorf("unknown style %q", name)
			}
		}

		ctx := context.Background()
		svc, err := openServices(ctx)
		if err != nil {
			return err
		}
		defer svc.Close()

		if err := svc.prefs.SetStyleOverride(ctx, name); err != nil {
			return fmt.Errorf("failed to store style override: %w", err)
		}
		fmt.Printf("Style override: %s\n", name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(styleCmd)

	styleCmd.AddCommand(styleShowCmd)
	styleCmd.AddCommand(styleSetCmd)
}
