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
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Inspect and probe the translation models",
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List candidate models in the order they are tried",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		svc, err := openServices(ctx)
		if err != nil {
			return err
		}
		defer svc.Close()

		for i, m := range svc.router.Candidates(ctx) {
			fmt.Printf("%d. %s\n", i+1, m)
		}
		return nil
	},
}

var modelsTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a one-line request to every model and report which respond",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		svc, err := openServices(ctx)
		if err != nil {
			return err
		}
		defer svc.Close()

		statuses, working := svc.router.TestModels(ctx, svc.cfg.APIKey)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "MODEL\tSTATUS\tERROR")
		for _, st := range statuses {
			msg := ""
			if st.Err != nil {
				msg = st.Err.Error()
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", st.Model, st.Status, msg)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		if working == "" {
			return fmt.Errorf("no model responded")
		}
		fmt.Printf("\nFirst working model: %s\n", working)
		return nil
	},
}

var modelsPreferCmd = &cobra.Command{
	Use:   "prefer <model>",
	Short: "Try the given model first on the next request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		svc, err := openServices(ctx)
		if err != nil {
			return err
		}
		defer svc.Close()

		if err := svc.prefs.SetPreferredModel(ctx, args[0]); err != nil {
			return fmt.Errorf("failed to store preferred model: %w", err)
		}
		fmt.Printf("Preferred model: %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)

	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelsTestCmd)
	modelsCmd.AddCommand(modelsPreferCmd)
}
