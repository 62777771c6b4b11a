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
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var safetyCmd = &cobra.Command{
	Use:   "safety",
	Short: "Manage content-safety strikes and blocked domains",
	Long: `A domain whose content is blocked by the model's safety filter gets a
warning. After repeated blocks the domain is blocked and its pages are refused.`,
}

var safetyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List warned, blocked and allowed domains",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		svc, err := openServices(ctx)
		if err != nil {
			return err
		}
		defer svc.Close()

		st, err := svc.safety.State(ctx)
		if err != nil {
			return fmt.Errorf("failed to read content filter state: %w", err)
		}
		if len(st.Warnings) == 0 && len(st.Blocked) == 0 && len(st.Allowed) == 0 {
			fmt.Println("No safety records.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DOMAIN\tSTATE\tSTRIKES\tSINCE")
		for _, d := range sortedKeys(st.Blocked) {
			fmt.Fprintf(w, "%s\tblocked\t-\t%s\n", d, st.Blocked[d].Format("2006-01-02 15:04"))
		}
		for _, d := range sortedKeys(st.Warnings) {
			warn := st.Warnings[d]
			fmt.Fprintf(w, "%s\twarned\t%d\t%s\n", d, warn.Count, warn.LastAt.Format("2006-01-02 15:04"))
		}
		for _, d := range st.Allowed {
			fmt.Fprintf(w, "%s\tallowed\t-\t-\n", d)
		}
		return w.Flush()
	},
}

var safetyAllowCmd = &cobra.Command{
	Use:   "allow <domain>",
	Short: "Never block a domain and lift any existing block",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		svc, err := openServices(ctx)
		if err != nil {
			return err
		}
		defer svc.Close()

		if err := svc.safety.Allow(ctx, args[0]); err != nil {
			return fmt.Errorf("failed to allow domain: %w", err)
		}
		fmt.Printf("Allowed: %s\n", args[0])
		return nil
	},
}

var safetyUnblockCmd = &cobra.Command{
	Use:   "unblock <domain>",
	Short: "Lift a block and reset the domain's strikes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		svc, err := openServices(ctx)
		if err != nil {
			return err
		}
		defer svc.Close()

		if err := svc.safety.Unblock(ctx, args[0]); err != nil {
			return fmt.Errorf("failed to unblock domain: %w", err)
		}
		fmt.Printf("Unblocked: %s\n", args[0])
		return nil
	},
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func init() {
	rootCmd.AddCommand(safetyCmd)

	safetyCmd.AddCommand(safetyListCmd)
	safetyCmd.AddCommand(safetyAllowCmd)
	safetyCmd.AddCommand(safetyUnblockCmd)
}
