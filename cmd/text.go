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
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valpere/pagetran/internal/markdown"
)

var (
	textURL      string
	textMarkdown bool
)

var textCmd = &cobra.Command{
	Use:   "text [text...]",
	Short: "Translate a text selection to Vietnamese",
	Long: `Translate a short piece of text, given as arguments or on stdin.
Each line is translated separately and the line structure is kept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		text := strings.Join(args, " ")
		if text == "" {
			raw, err := io.ReadAll(os.Stdin)
			if err != nil {
				return fmt.Errorf("failed to read stdin: %w", err)
			}
			text = string(raw)
		}
		if textMarkdown {
			text = markdown.ToPlainText([]byte(text))
		}
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("nothing to translate")
		}

		svc, err := openServices(ctx)
		if err != nil {
			return err
		}
		defer svc.Close()

		out, err := svc.orchestrator().TranslateText(ctx, text, textURL)
		if err != nil {
			return fmt.Errorf("translation failed: %w", err)
		}
		fmt.Println(out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(textCmd)

	textCmd.Flags().StringVarP(&textURL, "url", "u", "", "URL of the page the text came from")
	textCmd.Flags().BoolVar(&textMarkdown, "markdown", false, "Strip Markdown formatting before translating")
}
