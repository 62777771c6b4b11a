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
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/valpere/pagetran/internal/config"
	"github.com/valpere/pagetran/internal/logging"
)

var version = "0.3.0"

var (
	cfgFile string
	v       = config.New()
)

var rootCmd = &cobra.Command{
	Use:   "pagetran",
	Short: "CLI web page translator to Vietnamese",
	Long: `A CLI application that translates HTML and Markdown pages to Vietnamese
through the Gemini API, falling back across models on quota and availability errors.

Pages are split into chunks that are translated concurrently, validated, cached
and written back in place. Each site gets a learned domain profile that guides
the translation tone.

Use "pagetran translate --help" for translation options.`,
	Version:      version,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (yaml, toml or json)")
	flags.String("api-key", "", "Gemini API key (env PAGETRAN_API_KEY)")
	flags.String("backend", "gemini", "Translation backend: gemini, cloud or ollama")
	flags.String("credentials", "", "Path to Google Cloud credentials for the cloud backend")
	flags.String("db", "pagetran.db", "Database path for cache, profiles and preferences")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("env", "local", "Environment; local logs to the console, anything else logs JSON")

	// Unset flags fall back to the config file, the environment and the defaults.
	for flag, key := range map[string]string{
		"api-key":     "api_key",
		"backend":     "backend",
		"credentials": "credentials",
		"db":          "db_path",
		"log-level":   "log_level",
		"env":         "environment",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

// loadConfig reads the configuration and builds the process logger.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	log, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to build logger: %w", err)
	}
	return cfg, log, nil
}
