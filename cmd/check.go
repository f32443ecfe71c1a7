package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/chattrain/chattrain/internal/config"
	"github.com/chattrain/chattrain/internal/scenario"
)

var checkCmd = &cobra.Command{
	Use:   "check [scenario files...]",
	Short: "Validate configuration and scenario files",
	Long: `Validate the server configuration and scenario definitions without
starting the server. With no arguments, every YAML file in the
configured scenario directory is checked.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}
	fmt.Println("configuration: ok")

	files := args
	if len(files) == 0 {
		matches, err := filepath.Glob(filepath.Join(cfg.Scenarios.Dir, "*.yaml"))
		if err != nil {
			return err
		}
		ymlMatches, err := filepath.Glob(filepath.Join(cfg.Scenarios.Dir, "*.yml"))
		if err != nil {
			return err
		}
		files = append(matches, ymlMatches...)
	}

	if len(files) == 0 {
		fmt.Printf("no scenario files found in %s\n", cfg.Scenarios.Dir)
		return nil
	}

	failures := 0
	for _, path := range files {
		if err := checkScenarioFile(path); err != nil {
			fmt.Printf("%s: %v\n", path, err)
			failures++
			continue
		}
		fmt.Printf("%s: ok\n", path)
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d scenario files invalid", failures, len(files))
	}
	return nil
}

func checkScenarioFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var sc scenario.Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return fmt.Errorf("yaml parse error: %w", err)
	}
	return sc.Validate()
}
