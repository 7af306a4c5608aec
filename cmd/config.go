package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/outreach-research/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets redacted",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(redacted(*cfg))
		if err != nil {
			return eris.Wrap(err, "config: marshal")
		}
		fmt.Print(string(out))
		return nil
	},
}

func redacted(c config.Config) config.Config {
	if c.Profile.Key != "" {
		c.Profile.Key = "[redacted]"
	}
	if c.Reader.Key != "" {
		c.Reader.Key = "[redacted]"
	}
	if c.Anthropic.Key != "" {
		c.Anthropic.Key = "[redacted]"
	}
	if c.Store.DatabaseURL != "" {
		c.Store.DatabaseURL = "[redacted]"
	}
	return c
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
