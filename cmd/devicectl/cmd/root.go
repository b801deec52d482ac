// Package cmd implements the devicectl admin CLI: a thin cobra front end
// over the control plane's admin HTTP API (dispatch, OTA rollout, job
// triggers).
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fleetops/devicecontrol/cmd/devicectl/internal/api"
)

var (
	cfgFile  string
	jsonOut  bool
	addrFlag string
	keyFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "devicectl",
	Short: "Operate the device fleet control plane from the command line",
	Long: `devicectl talks to a running control plane's admin HTTP API.

Examples:
  devicectl devices list
  devicectl dispatch command --device d-01 --action ring
  devicectl ota stage --package com.example.app --version-code 42 ...
  devicectl ota promote --package com.example.app --build b1 --by ops@example.com
  devicectl jobs alert-tick`,
}

// Execute runs the CLI, exiting non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.devicectl.yaml)")
	rootCmd.PersistentFlags().StringVar(&addrFlag, "addr", "http://localhost:8080", "control plane base URL")
	rootCmd.PersistentFlags().StringVar(&keyFlag, "admin-key", "", "admin bearer key (or DEVICECTL_ADMIN_KEY)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output raw JSON instead of a table")

	_ = viper.BindPFlag("addr", rootCmd.PersistentFlags().Lookup("addr"))
	_ = viper.BindPFlag("admin_key", rootCmd.PersistentFlags().Lookup("admin-key"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(".devicectl")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("devicectl")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
}

func getClient() (*api.Client, error) {
	addr := viper.GetString("addr")
	key := viper.GetString("admin_key")
	if key == "" {
		return nil, fmt.Errorf("no admin key set: pass --admin-key or set DEVICECTL_ADMIN_KEY")
	}
	return api.NewClient(addr, key), nil
}

func printJSON(v any) error {
	enc := jsonEncoder(os.Stdout)
	return enc.Encode(v)
}

func jsonEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc
}

func printError(err error) {
	fmt.Fprintf(os.Stderr, "%s %v\n", colorRed("error:"), err)
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
}

func printTableHeader(w *tabwriter.Writer, cols ...string) {
	for i, c := range cols {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, c)
	}
	fmt.Fprint(w, "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func colorGreen(s string) string { return "\033[32m" + s + "\033[0m" }
func colorRed(s string) string   { return "\033[31m" + s + "\033[0m" }
func colorYellow(s string) string { return "\033[33m" + s + "\033[0m" }
func colorBold(s string) string  { return "\033[1m" + s + "\033[0m" }
