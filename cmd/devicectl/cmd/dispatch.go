package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fleetops/devicecontrol/cmd/devicectl/internal/api"
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Send commands to one or more devices",
}

var dispatchCommandCmd = &cobra.Command{
	Use:   "command",
	Short: "Dispatch a single command to one device",
	Long: `Dispatch a single command to one device.

Examples:
  devicectl dispatch command --device d-01 --action ring
  devicectl dispatch command --device d-01 --action ping`,
	RunE: runDispatchCommand,
}

var dispatchBulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Fan a command out to a device selection",
	Long: `Fan a command out to a selection of devices.

Examples:
  devicectl dispatch bulk --all --action ring
  devicectl dispatch bulk --alias shop-1 --alias shop-2 --mode shell --command "pm clear com.example.app"
  devicectl dispatch bulk --online --action ping`,
	RunE: runDispatchBulk,
}

var dispatchStatusCmd = &cobra.Command{
	Use:   "status <exec-id>",
	Short: "Check a bulk dispatch's progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runDispatchStatus,
}

func init() {
	dispatchCommandCmd.Flags().String("device", "", "target device id")
	dispatchCommandCmd.Flags().String("action", "", "allow-listed action name")
	_ = dispatchCommandCmd.MarkFlagRequired("device")
	_ = dispatchCommandCmd.MarkFlagRequired("action")

	dispatchBulkCmd.Flags().Bool("all", false, "target every enrolled device")
	dispatchBulkCmd.Flags().StringSlice("alias", nil, "target devices by alias (repeatable)")
	dispatchBulkCmd.Flags().Bool("online", false, "restrict the target filter to online devices")
	dispatchBulkCmd.Flags().String("action", "", "allow-listed action name (for mode=push)")
	dispatchBulkCmd.Flags().String("command", "", "shell command to run (for mode=shell)")
	dispatchBulkCmd.Flags().String("mode", "push", "dispatch mode: push or shell")

	dispatchCmd.AddCommand(dispatchCommandCmd)
	dispatchCmd.AddCommand(dispatchBulkCmd)
	dispatchCmd.AddCommand(dispatchStatusCmd)
	rootCmd.AddCommand(dispatchCmd)
}

func runDispatchCommand(cmd *cobra.Command, args []string) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	device, _ := cmd.Flags().GetString("device")
	action, _ := cmd.Flags().GetString("action")

	resp, err := client.Dispatch(context.Background(), device, action, nil)
	if err != nil {
		printError(err)
		return err
	}

	if jsonOut {
		return printJSON(resp)
	}
	fmt.Printf("%s Command dispatched. request_id=%s\n", colorGreen("✓"), resp.RequestID)
	return nil
}

func runDispatchBulk(cmd *cobra.Command, args []string) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	all, _ := cmd.Flags().GetBool("all")
	aliases, _ := cmd.Flags().GetStringSlice("alias")
	online, _ := cmd.Flags().GetBool("online")
	action, _ := cmd.Flags().GetString("action")
	command, _ := cmd.Flags().GetString("command")
	mode, _ := cmd.Flags().GetString("mode")

	targets := api.BulkTargets{All: all, Aliases: aliases}
	if online {
		onlineVal := true
		targets.Filter = &api.BulkTargetFilter{Online: &onlineVal}
	}

	resp, err := client.BulkDispatch(context.Background(), api.BulkDispatchRequest{
		Mode:    mode,
		Action:  action,
		Command: command,
		Targets: targets,
	})
	if err != nil {
		printError(err)
		return err
	}

	if jsonOut {
		return printJSON(resp)
	}
	fmt.Printf("%s Bulk dispatch started. exec_id=%s\n", colorGreen("✓"), resp.ExecID)
	fmt.Printf("  Check progress with: devicectl dispatch status %s\n", resp.ExecID)
	return nil
}

func runDispatchStatus(cmd *cobra.Command, args []string) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	exec, err := client.GetBulkExecution(context.Background(), args[0])
	if err != nil {
		printError(err)
		return err
	}

	if jsonOut {
		return printJSON(exec)
	}

	fmt.Printf("Exec ID:  %s\n", exec.ExecID)
	fmt.Printf("Mode:     %s\n", exec.Mode)
	fmt.Printf("Progress: %d/%d acked, %d errored\n", exec.Acked, exec.Total, exec.Errored)
	return nil
}
