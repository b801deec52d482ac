package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Inspect enrolled devices",
}

var devicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled devices",
	RunE:  runDevicesList,
}

var devicesGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Get a device by id",
	Args:  cobra.ExactArgs(1),
	RunE:  runDevicesGet,
}

func init() {
	devicesListCmd.Flags().Int("limit", 100, "page size")
	devicesListCmd.Flags().Int("offset", 0, "page offset")

	devicesCmd.AddCommand(devicesListCmd)
	devicesCmd.AddCommand(devicesGetCmd)
	rootCmd.AddCommand(devicesCmd)
}

func runDevicesList(cmd *cobra.Command, args []string) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")

	devices, err := client.ListDevices(context.Background(), limit, offset)
	if err != nil {
		printError(err)
		return err
	}

	if jsonOut {
		return printJSON(devices)
	}

	if len(devices) == 0 {
		fmt.Println("No devices found")
		return nil
	}

	w := newTable()
	printTableHeader(w, "ID", "ALIAS", "PACKAGE", "STALE (min)")
	for _, d := range devices {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", truncate(d.ID, 16), d.Alias, d.MonitoredPackage, d.StalenessMinutes)
	}
	return w.Flush()
}

func runDevicesGet(cmd *cobra.Command, args []string) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	device, err := client.GetDevice(context.Background(), args[0])
	if err != nil {
		printError(err)
		return err
	}

	if jsonOut {
		return printJSON(device)
	}

	fmt.Printf("ID:        %s\n", device.ID)
	fmt.Printf("Alias:     %s\n", device.Alias)
	fmt.Printf("Package:   %s\n", device.MonitoredPackage)
	fmt.Printf("Stale:     %d min (display only, not the alerting threshold)\n", device.StalenessMinutes)
	return nil
}
