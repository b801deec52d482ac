package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Trigger scheduler jobs out of band",
}

var jobsAlertTickCmd = &cobra.Command{
	Use:   "alert-tick",
	Short: "Run the alert engine's evaluation pass now",
	RunE:  runJobsAlertTick,
}

var jobsReconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run heartbeat/last-status reconciliation now",
	RunE:  runJobsReconcile,
}

var jobsMaintenanceCmd = &cobra.Command{
	Use:   "maintenance",
	Short: "Run nightly partition maintenance now",
	RunE:  runJobsMaintenance,
}

var partitionsCmd = &cobra.Command{
	Use:   "partitions",
	Short: "List the heartbeat partition catalog",
	RunE:  runPartitionsList,
}

var poolHealthCmd = &cobra.Command{
	Use:   "pool-health",
	Short: "Show the database pool governor's backpressure state",
	RunE:  runPoolHealth,
}

func init() {
	jobsCmd.AddCommand(jobsAlertTickCmd, jobsReconcileCmd, jobsMaintenanceCmd)
	rootCmd.AddCommand(jobsCmd, partitionsCmd, poolHealthCmd)
}

func runJobsAlertTick(cmd *cobra.Command, args []string) error {
	client, err := getClient()
	if err != nil {
		return err
	}
	resp, err := client.RunAlertTick(context.Background())
	if err != nil {
		printError(err)
		return err
	}
	if jsonOut {
		return printJSON(resp)
	}
	fmt.Printf("%s Triggered: %s\n", colorGreen("✓"), resp.Job)
	return nil
}

func runJobsReconcile(cmd *cobra.Command, args []string) error {
	client, err := getClient()
	if err != nil {
		return err
	}
	resp, err := client.RunReconciliation(context.Background())
	if err != nil {
		printError(err)
		return err
	}
	if jsonOut {
		return printJSON(resp)
	}
	fmt.Printf("%s Triggered: %s\n", colorGreen("✓"), resp.Job)
	return nil
}

func runJobsMaintenance(cmd *cobra.Command, args []string) error {
	client, err := getClient()
	if err != nil {
		return err
	}
	resp, err := client.RunMaintenance(context.Background())
	if err != nil {
		printError(err)
		return err
	}
	if jsonOut {
		return printJSON(resp)
	}
	fmt.Printf("%s Triggered: %s\n", colorGreen("✓"), resp.Job)
	return nil
}

func runPartitionsList(cmd *cobra.Command, args []string) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	partitions, err := client.ListPartitions(context.Background())
	if err != nil {
		printError(err)
		return err
	}

	if jsonOut {
		return printJSON(partitions)
	}

	if len(partitions) == 0 {
		fmt.Println("No partitions found")
		return nil
	}

	w := newTable()
	printTableHeader(w, "NAME", "STATUS", "FROM", "TO", "ROWS")
	for _, p := range partitions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
			p.Name, p.Status,
			p.FromTS.Format("2006-01-02"), p.ToTS.Format("2006-01-02"),
			p.RowCount)
	}
	return w.Flush()
}

func runPoolHealth(cmd *cobra.Command, args []string) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	health, err := client.PoolHealth(context.Background())
	if err != nil {
		printError(err)
		return err
	}

	if jsonOut {
		return printJSON(health)
	}
	if health.Overloaded {
		fmt.Printf("%s pool is backpressured\n", colorYellow("⚠"))
	} else {
		fmt.Printf("%s pool healthy\n", colorGreen("✓"))
	}
	return nil
}
