package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fleetops/devicecontrol/cmd/devicectl/internal/api"
)

var otaCmd = &cobra.Command{
	Use:   "ota",
	Short: "Manage OTA builds and rollouts",
}

var otaStageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Register a new build as a promotion candidate",
	RunE:  runOTAStage,
}

var otaPromoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Promote a staged build to current for its package",
	RunE:  runOTAPromote,
}

var otaRolloutCmd = &cobra.Command{
	Use:   "rollout",
	Short: "Adjust a build's staged rollout percentage",
	RunE:  runOTARollout,
}

var otaRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Re-promote a build's recorded rollback target",
	RunE:  runOTARollback,
}

var otaNudgeCmd = &cobra.Command{
	Use:   "nudge <device-id>",
	Short: "Prompt a device to re-poll the OTA manifest immediately",
	Args:  cobra.ExactArgs(1),
	RunE:  runOTANudge,
}

func init() {
	otaStageCmd.Flags().String("package", "", "package name")
	otaStageCmd.Flags().Int64("version-code", 0, "version code")
	otaStageCmd.Flags().String("version-name", "", "version name")
	otaStageCmd.Flags().String("sha256", "", "64-char hex sha256 of the APK")
	otaStageCmd.Flags().String("signer-fingerprint", "", "APK signer fingerprint")
	otaStageCmd.Flags().String("storage-url", "", "download URL for the APK")
	otaStageCmd.Flags().Bool("wifi-only", false, "require wifi for download")
	otaStageCmd.Flags().Bool("must-install", false, "mark as a mandatory install")
	for _, f := range []string{"package", "version-code", "version-name", "sha256", "signer-fingerprint", "storage-url"} {
		_ = otaStageCmd.MarkFlagRequired(f)
	}

	otaPromoteCmd.Flags().String("package", "", "package name")
	otaPromoteCmd.Flags().String("build", "", "build id to promote")
	otaPromoteCmd.Flags().String("by", "", "operator performing the promotion")
	otaPromoteCmd.Flags().Int("pct", 100, "initial staged rollout percentage")
	for _, f := range []string{"package", "build", "by"} {
		_ = otaPromoteCmd.MarkFlagRequired(f)
	}

	otaRolloutCmd.Flags().String("build", "", "build id")
	otaRolloutCmd.Flags().Int("pct", 0, "new staged rollout percentage")
	_ = otaRolloutCmd.MarkFlagRequired("build")

	otaRollbackCmd.Flags().String("build", "", "bad build id to roll back from")
	otaRollbackCmd.Flags().String("operator", "", "operator performing the rollback")
	otaRollbackCmd.Flags().Int("pct", 100, "rollout percentage for the restored build")
	otaRollbackCmd.Flags().Bool("force-downgrade", false, "allow rolling back to a lower version code")
	for _, f := range []string{"build", "operator"} {
		_ = otaRollbackCmd.MarkFlagRequired(f)
	}

	otaCmd.AddCommand(otaStageCmd, otaPromoteCmd, otaRolloutCmd, otaRollbackCmd, otaNudgeCmd)
	rootCmd.AddCommand(otaCmd)
}

func runOTAStage(cmd *cobra.Command, args []string) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	pkg, _ := cmd.Flags().GetString("package")
	versionCode, _ := cmd.Flags().GetInt64("version-code")
	versionName, _ := cmd.Flags().GetString("version-name")
	sha256, _ := cmd.Flags().GetString("sha256")
	fingerprint, _ := cmd.Flags().GetString("signer-fingerprint")
	storageURL, _ := cmd.Flags().GetString("storage-url")
	wifiOnly, _ := cmd.Flags().GetBool("wifi-only")
	mustInstall, _ := cmd.Flags().GetBool("must-install")

	build, err := client.StageBuild(context.Background(), api.OTAStageRequest{
		PackageName:       pkg,
		VersionCode:       versionCode,
		VersionName:       versionName,
		SHA256:            sha256,
		SignerFingerprint: fingerprint,
		StorageURL:        storageURL,
		WifiOnly:          wifiOnly,
		MustInstall:       mustInstall,
	})
	if err != nil {
		printError(err)
		return err
	}

	if jsonOut {
		return printJSON(build)
	}
	fmt.Printf("%s Build staged. build_id=%s\n", colorGreen("✓"), build.BuildID)
	return nil
}

func runOTAPromote(cmd *cobra.Command, args []string) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	pkg, _ := cmd.Flags().GetString("package")
	build, _ := cmd.Flags().GetString("build")
	by, _ := cmd.Flags().GetString("by")
	pct, _ := cmd.Flags().GetInt("pct")

	resp, err := client.PromoteBuild(context.Background(), api.OTAPromoteRequest{
		PackageName: pkg,
		BuildID:     build,
		PromotedBy:  by,
		RolloutPct:  pct,
	})
	if err != nil {
		printError(err)
		return err
	}

	if jsonOut {
		return printJSON(resp)
	}
	fmt.Printf("%s Build %s promoted at %d%% rollout.\n", colorGreen("✓"), resp.BuildID, pct)
	if resp.RollbackFromBuildID != nil {
		fmt.Printf("  Previous build recorded for rollback: %s\n", *resp.RollbackFromBuildID)
	}
	return nil
}

func runOTARollout(cmd *cobra.Command, args []string) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	build, _ := cmd.Flags().GetString("build")
	pct, _ := cmd.Flags().GetInt("pct")

	if err := client.AdjustRollout(context.Background(), build, pct); err != nil {
		printError(err)
		return err
	}

	if jsonOut {
		return printJSON(map[string]any{"build_id": build, "pct": pct})
	}
	fmt.Printf("%s Rollout for %s set to %d%%.\n", colorGreen("✓"), build, pct)
	return nil
}

func runOTARollback(cmd *cobra.Command, args []string) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	build, _ := cmd.Flags().GetString("build")
	operator, _ := cmd.Flags().GetString("operator")
	pct, _ := cmd.Flags().GetInt("pct")
	force, _ := cmd.Flags().GetBool("force-downgrade")

	resp, err := client.Rollback(context.Background(), api.OTARollbackRequest{
		BuildID:        build,
		Operator:       operator,
		Pct:            pct,
		ForceDowngrade: force,
	})
	if err != nil {
		printError(err)
		return err
	}

	if jsonOut {
		return printJSON(resp)
	}
	if resp.RolledBackTo != nil {
		fmt.Printf("%s Rolled back to %s.\n", colorGreen("✓"), *resp.RolledBackTo)
	}
	return nil
}

func runOTANudge(cmd *cobra.Command, args []string) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	resp, err := client.Nudge(context.Background(), args[0])
	if err != nil {
		printError(err)
		return err
	}

	if jsonOut {
		return printJSON(resp)
	}
	fmt.Printf("%s Nudge sent. request_id=%s\n", colorGreen("✓"), resp.RequestID)
	return nil
}
