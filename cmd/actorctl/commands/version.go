package commands

import (
	"fmt"

	"github.com/roasbeef/actorcore/internal/build"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Long:  `Display the version, commit hash, and build metadata for actorctl.`,
	Run:   runVersion,
}

// runVersion prints the version and build information.
func runVersion(cmd *cobra.Command, _ []string) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "actorctl version %s", build.Version())

	switch {
	case build.Commit != "":
		fmt.Fprintf(out, " commit=%s", build.Commit)

	case build.CommitHash != "":
		fmt.Fprintf(out, " commit=%s", build.CommitHash)
	}

	if build.GoVersion != "" {
		fmt.Fprintf(out, " go=%s", build.GoVersion)
	}

	if tags := build.Tags(); len(tags) > 0 {
		fmt.Fprintf(out, " tags=%s", build.RawTags)
	}

	fmt.Fprintln(out)
}
