// Copyright © 2026 the wisp authors
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the version of wisp, set at build time.
var Version = "unset"

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of wisp",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("wisp version %s\n", Version)
	},
}

func init() {
	RootCmd.AddCommand(versionCmd)
}
