// Copyright © 2026 the wisp authors
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package main

import "github.com/wisplib/wisp/cmd/wisp/commands"

func main() {
	commands.Execute()
}
