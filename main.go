// SPDX-License-Identifier: MIT
package main

import "github.com/skaphos/refcheck/cmd/refcheck"

var execute = refcheck.Execute

func main() {
	execute()
}
