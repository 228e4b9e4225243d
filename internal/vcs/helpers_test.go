// SPDX-License-Identifier: MIT
package vcs_test

import "os"

func writeDir(path string) error {
	return os.MkdirAll(path, 0o755)
}
