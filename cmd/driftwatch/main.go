// Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
// See LICENSE for license information.

package main

import (
	"os"

	"github.com/perfscale/driftwatch/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
