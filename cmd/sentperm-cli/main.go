// Command sentperm-cli ingests text corpora, collates pretraining batches
// and runs the dual-decoder forward pass over them.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
