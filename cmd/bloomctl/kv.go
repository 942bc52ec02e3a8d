package main

import (
	"fmt"

	"github.com/blackredscarf/bloom-filter/velocitylog"
	"github.com/spf13/cobra"
)

// kvCmd groups the velocitylog store commands
var kvCmd = &cobra.Command{
	Use:   "kv",
	Short: "Read and write a velocitylog store",
}

var kvPutCmd = &cobra.Command{
	Use:   "put KEY VALUE",
	Short: "Store a value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTree(func(tree *velocitylog.LSMTree) error {
			return tree.Put(args[0], []byte(args[1]))
		})
	},
}

var kvGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Print the value stored for a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTree(func(tree *velocitylog.LSMTree) error {
			value, err := tree.Get(args[0])
			if err != nil {
				return err
			}
			if value == nil {
				return fmt.Errorf("key %q not found", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(value))
			return nil
		})
	},
}

var kvDeleteCmd = &cobra.Command{
	Use:   "delete KEY",
	Short: "Delete a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTree(func(tree *velocitylog.LSMTree) error {
			return tree.Delete(args[0])
		})
	},
}

var kvScanCmd = &cobra.Command{
	Use:   "scan START END",
	Short: "Print every key in [START, END]",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTree(func(tree *velocitylog.LSMTree) error {
			pairs, err := tree.RangeScan(args[0], args[1])
			if err != nil {
				return err
			}
			for _, p := range pairs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", p.Key, p.Value)
			}
			return nil
		})
	},
}

// withTree opens the store for a single command and closes it, flushing the memtable, afterwards.
func withTree(fn func(tree *velocitylog.LSMTree) error) error {
	tree, err := velocitylog.Open(dbDir,
		velocitylog.WithBitsPerKey(bitsPerKey),
		velocitylog.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	if err := fn(tree); err != nil {
		tree.Close()
		return err
	}
	return tree.Close()
}
