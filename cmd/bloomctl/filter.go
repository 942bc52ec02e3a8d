package main

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"

	bloom "github.com/blackredscarf/bloom-filter"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

// buildCmd builds a filter from newline separated keys
var buildCmd = &cobra.Command{
	Use:   "build [keys file|-]",
	Short: "Build a bloom filter from one key per line",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")

		in := cmd.InOrStdin()
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open keys: %w", err)
			}
			defer f.Close()
			in = f
		}

		filter, n, err := buildFilter(in, bitsPerKey)
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, filter, 0o644); err != nil {
			return fmt.Errorf("write filter: %w", err)
		}
		log.Infow("built filter", "keys", n, "bytes", len(filter), "probes", filter.Probes())
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d keys to %s (%d bytes, %d probes)\n", n, out, len(filter), filter.Probes())
		return nil
	},
}

// queryCmd tests keys against a filter file
var queryCmd = &cobra.Command{
	Use:   "query KEY...",
	Short: "Test keys against a bloom filter file",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("filter")
		filter, err := readFilter(path)
		if err != nil {
			return err
		}
		for _, key := range args {
			answer := "absent"
			if filter.MayContain([]byte(key)) {
				answer = "maybe"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", key, answer)
		}
		return nil
	},
}

// inspectCmd prints a JSON report about a filter file
var inspectCmd = &cobra.Command{
	Use:   "inspect FILE",
	Short: "Describe a bloom filter file as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := readFilter(args[0])
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(inspectFilter(filter), "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

// filterReport describes a filter read from disk.
type filterReport struct {
	Bytes           int     `json:"bytes"`
	Bits            int     `json:"bits"`
	Probes          uint8   `json:"probes"`
	BitsSet         int     `json:"bits_set"`
	FillRatio       float64 `json:"fill_ratio"`
	EstimatedFPRate float64 `json:"estimated_fp_rate"`
	Reserved        bool    `json:"reserved,omitempty"`
}

// buildFilter adds every line of r as a key. Blank lines are keys too.
func buildFilter(r io.Reader, bitsPerKey int) (bloom.Filter, int, error) {
	bf := bloom.New(bitsPerKey)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		bf.Add(scanner.Bytes())
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read keys: %w", err)
	}
	n := bf.Len()
	return bf.Generate(), n, nil
}

func readFilter(path string) (bloom.Filter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read filter: %w", err)
	}
	return bloom.Filter(data), nil
}

// inspectFilter estimates the false positive rate as fill^k, the chance that
// every probe of an absent key lands on a set bit.
func inspectFilter(f bloom.Filter) filterReport {
	r := filterReport{
		Bytes:   len(f),
		Bits:    f.NumBits(),
		Probes:  f.Probes(),
		BitsSet: f.BitsSet(),
	}
	switch {
	case r.Bits == 0:
		// matches nothing.
	case r.Probes > bloom.MaxProbes:
		r.Reserved = true
		r.FillRatio = float64(r.BitsSet) / float64(r.Bits)
		r.EstimatedFPRate = 1
	default:
		r.FillRatio = float64(r.BitsSet) / float64(r.Bits)
		r.EstimatedFPRate = math.Pow(r.FillRatio, float64(r.Probes))
	}
	return r
}
