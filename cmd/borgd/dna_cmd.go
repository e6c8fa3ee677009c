package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/borglife-labs/borglife/pkg/genome"
)

func runValidateCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("validate", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		dnaPath    string
		jsonOutput bool
	)
	cmd.StringVar(&dnaPath, "dna", "borg_dna.yaml", "Path to the DNA file")
	cmd.BoolVar(&jsonOutput, "json", false, "Output result as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	raw, err := os.ReadFile(dnaPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading DNA: %v\n", err)
		return 2
	}

	g, err := genome.Parse(raw)
	if err != nil {
		if jsonOutput {
			result := map[string]any{"dna": dnaPath, "valid": false, "error": err.Error()}
			data, _ := json.MarshalIndent(result, "", "  ")
			fmt.Fprintln(stdout, string(data))
		} else {
			fmt.Fprintf(stderr, "Validation failed: %v\n", err)
		}
		return 1
	}

	hash, err := genome.ComputeHash(g)
	if err != nil {
		fmt.Fprintf(stderr, "Hashing failed: %v\n", err)
		return 1
	}

	if jsonOutput {
		result := map[string]any{
			"dna":           dnaPath,
			"valid":         true,
			"service_index": g.Header.ServiceIndex,
			"cells":         len(g.Cells),
			"organs":        len(g.Organs),
			"genome_hash":   hash,
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Fprintln(stdout, string(data))
	} else {
		fmt.Fprintf(stdout, "Valid: %s\n", dnaPath)
		fmt.Fprintf(stdout, "  Service: %s\n", g.Header.ServiceIndex)
		fmt.Fprintf(stdout, "  Cells:   %d\n", len(g.Cells))
		fmt.Fprintf(stdout, "  Organs:  %d\n", len(g.Organs))
		fmt.Fprintf(stdout, "  Hash:    %s\n", hash)
	}
	return 0
}

func runHashCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("hash", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var dnaPath string
	cmd.StringVar(&dnaPath, "dna", "borg_dna.yaml", "Path to the DNA file")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	raw, err := os.ReadFile(dnaPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading DNA: %v\n", err)
		return 2
	}
	g, err := genome.Parse(raw)
	if err != nil {
		fmt.Fprintf(stderr, "Parse failed: %v\n", err)
		return 1
	}
	hash, err := genome.ComputeHash(g)
	if err != nil {
		fmt.Fprintf(stderr, "Hashing failed: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, hash)
	return 0
}
