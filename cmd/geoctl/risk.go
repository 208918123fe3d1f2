package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"geoscore/internal/risk"
)

var riskNow string

var riskCmd = &cobra.Command{
	Use:   "risk",
	Short: "Compute the risk rate of RFC 3339 timestamps read from stdin, one per line",
	Args:  cobra.NoArgs,
	RunE:  runRisk,
}

func init() {
	riskCmd.Flags().StringVar(&riskNow, "now", "", "Reference time in RFC 3339 (default: current time)")
}

func runRisk(cmd *cobra.Command, _ []string) error {
	now := time.Now()
	if riskNow != "" {
		parsed, err := time.Parse(time.RFC3339, riskNow)
		if err != nil {
			return fmt.Errorf("invalid --now: %w", err)
		}
		now = parsed
	}

	timestamps, err := readTimestamps(cmd.InOrStdin())
	if err != nil {
		return err
	}
	rate := risk.Compute(timestamps, now)
	fmt.Fprintf(cmd.OutOrStdout(), "samples=%d risk_rate=%.2f status=%s\n", len(timestamps), rate, risk.Classify(rate))
	return nil
}

func readTimestamps(r io.Reader) ([]time.Time, error) {
	var out []time.Time
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		ts, err := time.Parse(time.RFC3339, text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, ts)
	}
	return out, scanner.Err()
}
