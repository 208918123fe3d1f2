package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	claimstore "geoscore/internal/claim/store"
	"geoscore/internal/region/seed"
	regionservice "geoscore/internal/region/service"
	regionstore "geoscore/internal/region/store"
	riskservice "geoscore/internal/risk/service"
	scoreservice "geoscore/internal/score/service"
	scorestore "geoscore/internal/score/store"
	id "geoscore/pkg/domain"
	"geoscore/pkg/platform/tx"
)

var regionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "Manage the region directory",
}

var regionsLoadCmd = &cobra.Command{
	Use:   "load FILE",
	Short: "Upsert regions from a YAML or JSON file (- for stdin)",
	Args:  cobra.ExactArgs(1),
	RunE:  runRegionsLoad,
}

var regionsSummaryCmd = &cobra.Command{
	Use:   "summary REGION_ID",
	Short: "Print a region summary with its risk rate",
	Args:  cobra.ExactArgs(1),
	RunE:  runRegionsSummary,
}

func runRegionsLoad(cmd *cobra.Command, args []string) error {
	ctx, cancel := withTimeout(cmd)
	defer cancel()

	var in io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	seeds, err := seed.Parse(in)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := regionservice.New(regionstore.NewPostgres(db),
		regionservice.WithLogger(commandLogger(cmd)),
		regionservice.WithTxRunner(tx.NewPostgresRunner(db, tx.WithTimeout(timeout))),
	)
	n, err := svc.BulkLoad(ctx, seeds)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "loaded %d regions\n", n)
	return nil
}

type summaryOutput struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Code         string  `json:"code"`
	CountryCode  string  `json:"country_code"`
	Transactions int64   `json:"transactions"`
	RiskRate     float64 `json:"risk_rate"`
}

func runRegionsSummary(cmd *cobra.Command, args []string) error {
	ctx, cancel := withTimeout(cmd)
	defer cancel()

	regionID, err := id.ParseRegionID(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	log := commandLogger(cmd)
	svc := riskservice.New(
		regionservice.New(regionstore.NewPostgres(db), regionservice.WithLogger(log)),
		scoreservice.New(scorestore.NewPostgres(db), scoreservice.WithLogger(log)),
		claimstore.NewPostgres(db),
		riskservice.WithLogger(log),
	)
	summary, err := svc.RegionSummary(ctx, regionID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(summaryOutput{
		ID:           int64(summary.Region.ID),
		Name:         summary.Region.Name,
		Code:         summary.Region.Code(),
		CountryCode:  summary.Region.CountryCode,
		Transactions: summary.Transactions,
		RiskRate:     summary.RiskRate,
	})
}
