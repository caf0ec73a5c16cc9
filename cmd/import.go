package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/balidash/detective-cli/internal/ingest"
	"github.com/balidash/detective-cli/internal/model"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load restaurants and platform exports into the store",
}

// -- import records --

var importCSVPath string

var importRecordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Import a daily platform export CSV",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		f, err := os.Open(importCSVPath)
		if err != nil {
			return eris.Wrap(err, "open csv")
		}
		defer f.Close() //nolint:errcheck

		records, err := ingest.ParseCSV(f)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return eris.New("no usable rows in export")
		}

		if err := st.UpsertPlatformRecords(ctx, records); err != nil {
			return eris.Wrap(err, "import records")
		}

		zap.L().Info("import complete",
			zap.Int("records", len(records)),
			zap.String("csv", importCSVPath),
		)
		return nil
	},
}

// -- import restaurant --

var importRestaurant model.Restaurant

var importRestaurantCmd = &cobra.Command{
	Use:   "restaurant",
	Short: "Register a restaurant with its location",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		if err := st.UpsertRestaurant(ctx, importRestaurant); err != nil {
			return eris.Wrap(err, "import restaurant")
		}

		zap.L().Info("restaurant registered",
			zap.String("id", importRestaurant.ID),
			zap.String("name", importRestaurant.Name),
		)
		return nil
	},
}

func init() {
	importRecordsCmd.Flags().StringVar(&importCSVPath, "csv", "", "path to export CSV (required)")
	_ = importRecordsCmd.MarkFlagRequired("csv")

	importRestaurantCmd.Flags().StringVar(&importRestaurant.ID, "id", "", "restaurant ID (required)")
	importRestaurantCmd.Flags().StringVar(&importRestaurant.Name, "name", "", "display name (required)")
	importRestaurantCmd.Flags().Float64Var(&importRestaurant.Latitude, "lat", 0, "latitude (required)")
	importRestaurantCmd.Flags().Float64Var(&importRestaurant.Longitude, "lon", 0, "longitude (required)")
	importRestaurantCmd.Flags().StringVar(&importRestaurant.Area, "area", "", "area label, e.g. Canggu")
	_ = importRestaurantCmd.MarkFlagRequired("id")
	_ = importRestaurantCmd.MarkFlagRequired("name")
	_ = importRestaurantCmd.MarkFlagRequired("lat")
	_ = importRestaurantCmd.MarkFlagRequired("lon")

	importCmd.AddCommand(importRecordsCmd)
	importCmd.AddCommand(importRestaurantCmd)
	rootCmd.AddCommand(importCmd)
}
