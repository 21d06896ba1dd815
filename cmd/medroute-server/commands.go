package main

import (
	"context"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/medroute/medroute/internal/config"
	"github.com/medroute/medroute/internal/domain/facility"
	"github.com/medroute/medroute/internal/platform/db"
	"github.com/medroute/medroute/pkg/geo"
)

// openPool loads config and connects; callers close the pool.
func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, db.Migrations()).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, db.Migrations()).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	}
	cmd.AddCommand(statusCmd)

	return cmd
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status, appliedAt := "pending", ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func facilityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "facility",
		Short: "Inspect the facility directory",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List facilities with their approval status",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			ctx := cmd.Context()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			items, total, err := facility.NewDirectoryPG(pool).List(ctx, limit, 0)
			if err != nil {
				return err
			}
			printFacilities(cmd.OutOrStdout(), items, total)
			return nil
		},
	}
	listCmd.Flags().Int("limit", 100, "Maximum number of facilities to print")
	cmd.AddCommand(listCmd)

	// Routing preview: the same resolver dispatch uses, without creating a
	// request.
	nearestCmd := &cobra.Command{
		Use:   "nearest",
		Short: "Show which facility a request from a point would be routed to",
		RunE: func(cmd *cobra.Command, args []string) error {
			lat, _ := cmd.Flags().GetFloat64("lat")
			lon, _ := cmd.Flags().GetFloat64("lon")
			ctx := cmd.Context()
			pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			return runNearest(ctx, cmd.OutOrStdout(), facility.NewDirectoryPG(pool), geo.Coordinate{Latitude: lat, Longitude: lon})
		},
	}
	nearestCmd.Flags().Float64("lat", 0, "Latitude in decimal degrees")
	nearestCmd.Flags().Float64("lon", 0, "Longitude in decimal degrees")
	_ = nearestCmd.MarkFlagRequired("lat")
	_ = nearestCmd.MarkFlagRequired("lon")
	cmd.AddCommand(nearestCmd)

	return cmd
}

func printFacilities(w io.Writer, items []*facility.Facility, total int) {
	fmt.Fprintf(w, "%-36s %-30s %-9s %s\n", "ID", "NAME", "STATUS", "LOCATION")
	for _, f := range items {
		location := "-"
		if f.Location != nil {
			location = f.Location.String()
		}
		fmt.Fprintf(w, "%-36s %-30s %-9s %s\n", f.ID, f.Name, f.Status, location)
	}
	fmt.Fprintf(w, "%d of %d facilities\n", len(items), total)
}

func runNearest(ctx context.Context, w io.Writer, dir facility.Directory, point geo.Coordinate) error {
	m, err := facility.NewResolver(dir).Nearest(ctx, point)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s (%s) %.2f km\n", m.Facility.Name, m.Facility.ID, m.DistanceKm)
	return nil
}
