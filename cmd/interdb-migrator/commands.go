package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vitebski/interdb-migrator/internal/analyzer"
	"github.com/vitebski/interdb-migrator/internal/connector"
	"github.com/vitebski/interdb-migrator/internal/dialect"
	"github.com/vitebski/interdb-migrator/internal/generator"
	"github.com/vitebski/interdb-migrator/internal/metrics"
	"github.com/vitebski/interdb-migrator/internal/migrator"
	"github.com/vitebski/interdb-migrator/internal/populator"
	"github.com/vitebski/interdb-migrator/internal/progress"
	"github.com/vitebski/interdb-migrator/internal/utils"
	"github.com/vitebski/interdb-migrator/pkg/models"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

// errNotOK makes the process exit 1 after a result was already printed
var errNotOK = errors.New("operation did not complete successfully")

type app struct {
	v        *viper.Viper
	out      io.Writer
	logger   *logrus.Logger
	provider connector.Provider
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{v: newViper(), out: out}

	rootCmd := &cobra.Command{
		Use:   "interdb-migrator",
		Short: "Copy table schemas and data between MySQL and PostgreSQL",
		Long: `InterDB Migrator

Copies table structure and rows from a MySQL source to a MySQL or PostgreSQL
destination. Rows are written as batched upserts, one transaction per batch,
so a run can be repeated safely. A table that fails does not stop the others.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	addGlobalFlags(rootCmd)

	rootCmd.AddCommand(
		a.tableCmd(),
		a.schemaCmd(),
		a.dataCmd(),
		a.databaseCmd(),
		a.inspectCmd(),
		a.seedCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number",
			PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
				return nil
			},
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(a.out, "interdb-migrator %s\n", version)
			},
		},
	)
	return rootCmd
}

func (a *app) setup(cmd *cobra.Command) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	logLevel, _ := cmd.Flags().GetString("log-level")

	// The .env file must be loaded before viper reads INTERDB_* variables
	bootstrap := utils.SetupLogging(logLevel)
	utils.LoadEnvironmentVariables(envFile, bootstrap)

	if err := bindCommand(a.v, cmd); err != nil {
		return err
	}
	a.logger = utils.SetupLogging(a.v.GetString("log-level"))
	if a.provider == nil {
		a.provider = connector.NewProvider(a.logger)
	}
	return nil
}

// endpoints validates and returns the source and destination configs
func (a *app) endpoints() (models.ConnectionConfig, models.ConnectionConfig, error) {
	src := endpointConfig(a.v, sourcePrefix)
	dst := destinationConfig(a.v)
	if dst.Database == "" {
		dst.Database = src.Database
	}
	if err := utils.ValidateConnectionConfig(src, "source"); err != nil {
		return src, dst, err
	}
	if err := utils.ValidateConnectionConfig(dst, "destination"); err != nil {
		return src, dst, err
	}
	return src, dst, nil
}

// observer builds the progress reporters asked for on the command line.
// Metrics are served until ctx is done.
func (a *app) observer(ctx context.Context) progress.Observer {
	var observers []progress.Observer
	if a.v.GetBool("progress") {
		observers = append(observers, progress.NewBarReporter(os.Stderr))
	}
	if addr := a.v.GetString("metrics-addr"); addr != "" {
		collector := metrics.NewCollector()
		collector.Serve(ctx, addr, a.logger)
		observers = append(observers, collector)
	}
	return progress.NewMulti(observers...)
}

func (a *app) tableMigrator(ctx context.Context, src, dst models.ConnectionConfig) (*migrator.TableMigrator, error) {
	return migrator.NewTableMigrator(src.Engine, dst.Engine, a.provider, a.observer(ctx), a.logger)
}

func (a *app) tableOptions() migrator.TableOptions {
	return migrator.TableOptions{
		BatchSize:    a.v.GetInt("batch-size"),
		DropIfExists: a.v.GetBool("drop-if-exists"),
	}
}

func (a *app) tableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Copy one table's schema and then its rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			src, dst, err := a.endpoints()
			if err != nil {
				return err
			}
			tm, err := a.tableMigrator(ctx, src, dst)
			if err != nil {
				return err
			}

			result := tm.MigrateTable(ctx, src, dst, a.tableOptions())
			utils.PrintMigrationResult(a.out, result)
			if !result.OK {
				return errNotOK
			}
			dstTable := dst.TableName
			if dstTable == "" {
				dstTable = src.TableName
			}
			return a.verify(ctx, tm, src, dst, []utils.TablePair{{Source: src.TableName, Destination: dstTable}})
		},
	}
	cmd.Flags().Bool("drop-if-exists", true, "Drop the destination table if it exists")
	cmd.Flags().Bool("verify", false, "Compare source and destination row counts afterwards")
	return cmd
}

func (a *app) schemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Create the destination table from the source table's structure",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			src, dst, err := a.endpoints()
			if err != nil {
				return err
			}
			tm, err := a.tableMigrator(ctx, src, dst)
			if err != nil {
				return err
			}

			result := tm.CopySchema(ctx, src, dst, a.v.GetBool("drop-if-exists"))
			printStep(a.out, result.OK, result.Message, result.Warnings)
			if !result.OK {
				return errNotOK
			}
			return nil
		},
	}
	cmd.Flags().Bool("drop-if-exists", true, "Drop the destination table if it exists")
	return cmd
}

func (a *app) dataCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "data",
		Short: "Upsert the source table's rows into an existing destination table",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			src, dst, err := a.endpoints()
			if err != nil {
				return err
			}
			tm, err := a.tableMigrator(ctx, src, dst)
			if err != nil {
				return err
			}

			result := tm.TransferData(ctx, src, dst, a.v.GetInt("batch-size"))
			printStep(a.out, result.OK, result.Message, nil)
			if !result.OK {
				return errNotOK
			}
			return nil
		},
	}
}

func (a *app) databaseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "database",
		Short: "Copy every base table of the source database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			src, dst, err := a.endpoints()
			if err != nil {
				return err
			}
			tm, err := a.tableMigrator(ctx, src, dst)
			if err != nil {
				return err
			}

			dm := migrator.NewDatabaseMigrator(tm, a.logger)
			result := dm.MigrateDatabase(ctx, src, dst, migrator.DatabaseOptions{
				TableOptions:    a.tableOptions(),
				DependencyOrder: a.v.GetBool("dependency-order"),
				Tables:          a.v.GetStringSlice("tables"),
			})
			utils.PrintSummary(a.out, result)

			done := make([]string, 0, len(result.Tables))
			for _, t := range result.Tables {
				if !result.Failed(t.Table) {
					done = append(done, t.Table)
				}
			}
			verifyErr := a.verify(ctx, tm, src.WithTable(""), dst.WithTable(""), utils.SameName(done))
			if !result.OK {
				return errNotOK
			}
			return verifyErr
		},
	}
	cmd.Flags().Bool("drop-if-exists", true, "Drop destination tables that already exist")
	cmd.Flags().Bool("verify", false, "Compare source and destination row counts afterwards")
	cmd.Flags().Bool("dependency-order", false, "Copy referenced tables before the tables referencing them")
	cmd.Flags().StringSlice("tables", nil, "Only copy these tables")
	return cmd
}

// verify compares row counts when --verify is set
func (a *app) verify(ctx context.Context, tm *migrator.TableMigrator, src, dst models.ConnectionConfig, tables []utils.TablePair) error {
	if !a.v.GetBool("verify") || len(tables) == 0 {
		return nil
	}
	srcConn, err := a.provider.Open(ctx, src)
	if err != nil {
		return err
	}
	defer srcConn.Disconnect()
	dstConn, err := a.provider.Open(ctx, dst)
	if err != nil {
		return err
	}
	defer dstConn.Disconnect()

	ok, checks := utils.VerifyRowCounts(ctx, srcConn, dstConn,
		tm.Strategy.SourceDialect, tm.Strategy.DestinationDialect, tables, a.logger)
	utils.PrintVerificationResults(a.out, checks)
	if !ok {
		return errNotOK
	}
	return nil
}

func (a *app) inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Print the source schema and the DDL a migration would run",
		Long: `With --source-table, print the table's columns and the CREATE TABLE the
destination engine would receive. Without it, print the foreign key
dependency analysis of the whole source database.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			src := endpointConfig(a.v, sourcePrefix)
			dstEngine := models.Engine(a.v.GetString(destPrefix + "-engine"))
			if err := utils.ValidateConnectionConfig(src, "source"); err != nil {
				return err
			}
			strategy, err := migrator.StrategyFor(src.Engine, dstEngine, a.logger)
			if err != nil {
				return err
			}

			conn, err := a.provider.Open(ctx, src)
			if err != nil {
				return err
			}
			defer conn.Disconnect()

			if src.TableName == "" {
				sa := analyzer.NewSchemaAnalyzer(conn, strategy.SourceDialect, a.logger)
				if err := sa.AnalyzeSchema(ctx, nil); err != nil {
					return err
				}
				utils.PrintSchemaAnalysis(a.out, sa)
				return nil
			}

			introspector := analyzer.NewSchemaIntrospector(strategy.SourceDialect, a.logger)
			schema, err := introspector.Introspect(ctx, conn, src.TableName,
				analyzer.IntrospectOptions{NativeDDL: strategy.Writer.NeedsNativeDDL()})
			if err != nil {
				return err
			}
			dstTable := a.v.GetString(destPrefix + "-table")
			if dstTable == "" {
				dstTable = src.TableName
			}
			ddl, warnings, err := strategy.Writer.CreateStatement(schema, dstTable)
			if err != nil {
				return err
			}
			utils.PrintTableSchema(a.out, schema, ddl, warnings)
			return nil
		},
	}
}

func (a *app) seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill source tables with fake rows for a trial migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			src := endpointConfig(a.v, sourcePrefix)
			if err := utils.ValidateConnectionConfig(src, "source"); err != nil {
				return err
			}
			d, err := dialect.For(src.Engine)
			if err != nil {
				return err
			}

			tables := a.v.GetStringSlice("tables")
			if src.TableName != "" {
				tables = append(tables, src.TableName)
			}

			conn, err := a.provider.Open(ctx, src.WithTable(""))
			if err != nil {
				return err
			}
			defer conn.Disconnect()

			gen := generator.NewDataGenerator(a.v.GetInt64("seed"), a.logger)
			dp := populator.NewDatabasePopulator(conn, d, gen, a.v.GetInt("records"), a.logger)
			if size := a.v.GetInt("batch-size"); size > 0 {
				dp.BatchSize = size
			}

			result := dp.PopulateDatabase(ctx, tables)
			printStep(a.out, result.OK, result.Message, nil)
			if !result.OK {
				return errNotOK
			}
			return nil
		},
	}
	cmd.Flags().IntP("records", "r", 10, "Number of records to generate per table")
	cmd.Flags().Int64("seed", 1, "Random seed; the same seed generates the same rows")
	cmd.Flags().StringSlice("tables", nil, "Only seed these tables")
	return cmd
}

func printStep(w io.Writer, ok bool, message string, warnings []string) {
	status := "OK"
	if !ok {
		status = "FAILED"
	}
	fmt.Fprintf(w, "[%s] %s\n", status, message)
	for _, warning := range warnings {
		fmt.Fprintf(w, "Warning: %s\n", warning)
	}
}
