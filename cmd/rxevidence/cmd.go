package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rxevidence/rxevidence/config"
	"github.com/rxevidence/rxevidence/internal"
	"github.com/rxevidence/rxevidence/pkg/store/postgres"
)

var (
	log *logrus.Logger

	cfgFile     string
	showVersion bool
	dumpConfig  bool
	generateKey bool
	fixturePath string
)

var cmd = &cobra.Command{
	Use:   "rxevidence",
	Short: "rxevidence fetches FDA drug labels and answers questions from them with cited evidence",
	Run:   func(cmd *cobra.Command, args []string) { run() },
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test utilities",
}

var createFixturesCmd = &cobra.Command{
	Use:   "create-fixtures",
	Short: "Create fixtures for testing",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		fixtureCount, _ := cmd.Flags().GetInt("count")
		outputDir, _ := cmd.Flags().GetString("outputDir")
		if err := postgres.GenerateFixtureData(cfg, fixtureCount, outputDir); err != nil {
			log.Fatalf("Failed to create fixtures: %v", err)
		}
		fmt.Println("Fixtures created successfully.")
	},
}

var loadFixturesCmd = &cobra.Command{
	Use:   "load-fixtures",
	Short: "Load fixtures for testing",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		db, err := postgres.NewPostgresConn(cfg)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v\n", err)
		}
		defer db.Close()
		err = postgres.LoadFixtures(context.Background(), cfg, db, fixturePath)
		if err != nil {
			log.Fatalf("Failed to load fixtures: %v\n", err)
		}
		fmt.Println("Fixtures loaded successfully.")
	},
}

var dumpJsonSchemaCmd = &cobra.Command{
	Use:     "json-schema",
	Short:   "Generates JSON Schema for the configuration file",
	Example: "rxevidence json-schema > rxevidence_config_schema.json",
	RunE: func(cmd *cobra.Command, args []string) error {
		schema, err := config.JSONSchema()
		if err != nil {
			return err
		}
		fmt.Println(string(schema))
		return nil
	},
}

func init() {
	testCmd.AddCommand(createFixturesCmd)
	testCmd.AddCommand(loadFixturesCmd)
	cmd.AddCommand(testCmd)
	cmd.AddCommand(dumpJsonSchemaCmd)
	cmd.AddCommand(ingestCmd)
	cmd.AddCommand(embedCmd)
	cmd.AddCommand(evalCmd)

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default config.yaml)")
	cmd.PersistentFlags().BoolVarP(&showVersion, "version", "v", false, "print version number")
	cmd.PersistentFlags().BoolVarP(&dumpConfig, "dump-config", "d", false, "dump config")
	cmd.PersistentFlags().
		BoolVarP(&generateKey, "generate-token", "g", false, "generate a new JWT token")

	createFixturesCmd.Flags().Int("count", 20, "Number of labels to generate")
	createFixturesCmd.Flags().String("outputDir", "./test_data", "Path to output fixtures")
	loadFixturesCmd.Flags().
		StringVarP(&fixturePath, "fixturePath", "f", "./test_data", "Path containing fixtures to load")

	evalCmd.Flags().Int("k", 0, "results per query (default retrieval.default_k)")
	evalCmd.Flags().Bool("json", false, "print the full report as JSON")
}

// Execute executes the root cobra command.
func Execute() {
	log = internal.GetLogger()
	log.SetLevel(logrus.InfoLevel)

	err := cmd.Execute()

	if err != nil {
		os.Exit(1)
	}
}
