// Package main provides the kite Flight SQL command-line client.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TFMV/kite/cmd/kite/config"
	"github.com/TFMV/kite/pkg/auth"
	"github.com/TFMV/kite/pkg/flightsql"
	"github.com/TFMV/kite/pkg/ipc"
)

var (
	// Version information (set by build flags)
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "kite",
	Short: "Kite Flight SQL client",
	Long: `A command-line client for Arrow Flight SQL endpoints.

Kite plans queries with GetFlightInfo, fetches results over DoGet, and
decodes the Arrow IPC payload itself, so a malformed response fails with a
diagnosis instead of a crash.`,
}

var queryCmd = &cobra.Command{
	Use:   "query [sql]",
	Short: "Execute a query and print the result",
	Long: `Execute a SQL statement and render the result as a table or CSV.

Example:
  kite query "SELECT * FROM trades LIMIT 10" --address localhost:32010
  kite query "SELECT * FROM trades" --since 24h
  kite query "SELECT * FROM trades" --begin 2024-01-01T00:00:00Z --end 2024-01-02T00:00:00Z
  kite query "SELECT * FROM trades" --format csv > trades.csv`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Load an Arrow IPC stream file into a table",
	Long: `Decode an Arrow IPC stream file and bulk-load it over DoPut.

Example:
  kite ingest trades.arrows --table trades
  kite ingest trades.arrows --table trades --replace`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(ingestCmd)

	// Connection flags shared by every command
	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", "", "config file path")
	pf.StringP("address", "a", "localhost:32010", "Flight SQL endpoint (host:port)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.Duration("timeout", 5*time.Minute, "overall command timeout")
	pf.Int("max-message-size", 16*1024*1024, "maximum inbound message size in bytes")
	pf.Bool("tls", false, "connect with TLS")
	pf.Bool("tls-skip-verify", false, "skip TLS certificate verification")
	pf.String("token", "", "static bearer token")
	pf.StringArray("header", nil, "extra request metadata as name=value (repeatable)")
	pf.String("oauth-issuer", "", "OIDC issuer for client-credentials auth")
	pf.String("oauth-token-url", "", "token endpoint, skips issuer discovery")
	pf.String("oauth-client-id", "", "OAuth client id")
	pf.String("oauth-client-secret", "", "OAuth client secret")
	pf.String("oauth-audience", "", "OAuth audience parameter")
	pf.StringSlice("oauth-scope", nil, "OAuth scopes")

	queryCmd.Flags().String("begin", "", "inclusive lower time bound (RFC 3339 with offset)")
	queryCmd.Flags().String("end", "", "exclusive upper time bound (RFC 3339 with offset)")
	queryCmd.Flags().String("since", "", "relative lower bound (90s, 30m, 2h, 7d, 1w)")
	queryCmd.Flags().Int("max-rows", 1000, "rows to render, 0 for all")
	queryCmd.Flags().Bool("stream", false, "render batches as they arrive")
	queryCmd.Flags().String("format", "table", "output format: table or csv")

	ingestCmd.Flags().String("table", "", "target table (required)")
	ingestCmd.Flags().String("db-schema", "", "database schema qualifying the table")
	ingestCmd.Flags().String("catalog", "", "catalog qualifying the table")
	ingestCmd.Flags().Bool("replace", false, "replace existing rows instead of appending")
	ingestCmd.Flags().Bool("temporary", false, "create a session-scoped table")

	// Bind flags to viper
	if err := viper.BindPFlags(pf); err != nil {
		panic(fmt.Errorf("failed to bind flags: %w", err))
	}
	if err := viper.BindPFlags(queryCmd.Flags()); err != nil {
		panic(fmt.Errorf("failed to bind flags: %w", err))
	}
	if err := viper.BindPFlags(ingestCmd.Flags()); err != nil {
		panic(fmt.Errorf("failed to bind flags: %w", err))
	}
	viper.SetEnvPrefix("KITE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// Add version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Kite Flight SQL client\n")
			fmt.Printf("Version:    %s\n", version)
			fmt.Printf("Commit:     %s\n", commit)
			fmt.Printf("Build Date: %s\n", buildDate)
		},
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogging(cfg.LogLevel)

	query := strings.TrimSpace(strings.Join(args, " "))
	timeRange, err := timeRangeFromFlags()
	if err != nil {
		return err
	}
	format, err := outputFormat()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	client, err := dialClient(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	maxRows := viper.GetInt("max-rows")
	if viper.GetBool("stream") {
		return streamQuery(ctx, client, query, timeRange, format, maxRows)
	}

	tbl, err := client.Query(ctx, query, flightsql.WithTimeRange(timeRange))
	if err != nil {
		return err
	}
	defer tbl.Release()

	if format == "csv" {
		_, err := renderCSV(os.Stdout, tbl.Schema(), tbl.Records(), maxRows, true)
		return err
	}
	rendered := renderResult(os.Stdout, tbl.Schema(), tbl.Records(), maxRows, true)
	if total := tbl.NumRows(); int64(rendered) < total {
		fmt.Printf("(showing %d of %d rows)\n", rendered, total)
	} else {
		fmt.Printf("(%d rows)\n", total)
	}
	return nil
}

// outputFormat validates the --format flag before any connection is made.
func outputFormat() (string, error) {
	format := viper.GetString("format")
	switch format {
	case "table", "csv":
		return format, nil
	}
	return "", fmt.Errorf("unknown format %q, expected table or csv", format)
}

func streamQuery(ctx context.Context, client *flightsql.Client, query string, r flightsql.TimeRange, format string, maxRows int) error {
	stream, err := client.QueryStream(ctx, query, flightsql.WithTimeRange(r))
	if err != nil {
		return err
	}
	defer stream.Close()

	rendered := 0
	header := true
	for stream.Next() {
		remaining := 0
		if maxRows > 0 {
			if remaining = maxRows - rendered; remaining <= 0 {
				break
			}
		}
		batch := []arrow.Record{stream.Record()}
		if format == "csv" {
			n, err := renderCSV(os.Stdout, stream.Schema(), batch, remaining, header)
			if err != nil {
				return err
			}
			rendered += n
		} else {
			rendered += renderResult(os.Stdout, stream.Schema(), batch, remaining, header)
		}
		header = false
	}
	if err := stream.Err(); err != nil {
		return err
	}
	if format != "csv" {
		fmt.Printf("(%d rows)\n", rendered)
	}
	return nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogging(cfg.LogLevel)

	table := viper.GetString("table")
	if table == "" {
		return fmt.Errorf("--table is required")
	}

	recs, err := decodeStreamFile(args[0])
	if err != nil {
		return err
	}
	defer func() {
		for _, rec := range recs {
			rec.Release()
		}
	}()
	if len(recs) == 0 {
		return fmt.Errorf("%s holds no record batches", args[0])
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	client, err := dialClient(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	n, err := client.BulkIngest(ctx, recs, flightsql.IngestOptions{
		Table:     table,
		Schema:    viper.GetString("db-schema"),
		Catalog:   viper.GetString("catalog"),
		Temporary: viper.GetBool("temporary"),
		Replace:   viper.GetBool("replace"),
	})
	if err != nil {
		return err
	}
	if n < 0 {
		fmt.Printf("Loaded %s into %s (server did not report a row count)\n", args[0], table)
		return nil
	}
	fmt.Printf("Loaded %d rows into %s\n", n, table)
	return nil
}

// decodeStreamFile reads an Arrow IPC stream file with the wire decoder the
// driver uses, so a bad file fails the same way a bad response would.
func decodeStreamFile(path string) ([]arrow.Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	msgs, err := ipc.SplitStream(raw)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("%s holds no Arrow IPC messages", path)
	}
	schema, err := ipc.DecodeSchema(msgs[0].Header)
	if err != nil {
		return nil, err
	}

	recs := make([]arrow.Record, 0, len(msgs)-1)
	for _, msg := range msgs[1:] {
		rec, err := ipc.DecodeRecordBatch(schema, msg.Header, msg.Body)
		if err != nil {
			for _, r := range recs {
				r.Release()
			}
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func timeRangeFromFlags() (flightsql.TimeRange, error) {
	begin := viper.GetString("begin")
	if since := viper.GetString("since"); since != "" {
		if begin != "" {
			return flightsql.TimeRange{}, fmt.Errorf("--since and --begin are mutually exclusive")
		}
		delta, err := flightsql.ParseTimeDelta(since)
		if err != nil {
			return flightsql.TimeRange{}, err
		}
		begin = time.Now().Add(-delta).UTC().Format(time.RFC3339Nano)
	}
	return flightsql.TimeRange{Begin: begin, End: viper.GetString("end")}, nil
}

func dialClient(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*flightsql.Client, error) {
	driverCfg := flightsql.Config{
		Address:        cfg.Address,
		TLS:            cfg.TLS.Enabled,
		TLSSkipVerify:  cfg.TLS.SkipVerify,
		Token:          cfg.Auth.Token,
		Headers:        cfg.Auth.Headers,
		MaxRecvMsgSize: cfg.MaxMessageSize,
	}
	if cfg.Auth.OAuth.Enabled() {
		driverCfg.OAuth = &auth.OAuthConfig{
			Issuer:       cfg.Auth.OAuth.Issuer,
			TokenURL:     cfg.Auth.OAuth.TokenURL,
			ClientID:     cfg.Auth.OAuth.ClientID,
			ClientSecret: cfg.Auth.OAuth.ClientSecret,
			Audience:     cfg.Auth.OAuth.Audience,
			Scopes:       cfg.Auth.OAuth.Scopes,
		}
	}
	return flightsql.Dial(ctx, driverCfg, flightsql.WithLogger(logger))
}

func loadConfig() (*config.Config, error) {
	// Load config file if specified
	if configFile := viper.GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	headers, err := config.ParseHeaders(viper.GetStringSlice("header"))
	if err != nil {
		return nil, err
	}

	// Build configuration
	cfg := &config.Config{
		Address:        viper.GetString("address"),
		LogLevel:       viper.GetString("log-level"),
		Timeout:        viper.GetDuration("timeout"),
		MaxMessageSize: viper.GetInt("max-message-size"),
		TLS: config.TLSConfig{
			Enabled:    viper.GetBool("tls"),
			SkipVerify: viper.GetBool("tls-skip-verify"),
		},
		Auth: config.AuthConfig{
			Token:   viper.GetString("token"),
			Headers: headers,
			OAuth: config.OAuthConfig{
				Issuer:       viper.GetString("oauth-issuer"),
				TokenURL:     viper.GetString("oauth-token-url"),
				ClientID:     viper.GetString("oauth-client-id"),
				ClientSecret: viper.GetString("oauth-client-secret"),
				Audience:     viper.GetString("oauth-audience"),
				Scopes:       viper.GetStringSlice("oauth-scope"),
			},
		},
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setupLogging(level string) zerolog.Logger {
	// Configure zerolog
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond

	var logLevel zerolog.Level
	switch level {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "info":
		logLevel = zerolog.InfoLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.InfoLevel
	}

	// Results go to stdout; logs stay on stderr.
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(logLevel).
		With().
		Timestamp().
		Logger()
}
