// Command klined ingests Binance klines into a local candle store and
// serves them, with MACD and RSI, over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "klined",
	Short: "Kline ingest and indicator service",
	Long: `klined periodically fetches 1m, 5m and 1h klines for one symbol from
Binance, keeps 30 days of each in SQLite and serves raw candles, MACD and
RSI over HTTP.`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("symbol", "BTCUSDT", "Trading symbol to ingest")
	pf.String("resolutions", "1m,5m,1h", "Comma-separated resolutions")
	pf.String("store", "sqlite", "Candle store driver (sqlite, memory)")
	pf.String("db", "data/crypto_data.db", "SQLite database path")
	pf.String("redis", "", "Redis address for latest-candle publishing (empty disables)")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")

	viper.BindPFlag("SYMBOL", pf.Lookup("symbol"))
	viper.BindPFlag("RESOLUTIONS", pf.Lookup("resolutions"))
	viper.BindPFlag("STORE_DRIVER", pf.Lookup("store"))
	viper.BindPFlag("SQLITE_PATH", pf.Lookup("db"))
	viper.BindPFlag("REDIS_ADDR", pf.Lookup("redis"))
	viper.BindPFlag("LOG_LEVEL", pf.Lookup("log-level"))

	rootCmd.AddCommand(serveCmd, fetchCmd, retainCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
