package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"aster_bot/internal/models"
	"aster_bot/internal/modules/manual/service"
)

// order — кладёт ручной ордер в файл очереди, который разбирает бот.
//
//	order --symbol BTCUSDT --side LONG --leverage 3 --sl 2 --tp 5
func main() {
	flags := pflag.NewFlagSet("order", pflag.ExitOnError)
	flags.String("config", "configs/values_local.yaml", "bot config (for manual.order_file)")
	flags.String("file", "", "queue file, overrides manual.order_file")
	flags.String("symbol", "", "symbol, e.g. BTCUSDT")
	flags.String("side", "", "LONG or SHORT")
	flags.Float64("quantity", 0, "quantity, default position size when 0")
	flags.Int("leverage", 0, "leverage, default leverage when 0")
	flags.Float64("sl", 0, "stop-loss percent")
	flags.Float64("tp", 0, "take-profit percent")
	flags.String("note", "", "note")
	if err := flags.Parse(os.Args[1:]); err != nil {
		fail(err)
	}

	v := viper.New()
	if err := v.BindPFlags(flags); err != nil {
		fail(err)
	}
	v.SetEnvPrefix("ASTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	v.SetDefault("manual.order_file", "manual_orders.json")

	v.SetConfigFile(v.GetString("config"))
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(errors.Cause(err)) {
			fmt.Fprintf(os.Stderr, "config %s not read, using defaults: %v\n", v.GetString("config"), err)
		}
	}

	path := v.GetString("file")
	if path == "" {
		path = v.GetString("manual.order_file")
	}

	raw := map[string]any{
		"symbol": v.GetString("symbol"),
		"note":   v.GetString("note"),
	}
	if side := v.GetString("side"); side != "" {
		raw["side"] = side
	}
	if q := v.GetFloat64("quantity"); q > 0 {
		raw["quantity"] = q
	}
	if l := v.GetInt("leverage"); l > 0 {
		raw["leverage"] = l
	}
	if sl := v.GetFloat64("sl"); sl > 0 {
		raw["stop_loss_percent"] = sl
	}
	if tp := v.GetFloat64("tp"); tp > 0 {
		raw["take_profit_percent"] = tp
	}

	order, err := service.DecodeOrder(raw, models.SourceCLI, time.Now())
	if err != nil {
		fail(err)
	}
	id, err := service.NewQueue(path).Append(service.EncodeOrder(order))
	if err != nil {
		fail(errors.Wrap(err, "append order"))
	}
	fmt.Printf("queued %s %s (id %s) into %s\n", order.Side, order.Symbol, id, path)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
