package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"pair-regress-go/config"
	"pair-regress-go/internal/store"
	"pair-regress-go/market"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	symbol := flag.String("symbol", "", "仅输出指定交易对 (默认全量)")
	timeout := flag.Duration("timeout", 30*time.Second, "查询超时")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	st, err := store.Open(store.Options{
		DSN:          cfg.Store.DSN,
		Table:        cfg.Store.Table,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "连接数据库失败: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var records []store.TradeRecord
	if *symbol != "" {
		records, err = st.QueryBySymbol(ctx, market.CanonicalSymbol(*symbol))
	} else {
		records, err = st.All(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "查询失败: %v\n", err)
		os.Exit(1)
	}

	if err := writeRecords(os.Stdout, records); err != nil {
		fmt.Fprintf(os.Stderr, "输出失败: %v\n", err)
		os.Exit(1)
	}
}

func writeRecords(out io.Writer, records []store.TradeRecord) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSymbol\tPrice\tTimestamp")
	for _, r := range records {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", r.ID, r.Symbol, r.Price.String(), r.Timestamp.Format(time.RFC3339Nano))
	}
	return w.Flush()
}
