package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"ciphermarket/internal/config"
	"ciphermarket/internal/events"
	"ciphermarket/internal/faucet"
	"ciphermarket/internal/gateway"
	"ciphermarket/internal/market"
	"ciphermarket/internal/payment"
	"ciphermarket/internal/registry"
	"ciphermarket/internal/sellers"
	"ciphermarket/internal/server"
	"ciphermarket/internal/store"
	ciphermarketsdk "ciphermarket/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "cm",
	Short: "Ciphermarket CLI",
	Long: `Ciphermarket is a pay-per-query encrypted data marketplace.
Buyers submit encrypted queries, sellers answer them, and the answers are
held encrypted until an x402 payment settles. The 'serve' command runs
the marketplace; the other commands act as a buyer against one.`,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CIPHERMARKET")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("server", "http://localhost:4021", "marketplace base URL")
	rootCmd.PersistentFlags().String("buyer-key", "", "buyer private key (hex) for paying queries")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("buyer-key", rootCmd.PersistentFlags().Lookup("buyer-key"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(sellersCmd())
	rootCmd.AddCommand(queryCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(faucetCmd())
	rootCmd.AddCommand(healthCmd())
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the marketplace server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				cfg.Server.BasePath = basePath
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			gw := gateway.New(ctx, cfg)
			if err := gw.SelfTest(ctx); err != nil {
				return fmt.Errorf("encryption self-test failed: %w", err)
			}

			reg := registry.New()
			sellers.RegisterAll(reg)

			bus := events.New()
			st := store.New(store.DefaultTTL)
			go st.Run(ctx, store.DefaultSweepInterval)

			mkt := market.New(reg, gw, st, bus)

			gate := &payment.Gate{
				PayTo:       cfg.Payment.PayTo,
				Network:     cfg.Payment.Network,
				Asset:       cfg.Payment.Asset,
				Facilitator: payment.NewFacilitator(cfg.Payment.FacilitatorURL),
				PriceFor: func(sellerID string) (string, bool) {
					s, ok := reg.Get(sellerID)
					return s.PriceUSD, ok
				},
				TimeoutSeconds: cfg.Payment.MaxWaitSeconds,
			}
			if !cfg.Gated() {
				log.Printf("WARNING: no pay_to configured, payment gate disabled; data is served for free")
			}

			var payer *payment.Payer
			if cfg.Payment.BuyerKey != "" {
				payer, err = payment.NewPayer(cfg.Payment.BuyerKey)
				if err != nil {
					return err
				}
				if cfg.Payment.MaxWaitSeconds > 0 {
					payer.MaxWait = time.Duration(cfg.Payment.MaxWaitSeconds) * time.Second
				}
				log.Printf("demo buyer wallet ready (%s)", payer.Address())
			}

			var dripper *faucet.Dripper
			if cfg.FaucetEnabled() {
				sender, err := faucet.NewChainSender(
					cfg.Faucet.RPC, cfg.Payment.BuyerKey, cfg.Payment.Asset, cfg.Faucet.ChainID)
				if err != nil {
					return fmt.Errorf("faucet wallet: %w", err)
				}
				dripper = faucet.New(sender)
				if cfg.Faucet.MaxDrips > 0 {
					dripper.MaxDrips = cfg.Faucet.MaxDrips
				}
				log.Printf("faucet enabled (%d drips available)", dripper.MaxDrips)
			}

			handler, err := server.New(server.Config{
				Market:   mkt,
				Registry: reg,
				Events:   bus,
				Gateway:  gw,
				Gate:     gate,
				Payer:    payer,
				Faucet:   dripper,
				Explorers: server.ExplorerLinks{
					Payment:   cfg.Explorers.Payment,
					Threshold: cfg.Explorers.Threshold,
				},
				BasePath: cfg.Server.BasePath,
				SelfURL:  cfg.PublicURL(),
			})
			if err != nil {
				return err
			}

			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
			go func() {
				<-ctx.Done()
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				srv.Shutdown(shutdownCtx)
			}()
			fmt.Printf("Serving Ciphermarket API on http://%s%s (gating=%v, encryption=%s)\n",
				cfg.Server.Addr, cfg.Server.BasePath, cfg.Gated(), gw.Mode())
			fmt.Printf("Sellers: %s\n", strings.Join(reg.IDs(), ", "))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":4021", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage workspace config"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default ciphermarket.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			data, err := yaml.Marshal(config.Default())
			if err != nil {
				return err
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrYAML(cfg)
		},
	}
	return cmd
}

func sellersCmd() *cobra.Command {
	sellersRoot := &cobra.Command{Use: "sellers", Short: "Browse the seller catalog"}
	sellersRoot.AddCommand(sellersListCmd())
	sellersRoot.AddCommand(sellersShowCmd())
	return sellersRoot
}

func sellersListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sellers",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			items, err := client.ListSellers(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(items)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Name", "Category", "Price"})
			for _, s := range items {
				tw.AppendRow(table.Row{s.ID, s.Name, s.Category, s.PriceUSD})
			}
			tw.Render()
			return nil
		},
	}
	return cmd
}

func sellersShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a seller",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			s, err := client.GetSeller(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(s)
		},
	}
	return cmd
}

func queryCmd() *cobra.Command {
	var sellerID, text, paramsJSON string
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Submit an encrypted query and pay for the answer",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sellerID == "" {
				return fmt.Errorf("--seller required")
			}
			queryText := text
			if paramsJSON != "" {
				var params map[string]any
				if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
					return fmt.Errorf("invalid --params: %w", err)
				}
				queryText = paramsJSON
			}
			if queryText == "" {
				return fmt.Errorf("--text or --params required")
			}
			client, err := newPayingClient()
			if err != nil {
				return err
			}
			sub, err := client.Submit(cmd.Context(), sellerID, queryText)
			if err != nil {
				return err
			}
			fmt.Printf("Response %s pending, price %s, paying via %s\n", sub.ResponseID, sub.PriceUSD, sub.PaymentURL)
			res, err := client.Settle(cmd.Context(), sub)
			if err != nil {
				return err
			}
			if res.TxHash != "" {
				fmt.Printf("Decryption tx: %s\n", res.TxHash)
			}
			return printJSON(res.Data)
		},
	}
	cmd.Flags().StringVar(&sellerID, "seller", "", "seller id")
	cmd.Flags().StringVar(&text, "text", "", "free-text query")
	cmd.Flags().StringVar(&paramsJSON, "params", "", "structured params as JSON")
	return cmd
}

func eventsCmd() *cobra.Command {
	eventsRoot := &cobra.Command{Use: "events", Short: "Lifecycle event stream"}
	eventsRoot.AddCommand(eventsTailCmd())
	return eventsRoot
}

func eventsTailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow the marketplace event stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			return client.Events(cmd.Context(), func(evt ciphermarketsdk.Event) {
				data, _ := json.Marshal(evt.Data)
				fmt.Printf("%s  %-20s %s\n",
					time.UnixMilli(evt.Timestamp).Format(time.RFC3339), evt.Type, data)
			})
		},
	}
	return cmd
}

func faucetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "faucet [address]",
		Short: "Request a testnet drip for a wallet",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newPayingClient()
			if err != nil {
				return err
			}
			address := ""
			if len(args) > 0 {
				address = args[0]
			}
			rec, err := client.Faucet(cmd.Context(), address)
			if err != nil {
				return err
			}
			fmt.Printf("Dripped %s USDC (tx %s), %d drips remaining\n",
				rec.USDCAmount, rec.USDCTxHash, rec.RemainingDrips)
			return nil
		},
	}
	return cmd
}

func healthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient()
			h, err := client.GetHealth(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(h)
		},
	}
	return cmd
}

func newClient() *ciphermarketsdk.Client {
	return ciphermarketsdk.New(viper.GetString("server"))
}

func newPayingClient() (*ciphermarketsdk.Client, error) {
	key := viper.GetString("buyer-key")
	if key == "" {
		return newClient(), nil
	}
	return ciphermarketsdk.NewPaying(viper.GetString("server"), key)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printJSONOrYAML(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}
