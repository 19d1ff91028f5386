// verigate: anti-automation gate para membresía de group chats.
//
// Subcomandos:
//
//	serve   — corre el bot (polling o webhook) + HTTP de /metrics y /healthz
//	invite  — mintea un standing invitation claim offline (sin bot corriendo)
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/verigate/internal/blobstore"
	"github.com/dropDatabas3/verigate/internal/cache"
	"github.com/dropDatabas3/verigate/internal/captcha"
	"github.com/dropDatabas3/verigate/internal/chat"
	"github.com/dropDatabas3/verigate/internal/claim"
	"github.com/dropDatabas3/verigate/internal/config"
	"github.com/dropDatabas3/verigate/internal/dedup"
	"github.com/dropDatabas3/verigate/internal/gate"
	"github.com/dropDatabas3/verigate/internal/httpserver"
	"github.com/dropDatabas3/verigate/internal/metrics"
	"github.com/dropDatabas3/verigate/internal/observability/logger"
	"github.com/dropDatabas3/verigate/internal/payload"
	"github.com/dropDatabas3/verigate/internal/rate"
	"github.com/dropDatabas3/verigate/internal/verify"
)

var version = "dev"

func main() {
	// .env es opcional; las env vars reales siempre ganan
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "verigate",
		Short:         "Anti-automation gate para group chats",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), inviteCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Correr el gate",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}

			logger.Init(logger.Config{
				Env:         cfg.App.Env,
				Level:       cfg.Log.Level,
				ServiceName: "verigate",
				Version:     version,
			})
			defer func() { _ = logger.Sync() }()
			log := logger.Named("main")

			if err := metrics.Register(nil); err != nil {
				return err
			}

			// estado compartido: un solo cache para dedup + anti-flood
			store := cache.New(cacheConfig(cfg))
			table := dedup.New(store)
			var limiter *rate.Limiter
			if !cfg.Rate.Disabled {
				limiter = rate.New(store,
					config.Duration(cfg.Rate.SilentWindow),
					config.Duration(cfg.Rate.NoticeWindow),
					nil,
				)
			}

			tg, err := chat.NewTelegram(cfg.Bot.Token)
			if err != nil {
				return err
			}
			_, botUser := tg.Self()
			log.Info("bot authenticated", logger.Op(botUser))

			codec := claim.NewCodec(cfg.Claims.Secret, nil)
			machine := verify.New(
				codec,
				captcha.NewHTTPVerifier(cfg.Captcha.VerifyURL, cfg.Captcha.SecretKey),
				tg,
				table,
				nil,
			)
			g := gate.New(gate.Deps{
				Chat:     tg,
				Claims:   codec,
				Resolver: payload.NewResolver(blobstore.NewHTTPClient(cfg.Blobstore.BaseURL)),
				Machine:  machine,
				Dedup:    table,
				Limiter:  limiter,
			}, cfg.VerifyPage.BaseURL, cfg.Captcha.SiteKey)

			return run(cmd.Context(), cfg, tg, g, log)
		},
	}

	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "ruta al YAML de configuración (opcional)")
	return cmd
}

// run levanta el server HTTP y el feed de updates, y espera la señal.
func run(parent context.Context, cfg *config.Config, tg *chat.Telegram, g *gate.Gate, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	webhookToken := ""
	if cfg.Bot.Mode == "webhook" {
		webhookToken = cfg.Bot.Token
	}
	srv := &http.Server{Addr: cfg.Bot.Addr, Handler: httpserver.New(g, webhookToken)}

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		log.Info("http server listening", zap.String("addr", cfg.Bot.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	switch cfg.Bot.Mode {
	case "webhook":
		whURL := strings.TrimRight(cfg.Bot.WebhookBaseURL, "/") + "/webhook/" + cfg.Bot.Token
		wh, err := tgbotapi.NewWebhook(whURL)
		if err != nil {
			return err
		}
		if _, err := tg.API().Request(wh); err != nil {
			return fmt.Errorf("registrar webhook: %w", err)
		}
		log.Info("webhook registered")
	default:
		eg.Go(func() error {
			u := tgbotapi.NewUpdate(0)
			u.Timeout = 30
			updates := tg.API().GetUpdatesChan(u)
			log.Info("polling updates")
			for {
				select {
				case <-ctx.Done():
					tg.API().StopReceivingUpdates()
					return nil
				case upd, ok := <-updates:
					if !ok {
						return nil
					}
					g.HandleUpdate(upd)
				}
			}
		})
	}

	eg.Go(func() error {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shCtx)
	})

	return eg.Wait()
}

func cacheConfig(cfg *config.Config) cache.Config {
	cc := cache.Config{
		Kind:       cfg.Cache.Kind,
		DefaultTTL: config.Duration(cfg.Cache.Memory.DefaultTTL),
	}
	cc.Redis.Addr = cfg.Cache.Redis.Addr
	cc.Redis.Password = cfg.Cache.Redis.Password
	cc.Redis.DB = cfg.Cache.Redis.DB
	cc.Redis.Prefix = cfg.Cache.Redis.Prefix
	return cc
}

// inviteCmd mintea un standing claim sin bot corriendo: útil para
// operadores que quieren emitir un link de invitación desde la consola.
func inviteCmd() *cobra.Command {
	var (
		secret   string
		chatID   int64
		chatName string
		days     int
		botUser  string
		siteKey  string
		pageURL  string
	)

	cmd := &cobra.Command{
		Use:   "invite",
		Short: "Mintear un standing invitation claim offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("CLAIM_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("falta el secret (--secret o CLAIM_SECRET)")
			}
			if chatID == 0 {
				return fmt.Errorf("falta --chat")
			}
			if days < claim.MinInviteDays || days > claim.MaxInviteDays {
				return fmt.Errorf("--days fuera de rango [%d,%d]", claim.MinInviteDays, claim.MaxInviteDays)
			}

			codec := claim.NewCodec(secret, nil)
			token, err := codec.Mint(claim.Claim{
				Subject:  claim.AnyBearer,
				ChatID:   strconv.FormatInt(chatID, 10),
				ChatName: url.QueryEscape(chatName),
				Invite:   true,
			}, time.Duration(days)*24*time.Hour)
			if err != nil {
				return err
			}

			if botUser != "" && siteKey != "" {
				if pageURL == "" {
					pageURL = gate.DefaultPageBaseURL
				}
				fmt.Printf("%s#%s;%s;%s\n", pageURL, token, botUser, siteKey)
				return nil
			}
			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "claim signing secret (default: CLAIM_SECRET)")
	cmd.Flags().Int64Var(&chatID, "chat", 0, "chat id destino")
	cmd.Flags().StringVar(&chatName, "name", "", "nombre visible del chat")
	cmd.Flags().IntVar(&days, "days", 7, "validez en días [1,30]")
	cmd.Flags().StringVar(&botUser, "bot", "", "username del bot (para armar el link completo)")
	cmd.Flags().StringVar(&siteKey, "sitekey", "", "captcha site key (para armar el link completo)")
	cmd.Flags().StringVar(&pageURL, "page", "", "base de la página de verificación")
	return cmd
}
