package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/deepakselfhelp/deepak-payments/api"
	"github.com/deepakselfhelp/deepak-payments/archive"
	"github.com/deepakselfhelp/deepak-payments/db"
	"github.com/deepakselfhelp/deepak-payments/dedup"
	"github.com/deepakselfhelp/deepak-payments/mollie"
	"github.com/deepakselfhelp/deepak-payments/notifications"
	"github.com/deepakselfhelp/deepak-payments/notifications/telegram"
	"github.com/deepakselfhelp/deepak-payments/notifications/twilio"
	"github.com/deepakselfhelp/deepak-payments/payments"
	"github.com/deepakselfhelp/deepak-payments/razorpay"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.vocdoni.io/dvote/log"
)

const (
	shutdownTimeout = 30 * time.Second
	// staleActivationAge is the age after which a non terminal journaled
	// activation is reported at startup.
	staleActivationAge = time.Hour
)

func main() {
	// define flags
	flag.StringP("host", "h", "0.0.0.0", "listen address")
	flag.IntP("port", "p", 8080, "listen port")
	flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.String("public-url", "", "public base URL of the service, used for redirect and webhook URLs")
	flag.String("internal-url", "", "internal base URL of the subscription route, if subscriptions are created through it")
	// mollie
	flag.String("mollie-key", "", "Mollie API key")
	flag.String("mollie-api", mollie.DefaultAPIURL, "Mollie API URL")
	// razorpay
	flag.String("razorpay-key-id", "", "Razorpay key id")
	flag.String("razorpay-key-secret", "", "Razorpay key secret")
	flag.String("razorpay-webhook-secret", "", "Razorpay webhook secret (defaults to the key secret)")
	flag.String("razorpay-plan-id", "", "Razorpay plan of the created subscriptions")
	flag.String("razorpay-product", "", "product name stored in the Razorpay subscription notes")
	flag.String("razorpay-api", razorpay.DefaultAPIURL, "Razorpay API URL")
	// notifications
	flag.String("telegram-token", "", "Telegram bot token")
	flag.String("telegram-chat", "", "Telegram chat id")
	flag.String("telegram-api", telegram.DefaultAPIURL, "Telegram Bot API URL")
	flag.String("twilio-sid", "", "Twilio account SID")
	flag.String("twilio-token", "", "Twilio auth token")
	flag.String("twilio-from", "", "Twilio sender number")
	flag.String("twilio-to", "", "phone number receiving the SMS alerts")
	flag.Bool("notification-queue", true, "deliver notifications through an ordered retry queue")
	// activation workflow
	flag.String("activation-strategy", "delay", "mandate activation strategy (delay, poll)")
	flag.String("activation-mode", "inline", "run activations inline or in the background (inline, background)")
	// storage
	flag.Duration("dedup-window", dedup.DefaultWindow, "window in which a repeated payment id is ignored")
	flag.String("redis-url", "", "Redis URL of the shared dedup cache (in-memory if empty)")
	flag.String("mongo-url", "", "The URL of the MongoDB server for the activation journal")
	flag.String("mongo-db", "payments", "The name of the MongoDB database")
	flag.String("s3-bucket", "", "S3 bucket for the webhook payload archive")
	flag.String("s3-region", "", "S3 region")
	flag.String("s3-endpoint", "", "S3 endpoint for S3 compatible services")
	flag.String("s3-access-key", "", "S3 access key")
	flag.String("s3-secret-key", "", "S3 secret key")
	// parse flags
	flag.Parse()
	// initialize Viper
	viper.SetEnvPrefix("PAYMENTS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if err := viper.BindPFlags(flag.CommandLine); err != nil {
		panic(err)
	}
	viper.AutomaticEnv()

	log.Init(viper.GetString("log-level"), "stdout", nil)

	// read the configuration
	host := viper.GetString("host")
	port := viper.GetInt("port")
	publicURL := viper.GetString("public-url")
	internalURL := viper.GetString("internal-url")
	background := false
	switch mode := viper.GetString("activation-mode"); mode {
	case "inline":
	case "background":
		background = true
	default:
		log.Fatalf("unknown activation mode %q", mode)
	}
	strategy, err := payments.StrategyByName(viper.GetString("activation-strategy"))
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// notification sinks
	var sinks notifications.Fanout
	if token := viper.GetString("telegram-token"); token != "" {
		tg, err := telegram.New(&telegram.Config{
			Token:  token,
			ChatID: viper.GetString("telegram-chat"),
			APIURL: viper.GetString("telegram-api"),
		})
		if err != nil {
			log.Fatalf("could not create the Telegram sink: %v", err)
		}
		sinks = append(sinks, tg)
	}
	if sid := viper.GetString("twilio-sid"); sid != "" {
		sms, err := twilio.New(&twilio.Config{
			AccountSid: sid,
			AuthToken:  viper.GetString("twilio-token"),
			FromNumber: viper.GetString("twilio-from"),
			ToNumber:   viper.GetString("twilio-to"),
		})
		if err != nil {
			log.Fatalf("could not create the Twilio sink: %v", err)
		}
		sinks = append(sinks, sms)
	}
	var notifier notifications.NotificationService = notifications.LogService{}
	if len(sinks) > 0 {
		notifier = sinks
	} else {
		log.Warn("no notification sink configured, notifications are only logged")
	}
	var queue *notifications.Queue
	if viper.GetBool("notification-queue") {
		queue = notifications.NewQueue(ctx, notifier, 0, 0)
		go queue.Start()
		notifier = queue
	}

	// dedup cache
	window := viper.GetDuration("dedup-window")
	var dedupCache payments.Deduplicator
	if redisURL := viper.GetString("redis-url"); redisURL != "" {
		redisCache, err := dedup.NewRedisCache(ctx, redisURL, window)
		if err != nil {
			log.Fatalf("could not connect to the Redis dedup cache: %v", err)
		}
		defer func() {
			if err := redisCache.Close(); err != nil {
				log.Warnw("failed to close the Redis client", "error", err)
			}
		}()
		dedupCache = redisCache
	} else {
		dedupCache = dedup.NewMemoryCache(ctx, window)
	}

	// activation journal
	var journal payments.Journal
	if mongoURL := viper.GetString("mongo-url"); mongoURL != "" {
		database, err := db.New(mongoURL, viper.GetString("mongo-db"))
		if err != nil {
			log.Fatalf("could not create the MongoDB database: %v", err)
		}
		defer database.Close()
		stale, err := database.StaleActivations(staleActivationAge)
		if err != nil {
			log.Warnw("could not list stale activations", "error", err)
		}
		for _, a := range stale {
			log.Warnw("activation did not finish",
				"id", a.ID,
				"provider", a.Provider,
				"payment", a.PaymentID,
				"state", a.State,
				"updatedAt", a.UpdatedAt)
		}
		journal = database
	}

	// webhook payload archive
	var payloadArchive api.PayloadArchive
	if bucket := viper.GetString("s3-bucket"); bucket != "" {
		store, err := archive.New(ctx, &archive.Config{
			Bucket:    bucket,
			Region:    viper.GetString("s3-region"),
			Endpoint:  viper.GetString("s3-endpoint"),
			AccessKey: viper.GetString("s3-access-key"),
			SecretKey: viper.GetString("s3-secret-key"),
		})
		if err != nil {
			log.Fatalf("could not create the payload archive: %v", err)
		}
		payloadArchive = store
	}

	// only signed webhooks may carry the event; the others are re-fetched
	newProcessor := func(provider string, gateway payments.Gateway, signed bool) *payments.Processor {
		processor, err := payments.NewProcessor(&payments.ProcessorConfig{
			Provider:      provider,
			Gateway:       gateway,
			Notifier:      notifier,
			Dedup:         dedupCache,
			Workflow:      payments.NewWorkflow(gateway, strategy, journal, nil),
			Background:    background,
			TrustEmbedded: signed,
		})
		if err != nil {
			log.Fatalf("could not create the %s processor: %v", provider, err)
		}
		return processor
	}
	apiConf := &api.Config{
		Host:    host,
		Port:    port,
		Archive: payloadArchive,
	}
	var processors []*payments.Processor

	// providers
	if key := viper.GetString("mollie-key"); key != "" {
		mollieClient, err := mollie.New(&mollie.Config{
			APIKey:    key,
			APIURL:    viper.GetString("mollie-api"),
			PublicURL: publicURL,
		})
		if err != nil {
			log.Fatalf("could not create the Mollie client: %v", err)
		}
		var gateway payments.Gateway = mollieClient
		if internalURL != "" {
			gateway = payments.WithSubscriptionCreator(mollieClient, mollie.NewEndpointSubscriber(internalURL))
		}
		mollieProcessor := newProcessor(mollie.ProviderName, gateway, false)
		apiConf.Mollie = mollieClient
		apiConf.MollieProcessor = mollieProcessor
		processors = append(processors, mollieProcessor)
		log.Infow("mollie enabled", "webhook", mollieClient.WebhookURL())
	}
	if keyID := viper.GetString("razorpay-key-id"); keyID != "" {
		razorpayClient, err := razorpay.New(&razorpay.Config{
			KeyID:         keyID,
			KeySecret:     viper.GetString("razorpay-key-secret"),
			WebhookSecret: viper.GetString("razorpay-webhook-secret"),
			PlanID:        viper.GetString("razorpay-plan-id"),
			Product:       viper.GetString("razorpay-product"),
			APIURL:        viper.GetString("razorpay-api"),
		})
		if err != nil {
			log.Fatalf("could not create the Razorpay client: %v", err)
		}
		razorpayProcessor := newProcessor(razorpay.ProviderName, razorpayClient, true)
		apiConf.Razorpay = razorpayClient
		apiConf.RazorpayProcessor = razorpayProcessor
		processors = append(processors, razorpayProcessor)
		log.Infow("razorpay enabled", "key", razorpayClient.KeyID())
	}
	if len(processors) == 0 {
		log.Warn("no payment provider configured")
	}
	for _, p := range processors {
		if d := p.MaxDuration(); d > apiConf.WebhookTimeout {
			apiConf.WebhookTimeout = d
		}
	}

	// create the local API server
	server := api.New(apiConf)
	server.Start()
	// wait forever, as the server is running in a goroutine
	log.Infow("server started",
		"host", host,
		"port", port,
		"strategy", strategy.Name(),
		"background", background)
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	log.Infow("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnw("failed to stop the API server", "error", err)
	}
	for _, p := range processors {
		p.Wait()
	}
	if queue != nil {
		drain(shutdownCtx, queue)
	}
}

// drain waits until the notification queue is empty or ctx is done.
func drain(ctx context.Context, queue *notifications.Queue) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for queue.Len() > 0 {
		select {
		case <-ctx.Done():
			log.Warnw("notifications left undelivered", "pending", queue.Len())
			return
		case <-ticker.C:
		}
	}
}
