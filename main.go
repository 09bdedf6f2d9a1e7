package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carwatch/bot"
	"carwatch/config"
	"carwatch/httputil"
	"carwatch/logging"
	"carwatch/notify"
	"carwatch/scheduler"
	"carwatch/scraper"
	"carwatch/storage"
	"carwatch/telegram"
	"carwatch/workers"
)

var (
	crawlNow = flag.Bool("crawl", false, "Run one crawl cycle and exit")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	logFile, err := logging.Setup("carwatch.log")
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting carwatch...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	var store storage.Store
	if cfg.DatabaseURL != "" {
		pgStore, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		store = pgStore
		log.Println("Connected to Postgres")
	} else {
		sqliteStore, err := storage.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			log.Fatalf("Failed to open SQLite: %v", err)
		}
		store = sqliteStore
		log.Printf("SQLite database: %s", cfg.DBPath)
	}
	defer store.Close()

	watermarks := storage.NewWatermarkStore(cfg.WatermarkPath)

	subscribers, err := notify.LoadSubscribers(cfg.SubscribersPath)
	if err != nil {
		log.Fatalf("Failed to load subscribers: %v", err)
	}
	log.Printf("Loaded %d subscribers", len(subscribers.List()))

	clients := httputil.NewClients()
	tg := telegram.NewClient(cfg.Telegram.BotToken, clients.API)
	dispatcher := notify.NewDispatcher(tg, subscribers, cfg.Crawler.BaseURL, cfg.Telegram.PropagateErrors)

	source := scraper.NewPageSource(clients.Scraping, cfg.Crawler.BaseURL, cfg.Search, cfg.Crawler.PageSize)
	producer := scraper.NewProducer(source)
	details := scraper.NewDetailFetcher(clients.Scraping, cfg.Crawler.BaseURL, cfg.Crawler.ImageWorkers)
	diff := scraper.NewDiffEngine(store)
	orchestrator := scraper.NewOrchestrator(cfg, producer, diff, details, dispatcher, store, watermarks)

	if *crawlNow {
		log.Println("Running crawl cycle...")
		if err := orchestrator.RunCycle(ctx); err != nil {
			log.Fatalf("Crawl failed: %v", err)
		}
		log.Println("Crawl complete!")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sched := scheduler.New(cfg, orchestrator)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	commandBot := bot.New(tg, subscribers)
	go commandBot.Run(ctx)
	log.Println("Command bot started")

	if cfg.S3.Enabled() {
		uploader, err := storage.NewS3Uploader(ctx, cfg.S3)
		if err != nil {
			log.Fatalf("Failed to init S3 uploader: %v", err)
		}
		mediaWorker := workers.NewMediaWorker(store, uploader)
		go mediaWorker.Run(ctx, 20, 2*time.Minute)
		log.Println("Media worker started")
	}

	log.Println("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	cancel()
	sched.Stop()
	if err := subscribers.Save(); err != nil {
		log.Printf("Warning: could not save subscribers: %v", err)
	}
	log.Println("Goodbye!")
}
