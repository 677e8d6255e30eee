package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rahul/webpilot/internal/agent"
	"github.com/rahul/webpilot/internal/gateway"
	"github.com/rahul/webpilot/internal/governance"
	"github.com/rahul/webpilot/internal/observability"
	"github.com/rahul/webpilot/internal/store"
	"github.com/rahul/webpilot/internal/tools"
	"github.com/rahul/webpilot/pkg/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the config file (json or yaml)")
	task := flag.String("task", "", "run a single task and exit instead of serving gateways")
	flag.Parse()
	if *task == "" && flag.NArg() > 0 {
		*task = strings.Join(flag.Args(), " ")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	oneShot := *task != ""
	if !oneShot {
		observability.PrintBanner()
		observability.InitializeTerminal()
		// Route all log output through the terminal mutex so it never
		// interrupts the dashboard's cursor save/restore sequence.
		log.SetOutput(observability.NewTermWriter())
	}

	// Shared browser session, lazily started on the first navigation.
	session := tools.NewBrowserSession(cfg.Browser.Headless)
	defer session.Close()

	registry := tools.NewRegistry()
	registry.Register(tools.NewNavigateTool(session))
	registry.Register(tools.NewClickTool(session))
	registry.Register(tools.NewTypeTool(session))
	registry.Register(tools.NewScrollTool(session))
	registry.Register(tools.NewPageContextTool(session))
	registry.Register(tools.NewAnswerTool())

	gov := governance.NewDefaultPolicyEngine()
	// Default safety rules: keep the agent out of local files and browser
	// internals regardless of what a plan asks for.
	_ = gov.DenyTarget(`^file://`)
	_ = gov.DenyTarget(`^chrome://`)
	for _, action := range cfg.Governance.DenyActions {
		gov.DenyAction(action)
	}
	for _, pattern := range cfg.Governance.DenyTargets {
		if err := gov.DenyTarget(pattern); err != nil {
			log.Fatalf("invalid deny_targets pattern %q: %v", pattern, err)
		}
	}

	journal, err := store.NewJournal(cfg.Journal.Path)
	if err != nil {
		log.Fatal(err)
	}
	defer journal.Close()

	prompts := agent.NewPromptManager("./prompts")
	logger := observability.NewLogger()

	pName, pCfg := cfg.GetDefaultProvider()
	if pName == "" {
		log.Fatal("No enabled provider found in config")
	}

	var llm llms.Model
	switch pName {
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(pCfg.APIKey),
			openai.WithModel(pCfg.Model),
		}
		if pCfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(pCfg.BaseURL))
		}
		llm, err = openai.New(opts...)
	default:
		log.Fatalf("Provider %s not yet implemented in main", pName)
	}
	if err != nil {
		log.Fatal(err)
	}

	policy := agent.Policy{
		RunTimeout:            cfg.Orchestrator.RunTimeout(),
		StepTimeout:           cfg.Orchestrator.StepTimeout(),
		PlanningRetries:       *cfg.Orchestrator.PlanningRetries,
		StepRetries:           *cfg.Orchestrator.StepRetries,
		MaxReplanCycles:       *cfg.Orchestrator.MaxReplanCycles,
		CompletenessThreshold: cfg.Orchestrator.CompletenessThreshold,
		CriticalActions:       cfg.Orchestrator.CriticalActions,
		TimeoutFailsRun:       cfg.Orchestrator.TimeoutFailsRun,
		FallbackDirectAnswer:  *cfg.Orchestrator.FallbackDirectAnswer,
	}

	engine := agent.NewEngine(llm, registry, gov, prompts, logger, journal, policy)

	if oneShot {
		runOnce(engine, *task)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var primary gateway.Gateway
	gateways := make([]gateway.Gateway, 0, 2)

	if tgCfg, ok := cfg.GetTelegramConfig(); ok {
		tg, err := gateway.NewTelegramGateway(tgCfg.Token, engine, journal)
		if err != nil {
			log.Fatal(err)
		}
		gateways = append(gateways, tg)
		primary = tg
	}
	if dcCfg, ok := cfg.GetDiscordConfig(); ok {
		dc, err := gateway.NewDiscordGateway(dcCfg.Token, engine)
		if err != nil {
			log.Fatal(err)
		}
		gateways = append(gateways, dc)
		if primary == nil {
			primary = dc
		}
	}
	if len(gateways) == 0 {
		log.Fatal("No gateway enabled; pass -task for one-shot mode or enable telegram/discord in config")
	}

	scheduler := agent.NewScheduler(engine, journal, primary)
	go scheduler.Start(ctx)

	// Live dashboard (1-second updates)
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.PrintLiveStatus()
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.Heartbeat()
			}
		}
	}()

	for _, gw := range gateways {
		gw := gw
		go func() {
			if err := gw.Start(); err != nil {
				log.Printf("\033[91m[ FAIL ] GATEWAY CRITICAL ERROR: %v\033[0m", err)
				stop()
			}
		}()
	}

	<-ctx.Done()

	for _, gw := range gateways {
		gw.Stop()
	}
	observability.CleanupTerminal()

	// Give a short time for final logs/syncs
	time.Sleep(500 * time.Millisecond)
	log.Println("\033[95m[ EXIT ] CORE DE-INITIALIZED. GOODBYE.\033[0m")
}

// runOnce executes one task from the command line and prints the result.
func runOnce(engine *agent.Engine, task string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	progress := func(records []agent.ProgressRecord) {
		for _, r := range records {
			if r.Status == agent.ProgressInProgress {
				log.Printf("[ STEP ] %s: %s", r.Title, r.Description)
			}
		}
	}

	result := engine.ExecuteWithProgress(ctx, "cli", task, progress)

	fmt.Println()
	if result.Success {
		fmt.Println(result.FinalAnswer)
		if result.Degraded {
			fmt.Println("\n(partial result: the run ended before full confidence was reached)")
		}
	} else {
		fmt.Printf("Task failed: %s\n", result.Error)
		if result.Diagnosis != nil {
			fmt.Printf("\n%s\n%s\n", result.Diagnosis.Blame, result.Diagnosis.Improvement)
		}
	}
	if result.FinalURL != "" {
		fmt.Printf("\nFinal URL: %s\n", result.FinalURL)
	}

	if !result.Success {
		os.Exit(1)
	}
}
