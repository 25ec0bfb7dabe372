package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"alphabot-go/internal/config"
	"alphabot-go/internal/paper"
	"alphabot-go/internal/risk"
)

const defaultConfigPath = "internal/config/config.yaml"

var configPath = flag.String("config", defaultConfigPath, "path to the YAML config")

func main() {
	flag.Parse()
	reader := bufio.NewReader(os.Stdin)

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	for {
		fmt.Println("\n=== AlphaBot Control ===")
		fmt.Println("1) Show configuration summary")
		fmt.Println("2) Edit sizing and quota knobs")
		fmt.Println("3) Edit trade management thresholds")
		fmt.Println("4) Edit score floors")
		fmt.Println("5) Enable/disable assets")
		fmt.Println("6) Show setup performance")
		fmt.Println("7) Save config")
		fmt.Println("8) Launch signal engine")
		fmt.Println("9) Reload config from disk")
		fmt.Println("0) Exit")
		fmt.Print("Select option: ")

		input, _ := reader.ReadString('\n')
		choice := strings.TrimSpace(input)

		switch choice {
		case "1":
			printSummary(cfg)
		case "2":
			editCoordinator(reader, cfg)
		case "3":
			editMonitor(reader, cfg)
		case "4":
			editScorer(reader, cfg)
		case "5":
			editAssets(reader, cfg)
		case "6":
			printPerformance(cfg)
		case "7":
			if err := saveConfig(cfg); err != nil {
				fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			} else {
				fmt.Println("config saved")
			}
		case "8":
			launchEngine(reader)
		case "9":
			reloaded, err := loadConfig()
			if err != nil {
				fmt.Fprintf(os.Stderr, "reload failed: %v\n", err)
			} else {
				cfg = reloaded
				fmt.Println("config reloaded")
			}
		case "0":
			return
		default:
			fmt.Println("unknown option")
		}
	}
}

func printSummary(cfg *config.Config) {
	co, m, sc := cfg.Coordinator, cfg.Monitor, cfg.Scorer
	fmt.Println("\n--- Configuration Summary ---")
	fmt.Printf("Stream provider: %s | REST: %v | price source: %s\n", cfg.Stream.Provider, cfg.REST.Enabled, m.PriceSource)
	for _, a := range cfg.Assets {
		state := "on"
		if a.Disabled {
			state = "off"
		}
		fmt.Printf("  %-5s %-10s %-9s min qty %g [%s]\n", a.Name, a.Symbol, a.VolatilityRegime, a.MinQuantity, state)
	}
	fmt.Printf("Account size: $%.2f | risk per trade: %.2f%%\n", co.AccountSize, co.RiskPerTrade*100)
	fmt.Printf("Per asset: %d/day, %d/hour | cooldowns: global %dm, asset %dm\n",
		co.MaxDailyPerAsset, co.MaxHourlyPerAsset, co.GlobalCooldownMin, co.AssetCooldownMin)
	fmt.Printf("Anti-churn: %.2f%% | correlation threshold: %.2f | notional cap: $%.2f\n",
		co.AntiChurnPct*100, co.CorrelationThreshold, co.MaxNotionalPerTrade)
	fmt.Printf("Circuit breaker: %d losses -> %dm | daily limit: %d losses -> %dm\n",
		co.MaxConsecutiveLosses, co.CircuitBreakerMin, co.MaxDailyLosses, co.DailyLimitMin)
	fmt.Printf("Management: breakeven %.2f%%, partial %.2f%% (%.0f%%), trailing %.2f%% at %.2f%% distance\n",
		m.BreakevenPct, m.PartialPct, m.PartialFraction*100, m.TrailingPct, m.TrailDistancePct)
	fmt.Printf("Score floor: %.1f (hard %.1f, adaptive %v)\n", sc.MinScore, sc.HardFloor, sc.Adaptive)
}

func editCoordinator(reader *bufio.Reader, cfg *config.Config) {
	co := &cfg.Coordinator
	fmt.Println("\n--- Edit Sizing / Quotas ---")
	co.AccountSize = promptFloat(reader, "Account size (USD)", co.AccountSize)
	co.RiskPerTrade = promptPercent(reader, "Risk per trade (%)", co.RiskPerTrade)
	co.MaxNotionalPerTrade = promptFloat(reader, "Max notional per trade (USD, 0 = none)", co.MaxNotionalPerTrade)
	co.MaxDailyPerAsset = promptInt(reader, "Max signals per asset per day", co.MaxDailyPerAsset)
	co.MaxHourlyPerAsset = promptInt(reader, "Max signals per asset per hour", co.MaxHourlyPerAsset)
	co.GlobalCooldownMin = promptInt(reader, "Global cooldown (min)", co.GlobalCooldownMin)
	co.AssetCooldownMin = promptInt(reader, "Asset cooldown (min)", co.AssetCooldownMin)
	co.AntiChurnPct = promptPercent(reader, "Anti-churn band (%)", co.AntiChurnPct)
	co.CorrelationThreshold = promptFloat(reader, "Correlation threshold", co.CorrelationThreshold)
	co.MaxConsecutiveLosses = promptInt(reader, "Consecutive losses before breaker", co.MaxConsecutiveLosses)
	co.MaxDailyLosses = promptInt(reader, "Daily losses before block", co.MaxDailyLosses)
}

func editMonitor(reader *bufio.Reader, cfg *config.Config) {
	m := &cfg.Monitor
	fmt.Println("\n--- Edit Trade Management ---")
	m.BreakevenPct = promptFloat(reader, "Breakeven at profit (%)", m.BreakevenPct)
	m.PartialPct = promptFloat(reader, "Partial close at profit (%)", m.PartialPct)
	m.PartialFraction = promptPercent(reader, "Partial close size (%)", m.PartialFraction)
	m.TrailingPct = promptFloat(reader, "Trailing at profit (%)", m.TrailingPct)
	m.TrailDistancePct = promptFloat(reader, "Trail distance (%)", m.TrailDistancePct)
}

func editScorer(reader *bufio.Reader, cfg *config.Config) {
	sc := &cfg.Scorer
	fmt.Println("\n--- Edit Score Floors ---")
	sc.MinScore = promptFloat(reader, "Minimum score", sc.MinScore)
	sc.HardFloor = promptFloat(reader, "Hard floor", sc.HardFloor)
	sc.Adaptive = promptBool(reader, "Adaptive floor", sc.Adaptive)
}

func editAssets(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Enable / Disable Assets ---")
	for i := range cfg.Assets {
		a := &cfg.Assets[i]
		a.Disabled = !promptBool(reader, a.Name+" enabled", !a.Disabled)
	}
}

func printPerformance(cfg *config.Config) {
	outcomes, err := paper.LoadOutcomes(cfg.Paper.OutcomesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read outcomes: %v\n", err)
		return
	}
	if len(outcomes) == 0 {
		fmt.Println("no recorded outcomes yet")
		return
	}
	tracker := risk.NewTracker()
	for _, o := range outcomes {
		tracker.RecordOutcome(o.SetupKey, o.PnLPercent)
	}
	fmt.Println("\n--- Setup Performance ---")
	for _, key := range tracker.Keys() {
		s := tracker.Stats(key)
		line := fmt.Sprintf("%-40s %3d trades  win %5.1f%%  pf %5.2f  pnl %+7.2f%%",
			key, s.Trades, s.WinRate*100, s.ProfitFactor, s.TotalPnL)
		if reduce, why := tracker.ShouldReduce(key); reduce {
			line += "  [reduce: " + why + "]"
		}
		fmt.Println(line)
	}
}

func launchEngine(reader *bufio.Reader) {
	fmt.Println("Launching signal engine (Ctrl+C to stop)...")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, "go", "run", "./cmd/alphabot", "-config", locateConfig())
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start engine: %v\n", err)
		return
	}

	go func() {
		_ = cmd.Wait()
		cancel()
	}()

	fmt.Print("\nPress ENTER to stop the engine and return to menu...")
	_, _ = reader.ReadString('\n')
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func promptFloat(reader *bufio.Reader, label string, current float64) float64 {
	fmt.Printf("%s [%.4g]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := strconv.ParseFloat(line, 64)
	if err != nil {
		fmt.Printf("invalid number, keeping %.4g\n", current)
		return current
	}
	return val
}

func promptInt(reader *bufio.Reader, label string, current int) int {
	return int(promptFloat(reader, label, float64(current)))
}

func promptPercent(reader *bufio.Reader, label string, current float64) float64 {
	pct := promptFloat(reader, label, current*100)
	return pct / 100
}

func promptBool(reader *bufio.Reader, label string, current bool) bool {
	fmt.Printf("%s [%v] (y/n): ", label, current)
	line, _ := reader.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes", "true":
		return true
	case "n", "no", "false":
		return false
	default:
		return current
	}
}

func loadConfig() (*config.Config, error) {
	return config.Load(locateConfig())
}

// saveConfig refuses to write a config the engine would reject.
func saveConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return config.Save(locateConfig(), cfg)
}

func locateConfig() string {
	return filepath.Clean(*configPath)
}
