// Package setup is the interactive terminal wizard that writes a config file.
package setup

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/tradeit/config"
	"github.com/vadiminshakov/tradeit/internal/domain"
	"github.com/vadiminshakov/tradeit/internal/strategy"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// Answers collected by the wizard.
type Answers struct {
	Symbols          string
	Timeframe        string
	Strategy         string
	RiskPerTrade     string
	MaxPositions     string
	MaxExposure      string
	MaxDailyLoss     string
	Mode             string
	Testnet          bool
	PollInterval     string
	InitialBalance   string
	TelegramChatID   string
	DailyReportTime  string
	WeeklyReportTime string
}

// DefaultAnswers pre-fills the wizard with the built-in settings.
func DefaultAnswers() Answers {
	d := config.Defaults()
	return Answers{
		Symbols:          strings.Join(d.Symbols, ","),
		Timeframe:        d.Timeframe.String(),
		Strategy:         d.Strategy,
		RiskPerTrade:     d.RiskPerTrade.String(),
		MaxPositions:     strconv.Itoa(d.MaxConcurrentPositions),
		MaxExposure:      d.MaxTotalExposure.String(),
		MaxDailyLoss:     d.MaxDailyLoss.String(),
		Mode:             string(domain.ModePaper),
		Testnet:          d.BinanceTestnet,
		PollInterval:     d.PollInterval.String(),
		InitialBalance:   d.InitialBalance["USDT"].String(),
		DailyReportTime:  d.DailyReportTime,
		WeeklyReportTime: d.WeeklyReportTime,
	}
}

func screen(step string) {
	fmt.Print("\033[H\033[2J") // clear screen
	fmt.Println(headerStyle.Render("TRADEIT CONFIG WIZARD"))
	fmt.Println(stepStyle.Render(step))
}

// RunTUI launches the wizard and writes the resulting YAML to out.
func RunTUI(out string) error {
	a := DefaultAnswers()
	var confirm bool

	screen("STEP 1: MARKETS")
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Secrets stay in the environment: BINANCE_API_KEY, BINANCE_API_SECRET, TELEGRAM_BOT_TOKEN.\n"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Symbols").
				Description("Comma separated BASE/QUOTE pairs (e.g. BTC/USDT,ETH/USDT)").
				Value(&a.Symbols).
				Validate(validateSymbols),
			huh.NewInput().
				Title("Timeframe").
				Description("Candle interval (e.g. 15m, 1h, 4h)").
				Value(&a.Timeframe).
				Validate(func(s string) error {
					_, err := domain.ParseTimeframe(s)
					return err
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	screen("STEP 2: STRATEGY")
	options := make([]huh.Option[string], 0, len(strategy.Names()))
	for _, name := range strategy.Names() {
		options = append(options, huh.NewOption(name, name))
	}
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Choose your trading strategy").
				Options(options...).
				Value(&a.Strategy),
		),
	).Run()
	if err != nil {
		return err
	}

	screen("STEP 3: RISK")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Risk per trade").Description("Fraction of equity lost at the stop (e.g. 0.01)").
				Value(&a.RiskPerTrade).Validate(validateFraction),
			huh.NewInput().Title("Max concurrent positions").
				Value(&a.MaxPositions).Validate(validatePositiveInt),
			huh.NewInput().Title("Max total exposure").Description("Open market value as a fraction of equity (e.g. 0.8)").
				Value(&a.MaxExposure).Validate(validateFraction),
			huh.NewInput().Title("Max daily loss").Description("Entries pause below this intraday drop (e.g. 0.03)").
				Value(&a.MaxDailyLoss).Validate(validateFraction),
		),
	).Run()
	if err != nil {
		return err
	}

	screen("STEP 4: EXECUTION")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Execution mode").
				Options(
					huh.NewOption("Paper (simulated wallet)", string(domain.ModePaper)),
					huh.NewOption("Live (Binance spot)", string(domain.ModeLive)),
				).
				Value(&a.Mode),
			huh.NewConfirm().Title("Use Binance testnet?").Value(&a.Testnet),
			huh.NewInput().Title("Paper starting balance (USDT)").
				Value(&a.InitialBalance).Validate(validatePositiveDecimal),
			huh.NewInput().Title("Poll interval").Description("Duration string, at least 10s (e.g. 60s)").
				Value(&a.PollInterval).
				Validate(func(s string) error {
					_, err := time.ParseDuration(s)
					return err
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	screen("STEP 5: REPORTS")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Telegram chat id").Description("Leave empty to log notifications only").
				Value(&a.TelegramChatID),
			huh.NewInput().Title("Daily report time").Description("HH:MM").
				Value(&a.DailyReportTime).Validate(validateClock),
			huh.NewInput().Title("Weekly report time (Sunday)").Description("HH:MM").
				Value(&a.WeeklyReportTime).Validate(validateClock),
		),
	).Run()
	if err != nil {
		return err
	}

	screen("FINAL CONFIRMATION")
	summary := fmt.Sprintf(
		"Symbols: %s\nTimeframe: %s\nStrategy: %s\nMode: %s (testnet %t)\nRisk: %s per trade, %s positions, %s exposure, %s daily loss\n",
		a.Symbols, a.Timeframe, a.Strategy, a.Mode, a.Testnet, a.RiskPerTrade, a.MaxPositions, a.MaxExposure, a.MaxDailyLoss,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return errors.New("setup cancelled by user")
	}

	fc, err := a.FileConfig()
	if err != nil {
		return err
	}
	if err := config.Save(out, fc); err != nil {
		return err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s", out)))
	return nil
}

// FileConfig converts answers into the YAML layout.
func (a Answers) FileConfig() (config.FileConfig, error) {
	maxPositions, err := strconv.Atoi(strings.TrimSpace(a.MaxPositions))
	if err != nil {
		return config.FileConfig{}, errors.Wrap(err, "max concurrent positions")
	}
	poll, err := time.ParseDuration(strings.TrimSpace(a.PollInterval))
	if err != nil {
		return config.FileConfig{}, errors.Wrap(err, "poll interval")
	}
	testnet := a.Testnet

	return config.FileConfig{
		Symbols:                splitSymbols(a.Symbols),
		Timeframe:              strings.TrimSpace(a.Timeframe),
		Strategy:               a.Strategy,
		RiskPerTrade:           strings.TrimSpace(a.RiskPerTrade),
		MaxConcurrentPositions: maxPositions,
		MaxTotalExposure:       strings.TrimSpace(a.MaxExposure),
		MaxDailyLoss:           strings.TrimSpace(a.MaxDailyLoss),
		PollInterval:           poll,
		InitialBalance:         map[string]string{"USDT": strings.TrimSpace(a.InitialBalance)},
		DailyReportTime:        a.DailyReportTime,
		WeeklyReportTime:       a.WeeklyReportTime,
		Mode:                   a.Mode,
		BinanceTestnet:         &testnet,
		TelegramChatID:         strings.TrimSpace(a.TelegramChatID),
	}, nil
}

func splitSymbols(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func validateSymbols(s string) error {
	symbols := splitSymbols(s)
	if len(symbols) == 0 {
		return errors.New("at least one symbol is required")
	}
	for _, sym := range symbols {
		if _, err := domain.ParsePair(sym); err != nil {
			return errors.New("invalid format: must be BASE/QUOTE (e.g. BTC/USDT)")
		}
	}
	return nil
}

func validateFraction(s string) error {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return errors.New("must be a valid number")
	}
	if !d.IsPositive() || d.GreaterThan(decimal.NewFromInt(1)) {
		return errors.New("must be in (0, 1]")
	}
	return nil
}

func validatePositiveDecimal(s string) error {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || !d.IsPositive() {
		return errors.New("must be a positive number")
	}
	return nil
}

func validatePositiveInt(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return errors.New("must be a positive integer")
	}
	return nil
}

func validateClock(s string) error {
	_, err := config.ParseClock(s)
	return err
}
