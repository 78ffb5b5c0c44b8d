// Package setup runs the interactive configuration wizard.
package setup

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/riskdesk/config"
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
	Provider        string
	PaperFile       string
	Quote           string
	MinValue        string
	Testnet         bool
	AccountAddress  string
	PollInterval    string
	TradeTTL        string
	MaxDailyLossPct string
	MaxPositionPct  string
	MaxPositions    string
	HTTPAddr        string
}

// DefaultAnswers pre-fills the form.
func DefaultAnswers() Answers {
	return Answers{
		Provider:        config.ProviderPaper,
		PaperFile:       config.DefaultPaperFile,
		Quote:           config.DefaultQuote,
		MinValue:        config.DefaultMinValue,
		PollInterval:    config.DefaultPollInterval.String(),
		TradeTTL:        config.DefaultTradeTTL.String(),
		MaxDailyLossPct: "0.02",
		MaxPositionPct:  "0.10",
		MaxPositions:    "10",
		HTTPAddr:        config.DefaultHTTPAddr,
	}
}

// ConfigTmp converts validated answers into the raw config written to disk.
func (a Answers) ConfigTmp() (config.ConfigTmp, error) {
	poll, err := time.ParseDuration(a.PollInterval)
	if err != nil {
		return config.ConfigTmp{}, errors.Wrap(err, "poll interval")
	}
	ttl, err := time.ParseDuration(a.TradeTTL)
	if err != nil {
		return config.ConfigTmp{}, errors.Wrap(err, "trade ttl")
	}
	maxPositions, err := strconv.Atoi(strings.TrimSpace(a.MaxPositions))
	if err != nil {
		return config.ConfigTmp{}, errors.Wrap(err, "max positions")
	}

	tmp := config.ConfigTmp{
		Provider: config.ProviderTmp{
			Type:     a.Provider,
			Quote:    a.Quote,
			MinValue: a.MinValue,
		},
		PollInterval: poll,
		TradeTTL:     ttl,
		Risk: config.RiskTmp{
			MaxDailyLossPct: a.MaxDailyLossPct,
			MaxPositionPct:  a.MaxPositionPct,
			MaxPositions:    maxPositions,
		},
		HTTP: config.HTTPTmp{Addr: a.HTTPAddr},
	}

	switch a.Provider {
	case config.ProviderPaper:
		tmp.Provider.PaperFile = a.PaperFile
	case config.ProviderBinance:
		tmp.Provider.Testnet = a.Testnet
	case config.ProviderHyperliquid:
		tmp.Provider.AccountAddress = a.AccountAddress
	}

	return tmp, nil
}

func clearScreen(step string) {
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("RISKDESK CONFIG WIZARD"))
	fmt.Println(stepStyle.Render(step))
}

// RunTUI launches the terminal configuration wizard and writes the result to filename.
func RunTUI(filename string) error {
	if filename == "" {
		filename = "riskdesk.yaml"
	}
	a := DefaultAnswers()
	var confirm bool

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("RISKDESK CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Risk limits and trade approvals in a few steps.\n"))

	// provider
	fmt.Println(stepStyle.Render("STEP 1: ACCOUNT SOURCE"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where should account snapshots come from?").
				Options(
					huh.NewOption("Paper account file", config.ProviderPaper),
					huh.NewOption("Binance spot", config.ProviderBinance),
					huh.NewOption("Bybit unified wallet", config.ProviderBybit),
					huh.NewOption("Hyperliquid perps", config.ProviderHyperliquid),
				).
				Value(&a.Provider),
		),
	).Run()
	if err != nil {
		return err
	}

	clearScreen("STEP 2: PROVIDER SETTINGS")
	var fields []huh.Field
	switch a.Provider {
	case config.ProviderPaper:
		fields = append(fields, huh.NewInput().
			Title("Paper account file").
			Description("YAML file with account and positions").
			Value(&a.PaperFile).
			Validate(notEmpty("paper file")))
	case config.ProviderBinance:
		fields = append(fields,
			huh.NewInput().
				Title("Quote asset").
				Value(&a.Quote).
				Validate(notEmpty("quote asset")),
			huh.NewConfirm().
				Title("Use Binance testnet?").
				Value(&a.Testnet),
		)
	case config.ProviderHyperliquid:
		fields = append(fields, huh.NewInput().
			Title("Account address").
			Description("Leave empty to derive it from HYPERLIQUID_PRIVATE_KEY").
			Value(&a.AccountAddress))
	}
	if a.Provider != config.ProviderPaper {
		fields = append(fields, huh.NewInput().
			Title("Minimum position value").
			Description("Holdings worth less than this are ignored").
			Value(&a.MinValue).
			Validate(validateDecimal(decimal.Zero, decimal.Decimal{})))
	}
	if len(fields) > 0 {
		if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
			return err
		}
	}

	// timing
	clearScreen("STEP 3: TIMING")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Poll Interval").
				Description("How often to refresh the account (e.g. 30s, 1m)").
				Value(&a.PollInterval).
				Validate(validateDuration),
			huh.NewInput().
				Title("Trade TTL").
				Description("How long a proposed trade waits for a decision (e.g. 15m)").
				Value(&a.TradeTTL).
				Validate(validateDuration),
		),
	).Run()
	if err != nil {
		return err
	}

	// limits
	clearScreen("STEP 4: RISK LIMITS")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Max daily loss").
				Description("Fraction of portfolio value (e.g. 0.02 for 2%)").
				Value(&a.MaxDailyLossPct).
				Validate(validateDecimal(decimal.Zero, decimal.NewFromInt(1))),
			huh.NewInput().
				Title("Max position size").
				Description("Fraction of portfolio value (e.g. 0.10 for 10%)").
				Value(&a.MaxPositionPct).
				Validate(validateDecimal(decimal.Zero, decimal.NewFromInt(1))),
			huh.NewInput().
				Title("Max open positions").
				Value(&a.MaxPositions).
				Validate(validatePositiveInt),
			huh.NewInput().
				Title("HTTP listen address").
				Value(&a.HTTPAddr).
				Validate(notEmpty("listen address")),
		),
	).Run()
	if err != nil {
		return err
	}

	// confirmation
	clearScreen("FINAL CONFIRMATION")
	summary := fmt.Sprintf(
		"Provider: %s\nPoll: %s\nTrade TTL: %s\nMax daily loss: %s\nMax position: %s\nMax positions: %s\nHTTP: %s\n",
		a.Provider, a.PollInterval, a.TradeTTL, a.MaxDailyLossPct, a.MaxPositionPct, a.MaxPositions, a.HTTPAddr,
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

	if err := Write(filename, a); err != nil {
		return err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s", filename)))
	if hint := credentialsHint(a.Provider); hint != "" {
		fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render(hint))
	}
	return nil
}

// Write renders answers as YAML into filename.
func Write(filename string, a Answers) error {
	tmp, err := a.ConfigTmp()
	if err != nil {
		return err
	}
	data, err := tmp.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to save config file")
	}
	return nil
}

func credentialsHint(provider string) string {
	switch provider {
	case config.ProviderBinance:
		return "Set BINANCE_API_KEY and BINANCE_API_SECRET (environment or .env)."
	case config.ProviderBybit:
		return "Set BYBIT_API_KEY and BYBIT_API_SECRET (environment or .env)."
	case config.ProviderHyperliquid:
		return "Set HYPERLIQUID_PRIVATE_KEY (environment or .env)."
	}
	return ""
}

func notEmpty(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s cannot be empty", name)
		}
		return nil
	}
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validatePositiveInt(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("must be a whole number")
	}
	if n < 1 {
		return fmt.Errorf("must be at least 1")
	}
	return nil
}

// validateDecimal accepts values >= lo and, when hi is non-zero, <= hi.
func validateDecimal(lo, hi decimal.Decimal) func(string) error {
	return func(s string) error {
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("must be a valid number")
		}
		if d.LessThan(lo) {
			return fmt.Errorf("must be at least %s", lo)
		}
		if !hi.IsZero() && d.GreaterThan(hi) {
			return fmt.Errorf("must be at most %s", hi)
		}
		return nil
	}
}
