package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	App struct {
		Env            string
		Timezone       string
		RequestTimeout time.Duration `mapstructure:"request_timeout"`
		StateDir       string        `mapstructure:"state_dir"`
	} `mapstructure:"app"`

	HTTP struct {
		Addr      string
		PublicURL string `mapstructure:"public_url"`
	} `mapstructure:"http"`

	Postgres struct {
		DSN string
	} `mapstructure:"postgres"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`

	// Store выбирает удалённое хранилище: postgres (напрямую) или http (REST API бюджета).
	Store struct {
		Driver  string
		APIURL  string        `mapstructure:"api_url"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"store"`

	Browser struct {
		ControlURL          string   `mapstructure:"control_url"`
		Headless            bool     `mapstructure:"headless"`
		CheckoutURLPatterns []string `mapstructure:"checkout_url_patterns"`
		PopupWidth          int      `mapstructure:"popup_width"`
		PopupHeight         int      `mapstructure:"popup_height"`
	} `mapstructure:"browser"`

	Scanner Scanner `mapstructure:"scanner"`

	Spending struct {
		DefaultLimit   float64 `mapstructure:"default_limit"`
		TrackEssential bool    `mapstructure:"track_essential"`
		FallbackFile   string  `mapstructure:"fallback_file"`
	} `mapstructure:"spending"`

	// Telegram уведомления о превышении лимита и бот настроек (commands).
	Telegram struct {
		Token    string
		ChatID   int64 `mapstructure:"chat_id"`
		Commands bool  `mapstructure:"commands"`
	} `mapstructure:"telegram"`
}

type Scanner struct {
	CheckoutSelectors     []string      `mapstructure:"checkout_selectors"`
	TotalSelectors        []string      `mapstructure:"total_selectors"`
	TotalLastMatch        bool          `mapstructure:"total_last_match"`
	ItemNameSelector      string        `mapstructure:"item_name_selector"`
	ItemTitleSelector     string        `mapstructure:"item_title_selector"`
	ItemContainerSelector string        `mapstructure:"item_container_selector"`
	ItemPriceSelector     string        `mapstructure:"item_price_selector"`
	ItemQuantitySelector  string        `mapstructure:"item_quantity_selector"`
	ObserveTimeout        time.Duration `mapstructure:"observe_timeout"`
	SettleDelay           time.Duration `mapstructure:"settle_delay"`
	TriggerDelay          time.Duration `mapstructure:"trigger_delay"`
	EssentialKeywords     []string      `mapstructure:"essential_keywords"`
}

// DefaultLimit лимит по умолчанию в decimal.
func (c Config) DefaultLimit() decimal.Decimal {
	return decimal.NewFromFloat(c.Spending.DefaultLimit)
}

// Location часовой пояс, по которому считаются границы месяца.
func (c Config) Location() (*time.Location, error) {
	if c.App.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.App.Timezone)
}

// APP_POSTGRES_DSN -> postgres.dsn
var envReplacer = strings.NewReplacer(".", "_")

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "prod")
	v.SetDefault("app.timezone", "UTC")
	v.SetDefault("app.request_timeout", 30*time.Second)
	v.SetDefault("app.state_dir", ".spendguard")
	v.SetDefault("http.addr", ":8000")
	v.SetDefault("http.public_url", "http://localhost:8000")
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.timeout", 10*time.Second)
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.checkout_url_patterns", []string{
		`amazon\.com/gp/buy/`,
		`amazon\.com/checkout/`,
	})
	v.SetDefault("browser.popup_width", 400)
	v.SetDefault("browser.popup_height", 350)
	v.SetDefault("scanner.checkout_selectors", []string{
		`#placeYourOrder input[type="submit"]`,
		`#spc-place-order-button input[type="submit"]`,
		`input[name="placeYourOrder1"]`,
		`#bottomSubmitOrderButtonId input[type="submit"]`,
		`[data-testid="placeYourOrderButtonTestId"] button`,
		`input[aria-labelledby="submitOrderButtonId-announce"]`,
	})
	v.SetDefault("scanner.total_selectors", []string{"div.order-summary-line-definition"})
	v.SetDefault("scanner.total_last_match", true)
	v.SetDefault("scanner.item_name_selector", `span[data-csa-c-slot-id="checkout-item-block-itemPrimaryTitle"]`)
	v.SetDefault("scanner.item_title_selector", "span.lineitem-title-text")
	v.SetDefault("scanner.item_container_selector", "div.a-box.lineitem-container")
	v.SetDefault("scanner.item_price_selector", "span.lineitem-price-text")
	v.SetDefault("scanner.item_quantity_selector", "span.quantity-display")
	v.SetDefault("scanner.observe_timeout", 20*time.Second)
	v.SetDefault("scanner.settle_delay", 100*time.Millisecond)
	v.SetDefault("scanner.trigger_delay", 50*time.Millisecond)
	v.SetDefault("spending.default_limit", 500)
	v.SetDefault("spending.track_essential", true)
	v.SetDefault("telegram.commands", true)
}

func Load(path string) (Config, error) {
	// .env необязателен
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(envReplacer)
	v.AutomaticEnv()

	var c Config
	if err := v.ReadInConfig(); err != nil {
		return c, err
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, nil
}
