package config

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	App      AppConfig
	Matching MatchingConfig
	GL       GLConfig
	Audit    AuditConfig
}

type ServerConfig struct {
	Port string
}

type AppConfig struct {
	LogLevel        string
	UploadDir       string
	OutputDir       string
	MaxUploadBytes  int64
	RateLimitWindow time.Duration
	RateLimitMax    int
}

// MatchingConfig carries the business tolerances of the matching engine.
// The cut-off rule is configuration, not code: CutOffTime is the "HH:MM"
// wall-clock boundary after which an NPCI leg is treated as hanging.
type MatchingConfig struct {
	AmountTolerance               decimal.Decimal
	DateToleranceDays             int
	PartialMatchDateToleranceDays int
	HangingWaitCycles             int
	SettlementThreshold           decimal.Decimal
	CutOffTime                    string
	CutOffWindowMinutes           int
}

// GLAccount identifies one general ledger account.
type GLAccount struct {
	Code string
	Name string
}

// GLConfig maps the settlement engine's account roles to GL accounts.
type GLConfig struct {
	BankAccount          GLAccount
	SuspenseAccount      GLAccount
	SettlementPayable    GLAccount
	SettlementReceivable GLAccount
	RemitterAccount      GLAccount
	BeneficiaryAccount   GLAccount
	NPCISettlement       GLAccount
}

// AuditConfig selects the audit sink. The file-backed trail is always on;
// PostgresDSN, when set, mirrors events to an audit_events table.
type AuditConfig struct {
	PostgresDSN string
}

// Load reads configuration from environment variables (UPIRECON_ prefix)
// over built-in defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("UPIRECON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", "8080")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.upload_dir", "data/uploads")
	v.SetDefault("app.output_dir", "data/output")
	v.SetDefault("app.max_upload_bytes", 100*1024*1024)
	v.SetDefault("app.rate_limit_window_seconds", 60)
	v.SetDefault("app.rate_limit_max", 10)

	v.SetDefault("matching.amount_tolerance", "0.01")
	v.SetDefault("matching.date_tolerance_days", 1)
	v.SetDefault("matching.partial_match_date_tolerance_days", 2)
	v.SetDefault("matching.hanging_wait_cycles", 2)
	v.SetDefault("matching.settlement_threshold", "1000")
	v.SetDefault("matching.cut_off_time", "22:30")
	v.SetDefault("matching.cut_off_window_minutes", 90)

	v.SetDefault("audit.postgres_dsn", "")

	amountTol, err := decimal.NewFromString(v.GetString("matching.amount_tolerance"))
	if err != nil {
		return nil, err
	}
	settlementThreshold, err := decimal.NewFromString(v.GetString("matching.settlement_threshold"))
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: ServerConfig{
			Port: v.GetString("server.port"),
		},
		App: AppConfig{
			LogLevel:        v.GetString("app.log_level"),
			UploadDir:       v.GetString("app.upload_dir"),
			OutputDir:       v.GetString("app.output_dir"),
			MaxUploadBytes:  v.GetInt64("app.max_upload_bytes"),
			RateLimitWindow: time.Duration(v.GetInt("app.rate_limit_window_seconds")) * time.Second,
			RateLimitMax:    v.GetInt("app.rate_limit_max"),
		},
		Matching: MatchingConfig{
			AmountTolerance:               amountTol,
			DateToleranceDays:             v.GetInt("matching.date_tolerance_days"),
			PartialMatchDateToleranceDays: v.GetInt("matching.partial_match_date_tolerance_days"),
			HangingWaitCycles:             v.GetInt("matching.hanging_wait_cycles"),
			SettlementThreshold:           settlementThreshold,
			CutOffTime:                    v.GetString("matching.cut_off_time"),
			CutOffWindowMinutes:           v.GetInt("matching.cut_off_window_minutes"),
		},
		GL:    defaultGLConfig(),
		Audit: AuditConfig{PostgresDSN: v.GetString("audit.postgres_dsn")},
	}, nil
}

func defaultGLConfig() GLConfig {
	return GLConfig{
		BankAccount:          GLAccount{Code: "100200", Name: "Bank Account"},
		SuspenseAccount:      GLAccount{Code: "200100", Name: "Suspense Account"},
		SettlementPayable:    GLAccount{Code: "200200", Name: "Settlement Payable"},
		SettlementReceivable: GLAccount{Code: "100300", Name: "Settlement Receivable"},
		RemitterAccount:      GLAccount{Code: "300100", Name: "Remitter Accounts"},
		BeneficiaryAccount:   GLAccount{Code: "300200", Name: "Beneficiary Accounts"},
		NPCISettlement:       GLAccount{Code: "200300", Name: "NPCI Settlement"},
	}
}
