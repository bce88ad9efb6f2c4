package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	pkgconfig "github.com/taskinity/example-email/pkg/config"
)

// Templates holds the configurable response wording.
type Templates struct {
	UrgentBody        string `yaml:"urgentBody"`
	AttachmentSubject string `yaml:"attachmentSubject"`
	AttachmentBody    string `yaml:"attachmentBody"`
	RegularBody       string `yaml:"regularBody"`
}

type Config struct {
	SMTPServer   string `yaml:"smtpServer"`
	SMTPPort     int    `yaml:"smtpPort"`
	SMTPUsername string `yaml:"smtpUsername"`
	SMTPPassword string `yaml:"smtpPassword"`
	FromEmail    string `yaml:"fromEmail"`
	ReplyTo      string `yaml:"replyTo"`
	TestEmail    string `yaml:"testEmail"`

	IMAPServer   string `yaml:"imapServer"`
	IMAPPort     int    `yaml:"imapPort"`
	IMAPUsername string `yaml:"imapUsername"`
	IMAPPassword string `yaml:"imapPassword"`
	IMAPFolder   string `yaml:"imapFolder"`

	// smtp: auto|tls|starttls|plain，imap: auto|tls|starttls；auto 按端口判断
	SMTPSecurity string `yaml:"smtpSecurity"`
	IMAPSecurity string `yaml:"imapSecurity"`

	FetchLimit int `yaml:"fetchLimit"`
	// 0 是合法取值（关闭缓存、不等待、不重发），所以用指针区分未设置
	CacheTTLSeconds     *int `yaml:"cacheTtlSeconds"`
	RetryCount          int  `yaml:"retryCount"`
	RetryDelaySeconds   *int `yaml:"retryDelaySeconds"`
	SendRetryCount      *int `yaml:"sendRetryCount"`
	SendTimeoutSeconds  int  `yaml:"sendTimeoutSeconds"`
	FetchTimeoutSeconds int  `yaml:"fetchTimeoutSeconds"`
	Workers             int  `yaml:"workers"`
	DedupTTLSeconds     int  `yaml:"dedupTtlSeconds"`

	ProcessAttachments *bool `yaml:"processAttachments"`
	ProcessRegular     *bool `yaml:"processRegular"`

	Templates Templates `yaml:"templates"`

	Redis   pkgconfig.RedisConfig   `yaml:"redis"`
	DB      pkgconfig.DBConfig      `yaml:"db"`
	MQ      pkgconfig.MQConfig      `yaml:"mq"`
	Metrics pkgconfig.MetricsConfig `yaml:"metrics"`
}

const (
	DefaultSMTPPort          = 587
	DefaultIMAPPort          = 993
	DefaultIMAPFolder        = "INBOX"
	DefaultFetchLimit        = 5
	DefaultCacheTTLSeconds   = 300
	DefaultRetryCount        = 3
	DefaultRetryDelaySeconds = 5
	DefaultSendRetryCount    = 2
	DefaultTimeoutSeconds    = 30
	DefaultWorkers           = 4
	DefaultMetricsJob        = "mailflow"
)

// Load 加载配置：base.yaml → <env>.yaml → secrets.env → .env → 系统环境变量
func Load(env, configDir string) (*Config, error) {
	if err := pkgconfig.LoadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	raw, err := pkgconfig.LoadConfig(env, configDir)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := pkgconfig.Decode(raw, &cfg); err != nil {
		return nil, err
	}

	// 环境变量覆盖（优先级最高）
	overrideFromEnv(&cfg)
	pkgconfig.OverrideDBFromEnv(&cfg.DB)
	pkgconfig.OverrideMQFromEnv(&cfg.MQ)
	pkgconfig.OverrideRedisFromEnv(&cfg.Redis)
	pkgconfig.OverrideMetricsFromEnv(&cfg.Metrics)

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills every unset field. Credentials and addresses chain:
// fromEmail ← smtpUsername, replyTo ← fromEmail, imap creds ← smtp creds.
func (c *Config) ApplyDefaults() {
	if c.SMTPPort == 0 {
		c.SMTPPort = DefaultSMTPPort
	}
	if c.FromEmail == "" {
		c.FromEmail = c.SMTPUsername
	}
	if c.ReplyTo == "" {
		c.ReplyTo = c.FromEmail
	}
	if c.IMAPPort == 0 {
		c.IMAPPort = DefaultIMAPPort
	}
	if c.IMAPUsername == "" {
		c.IMAPUsername = c.SMTPUsername
	}
	if c.IMAPPassword == "" {
		c.IMAPPassword = c.SMTPPassword
	}
	if c.IMAPFolder == "" {
		c.IMAPFolder = DefaultIMAPFolder
	}
	if c.FetchLimit == 0 {
		c.FetchLimit = DefaultFetchLimit
	}
	if c.CacheTTLSeconds == nil {
		c.CacheTTLSeconds = IntPtr(DefaultCacheTTLSeconds)
	}
	if c.RetryCount == 0 {
		c.RetryCount = DefaultRetryCount
	}
	if c.RetryDelaySeconds == nil {
		c.RetryDelaySeconds = IntPtr(DefaultRetryDelaySeconds)
	}
	if c.SendRetryCount == nil {
		c.SendRetryCount = IntPtr(DefaultSendRetryCount)
	}
	if c.SendTimeoutSeconds == 0 {
		c.SendTimeoutSeconds = DefaultTimeoutSeconds
	}
	if c.FetchTimeoutSeconds == 0 {
		c.FetchTimeoutSeconds = DefaultTimeoutSeconds
	}
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
	if c.ProcessAttachments == nil {
		c.ProcessAttachments = boolPtr(true)
	}
	if c.ProcessRegular == nil {
		c.ProcessRegular = boolPtr(true)
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = DefaultMetricsJob
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.IMAPServer == "" {
		result = multierror.Append(result, fmt.Errorf("imapServer is required"))
	}
	if c.SMTPServer == "" {
		result = multierror.Append(result, fmt.Errorf("smtpServer is required"))
	}
	if !validPort(c.SMTPPort) {
		result = multierror.Append(result, fmt.Errorf("smtpPort %d out of range", c.SMTPPort))
	}
	if !validPort(c.IMAPPort) {
		result = multierror.Append(result, fmt.Errorf("imapPort %d out of range", c.IMAPPort))
	}
	if c.FetchLimit < 1 {
		result = multierror.Append(result, fmt.Errorf("fetchLimit must be positive, got %d", c.FetchLimit))
	}
	if intOr(c.CacheTTLSeconds, 0) < 0 {
		result = multierror.Append(result, fmt.Errorf("cacheTtlSeconds must not be negative"))
	}
	if c.RetryCount < 1 {
		result = multierror.Append(result, fmt.Errorf("retryCount must be at least 1, got %d", c.RetryCount))
	}
	if intOr(c.RetryDelaySeconds, 0) < 0 {
		result = multierror.Append(result, fmt.Errorf("retryDelaySeconds must not be negative"))
	}
	if intOr(c.SendRetryCount, 0) < 0 {
		result = multierror.Append(result, fmt.Errorf("sendRetryCount must not be negative"))
	}
	if c.Workers < 1 || c.Workers > 8 {
		result = multierror.Append(result, fmt.Errorf("workers must be between 1 and 8, got %d", c.Workers))
	}
	if !oneOf(c.SMTPSecurity, "", "auto", "tls", "ssl", "starttls", "plain", "none") {
		result = multierror.Append(result, fmt.Errorf("smtpSecurity %q is not one of auto, tls, starttls, plain", c.SMTPSecurity))
	}
	if !oneOf(c.IMAPSecurity, "", "auto", "tls", "ssl", "starttls") {
		result = multierror.Append(result, fmt.Errorf("imapSecurity %q is not one of auto, tls, starttls", c.IMAPSecurity))
	}
	if c.DedupTTLSeconds > 0 && !c.Redis.Enabled() {
		result = multierror.Append(result, fmt.Errorf("dedupTtlSeconds requires redis.addr"))
	}

	return result.ErrorOrNil()
}

// CacheTTL 为 0 表示关闭拉取缓存
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(intOr(c.CacheTTLSeconds, DefaultCacheTTLSeconds)) * time.Second
}

func (c *Config) RetryDelay() time.Duration {
	return time.Duration(intOr(c.RetryDelaySeconds, DefaultRetryDelaySeconds)) * time.Second
}

func (c *Config) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSeconds) * time.Second
}

func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

func (c *Config) DedupTTL() time.Duration {
	return time.Duration(c.DedupTTLSeconds) * time.Second
}

// SendAttempts is the first send plus SendRetryCount retries.
func (c *Config) SendAttempts() int {
	return 1 + intOr(c.SendRetryCount, DefaultSendRetryCount)
}

func (c *Config) AttachmentsEnabled() bool {
	return c.ProcessAttachments == nil || *c.ProcessAttachments
}

func (c *Config) RegularEnabled() bool {
	return c.ProcessRegular == nil || *c.ProcessRegular
}

func overrideFromEnv(cfg *Config) {
	overrideString(&cfg.SMTPServer, "SMTP_SERVER")
	overrideInt(&cfg.SMTPPort, "SMTP_PORT")
	overrideString(&cfg.SMTPUsername, "SMTP_USERNAME")
	overrideString(&cfg.SMTPPassword, "SMTP_PASSWORD")
	overrideString(&cfg.FromEmail, "FROM_EMAIL")
	overrideString(&cfg.ReplyTo, "REPLY_TO_EMAIL")
	overrideString(&cfg.TestEmail, "TEST_EMAIL")

	overrideString(&cfg.IMAPServer, "IMAP_SERVER")
	overrideInt(&cfg.IMAPPort, "IMAP_PORT")
	overrideString(&cfg.IMAPUsername, "IMAP_USERNAME")
	overrideString(&cfg.IMAPPassword, "IMAP_PASSWORD")
	overrideString(&cfg.IMAPFolder, "IMAP_FOLDER")
	overrideString(&cfg.SMTPSecurity, "SMTP_SECURITY")
	overrideString(&cfg.IMAPSecurity, "IMAP_SECURITY")

	overrideInt(&cfg.FetchLimit, "FETCH_LIMIT")
	overrideIntPtr(&cfg.CacheTTLSeconds, "CACHE_TTL_SECONDS")
	overrideInt(&cfg.RetryCount, "RETRY_COUNT")
	overrideIntPtr(&cfg.RetryDelaySeconds, "RETRY_DELAY_SECONDS")
	overrideIntPtr(&cfg.SendRetryCount, "SEND_RETRY_COUNT")
	overrideInt(&cfg.SendTimeoutSeconds, "SEND_TIMEOUT_SECONDS")
	overrideInt(&cfg.FetchTimeoutSeconds, "FETCH_TIMEOUT_SECONDS")
	overrideInt(&cfg.Workers, "WORKERS")
	overrideInt(&cfg.DedupTTLSeconds, "DEDUP_TTL_SECONDS")
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func overrideInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func overrideIntPtr(dst **int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = &n
		}
	}
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func oneOf(v string, allowed ...string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func validPort(p int) bool {
	return p > 0 && p < 65536
}

func boolPtr(b bool) *bool {
	return &b
}

func IntPtr(n int) *int {
	return &n
}
