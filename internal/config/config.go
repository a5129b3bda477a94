package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultEnvFiles are loaded (when present) before the environment is parsed.
var DefaultEnvFiles = []string{".env", ".env.local"}

// LayoutOptions locate the header rows of the division school list workbook.
// Indices are 0-based and refer to the sanitized grid.
type LayoutOptions struct {
	HeaderRowIndex    int `env:"HEADER_ROW_INDEX" envDefault:"4"`
	SubHeaderRowIndex int `env:"SUB_HEADER_ROW_INDEX" envDefault:"5"`
	DataStartIndex    int `env:"DATA_START_INDEX" envDefault:"6"`
}

// ColumnOptions name the columns division and district matching read.
// Header names are matched ignoring case.
type ColumnOptions struct {
	SchoolID string `env:"SCHOOL_ID_COLUMN" envDefault:"SCHOOL ID"`
	Name     string `env:"SCHOOL_NAME_COLUMN" envDefault:"SCHOOL"`
	Division string `env:"DIVISION_COLUMN" envDefault:"DIVISION"`
	District string `env:"DISTRICT_COLUMN" envDefault:"DISTRICT"`
}

// DatabaseOptions configure the local store (session, task history, jobs)
type DatabaseOptions struct {
	URL             string        `env:"DATABASE_URL" envDefault:"sqlite://./dcpinventory.db"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
}

// APIOptions configure the DCP backend client
type APIOptions struct {
	BaseURL    string        `env:"DCP_API_URL" envDefault:"http://localhost:8000"`
	Timeout    time.Duration `env:"HTTP_TIMEOUT" envDefault:"60s"`
	RetryCount int           `env:"HTTP_RETRY_COUNT" envDefault:"3"`
}

// Configuration is the full application configuration
type Configuration struct {
	API      APIOptions
	Database DatabaseOptions
	Layout   LayoutOptions
	Columns  ColumnOptions

	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	EncryptionKey string `env:"ENCRYPTION_KEY"`
	FrontendDir   string `env:"FRONTEND_DIR" envDefault:"frontend/dist"`

	// Values above 1 switch the contact update to a bounded worker pool.
	ContactUpdateWorkers int `env:"CONTACT_UPDATE_WORKERS" envDefault:"1"`
}

// LoadEnv loads whichever of the given env files exist and reports how many were loaded
func LoadEnv(envFiles []string) (int, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Load reads env files and parses the environment into a Configuration
func Load(envFiles ...string) (*Configuration, error) {
	if len(envFiles) == 0 {
		envFiles = DefaultEnvFiles
	}
	n, err := LoadEnv(envFiles)
	if err != nil {
		return nil, fmt.Errorf("failed to load env files: %w", err)
	}
	if n == 0 {
		log.Println("No .env file found, using environment variables")
	}

	c := &Configuration{}
	if err := env.Parse(c); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the configuration for inconsistent values
func (c *Configuration) Validate() error {
	l := c.Layout
	if l.HeaderRowIndex < 0 || l.SubHeaderRowIndex < 0 || l.DataStartIndex < 0 {
		return fmt.Errorf("layout indices must be non-negative, got %d/%d/%d",
			l.HeaderRowIndex, l.SubHeaderRowIndex, l.DataStartIndex)
	}
	if l.DataStartIndex <= l.HeaderRowIndex || l.DataStartIndex <= l.SubHeaderRowIndex {
		return fmt.Errorf("DATA_START_INDEX (%d) must come after the header rows", l.DataStartIndex)
	}
	if c.ContactUpdateWorkers < 1 {
		return fmt.Errorf("CONTACT_UPDATE_WORKERS must be at least 1, got %d", c.ContactUpdateWorkers)
	}
	if c.Columns.SchoolID == "" || c.Columns.Name == "" || c.Columns.Division == "" || c.Columns.District == "" {
		return fmt.Errorf("column names must not be empty")
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("DCP_API_URL is required")
	}
	return nil
}
