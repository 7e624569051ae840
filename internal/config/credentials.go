package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"

	"sfyaml/internal/warehouse"
)

// Credentials is the `snowflake` block of the master file. The envconfig tags
// name the SF_* fallback variables used when the block is absent.
type Credentials struct {
	User      string `yaml:"user" envconfig:"USER" required:"true"`
	Password  string `yaml:"password" envconfig:"PASSWORD" required:"true"`
	Account   string `yaml:"account" envconfig:"ACCOUNT" required:"true"`
	Warehouse string `yaml:"warehouse" envconfig:"WAREHOUSE" required:"true"`
	Database  string `yaml:"database" envconfig:"DATABASE" required:"true"`
	Schema    string `yaml:"schema" envconfig:"SCHEMA" required:"true"`
	Role      string `yaml:"role" envconfig:"ROLE"`
}

// EnvPrefix is the prefix of the fallback credential variables (SF_USER, ...).
const EnvPrefix = "SF"

// RequiredCredentialFields lists the credential keys that must be set.
func RequiredCredentialFields() []string {
	return []string{"user", "password", "account", "warehouse", "database", "schema"}
}

// Missing returns the required fields that are empty, in
// RequiredCredentialFields order.
func (c Credentials) Missing() []string {
	values := map[string]string{
		"user":      c.User,
		"password":  c.Password,
		"account":   c.Account,
		"warehouse": c.Warehouse,
		"database":  c.Database,
		"schema":    c.Schema,
	}
	var out []string
	for _, k := range RequiredCredentialFields() {
		if strings.TrimSpace(values[k]) == "" {
			out = append(out, k)
		}
	}
	return out
}

func (c Credentials) toWarehouse() warehouse.Credentials {
	return warehouse.Credentials{
		User:      c.User,
		Password:  c.Password,
		Account:   c.Account,
		Warehouse: c.Warehouse,
		Database:  c.Database,
		Schema:    c.Schema,
		Role:      c.Role,
	}
}

// ResolveCredentials returns the master file's credentials when the block is
// present, otherwise the SF_* environment variables.
//
// Errors:
//   - master block present but incomplete: lists every missing key.
//   - no block and an SF_* variable unset: envconfig's error.
func ResolveCredentials(m *MasterConfig) (warehouse.Credentials, error) {
	if m != nil && m.Snowflake != nil {
		if missing := m.Snowflake.Missing(); len(missing) > 0 {
			return warehouse.Credentials{}, fmt.Errorf("missing required Snowflake credentials in master file: %v", missing)
		}
		return m.Snowflake.toWarehouse(), nil
	}

	var c Credentials
	if err := envconfig.Process(EnvPrefix, &c); err != nil {
		return warehouse.Credentials{}, fmt.Errorf("missing Snowflake credentials: provide them in the master file or as %s_* environment variables: %w", EnvPrefix, err)
	}
	// envconfig accepts set-but-empty variables.
	if missing := c.Missing(); len(missing) > 0 {
		return warehouse.Credentials{}, fmt.Errorf("missing Snowflake credentials: provide them in the master file or as %s_* environment variables: empty %v", EnvPrefix, missing)
	}
	return c.toWarehouse(), nil
}
