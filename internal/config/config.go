/**
 * @description
 * This file handles configuration management for the settlement-service.
 * It loads settings from environment variables, providing defaults for the
 * cron schedules and commission rates.
 */
package config

import (
	"github.com/spf13/viper"
)

// Config holds all configuration for the settlement service.
type Config struct {
	ServerPort     string `mapstructure:"SERVER_PORT"`
	DatabaseURL    string `mapstructure:"DATABASE_URL"`
	InternalAPIKey string `mapstructure:"INTERNAL_API_KEY"`
	RabbitMQURL    string `mapstructure:"RABBITMQ_URL"`

	DistributionSchedule   string `mapstructure:"DISTRIBUTION_JOB_SCHEDULE"`
	ReleaseSweepSchedule   string `mapstructure:"RELEASE_SWEEP_SCHEDULE"`
	IntegritySweepSchedule string `mapstructure:"INTEGRITY_SWEEP_SCHEDULE"`
	ReleaseDayOfMonth      int    `mapstructure:"RELEASE_DAY_OF_MONTH"`

	FixedGrossRate     float64 `mapstructure:"FIXED_GROSS_RATE"`
	VariableGrossRate  float64 `mapstructure:"VARIABLE_GROSS_RATE"`
	LockupMemberRate   float64 `mapstructure:"LOCKUP_MEMBER_RATE"`
	FloorRate          float64 `mapstructure:"FLOOR_RATE"`
	MinimumDeposit     float64 `mapstructure:"MINIMUM_DEPOSIT"`
	ExemptionThreshold float64 `mapstructure:"EXEMPTION_THRESHOLD"`

	HouseAccount1 string `mapstructure:"HOUSE_ACCOUNT_1"`
	HouseAccount2 string `mapstructure:"HOUSE_ACCOUNT_2"`
	HouseAccount3 string `mapstructure:"HOUSE_ACCOUNT_3"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	viper.SetDefault("SERVER_PORT", "8090")
	viper.SetDefault("DISTRIBUTION_JOB_SCHEDULE", "0 2 1 * *") // At 02:00 on day-of-month 1.
	viper.SetDefault("RELEASE_SWEEP_SCHEDULE", "0 9 * * *")    // At 09:00 every day; the job itself checks the release day.
	viper.SetDefault("INTEGRITY_SWEEP_SCHEDULE", "0 3 * * *")  // At 03:00 every day.
	viper.SetDefault("RELEASE_DAY_OF_MONTH", 10)
	viper.AutomaticEnv()

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("DISTRIBUTION_JOB_SCHEDULE")
	_ = viper.BindEnv("RELEASE_SWEEP_SCHEDULE")
	_ = viper.BindEnv("INTEGRITY_SWEEP_SCHEDULE")
	_ = viper.BindEnv("RELEASE_DAY_OF_MONTH")
	_ = viper.BindEnv("FIXED_GROSS_RATE")
	_ = viper.BindEnv("VARIABLE_GROSS_RATE")
	_ = viper.BindEnv("LOCKUP_MEMBER_RATE")
	_ = viper.BindEnv("FLOOR_RATE")
	_ = viper.BindEnv("MINIMUM_DEPOSIT")
	_ = viper.BindEnv("EXEMPTION_THRESHOLD")
	_ = viper.BindEnv("HOUSE_ACCOUNT_1")
	_ = viper.BindEnv("HOUSE_ACCOUNT_2")
	_ = viper.BindEnv("HOUSE_ACCOUNT_3")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
