package app

import (
	"fmt"

	"github.com/springboardpro/clearbooks/internal/config"
	"github.com/springboardpro/clearbooks/internal/logger"
	"github.com/springboardpro/clearbooks/pkg/clearbooks"
)

// NewClient builds a ClearBooks client from the loaded configuration.
func NewClient(cfg *config.Config, log logger.Logger) (*clearbooks.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = &logger.NopLogger{}
	}
	client, err := clearbooks.New(clearbooks.Options{
		Credentials:   clearbooks.Credentials{Username: cfg.CBUser, Password: cfg.CBPassword},
		BaseURL:       cfg.CBBaseURL,
		Company:       cfg.CBCompany,
		Timeout:       cfg.HTTPTimeout,
		TimesheetStep: cfg.TimesheetStep,
		Logger:        log,
	})
	if err != nil {
		return nil, fmt.Errorf("init clearbooks client: %w", err)
	}
	return client, nil
}
