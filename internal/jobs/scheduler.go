package jobs

import (
	"fmt"
	"log"

	"ClimFinLedger/internal/logger"
	"ClimFinLedger/internal/serviceiface"

	"github.com/jackc/pgx/v5/pgxpool"
)

type CronService struct {
	config map[string]interface{}
	db     *pgxpool.Pool
}

func NewCronService(cfg map[string]interface{}, db *pgxpool.Pool) serviceiface.Service {
	return &CronService{
		config: cfg,
		db:     db,
	}
}

func (s *CronService) Name() string {
	return "cron"
}

func (s *CronService) Start() error {
	log.Println("Starting cron service...")

	refreshConfig := NewDefaultConfig()

	// Override defaults from services.yaml if provided
	if s.config != nil {
		if schedule, ok := s.config["refresh_schedule"].(string); ok && schedule != "" {
			refreshConfig.RefreshSchedule = schedule
		}
		if crsURL, ok := s.config["crs_bulk_url"].(string); ok && crsURL != "" {
			refreshConfig.CRSBulkURL = crsURL
		}
		if crdfURL, ok := s.config["crdf_bulk_url"].(string); ok && crdfURL != "" {
			refreshConfig.CRDFBulkURL = crdfURL
		}
		if batchSize, ok := s.config["batch_size"].(int); ok && batchSize > 0 {
			refreshConfig.BatchSize = batchSize
		}
	}

	err := RunSourceRefresh(refreshConfig, s.db)
	if err != nil {
		return fmt.Errorf("failed to start source refresh job: %v", err)
	}

	logger.Audit("Cron service started with OECD source refresh")

	return nil
}

func (s *CronService) Stop() error {
	// The cron jobs are managed internally by RunSourceRefresh
	log.Println("Cron service stopped.")
	return nil
}
