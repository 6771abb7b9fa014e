package climate

import (
	"database/sql"

	"ClimFinLedger/internal/serviceiface"

	"github.com/jackc/pgx/v5/pgxpool"
)

type ClimateService struct {
	config map[string]interface{}
	db     *sql.DB
	pool   *pgxpool.Pool
}

func NewClimateService(cfg map[string]interface{}, db *sql.DB, pool *pgxpool.Pool) serviceiface.Service {
	return &ClimateService{config: cfg, db: db, pool: pool}
}

func (s *ClimateService) Name() string {
	return "climate"
}

func (s *ClimateService) Start() error {
	port := "6151"
	if s.config != nil {
		if p, ok := s.config["port"].(string); ok && p != "" {
			port = p
		}
	}
	go StartClimateService(s.db, s.pool, port)
	return nil
}

func (s *ClimateService) Stop() error {
	return nil
}
