package jobs

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"ClimFinLedger/internal/config"
	"ClimFinLedger/internal/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"github.com/xuri/excelize/v2"
)

type Config struct {
	CRSBulkURL      string
	CRDFBulkURL     string
	RefreshSchedule string
	TimeZone        string
	BatchSize       int
	MaxRetries      int
	RetryDelay      time.Duration
}

// CircuitBreakerState represents the state of circuit breaker
type CircuitBreakerState int32

const (
	StateClosed CircuitBreakerState = iota
	StateOpen
	StateHalfOpen
)

// CircuitBreaker implements circuit breaker pattern
type CircuitBreaker struct {
	maxFailures  int32
	resetTimeout time.Duration
	failures     int32
	lastFailTime time.Time
	state        CircuitBreakerState
	mutex        sync.RWMutex
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(maxFailures int32, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
	}
}

// Execute runs the function with circuit breaker protection
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mutex.RLock()
	state := cb.state
	cb.mutex.RUnlock()

	if state == StateOpen {
		if time.Since(cb.lastFailTime) > cb.resetTimeout {
			cb.mutex.Lock()
			cb.state = StateHalfOpen
			cb.mutex.Unlock()
		} else {
			return fmt.Errorf("circuit breaker is open")
		}
	}

	err := fn()

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if err != nil {
		cb.failures++
		cb.lastFailTime = time.Now()
		if cb.failures >= cb.maxFailures {
			cb.state = StateOpen
		}
		return err
	}

	// Success - reset circuit breaker
	cb.failures = 0
	cb.state = StateClosed
	return nil
}

// RetryWithBackoff executes a function with exponential backoff retry logic
func RetryWithBackoff(maxRetries int, initialDelay time.Duration, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff with jitter
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * initialDelay
			logger.Audit(fmt.Sprintf("Retrying after %v (attempt %d/%d)", delay, attempt, maxRetries))
			time.Sleep(delay)
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		logger.Audit(fmt.Sprintf("Attempt %d failed: %v", attempt+1, lastErr))
	}

	return fmt.Errorf("failed after %d attempts: %v", maxRetries+1, lastErr)
}

// NewDefaultConfig creates a new Config with default values from config package
func NewDefaultConfig() *Config {
	return &Config{
		CRSBulkURL:      config.DefaultCRSBulkURL,
		CRDFBulkURL:     config.DefaultCRDFBulkURL,
		RefreshSchedule: config.DefaultRefreshSchedule,
		TimeZone:        config.DefaultTimeZone,
		BatchSize:       config.BatchSize,
		MaxRetries:      3,
		RetryDelay:      2 * time.Second,
	}
}

// RunSourceRefresh schedules the periodic download of the OECD CRS and CRDF
// bulk files into the staging tables.
func RunSourceRefresh(cfg *Config, db *pgxpool.Pool) error {
	if cfg.CRSBulkURL == "" {
		cfg.CRSBulkURL = config.DefaultCRSBulkURL
	}
	if cfg.CRDFBulkURL == "" {
		cfg.CRDFBulkURL = config.DefaultCRDFBulkURL
	}
	if cfg.RefreshSchedule == "" {
		cfg.RefreshSchedule = config.DefaultRefreshSchedule
	}
	if cfg.TimeZone == "" {
		cfg.TimeZone = config.DefaultTimeZone
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = config.BatchSize
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}

	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return fmt.Errorf("invalid timezone for source refresh: %v", err)
	}

	// Separate breakers so a flaky OECD endpoint does not trip DB writes
	httpCircuitBreaker := NewCircuitBreaker(5, 30*time.Second)
	dbCircuitBreaker := NewCircuitBreaker(3, 60*time.Second)

	c := cron.New(cron.WithLocation(loc))
	_, err = c.AddFunc(cfg.RefreshSchedule, func() {
		logger.Audit(fmt.Sprintf("Running source refresh at %s", time.Now().In(loc)))

		var wg sync.WaitGroup
		var crsErr, crdfErr error

		wg.Add(1)
		go func() {
			defer wg.Done()
			crsErr = RetryWithBackoff(cfg.MaxRetries, cfg.RetryDelay, func() error {
				return refreshCRSWithCircuitBreaker(cfg.CRSBulkURL, db, httpCircuitBreaker, dbCircuitBreaker)
			})

			if crsErr != nil {
				logger.Audit(fmt.Sprintf("CRS bulk refresh failed: %v", crsErr))
			} else {
				logger.Audit("CRS bulk refresh completed at " + time.Now().In(loc).String())
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			crdfErr = RetryWithBackoff(cfg.MaxRetries, cfg.RetryDelay, func() error {
				return refreshCRDFWithCircuitBreaker(cfg.CRDFBulkURL, db, httpCircuitBreaker, dbCircuitBreaker)
			})

			if crdfErr != nil {
				logger.Audit(fmt.Sprintf("CRDF bulk refresh failed: %v", crdfErr))
			} else {
				logger.Audit("CRDF bulk refresh completed at " + time.Now().In(loc).String())
			}
		}()

		wg.Wait()

		if crsErr != nil || crdfErr != nil {
			logger.Audit("Source refresh completed with errors")
		} else {
			logger.Audit("Source refresh completed successfully at " + time.Now().In(loc).String())
		}
	})

	if err != nil {
		return fmt.Errorf("failed to schedule source refresh cron job: %v", err)
	}

	c.Start()
	logger.Audit("Source refresh job scheduled for " + cfg.RefreshSchedule + " (" + cfg.TimeZone + ")")
	return nil
}

func refreshCRSWithCircuitBreaker(url string, db *pgxpool.Pool, httpCB, dbCB *CircuitBreaker) error {
	logger.Audit("Downloading CRS bulk file from: " + url + " ...")

	var records [][]string

	err := httpCB.Execute(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			return fmt.Errorf("error creating request: %v", err)
		}

		client := &http.Client{Timeout: 120 * time.Second}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("error fetching CRS bulk file: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("HTTP error: %d", resp.StatusCode)
		}

		reader := csv.NewReader(resp.Body)
		reader.Comma = '|'
		reader.FieldsPerRecord = -1
		reader.LazyQuotes = true
		records, err = reader.ReadAll()
		if err != nil {
			return fmt.Errorf("error parsing CRS bulk file: %v", err)
		}
		return nil
	})

	if err != nil {
		return err
	}

	logger.Audit(fmt.Sprintf("Downloaded %d CRS rows, staging...", len(records)))
	return dbCB.Execute(func() error {
		return stageCRSRows(records, db)
	})
}

var crsStagingColumns = []string{
	"year", "provider_code", "provider_name", "agency_code", "agency_name",
	"crs_identification_number", "project_number", "project_title",
	"flow_modality", "financial_instrument", "channel_code",
	"usd_commitment", "usd_disbursement", "usd_received",
	"usd_grant_equivalent", "commitment_date",
}

func stageCRSRows(records [][]string, db *pgxpool.Pool) error {
	if len(records) < 2 {
		return fmt.Errorf("CRS bulk file has no data rows")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Second)
	defer cancel()

	_, _ = db.Exec(ctx, "DROP TABLE IF EXISTS temp_crs_staging")

	_, err := db.Exec(ctx, `
		CREATE TEMP TABLE temp_crs_staging (
			year TEXT,
			provider_code TEXT,
			provider_name TEXT,
			agency_code TEXT,
			agency_name TEXT,
			crs_identification_number TEXT,
			project_number TEXT,
			project_title TEXT,
			flow_modality TEXT,
			financial_instrument TEXT,
			channel_code TEXT,
			usd_commitment TEXT,
			usd_disbursement TEXT,
			usd_received TEXT,
			usd_grant_equivalent TEXT,
			commitment_date TEXT,
			file_date DATE DEFAULT CURRENT_DATE
		)`)
	if err != nil {
		return fmt.Errorf("error creating temp CRS table: %v", err)
	}

	idx := headerIndexes(records[0], crsStagingColumns)

	var validRecords [][]interface{}
	for _, rec := range records[1:] {
		row := make([]interface{}, len(crsStagingColumns))
		empty := true
		for i, col := range crsStagingColumns {
			pos, ok := idx[col]
			if !ok || pos >= len(rec) {
				row[i] = ""
				continue
			}
			v := strings.TrimSpace(rec[pos])
			row[i] = v
			if v != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
		validRecords = append(validRecords, row)
	}

	logger.Audit(fmt.Sprintf("Filtered to %d valid CRS rows for bulk insert", len(validRecords)))

	start := time.Now()
	_, err = db.CopyFrom(ctx, pgx.Identifier{"temp_crs_staging"},
		crsStagingColumns, pgx.CopyFromRows(validRecords))
	if err != nil {
		return fmt.Errorf("error bulk copying CRS data: %v", err)
	}
	copyDuration := time.Since(start)
	logger.Audit(fmt.Sprintf("Bulk copy completed in %v", copyDuration))

	start = time.Now()
	result, err := db.Exec(ctx, `
		INSERT INTO climate.crs_transaction_staging
		(year, provider_code, provider_name, agency_code, agency_name,
		crs_identification_number, project_number, project_title,
		flow_modality, financial_instrument, channel_code,
		usd_commitment, usd_disbursement, usd_received,
		usd_grant_equivalent, commitment_date, file_date)
		SELECT year::int,
			   provider_code,
			   provider_name,
			   agency_code,
			   agency_name,
			   crs_identification_number,
			   project_number,
			   project_title,
			   flow_modality,
			   financial_instrument,
			   channel_code,
			   NULLIF(usd_commitment, '')::numeric(18,6),
			   NULLIF(usd_disbursement, '')::numeric(18,6),
			   NULLIF(usd_received, '')::numeric(18,6),
			   NULLIF(usd_grant_equivalent, '')::numeric(18,6),
			   NULLIF(commitment_date, '')::date,
			   file_date
		FROM temp_crs_staging
		WHERE year ~ '^[0-9]+$'
		ON CONFLICT (year, crs_identification_number, project_number) DO UPDATE SET
			provider_code = EXCLUDED.provider_code,
			provider_name = EXCLUDED.provider_name,
			agency_code = EXCLUDED.agency_code,
			agency_name = EXCLUDED.agency_name,
			project_title = EXCLUDED.project_title,
			flow_modality = EXCLUDED.flow_modality,
			financial_instrument = EXCLUDED.financial_instrument,
			channel_code = EXCLUDED.channel_code,
			usd_commitment = EXCLUDED.usd_commitment,
			usd_disbursement = EXCLUDED.usd_disbursement,
			usd_received = EXCLUDED.usd_received,
			usd_grant_equivalent = EXCLUDED.usd_grant_equivalent,
			commitment_date = EXCLUDED.commitment_date,
			file_date = EXCLUDED.file_date`)
	if err != nil {
		return fmt.Errorf("error upserting CRS data: %v", err)
	}

	upsertDuration := time.Since(start)
	logger.Audit(fmt.Sprintf("Bulk upsert completed in %v, %d rows affected", upsertDuration, result.RowsAffected()))
	logger.Audit(fmt.Sprintf("Total CRS staging time: %v", copyDuration+upsertDuration))

	_, err = db.Exec(ctx, "DROP TABLE IF EXISTS temp_crs_staging")
	if err != nil {
		logger.Audit(fmt.Sprintf("Warning: Failed to drop temp CRS table: %v", err))
	}

	return nil
}

var crdfStagingColumns = []string{
	"year", "provider_code", "provider", "agency_code", "extending_agency",
	"crs_id", "project_number", "project_title", "channel_of_delivery_code",
	"channel_of_delivery", "flow_modality",
	"adaptation_related_development_finance_commitment_current",
	"mitigation_related_development_finance_commitment_current",
	"overlap_commitment_current",
	"climate_related_development_finance_commitment_current",
	"share_of_the_underlying_commitment_when_available",
}

func refreshCRDFWithCircuitBreaker(url string, db *pgxpool.Pool, httpCB, dbCB *CircuitBreaker) error {
	logger.Audit("Downloading CRDF bulk file from: " + url + " ...")

	var records [][]string

	err := httpCB.Execute(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			return fmt.Errorf("error creating request: %v", err)
		}

		client := &http.Client{Timeout: 120 * time.Second}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("error fetching CRDF bulk file: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("HTTP error: %d", resp.StatusCode)
		}

		wb, err := excelize.OpenReader(resp.Body)
		if err != nil {
			return fmt.Errorf("error opening CRDF workbook: %v", err)
		}
		defer wb.Close()

		sheets := wb.GetSheetList()
		if len(sheets) == 0 {
			return fmt.Errorf("CRDF workbook has no sheets")
		}
		records, err = wb.GetRows(sheets[0])
		if err != nil {
			return fmt.Errorf("error reading CRDF sheet: %v", err)
		}
		return nil
	})

	if err != nil {
		return err
	}

	logger.Audit(fmt.Sprintf("Downloaded %d CRDF rows, staging...", len(records)))
	return dbCB.Execute(func() error {
		return stageCRDFRows(records, db)
	})
}

func stageCRDFRows(records [][]string, db *pgxpool.Pool) error {
	if len(records) < 2 {
		return fmt.Errorf("CRDF workbook has no data rows")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Second)
	defer cancel()

	_, _ = db.Exec(ctx, "DROP TABLE IF EXISTS temp_crdf_staging")

	_, err := db.Exec(ctx, `
		CREATE TEMP TABLE temp_crdf_staging (
			year TEXT,
			provider_code TEXT,
			provider TEXT,
			agency_code TEXT,
			extending_agency TEXT,
			crs_id TEXT,
			project_number TEXT,
			project_title TEXT,
			channel_of_delivery_code TEXT,
			channel_of_delivery TEXT,
			flow_modality TEXT,
			adaptation_related_development_finance_commitment_current TEXT,
			mitigation_related_development_finance_commitment_current TEXT,
			overlap_commitment_current TEXT,
			climate_related_development_finance_commitment_current TEXT,
			share_of_the_underlying_commitment_when_available TEXT,
			file_date DATE DEFAULT CURRENT_DATE
		)`)
	if err != nil {
		return fmt.Errorf("error creating temp CRDF table: %v", err)
	}

	idx := headerIndexes(records[0], crdfStagingColumns)

	var validRecords [][]interface{}
	for _, rec := range records[1:] {
		row := make([]interface{}, len(crdfStagingColumns))
		empty := true
		for i, col := range crdfStagingColumns {
			pos, ok := idx[col]
			if !ok || pos >= len(rec) {
				row[i] = ""
				continue
			}
			v := strings.TrimSpace(rec[pos])
			row[i] = v
			if v != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
		validRecords = append(validRecords, row)
	}

	logger.Audit(fmt.Sprintf("Filtered to %d valid CRDF rows for bulk insert", len(validRecords)))

	start := time.Now()
	_, err = db.CopyFrom(ctx, pgx.Identifier{"temp_crdf_staging"},
		crdfStagingColumns, pgx.CopyFromRows(validRecords))
	if err != nil {
		return fmt.Errorf("error bulk copying CRDF data: %v", err)
	}
	copyDuration := time.Since(start)
	logger.Audit(fmt.Sprintf("Bulk copy completed in %v", copyDuration))

	start = time.Now()
	result, err := db.Exec(ctx, `
		INSERT INTO climate.crdf_marker_staging
		(year, provider_code, provider, agency_code, extending_agency,
		crs_id, project_number, project_title, channel_of_delivery_code,
		channel_of_delivery, flow_modality,
		adaptation_commitment, mitigation_commitment, overlap_commitment,
		climate_commitment, commitment_climate_share, file_date)
		SELECT year::int,
			   provider_code,
			   provider,
			   agency_code,
			   extending_agency,
			   crs_id,
			   project_number,
			   project_title,
			   channel_of_delivery_code,
			   channel_of_delivery,
			   flow_modality,
			   NULLIF(adaptation_related_development_finance_commitment_current, '')::numeric(18,6),
			   NULLIF(mitigation_related_development_finance_commitment_current, '')::numeric(18,6),
			   NULLIF(overlap_commitment_current, '')::numeric(18,6),
			   NULLIF(climate_related_development_finance_commitment_current, '')::numeric(18,6),
			   NULLIF(share_of_the_underlying_commitment_when_available, '')::numeric(8,6),
			   file_date
		FROM temp_crdf_staging
		WHERE year ~ '^[0-9]+$'
		ON CONFLICT (year, crs_id, project_number, agency_code) DO UPDATE SET
			provider_code = EXCLUDED.provider_code,
			provider = EXCLUDED.provider,
			extending_agency = EXCLUDED.extending_agency,
			project_title = EXCLUDED.project_title,
			channel_of_delivery_code = EXCLUDED.channel_of_delivery_code,
			channel_of_delivery = EXCLUDED.channel_of_delivery,
			flow_modality = EXCLUDED.flow_modality,
			adaptation_commitment = EXCLUDED.adaptation_commitment,
			mitigation_commitment = EXCLUDED.mitigation_commitment,
			overlap_commitment = EXCLUDED.overlap_commitment,
			climate_commitment = EXCLUDED.climate_commitment,
			commitment_climate_share = EXCLUDED.commitment_climate_share,
			file_date = EXCLUDED.file_date`)
	if err != nil {
		return fmt.Errorf("error upserting CRDF data: %v", err)
	}

	upsertDuration := time.Since(start)
	logger.Audit(fmt.Sprintf("Bulk upsert completed in %v, %d rows affected", upsertDuration, result.RowsAffected()))
	logger.Audit(fmt.Sprintf("Total CRDF staging time: %v", copyDuration+upsertDuration))

	_, err = db.Exec(ctx, "DROP TABLE IF EXISTS temp_crdf_staging")
	if err != nil {
		logger.Audit(fmt.Sprintf("Warning: Failed to drop temp CRDF table: %v", err))
	}

	return nil
}

// headerIndexes resolves wanted column names against the header row,
// matching case-insensitively with spaces collapsed to underscores.
func headerIndexes(header []string, wanted []string) map[string]int {
	norm := func(s string) string {
		s = strings.ToLower(strings.TrimSpace(s))
		s = strings.ReplaceAll(s, " ", "_")
		s = strings.ReplaceAll(s, "-", "_")
		return s
	}
	byName := make(map[string]int, len(header))
	for i, h := range header {
		byName[norm(h)] = i
	}
	out := make(map[string]int, len(wanted))
	for _, w := range wanted {
		if i, ok := byName[norm(w)]; ok {
			out[w] = i
		}
	}
	return out
}

// RunSourceRefreshOnce runs the CRS and CRDF downloads once without scheduling.
func RunSourceRefreshOnce(cfg *Config, db *pgxpool.Pool) error {
	if cfg.CRSBulkURL == "" {
		cfg.CRSBulkURL = config.DefaultCRSBulkURL
	}
	if cfg.CRDFBulkURL == "" {
		cfg.CRDFBulkURL = config.DefaultCRDFBulkURL
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = config.BatchSize
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}

	httpCircuitBreaker := NewCircuitBreaker(5, 30*time.Second)
	dbCircuitBreaker := NewCircuitBreaker(3, 60*time.Second)

	if err := RetryWithBackoff(cfg.MaxRetries, cfg.RetryDelay, func() error {
		return refreshCRSWithCircuitBreaker(cfg.CRSBulkURL, db, httpCircuitBreaker, dbCircuitBreaker)
	}); err != nil {
		return err
	}

	return RetryWithBackoff(cfg.MaxRetries, cfg.RetryDelay, func() error {
		return refreshCRDFWithCircuitBreaker(cfg.CRDFBulkURL, db, httpCircuitBreaker, dbCircuitBreaker)
	})
}
