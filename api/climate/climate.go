package climate

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"ClimFinLedger/api/constants"
	"ClimFinLedger/api/utils"
	"ClimFinLedger/internal/config"
	"ClimFinLedger/internal/engine"
	"ClimFinLedger/internal/schema"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
)

func StartClimateService(db *sql.DB, pool *pgxpool.Pool, port string) {
	var mapper ChannelMapper
	if db != nil {
		mapper = NewDBChannelMapper(db)
	}
	cd := NewClimateData(nil, mapper)

	router := mux.NewRouter()
	router.Handle("/climate/upload/crs", UploadTransactionsHandler(cd)).Methods("POST")
	router.Handle("/climate/upload/crdf", UploadMarkersHandler(cd)).Methods("POST")
	router.Handle("/climate/contributions", UploadContributionsHandler(cd)).Methods("POST")
	router.Handle("/climate/pipeline/run", RunPipelineHandler(cd, pool)).Methods("POST")
	router.Handle("/climate/ledger", LedgerHandler(cd)).Methods("GET")
	router.Handle("/climate/residuals", ResidualsHandler(cd)).Methods("GET")
	router.Handle("/climate/imputations", ImputationsHandler(cd)).Methods("POST")
	router.Handle("/climate/runs/last", LastRunHandler(cd)).Methods("GET")

	log.Println("Climate Service started on :" + port)
	if err := http.ListenAndServe(":"+port, router); err != nil {
		log.Fatalf("Climate Service failed: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set(constants.ContentTypeText, constants.ContentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[climate] write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func uploadedFile(r *http.Request) (string, []byte, error) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		return "", nil, err
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, err
	}
	defer file.Close()
	data, err := readAll(file)
	if err != nil {
		return "", nil, err
	}
	return header.Filename, data, nil
}

// UploadTransactionsHandler ingests a CRS source file.
func UploadTransactionsHandler(cd *ClimateData) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name, data, err := uploadedFile(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, constants.ErrInvalidRequestBody)
			return
		}
		txs, result, err := ParseTransactions(name, data)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		cd.SetTransactions(txs)
		writeJSON(w, http.StatusOK, result)
	})
}

// UploadMarkersHandler ingests a CRDF source file.
func UploadMarkersHandler(cd *ClimateData) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name, data, err := uploadedFile(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, constants.ErrInvalidRequestBody)
			return
		}
		markers, result, err := ParseMarkers(name, data)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		cd.SetMarkers(markers)
		writeJSON(w, http.StatusOK, result)
	})
}

// UploadContributionsHandler replaces the multilateral core-contribution
// table from a JSON body.
func UploadContributionsHandler(cd *ClimateData) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rows []Contribution
		if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
			writeError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
			return
		}
		cd.SetContributions(rows)
		writeJSON(w, http.StatusOK, map[string]int{"rows": len(rows)})
	})
}

type runRequest struct {
	Methodology string `json:"methodology"`
	Scope       string `json:"scope"` // bilateral | multilateral
	Currency    string `json:"currency"`
	PriceBasis  string `json:"price_basis"`
	Persist     bool   `json:"persist"`
}

// RunPipelineHandler executes one reconciliation run and optionally
// persists the resulting ledger.
func RunPipelineHandler(cd *ClimateData, pool *pgxpool.Pool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req runRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
			return
		}

		methodology := schema.MethodologyHighestMarker
		if req.Methodology != "" {
			var err error
			if methodology, err = schema.ParseMethodology(req.Methodology); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
		}
		preset := engine.BilateralPreset(methodology)
		if req.Scope == "multilateral" {
			preset = engine.MultilateralPreset(methodology)
		}

		currency := schema.CurrencyUSD
		if req.Currency != "" {
			var err error
			if currency, err = schema.ParseCurrency(req.Currency); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
		}
		basis := schema.PriceCurrent
		if req.PriceBasis != "" {
			var err error
			if basis, err = schema.ParsePriceBasis(req.PriceBasis); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
		}

		summary, err := cd.Run(r.Context(), preset, currency, basis)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		if req.Persist {
			n, err := PersistLedger(r.Context(), pool, summary.RunID, cd.Ledger(LedgerFilter{}))
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			summary.PersistedRows = n
		}
		writeJSON(w, http.StatusOK, summary)
	})
}

// LedgerHandler serves the in-memory ledger of the last run.
func LedgerHandler(cd *ClimateData) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		filter := LedgerFilter{}
		q := r.URL.Query()
		if y := q.Get("year"); y != "" {
			year, err := strconv.Atoi(y)
			if err != nil {
				writeError(w, http.StatusBadRequest, "bad year")
				return
			}
			filter.Year = int16(year)
		}
		filter.ProviderCode = q.Get("provider_code")
		if s := q.Get("indicator"); s != "" {
			ind, err := schema.ParseIndicator(s)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			filter.Indicator = &ind
		}
		filter.MatchedOnly = q.Get("matched_only") == "true"

		pagination, err := utils.ExtractPagination(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		rows := cd.Ledger(filter)
		pagination.SetPaginationStats(len(rows))
		start, end := pagination.Bounds(len(rows))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"rows":       rows[start:end],
			"pagination": pagination,
		})
	})
}

// transactionJSON is the wire view of a residual transaction. Money fields
// are pointers so unreported amounts serialize as null; the engine's NaN
// sentinel is not representable in JSON.
type transactionJSON struct {
	Year             int16    `json:"year"`
	ProviderCode     string   `json:"provider_code"`
	AgencyCode       string   `json:"agency_code,omitempty"`
	RecipientCode    string   `json:"recipient_code,omitempty"`
	PurposeCode      string   `json:"purpose_code,omitempty"`
	CRSID            string   `json:"crs_identification_number,omitempty"`
	ProjectID        string   `json:"project_number,omitempty"`
	ProjectTitle     string   `json:"project_title,omitempty"`
	FinanceType      string   `json:"finance_type,omitempty"`
	FlowModality     string   `json:"flow_modality,omitempty"`
	Commitment       *float64 `json:"usd_commitment"`
	Disbursement     *float64 `json:"usd_disbursement"`
	Received         *float64 `json:"usd_received"`
	GrantEquivalent  *float64 `json:"usd_grant_equivalent"`
	NetDisbursement  *float64 `json:"usd_net_disbursement"`
	AdaptationMarker int16    `json:"climate_adaptation"`
	MitigationMarker int16    `json:"climate_mitigation"`
}

func jsonAmount(v float64) *float64 {
	if engine.IsNA(v) {
		return nil
	}
	return &v
}

func transactionsJSON(txs []engine.Transaction) []transactionJSON {
	out := make([]transactionJSON, 0, len(txs))
	for _, t := range txs {
		out = append(out, transactionJSON{
			Year:             t.Year,
			ProviderCode:     t.ProviderCode,
			AgencyCode:       t.AgencyCode,
			RecipientCode:    t.RecipientCode,
			PurposeCode:      t.PurposeCode,
			CRSID:            t.CRSID,
			ProjectID:        t.ProjectID,
			ProjectTitle:     t.ProjectTitle,
			FinanceType:      t.FinanceType,
			FlowModality:     t.FlowModality,
			Commitment:       jsonAmount(t.USDCommitment),
			Disbursement:     jsonAmount(t.USDDisbursement),
			Received:         jsonAmount(t.USDReceived),
			GrantEquivalent:  jsonAmount(t.USDGrantEquivalent),
			NetDisbursement:  jsonAmount(t.USDNetDisbursement),
			AdaptationMarker: int16(t.AdaptationMarker),
			MitigationMarker: int16(t.MitigationMarker),
		})
	}
	return out
}

// ResidualsHandler serves both unmatched residues for audit, with the
// leftover climate claims summed per indicator. Pre-quantified component
// rows contribute their net per-objective amounts, Rio rows their raw
// claimed values.
func ResidualsHandler(cd *ClimateData) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		markers, txs := cd.Residuals()

		claimed := map[string]float64{}
		rio, components := engine.SplitByMarkerPolicy(markers)
		for _, m := range components {
			for ind, v := range engine.ComponentsIndicators(m.AdaptationValue, m.MitigationValue, m.CrossCuttingValue) {
				claimed[ind.String()] += v
			}
		}
		for _, m := range rio {
			if !engine.IsNA(m.AdaptationValue) {
				claimed[schema.IndicatorAdaptation.String()] += m.AdaptationValue
			}
			if !engine.IsNA(m.MitigationValue) {
				claimed[schema.IndicatorMitigation.String()] += m.MitigationValue
			}
			if !engine.IsNA(m.CrossCuttingValue) {
				claimed[schema.IndicatorCrossCutting.String()] += m.CrossCuttingValue
			}
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"unmatched_markers":      len(markers),
			"unmatched_transactions": len(txs),
			"unclaimed_by_indicator": claimed,
			"transactions":           transactionsJSON(txs),
		})
	})
}

// ImputationsHandler computes imputed multilateral spending from the loaded
// contributions and the last multilateral ledger.
func ImputationsHandler(cd *ClimateData) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Window int `json:"window"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
			return
		}
		if req.Window == 0 {
			req.Window = config.DefaultRollingWindowYears
		}

		cd.mu.RLock()
		contributions := append([]Contribution(nil), cd.contributions...)
		ledger := append([]engine.IndicatorRow(nil), cd.ledger...)
		cd.mu.RUnlock()

		rows, err := ImputeMultilateral(contributions, ledger, req.Window)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"rows":  rows,
			"count": len(rows),
		})
	})
}

// LastRunHandler serves the previous run summary.
func LastRunHandler(cd *ClimateData) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		summary := cd.LastRun()
		if summary == nil {
			writeError(w, http.StatusNotFound, "no pipeline run yet")
			return
		}
		writeJSON(w, http.StatusOK, summary)
	})
}
